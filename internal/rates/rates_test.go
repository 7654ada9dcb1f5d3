// Copyright 2026 The Kaspa Register Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	register "github.com/laudena/kaspa-register"
)

func newPriceServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRefresher_GetBeforeFirstFetch(t *testing.T) {
	t.Parallel()

	r := New("http://localhost:0", time.Minute, time.Minute)
	_, err := r.Get()
	assert.ErrorIs(t, err, register.ErrRateUnavailable)
}

func TestRefresher_FetchAndConvert(t *testing.T) {
	t.Parallel()

	server := newPriceServer(t, `{"price": 0.042}`, http.StatusOK)
	r := New(server.URL, time.Minute, time.Minute)

	r.refresh(context.Background())

	rate, err := r.Get()
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.042")), "rate %s", rate)

	kas, err := r.ConvertFiat(decimal.RequireFromString("4.20"))
	require.NoError(t, err)
	assert.True(t, kas.Equal(decimal.NewFromInt(100)), "kas %s", kas)
}

func TestRefresher_StaleRate(t *testing.T) {
	t.Parallel()

	server := newPriceServer(t, `{"price": 0.05}`, http.StatusOK)
	r := New(server.URL, time.Minute, 50*time.Millisecond)

	r.refresh(context.Background())
	_, err := r.Get()
	require.NoError(t, err)

	r.mu.Lock()
	r.fetchedAt = time.Now().Add(-time.Second)
	r.mu.Unlock()

	_, err = r.Get()
	assert.ErrorIs(t, err, register.ErrRateUnavailable)

	_, err = r.ConvertFiat(decimal.NewFromInt(1))
	assert.ErrorIs(t, err, register.ErrRateUnavailable)
}

func TestRefresher_FailedFetchKeepsOldRate(t *testing.T) {
	t.Parallel()

	server := newPriceServer(t, `{"price": 0.05}`, http.StatusOK)
	r := New(server.URL, time.Minute, time.Minute)
	r.refresh(context.Background())

	// Later fetches fail; the cached rate survives until it ages out.
	bad := newPriceServer(t, `oops`, http.StatusInternalServerError)
	r.url = bad.URL
	r.refresh(context.Background())

	rate, err := r.Get()
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.05")))
}

func TestRefresher_RejectsBadPrice(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"price": 0}`, `{"price": -1}`, `not json`} {
		server := newPriceServer(t, body, http.StatusOK)
		r := New(server.URL, time.Minute, time.Minute)
		r.refresh(context.Background())

		_, err := r.Get()
		assert.ErrorIs(t, err, register.ErrRateUnavailable, "body %q", body)
	}
}
