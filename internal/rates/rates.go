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

// Package rates maintains a cached KAS/fiat price refreshed in the
// background. A missing or stale rate degrades to ErrRateUnavailable; it
// never fails or delays a tag write.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	register "github.com/laudena/kaspa-register"
	"github.com/laudena/kaspa-register/internal/syncutil"
)

// kasScale is the sompi precision fiat conversions are rounded to.
const kasScale = 8

// Refresher periodically fetches the KAS price and caches it.
type Refresher struct {
	client    *http.Client
	log       zerolog.Logger
	url       string
	interval  time.Duration
	maxAge    time.Duration
	rate      decimal.Decimal
	fetchedAt time.Time
	mu        syncutil.RWMutex
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Refresher) { r.log = log }
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Refresher) { r.client = client }
}

// New creates a Refresher polling url every interval. A cached rate older
// than maxAge counts as unavailable.
func New(url string, interval, maxAge time.Duration, opts ...Option) *Refresher {
	r := &Refresher{
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      zerolog.Nop(),
		url:      url,
		interval: interval,
		maxAge:   maxAge,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fetches immediately and then on every interval tick until ctx is
// cancelled. Fetch failures are logged and the previous rate kept until it
// ages out.
func (r *Refresher) Run(ctx context.Context) {
	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	rate, err := r.fetch(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("rate fetch failed")
		return
	}

	r.mu.Lock()
	r.rate = rate
	r.fetchedAt = time.Now()
	r.mu.Unlock()
	r.log.Debug().Str("rate", rate.String()).Msg("rate refreshed")
}

// priceResponse matches the api.kaspa.org /info/price body.
type priceResponse struct {
	Price float64 `json:"price"`
}

func (r *Refresher) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, http.NoBody)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate request build failed: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate request returned %s", resp.Status)
	}

	var body priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("rate response decode failed: %w", err)
	}
	if body.Price <= 0 {
		return decimal.Zero, fmt.Errorf("rate response price %v out of range", body.Price)
	}

	return decimal.NewFromFloat(body.Price), nil
}

// Get returns the cached rate, or ErrRateUnavailable when nothing has been
// fetched yet or the cache aged out.
func (r *Refresher) Get() (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.fetchedAt.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: no rate fetched yet", register.ErrRateUnavailable)
	}
	if age := time.Since(r.fetchedAt); age > r.maxAge {
		return decimal.Zero, fmt.Errorf("%w: last rate is %s old", register.ErrRateUnavailable, age.Round(time.Second))
	}
	return r.rate, nil
}

// ConvertFiat converts a fiat amount to KAS at the cached rate, rounded to
// sompi precision.
func (r *Refresher) ConvertFiat(fiat decimal.Decimal) (decimal.Decimal, error) {
	rate, err := r.Get()
	if err != nil {
		return decimal.Zero, err
	}
	return fiat.DivRound(rate, kasScale), nil
}
