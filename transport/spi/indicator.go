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

package spi

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// indicator drives a status LED that lights on tag activity and goes out
// after an idle period. One timer is reused across touches; a touch resets
// it rather than stacking a new one, so the LED goes out exactly idleOff
// after the last activity.
//
// A nil *indicator is valid and does nothing, so callers touch it without
// checking whether an indicator pin was configured.
type indicator struct {
	pin     gpio.PinIO
	idleOff time.Duration
	mu      sync.Mutex
	timer   *time.Timer
}

func newIndicator(pin gpio.PinIO, idleOff time.Duration) *indicator {
	return &indicator{pin: pin, idleOff: idleOff}
}

// Touch turns the LED on and (re)arms the idle-off timer.
func (i *indicator) Touch() {
	if i == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	_ = i.pin.Out(gpio.High)
	if i.timer == nil {
		i.timer = time.AfterFunc(i.idleOff, i.off)
		return
	}
	i.timer.Reset(i.idleOff)
}

func (i *indicator) off() {
	i.mu.Lock()
	defer i.mu.Unlock()
	_ = i.pin.Out(gpio.Low)
}
