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

package register

import (
	"time"

	"github.com/laudena/kaspa-register/internal/syncutil"
)

// StatusEvent is one entry in a write session's append-only status log.
// Event order within a session is the contract consumers rely on.
type StatusEvent struct {
	Time    time.Time `json:"timestamp"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	OK      bool      `json:"ok"`
}

// StatusBroadcaster publishes StatusEvents to any number of concurrent
// consumers. Poll-style consumers use Snapshot; stream consumers use
// Subscribe. A late joiner receives the most recent event as its snapshot,
// then all subsequent events; events published strictly before the join are
// only available via Snapshot. Slow subscribers lose their oldest buffered
// event rather than blocking the publisher.
type StatusBroadcaster struct {
	subs   map[int]chan StatusEvent
	events []StatusEvent
	nextID int
	mu     syncutil.RWMutex
}

// NewStatusBroadcaster creates an empty broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		subs: make(map[int]chan StatusEvent),
	}
}

// Publish appends an event to the session log and fans it out to all
// subscribers. Never blocks.
func (b *StatusBroadcaster) Publish(ev StatusEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	for _, ch := range b.subs {
		b.send(ch, ev)
	}
}

// send delivers without blocking, evicting the oldest buffered event if the
// subscriber is full.
func (*StatusBroadcaster) send(ch chan StatusEvent, ev StatusEvent) {
	for {
		select {
		case ch <- ev:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// Subscribe registers a stream consumer. The returned channel first carries
// the most recent event (if any) as a join snapshot, then subsequent events.
// The cancel function unregisters and closes the channel.
func (b *StatusBroadcaster) Subscribe(buffer int) (<-chan StatusEvent, func()) {
	if buffer < 1 {
		buffer = 16
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan StatusEvent, buffer)
	b.subs[id] = ch
	if n := len(b.events); n > 0 {
		ch <- b.events[n-1]
	}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Snapshot returns a copy of the current session's event log in publish order.
func (b *StatusBroadcaster) Snapshot() []StatusEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]StatusEvent, len(b.events))
	copy(out, b.events)
	return out
}

// Latest returns the most recent event and whether one exists.
func (b *StatusBroadcaster) Latest() (StatusEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.events) == 0 {
		return StatusEvent{}, false
	}
	return b.events[len(b.events)-1], true
}

// reset clears the event log at the start of a new session. Subscribers
// stay registered across sessions.
func (b *StatusBroadcaster) reset() {
	b.mu.Lock()
	b.events = b.events[:0]
	b.mu.Unlock()
}
