/*
 * Copyright 2025 Chassis Labs, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package stream provides small typed in-process broadcast containers used to
// publish daemon state to any number of subscribers.
//
// Two flavors exist: Value keeps the latest published value and replays it to
// new subscribers; Feed fans out to current subscribers only. Both guarantee
// per-subscriber FIFO delivery and never block the publisher: each subscriber
// owns an unbounded queue drained into its channel by a dedicated goroutine.
package stream

import "sync"

// subscription carries values from a publisher to a single subscriber. Values
// are appended to an unbounded queue under the lock and forwarded to out by
// the drain goroutine, preserving publication order.
type subscription[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool
	done   chan struct{}
	out    chan T
}

func newSubscription[T any]() *subscription[T] {
	s := &subscription[T]{
		done: make(chan struct{}),
		out:  make(chan T),
	}
	s.cond = sync.NewCond(&s.mu)

	go s.drain()

	return s
}

// push enqueues a value for delivery. It never blocks.
func (s *subscription[T]) push(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.queue = append(s.queue, v)
	s.cond.Signal()
}

// stop ends delivery. Values still queued are discarded; the out channel is
// closed once the drain goroutine exits. Safe to call more than once.
func (s *subscription[T]) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.done)
	s.cond.Signal()
}

func (s *subscription[T]) drain() {
	defer close(s.out)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}

		if s.closed {
			s.mu.Unlock()
			return
		}

		v := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.done:
			return
		}
	}
}

// Value is a broadcast container that remembers the last published value.
// A new subscriber receives the current value first, then every subsequent
// Set in publication order. The zero value is not usable; construct with
// NewValue.
type Value[T any] struct {
	mu     sync.Mutex
	last   T
	subs   map[uint64]*subscription[T]
	nextID uint64
	closed bool
}

// NewValue returns a Value seeded with initial. Get and new subscriptions
// observe initial until the first Set.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		last: initial,
		subs: make(map[uint64]*subscription[T]),
	}
}

// Set publishes v to all current subscribers and records it as the latest
// value. Set never blocks on slow subscribers. Calling Set on a closed Value
// is a no-op.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}

	v.last = val

	for _, sub := range v.subs {
		sub.push(val)
	}
}

// Get returns the latest published value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.last
}

// Subscribe registers a new subscriber. The returned channel first delivers
// the current value, then each later Set in order. cancel detaches the
// subscriber and closes the channel; it is idempotent. Subscribing to a
// closed Value yields an already-closed channel.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	sub := newSubscription[T]()

	if v.closed {
		sub.stop()
		return sub.out, func() {}
	}

	id := v.nextID
	v.nextID++
	v.subs[id] = sub
	sub.push(v.last)

	cancel := func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()

		sub.stop()
	}

	return sub.out, cancel
}

// Subscribers reports the number of active subscribers.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return len(v.subs)
}

// Close detaches every subscriber and closes their channels. Subsequent Set
// and Subscribe calls are no-ops.
func (v *Value[T]) Close() {
	v.mu.Lock()

	if v.closed {
		v.mu.Unlock()
		return
	}

	v.closed = true
	subs := v.subs
	v.subs = nil
	v.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

// Feed is a broadcast container with no replay: Publish fans out to the
// subscribers present at the time of the call, and late subscribers see only
// later values. Construct with NewFeed.
type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*subscription[T]
	nextID uint64
	closed bool
}

// NewFeed returns an empty Feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{
		subs: make(map[uint64]*subscription[T]),
	}
}

// Publish delivers v to all current subscribers without blocking. Publishing
// to a closed Feed is a no-op.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	for _, sub := range f.subs {
		sub.push(v)
	}
}

// Subscribe registers a new subscriber and returns its channel along with an
// idempotent cancel that detaches it and closes the channel. Subscribing to
// a closed Feed yields an already-closed channel.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := newSubscription[T]()

	if f.closed {
		sub.stop()
		return sub.out, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = sub

	cancel := func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()

		sub.stop()
	}

	return sub.out, cancel
}

// Subscribers reports the number of active subscribers.
func (f *Feed[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.subs)
}

// Close detaches every subscriber and closes their channels. Subsequent
// Publish and Subscribe calls are no-ops.
func (f *Feed[T]) Close() {
	f.mu.Lock()

	if f.closed {
		f.mu.Unlock()
		return
	}

	f.closed = true
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}
