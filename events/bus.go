// Copyright © 2024 CloudSpan <oss@cloudspan.dev>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package events is the in-process pub/sub bus. One bounded ring keeps the
// recent history for replay and /events/recent; each subscriber gets its own
// bounded queue so a slow reader sheds its own events instead of stalling
// publishers or its peers.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudspan/cloudspan/common"
)

const (
	DefaultRingCapacity    = 1000
	DefaultSubscriberQueue = 64
	DefaultHeartbeat       = 15 * time.Second
)

// Config sizes the bus; zero fields take the defaults above.
type Config struct {
	RingCapacity    int
	SubscriberQueue int
	Heartbeat       time.Duration
}

// Subscription is one live feed. Read C until it closes; call Unsubscribe (or
// let the bus Close) to release the slot. Dropped reports how many events the
// bus had to shed because this subscriber read too slowly.
type Subscription struct {
	ID string
	C  <-chan common.Event

	ch      chan common.Event
	dropped atomic.Uint64
	bus     *Bus
}

func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) Unsubscribe() { s.bus.unsubscribe(s) }

// Bus owns the ring and the subscriber table. Publish never blocks: ring
// append is O(1) under a short critical section, and fan-out uses non-blocking
// sends with drop-oldest per subscriber.
type Bus struct {
	published   atomic.Uint64
	dropped     atomic.Uint64
	heartbeats  atomic.Uint64
	byNamespace sync.Map // namespace -> *atomic.Uint64

	cfg Config

	mu     sync.Mutex
	ring   []common.Event // fixed capacity, oldest overwritten
	next   int            // ring index the next event lands on
	filled bool
	subs   map[string]*Subscription
	closed bool
}

func NewBus(cfg Config) *Bus {
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = DefaultRingCapacity
	}
	if cfg.SubscriberQueue <= 0 {
		cfg.SubscriberQueue = DefaultSubscriberQueue
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	return &Bus{
		cfg:  cfg,
		ring: make([]common.Event, cfg.RingCapacity),
		subs: make(map[string]*Subscription),
	}
}

// Publish appends to the ring and fans out. Order is preserved per publisher:
// the ring append and all subscriber hand-offs happen under one critical
// section, so two events published by the same goroutine land in every queue
// in publication order.
func (b *Bus) Publish(ev common.Event) {
	b.published.Add(1)
	b.countNamespace(ev.Type.Namespace())

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.ring[b.next] = ev
	b.next++
	if b.next == len(b.ring) {
		b.next = 0
		b.filled = true
	}
	for _, sub := range b.subs {
		b.offer(sub, ev)
	}
}

// offer hands one event to one subscriber without ever blocking. A full queue
// loses its oldest entry; the subscriber finds out via its dropped counter.
func (b *Bus) offer(sub *Subscription, ev common.Event) {
	for {
		select {
		case sub.ch <- ev:
			return
		default:
		}
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
			b.dropped.Add(1)
		default:
		}
	}
}

// Subscribe opens a feed. replay > 0 pre-loads up to that many of the most
// recent ring events (oldest first) into the queue before any live event,
// capped at the queue capacity so the live feed cannot be starved at birth.
func (b *Bus) Subscribe(replay int) *Subscription {
	sub := &Subscription{
		ID:  string(common.NewEventID()),
		ch:  make(chan common.Event, b.cfg.SubscriberQueue),
		bus: b,
	}
	sub.C = sub.ch

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	if replay > 0 {
		for _, ev := range b.recentLocked(min(replay, b.cfg.SubscriberQueue)) {
			sub.ch <- ev
		}
	}
	b.subs[sub.ID] = sub
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.ID]; ok {
		delete(b.subs, sub.ID)
		close(sub.ch)
	}
}

// Recent snapshots the newest events, oldest first, up to limit.
func (b *Bus) Recent(limit int) []common.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recentLocked(limit)
}

func (b *Bus) recentLocked(limit int) []common.Event {
	size := b.next
	if b.filled {
		size = len(b.ring)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]common.Event, 0, limit)
	start := b.next - limit
	if start < 0 {
		start += len(b.ring)
	}
	for i := 0; i < limit; i++ {
		out = append(out, b.ring[(start+i)%len(b.ring)])
	}
	return out
}

// Stats reports bus occupancy for /events/stats and /health.
func (b *Bus) Stats() common.EventStatsResponse {
	b.mu.Lock()
	size := b.next
	if b.filled {
		size = len(b.ring)
	}
	subscribers := len(b.subs)
	b.mu.Unlock()

	byNS := make(map[string]uint64)
	b.byNamespace.Range(func(k, v any) bool {
		byNS[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})
	return common.EventStatsResponse{
		Published:    b.published.Load(),
		Dropped:      b.dropped.Load(),
		RingSize:     size,
		RingCapacity: len(b.ring),
		Subscribers:  subscribers,
		ByNamespace:  byNS,
	}
}

func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// RunHeartbeat emits a heartbeat event on the configured interval until ctx is
// done. The serve loop runs this as one of its actors.
func (b *Bus) RunHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			seq := b.heartbeats.Add(1)
			b.Publish(common.NewEvent(common.EventType("cloud.heartbeat"),
				map[string]uint64{"sequence": seq}))
		}
	}
}

// HeartbeatInterval is what the push channel uses for its own frame timer.
func (b *Bus) HeartbeatInterval() time.Duration { return b.cfg.Heartbeat }

// Close shuts every subscription; further publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

func (b *Bus) countNamespace(ns string) {
	v, _ := b.byNamespace.LoadOrStore(ns, &atomic.Uint64{})
	v.(*atomic.Uint64).Add(1)
}
