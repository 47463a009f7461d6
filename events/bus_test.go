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

package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cloudspan/cloudspan/common"
)

func progressEvent(jobID common.JobID, seq int) common.Event {
	return common.NewEvent(common.EEventType.MigrationProgress(),
		common.MigrationProgressPayload{JobID: jobID, FilesCompleted: int32(seq)})
}

func TestRingKeepsNewestAndOverwritesOldest(t *testing.T) {
	a := assert.New(t)
	bus := NewBus(Config{RingCapacity: 4})
	jobID := common.NewJobID()

	for i := 0; i < 10; i++ {
		bus.Publish(progressEvent(jobID, i))
	}
	recent := bus.Recent(0)
	a.Len(recent, 4)
	for i, ev := range recent {
		a.Equal(int32(6+i), ev.Payload.(common.MigrationProgressPayload).FilesCompleted)
	}

	// limit trims from the old end
	last2 := bus.Recent(2)
	a.Len(last2, 2)
	a.Equal(int32(8), last2[0].Payload.(common.MigrationProgressPayload).FilesCompleted)
}

func TestSubscriberReceivesInPublicationOrder(t *testing.T) {
	a := assert.New(t)
	bus := NewBus(Config{RingCapacity: 16, SubscriberQueue: 2048})
	defer bus.Close()
	jobID := common.NewJobID()

	sub := bus.Subscribe(0)
	done := make(chan []int32)
	go func() {
		var got []int32
		for ev := range sub.C {
			got = append(got, ev.Payload.(common.MigrationProgressPayload).FilesCompleted)
			if len(got) == 1000 {
				break
			}
		}
		done <- got
	}()

	for i := 0; i < 1000; i++ {
		bus.Publish(progressEvent(jobID, i))
	}
	got := <-done
	a.Len(got, 1000)
	for i, seq := range got {
		a.Equal(int32(i), seq)
	}
	a.Zero(sub.Dropped())
}

func TestPerJobOrderWithConcurrentPublishers(t *testing.T) {
	a := assert.New(t)
	bus := NewBus(Config{SubscriberQueue: 8192})
	defer bus.Close()

	sub := bus.Subscribe(0)
	jobs := make([]common.JobID, 4)
	for i := range jobs {
		jobs[i] = common.NewJobID()
	}
	const perJob = 300

	var wg sync.WaitGroup
	for _, id := range jobs {
		wg.Add(1)
		go func(id common.JobID) {
			defer wg.Done()
			for i := 0; i < perJob; i++ {
				bus.Publish(progressEvent(id, i))
			}
		}(id)
	}
	wg.Wait()

	perJobSeqs := make(map[common.JobID][]int32)
	for i := 0; i < len(jobs)*perJob; i++ {
		ev := <-sub.C
		p := ev.Payload.(common.MigrationProgressPayload)
		perJobSeqs[p.JobID] = append(perJobSeqs[p.JobID], p.FilesCompleted)
	}
	for _, id := range jobs {
		seqs := perJobSeqs[id]
		a.Len(seqs, perJob)
		for i, seq := range seqs {
			a.Equal(int32(i), seq, "job %s out of order at %d", id, i)
		}
	}
}

// A sleeping subscriber must shed its own events and leave the reader alone.
func TestSlowSubscriberIsolation(t *testing.T) {
	a := assert.New(t)
	const queue = 64
	const total = 10000
	bus := NewBus(Config{RingCapacity: 100, SubscriberQueue: queue})
	defer bus.Close()
	jobID := common.NewJobID()

	fast := bus.Subscribe(0)
	slow := bus.Subscribe(0) // never read until the end

	done := make(chan int)
	go func() {
		count := 0
		for range fast.C {
			count++
			if count == total {
				break
			}
		}
		done <- count
	}()

	for i := 0; i < total; i++ {
		bus.Publish(progressEvent(jobID, i))
	}
	a.Equal(total, <-done)

	a.Zero(fast.Dropped())
	a.Equal(uint64(total-queue), slow.Dropped())
	a.Len(slow.ch, queue)

	stats := bus.Stats()
	a.Equal(uint64(total), stats.Published)
	a.Equal(uint64(total-queue), stats.Dropped)
	a.Equal(2, stats.Subscribers)
}

func TestSubscribeWithReplay(t *testing.T) {
	a := assert.New(t)
	bus := NewBus(Config{RingCapacity: 100, SubscriberQueue: 64})
	defer bus.Close()
	jobID := common.NewJobID()

	for i := 0; i < 10; i++ {
		bus.Publish(progressEvent(jobID, i))
	}
	sub := bus.Subscribe(5)
	bus.Publish(progressEvent(jobID, 10))

	var seqs []int32
	for i := 0; i < 6; i++ {
		ev := <-sub.C
		seqs = append(seqs, ev.Payload.(common.MigrationProgressPayload).FilesCompleted)
	}
	a.Equal([]int32{5, 6, 7, 8, 9, 10}, seqs)
}

func TestUnsubscribeClosesFeed(t *testing.T) {
	a := assert.New(t)
	bus := NewBus(Config{})
	defer bus.Close()

	sub := bus.Subscribe(0)
	a.Equal(1, bus.SubscriberCount())
	sub.Unsubscribe()
	a.Equal(0, bus.SubscriberCount())

	_, open := <-sub.C
	a.False(open)

	// double unsubscribe is harmless
	sub.Unsubscribe()
}

func TestStatsCountNamespaces(t *testing.T) {
	a := assert.New(t)
	bus := NewBus(Config{})
	defer bus.Close()

	bus.Publish(common.NewEvent(common.EEventType.MigrationStarted(), nil))
	bus.Publish(common.NewEvent(common.EEventType.MigrationCompleted(), nil))
	bus.Publish(common.NewEvent(common.EEventType.CatalogRefreshCompleted(), nil))

	stats := bus.Stats()
	a.Equal(uint64(2), stats.ByNamespace["migration"])
	a.Equal(uint64(1), stats.ByNamespace["catalog"])
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	a := assert.New(t)
	bus := NewBus(Config{})
	bus.Close()
	a.NotPanics(func() {
		bus.Publish(common.NewEvent(common.EEventType.MigrationStarted(), nil))
	})
	a.Empty(bus.Recent(0))
}

func TestHeartbeatTicks(t *testing.T) {
	a := assert.New(t)
	bus := NewBus(Config{Heartbeat: 5 * time.Millisecond})
	defer bus.Close()
	sub := bus.Subscribe(0)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go func() { _ = bus.RunHeartbeat(ctx) }()

	ev := <-sub.C
	a.Equal("cloud", ev.Type.Namespace())
	a.Contains(string(ev.Type), "heartbeat")
}
