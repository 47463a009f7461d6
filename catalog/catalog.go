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

// Package catalog keeps the in-process inventory of every object the
// orchestrator knows about, one snapshot per provider. Refresh rebuilds a
// provider's snapshot off to the side and swaps it in whole, so readers of
// that provider see the old inventory or the new one, never a mix, and
// readers of other providers are never blocked at all.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloudspan/cloudspan/adapter"
	"github.com/cloudspan/cloudspan/common"
)

// Publisher is the slice of the event bus the catalog needs.
type Publisher interface {
	Publish(common.Event)
}

// Classifier annotates a fresh entry with at most one recommendation.
// Classification runs on the not-yet-published snapshot during refresh, so a
// swapped-in snapshot already carries its recommendations.
type Classifier interface {
	Classify(e common.CatalogEntry) *common.Recommendation
}

// Config names the containers to inventory per provider and the rolling
// window access stats are reported over.
type Config struct {
	Containers       map[common.Provider][]string
	AccessWindowDays int
}

type entryKey struct {
	container string
	key       string
}

type partition struct {
	mu          sync.RWMutex
	entries     map[entryKey]*common.CatalogEntry
	lastRefresh time.Time
	lastError   string
}

type Catalog struct {
	adapters   adapter.Set
	cfg        Config
	classifier Classifier
	bus        Publisher
	logger     common.ILogger
	sanitizer  common.LogSanitizer

	partitions map[common.Provider]*partition

	refreshMu sync.Mutex // serializes whole refreshes; reads never take it
}

func NewCatalog(adapters adapter.Set, cfg Config, classifier Classifier, bus Publisher, logger common.ILogger) *Catalog {
	if cfg.AccessWindowDays <= 0 {
		cfg.AccessWindowDays = 30
	}
	c := &Catalog{
		adapters:   adapters,
		cfg:        cfg,
		classifier: classifier,
		bus:        bus,
		logger:     logger,
		sanitizer:  common.NewLogSanitizer(),
		partitions: make(map[common.Provider]*partition),
	}
	for p := range adapters {
		c.partitions[p] = &partition{entries: make(map[entryKey]*common.CatalogEntry)}
	}
	return c
}

// Providers reports which providers this catalog tracks, in canonical order.
func (c *Catalog) Providers() []common.Provider {
	return c.adapters.Providers()
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Refresh re-enumerates the named providers (all configured ones when the
// slice is empty), one task per provider. A provider whose enumeration fails
// keeps its previous snapshot untouched and reports the failure in its
// outcome; the other providers proceed regardless.
func (c *Catalog) Refresh(ctx context.Context, providers []common.Provider) common.RefreshSummary {
	return c.refresh(ctx, string(common.NewEventID()), providers)
}

// StartRefresh kicks a refresh off in the background and returns its id
// immediately; the catalog.refresh_completed event carries the outcome.
func (c *Catalog) StartRefresh(ctx context.Context, providers []common.Provider) common.RefreshAccepted {
	if len(providers) == 0 {
		providers = c.Providers()
	}
	id := string(common.NewEventID())
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Tag()
	}
	go c.refresh(ctx, id, providers)
	return common.RefreshAccepted{
		RefreshID: id,
		StartedAt: time.Now().UTC(),
		Providers: names,
	}
}

func (c *Catalog) refresh(ctx context.Context, id string, providers []common.Provider) common.RefreshSummary {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if len(providers) == 0 {
		providers = c.Providers()
	}
	summary := common.RefreshSummary{
		RefreshID: id,
		StartedAt: time.Now().UTC(),
		Providers: make([]common.ProviderRefreshOutcome, len(providers)),
	}
	c.publish(common.NewEvent(common.EEventType.CatalogRefreshStarted(),
		common.CatalogRefreshPayload{RefreshID: summary.RefreshID}))

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p common.Provider) {
			defer wg.Done()
			summary.Providers[i] = c.refreshProvider(ctx, p)
		}(i, p)
	}
	wg.Wait()

	summary.FinishedAt = time.Now().UTC()
	c.publish(common.NewEvent(common.EEventType.CatalogRefreshCompleted(),
		common.CatalogRefreshPayload{RefreshID: summary.RefreshID, Providers: summary.Providers}))
	return summary
}

func (c *Catalog) refreshProvider(ctx context.Context, p common.Provider) common.ProviderRefreshOutcome {
	start := time.Now()
	outcome := common.ProviderRefreshOutcome{Provider: p}

	part, ok := c.partitions[p]
	if !ok {
		outcome.Error = "provider is not configured"
		return outcome
	}
	ad, err := c.adapters.Get(p)
	if err != nil {
		outcome.Error = c.sanitizer.SanitizeLogMessage(err.Error())
		return outcome
	}

	// build the replacement snapshot without holding any lock
	fresh := make(map[entryKey]*common.CatalogEntry)
	for _, container := range c.cfg.Containers[p] {
		err = ad.Enumerate(ctx, container, "", func(ref common.ObjectRef) error {
			fresh[entryKey{ref.Container, ref.Key}] = &common.CatalogEntry{
				ObjectRef:   ref,
				AccessStats: common.AccessStats{WindowDays: c.cfg.AccessWindowDays},
				CurrentTier: adapter.TierFromStorageClass(p, ref.StorageClass),
			}
			return nil
		})
		if err != nil {
			break
		}
	}
	outcome.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		// a partial enumeration must not evict entries we never got to observe
		msg := c.sanitizer.SanitizeLogMessage(err.Error())
		outcome.Error = msg
		c.logf(common.LogError, "catalog refresh of "+p.Tag()+" failed, keeping previous snapshot: "+msg)
		c.publish(common.NewEvent(common.EEventType.ProviderError(),
			common.ProviderEventPayload{Provider: p, Message: msg}))
		part.mu.Lock()
		part.lastError = msg
		part.mu.Unlock()
		return outcome
	}

	// carry forward access stats for objects that survived the refresh
	part.mu.RLock()
	for k, e := range fresh {
		if old, seen := part.entries[k]; seen {
			e.AccessStats = old.AccessStats
		}
	}
	removed := 0
	for k := range part.entries {
		if _, kept := fresh[k]; !kept {
			removed++
		}
	}
	part.mu.RUnlock()

	if c.classifier != nil {
		for _, e := range fresh {
			e.Recommendation = c.classifier.Classify(*e)
		}
	}

	part.mu.Lock()
	part.entries = fresh
	part.lastRefresh = time.Now().UTC()
	part.lastError = ""
	part.mu.Unlock()

	outcome.Discovered = len(fresh)
	outcome.Removed = removed
	c.logf(common.LogInfo, fmt.Sprintf("catalog refresh of %s done: %d objects, %d removed, %dms",
		p.Tag(), outcome.Discovered, outcome.Removed, outcome.DurationMs))
	return outcome
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Filter narrows List output. Zero values mean "any".
type Filter struct {
	Provider common.Provider
	Tier     common.Tier
	Limit    int
	Cursor   string
}

// List returns matching entries ordered by (provider, container, key) and, when
// Limit truncates the result, an opaque cursor for the next page.
func (c *Catalog) List(f Filter) ([]common.CatalogEntry, string) {
	var out []common.CatalogEntry
	for _, p := range c.Providers() {
		if f.Provider != common.EProvider.None() && p != f.Provider {
			continue
		}
		part := c.partitions[p]
		part.mu.RLock()
		for _, e := range part.entries {
			if f.Tier != common.ETier.None() && e.CurrentTier != f.Tier {
				continue
			}
			out = append(out, *e)
		}
		part.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ObjectKey().String() < out[j].ObjectKey().String()
	})
	if f.Cursor != "" {
		n := sort.Search(len(out), func(i int) bool {
			return out[i].ObjectKey().String() > f.Cursor
		})
		out = out[n:]
	}
	next := ""
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
		next = out[len(out)-1].ObjectKey().String()
	}
	return out, next
}

// Get is a point lookup by identity triple.
func (c *Catalog) Get(k common.ObjectKey) (common.CatalogEntry, bool) {
	part, ok := c.partitions[k.Provider]
	if !ok {
		return common.CatalogEntry{}, false
	}
	part.mu.RLock()
	defer part.mu.RUnlock()
	e, ok := part.entries[entryKey{k.Container, k.Key}]
	if !ok {
		return common.CatalogEntry{}, false
	}
	return *e, true
}

// RecordAccess bumps the rolling read counter for one object. Unknown objects
// are ignored; the next refresh will pick them up.
func (c *Catalog) RecordAccess(k common.ObjectKey) {
	part, ok := c.partitions[k.Provider]
	if !ok {
		return
	}
	part.mu.Lock()
	defer part.mu.Unlock()
	if e, ok := part.entries[entryKey{k.Container, k.Key}]; ok {
		now := time.Now().UTC()
		e.AccessStats.AccessCountWindow++
		e.AccessStats.LastAccessAt = &now
	}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Effect is one verified file's footprint on the catalog: the destination
// object as observed after the copy, and optionally the source identity to
// drop when the migration moved rather than copied.
type Effect struct {
	Dest         common.ObjectRef
	DestTier     common.Tier
	RemoveSource bool
	Source       common.ObjectKey
}

// Apply folds a finished migration into the catalog. The next refresh would
// reach the same state; applying eagerly just keeps reads current in between.
func (c *Catalog) Apply(effects []Effect) {
	for _, ef := range effects {
		if part, ok := c.partitions[ef.Dest.Provider]; ok {
			entry := &common.CatalogEntry{
				ObjectRef:   ef.Dest,
				AccessStats: common.AccessStats{WindowDays: c.cfg.AccessWindowDays},
				CurrentTier: ef.DestTier,
			}
			if c.classifier != nil {
				entry.Recommendation = c.classifier.Classify(*entry)
			}
			part.mu.Lock()
			part.entries[entryKey{ef.Dest.Container, ef.Dest.Key}] = entry
			part.mu.Unlock()
		}
		if ef.RemoveSource {
			if part, ok := c.partitions[ef.Source.Provider]; ok {
				part.mu.Lock()
				delete(part.entries, entryKey{ef.Source.Container, ef.Source.Key})
				part.mu.Unlock()
			}
		}
	}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// CostFn prices one (provider, tier, size) cell; the catalog stays ignorant of
// the actual price table.
type CostFn func(p common.Provider, t common.Tier, sizeBytes int64) float64

// Summaries aggregates per provider.
func (c *Catalog) Summaries(cost CostFn) []common.ProviderSummary {
	out := make([]common.ProviderSummary, 0, len(c.partitions))
	for _, p := range c.Providers() {
		part := c.partitions[p]
		s := common.ProviderSummary{Provider: p}
		part.mu.RLock()
		for _, e := range part.entries {
			s.Objects++
			s.TotalBytes += e.SizeBytes
			if cost != nil {
				s.MonthlyCost += cost(p, e.CurrentTier, e.SizeBytes)
			}
		}
		part.mu.RUnlock()
		out = append(out, s)
	}
	return out
}

// TierBuckets aggregates per (provider, tier), skipping empty cells.
func (c *Catalog) TierBuckets(cost CostFn) []common.TierBucket {
	var out []common.TierBucket
	for _, p := range c.Providers() {
		part := c.partitions[p]
		byTier := make(map[common.Tier]*common.TierBucket)
		part.mu.RLock()
		for _, e := range part.entries {
			b, ok := byTier[e.CurrentTier]
			if !ok {
				b = &common.TierBucket{Provider: p, Tier: e.CurrentTier}
				byTier[e.CurrentTier] = b
			}
			b.Objects++
			b.TotalBytes += e.SizeBytes
			if cost != nil {
				b.MonthlyCost += cost(p, e.CurrentTier, e.SizeBytes)
			}
		}
		part.mu.RUnlock()
		for _, t := range []common.Tier{common.ETier.Hot(), common.ETier.Warm(), common.ETier.Cold(), common.ETier.Archive()} {
			if b, ok := byTier[t]; ok {
				out = append(out, *b)
			}
		}
	}
	return out
}

// Recommendations returns every stored recommendation with its object, ordered
// by monthly savings descending.
func (c *Catalog) Recommendations(f Filter) ([]common.RecommendationEntry, float64) {
	var out []common.RecommendationEntry
	total := 0.0
	for _, p := range c.Providers() {
		if f.Provider != common.EProvider.None() && p != f.Provider {
			continue
		}
		part := c.partitions[p]
		part.mu.RLock()
		for _, e := range part.entries {
			if e.Recommendation == nil {
				continue
			}
			if f.Tier != common.ETier.None() && e.Recommendation.RecommendedTier != f.Tier {
				continue
			}
			out = append(out, common.RecommendationEntry{
				Object:         e.ObjectRef,
				CurrentTier:    e.CurrentTier,
				Recommendation: *e.Recommendation,
			})
			total += e.Recommendation.MonthlySavings
		}
		part.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Recommendation.MonthlySavings != out[j].Recommendation.MonthlySavings {
			return out[i].Recommendation.MonthlySavings > out[j].Recommendation.MonthlySavings
		}
		return out[i].Object.ObjectKey().String() < out[j].Object.ObjectKey().String()
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total
}

// ProviderStatus is the catalog's slice of the health report.
type ProviderStatus struct {
	Objects     int64
	LastRefresh time.Time
	LastError   string
}

func (c *Catalog) Status() map[common.Provider]ProviderStatus {
	out := make(map[common.Provider]ProviderStatus, len(c.partitions))
	for p, part := range c.partitions {
		part.mu.RLock()
		out[p] = ProviderStatus{
			Objects:     int64(len(part.entries)),
			LastRefresh: part.lastRefresh,
			LastError:   part.lastError,
		}
		part.mu.RUnlock()
	}
	return out
}

func (c *Catalog) publish(ev common.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

func (c *Catalog) logf(level common.LogLevel, msg string) {
	if c.logger != nil && c.logger.ShouldLog(level) {
		c.logger.Log(level, msg)
	}
}
