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

package common

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/JeffreyRichter/enum/enum"
)

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// ObjectKey is the primary identity of a stored object. Two refs with the same
// key triple refer to the same underlying object.
type ObjectKey struct {
	Provider  Provider
	Container string
	Key       string
}

func (k ObjectKey) String() string {
	return k.Provider.Tag() + "/" + k.Container + "/" + k.Key
}

// ObjectRef is one provider-reported object, normalized. Refs are passed by
// value everywhere; nothing shares or mutates them across components.
type ObjectRef struct {
	Provider     Provider  `json:"provider"`
	Container    string    `json:"container"`
	Key          string    `json:"key"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
	StorageClass string    `json:"provider_storage_class,omitempty"`
	ETag         string    `json:"etag,omitempty"`
}

func (r ObjectRef) ObjectKey() ObjectKey {
	return ObjectKey{Provider: r.Provider, Container: r.Container, Key: r.Key}
}

func (r ObjectRef) AgeDays(now time.Time) float64 {
	if r.LastModified.IsZero() {
		return 0
	}
	return now.Sub(r.LastModified).Hours() / 24
}

// AccessStats is derived read activity for one object over a rolling window.
// Providers that report nothing get zeroed stats; the classifier copes.
type AccessStats struct {
	AccessCountWindow int        `json:"access_count_window"`
	LastAccessAt      *time.Time `json:"last_access_at,omitempty"`
	WindowDays        int        `json:"window_days,omitempty"`
}

// DaysSinceLastAccess falls back to the object's age when the provider never
// reported an access time; an object nobody touched is as cold as it is old.
func (s AccessStats) DaysSinceLastAccess(ref ObjectRef, now time.Time) float64 {
	if s.LastAccessAt == nil {
		return ref.AgeDays(now)
	}
	return now.Sub(*s.LastAccessAt).Hours() / 24
}

// CatalogEntry is what the object catalog owns per object: the last observed
// ref, its derived access stats, the tier it currently sits on, and at most one
// open recommendation.
type CatalogEntry struct {
	ObjectRef
	AccessStats    AccessStats     `json:"access_stats"`
	CurrentTier    Tier            `json:"current_tier"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ERecPriority = RecPriority(0)

// RecPriority ranks a recommendation by how much money acting on it saves.
type RecPriority uint8

func (RecPriority) Low() RecPriority    { return RecPriority(0) }
func (RecPriority) Medium() RecPriority { return RecPriority(1) }
func (RecPriority) High() RecPriority   { return RecPriority(2) }

func (rp RecPriority) String() string {
	return enum.StringInt(rp, reflect.TypeOf(rp))
}

func (rp *RecPriority) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(rp), s, true)
	if err == nil {
		*rp = val.(RecPriority)
	}
	return err
}

func (rp RecPriority) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToUpper(rp.String()))
}

func (rp *RecPriority) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return rp.Parse(s)
}

// Recommendation is the classifier's verdict for one object. It is only ever
// surfaced when the recommended tier differs from the current one; a no-op
// recommendation is suppressed at the source.
type Recommendation struct {
	RecommendedTier Tier        `json:"recommended_tier"`
	MonthlySavings  float64     `json:"monthly_savings"`
	Priority        RecPriority `json:"priority"`
	RationaleTag    string      `json:"rationale_tag"`
	Rationale       string      `json:"rationale"`
	Confidence      float64     `json:"confidence"`
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// TierBucket aggregates one (provider, tier) cell of the catalog.
type TierBucket struct {
	Provider    Provider `json:"provider"`
	Tier        Tier     `json:"tier"`
	Objects     int64    `json:"objects"`
	TotalBytes  int64    `json:"total_bytes"`
	MonthlyCost float64  `json:"monthly_cost"`
}

// ProviderSummary aggregates one provider's slice of the catalog.
type ProviderSummary struct {
	Provider    Provider `json:"provider"`
	Objects     int64    `json:"objects"`
	TotalBytes  int64    `json:"total_bytes"`
	MonthlyCost float64  `json:"monthly_cost"`
}

// RefreshSummary reports one catalog refresh, per provider.
type RefreshSummary struct {
	RefreshID  string                   `json:"refresh_id"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Providers  []ProviderRefreshOutcome `json:"providers"`
}

// ProviderRefreshOutcome is one provider's share of a refresh: how many objects
// the new snapshot holds, how many old entries vanished, and the error if the
// provider's enumeration failed (a failed provider keeps its old snapshot).
type ProviderRefreshOutcome struct {
	Provider   Provider `json:"provider"`
	Discovered int      `json:"discovered"`
	Removed    int      `json:"removed"`
	DurationMs int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
}
