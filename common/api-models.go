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
	"time"
)

// The request/response bodies of the control API live here so that handlers,
// the engine, and any Go client agree on one wire shape.

type RegisterRequest struct {
	PrincipalID string `json:"principal_id"`
	Credential  string `json:"credential"`
	Role        *Role  `json:"role,omitempty"` // defaults to user when absent
}

type RegisterResponse struct {
	PrincipalID string    `json:"principal_id"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type LoginRequest struct {
	PrincipalID string `json:"principal_id"`
	Credential  string `json:"credential"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"` // always "Bearer"
	ExpiresAt time.Time `json:"expires_at"`
	Role      Role      `json:"role"`
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type ListObjectsResponse struct {
	Objects    []CatalogEntry `json:"objects"`
	Count      int            `json:"count"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// RefreshAccepted acknowledges an async catalog refresh. The outcome arrives
// later as a catalog.refresh_completed event carrying the same refresh id.
type RefreshAccepted struct {
	RefreshID string    `json:"refresh_id"`
	StartedAt time.Time `json:"started_at"`
	Providers []string  `json:"providers"`
}

type CatalogSummaryResponse struct {
	Providers   []ProviderSummary `json:"providers"`
	GeneratedAt time.Time         `json:"generated_at"`
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// RecommendationEntry pairs an object with the placement advice computed for
// it. Entries with no advice (classifier said stay put, or savings below the
// threshold) are never returned.
type RecommendationEntry struct {
	Object         ObjectRef      `json:"object"`
	CurrentTier    Tier           `json:"current_tier"`
	Recommendation Recommendation `json:"recommendation"`
}

type ListRecommendationsResponse struct {
	Recommendations     []RecommendationEntry `json:"recommendations"`
	TotalMonthlySavings float64               `json:"total_monthly_savings"`
	GeneratedAt         time.Time             `json:"generated_at"`
}

type TierDistributionResponse struct {
	Buckets          []TierBucket `json:"buckets"`
	TotalMonthlyCost float64      `json:"total_monthly_cost"`
	GeneratedAt      time.Time    `json:"generated_at"`
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type CreateMigrationRequest struct {
	SourceProvider  Provider    `json:"source_provider"`
	DestProvider    Provider    `json:"dest_provider"`
	SourceContainer string      `json:"source_container,omitempty"`
	DestContainer   string      `json:"dest_container,omitempty"`
	FileList        []string    `json:"file_list"`
	Priority        JobPriority `json:"priority,omitempty"`

	// DeleteSource removes each source object after its copy is VERIFIED,
	// turning the copy into a move. Off by default.
	DeleteSource bool `json:"delete_source,omitempty"`

	// TargetTier, when set, writes destination objects with the storage class
	// that represents this tier on the destination provider. With
	// source == dest provider and container this becomes an in-place re-tier.
	TargetTier Tier `json:"target_tier,omitempty"`
}

type JobSummary struct {
	JobID            JobID       `json:"job_id"`
	Owner            string      `json:"owner"`
	SourceProvider   Provider    `json:"source_provider"`
	DestProvider     Provider    `json:"dest_provider"`
	SourceContainer  string      `json:"source_container"`
	DestContainer    string      `json:"dest_container"`
	Priority         JobPriority `json:"priority"`
	Status           JobStatus   `json:"status"`
	Progress         float64     `json:"progress_percentage"`
	TotalFiles       int32       `json:"total_files"`
	FilesCompleted   int32       `json:"files_completed"`
	FilesFailed      int32       `json:"files_failed"`
	FilesSkipped     int32       `json:"files_skipped"`
	BytesTransferred int64       `json:"bytes_transferred"`
	DeleteSource     bool        `json:"delete_source,omitempty"`
	TargetTier       Tier        `json:"target_tier,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

type TransferDetail struct {
	SourceKey        string         `json:"source_key"`
	DestKey          string         `json:"dest_key"`
	State            TransferStatus `json:"state"`
	BytesTransferred int64          `json:"bytes_transferred"`
	Attempts         int32          `json:"attempts"`
	LastError        *ErrorDetail   `json:"last_error,omitempty"`
}

type JobDetail struct {
	JobSummary
	Files []TransferDetail `json:"files"`
}

type ListJobsResponse struct {
	Jobs  []JobSummary `json:"jobs"`
	Count int          `json:"count"`
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type RecentEventsResponse struct {
	Events []Event `json:"events"`
	Count  int     `json:"count"`
}

type EventStatsResponse struct {
	Published    uint64            `json:"published_total"`
	Dropped      uint64            `json:"dropped_total"`
	RingSize     int               `json:"ring_size"`
	RingCapacity int               `json:"ring_capacity"`
	Subscribers  int               `json:"subscribers"`
	ByNamespace  map[string]uint64 `json:"by_namespace"`
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type ProviderHealth struct {
	Provider    Provider   `json:"provider"`
	Healthy     bool       `json:"healthy"`
	Objects     int        `json:"objects"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type EngineHealth struct {
	Workers         int   `json:"workers"`
	ActiveTransfers int64 `json:"active_transfers"`
	QueuedJobs      int   `json:"queued_jobs"`
	ActiveJobs      int   `json:"active_jobs"`
}

type SystemHealth struct {
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	Goroutines        int     `json:"goroutines"`
}

type PredictorHealth struct {
	ModelAvailable bool `json:"model_available"`
}

type StoreHealth struct {
	Kind      string `json:"kind"`
	Reachable bool   `json:"reachable"`
}

type HealthResponse struct {
	Status        string           `json:"status"` // "ok" or "degraded"
	Version       string           `json:"version"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Providers     []ProviderHealth `json:"providers"`
	Engine        EngineHealth     `json:"engine"`
	Predictor     PredictorHealth  `json:"predictor"`
	Store         StoreHealth      `json:"store"`
	System        SystemHealth     `json:"system"`
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// ErrorResponse is the body of every non-2xx reply. Kind is one of the
// external taxonomy tags; Message never contains credentials or secrets.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
