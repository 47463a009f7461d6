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
	"strings"
	"time"
)

var EEventType = EventType("")

// EventType names a domain event. Values are dotted: the prefix is the
// namespace (cloud, migration, catalog, placement, access), the suffix the
// specific occurrence.
type EventType string

func (EventType) ProviderConnected() EventType { return EventType("cloud.provider_connected") }
func (EventType) ProviderError() EventType     { return EventType("cloud.provider_error") }

func (EventType) MigrationStarted() EventType       { return EventType("migration.started") }
func (EventType) MigrationProgress() EventType      { return EventType("migration.progress") }
func (EventType) MigrationFileCompleted() EventType { return EventType("migration.file_completed") }
func (EventType) MigrationFileFailed() EventType    { return EventType("migration.file_failed") }
func (EventType) MigrationCompleted() EventType     { return EventType("migration.completed") }
func (EventType) MigrationFailed() EventType        { return EventType("migration.failed") }
func (EventType) MigrationCancelled() EventType     { return EventType("migration.cancelled") }

func (EventType) CatalogRefreshStarted() EventType   { return EventType("catalog.refresh_started") }
func (EventType) CatalogRefreshCompleted() EventType { return EventType("catalog.refresh_completed") }

func (EventType) RecommendationCreated() EventType { return EventType("placement.recommendation_created") }
func (EventType) TierChanged() EventType           { return EventType("placement.tier_changed") }

func (EventType) AccessPatternDetected() EventType { return EventType("access.pattern_detected") }

func (et EventType) String() string { return string(et) }

// Namespace returns the part before the first dot.
func (et EventType) Namespace() string {
	if i := strings.IndexByte(string(et), '.'); i > 0 {
		return string(et)[:i]
	}
	return string(et)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Event is one append-only record on the bus. Events are immutable after
// publication; payloads are plain data and must already be free of secrets.
type Event struct {
	ID        EventID   `json:"event_id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

func NewEvent(t EventType, payload any) Event {
	return Event{
		ID:        NewEventID(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Typed event payloads. The JSON shapes below are the wire contract for the
// push channel and /events/recent; keep field names stable.

type MigrationStartedPayload struct {
	JobID          JobID       `json:"job_id"`
	SourceProvider Provider    `json:"source_provider"`
	DestProvider   Provider    `json:"dest_provider"`
	TotalFiles     int         `json:"total_files"`
	Priority       JobPriority `json:"priority"`
}

type MigrationProgressPayload struct {
	JobID            JobID   `json:"job_id"`
	Progress         float64 `json:"progress_percentage"`
	FilesCompleted   int32   `json:"files_completed"`
	FilesFailed      int32   `json:"files_failed"`
	FilesSkipped     int32   `json:"files_skipped"`
	TotalFiles       int     `json:"total_files"`
	BytesTransferred int64   `json:"bytes_transferred"`
}

type MigrationFileCompletedPayload struct {
	JobID      JobID  `json:"job_id"`
	SourceKey  string `json:"source_key"`
	DestKey    string `json:"dest_key"`
	Bytes      int64  `json:"bytes"`
	DurationMs int64  `json:"duration_ms"`
}

type MigrationFileFailedPayload struct {
	JobID     JobID       `json:"job_id"`
	SourceKey string      `json:"source_key"`
	Attempts  int32       `json:"attempts"`
	Error     ErrorDetail `json:"error"`
}

// MigrationTerminalPayload closes out a job on the bus, whatever the outcome.
type MigrationTerminalPayload struct {
	JobID            JobID     `json:"job_id"`
	Status           JobStatus `json:"status"`
	FilesCompleted   int32     `json:"files_completed"`
	FilesFailed      int32     `json:"files_failed"`
	FilesSkipped     int32     `json:"files_skipped"`
	BytesTransferred int64     `json:"bytes_transferred"`
}

type CatalogRefreshPayload struct {
	RefreshID string                   `json:"refresh_id"`
	Providers []ProviderRefreshOutcome `json:"providers,omitempty"`
}

type ProviderEventPayload struct {
	Provider Provider `json:"provider"`
	Message  string   `json:"message"`
}

type RecommendationEventPayload struct {
	Provider        Provider `json:"provider"`
	Container       string   `json:"container"`
	Key             string   `json:"key"`
	RecommendedTier Tier     `json:"recommended_tier"`
	MonthlySavings  float64  `json:"monthly_savings"`
}

type TierChangedPayload struct {
	Provider  Provider `json:"provider"`
	Container string   `json:"container"`
	Key       string   `json:"key"`
	FromTier  Tier     `json:"from_tier"`
	ToTier    Tier     `json:"to_tier"`
}

type AccessPatternPayload struct {
	Provider       Provider `json:"provider"`
	Container      string   `json:"container"`
	Key            string   `json:"key"`
	PredictedCount float64  `json:"predicted_access_count"`
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EFrameType = FrameType("")

// FrameType tags one frame on the push channel.
type FrameType string

func (FrameType) Connection() FrameType { return FrameType("connection") }
func (FrameType) Heartbeat() FrameType  { return FrameType("heartbeat") }
func (FrameType) Event() FrameType      { return FrameType("event") }

// Frame is the single-JSON-object framing of the push channel. Event frames
// carry the domain event in Payload; its dotted type lives inside the payload,
// not in Type.
type Frame struct {
	Type      FrameType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

func NewEventFrame(ev Event) Frame {
	return Frame{
		Type:      EFrameType.Event(),
		Timestamp: ev.Timestamp,
		ID:        string(ev.ID),
		Payload:   ev,
	}
}

func NewHeartbeatFrame(seq uint64) Frame {
	return Frame{
		Type:      EFrameType.Heartbeat(),
		Timestamp: time.Now().UTC(),
		Payload:   map[string]uint64{"sequence": seq},
	}
}

func NewConnectionFrame(subscriberID string) Frame {
	return Frame{
		Type:      EFrameType.Connection(),
		Timestamp: time.Now().UTC(),
		ID:        subscriberID,
	}
}
