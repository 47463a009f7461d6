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
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/JeffreyRichter/enum/enum"
	"github.com/google/uuid"
)

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// JobID identifies one migration job for its entire lifetime, including across restarts.
type JobID uuid.UUID

func NewJobID() JobID { return JobID(uuid.New()) }

func ParseJobID(s string) (JobID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return JobID{}, fmt.Errorf("invalid job id %q: %w", s, err)
	}
	return JobID(u), nil
}

func (j JobID) String() string { return uuid.UUID(j).String() }
func (j JobID) IsEmpty() bool  { return uuid.UUID(j) == uuid.Nil }

func (j JobID) MarshalJSON() ([]byte, error) { return json.Marshal(j.String()) }

func (j *JobID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseJobID(s)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}

// EventID identifies one published event. Events are never mutated, so a plain
// string is all the identity we need.
type EventID string

func NewEventID() EventID { return EventID(uuid.NewString()) }

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EProvider = Provider(0)

// Provider tags the cloud backend an object lives in. The zero value is deliberately
// not a real provider so that an unset field is always detectable.
type Provider uint8

func (Provider) None() Provider  { return Provider(0) }
func (Provider) AWS() Provider   { return Provider(1) }
func (Provider) Azure() Provider { return Provider(2) }
func (Provider) GCP() Provider   { return Provider(3) }
func (Provider) Mock() Provider  { return Provider(4) } // test and local-run backend

func (p Provider) String() string {
	return enum.StringInt(p, reflect.TypeOf(p))
}

func (p *Provider) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(p), s, true)
	if err == nil {
		*p = val.(Provider)
	}
	return err
}

// Tag is the wire form: AWS, AZURE, GCP, MOCK.
func (p Provider) Tag() string { return strings.ToUpper(p.String()) }

func (p Provider) MarshalJSON() ([]byte, error) { return json.Marshal(p.Tag()) }

func (p *Provider) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return p.Parse(s)
}

// RealProviders returns the cloud backends in their canonical order. Lock ordering
// across catalog partitions follows this order.
func RealProviders() []Provider {
	return []Provider{EProvider.AWS(), EProvider.Azure(), EProvider.GCP()}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ETier = Tier(0)

// Tier is a storage temperature. Numeric order runs hot to cold, so "colder"
// comparisons are plain integer comparisons.
type Tier uint8

func (Tier) None() Tier    { return Tier(0) }
func (Tier) Hot() Tier     { return Tier(1) }
func (Tier) Warm() Tier    { return Tier(2) }
func (Tier) Cold() Tier    { return Tier(3) }
func (Tier) Archive() Tier { return Tier(4) }

func (t Tier) String() string {
	return enum.StringInt(t, reflect.TypeOf(t))
}

func (t *Tier) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(t), s, true)
	if err == nil {
		*t = val.(Tier)
	}
	return err
}

func (t Tier) Tag() string { return strings.ToUpper(t.String()) }

func (t Tier) ColderThan(other Tier) bool { return t > other }
func (t Tier) WarmerThan(other Tier) bool { return t != ETier.None() && t < other }

func (t Tier) MarshalJSON() ([]byte, error) { return json.Marshal(t.Tag()) }

func (t *Tier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return t.Parse(s)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EJobStatus = JobStatus(0)

// JobStatus indicates the status of a migration job; the default is Pending.
type JobStatus uint32 // Must be 32-bit for atomic operations

func (JobStatus) Pending() JobStatus         { return JobStatus(0) }
func (JobStatus) Running() JobStatus         { return JobStatus(1) }
func (JobStatus) Completed() JobStatus       { return JobStatus(2) }
func (JobStatus) PartiallyFailed() JobStatus { return JobStatus(3) }
func (JobStatus) Failed() JobStatus          { return JobStatus(4) }
func (JobStatus) Cancelled() JobStatus       { return JobStatus(5) }

func (j *JobStatus) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(j), s, true)
	if err == nil {
		*j = val.(JobStatus)
	}
	return err
}

func (j JobStatus) String() string {
	return enum.StringInt(j, reflect.TypeOf(j))
}

// Tag is the wire form: PENDING, RUNNING, COMPLETED, PARTIALLY_FAILED, FAILED, CANCELLED.
func (j JobStatus) Tag() string {
	if j == EJobStatus.PartiallyFailed() {
		return "PARTIALLY_FAILED"
	}
	return strings.ToUpper(j.String())
}

// IsTerminal reports whether no further transition out of this status is legal.
func (j JobStatus) IsTerminal() bool {
	switch j {
	case EJobStatus.Completed(), EJobStatus.PartiallyFailed(), EJobStatus.Failed(), EJobStatus.Cancelled():
		return true
	}
	return false
}

func (j *JobStatus) AtomicLoad() JobStatus {
	return JobStatus(atomic.LoadUint32((*uint32)(j)))
}

func (j *JobStatus) AtomicStore(newJobStatus JobStatus) {
	atomic.StoreUint32((*uint32)(j), uint32(newJobStatus))
}

func (j JobStatus) MarshalJSON() ([]byte, error) { return json.Marshal(j.Tag()) }

func (j *JobStatus) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return j.Parse(strings.ReplaceAll(s, "_", ""))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EJobPriority = JobPriority(0)

// JobPriority defines the scheduling priorities supported by the migration engine's
// ready channels. The default priority is Normal.
type JobPriority uint8

func (JobPriority) Normal() JobPriority { return JobPriority(0) }
func (JobPriority) Low() JobPriority    { return JobPriority(1) }
func (JobPriority) High() JobPriority   { return JobPriority(2) }

func (jp JobPriority) String() string {
	return enum.StringInt(jp, reflect.TypeOf(jp))
}

func (jp *JobPriority) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(jp), s, true)
	if err == nil {
		*jp = val.(JobPriority)
	}
	return err
}

func (jp JobPriority) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(jp.String()))
}

func (jp *JobPriority) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*jp = EJobPriority.Normal()
		return nil
	}
	return jp.Parse(s)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ETransferStatus = TransferStatus(0)

type TransferStatus int32 // Must be 32-bit for atomic operations; negative values are failures

// Transfer is queued and has not started yet.
func (TransferStatus) Queued() TransferStatus { return TransferStatus(0) }

// A worker owns the transfer and the copy is underway.
func (TransferStatus) InFlight() TransferStatus { return TransferStatus(1) }

// The copy finished; destination bytes are in place but not yet verified.
func (TransferStatus) Copied() TransferStatus { return TransferStatus(2) }

// Destination metadata matched the source. This is the only success terminal.
func (TransferStatus) Verified() TransferStatus { return TransferStatus(3) }

// The job was cancelled before this transfer started.
func (TransferStatus) Skipped() TransferStatus { return TransferStatus(4) }

// Transfer failed. Whether it re-enters Queued is the retry policy's call.
func (TransferStatus) Failed() TransferStatus { return TransferStatus(-1) }

func (ts TransferStatus) DidFail() bool { return ts < 0 }

// ShouldTransfer reports whether a worker still has work to do on this file.
func (ts TransferStatus) ShouldTransfer() bool {
	return ts == ETransferStatus.Queued()
}

// IsDone reports whether the transfer counts toward the job's finished tally:
// verified, failed, or skipped.
func (ts TransferStatus) IsDone() bool {
	return ts == ETransferStatus.Verified() || ts == ETransferStatus.Skipped() || ts.DidFail()
}

func (ts TransferStatus) String() string {
	return enum.StringInt(ts, reflect.TypeOf(ts))
}

func (ts *TransferStatus) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(ts), s, true)
	if err == nil {
		*ts = val.(TransferStatus)
	}
	return err
}

// Tag is the wire form: QUEUED, IN_FLIGHT, COPIED, VERIFIED, FAILED, SKIPPED.
func (ts TransferStatus) Tag() string {
	if ts == ETransferStatus.InFlight() {
		return "IN_FLIGHT"
	}
	return strings.ToUpper(ts.String())
}

func (ts *TransferStatus) AtomicLoad() TransferStatus {
	return TransferStatus(atomic.LoadInt32((*int32)(ts)))
}

func (ts *TransferStatus) AtomicStore(newTransferStatus TransferStatus) {
	atomic.StoreInt32((*int32)(ts), int32(newTransferStatus))
}

func (ts TransferStatus) MarshalJSON() ([]byte, error) { return json.Marshal(ts.Tag()) }

func (ts *TransferStatus) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return ts.Parse(strings.ReplaceAll(s, "_", ""))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ERole = Role(0)

// Role is the authorization level carried inside a bearer token. Numeric order is
// the privilege order, so gates are a single comparison.
type Role uint8

func (Role) Viewer() Role { return Role(0) }
func (Role) User() Role   { return Role(1) }
func (Role) Admin() Role  { return Role(2) }

func (r Role) AtLeast(min Role) bool { return r >= min }

func (r Role) String() string {
	return enum.StringInt(r, reflect.TypeOf(r))
}

func (r *Role) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(r), s, true)
	if err == nil {
		*r = val.(Role)
	}
	return err
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(r.String()))
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return r.Parse(s)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EErrorCode = ErrorCode(0)

// ErrorCode is the uniform classification every provider-native error is folded
// into at the adapter boundary. Nothing above the adapters ever inspects a
// provider SDK error directly.
type ErrorCode uint8

func (ErrorCode) None() ErrorCode             { return ErrorCode(0) }
func (ErrorCode) PermissionDenied() ErrorCode { return ErrorCode(1) }
func (ErrorCode) NotFound() ErrorCode         { return ErrorCode(2) }
func (ErrorCode) QuotaExceeded() ErrorCode    { return ErrorCode(3) }
func (ErrorCode) Transient() ErrorCode        { return ErrorCode(4) }
func (ErrorCode) InvalidArgument() ErrorCode  { return ErrorCode(5) }
func (ErrorCode) Unavailable() ErrorCode      { return ErrorCode(6) }
func (ErrorCode) Conflict() ErrorCode         { return ErrorCode(7) }

// The codes below never come out of a provider adapter; they originate in the
// auth gate, the engine's admission control, or the dispatcher itself.
func (ErrorCode) Unauthenticated() ErrorCode { return ErrorCode(8) }
func (ErrorCode) Forbidden() ErrorCode       { return ErrorCode(9) }
func (ErrorCode) Overloaded() ErrorCode      { return ErrorCode(10) }
func (ErrorCode) Internal() ErrorCode        { return ErrorCode(11) }

func (ec ErrorCode) String() string {
	return enum.StringInt(ec, reflect.TypeOf(ec))
}

func (ec *ErrorCode) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(ec), s, true)
	if err == nil {
		*ec = val.(ErrorCode)
	}
	return err
}

// Tag is the wire form: PERMISSION_DENIED, NOT_FOUND, QUOTA_EXCEEDED, TRANSIENT,
// INVALID_ARGUMENT, UNAVAILABLE, CONFLICT, UNAUTHENTICATED, FORBIDDEN,
// OVERLOADED, INTERNAL.
func (ec ErrorCode) Tag() string {
	switch ec {
	case EErrorCode.PermissionDenied():
		return "PERMISSION_DENIED"
	case EErrorCode.NotFound():
		return "NOT_FOUND"
	case EErrorCode.QuotaExceeded():
		return "QUOTA_EXCEEDED"
	case EErrorCode.InvalidArgument():
		return "INVALID_ARGUMENT"
	default:
		return strings.ToUpper(ec.String())
	}
}

// Retryable reports whether the engine's retry policy may attempt the operation
// again. QuotaExceeded is retryable exactly once, after a long delay; the policy
// enforces that, not this predicate.
func (ec ErrorCode) Retryable() bool {
	return ec == EErrorCode.Transient() || ec == EErrorCode.QuotaExceeded()
}

func (ec ErrorCode) MarshalJSON() ([]byte, error) { return json.Marshal(ec.Tag()) }

func (ec *ErrorCode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return ec.Parse(strings.ReplaceAll(s, "_", ""))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ELogLevel = LogLevel(0)

type LogLevel uint8

func (LogLevel) None() LogLevel    { return LogLevel(0) }
func (LogLevel) Fatal() LogLevel   { return LogLevel(1) }
func (LogLevel) Error() LogLevel   { return LogLevel(2) }
func (LogLevel) Warning() LogLevel { return LogLevel(3) }
func (LogLevel) Info() LogLevel    { return LogLevel(4) }
func (LogLevel) Debug() LogLevel   { return LogLevel(5) }

func (ll LogLevel) String() string {
	return enum.StringInt(ll, reflect.TypeOf(ll))
}

func (ll *LogLevel) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(ll), s, true)
	if err == nil {
		*ll = val.(LogLevel)
	}
	return err
}

// Named levels, so call sites read like the stdlib's.
var (
	LogNone    = ELogLevel.None()
	LogFatal   = ELogLevel.Fatal()
	LogError   = ELogLevel.Error()
	LogWarning = ELogLevel.Warning()
	LogInfo    = ELogLevel.Info()
	LogDebug   = ELogLevel.Debug()
)
