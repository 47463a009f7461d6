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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusTerminality(t *testing.T) {
	a := assert.New(t)

	a.False(EJobStatus.Pending().IsTerminal())
	a.False(EJobStatus.Running().IsTerminal())

	a.True(EJobStatus.Completed().IsTerminal())
	a.True(EJobStatus.PartiallyFailed().IsTerminal())
	a.True(EJobStatus.Failed().IsTerminal())
	a.True(EJobStatus.Cancelled().IsTerminal())

	// zero value is Pending, so a freshly decoded job is never terminal
	var zero JobStatus
	a.False(zero.IsTerminal())
}

func TestJobStatusWireForm(t *testing.T) {
	a := assert.New(t)

	a.Equal("PENDING", EJobStatus.Pending().Tag())
	a.Equal("PARTIALLY_FAILED", EJobStatus.PartiallyFailed().Tag())
	a.Equal("CANCELLED", EJobStatus.Cancelled().Tag())

	// the underscore form must parse back to the same status
	b, err := json.Marshal(EJobStatus.PartiallyFailed())
	a.NoError(err)
	a.Equal(`"PARTIALLY_FAILED"`, string(b))

	var parsed JobStatus
	a.NoError(json.Unmarshal(b, &parsed))
	a.Equal(EJobStatus.PartiallyFailed(), parsed)

	// parsing is case-insensitive
	a.NoError(parsed.Parse("running"))
	a.Equal(EJobStatus.Running(), parsed)

	a.Error(parsed.Parse("exploded"))
}

func TestJobStatusAtomicAccess(t *testing.T) {
	a := assert.New(t)

	status := EJobStatus.Pending()
	status.AtomicStore(EJobStatus.Running())
	a.Equal(EJobStatus.Running(), status.AtomicLoad())

	status.AtomicStore(EJobStatus.Completed())
	a.Equal(EJobStatus.Completed(), status.AtomicLoad())
}

func TestTransferStatusAccounting(t *testing.T) {
	a := assert.New(t)

	a.True(ETransferStatus.Failed().DidFail())
	a.False(ETransferStatus.Queued().DidFail())
	a.False(ETransferStatus.Verified().DidFail())

	a.True(ETransferStatus.Queued().ShouldTransfer())
	a.False(ETransferStatus.InFlight().ShouldTransfer())
	a.False(ETransferStatus.Failed().ShouldTransfer())

	// only Verified, Skipped and Failed count toward the finished tally
	a.True(ETransferStatus.Verified().IsDone())
	a.True(ETransferStatus.Skipped().IsDone())
	a.True(ETransferStatus.Failed().IsDone())
	a.False(ETransferStatus.Queued().IsDone())
	a.False(ETransferStatus.InFlight().IsDone())
	a.False(ETransferStatus.Copied().IsDone())
}

func TestTransferStatusWireForm(t *testing.T) {
	a := assert.New(t)

	a.Equal("IN_FLIGHT", ETransferStatus.InFlight().Tag())
	a.Equal("QUEUED", ETransferStatus.Queued().Tag())
	a.Equal("FAILED", ETransferStatus.Failed().Tag()) // negative value still has a name

	b, err := json.Marshal(ETransferStatus.InFlight())
	a.NoError(err)
	a.Equal(`"IN_FLIGHT"`, string(b))

	var parsed TransferStatus
	a.NoError(json.Unmarshal(b, &parsed))
	a.Equal(ETransferStatus.InFlight(), parsed)

	a.NoError(json.Unmarshal([]byte(`"FAILED"`), &parsed))
	a.True(parsed.DidFail())
}

func TestTierOrdering(t *testing.T) {
	a := assert.New(t)

	a.True(ETier.Archive().ColderThan(ETier.Cold()))
	a.True(ETier.Cold().ColderThan(ETier.Hot()))
	a.False(ETier.Hot().ColderThan(ETier.Hot()))

	a.True(ETier.Hot().WarmerThan(ETier.Warm()))
	a.False(ETier.None().WarmerThan(ETier.Hot())) // unset is not "warmer" than anything

	var tier Tier
	a.NoError(tier.Parse("archive"))
	a.Equal(ETier.Archive(), tier)
	a.Equal("ARCHIVE", tier.Tag())
}

func TestRoleGate(t *testing.T) {
	a := assert.New(t)

	a.True(ERole.Admin().AtLeast(ERole.User()))
	a.True(ERole.User().AtLeast(ERole.User()))
	a.False(ERole.Viewer().AtLeast(ERole.User()))
	a.True(ERole.Viewer().AtLeast(ERole.Viewer()))

	b, err := json.Marshal(ERole.Admin())
	a.NoError(err)
	a.Equal(`"admin"`, string(b))

	var r Role
	a.NoError(json.Unmarshal([]byte(`"VIEWER"`), &r))
	a.Equal(ERole.Viewer(), r)
}

func TestProviderParsing(t *testing.T) {
	a := assert.New(t)

	var p Provider
	a.NoError(p.Parse("aws"))
	a.Equal(EProvider.AWS(), p)
	a.Equal("AWS", p.Tag())

	a.NoError(p.Parse("Azure"))
	a.Equal(EProvider.Azure(), p)

	a.Error(p.Parse("dropbox"))

	// the mock backend is opt-in and never part of the canonical provider list
	a.Equal([]Provider{EProvider.AWS(), EProvider.Azure(), EProvider.GCP()}, RealProviders())
}

func TestErrorCodeClassification(t *testing.T) {
	a := assert.New(t)

	a.True(EErrorCode.Transient().Retryable())
	a.True(EErrorCode.QuotaExceeded().Retryable())

	a.False(EErrorCode.PermissionDenied().Retryable())
	a.False(EErrorCode.NotFound().Retryable())
	a.False(EErrorCode.InvalidArgument().Retryable())
	a.False(EErrorCode.Conflict().Retryable())
	a.False(EErrorCode.Unavailable().Retryable())

	a.Equal("PERMISSION_DENIED", EErrorCode.PermissionDenied().Tag())
	a.Equal("NOT_FOUND", EErrorCode.NotFound().Tag())
	a.Equal("QUOTA_EXCEEDED", EErrorCode.QuotaExceeded().Tag())
	a.Equal("INVALID_ARGUMENT", EErrorCode.InvalidArgument().Tag())
	a.Equal("UNAUTHENTICATED", EErrorCode.Unauthenticated().Tag())
	a.Equal("OVERLOADED", EErrorCode.Overloaded().Tag())

	var ec ErrorCode
	a.NoError(json.Unmarshal([]byte(`"NOT_FOUND"`), &ec))
	a.Equal(EErrorCode.NotFound(), ec)
}

func TestJobPriorityDefault(t *testing.T) {
	a := assert.New(t)

	// an empty string on the wire means the caller didn't care
	var p JobPriority
	a.NoError(json.Unmarshal([]byte(`""`), &p))
	a.Equal(EJobPriority.Normal(), p)

	a.NoError(json.Unmarshal([]byte(`"HIGH"`), &p))
	a.Equal(EJobPriority.High(), p)

	b, err := json.Marshal(EJobPriority.Low())
	a.NoError(err)
	a.Equal(`"low"`, string(b))
}

func TestJobIDRoundTrip(t *testing.T) {
	a := assert.New(t)

	id := NewJobID()
	a.False(id.IsEmpty())

	parsed, err := ParseJobID(id.String())
	a.NoError(err)
	a.Equal(id, parsed)

	_, err = ParseJobID("not-a-job-id")
	a.Error(err)

	var fromJSON JobID
	b, err := json.Marshal(id)
	a.NoError(err)
	a.NoError(json.Unmarshal(b, &fromJSON))
	a.Equal(id, fromJSON)

	a.True(JobID{}.IsEmpty())
}
