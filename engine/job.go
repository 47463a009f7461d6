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

package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudspan/cloudspan/common"
	"github.com/cloudspan/cloudspan/store"
)

// fileTransfer is one per-file subtask. A transfer never outlives its job; the
// job's slice owns it. Status and byte counters are atomics so snapshots read
// them without the job lock; lastError is only touched under the job lock.
type fileTransfer struct {
	bytesTransferred int64 // must be 64-bit aligned; keep first
	status           common.TransferStatus
	attempts         int32

	sourceKey string
	destKey   string
	lastError *common.ErrorDetail
}

// job is the engine's live state for one migration. The mutex guards the
// transfer slice's non-atomic fields, the timestamps, and the done tally so
// progress can never run backwards.
type job struct {
	bytesTransferred int64 // 64-bit atomics first
	filesCompleted   int32
	filesFailed      int32
	filesSkipped     int32
	status           common.JobStatus
	cancelRequested  int32

	id              common.JobID
	owner           string
	sourceProvider  common.Provider
	destProvider    common.Provider
	sourceContainer string
	destContainer   string
	priority        common.JobPriority
	deleteSource    bool
	targetTier      common.Tier
	dedupHash       string
	createdAt       time.Time

	mu           sync.Mutex
	startedAt    *time.Time
	completedAt  *time.Time
	transfers    []*fileTransfer
	lastProgress int // last whole percent published, rate-limits progress events
	cancelOnce   sync.Once
	cancelCh     chan struct{}
}

func (j *job) totalFiles() int { return len(j.transfers) }

func (j *job) cancelled() bool { return atomic.LoadInt32(&j.cancelRequested) != 0 }

func (j *job) requestCancel() {
	atomic.StoreInt32(&j.cancelRequested, 1)
	j.cancelOnce.Do(func() { close(j.cancelCh) })
}

// doneFiles is completed + failed + skipped; the progress numerator.
func (j *job) doneFiles() int32 {
	return atomic.LoadInt32(&j.filesCompleted) +
		atomic.LoadInt32(&j.filesFailed) +
		atomic.LoadInt32(&j.filesSkipped)
}

// progress only ever grows: doneFiles is a sum of monotone counters and the
// total is fixed at creation.
func (j *job) progress() float64 {
	total := j.totalFiles()
	if total == 0 {
		return 0
	}
	return 100 * float64(j.doneFiles()) / float64(total)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func (j *job) summary() common.JobSummary {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.summaryLocked()
}

func (j *job) summaryLocked() common.JobSummary {
	return common.JobSummary{
		JobID:            j.id,
		Owner:            j.owner,
		SourceProvider:   j.sourceProvider,
		DestProvider:     j.destProvider,
		SourceContainer:  j.sourceContainer,
		DestContainer:    j.destContainer,
		Priority:         j.priority,
		Status:           j.status.AtomicLoad(),
		Progress:         j.progress(),
		TotalFiles:       int32(j.totalFiles()),
		FilesCompleted:   atomic.LoadInt32(&j.filesCompleted),
		FilesFailed:      atomic.LoadInt32(&j.filesFailed),
		FilesSkipped:     atomic.LoadInt32(&j.filesSkipped),
		BytesTransferred: atomic.LoadInt64(&j.bytesTransferred),
		DeleteSource:     j.deleteSource,
		TargetTier:       j.targetTier,
		CreatedAt:        j.createdAt,
		StartedAt:        j.startedAt,
		CompletedAt:      j.completedAt,
	}
}

func (j *job) detail() common.JobDetail {
	j.mu.Lock()
	defer j.mu.Unlock()
	files := make([]common.TransferDetail, len(j.transfers))
	for i, t := range j.transfers {
		files[i] = common.TransferDetail{
			SourceKey:        t.sourceKey,
			DestKey:          t.destKey,
			State:            t.status.AtomicLoad(),
			BytesTransferred: atomic.LoadInt64(&t.bytesTransferred),
			Attempts:         atomic.LoadInt32(&t.attempts),
			LastError:        t.lastError,
		}
	}
	return common.JobDetail{JobSummary: j.summaryLocked(), Files: files}
}

// record is the durable snapshot written to the job store on every transition.
func (j *job) record() store.JobRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	files := make([]store.FileRecord, len(j.transfers))
	for i, t := range j.transfers {
		files[i] = store.FileRecord{
			SourceKey:        t.sourceKey,
			DestKey:          t.destKey,
			State:            t.status.AtomicLoad(),
			BytesTransferred: atomic.LoadInt64(&t.bytesTransferred),
			Attempts:         atomic.LoadInt32(&t.attempts),
			LastError:        t.lastError,
		}
	}
	return store.JobRecord{
		JobID:           j.id,
		Owner:           j.owner,
		SourceProvider:  j.sourceProvider,
		DestProvider:    j.destProvider,
		SourceContainer: j.sourceContainer,
		DestContainer:   j.destContainer,
		Priority:        j.priority,
		Status:          j.status.AtomicLoad(),
		DeleteSource:    j.deleteSource,
		TargetTier:      j.targetTier,
		DedupHash:       j.dedupHash,
		CreatedAt:       j.createdAt,
		StartedAt:       j.startedAt,
		CompletedAt:     j.completedAt,
		Files:           files,
	}
}

// jobFromRecord rebuilds live state on resume. Files stranded IN_FLIGHT or
// COPIED by a shutdown go back to QUEUED; the copy is idempotent, so repeating
// it is safe. Done tallies are recomputed from the file states.
func jobFromRecord(rec store.JobRecord) *job {
	j := &job{
		id:              rec.JobID,
		owner:           rec.Owner,
		sourceProvider:  rec.SourceProvider,
		destProvider:    rec.DestProvider,
		sourceContainer: rec.SourceContainer,
		destContainer:   rec.DestContainer,
		priority:        rec.Priority,
		deleteSource:    rec.DeleteSource,
		targetTier:      rec.TargetTier,
		dedupHash:       rec.DedupHash,
		createdAt:       rec.CreatedAt,
		startedAt:       rec.StartedAt,
		completedAt:     rec.CompletedAt,
		cancelCh:        make(chan struct{}),
	}
	j.status.AtomicStore(rec.Status)
	for _, f := range rec.Files {
		t := &fileTransfer{
			sourceKey: f.SourceKey,
			destKey:   f.DestKey,
			attempts:  f.Attempts,
			lastError: f.LastError,
		}
		state := f.State
		if !rec.Status.IsTerminal() &&
			(state == common.ETransferStatus.InFlight() || state == common.ETransferStatus.Copied()) {
			state = common.ETransferStatus.Queued()
		}
		t.status.AtomicStore(state)
		switch {
		case state == common.ETransferStatus.Verified():
			j.filesCompleted++
			j.bytesTransferred += f.BytesTransferred
			atomic.StoreInt64(&t.bytesTransferred, f.BytesTransferred)
		case state == common.ETransferStatus.Skipped():
			j.filesSkipped++
		case state.DidFail():
			j.filesFailed++
		}
		j.transfers = append(j.transfers, t)
	}
	return j
}
