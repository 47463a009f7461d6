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
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudspan/cloudspan/adapter"
	"github.com/cloudspan/cloudspan/catalog"
	"github.com/cloudspan/cloudspan/common"
)

// Run drains the ready queues with cfg.MaxWorkers job runners until ctx is
// cancelled. Higher-priority channels are always offered first; a high job
// admitted while normals are queued is still picked up next.
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.workerLoop(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (e *Engine) workerLoop(ctx context.Context) {
	for {
		// nested selects give strict priority: only when the higher
		// channels are empty does the worker consider the next one down
		select {
		case j := <-e.highCh:
			e.dispatch(ctx, j)
			continue
		default:
		}
		select {
		case j := <-e.highCh:
			e.dispatch(ctx, j)
			continue
		case j := <-e.normalCh:
			e.dispatch(ctx, j)
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return
		case j := <-e.highCh:
			e.dispatch(ctx, j)
		case j := <-e.normalCh:
			e.dispatch(ctx, j)
		case j := <-e.lowCh:
			e.dispatch(ctx, j)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, j *job) {
	atomic.AddInt64(&e.queued, -1)
	// a PENDING job cancelled before pickup was finalized by Cancel
	if j.status.AtomicLoad().IsTerminal() {
		return
	}
	e.runJob(ctx, j)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func (e *Engine) runJob(ctx context.Context, j *job) {
	now := time.Now().UTC()
	j.mu.Lock()
	j.startedAt = &now
	j.mu.Unlock()
	j.status.AtomicStore(common.EJobStatus.Running())
	e.persist(j)
	e.publish(common.NewEvent(common.EEventType.MigrationStarted(), common.MigrationStartedPayload{
		JobID:          j.id,
		SourceProvider: j.sourceProvider,
		DestProvider:   j.destProvider,
		TotalFiles:     j.totalFiles(),
		Priority:       j.priority,
	}))
	e.logf(common.LogInfo, "job "+j.id.String()+" started, "+strconv.Itoa(j.totalFiles())+" files")

	// fan the files out to a small per-job pool; each file additionally
	// holds a slot on the global limiter and on its route's limiter, so
	// one big job cannot starve the rest of the fleet
	indexes := make(chan int)
	var wg sync.WaitGroup
	parallel := e.cfg.PerJobParallelism
	if parallel > j.totalFiles() {
		parallel = j.totalFiles()
	}
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				e.transferFile(ctx, j, j.transfers[idx])
			}
		}()
	}
	for idx, t := range j.transfers {
		// a resumed job carries files that already reached a terminal state
		if t.status.AtomicLoad().ShouldTransfer() {
			indexes <- idx
		}
	}
	close(indexes)
	wg.Wait()

	// shutdown mid-job, not a cancel: no terminal verdict. The job stays
	// RUNNING in the store so Resume re-queues its remaining files.
	if ctx.Err() != nil && !j.cancelled() {
		e.persist(j)
		return
	}
	e.finalize(j, e.terminalStatus(j))
}

// terminalStatus derives the job outcome from the per-file tallies.
func (e *Engine) terminalStatus(j *job) common.JobStatus {
	if j.cancelled() {
		return common.EJobStatus.Cancelled()
	}
	failed := atomic.LoadInt32(&j.filesFailed)
	completed := atomic.LoadInt32(&j.filesCompleted)
	switch {
	case failed == 0:
		return common.EJobStatus.Completed()
	case completed > 0:
		return common.EJobStatus.PartiallyFailed()
	default:
		return common.EJobStatus.Failed()
	}
}

func (e *Engine) finalize(j *job, status common.JobStatus) {
	now := time.Now().UTC()
	j.mu.Lock()
	j.completedAt = &now
	j.mu.Unlock()
	j.status.AtomicStore(status)
	e.persist(j)

	eventType := common.EEventType.MigrationCompleted()
	switch status {
	case common.EJobStatus.Cancelled():
		eventType = common.EEventType.MigrationCancelled()
	case common.EJobStatus.Failed():
		eventType = common.EEventType.MigrationFailed()
	}
	e.publish(common.NewEvent(eventType, common.MigrationTerminalPayload{
		JobID:            j.id,
		Status:           status,
		FilesCompleted:   atomic.LoadInt32(&j.filesCompleted),
		FilesFailed:      atomic.LoadInt32(&j.filesFailed),
		FilesSkipped:     atomic.LoadInt32(&j.filesSkipped),
		BytesTransferred: atomic.LoadInt64(&j.bytesTransferred),
	}))
	if e.metrics != nil {
		e.metrics.JobsFinished.WithLabelValues(strings.ToLower(status.Tag())).Inc()
		e.metrics.ActiveJobs.Dec()
	}
	e.logf(common.LogInfo, "job "+j.id.String()+" finished "+status.Tag())
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// transferFile drives one file through IN_FLIGHT → COPIED → VERIFIED with the
// retry policy, or into SKIPPED/FAILED. Every terminal file transition is
// persisted and announced.
func (e *Engine) transferFile(ctx context.Context, j *job, t *fileTransfer) {
	if e.metrics != nil {
		e.metrics.QueuedFiles.Dec()
	}
	if j.cancelled() {
		e.skipFile(j, t)
		return
	}
	// engine shutdown, not a cancel: the file stays QUEUED so Resume
	// picks it back up in the next process
	if ctx.Err() != nil {
		return
	}

	// the limiters only watch the engine context, so a failed Acquire is a
	// shutdown unless the job was cancelled while we waited
	route := e.routes[routeKey{j.sourceProvider, j.destProvider}]
	if err := e.global.Acquire(ctx, 1); err != nil {
		if j.cancelled() {
			e.skipFile(j, t)
		}
		return
	}
	defer e.global.Release(1)
	if route != nil {
		if err := route.Acquire(ctx, 1); err != nil {
			if j.cancelled() {
				e.skipFile(j, t)
			}
			return
		}
		defer route.Release(1)
	}
	if j.cancelled() {
		e.skipFile(j, t)
		return
	}

	atomic.AddInt64(&e.activeTransfers, 1)
	if e.metrics != nil {
		e.metrics.ActiveTransfers.Inc()
	}
	defer func() {
		atomic.AddInt64(&e.activeTransfers, -1)
		if e.metrics != nil {
			e.metrics.ActiveTransfers.Dec()
		}
	}()

	t.status.AtomicStore(common.ETransferStatus.InFlight())
	started := time.Now()
	policy := newRetryPolicy(e.cfg)

	var bytes int64
	var err error
	for {
		attempt := atomic.AddInt32(&t.attempts, 1)
		bytes, err = e.attemptOnce(ctx, j, t)
		if err == nil {
			break
		}
		if ctx.Err() != nil && !j.cancelled() {
			// the attempt died with the process, not on its own merits;
			// requeue it for the next run
			t.status.AtomicStore(common.ETransferStatus.Queued())
			return
		}
		delay, again := policy.shouldRetry(common.CodeOf(err), attempt)
		if !again {
			e.failFile(j, t, err)
			return
		}
		e.logf(common.LogWarning, "job "+j.id.String()+" file "+t.sourceKey+
			" attempt failed ("+common.CodeOf(err).Tag()+"), retrying in "+delay.String())
		select {
		case <-time.After(delay):
		case <-j.cancelCh:
			e.skipFile(j, t)
			return
		case <-ctx.Done():
			if j.cancelled() {
				e.skipFile(j, t)
				return
			}
			t.status.AtomicStore(common.ETransferStatus.Queued())
			return
		}
	}

	e.completeFile(j, t, bytes, time.Since(started))
}

// attemptOnce is one full copy-and-verify pass; it is idempotent, a repeat
// after a half-done attempt just overwrites the destination object again.
func (e *Engine) attemptOnce(ctx context.Context, j *job, t *fileTransfer) (int64, error) {
	src, _ := e.adapters.Get(j.sourceProvider)
	dst, _ := e.adapters.Get(j.destProvider)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.FileDeadline)
	defer cancel()

	srcRef, err := src.Stat(callCtx, j.sourceContainer, t.sourceKey)
	if err != nil {
		return 0, err
	}

	samePlace := j.sourceProvider == j.destProvider && j.sourceContainer == j.destContainer &&
		t.sourceKey == t.destKey
	var bytes int64
	switch {
	case samePlace:
		// in-place re-tier, no data movement
		if err := dst.SetStorageClass(callCtx, j.destContainer, t.destKey, j.targetTier); err != nil {
			return 0, err
		}
		bytes = srcRef.SizeBytes
	case j.sourceProvider == j.destProvider:
		bytes, err = dst.Copy(callCtx, j.sourceContainer, t.sourceKey, j.destContainer, t.destKey, j.targetTier)
		if err != nil {
			return 0, err
		}
	default:
		body, size, err := src.Get(callCtx, j.sourceContainer, t.sourceKey)
		if err != nil {
			return 0, err
		}
		bytes, err = dst.Put(callCtx, j.destContainer, t.destKey, body, size, j.targetTier)
		_ = body.Close()
		if err != nil {
			return 0, err
		}
	}

	t.status.AtomicStore(common.ETransferStatus.Copied())

	// verify: the destination must exist with the source's size; the etag is
	// only comparable when both sides are the same provider
	dstRef, err := dst.Stat(callCtx, j.destContainer, t.destKey)
	if err != nil {
		return 0, err
	}
	// class names are native to the adapter that produced them, so the
	// adapter's own provider resolves them, not the route's
	if samePlace && adapter.TierFromStorageClass(dst.Provider(), dstRef.StorageClass) != j.targetTier {
		return 0, common.NewCloudError(common.EErrorCode.Transient(), "verify",
			"storage class for "+t.destKey+" has not reached "+j.targetTier.Tag())
	}
	if !samePlace && dstRef.SizeBytes != srcRef.SizeBytes {
		return 0, common.NewCloudError(common.EErrorCode.Transient(), "verify",
			"destination size mismatch for "+t.destKey)
	}
	if j.sourceProvider == j.destProvider && srcRef.ETag != "" && dstRef.ETag != "" &&
		!samePlace && srcRef.ETag != dstRef.ETag {
		return 0, common.NewCloudError(common.EErrorCode.Transient(), "verify",
			"destination etag mismatch for "+t.destKey)
	}

	t.status.AtomicStore(common.ETransferStatus.Verified())

	if j.deleteSource && !samePlace {
		// the copy is verified; a failed source delete downgrades the move
		// to a copy but never the file's outcome
		if err := src.Delete(callCtx, j.sourceContainer, t.sourceKey); err != nil {
			e.logf(common.LogWarning, "job "+j.id.String()+" verified but could not delete source "+
				t.sourceKey+": "+common.CodeOf(err).Tag())
		}
	}
	return bytes, nil
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func (e *Engine) completeFile(j *job, t *fileTransfer, bytes int64, took time.Duration) {
	atomic.StoreInt64(&t.bytesTransferred, bytes)
	atomic.AddInt64(&j.bytesTransferred, bytes)
	atomic.AddInt32(&j.filesCompleted, 1)
	if e.metrics != nil {
		e.metrics.FilesCopied.Inc()
		e.metrics.BytesMoved.Add(float64(bytes))
	}
	e.persist(j)
	e.publish(common.NewEvent(common.EEventType.MigrationFileCompleted(), common.MigrationFileCompletedPayload{
		JobID:      j.id,
		SourceKey:  t.sourceKey,
		DestKey:    t.destKey,
		Bytes:      bytes,
		DurationMs: took.Milliseconds(),
	}))
	e.applyCatalogEffect(j, t, bytes)
	e.publishProgress(j)
}

func (e *Engine) failFile(j *job, t *fileTransfer, err error) {
	d := common.DetailOf(err)
	detail := &d
	j.mu.Lock()
	t.lastError = detail
	j.mu.Unlock()
	t.status.AtomicStore(common.ETransferStatus.Failed())
	atomic.AddInt32(&j.filesFailed, 1)
	if e.metrics != nil {
		e.metrics.FilesFailed.Inc()
	}
	e.persist(j)
	e.publish(common.NewEvent(common.EEventType.MigrationFileFailed(), common.MigrationFileFailedPayload{
		JobID:     j.id,
		SourceKey: t.sourceKey,
		Attempts:  atomic.LoadInt32(&t.attempts),
		Error:     *detail,
	}))
	e.publishProgress(j)
}

func (e *Engine) skipFile(j *job, t *fileTransfer) {
	t.status.AtomicStore(common.ETransferStatus.Skipped())
	atomic.AddInt32(&j.filesSkipped, 1)
	if e.metrics != nil {
		e.metrics.FilesSkipped.Inc()
	}
	e.persist(j)
	e.publishProgress(j)
}

// publishProgress emits migration.progress at most once per whole percent.
func (e *Engine) publishProgress(j *job) {
	j.mu.Lock()
	pct := int(j.progress())
	if pct <= j.lastProgress {
		j.mu.Unlock()
		return
	}
	j.lastProgress = pct
	payload := common.MigrationProgressPayload{
		JobID:            j.id,
		Progress:         j.progress(),
		FilesCompleted:   atomic.LoadInt32(&j.filesCompleted),
		FilesFailed:      atomic.LoadInt32(&j.filesFailed),
		FilesSkipped:     atomic.LoadInt32(&j.filesSkipped),
		TotalFiles:       j.totalFiles(),
		BytesTransferred: atomic.LoadInt64(&j.bytesTransferred),
	}
	j.mu.Unlock()
	e.publish(common.NewEvent(common.EEventType.MigrationProgress(), payload))
}

// applyCatalogEffect folds the verified transfer into the catalog so reads
// stay current until the next full refresh.
func (e *Engine) applyCatalogEffect(j *job, t *fileTransfer, bytes int64) {
	if e.catalog == nil {
		return
	}
	e.catalog.Apply([]catalog.Effect{{
		Dest: common.ObjectRef{
			Provider:     j.destProvider,
			Container:    j.destContainer,
			Key:          t.destKey,
			SizeBytes:    bytes,
			LastModified: time.Now().UTC(),
		},
		DestTier:     j.targetTier,
		RemoveSource: j.deleteSource && !(j.sourceProvider == j.destProvider && j.sourceContainer == j.destContainer && t.sourceKey == t.destKey),
		Source: common.ObjectKey{
			Provider:  j.sourceProvider,
			Container: j.sourceContainer,
			Key:       t.sourceKey,
		},
	}})
}
