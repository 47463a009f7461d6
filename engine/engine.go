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

// Package engine creates, schedules, executes and reports on migration jobs.
// One job holds one FileTransfer per requested key; a bounded worker pool
// drains a priority-ordered ready queue and moves each file through
// QUEUED → IN_FLIGHT → COPIED → VERIFIED, persisting every transition and
// emitting lifecycle events on the bus.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/semaphore"

	"github.com/cloudspan/cloudspan/adapter"
	"github.com/cloudspan/cloudspan/catalog"
	"github.com/cloudspan/cloudspan/common"
	"github.com/cloudspan/cloudspan/metricsint"
	"github.com/cloudspan/cloudspan/store"
)

// Publisher is the slice of the event bus the engine needs.
type Publisher interface {
	Publish(common.Event)
}

// CatalogApplier folds verified transfers back into the object catalog.
type CatalogApplier interface {
	Apply(effects []catalog.Effect)
}

type Config struct {
	MaxWorkers            int           // worker pool size and global transfer cap
	MaxAttempts           int           // attempts per file before a transient failure is permanent
	PerRouteConcurrency   int           // concurrent transfers per (source, dest) provider pair
	PerJobParallelism     int           // concurrent transfers within one job
	ReadyQueueCapacity    int           // admitted-but-not-running jobs; beyond this, OVERLOADED
	FileDeadline          time.Duration // per provider call during a transfer
	MaxActiveJobsPerOwner int
	MaxFilesPerJob        int
	DedupWindow           time.Duration // identical resubmissions inside this window return the same job
	RetryDelay            time.Duration // base of the exponential backoff
	MaxRetryDelay         time.Duration
	QuotaRetryDelay       time.Duration // the single long QUOTA_EXCEEDED retry

	// DefaultContainers fills in source/dest containers the request left empty.
	DefaultContainers map[common.Provider]string
}

func (c Config) withDefaults() Config {
	def := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	defDur := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&c.MaxWorkers, 16)
	def(&c.MaxAttempts, 3)
	def(&c.PerRouteConcurrency, 4)
	def(&c.PerJobParallelism, 3)
	def(&c.ReadyQueueCapacity, 256)
	def(&c.MaxActiveJobsPerOwner, 8)
	def(&c.MaxFilesPerJob, 1000)
	defDur(&c.FileDeadline, 60*time.Second)
	defDur(&c.DedupWindow, 10*time.Minute)
	defDur(&c.RetryDelay, 2*time.Second)
	defDur(&c.MaxRetryDelay, 60*time.Second)
	defDur(&c.QuotaRetryDelay, 30*time.Second)
	return c
}

type routeKey struct {
	src, dst common.Provider
}

type dedupEntry struct {
	jobID common.JobID
	at    time.Time
}

type Engine struct {
	activeTransfers int64 // 64-bit atomics first

	cfg      Config
	adapters adapter.Set
	bus      Publisher
	catalog  CatalogApplier
	jobs     store.JobStore
	metrics  *metricsint.Metrics
	logger   common.ILogger

	// Lock order is always jobsMu before any per-job mutex; the ready
	// channels are lock-free hand-off and sit outside the hierarchy.
	jobsMu sync.RWMutex
	byID   map[common.JobID]*job

	highCh   chan *job
	normalCh chan *job
	lowCh    chan *job
	queued   int64 // jobs admitted and not yet picked up, all priorities

	dedupMu sync.Mutex
	dedup   *lru.Cache // file-list hash -> dedupEntry

	global *semaphore.Weighted
	routes map[routeKey]*semaphore.Weighted
}

func NewEngine(cfg Config, adapters adapter.Set, jobs store.JobStore, bus Publisher,
	cat CatalogApplier, metrics *metricsint.Metrics, logger common.ILogger) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:      cfg,
		adapters: adapters,
		bus:      bus,
		catalog:  cat,
		jobs:     jobs,
		metrics:  metrics,
		logger:   logger,
		byID:     make(map[common.JobID]*job),
		highCh:   make(chan *job, cfg.ReadyQueueCapacity),
		normalCh: make(chan *job, cfg.ReadyQueueCapacity),
		lowCh:    make(chan *job, cfg.ReadyQueueCapacity),
		dedup:    lru.New(4096),
		global:   semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		routes:   make(map[routeKey]*semaphore.Weighted),
	}
	for _, src := range adapters.Providers() {
		for _, dst := range adapters.Providers() {
			e.routes[routeKey{src, dst}] = semaphore.NewWeighted(int64(cfg.PerRouteConcurrency))
		}
	}
	return e
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Create validates and admits one migration job. On success the job is
// persisted in PENDING, enqueued by priority, and its id returned. An
// identical resubmission inside the dedup window returns the existing id
// instead of a new job.
func (e *Engine) Create(ctx context.Context, owner string, req common.CreateMigrationRequest) (common.JobID, error) {
	invalid := func(msg string) (common.JobID, error) {
		return common.JobID{}, common.NewCloudError(common.EErrorCode.InvalidArgument(), "create_migration", msg)
	}
	if len(req.FileList) == 0 {
		return invalid("file list must not be empty")
	}
	if len(req.FileList) > e.cfg.MaxFilesPerJob {
		return invalid("file list exceeds the configured maximum")
	}
	srcAdapter, err := e.adapters.Get(req.SourceProvider)
	if err != nil {
		return common.JobID{}, err
	}
	if _, err := e.adapters.Get(req.DestProvider); err != nil {
		return common.JobID{}, err
	}
	srcContainer := common.IffString(req.SourceContainer != "", req.SourceContainer,
		e.cfg.DefaultContainers[req.SourceProvider])
	dstContainer := common.IffString(req.DestContainer != "", req.DestContainer,
		e.cfg.DefaultContainers[req.DestProvider])
	if srcContainer == "" || dstContainer == "" {
		return invalid("source and destination containers are required")
	}
	inPlaceRetier := req.SourceProvider == req.DestProvider && srcContainer == dstContainer
	if inPlaceRetier && req.TargetTier == common.ETier.None() {
		return invalid("source and destination are the same; set target_tier for an in-place re-tier")
	}

	// identical recent submission returns the existing job
	hash := dedupHash(owner, req.SourceProvider, req.DestProvider, srcContainer, dstContainer, req.FileList)
	if id, ok := e.recentDuplicate(hash); ok {
		return id, nil
	}

	if active := e.activeJobsFor(owner); active >= e.cfg.MaxActiveJobsPerOwner {
		return common.JobID{}, common.NewCloudError(common.EErrorCode.Overloaded(), "create_migration",
			"active job cap reached for this principal")
	}

	// one stat on a representative file proves the source container is
	// reachable with our credentials; a missing file is fine, per-file
	// handling owns that.
	statCtx, cancel := context.WithTimeout(ctx, e.cfg.FileDeadline)
	_, statErr := srcAdapter.Stat(statCtx, srcContainer, req.FileList[0])
	cancel()
	if statErr != nil && common.CodeOf(statErr) != common.EErrorCode.NotFound() {
		return common.JobID{}, statErr
	}

	j := &job{
		id:              common.NewJobID(),
		owner:           owner,
		sourceProvider:  req.SourceProvider,
		destProvider:    req.DestProvider,
		sourceContainer: srcContainer,
		destContainer:   dstContainer,
		priority:        req.Priority,
		deleteSource:    req.DeleteSource,
		targetTier:      req.TargetTier,
		dedupHash:       hash,
		createdAt:       time.Now().UTC(),
		cancelCh:        make(chan struct{}),
	}
	j.status.AtomicStore(common.EJobStatus.Pending())
	for _, key := range req.FileList {
		j.transfers = append(j.transfers, &fileTransfer{sourceKey: key, destKey: key})
	}

	if err := e.jobs.PutJob(j.record()); err != nil {
		return common.JobID{}, err
	}

	e.jobsMu.Lock()
	e.byID[j.id] = j
	e.jobsMu.Unlock()

	if !e.enqueue(j) {
		e.jobsMu.Lock()
		delete(e.byID, j.id)
		e.jobsMu.Unlock()
		_ = e.jobs.DeleteJob(j.id)
		return common.JobID{}, common.NewCloudError(common.EErrorCode.Overloaded(), "create_migration",
			"ready queue is full, try again later")
	}
	e.rememberDedup(hash, j.id)

	if e.metrics != nil {
		e.metrics.JobsCreated.WithLabelValues(strings.ToLower(j.priority.String())).Inc()
		e.metrics.ActiveJobs.Inc()
		e.metrics.QueuedFiles.Add(float64(j.totalFiles()))
	}
	e.logf(common.LogInfo, "job "+j.id.String()+" created: "+j.sourceProvider.Tag()+" -> "+
		j.destProvider.Tag()+", "+common.IffString(j.deleteSource, "move", "copy"))
	return j.id, nil
}

// enqueue is non-blocking; a full priority channel means the engine is
// overloaded and admission fails.
func (e *Engine) enqueue(j *job) bool {
	var ch chan *job
	switch j.priority {
	case common.EJobPriority.High():
		ch = e.highCh
	case common.EJobPriority.Low():
		ch = e.lowCh
	default:
		ch = e.normalCh
	}
	select {
	case ch <- j:
		atomic.AddInt64(&e.queued, 1)
		return true
	default:
		return false
	}
}

func dedupHash(owner string, src, dst common.Provider, srcContainer, dstContainer string, files []string) string {
	h := sha256.New()
	for _, part := range []string{owner, src.Tag(), dst.Tag(), srcContainer, dstContainer} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	for _, f := range files {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (e *Engine) recentDuplicate(hash string) (common.JobID, bool) {
	e.dedupMu.Lock()
	defer e.dedupMu.Unlock()
	v, ok := e.dedup.Get(lru.Key(hash))
	if !ok {
		return common.JobID{}, false
	}
	entry := v.(dedupEntry)
	if time.Since(entry.at) > e.cfg.DedupWindow {
		e.dedup.Remove(lru.Key(hash))
		return common.JobID{}, false
	}
	return entry.jobID, true
}

func (e *Engine) rememberDedup(hash string, id common.JobID) {
	e.dedupMu.Lock()
	defer e.dedupMu.Unlock()
	e.dedup.Add(lru.Key(hash), dedupEntry{jobID: id, at: time.Now()})
}

func (e *Engine) activeJobsFor(owner string) int {
	e.jobsMu.RLock()
	defer e.jobsMu.RUnlock()
	n := 0
	for _, j := range e.byID {
		if j.owner == owner && !j.status.AtomicLoad().IsTerminal() {
			n++
		}
	}
	return n
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Cancel flips the job's cancellation signal. A PENDING job is finalized on
// the spot; a RUNNING one winds down cooperatively. Cancelling a terminal job
// is CONFLICT, and the caller must own the job or be an admin — the API layer
// enforces that with owner().
func (e *Engine) Cancel(id common.JobID) error {
	j, err := e.lookup(id)
	if err != nil {
		return err
	}
	j.mu.Lock()
	status := j.status.AtomicLoad()
	if status.IsTerminal() {
		j.mu.Unlock()
		return common.NewCloudError(common.EErrorCode.Conflict(), "cancel_migration",
			"job is already "+status.Tag())
	}
	j.requestCancel()
	if status == common.EJobStatus.Pending() {
		// not yet picked up; finalize here, the worker skips terminal jobs
		for _, t := range j.transfers {
			if t.status.AtomicLoad() == common.ETransferStatus.Queued() {
				t.status.AtomicStore(common.ETransferStatus.Skipped())
				atomic.AddInt32(&j.filesSkipped, 1)
				if e.metrics != nil {
					e.metrics.FilesSkipped.Inc()
					e.metrics.QueuedFiles.Dec()
				}
			}
		}
		j.mu.Unlock()
		e.finalize(j, common.EJobStatus.Cancelled())
		return nil
	}
	j.mu.Unlock()
	e.logf(common.LogInfo, "job "+id.String()+" cancellation requested")
	return nil
}

func (e *Engine) lookup(id common.JobID) (*job, error) {
	e.jobsMu.RLock()
	defer e.jobsMu.RUnlock()
	j, ok := e.byID[id]
	if !ok {
		return nil, common.NewCloudError(common.EErrorCode.NotFound(), "migration", "no such job")
	}
	return j, nil
}

// Get returns the job with per-file status.
func (e *Engine) Get(id common.JobID) (common.JobDetail, error) {
	j, err := e.lookup(id)
	if err != nil {
		return common.JobDetail{}, err
	}
	return j.detail(), nil
}

// Owner reports who created the job, for the API's owner-or-admin gate.
func (e *Engine) Owner(id common.JobID) (string, error) {
	j, err := e.lookup(id)
	if err != nil {
		return "", err
	}
	return j.owner, nil
}

// List returns job summaries, newest first. A non-empty owner narrows the
// result to that principal's jobs.
func (e *Engine) List(owner string) []common.JobSummary {
	e.jobsMu.RLock()
	out := make([]common.JobSummary, 0, len(e.byID))
	for _, j := range e.byID {
		if owner != "" && j.owner != owner {
			continue
		}
		out = append(out, j.summary())
	}
	e.jobsMu.RUnlock()
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].JobID.String() < out[k].JobID.String()
	})
	return out
}

// Health is the engine's slice of /health.
func (e *Engine) Health() common.EngineHealth {
	e.jobsMu.RLock()
	active := 0
	for _, j := range e.byID {
		if !j.status.AtomicLoad().IsTerminal() {
			active++
		}
	}
	e.jobsMu.RUnlock()
	return common.EngineHealth{
		Workers:         e.cfg.MaxWorkers,
		ActiveTransfers: atomic.LoadInt64(&e.activeTransfers),
		QueuedJobs:      int(atomic.LoadInt64(&e.queued)),
		ActiveJobs:      active,
	}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Resume reloads persisted jobs. Terminal jobs come back for listing only;
// PENDING and RUNNING jobs are re-queued with any IN_FLIGHT file back in
// QUEUED. Called once, before Run starts the workers.
func (e *Engine) Resume() error {
	records, err := e.jobs.ListJobs()
	if err != nil {
		return err
	}
	requeued := 0
	for _, rec := range records {
		j := jobFromRecord(rec)
		e.jobsMu.Lock()
		e.byID[j.id] = j
		e.jobsMu.Unlock()
		if j.dedupHash != "" && !j.status.AtomicLoad().IsTerminal() {
			e.rememberDedup(j.dedupHash, j.id)
		}
		if status := j.status.AtomicLoad(); !status.IsTerminal() {
			if status == common.EJobStatus.Running() {
				j.status.AtomicStore(common.EJobStatus.Pending())
			}
			if err := e.jobs.PutJob(j.record()); err != nil {
				return err
			}
			if e.enqueue(j) {
				requeued++
				if e.metrics != nil {
					e.metrics.ActiveJobs.Inc()
					for _, t := range j.transfers {
						if t.status.AtomicLoad().ShouldTransfer() {
							e.metrics.QueuedFiles.Inc()
						}
					}
				}
			} else {
				e.logf(common.LogWarning, "job "+j.id.String()+" could not be re-queued on resume")
			}
		}
	}
	if requeued > 0 {
		e.logf(common.LogInfo, "resumed "+strconv.Itoa(requeued)+" unfinished jobs")
	}
	return nil
}

func (e *Engine) logf(level common.LogLevel, msg string) {
	if e.logger != nil && e.logger.ShouldLog(level) {
		e.logger.Log(level, msg)
	}
}

func (e *Engine) publish(ev common.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func (e *Engine) persist(j *job) {
	if err := e.jobs.PutJob(j.record()); err != nil {
		e.logf(common.LogError, "persist job "+j.id.String()+" failed: "+err.Error())
	}
}
