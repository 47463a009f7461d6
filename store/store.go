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

// Package store persists migration jobs and principals. Two backends: a plan
// folder on local disk (one JSON document per job, the default) and an Azure
// Table account for deployments that want the state off-box. The engine writes
// through on every state transition and replays on startup.
package store

import (
	"time"

	"github.com/cloudspan/cloudspan/common"
)

// JobRecord is the durable form of one migration job, per-file subtasks
// inlined. It is a plain document: the engine owns the live state and lock
// discipline, the store only round-trips snapshots of it.
type JobRecord struct {
	JobID           common.JobID       `json:"job_id"`
	Owner           string             `json:"owner"`
	SourceProvider  common.Provider    `json:"source_provider"`
	DestProvider    common.Provider    `json:"dest_provider"`
	SourceContainer string             `json:"source_container"`
	DestContainer   string             `json:"dest_container"`
	Priority        common.JobPriority `json:"priority"`
	Status          common.JobStatus   `json:"status"`
	DeleteSource    bool               `json:"delete_source,omitempty"`
	TargetTier      common.Tier        `json:"target_tier,omitempty"`
	DedupHash       string             `json:"dedup_hash,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	Files           []FileRecord       `json:"files"`
}

// FileRecord is one per-file subtask inside a JobRecord.
type FileRecord struct {
	SourceKey        string                `json:"source_key"`
	DestKey          string                `json:"dest_key"`
	State            common.TransferStatus `json:"state"`
	BytesTransferred int64                 `json:"bytes_transferred"`
	Attempts         int32                 `json:"attempts"`
	LastError        *common.ErrorDetail   `json:"last_error,omitempty"`
}

// PrincipalRecord is one stored identity. HashedCredential is a bcrypt hash;
// the plaintext credential never reaches this package.
type PrincipalRecord struct {
	ID               string      `json:"id"`
	Role             common.Role `json:"role"`
	HashedCredential string      `json:"hashed_credential"`
	CreatedAt        time.Time   `json:"created_at"`
}

// JobStore persists jobs. Get on an unknown id returns NOT_FOUND.
type JobStore interface {
	PutJob(rec JobRecord) error
	GetJob(id common.JobID) (JobRecord, error)
	ListJobs() ([]JobRecord, error)
	DeleteJob(id common.JobID) error
}

// PrincipalStore persists identities. Get on an unknown id returns NOT_FOUND.
type PrincipalStore interface {
	PutPrincipal(rec PrincipalRecord) error
	GetPrincipal(id string) (PrincipalRecord, error)
	ListPrincipals() ([]PrincipalRecord, error)
}

// Config selects and parameterizes a backend.
type Config struct {
	Kind            string // "file" or "azure-table"
	Location        string // file: the plan folder
	TableConnection string // azure-table: storage connection string
}

// NewStores builds the configured backend pair.
func NewStores(cfg Config) (JobStore, PrincipalStore, error) {
	switch cfg.Kind {
	case "", "file":
		fs, err := NewFileStore(cfg.Location)
		if err != nil {
			return nil, nil, err
		}
		return fs, fs, nil
	case "azure-table":
		ts, err := NewTableStore(cfg.TableConnection)
		if err != nil {
			return nil, nil, err
		}
		return ts, ts, nil
	default:
		return nil, nil, common.NewCloudError(common.EErrorCode.InvalidArgument(), "store",
			"unknown store kind "+cfg.Kind+", want file or azure-table")
	}
}
