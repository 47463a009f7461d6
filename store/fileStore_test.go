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

package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cloudspan/cloudspan/common"
)

func testJobRecord() JobRecord {
	return JobRecord{
		JobID:           common.NewJobID(),
		Owner:           "alice",
		SourceProvider:  common.EProvider.AWS(),
		DestProvider:    common.EProvider.Azure(),
		SourceContainer: "bucket-a",
		DestContainer:   "container-b",
		Priority:        common.EJobPriority.High(),
		Status:          common.EJobStatus.Running(),
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
		Files: []FileRecord{
			{SourceKey: "report.pdf", DestKey: "report.pdf", State: common.ETransferStatus.Verified(), BytesTransferred: 1048576},
			{SourceKey: "b.bin", DestKey: "b.bin", State: common.ETransferStatus.Failed(), Attempts: 1,
				LastError: &common.ErrorDetail{Code: common.EErrorCode.NotFound(), Message: "object does not exist"}},
		},
	}
}

func TestFileStoreJobRoundTrip(t *testing.T) {
	a := assert.New(t)
	fs, err := NewFileStore(t.TempDir())
	a.NoError(err)

	rec := testJobRecord()
	a.NoError(fs.PutJob(rec))

	got, err := fs.GetJob(rec.JobID)
	a.NoError(err)
	a.Equal(rec.JobID, got.JobID)
	a.Equal(rec.Status, got.Status)
	a.Equal(rec.Priority, got.Priority)
	a.Len(got.Files, 2)
	a.Equal(common.ETransferStatus.Verified(), got.Files[0].State)
	a.Equal(common.EErrorCode.NotFound(), got.Files[1].LastError.Code)

	// overwrite on re-put
	rec.Status = common.EJobStatus.PartiallyFailed()
	a.NoError(fs.PutJob(rec))
	got, err = fs.GetJob(rec.JobID)
	a.NoError(err)
	a.Equal(common.EJobStatus.PartiallyFailed(), got.Status)
}

func TestFileStoreGetMissingJobIsNotFound(t *testing.T) {
	a := assert.New(t)
	fs, err := NewFileStore(t.TempDir())
	a.NoError(err)

	_, err = fs.GetJob(common.NewJobID())
	a.Equal(common.EErrorCode.NotFound(), common.CodeOf(err))
}

func TestFileStoreListSkipsTornDocuments(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	a.NoError(err)

	a.NoError(fs.PutJob(testJobRecord()))
	a.NoError(fs.PutJob(testJobRecord()))
	a.NoError(os.WriteFile(filepath.Join(dir, "jobs", "torn.json"), []byte("{half a doc"), 0o600))

	jobs, err := fs.ListJobs()
	a.NoError(err)
	a.Len(jobs, 2)
}

func TestFileStoreDeleteJobIsIdempotent(t *testing.T) {
	a := assert.New(t)
	fs, err := NewFileStore(t.TempDir())
	a.NoError(err)

	rec := testJobRecord()
	a.NoError(fs.PutJob(rec))
	a.NoError(fs.DeleteJob(rec.JobID))
	a.NoError(fs.DeleteJob(rec.JobID))
	_, err = fs.GetJob(rec.JobID)
	a.Equal(common.EErrorCode.NotFound(), common.CodeOf(err))
}

func TestFileStorePrincipalRoundTrip(t *testing.T) {
	a := assert.New(t)
	fs, err := NewFileStore(t.TempDir())
	a.NoError(err)

	rec := PrincipalRecord{
		ID:               "alice",
		Role:             common.ERole.Admin(),
		HashedCredential: "$2a$10$abcdefghijklmnopqrstuv",
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
	a.NoError(fs.PutPrincipal(rec))

	got, err := fs.GetPrincipal("alice")
	a.NoError(err)
	a.Equal(rec, got)

	all, err := fs.ListPrincipals()
	a.NoError(err)
	a.Len(all, 1)
}

func TestFileStoreRefusesPathySeparatorIDs(t *testing.T) {
	a := assert.New(t)
	fs, err := NewFileStore(t.TempDir())
	a.NoError(err)

	_, err = fs.GetPrincipal("../escape")
	a.Equal(common.EErrorCode.InvalidArgument(), common.CodeOf(err))
	err = fs.PutPrincipal(PrincipalRecord{ID: `a\b`})
	a.Equal(common.EErrorCode.InvalidArgument(), common.CodeOf(err))
}

func TestNewStoresSelection(t *testing.T) {
	a := assert.New(t)

	js, ps, err := NewStores(Config{Kind: "file", Location: t.TempDir()})
	a.NoError(err)
	a.NotNil(js)
	a.NotNil(ps)

	_, _, err = NewStores(Config{Kind: "bogus"})
	a.Equal(common.EErrorCode.InvalidArgument(), common.CodeOf(err))

	// azure-table without a connection string is refused up front
	_, _, err = NewStores(Config{Kind: "azure-table"})
	a.Equal(common.EErrorCode.InvalidArgument(), common.CodeOf(err))
}
