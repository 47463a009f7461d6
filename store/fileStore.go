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
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/cloudspan/cloudspan/common"
)

// fileStore keeps one JSON document per job under <location>/jobs and one per
// principal under <location>/principals. Writes go to a temp file in the same
// directory and rename into place, so a crash never leaves a torn document.
type fileStore struct {
	jobsDir       string
	principalsDir string
	mu            sync.Mutex // serializes writers; readers go straight to disk
}

func NewFileStore(location string) (*fileStore, error) {
	if location == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolve store location")
		}
		location = filepath.Join(home, ".cloudspan", "store")
	}
	fs := &fileStore{
		jobsDir:       filepath.Join(location, "jobs"),
		principalsDir: filepath.Join(location, "principals"),
	}
	for _, dir := range []string{fs.jobsDir, fs.principalsDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, common.WrapCloudError(common.EErrorCode.Internal(), "store_init", err)
		}
	}
	return fs, nil
}

func (fs *fileStore) writeDoc(path string, doc any) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return common.WrapCloudError(common.EErrorCode.Internal(), "store_write", err)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return common.WrapCloudError(common.EErrorCode.Internal(), "store_write", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return common.WrapCloudError(common.EErrorCode.Internal(), "store_write", err)
	}
	return nil
}

func (fs *fileStore) readDoc(path string, doc any) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return common.NewCloudError(common.EErrorCode.NotFound(), "store_read",
			"no such record")
	}
	if err != nil {
		return common.WrapCloudError(common.EErrorCode.Internal(), "store_read", err)
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return common.WrapCloudError(common.EErrorCode.Internal(), "store_read", err)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func (fs *fileStore) jobPath(id common.JobID) string {
	return filepath.Join(fs.jobsDir, id.String()+".json")
}

func (fs *fileStore) PutJob(rec JobRecord) error {
	return fs.writeDoc(fs.jobPath(rec.JobID), rec)
}

func (fs *fileStore) GetJob(id common.JobID) (JobRecord, error) {
	var rec JobRecord
	err := fs.readDoc(fs.jobPath(id), &rec)
	return rec, err
}

func (fs *fileStore) ListJobs() ([]JobRecord, error) {
	entries, err := os.ReadDir(fs.jobsDir)
	if err != nil {
		return nil, common.WrapCloudError(common.EErrorCode.Internal(), "store_list", err)
	}
	out := make([]JobRecord, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var rec JobRecord
		if err := fs.readDoc(filepath.Join(fs.jobsDir, e.Name()), &rec); err != nil {
			// a torn or foreign file must not take the whole engine down on resume
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (fs *fileStore) DeleteJob(id common.JobID) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	err := os.Remove(fs.jobPath(id))
	if err != nil && !os.IsNotExist(err) {
		return common.WrapCloudError(common.EErrorCode.Internal(), "store_delete", err)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// principalPath hex-escapes nothing: principal ids are validated upstream, but
// path separators are still refused here as a second line.
func (fs *fileStore) principalPath(id string) (string, error) {
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", common.NewCloudError(common.EErrorCode.InvalidArgument(), "store",
			"principal id contains path separators")
	}
	return filepath.Join(fs.principalsDir, id+".json"), nil
}

func (fs *fileStore) PutPrincipal(rec PrincipalRecord) error {
	path, err := fs.principalPath(rec.ID)
	if err != nil {
		return err
	}
	return fs.writeDoc(path, rec)
}

func (fs *fileStore) GetPrincipal(id string) (PrincipalRecord, error) {
	path, err := fs.principalPath(id)
	if err != nil {
		return PrincipalRecord{}, err
	}
	var rec PrincipalRecord
	err = fs.readDoc(path, &rec)
	return rec, err
}

func (fs *fileStore) ListPrincipals() ([]PrincipalRecord, error) {
	entries, err := os.ReadDir(fs.principalsDir)
	if err != nil {
		return nil, common.WrapCloudError(common.EErrorCode.Internal(), "store_list", err)
	}
	out := make([]PrincipalRecord, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var rec PrincipalRecord
		if err := fs.readDoc(filepath.Join(fs.principalsDir, e.Name()), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
