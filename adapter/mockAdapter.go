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

package adapter

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudspan/cloudspan/common"
)

// MockAdapter is an in-memory provider used by tests and by deployments that
// set CLOUDSPAN_PROVIDERS_MOCK_ENABLED. Every operation goes through the same
// code paths the real adapters do, including the error taxonomy.
type MockAdapter struct {
	mu      sync.RWMutex
	objects map[string]map[string]*mockObject // container -> key
	faults  map[string][]error                // op -> queued injected errors
	puts    int64
	copies  int64
}

type mockObject struct {
	data         []byte
	tier         common.Tier
	lastModified time.Time
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		objects: make(map[string]map[string]*mockObject),
		faults:  make(map[string][]error),
	}
}

func (m *MockAdapter) Provider() common.Provider { return common.EProvider.Mock() }

// Seed places an object without going through Put. Size is materialized as
// repeated bytes so Get returns real content of the advertised length.
func (m *MockAdapter) Seed(container, key string, size int, tier common.Tier, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[container] == nil {
		m.objects[container] = make(map[string]*mockObject)
	}
	m.objects[container][key] = &mockObject{
		data:         bytes.Repeat([]byte{'x'}, size),
		tier:         tier,
		lastModified: modified,
	}
}

// SeedDemo loads a small recognizable inventory spanning hot recent files and
// cold aged ones so classification output is non-trivial out of the box.
func (m *MockAdapter) SeedDemo() {
	now := time.Now().UTC()
	hot := common.ETier.Hot()
	for i := 0; i < 6; i++ {
		m.Seed("demo-media", fmt.Sprintf("photos/2026/img_%04d.jpg", i+1),
			2<<20+i*4096, hot, now.AddDate(0, 0, -i))
	}
	for i := 0; i < 4; i++ {
		m.Seed("demo-media", fmt.Sprintf("videos/clip_%02d.mp4", i+1),
			128<<20+i*1<<20, hot, now.AddDate(0, -2, -i*7))
	}
	for i := 0; i < 5; i++ {
		m.Seed("demo-archive", fmt.Sprintf("logs/2024/%02d.log.gz", i+1),
			16<<20, hot, now.AddDate(-1, -i, 0))
	}
}

// InjectFault queues an error for the named operation; each queued error is
// consumed by exactly one call. Op names match the real adapters: enumerate,
// stat, get, put, copy_object, delete, set_storage_class, presign_get.
func (m *MockAdapter) InjectFault(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = append(m.faults[op], err)
}

func (m *MockAdapter) takeFault(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.faults[op]
	if len(q) == 0 {
		return nil
	}
	m.faults[op] = q[1:]
	return q[0]
}

// PutCount reports how many Put calls stored data, for test assertions.
func (m *MockAdapter) PutCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

func (m *MockAdapter) Enumerate(ctx context.Context, container, prefix string, each EachObject) error {
	if err := m.takeFault("enumerate"); err != nil {
		return err
	}
	refs := m.snapshot(container, prefix)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return common.WrapCloudError(common.EErrorCode.Transient(), "enumerate", err).
				WithProvider(common.EProvider.Mock()).WithRef(container)
		}
		if err := each(ref); err != nil {
			return err
		}
	}
	return nil
}

// snapshot copies the listing under the read lock so each callbacks run
// without holding it.
func (m *MockAdapter) snapshot(container, prefix string) []common.ObjectRef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects[container]))
	for k := range m.objects[container] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	refs := make([]common.ObjectRef, 0, len(keys))
	for _, k := range keys {
		refs = append(refs, m.toRef(container, k, m.objects[container][k]))
	}
	return refs
}

func (m *MockAdapter) Stat(ctx context.Context, container, key string) (common.ObjectRef, error) {
	if err := m.takeFault("stat"); err != nil {
		return common.ObjectRef{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[container][key]
	if !ok {
		return common.ObjectRef{}, m.notFound("stat", container, key)
	}
	return m.toRef(container, key, obj), nil
}

func (m *MockAdapter) Get(ctx context.Context, container, key string) (io.ReadCloser, int64, error) {
	if err := m.takeFault("get"); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[container][key]
	if !ok {
		return nil, 0, m.notFound("get", container, key)
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *MockAdapter) Put(ctx context.Context, container, key string, body io.Reader, size int64, tier common.Tier) (int64, error) {
	if err := m.takeFault("put"); err != nil {
		return 0, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, common.WrapCloudError(common.EErrorCode.Transient(), "put", err).
			WithProvider(common.EProvider.Mock()).WithRef(container + "/" + key)
	}
	if size >= 0 && int64(len(data)) != size {
		return int64(len(data)), common.NewCloudError(common.EErrorCode.Transient(), "put",
			"short read from source").WithProvider(common.EProvider.Mock()).WithRef(container + "/" + key)
	}
	if tier == common.ETier.None() {
		tier = common.ETier.Hot()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[container] == nil {
		m.objects[container] = make(map[string]*mockObject)
	}
	m.objects[container][key] = &mockObject{data: data, tier: tier, lastModified: time.Now().UTC()}
	m.puts++
	return int64(len(data)), nil
}

func (m *MockAdapter) Copy(ctx context.Context, srcContainer, srcKey, destContainer, destKey string, tier common.Tier) (int64, error) {
	if err := m.takeFault("copy_object"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.objects[srcContainer][srcKey]
	if !ok {
		return 0, m.notFound("copy_object", srcContainer, srcKey)
	}
	if tier == common.ETier.None() {
		tier = src.tier
	}
	data := make([]byte, len(src.data))
	copy(data, src.data)
	if m.objects[destContainer] == nil {
		m.objects[destContainer] = make(map[string]*mockObject)
	}
	m.objects[destContainer][destKey] = &mockObject{data: data, tier: tier, lastModified: time.Now().UTC()}
	m.copies++
	return int64(len(data)), nil
}

func (m *MockAdapter) Delete(ctx context.Context, container, key string) error {
	if err := m.takeFault("delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects[container], key) // absent is success
	return nil
}

func (m *MockAdapter) SetStorageClass(ctx context.Context, container, key string, tier common.Tier) error {
	if err := m.takeFault("set_storage_class"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[container][key]
	if !ok {
		return m.notFound("set_storage_class", container, key)
	}
	obj.tier = tier
	return nil
}

func (m *MockAdapter) PresignGet(ctx context.Context, container, key string, expires time.Duration) (string, error) {
	if err := m.takeFault("presign_get"); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[container][key]; !ok {
		return "", m.notFound("presign_get", container, key)
	}
	expiry := time.Now().UTC().Add(expires).Unix()
	return fmt.Sprintf("mock://%s/%s?expires=%d", container, key, expiry), nil
}

func (m *MockAdapter) toRef(container, key string, obj *mockObject) common.ObjectRef {
	return common.ObjectRef{
		Provider:     common.EProvider.Mock(),
		Container:    container,
		Key:          key,
		SizeBytes:    int64(len(obj.data)),
		LastModified: obj.lastModified,
		StorageClass: obj.tier.Tag(),
		ETag:         fmt.Sprintf("%x", md5.Sum(obj.data)),
	}
}

func (m *MockAdapter) notFound(op, container, key string) *common.CloudError {
	return common.NewCloudError(common.EErrorCode.NotFound(), op, "object does not exist").
		WithProvider(common.EProvider.Mock()).WithRef(container + "/" + key)
}
