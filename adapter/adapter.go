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

// Package adapter folds the provider SDKs (S3 via minio, Azure Blob, Google
// Cloud Storage) into one capability surface. Everything above this package
// works in terms of ObjectRef, Tier and ErrorCode; nothing above it ever sees
// an SDK type or an SDK error.
package adapter

import (
	"context"
	"io"
	"time"

	"github.com/cloudspan/cloudspan/common"
)

// EachObject receives one object during enumeration. Returning an error stops
// the walk and surfaces that error to the caller.
type EachObject func(ref common.ObjectRef) error

// Adapter is the uniform capability set over one storage backend. Instances
// are safe for concurrent use by many workers; connection pooling is the
// implementation's concern. Credentials are injected at construction and
// never appear in errors or logs.
type Adapter interface {
	Provider() common.Provider

	// Enumerate walks every object in the container with the given prefix,
	// paginating transparently. Ordering across pages is provider-defined.
	Enumerate(ctx context.Context, container, prefix string, each EachObject) error

	// Stat returns fresh metadata for one object.
	Stat(ctx context.Context, container, key string) (common.ObjectRef, error)

	// Get opens the object for reading. The caller owns the ReadCloser.
	Get(ctx context.Context, container, key string) (io.ReadCloser, int64, error)

	// Put streams body into the destination object, overwriting any existing
	// one. A tier of None keeps the provider default storage class.
	Put(ctx context.Context, container, key string, body io.Reader, size int64, tier common.Tier) (int64, error)

	// Copy performs a server-side copy within this provider.
	Copy(ctx context.Context, srcContainer, srcKey, destContainer, destKey string, tier common.Tier) (int64, error)

	// Delete removes the object. Deleting an absent object is success.
	Delete(ctx context.Context, container, key string) error

	// SetStorageClass re-tiers the object in place.
	SetStorageClass(ctx context.Context, container, key string, tier common.Tier) error

	// PresignGet returns a time-limited read URL, when the configured
	// credential style supports it.
	PresignGet(ctx context.Context, container, key string, expires time.Duration) (string, error)
}

// Set holds the configured adapters keyed by provider. It is built once at
// startup and read-only afterwards.
type Set map[common.Provider]Adapter

func (s Set) Get(p common.Provider) (Adapter, error) {
	a, ok := s[p]
	if !ok {
		return nil, common.NewCloudError(common.EErrorCode.InvalidArgument(), "adapter",
			"provider "+p.Tag()+" is not configured")
	}
	return a, nil
}

// Providers returns the configured providers in canonical order, mock last.
func (s Set) Providers() []common.Provider {
	out := make([]common.Provider, 0, len(s))
	for _, p := range common.RealProviders() {
		if _, ok := s[p]; ok {
			out = append(out, p)
		}
	}
	if _, ok := s[common.EProvider.Mock()]; ok {
		out = append(out, common.EProvider.Mock())
	}
	return out
}
