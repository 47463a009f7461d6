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
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	gcpUtils "cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/cloudspan/cloudspan/common"
)

type gcpAdapter struct {
	client  *gcpUtils.Client
	jwtConf *jwt.Config // non-nil only with an explicit key file; needed for SignedURL
}

func NewGCPAdapter(ctx context.Context, info GCPCredentialInfo) (Adapter, error) {
	var opts []option.ClientOption
	var jwtConf *jwt.Config
	if info.KeyFilePath != "" {
		opts = append(opts, option.WithCredentialsFile(info.KeyFilePath))
		jsonKey, err := os.ReadFile(info.KeyFilePath)
		if err != nil {
			return nil, common.WrapCloudError(common.EErrorCode.InvalidArgument(), "load_credentials", err).
				WithProvider(common.EProvider.GCP())
		}
		jwtConf, err = google.JWTConfigFromJSON(jsonKey)
		if err != nil {
			return nil, common.WrapCloudError(common.EErrorCode.InvalidArgument(), "load_credentials", err).
				WithProvider(common.EProvider.GCP())
		}
	}
	client, err := gcpUtils.NewClient(ctx, opts...)
	if err != nil {
		return nil, classifyGCP("connect", err)
	}
	return &gcpAdapter{client: client, jwtConf: jwtConf}, nil
}

func (a *gcpAdapter) Provider() common.Provider { return common.EProvider.GCP() }

func (a *gcpAdapter) Enumerate(ctx context.Context, container, prefix string, each EachObject) error {
	it := a.client.Bucket(container).Objects(ctx, &gcpUtils.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return classifyGCP("enumerate", err).WithRef(container)
		}
		// virtual directories alone have "/" as suffix and size 0
		if strings.HasSuffix(attrs.Name, "/") || attrs.Name == "" {
			continue
		}
		if err := each(a.toRef(container, attrs)); err != nil {
			return err
		}
	}
}

func (a *gcpAdapter) Stat(ctx context.Context, container, key string) (common.ObjectRef, error) {
	attrs, err := a.client.Bucket(container).Object(key).Attrs(ctx)
	if err != nil {
		return common.ObjectRef{}, classifyGCP("stat", err).WithRef(container + "/" + key)
	}
	return a.toRef(container, attrs), nil
}

func (a *gcpAdapter) Get(ctx context.Context, container, key string) (io.ReadCloser, int64, error) {
	r, err := a.client.Bucket(container).Object(key).NewReader(ctx)
	if err != nil {
		return nil, 0, classifyGCP("get", err).WithRef(container + "/" + key)
	}
	return r, r.Attrs.Size, nil
}

func (a *gcpAdapter) Put(ctx context.Context, container, key string, body io.Reader, size int64, tier common.Tier) (int64, error) {
	w := a.client.Bucket(container).Object(key).NewWriter(ctx)
	if tier != common.ETier.None() {
		w.StorageClass = StorageClassFor(common.EProvider.GCP(), tier)
	}
	if size >= 0 {
		w.ChunkSize = chunkSizeFor(size)
	}

	n, err := io.Copy(w, body)
	if err != nil {
		_ = w.Close()
		return 0, classifyGCP("put", err).WithRef(container + "/" + key)
	}
	// GCS commits the object at Close; errors before that point lose the write
	if err := w.Close(); err != nil {
		return 0, classifyGCP("put", err).WithRef(container + "/" + key)
	}
	return n, nil
}

func (a *gcpAdapter) Copy(ctx context.Context, srcContainer, srcKey, destContainer, destKey string, tier common.Tier) (int64, error) {
	src := a.client.Bucket(srcContainer).Object(srcKey)
	copier := a.client.Bucket(destContainer).Object(destKey).CopierFrom(src)
	if tier != common.ETier.None() {
		copier.StorageClass = StorageClassFor(common.EProvider.GCP(), tier)
	}
	attrs, err := copier.Run(ctx)
	if err != nil {
		return 0, classifyGCP("copy_object", err).WithRef(destContainer + "/" + destKey)
	}
	return attrs.Size, nil
}

func (a *gcpAdapter) Delete(ctx context.Context, container, key string) error {
	err := a.client.Bucket(container).Object(key).Delete(ctx)
	if err != nil {
		ce := classifyGCP("delete", err)
		if ce.Code() == common.EErrorCode.NotFound() {
			return nil // idempotent
		}
		return ce.WithRef(container + "/" + key)
	}
	return nil
}

func (a *gcpAdapter) SetStorageClass(ctx context.Context, container, key string, tier common.Tier) error {
	// GCS changes class by rewriting the object onto itself
	obj := a.client.Bucket(container).Object(key)
	copier := obj.CopierFrom(obj)
	copier.StorageClass = StorageClassFor(common.EProvider.GCP(), tier)
	if _, err := copier.Run(ctx); err != nil {
		return classifyGCP("set_storage_class", err).WithRef(container + "/" + key)
	}
	return nil
}

func (a *gcpAdapter) PresignGet(ctx context.Context, container, key string, expires time.Duration) (string, error) {
	if a.jwtConf == nil {
		return "", common.NewCloudError(common.EErrorCode.InvalidArgument(), "presign_get",
			"presigning requires a service account key file").WithProvider(common.EProvider.GCP())
	}
	u, err := gcpUtils.SignedURL(container, key, &gcpUtils.SignedURLOptions{
		Scheme:         gcpUtils.SigningSchemeV4,
		Method:         "GET",
		GoogleAccessID: a.jwtConf.Email,
		PrivateKey:     a.jwtConf.PrivateKey,
		Expires:        time.Now().Add(expires),
	})
	if err != nil {
		return "", classifyGCP("presign_get", err).WithRef(container + "/" + key)
	}
	return u, nil
}

func (a *gcpAdapter) toRef(container string, attrs *gcpUtils.ObjectAttrs) common.ObjectRef {
	return common.ObjectRef{
		Provider:     common.EProvider.GCP(),
		Container:    container,
		Key:          attrs.Name,
		SizeBytes:    attrs.Size,
		LastModified: attrs.Updated,
		StorageClass: attrs.StorageClass,
		ETag:         attrs.Etag,
	}
}

// resumable upload chunking: whole small objects in one shot, 16MiB chunks
// otherwise
func chunkSizeFor(size int64) int {
	const chunk = 16 * 1024 * 1024
	if size > 0 && size < chunk {
		return int(size)
	}
	return chunk
}

func classifyGCP(op string, err error) *common.CloudError {
	code := common.EErrorCode.Transient()

	if errors.Is(err, gcpUtils.ErrObjectNotExist) || errors.Is(err, gcpUtils.ErrBucketNotExist) {
		code = common.EErrorCode.NotFound()
	} else {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			switch {
			case gerr.Code == 401 || gerr.Code == 403:
				code = common.EErrorCode.PermissionDenied()
			case gerr.Code == 404:
				code = common.EErrorCode.NotFound()
			case gerr.Code == 429:
				code = common.EErrorCode.QuotaExceeded()
			case gerr.Code == 400:
				code = common.EErrorCode.InvalidArgument()
			case gerr.Code == 409 || gerr.Code == 412:
				code = common.EErrorCode.Conflict()
			case gerr.Code >= 500:
				code = common.EErrorCode.Unavailable()
			}
		}
	}

	return common.WrapCloudError(code, op, err).WithProvider(common.EProvider.GCP())
}
