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
	"io"
	"net/url"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cloudspan/cloudspan/common"
)

// awsAdapter speaks the S3 API through minio. It works against AWS itself and
// against any S3-compatible endpoint named in the credential file.
type awsAdapter struct {
	client *minio.Client
}

func NewAWSAdapter(info S3CredentialInfo, logger common.ILogger) (Adapter, error) {
	client, err := minio.New(info.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(info.AccessKey, info.SecretKey, info.SessionToken),
		Secure:       !info.DisableTLS,
		Region:       info.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, classifyAWS("connect", err)
	}

	if logger != nil && logger.ShouldLog(common.LogDebug) {
		client.TraceOn(common.NewHTTPTraceLogger(logger, common.LogDebug))
	}
	client.SetAppInfo("cloudspan", common.CloudspanVersion)

	return &awsAdapter{client: client}, nil
}

func (a *awsAdapter) Provider() common.Provider { return common.EProvider.AWS() }

func (a *awsAdapter) Enumerate(ctx context.Context, container, prefix string, each EachObject) error {
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for info := range a.client.ListObjects(ctx, container, opts) {
		if info.Err != nil {
			return classifyAWS("enumerate", info.Err).WithRef(container)
		}
		if strings.HasSuffix(info.Key, "/") && info.Size == 0 {
			continue // directory marker
		}
		if err := each(a.toRef(container, info)); err != nil {
			return err
		}
	}
	return nil
}

func (a *awsAdapter) Stat(ctx context.Context, container, key string) (common.ObjectRef, error) {
	info, err := a.client.StatObject(ctx, container, key, minio.StatObjectOptions{})
	if err != nil {
		return common.ObjectRef{}, classifyAWS("stat", err).WithRef(container + "/" + key)
	}
	return a.toRef(container, info), nil
}

func (a *awsAdapter) Get(ctx context.Context, container, key string) (io.ReadCloser, int64, error) {
	obj, err := a.client.GetObject(ctx, container, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, classifyAWS("get", err).WithRef(container + "/" + key)
	}
	// GetObject is lazy; Stat forces the request so errors surface here, not
	// midway through the destination upload.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, classifyAWS("get", err).WithRef(container + "/" + key)
	}
	return obj, info.Size, nil
}

func (a *awsAdapter) Put(ctx context.Context, container, key string, body io.Reader, size int64, tier common.Tier) (int64, error) {
	opts := minio.PutObjectOptions{}
	if tier != common.ETier.None() {
		opts.StorageClass = StorageClassFor(common.EProvider.AWS(), tier)
	}
	info, err := a.client.PutObject(ctx, container, key, body, size, opts)
	if err != nil {
		return 0, classifyAWS("put", err).WithRef(container + "/" + key)
	}
	return info.Size, nil
}

func (a *awsAdapter) Copy(ctx context.Context, srcContainer, srcKey, destContainer, destKey string, tier common.Tier) (int64, error) {
	dst := minio.CopyDestOptions{Bucket: destContainer, Object: destKey}
	if tier != common.ETier.None() {
		// the storage-class key passes through as a raw header on the copy
		dst.UserMetadata = map[string]string{"x-amz-storage-class": StorageClassFor(common.EProvider.AWS(), tier)}
		dst.ReplaceMetadata = true
	}
	src := minio.CopySrcOptions{Bucket: srcContainer, Object: srcKey}

	info, err := a.client.CopyObject(ctx, dst, src)
	if err != nil {
		return 0, classifyAWS("copy_object", err).WithRef(destContainer + "/" + destKey)
	}
	if info.Size > 0 {
		return info.Size, nil
	}
	// S3 copy responses omit the size; one stat closes the gap
	statInfo, err := a.client.StatObject(ctx, destContainer, destKey, minio.StatObjectOptions{})
	if err != nil {
		return 0, classifyAWS("copy_object", err).WithRef(destContainer + "/" + destKey)
	}
	return statInfo.Size, nil
}

func (a *awsAdapter) Delete(ctx context.Context, container, key string) error {
	err := a.client.RemoveObject(ctx, container, key, minio.RemoveObjectOptions{})
	if err != nil {
		ce := classifyAWS("delete", err)
		if ce.Code() == common.EErrorCode.NotFound() {
			return nil // idempotent
		}
		return ce.WithRef(container + "/" + key)
	}
	return nil
}

func (a *awsAdapter) SetStorageClass(ctx context.Context, container, key string, tier common.Tier) error {
	// S3 re-tiers by copying the object onto itself with a new class header
	dst := minio.CopyDestOptions{
		Bucket:          container,
		Object:          key,
		UserMetadata:    map[string]string{"x-amz-storage-class": StorageClassFor(common.EProvider.AWS(), tier)},
		ReplaceMetadata: true,
	}
	src := minio.CopySrcOptions{Bucket: container, Object: key}
	if _, err := a.client.CopyObject(ctx, dst, src); err != nil {
		return classifyAWS("set_storage_class", err).WithRef(container + "/" + key)
	}
	return nil
}

func (a *awsAdapter) PresignGet(ctx context.Context, container, key string, expires time.Duration) (string, error) {
	u, err := a.client.PresignedGetObject(ctx, container, key, expires, url.Values{})
	if err != nil {
		return "", classifyAWS("presign_get", err).WithRef(container + "/" + key)
	}
	return u.String(), nil
}

func (a *awsAdapter) toRef(container string, info minio.ObjectInfo) common.ObjectRef {
	return common.ObjectRef{
		Provider:     common.EProvider.AWS(),
		Container:    container,
		Key:          info.Key,
		SizeBytes:    info.Size,
		LastModified: info.LastModified,
		StorageClass: info.StorageClass,
		ETag:         info.ETag,
	}
}

// classifyAWS folds a minio error into the uniform taxonomy. Throttling maps
// to QuotaExceeded so the retry policy backs off long; other 5xx responses
// map to Unavailable.
func classifyAWS(op string, err error) *common.CloudError {
	resp := minio.ToErrorResponse(err)
	code := common.EErrorCode.Transient()

	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		code = common.EErrorCode.NotFound()
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled":
		code = common.EErrorCode.PermissionDenied()
	case "SlowDown", "TooManyRequests":
		code = common.EErrorCode.QuotaExceeded()
	case "InvalidArgument", "InvalidBucketName", "InvalidObjectName", "MethodNotAllowed", "XMinioInvalidObjectName":
		code = common.EErrorCode.InvalidArgument()
	case "BucketAlreadyOwnedByYou", "PreconditionFailed":
		code = common.EErrorCode.Conflict()
	default:
		switch {
		case resp.StatusCode == 429:
			code = common.EErrorCode.QuotaExceeded()
		case resp.StatusCode == 404:
			code = common.EErrorCode.NotFound()
		case resp.StatusCode == 401 || resp.StatusCode == 403:
			code = common.EErrorCode.PermissionDenied()
		case resp.StatusCode >= 500:
			code = common.EErrorCode.Unavailable()
		}
		// no response at all means a network-level failure: stay Transient
	}

	return common.WrapCloudError(code, op, err).WithProvider(common.EProvider.AWS())
}
