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
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	blobservice "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"github.com/cloudspan/cloudspan/common"
)

type azureAdapter struct {
	serviceClient *blobservice.Client
	canPresign    bool // only shared key credentials can mint SAS URLs
}

func NewAzureAdapter(info AzureCredentialInfo) (Adapter, error) {
	if info.ConnectionString != "" {
		sc, err := blobservice.NewClientFromConnectionString(info.ConnectionString, nil)
		if err != nil {
			return nil, classifyAzure("connect", err)
		}
		return &azureAdapter{serviceClient: sc, canPresign: true}, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, classifyAzure("connect", err)
	}
	sc, err := blobservice.NewClient(info.AccountURL, cred, nil)
	if err != nil {
		return nil, classifyAzure("connect", err)
	}
	return &azureAdapter{serviceClient: sc}, nil
}

func (a *azureAdapter) Provider() common.Provider { return common.EProvider.Azure() }

func (a *azureAdapter) Enumerate(ctx context.Context, cont, prefix string, each EachObject) error {
	containerClient := a.serviceClient.NewContainerClient(cont)
	pager := containerClient.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return classifyAzure("enumerate", err).WithRef(cont)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil || item.Properties == nil {
				continue
			}
			tier := ""
			if item.Properties.AccessTier != nil {
				tier = string(*item.Properties.AccessTier)
			}
			etag := ""
			if item.Properties.ETag != nil {
				etag = string(*item.Properties.ETag)
			}
			ref := common.ObjectRef{
				Provider:     common.EProvider.Azure(),
				Container:    cont,
				Key:          *item.Name,
				SizeBytes:    common.IffNotNil(item.Properties.ContentLength, 0),
				LastModified: common.IffNotNil(item.Properties.LastModified, time.Time{}),
				StorageClass: tier,
				ETag:         etag,
			}
			if err := each(ref); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *azureAdapter) Stat(ctx context.Context, cont, key string) (common.ObjectRef, error) {
	blobClient := a.serviceClient.NewContainerClient(cont).NewBlobClient(key)
	resp, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return common.ObjectRef{}, classifyAzure("stat", err).WithRef(cont + "/" + key)
	}
	etag := ""
	if resp.ETag != nil {
		etag = string(*resp.ETag)
	}
	return common.ObjectRef{
		Provider:     common.EProvider.Azure(),
		Container:    cont,
		Key:          key,
		SizeBytes:    common.IffNotNil(resp.ContentLength, 0),
		LastModified: common.IffNotNil(resp.LastModified, time.Time{}),
		StorageClass: common.IffNotNil(resp.AccessTier, ""),
		ETag:         etag,
	}, nil
}

func (a *azureAdapter) Get(ctx context.Context, cont, key string) (io.ReadCloser, int64, error) {
	blobClient := a.serviceClient.NewContainerClient(cont).NewBlobClient(key)
	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, 0, classifyAzure("get", err).WithRef(cont + "/" + key)
	}
	return resp.Body, common.IffNotNil(resp.ContentLength, 0), nil
}

func (a *azureAdapter) Put(ctx context.Context, cont, key string, body io.Reader, size int64, tier common.Tier) (int64, error) {
	blockClient := a.serviceClient.NewContainerClient(cont).NewBlockBlobClient(key)

	opts := &blockblob.UploadStreamOptions{}
	if tier != common.ETier.None() {
		opts.AccessTier = to.Ptr(blob.AccessTier(StorageClassFor(common.EProvider.Azure(), tier)))
	}

	counted := &countingReader{inner: body}
	if _, err := blockClient.UploadStream(ctx, counted, opts); err != nil {
		return 0, classifyAzure("put", err).WithRef(cont + "/" + key)
	}
	if size >= 0 && counted.n != size {
		return counted.n, common.NewCloudError(common.EErrorCode.Transient(), "put",
			"short read from source").WithProvider(common.EProvider.Azure()).WithRef(cont + "/" + key)
	}
	return counted.n, nil
}

// countingReader tracks how many bytes the SDK pulled through an upload.
type countingReader struct {
	inner io.Reader
	n     int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.inner.Read(p)
	c.n += int64(n)
	return n, err
}

func (a *azureAdapter) Copy(ctx context.Context, srcCont, srcKey, destCont, destKey string, tier common.Tier) (int64, error) {
	srcURL := a.serviceClient.NewContainerClient(srcCont).NewBlobClient(srcKey).URL()
	destClient := a.serviceClient.NewContainerClient(destCont).NewBlobClient(destKey)

	opts := &blob.StartCopyFromURLOptions{}
	if tier != common.ETier.None() {
		opts.Tier = to.Ptr(blob.AccessTier(StorageClassFor(common.EProvider.Azure(), tier)))
	}

	if _, err := destClient.StartCopyFromURL(ctx, srcURL, opts); err != nil {
		return 0, classifyAzure("copy_object", err).WithRef(destCont + "/" + destKey)
	}

	// intra-account copies usually complete immediately, but the contract is
	// asynchronous, so poll until the service reports a terminal copy status
	for {
		resp, err := destClient.GetProperties(ctx, nil)
		if err != nil {
			return 0, classifyAzure("copy_object", err).WithRef(destCont + "/" + destKey)
		}
		status := common.IffNotNil(resp.CopyStatus, blob.CopyStatusTypeSuccess)
		switch status {
		case blob.CopyStatusTypeSuccess:
			return common.IffNotNil(resp.ContentLength, 0), nil
		case blob.CopyStatusTypePending:
			select {
			case <-ctx.Done():
				return 0, common.WrapCloudError(common.EErrorCode.Transient(), "copy_object", ctx.Err()).
					WithProvider(common.EProvider.Azure()).WithRef(destCont + "/" + destKey)
			case <-time.After(500 * time.Millisecond):
			}
		default: // aborted or failed
			return 0, common.NewCloudError(common.EErrorCode.Transient(), "copy_object",
				"service reported copy status "+string(status)).
				WithProvider(common.EProvider.Azure()).WithRef(destCont + "/" + destKey)
		}
	}
}

func (a *azureAdapter) Delete(ctx context.Context, cont, key string) error {
	blobClient := a.serviceClient.NewContainerClient(cont).NewBlobClient(key)
	if _, err := blobClient.Delete(ctx, nil); err != nil {
		ce := classifyAzure("delete", err)
		if ce.Code() == common.EErrorCode.NotFound() {
			return nil // idempotent
		}
		return ce.WithRef(cont + "/" + key)
	}
	return nil
}

func (a *azureAdapter) SetStorageClass(ctx context.Context, cont, key string, tier common.Tier) error {
	blobClient := a.serviceClient.NewContainerClient(cont).NewBlobClient(key)
	azTier := blob.AccessTier(StorageClassFor(common.EProvider.Azure(), tier))
	if _, err := blobClient.SetTier(ctx, azTier, nil); err != nil {
		return classifyAzure("set_storage_class", err).WithRef(cont + "/" + key)
	}
	return nil
}

func (a *azureAdapter) PresignGet(ctx context.Context, cont, key string, expires time.Duration) (string, error) {
	if !a.canPresign {
		return "", common.NewCloudError(common.EErrorCode.InvalidArgument(), "presign_get",
			"presigning requires a connection string credential").WithProvider(common.EProvider.Azure())
	}
	blobClient := a.serviceClient.NewContainerClient(cont).NewBlobClient(key)
	u, err := blobClient.GetSASURL(sas.BlobPermissions{Read: true}, time.Now().Add(expires), nil)
	if err != nil {
		return "", classifyAzure("presign_get", err).WithRef(cont + "/" + key)
	}
	return u, nil
}

func classifyAzure(op string, err error) *common.CloudError {
	code := common.EErrorCode.Transient()

	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		code = common.EErrorCode.NotFound()
	case bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch, bloberror.InsufficientAccountPermissions):
		code = common.EErrorCode.PermissionDenied()
	case bloberror.HasCode(err, bloberror.ServerBusy):
		code = common.EErrorCode.QuotaExceeded()
	case bloberror.HasCode(err, bloberror.InvalidInput, bloberror.OutOfRangeInput, bloberror.InvalidHeaderValue):
		code = common.EErrorCode.InvalidArgument()
	case bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.LeaseIDMissing, bloberror.BlobArchived):
		code = common.EErrorCode.Conflict()
	default:
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			switch {
			case respErr.StatusCode == 401 || respErr.StatusCode == 403:
				code = common.EErrorCode.PermissionDenied()
			case respErr.StatusCode == 404:
				code = common.EErrorCode.NotFound()
			case respErr.StatusCode == 409:
				code = common.EErrorCode.Conflict()
			case respErr.StatusCode == 429:
				code = common.EErrorCode.QuotaExceeded()
			case respErr.StatusCode >= 500:
				code = common.EErrorCode.Unavailable()
			}
		}
	}

	return common.WrapCloudError(code, op, err).WithProvider(common.EProvider.Azure())
}
