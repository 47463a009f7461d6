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
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/pkg/errors"

	"github.com/cloudspan/cloudspan/common"
)

const (
	jobsTable       = "cloudspanjobs"
	principalsTable = "cloudspanprincipals"

	jobPartition       = "job"
	principalPartition = "principal"

	tableOpTimeout = 15 * time.Second
)

// tableStore keeps each record as one table entity: PartitionKey is the record
// kind, RowKey the id, and the whole JSON document rides in a single "data"
// property. That keeps the table schema-free and the round-trip identical to
// the file store's.
type tableStore struct {
	jobs       *aztables.Client
	principals *aztables.Client
}

func NewTableStore(connectionString string) (*tableStore, error) {
	if connectionString == "" {
		return nil, common.NewCloudError(common.EErrorCode.InvalidArgument(), "store",
			"azure-table store needs CLOUDSPAN_STORE_TABLE_CONNECTION")
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, common.WrapCloudError(common.EErrorCode.InvalidArgument(), "store_init", err)
	}
	ts := &tableStore{
		jobs:       svc.NewClient(jobsTable),
		principals: svc.NewClient(principalsTable),
	}
	ctx, cancel := context.WithTimeout(context.Background(), tableOpTimeout)
	defer cancel()
	for _, name := range []string{jobsTable, principalsTable} {
		if _, err := svc.CreateTable(ctx, name, nil); err != nil && !isTableConflict(err) {
			return nil, common.WrapCloudError(common.EErrorCode.Unavailable(), "store_init", err)
		}
	}
	return ts, nil
}

func isTableConflict(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 409
}

func isTableNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

func (ts *tableStore) upsert(client *aztables.Client, partition, row string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return common.WrapCloudError(common.EErrorCode.Internal(), "store_write", err)
	}
	buf, err := aztables.EDMEntity{
		Entity: aztables.Entity{
			PartitionKey: partition,
			RowKey:       row,
		},
		Properties: map[string]any{
			"data": string(data),
		},
	}.MarshalJSON()
	if err != nil {
		return common.WrapCloudError(common.EErrorCode.Internal(), "store_write", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), tableOpTimeout)
	defer cancel()
	if _, err := client.UpsertEntity(ctx, buf, nil); err != nil {
		return common.WrapCloudError(common.EErrorCode.Unavailable(), "store_write", err)
	}
	return nil
}

func (ts *tableStore) get(client *aztables.Client, partition, row string, doc any) error {
	ctx, cancel := context.WithTimeout(context.Background(), tableOpTimeout)
	defer cancel()
	resp, err := client.GetEntity(ctx, partition, row, nil)
	if err != nil {
		if isTableNotFound(err) {
			return common.NewCloudError(common.EErrorCode.NotFound(), "store_read", "no such record")
		}
		return common.WrapCloudError(common.EErrorCode.Unavailable(), "store_read", err)
	}
	return decodeEntity(resp.Value, doc)
}

func decodeEntity(raw []byte, doc any) error {
	var entity aztables.EDMEntity
	if err := json.Unmarshal(raw, &entity); err != nil {
		return common.WrapCloudError(common.EErrorCode.Internal(), "store_read", err)
	}
	data, _ := entity.Properties["data"].(string)
	if err := json.Unmarshal([]byte(data), doc); err != nil {
		return common.WrapCloudError(common.EErrorCode.Internal(), "store_read", err)
	}
	return nil
}

func (ts *tableStore) list(client *aztables.Client, partition string, each func(raw []byte) error) error {
	filter := "PartitionKey eq '" + partition + "'"
	pager := client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		ctx, cancel := context.WithTimeout(context.Background(), tableOpTimeout)
		page, err := pager.NextPage(ctx)
		cancel()
		if err != nil {
			return common.WrapCloudError(common.EErrorCode.Unavailable(), "store_list", err)
		}
		for _, raw := range page.Entities {
			if err := each(raw); err != nil {
				return err
			}
		}
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func (ts *tableStore) PutJob(rec JobRecord) error {
	return ts.upsert(ts.jobs, jobPartition, rec.JobID.String(), rec)
}

func (ts *tableStore) GetJob(id common.JobID) (JobRecord, error) {
	var rec JobRecord
	err := ts.get(ts.jobs, jobPartition, id.String(), &rec)
	return rec, err
}

func (ts *tableStore) ListJobs() ([]JobRecord, error) {
	var out []JobRecord
	err := ts.list(ts.jobs, jobPartition, func(raw []byte) error {
		var rec JobRecord
		if err := decodeEntity(raw, &rec); err != nil {
			return nil // skip torn rows, same policy as the file store
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

func (ts *tableStore) DeleteJob(id common.JobID) error {
	ctx, cancel := context.WithTimeout(context.Background(), tableOpTimeout)
	defer cancel()
	if _, err := ts.jobs.DeleteEntity(ctx, jobPartition, id.String(), nil); err != nil && !isTableNotFound(err) {
		return common.WrapCloudError(common.EErrorCode.Unavailable(), "store_delete", err)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func (ts *tableStore) PutPrincipal(rec PrincipalRecord) error {
	return ts.upsert(ts.principals, principalPartition, rec.ID, rec)
}

func (ts *tableStore) GetPrincipal(id string) (PrincipalRecord, error) {
	var rec PrincipalRecord
	err := ts.get(ts.principals, principalPartition, id, &rec)
	return rec, err
}

func (ts *tableStore) ListPrincipals() ([]PrincipalRecord, error) {
	var out []PrincipalRecord
	err := ts.list(ts.principals, principalPartition, func(raw []byte) error {
		var rec PrincipalRecord
		if err := decodeEntity(raw, &rec); err != nil {
			return nil
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}
