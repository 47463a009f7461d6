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

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudspan/cloudspan/adapter"
	"github.com/cloudspan/cloudspan/auth"
	"github.com/cloudspan/cloudspan/catalog"
	"github.com/cloudspan/cloudspan/common"
	"github.com/cloudspan/cloudspan/engine"
	"github.com/cloudspan/cloudspan/events"
	"github.com/cloudspan/cloudspan/metricsint"
	"github.com/cloudspan/cloudspan/placement"
	"github.com/cloudspan/cloudspan/predict"
	"github.com/cloudspan/cloudspan/store"
)

// apiRig is the whole stack behind a test server: mock adapters, a file store
// in a temp dir, and the engine left un-started so jobs stay PENDING and the
// lifecycle assertions are deterministic.
type apiRig struct {
	ts  *httptest.Server
	bus *events.Bus
	cat *catalog.Catalog
	src *adapter.MockAdapter
	dst *adapter.MockAdapter
}

func newAPIRig(t *testing.T) *apiRig {
	src, dst := adapter.NewMockAdapter(), adapter.NewMockAdapter()
	src.Seed("src-bucket", "data/a.bin", 1024, common.ETier.Hot(), time.Now().UTC())
	src.Seed("src-bucket", "data/b.bin", 2048, common.ETier.Hot(), time.Now().UTC())
	adapters := adapter.Set{
		common.EProvider.AWS():   src,
		common.EProvider.Azure(): dst,
	}

	jobs, principals, err := store.NewStores(store.Config{Kind: "file", Location: t.TempDir()})
	require.NoError(t, err)

	bus := events.NewBus(events.Config{Heartbeat: 50 * time.Millisecond})
	t.Cleanup(bus.Close)

	cost := placement.NewCostModel(placement.DefaultStoragePrices(), placement.DefaultRetrievalPrices())
	predictor := predict.NewPredictor("", nil)
	classifier := placement.NewClassifier(cost, predictor, 0)
	cat := catalog.NewCatalog(adapters, catalog.Config{
		Containers: map[common.Provider][]string{
			common.EProvider.AWS():   {"src-bucket"},
			common.EProvider.Azure(): {"dst-container"},
		},
	}, classifier, bus, nil)

	authSvc, err := auth.NewService(principals, auth.Config{})
	require.NoError(t, err)

	metrics := metricsint.New()
	eng := engine.NewEngine(engine.Config{}, adapters, jobs, bus, cat, metrics, nil)

	srv := NewServer(Deps{
		Auth:      authSvc,
		Catalog:   cat,
		Cost:      cost,
		Engine:    eng,
		Bus:       bus,
		Predictor: predictor,
		Metrics:   metrics,
		StoreKind: "file",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &apiRig{ts: ts, bus: bus, cat: cat, src: src, dst: dst}
}

// do issues one request against the rig. A nil body sends no payload; a non-nil
// one is JSON-encoded. The response body is fully read and returned decoded
// into a generic map so assertions can reach into it.
func (rig *apiRig) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, rig.ts.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := rig.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp.StatusCode, decoded
}

func (rig *apiRig) register(t *testing.T, id, credential, role, token string) (int, map[string]any) {
	t.Helper()
	body := map[string]any{"principal_id": id, "credential": credential}
	if role != "" {
		body["role"] = role
	}
	return rig.do(t, http.MethodPost, "/auth/register", token, body)
}

func (rig *apiRig) login(t *testing.T, id, credential string) string {
	t.Helper()
	status, body := rig.do(t, http.MethodPost, "/auth/login", "",
		map[string]any{"principal_id": id, "credential": credential})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

// bootstrapAdmin registers the first principal, which is allowed to claim the
// admin role on an empty store, and returns its token.
func (rig *apiRig) bootstrapAdmin(t *testing.T) string {
	t.Helper()
	status, _ := rig.register(t, "root", "root-credential", "admin", "")
	require.Equal(t, http.StatusCreated, status)
	return rig.login(t, "root", "root-credential")
}

func (rig *apiRig) userToken(t *testing.T, id string) string {
	t.Helper()
	status, _ := rig.register(t, id, id+"-credential", "", "")
	require.Equal(t, http.StatusCreated, status)
	return rig.login(t, id, id+"-credential")
}

func errorKind(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	kind, _ := e["kind"].(string)
	return kind
}

func migrationBody() map[string]any {
	return map[string]any{
		"source_provider":  "AWS",
		"dest_provider":    "AZURE",
		"source_container": "src-bucket",
		"dest_container":   "dst-container",
		"file_list":        []string{"data/a.bin", "data/b.bin"},
	}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func TestRequestsWithoutTokenAreUnauthenticated(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)

	for _, path := range []string{"/catalog/objects", "/migrations", "/events/recent"} {
		status, body := rig.do(t, http.MethodGet, path, "", nil)
		a.Equal(http.StatusUnauthorized, status, path)
		a.Equal("UNAUTHENTICATED", errorKind(body), path)
	}

	status, body := rig.do(t, http.MethodGet, "/migrations", "not-a-real-token", nil)
	a.Equal(http.StatusUnauthorized, status)
	a.Equal("UNAUTHENTICATED", errorKind(body))
}

func TestRegisterAndLoginRoundTrip(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)

	status, body := rig.register(t, "alice", "correct horse battery", "", "")
	a.Equal(http.StatusCreated, status)
	a.Equal("alice", body["principal_id"])
	a.Equal("user", body["role"]) // absent role defaults to user

	status, body = rig.do(t, http.MethodPost, "/auth/login", "",
		map[string]any{"principal_id": "alice", "credential": "correct horse battery"})
	a.Equal(http.StatusOK, status)
	a.Equal("Bearer", body["token_type"])
	token, _ := body["token"].(string)
	a.NotEmpty(token)

	status, _ = rig.do(t, http.MethodGet, "/migrations", token, nil)
	a.Equal(http.StatusOK, status)

	// wrong credential and unknown principal are the same answer
	status, body = rig.do(t, http.MethodPost, "/auth/login", "",
		map[string]any{"principal_id": "alice", "credential": "wrong"})
	a.Equal(http.StatusUnauthorized, status)
	a.Equal("UNAUTHENTICATED", errorKind(body))
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)

	status, _ := rig.register(t, "alice", "first credential", "", "")
	a.Equal(http.StatusCreated, status)
	status, body := rig.register(t, "alice", "second credential", "", "")
	a.Equal(http.StatusConflict, status)
	a.Equal("CONFLICT", errorKind(body))
}

func TestBootstrapAdminThenGatedAdminRegistration(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)

	// empty store: the first registration may claim admin with no bearer
	adminToken := rig.bootstrapAdmin(t)

	// once any principal exists, admin registration needs an admin bearer
	status, body := rig.register(t, "mallory", "mallory-credential", "admin", "")
	a.Equal(http.StatusForbidden, status)
	a.Equal("FORBIDDEN", errorKind(body))

	userToken := rig.userToken(t, "bob")
	status, _ = rig.register(t, "second-admin", "strong credential", "admin", userToken)
	a.Equal(http.StatusForbidden, status)

	status, body = rig.register(t, "second-admin", "strong credential", "admin", adminToken)
	a.Equal(http.StatusCreated, status)
	a.Equal("admin", body["role"])
}

func TestViewerCannotCreateMigration(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)

	status, _ := rig.register(t, "watcher", "watcher-credential", "viewer", "")
	require.Equal(t, http.StatusCreated, status)
	token := rig.login(t, "watcher", "watcher-credential")

	status, _ = rig.do(t, http.MethodGet, "/catalog/objects", token, nil)
	a.Equal(http.StatusOK, status)

	status, body := rig.do(t, http.MethodPost, "/migrations", token, migrationBody())
	a.Equal(http.StatusForbidden, status)
	a.Equal("FORBIDDEN", errorKind(body))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func TestCreateGetCancelMigration(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)
	token := rig.userToken(t, "alice")

	status, body := rig.do(t, http.MethodPost, "/migrations", token, migrationBody())
	a.Equal(http.StatusCreated, status)
	id, _ := body["job_id"].(string)
	a.NotEmpty(id)
	a.Equal("PENDING", body["status"])
	a.Equal(float64(2), body["total_files"])

	status, body = rig.do(t, http.MethodGet, "/migrations/"+id, token, nil)
	a.Equal(http.StatusOK, status)
	a.Equal("alice", body["owner"])
	files, _ := body["files"].([]any)
	a.Len(files, 2)

	status, body = rig.do(t, http.MethodGet, "/migrations?owner=me", token, nil)
	a.Equal(http.StatusOK, status)
	a.Equal(float64(1), body["count"])

	status, body = rig.do(t, http.MethodDelete, "/migrations/"+id, token, nil)
	a.Equal(http.StatusAccepted, status)
	a.Equal("CANCELLED", body["status"])

	// cancelling a terminal job is a conflict
	status, body = rig.do(t, http.MethodDelete, "/migrations/"+id, token, nil)
	a.Equal(http.StatusConflict, status)
	a.Equal("CONFLICT", errorKind(body))
}

func TestCancelByNonOwnerIsForbidden(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)
	adminToken := rig.bootstrapAdmin(t)
	alice := rig.userToken(t, "alice")
	bob := rig.userToken(t, "bob")

	status, body := rig.do(t, http.MethodPost, "/migrations", alice, migrationBody())
	require.Equal(t, http.StatusCreated, status)
	id, _ := body["job_id"].(string)

	status, body = rig.do(t, http.MethodDelete, "/migrations/"+id, bob, nil)
	a.Equal(http.StatusForbidden, status)
	a.Equal("FORBIDDEN", errorKind(body))

	// admins can cancel anyone's job
	status, _ = rig.do(t, http.MethodDelete, "/migrations/"+id, adminToken, nil)
	a.Equal(http.StatusAccepted, status)
}

func TestMigrationIDValidation(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)
	token := rig.userToken(t, "alice")

	status, body := rig.do(t, http.MethodGet, "/migrations/not-a-uuid", token, nil)
	a.Equal(http.StatusBadRequest, status)
	a.Equal("INVALID_ARGUMENT", errorKind(body))

	unknown := common.NewJobID().String()
	status, body = rig.do(t, http.MethodGet, "/migrations/"+unknown, token, nil)
	a.Equal(http.StatusNotFound, status)
	a.Equal("NOT_FOUND", errorKind(body))
}

func TestInvalidMigrationRequestIsRejected(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)
	token := rig.userToken(t, "alice")

	body := migrationBody()
	body["file_list"] = []string{}
	status, resp := rig.do(t, http.MethodPost, "/migrations", token, body)
	a.Equal(http.StatusBadRequest, status)
	a.Equal("INVALID_ARGUMENT", errorKind(resp))

	status, resp = rig.do(t, http.MethodPost, "/migrations", token, map[string]any{
		"source_provider": "DROPBOX",
	})
	a.Equal(http.StatusBadRequest, status)
	a.Equal("INVALID_ARGUMENT", errorKind(resp))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func TestCatalogEndpointsServeRefreshedInventory(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)
	token := rig.userToken(t, "alice")

	rig.cat.Refresh(context.Background(), nil)

	status, body := rig.do(t, http.MethodGet, "/catalog/objects?provider=AWS", token, nil)
	a.Equal(http.StatusOK, status)
	a.Equal(float64(2), body["count"])

	status, body = rig.do(t, http.MethodGet, "/catalog/objects?provider=dropbox", token, nil)
	a.Equal(http.StatusBadRequest, status)
	a.Equal("INVALID_ARGUMENT", errorKind(body))

	status, body = rig.do(t, http.MethodGet, "/catalog/summary", token, nil)
	a.Equal(http.StatusOK, status)
	a.NotNil(body["providers"])

	status, _ = rig.do(t, http.MethodGet, "/placement/recommendations", token, nil)
	a.Equal(http.StatusOK, status)
	status, _ = rig.do(t, http.MethodGet, "/placement/tier-distribution", token, nil)
	a.Equal(http.StatusOK, status)
}

func TestRefreshRequiresAdmin(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)
	adminToken := rig.bootstrapAdmin(t)
	userToken := rig.userToken(t, "alice")

	status, body := rig.do(t, http.MethodPost, "/catalog/refresh", userToken, nil)
	a.Equal(http.StatusForbidden, status)
	a.Equal("FORBIDDEN", errorKind(body))

	status, body = rig.do(t, http.MethodPost, "/catalog/refresh", adminToken,
		map[string]any{"providers": []string{"AWS"}})
	a.Equal(http.StatusAccepted, status)
	a.NotEmpty(body["refresh_id"])
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func TestEventEndpoints(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)
	adminToken := rig.bootstrapAdmin(t)
	userToken := rig.userToken(t, "alice")

	rig.bus.Publish(common.NewEvent(common.EEventType.ProviderConnected(), nil))

	status, body := rig.do(t, http.MethodGet, "/events/recent?limit=10", userToken, nil)
	a.Equal(http.StatusOK, status)
	count, _ := body["count"].(float64)
	a.GreaterOrEqual(count, float64(1))

	// stats are admin-only
	status, _ = rig.do(t, http.MethodGet, "/events/stats", userToken, nil)
	a.Equal(http.StatusForbidden, status)
	status, body = rig.do(t, http.MethodGet, "/events/stats", adminToken, nil)
	a.Equal(http.StatusOK, status)
	a.GreaterOrEqual(body["published_total"].(float64), float64(1))
}

func TestStreamHandshakeAndEventFrame(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)
	token := rig.userToken(t, "alice")

	req, err := http.NewRequest(http.MethodGet, rig.ts.URL+"/events/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := rig.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	a.Equal("application/x-ndjson", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() map[string]any {
		line, err := reader.ReadBytes('\n')
		require.NoError(t, err)
		frame := map[string]any{}
		require.NoError(t, json.Unmarshal(line, &frame))
		return frame
	}

	// the first frame identifies the subscription
	frame := readFrame()
	a.Equal("connection", frame["type"])
	a.NotEmpty(frame["id"])

	rig.bus.Publish(common.NewEvent(common.EEventType.ProviderConnected(), nil))

	// heartbeats may interleave; scan until the event frame arrives
	for i := 0; i < 10; i++ {
		frame = readFrame()
		if frame["type"] == "event" {
			break
		}
		a.Equal("heartbeat", frame["type"])
	}
	a.Equal("event", frame["type"])
	payload, _ := frame["payload"].(map[string]any)
	a.Equal("cloud.provider_connected", payload["type"])
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func TestHealthIsOpenAndShapesUp(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)

	status, body := rig.do(t, http.MethodGet, "/health", "", nil)
	a.Equal(http.StatusOK, status)
	a.Equal("ok", body["status"])
	a.Equal(common.CloudspanVersion, body["version"])

	engineHealth, _ := body["engine"].(map[string]any)
	a.NotNil(engineHealth)
	a.GreaterOrEqual(engineHealth["workers"].(float64), float64(1))

	predictor, _ := body["predictor"].(map[string]any)
	a.Equal(false, predictor["model_available"])

	storeHealth, _ := body["store"].(map[string]any)
	a.Equal("file", storeHealth["kind"])

	system, _ := body["system"].(map[string]any)
	a.Greater(system["goroutines"].(float64), float64(0))
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	a := assert.New(t)
	rig := newAPIRig(t)

	// a prior request gives the by-code counter a child to render
	status, _ := rig.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)

	resp, err := rig.ts.Client().Get(rig.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	a.Equal(http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	a.Contains(string(raw), "cloudspan_http_requests_total")
}
