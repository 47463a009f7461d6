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

// Package api is the HTTP control plane: a thin dispatcher that
// authenticates, authorizes, deserializes, calls one core component, and
// serializes the reply. No business logic lives here.
package api

import (
	"net/http"
	"time"

	"github.com/cloudspan/cloudspan/auth"
	"github.com/cloudspan/cloudspan/catalog"
	"github.com/cloudspan/cloudspan/common"
	"github.com/cloudspan/cloudspan/engine"
	"github.com/cloudspan/cloudspan/events"
	"github.com/cloudspan/cloudspan/metricsint"
	"github.com/cloudspan/cloudspan/placement"
	"github.com/cloudspan/cloudspan/predict"
)

type Server struct {
	auth      *auth.Service
	catalog   *catalog.Catalog
	cost      *placement.CostModel
	engine    *engine.Engine
	bus       *events.Bus
	predictor *predict.Predictor
	metrics   *metricsint.Metrics
	storeKind string
	logger    common.ILogger
	sanitizer common.LogSanitizer
	startedAt time.Time
	mux       *http.ServeMux
}

// Deps carries everything the control plane dispatches to. All fields except
// Logger and Metrics are required.
type Deps struct {
	Auth      *auth.Service
	Catalog   *catalog.Catalog
	Cost      *placement.CostModel
	Engine    *engine.Engine
	Bus       *events.Bus
	Predictor *predict.Predictor
	Metrics   *metricsint.Metrics
	StoreKind string
	Logger    common.ILogger
}

func NewServer(d Deps) *Server {
	s := &Server{
		auth:      d.Auth,
		catalog:   d.Catalog,
		cost:      d.Cost,
		engine:    d.Engine,
		bus:       d.Bus,
		predictor: d.Predictor,
		metrics:   d.Metrics,
		storeKind: d.StoreKind,
		logger:    d.Logger,
		sanitizer: common.NewLogSanitizer(),
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	viewer, user, admin := common.ERole.Viewer(), common.ERole.User(), common.ERole.Admin()

	s.mux.HandleFunc("POST /auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /auth/login", s.handleLogin)

	s.mux.HandleFunc("GET /catalog/objects", s.protect(viewer, s.handleListObjects))
	s.mux.HandleFunc("GET /catalog/summary", s.protect(viewer, s.handleCatalogSummary))
	s.mux.HandleFunc("POST /catalog/refresh", s.protect(admin, s.handleRefresh))

	s.mux.HandleFunc("GET /placement/recommendations", s.protect(viewer, s.handleRecommendations))
	s.mux.HandleFunc("GET /placement/tier-distribution", s.protect(viewer, s.handleTierDistribution))

	s.mux.HandleFunc("POST /migrations", s.protect(user, s.handleCreateMigration))
	s.mux.HandleFunc("GET /migrations", s.protect(viewer, s.handleListMigrations))
	s.mux.HandleFunc("GET /migrations/{id}", s.protect(viewer, s.handleGetMigration))
	s.mux.HandleFunc("DELETE /migrations/{id}", s.protect(user, s.handleCancelMigration))

	s.mux.HandleFunc("GET /events/recent", s.protect(viewer, s.handleRecentEvents))
	s.mux.HandleFunc("GET /events/stats", s.protect(admin, s.handleEventStats))
	s.mux.HandleFunc("GET /events/stream", s.protect(viewer, s.handleStream))

	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Handler is the full middleware stack around the route table.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.mux)
}

func (s *Server) logf(level common.LogLevel, msg string) {
	if s.logger != nil && s.logger.ShouldLog(level) {
		s.logger.Log(level, msg)
	}
}
