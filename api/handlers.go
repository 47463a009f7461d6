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
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudspan/cloudspan/auth"
	"github.com/cloudspan/cloudspan/catalog"
	"github.com/cloudspan/cloudspan/common"
)

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.writeErrorKind(w, KindInvalidArgument, http.StatusBadRequest,
			"request body is not valid JSON for this endpoint")
		return false
	}
	return true
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// handleRegister creates a principal. Anyone may self-register as viewer or
// user; the admin role needs an admin bearer, except for the very first
// principal on an empty store (the bootstrap admin).
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req common.RegisterRequest
	if !s.decode(w, r, &req) {
		return
	}
	role := common.ERole.User()
	if req.Role != nil {
		role = *req.Role
	}
	if role == common.ERole.Admin() {
		if ok, err := s.adminOrBootstrap(r); err != nil {
			s.writeError(w, err)
			return
		} else if !ok {
			s.writeErrorKind(w, KindForbidden, http.StatusForbidden,
				"registering an admin requires an admin bearer")
			return
		}
	}
	rec, err := s.auth.Register(req.PrincipalID, req.Credential, role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, common.RegisterResponse{
		PrincipalID: rec.ID,
		Role:        rec.Role,
		CreatedAt:   rec.CreatedAt,
	})
}

func (s *Server) adminOrBootstrap(r *http.Request) (bool, error) {
	any, err := s.auth.AnyPrincipals()
	if err != nil {
		return false, err
	}
	if !any {
		return true, nil
	}
	token, ok := bearerToken(r)
	if !ok {
		return false, nil
	}
	p, err := s.auth.Validate(token)
	if err != nil {
		return false, nil
	}
	return auth.Require(p, common.ERole.Admin()) == nil, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req common.LoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	token, expires, role, err := s.auth.Login(req.PrincipalID, req.Credential)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, common.LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expires,
		Role:      role,
	})
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// catalogFilter parses ?provider=&tier=&limit=&cursor=. An unparseable
// provider or tier is INVALID_ARGUMENT rather than silently "any".
func (s *Server) catalogFilter(w http.ResponseWriter, r *http.Request) (catalog.Filter, bool) {
	var f catalog.Filter
	q := r.URL.Query()
	if v := q.Get("provider"); v != "" {
		if err := f.Provider.Parse(v); err != nil {
			s.writeErrorKind(w, KindInvalidArgument, http.StatusBadRequest, "unknown provider "+v)
			return f, false
		}
	}
	if v := q.Get("tier"); v != "" {
		if err := f.Tier.Parse(v); err != nil {
			s.writeErrorKind(w, KindInvalidArgument, http.StatusBadRequest, "unknown tier "+v)
			return f, false
		}
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Cursor = q.Get("cursor")
	return f, true
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	f, ok := s.catalogFilter(w, r)
	if !ok {
		return
	}
	objects, next := s.catalog.List(f)
	s.writeJSON(w, http.StatusOK, common.ListObjectsResponse{
		Objects:    objects,
		Count:      len(objects),
		NextCursor: next,
	})
}

func (s *Server) handleCatalogSummary(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	s.writeJSON(w, http.StatusOK, common.CatalogSummaryResponse{
		Providers:   s.catalog.Summaries(s.cost.MonthlyCost),
		GeneratedAt: time.Now().UTC(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req struct {
		Providers []string `json:"providers"`
	}
	if r.ContentLength > 0 && !s.decode(w, r, &req) {
		return
	}
	providers := make([]common.Provider, 0, len(req.Providers))
	for _, tag := range req.Providers {
		var p common.Provider
		if err := p.Parse(tag); err != nil {
			s.writeErrorKind(w, KindInvalidArgument, http.StatusBadRequest, "unknown provider "+tag)
			return
		}
		providers = append(providers, p)
	}
	// detached from the request context: the refresh outlives this response
	accepted := s.catalog.StartRefresh(context.Background(), providers)
	s.writeJSON(w, http.StatusAccepted, accepted)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	f, ok := s.catalogFilter(w, r)
	if !ok {
		return
	}
	recs, total := s.catalog.Recommendations(f)
	s.writeJSON(w, http.StatusOK, common.ListRecommendationsResponse{
		Recommendations:     recs,
		TotalMonthlySavings: total,
		GeneratedAt:         time.Now().UTC(),
	})
}

func (s *Server) handleTierDistribution(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	buckets := s.catalog.TierBuckets(s.cost.MonthlyCost)
	total := 0.0
	for _, b := range buckets {
		total += b.MonthlyCost
	}
	s.writeJSON(w, http.StatusOK, common.TierDistributionResponse{
		Buckets:          buckets,
		TotalMonthlyCost: total,
		GeneratedAt:      time.Now().UTC(),
	})
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func (s *Server) handleCreateMigration(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req common.CreateMigrationRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.engine.Create(r.Context(), p.ID, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	detail, err := s.engine.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, detail)
}

func (s *Server) handleListMigrations(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	owner := r.URL.Query().Get("owner")
	if owner == "me" {
		owner = p.ID
	}
	jobs := s.engine.List(owner)
	s.writeJSON(w, http.StatusOK, common.ListJobsResponse{Jobs: jobs, Count: len(jobs)})
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (common.JobID, bool) {
	id, err := common.ParseJobID(r.PathValue("id"))
	if err != nil {
		s.writeErrorKind(w, KindInvalidArgument, http.StatusBadRequest, "malformed job id")
		return common.JobID{}, false
	}
	return id, true
}

func (s *Server) handleGetMigration(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	detail, err := s.engine.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

// handleCancelMigration cancels the job; only its owner or an admin may.
func (s *Server) handleCancelMigration(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	owner, err := s.engine.Owner(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if owner != p.ID && auth.Require(p, common.ERole.Admin()) != nil {
		s.writeErrorKind(w, KindForbidden, http.StatusForbidden,
			"only the job's owner or an admin may cancel it")
		return
	}
	if err := s.engine.Cancel(id); err != nil {
		s.writeError(w, err)
		return
	}
	detail, err := s.engine.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, detail)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	evs := s.bus.Recent(limit)
	s.writeJSON(w, http.StatusOK, common.RecentEventsResponse{Events: evs, Count: len(evs)})
}

func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	s.writeJSON(w, http.StatusOK, s.bus.Stats())
}
