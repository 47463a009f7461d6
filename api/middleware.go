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
	"net/http"
	"strconv"
	"strings"

	"github.com/cloudspan/cloudspan/auth"
	"github.com/cloudspan/cloudspan/common"
)

// protectedHandler receives the already-authenticated principal.
type protectedHandler func(w http.ResponseWriter, r *http.Request, p auth.Principal)

// protect authenticates the bearer token and enforces the minimum role before
// dispatching. Missing, malformed, foreign and expired tokens are all the same
// UNAUTHENTICATED to the caller.
func (s *Server) protect(min common.Role, h protectedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeErrorKind(w, KindUnauthenticated, http.StatusUnauthorized, "missing bearer token")
			return
		}
		p, err := s.auth.Validate(token)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := auth.Require(p, min); err != nil {
			s.writeError(w, err)
			return
		}
		h(w, r, p)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// statusRecorder remembers the status code written downstream so requests can
// be counted by code. Flush is forwarded so the push channel keeps working
// through the wrapper.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(strconv.Itoa(rec.status)).Inc()
		}
		if s.logger != nil && s.logger.ShouldLog(common.LogDebug) {
			s.logger.Log(common.LogDebug, r.Method+" "+
				s.sanitizer.SanitizeLogMessage(r.URL.Path)+" -> "+strconv.Itoa(rec.status))
		}
	})
}
