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
	"encoding/json"
	"net/http"

	"github.com/cloudspan/cloudspan/common"
)

// ErrorKind is the external error taxonomy. It is deliberately smaller than
// the internal one: TRANSIENT never leaves the process unwrapped, and the
// provider-side kinds collapse into PROVIDER_UNAVAILABLE.
type ErrorKind string

const (
	KindUnauthenticated     ErrorKind = "UNAUTHENTICATED"
	KindForbidden           ErrorKind = "FORBIDDEN"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindInvalidArgument     ErrorKind = "INVALID_ARGUMENT"
	KindConflict            ErrorKind = "CONFLICT"
	KindOverloaded          ErrorKind = "OVERLOADED"
	KindProviderUnavailable ErrorKind = "PROVIDER_UNAVAILABLE"
	KindInternal            ErrorKind = "INTERNAL"
)

// kindOf translates the internal classification into the external taxonomy
// and the transport status that goes with it.
func kindOf(code common.ErrorCode) (ErrorKind, int) {
	switch code {
	case common.EErrorCode.Unauthenticated():
		return KindUnauthenticated, http.StatusUnauthorized
	case common.EErrorCode.Forbidden():
		return KindForbidden, http.StatusForbidden
	case common.EErrorCode.NotFound():
		return KindNotFound, http.StatusNotFound
	case common.EErrorCode.InvalidArgument():
		return KindInvalidArgument, http.StatusBadRequest
	case common.EErrorCode.Conflict():
		return KindConflict, http.StatusConflict
	case common.EErrorCode.Overloaded():
		return KindOverloaded, http.StatusTooManyRequests
	case common.EErrorCode.Unavailable(), common.EErrorCode.QuotaExceeded(),
		common.EErrorCode.PermissionDenied():
		return KindProviderUnavailable, http.StatusBadGateway
	default:
		// TRANSIENT and anything unclassified surface as INTERNAL
		return KindInternal, http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind, status := kindOf(common.CodeOf(err))
	msg := common.DetailOf(err).Message
	if kind == KindInternal {
		// internals are logged with context, clients get a generic line
		s.logf(common.LogError, "internal error: "+s.sanitizer.SanitizeLogMessage(err.Error()))
		msg = "internal error"
	}
	s.writeJSON(w, status, common.ErrorResponse{Error: common.ErrorBody{
		Kind:    string(kind),
		Message: s.sanitizer.SanitizeLogMessage(msg),
	}})
}

func (s *Server) writeErrorKind(w http.ResponseWriter, kind ErrorKind, status int, msg string) {
	s.writeJSON(w, status, common.ErrorResponse{Error: common.ErrorBody{Kind: string(kind), Message: msg}})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logf(common.LogWarning, "response encode failed: "+err.Error())
	}
}
