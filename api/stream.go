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
	"strconv"
	"time"

	"github.com/cloudspan/cloudspan/auth"
	"github.com/cloudspan/cloudspan/common"
)

// handleStream is the live push channel: newline-delimited JSON frames over a
// long-lived response. The first frame identifies the subscription, then event
// frames and periodic heartbeats follow until the client disconnects. ?replay=N
// prepends up to N buffered events so a reconnecting client can catch up.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeErrorKind(w, KindInternal, http.StatusInternalServerError,
			"streaming is not supported on this connection")
		return
	}
	replay, _ := strconv.Atoi(r.URL.Query().Get("replay"))

	sub := s.bus.Subscribe(replay)
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	send := func(f common.Frame) bool {
		if err := enc.Encode(f); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !send(common.NewConnectionFrame(sub.ID)) {
		return
	}

	interval := s.bus.HeartbeatInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var heartbeats uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.C:
			if !open {
				return
			}
			if !send(common.NewEventFrame(ev)) {
				return
			}
		case <-ticker.C:
			heartbeats++
			if !send(common.NewHeartbeatFrame(heartbeats)) {
				return
			}
		}
	}
}
