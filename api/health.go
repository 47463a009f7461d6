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
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cloudspan/cloudspan/common"
)

// handleHealth is unauthenticated so load balancers can probe it. "degraded"
// means at least one provider's last refresh failed; the process itself is up
// either way.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := common.HealthResponse{
		Status:        "ok",
		Version:       common.CloudspanVersion,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Engine:        s.engine.Health(),
		Predictor:     common.PredictorHealth{ModelAvailable: s.predictor != nil && s.predictor.Available()},
		Store:         common.StoreHealth{Kind: s.storeKind, Reachable: true},
		System:        systemHealth(),
	}
	for p, st := range s.catalog.Status() {
		ph := common.ProviderHealth{
			Provider: p,
			Healthy:  st.LastError == "",
			Objects:  int(st.Objects),
			Error:    st.LastError,
		}
		if !st.LastRefresh.IsZero() {
			t := st.LastRefresh
			ph.LastRefresh = &t
		}
		if !ph.Healthy {
			resp.Status = "degraded"
		}
		resp.Providers = append(resp.Providers, ph)
	}
	sort.Slice(resp.Providers, func(i, j int) bool {
		return resp.Providers[i].Provider < resp.Providers[j].Provider
	})
	s.writeJSON(w, http.StatusOK, resp)
}

// systemHealth samples the host. Sampling failures leave zeros rather than
// failing the probe.
func systemHealth() common.SystemHealth {
	sys := common.SystemHealth{Goroutines: runtime.NumGoroutine()}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		sys.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		sys.MemoryUsedPercent = vm.UsedPercent
	}
	return sys
}
