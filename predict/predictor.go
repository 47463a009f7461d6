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

// Package predict scores catalog entries with the learned access model. The
// model artifact is trained offline; this package only loads it and runs
// inference. Inference is a pure function of the feature vector: no network,
// no catalog access, constant time.
package predict

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/cloudspan/cloudspan/common"
)

// Model is one immutable artifact: a linear scorer over the fixed feature
// vector. Exported via JSON by the training pipeline, e.g.
// {"version":1,"intercept":0.4,"weights":{"access_count_window":0.9,...}}.
type Model struct {
	Version   int                `json:"version"`
	Intercept float64            `json:"intercept"`
	Weights   map[string]float64 `json:"weights"`

	// vector-aligned weights, resolved once at load
	aligned []float64
}

func loadModel(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read model artifact")
	}
	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "parse model artifact")
	}
	names := FeatureNames()
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for n := range m.Weights {
		if !known[n] {
			return nil, errors.Errorf("model weight %q does not match the feature schema", n)
		}
	}
	m.aligned = make([]float64, len(names))
	for i, n := range names {
		m.aligned[i] = m.Weights[n] // absent weights score zero
	}
	return &m, nil
}

// score runs the dot product. Predicted access counts cannot be negative.
func (m *Model) score(features []float64) float64 {
	sum := m.Intercept
	for i, f := range features {
		sum += m.aligned[i] * f
	}
	return math.Max(0, sum)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Predictor holds the current model behind an atomic pointer. Reload swaps the
// whole artifact at once, so concurrent inference sees the old model or the
// new one, never a partial load. A Predictor with no loadable model reports
// unavailable and answers with the rule surrogate.
type Predictor struct {
	path   string
	model  atomic.Pointer[Model]
	logger common.ILogger
}

func NewPredictor(modelPath string, logger common.ILogger) *Predictor {
	p := &Predictor{path: modelPath, logger: logger}
	if modelPath != "" {
		if err := p.Reload(); err != nil {
			p.logf(common.LogWarning, "access predictor model unavailable, using rule surrogate: "+err.Error())
		}
	}
	return p
}

// Reload re-reads the artifact and swaps it in. On failure the previous model
// (if any) stays active. The serve loop calls this on SIGHUP.
func (p *Predictor) Reload() error {
	if p.path == "" {
		return errors.New("no model path configured")
	}
	m, err := loadModel(p.path)
	if err != nil {
		return err
	}
	p.model.Store(m)
	p.logf(common.LogInfo, fmt.Sprintf("access predictor model v%d loaded from %s", m.Version, p.path))
	return nil
}

// Available reports whether a real model is loaded; /health surfaces this as
// model_available.
func (p *Predictor) Available() bool { return p.model.Load() != nil }

// PredictAccessCount estimates reads over the next window. With a model loaded
// this is the model's score; without one it is the surrogate, which just decays
// the observed count by the object's idle time so the classifier's rule keeps
// the upper hand.
func (p *Predictor) PredictAccessCount(e common.CatalogEntry, now time.Time) float64 {
	if m := p.model.Load(); m != nil {
		return m.score(Features(e, now))
	}
	idle := e.AccessStats.DaysSinceLastAccess(e.ObjectRef, now)
	window := float64(common.Iff(e.AccessStats.WindowDays > 0, e.AccessStats.WindowDays, 30))
	return float64(e.AccessStats.AccessCountWindow) * math.Exp(-idle/window)
}

func (p *Predictor) logf(level common.LogLevel, msg string) {
	if p.logger != nil && p.logger.ShouldLog(level) {
		p.logger.Log(level, msg)
	}
}
