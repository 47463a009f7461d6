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

package placement

import (
	"fmt"
	"math"
	"time"

	"github.com/cloudspan/cloudspan/common"
)

// Access thresholds, in reads over the rolling window. hotAccessThreshold is
// the rule threshold; warmAccessFloor and coldAccessFloor bound the bands the
// predictor's output is read against.
const (
	hotAccessThreshold = 100
	warmAccessFloor    = 5
	coldAccessFloor    = 1

	hotRecencyDays  = 7
	coldIdleDays    = 30
	archiveAgeDays  = 365
	hotMaxSizeBytes = int64(1) << 30  // 1 GiB
	coldMinSize     = int64(10) << 30 // 10 GiB
)

// AccessPredictor is the slice of the predictor the classifier consumes.
type AccessPredictor interface {
	Available() bool
	PredictAccessCount(e common.CatalogEntry, now time.Time) float64
}

// Classifier derives at most one recommendation per catalog entry. It is pure
// for a fixed clock and predictor: identical inputs produce identical outputs.
type Classifier struct {
	cost       *CostModel
	predictor  AccessPredictor
	minSavings float64
	now        func() time.Time
}

func NewClassifier(cost *CostModel, predictor AccessPredictor, minSavings float64) *Classifier {
	if minSavings <= 0 {
		minSavings = 0.01
	}
	return &Classifier{cost: cost, predictor: predictor, minSavings: minSavings, now: time.Now}
}

// WithClock pins the classifier's idea of "now"; tests use it, production does not.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

func (c *Classifier) Classify(e common.CatalogEntry) *common.Recommendation {
	now := c.now().UTC()
	accesses := e.AccessStats.AccessCountWindow
	ageDays := e.AgeDays(now)
	idleDays := e.AccessStats.DaysSinceLastAccess(e.ObjectRef, now)

	temp, tag, reason := temperatureRule(accesses, ageDays, idleDays, e.SizeBytes)
	confidence := 0.7

	if c.predictor != nil && c.predictor.Available() {
		predicted := c.predictor.PredictAccessCount(e, now)
		pTemp := temperatureForPredicted(predicted, ageDays)
		if pTemp != temp {
			// the confidence is the predictor's only when its verdict is
			// the one being recommended
			confidence = predictorConfidence(predicted)
			if pTemp.WarmerThan(temp) {
				tag = "predictor_promote"
			} else {
				tag = "predictor_demote"
			}
			reason = fmt.Sprintf("predictor expects %.1f accesses next window (rule said %s)", predicted, temp)
			temp = pTemp
		}
	}

	target := c.cost.RoundToSupported(e.Provider, temp)
	if target == e.CurrentTier {
		return nil
	}

	savings := c.cost.MonthlySavingsWithRetrieval(e.Provider, e.CurrentTier, target, e.SizeBytes, accesses)
	if savings < c.minSavings {
		return nil
	}
	priority := common.ERecPriority.Low()
	switch {
	case savings >= 10*c.minSavings:
		priority = common.ERecPriority.High()
	case savings >= 3*c.minSavings:
		priority = common.ERecPriority.Medium()
	}

	if target != temp {
		reason += fmt.Sprintf("; %s has no %s tier, rounded to %s", e.Provider, temp, target)
	}
	return &common.Recommendation{
		RecommendedTier: target,
		MonthlySavings:  savings,
		Priority:        priority,
		RationaleTag:    tag,
		Rationale:       reason,
		Confidence:      confidence,
	}
}

// temperatureRule is evaluated coldest first, so an entry sitting exactly on
// two rule boundaries lands on the colder tier.
func temperatureRule(accesses int, ageDays, idleDays float64, sizeBytes int64) (common.Tier, string, string) {
	switch {
	case ageDays > archiveAgeDays && accesses == 0:
		return common.ETier.Archive(), "stale_unaccessed",
			fmt.Sprintf("%.0f days old with no reads in the window", ageDays)
	case idleDays > coldIdleDays && sizeBytes > coldMinSize:
		return common.ETier.Cold(), "large_idle",
			fmt.Sprintf("%.1f GiB untouched for %.0f days", float64(sizeBytes)/gib, idleDays)
	case accesses >= hotAccessThreshold:
		return common.ETier.Hot(), "high_access",
			fmt.Sprintf("%d reads in the window", accesses)
	case idleDays <= hotRecencyDays && sizeBytes < hotMaxSizeBytes:
		return common.ETier.Hot(), "recent_small",
			fmt.Sprintf("read %.0f days ago and under 1 GiB", idleDays)
	default:
		return common.ETier.Warm(), "steady_state", "moderate access pattern"
	}
}

// temperatureForPredicted maps a predicted access count onto the same bands
// the rule uses. A prediction of effectively zero only reaches ARCHIVE for
// objects old enough to qualify under the rule; younger ones stop at COLD.
func temperatureForPredicted(predicted, ageDays float64) common.Tier {
	switch {
	case predicted >= hotAccessThreshold:
		return common.ETier.Hot()
	case predicted >= warmAccessFloor:
		return common.ETier.Warm()
	case predicted >= coldAccessFloor:
		return common.ETier.Cold()
	case ageDays > archiveAgeDays:
		return common.ETier.Archive()
	default:
		return common.ETier.Cold()
	}
}

// predictorConfidence grows with the prediction's distance from the nearest
// band edge, clamped to [0.5, 0.95]. A prediction sitting on an edge is a coin
// toss; one far inside a band is close to certain.
func predictorConfidence(predicted float64) float64 {
	edges := []float64{coldAccessFloor, warmAccessFloor, hotAccessThreshold}
	nearest := math.Inf(1)
	for _, edge := range edges {
		if d := math.Abs(predicted - edge); d < nearest {
			nearest = d
		}
	}
	edgeScale := warmAccessFloor // distance worth full confidence
	conf := 0.5 + 0.45*math.Min(1, nearest/float64(edgeScale))
	return math.Min(0.95, math.Max(0.5, conf))
}
