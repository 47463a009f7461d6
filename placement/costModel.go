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

// Package placement prices storage and decides where objects should live.
// The cost model is a constant table; the classifier layers access rules, an
// optional learned predictor, and an economic filter on top of it.
package placement

import (
	"encoding/json"
	"os"

	"github.com/cloudspan/cloudspan/common"
)

const gib = float64(1 << 30)

// PriceTable maps (provider, tier) to USD per GiB per month. A missing cell
// means the provider does not offer that tier; the classifier rounds to the
// nearest offered one.
type PriceTable map[common.Provider]map[common.Tier]float64

// DefaultStoragePrices mirrors list prices at the time of writing. Deployments
// with negotiated rates override them via CLOUDSPAN_PRICING_FILE.
func DefaultStoragePrices() PriceTable {
	hot, warm, cold, arc := common.ETier.Hot(), common.ETier.Warm(), common.ETier.Cold(), common.ETier.Archive()
	return PriceTable{
		common.EProvider.AWS():   {hot: 0.023, warm: 0.0125, cold: 0.004, arc: 0.00099},
		common.EProvider.Azure(): {hot: 0.0208, warm: 0.0152, cold: 0.002, arc: 0.00099},
		common.EProvider.GCP():   {hot: 0.020, warm: 0.010, cold: 0.004, arc: 0.0012},
		common.EProvider.Mock():  {hot: 0.023, warm: 0.0125, cold: 0.004, arc: 0.00099},
	}
}

// DefaultRetrievalPrices is USD per GiB read back out of each tier. Colder
// tiers store cheap but read expensive; the economic filter needs both sides.
func DefaultRetrievalPrices() PriceTable {
	hot, warm, cold, arc := common.ETier.Hot(), common.ETier.Warm(), common.ETier.Cold(), common.ETier.Archive()
	return PriceTable{
		common.EProvider.AWS():   {hot: 0, warm: 0.01, cold: 0.03, arc: 0.05},
		common.EProvider.Azure(): {hot: 0, warm: 0.01, cold: 0.02, arc: 0.05},
		common.EProvider.GCP():   {hot: 0, warm: 0.01, cold: 0.05, arc: 0.05},
		common.EProvider.Mock():  {hot: 0, warm: 0.01, cold: 0.03, arc: 0.05},
	}
}

// LoadPriceTable reads a JSON table keyed by provider and tier tags, e.g.
// {"AWS": {"HOT": 0.023, "ARCHIVE": 0.00099}}.
func LoadPriceTable(path string) (PriceTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, common.WrapCloudError(common.EErrorCode.InvalidArgument(), "load_prices", err)
	}
	var byTag map[string]map[string]float64
	if err := json.Unmarshal(raw, &byTag); err != nil {
		return nil, common.WrapCloudError(common.EErrorCode.InvalidArgument(), "load_prices", err)
	}
	table := make(PriceTable, len(byTag))
	for pTag, tiers := range byTag {
		var p common.Provider
		if err := p.Parse(pTag); err != nil {
			return nil, common.WrapCloudError(common.EErrorCode.InvalidArgument(), "load_prices", err)
		}
		table[p] = make(map[common.Tier]float64, len(tiers))
		for tTag, price := range tiers {
			var t common.Tier
			if err := t.Parse(tTag); err != nil {
				return nil, common.WrapCloudError(common.EErrorCode.InvalidArgument(), "load_prices", err)
			}
			table[p][t] = price
		}
	}
	return table, nil
}

// CostModel answers "what does this object cost per month where it is, and
// where it could be". Prices are fixed at construction.
type CostModel struct {
	storage   PriceTable
	retrieval PriceTable
}

func NewCostModel(storage, retrieval PriceTable) *CostModel {
	if storage == nil {
		storage = DefaultStoragePrices()
	}
	if retrieval == nil {
		retrieval = DefaultRetrievalPrices()
	}
	return &CostModel{storage: storage, retrieval: retrieval}
}

// Supports reports whether the provider offers the tier at all.
func (m *CostModel) Supports(p common.Provider, t common.Tier) bool {
	_, ok := m.storage[p][t]
	return ok
}

// MonthlyCost is the storage cost of keeping size bytes on the tier for a month.
func (m *CostModel) MonthlyCost(p common.Provider, t common.Tier, sizeBytes int64) float64 {
	return float64(sizeBytes) / gib * m.storage[p][t]
}

// MonthlySavings is what moving saves, never negative: moving warmer costs
// money and prices as zero savings.
func (m *CostModel) MonthlySavings(p common.Provider, current, recommended common.Tier, sizeBytes int64) float64 {
	d := m.MonthlyCost(p, current, sizeBytes) - m.MonthlyCost(p, recommended, sizeBytes)
	if d < 0 {
		return 0
	}
	return d
}

// MonthlyCostWithRetrieval adds the expected read-back charge for the month:
// each access re-reads the whole object. This keeps busy objects off cold
// tiers even when raw storage there is cheaper.
func (m *CostModel) MonthlyCostWithRetrieval(p common.Provider, t common.Tier, sizeBytes int64, accessesPerMonth int) float64 {
	storage := m.MonthlyCost(p, t, sizeBytes)
	retrieval := float64(sizeBytes) / gib * m.retrieval[p][t] * float64(accessesPerMonth)
	return storage + retrieval
}

// MonthlySavingsWithRetrieval is the economic filter's input: total cost delta
// including retrieval, floored at zero.
func (m *CostModel) MonthlySavingsWithRetrieval(p common.Provider, current, recommended common.Tier, sizeBytes int64, accessesPerMonth int) float64 {
	d := m.MonthlyCostWithRetrieval(p, current, sizeBytes, accessesPerMonth) -
		m.MonthlyCostWithRetrieval(p, recommended, sizeBytes, accessesPerMonth)
	if d < 0 {
		return 0
	}
	return d
}

// RoundToSupported walks the desired tier warmer until the provider prices it.
// Hot is assumed to always exist.
func (m *CostModel) RoundToSupported(p common.Provider, desired common.Tier) common.Tier {
	ladder := []common.Tier{common.ETier.Archive(), common.ETier.Cold(), common.ETier.Warm(), common.ETier.Hot()}
	reached := false
	for _, t := range ladder {
		if t == desired {
			reached = true
		}
		if reached && m.Supports(p, t) {
			return t
		}
	}
	return common.ETier.Hot()
}
