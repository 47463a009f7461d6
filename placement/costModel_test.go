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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudspan/cloudspan/common"
)

func TestMonthlyCostScalesLinearly(t *testing.T) {
	a := assert.New(t)
	m := NewCostModel(nil, nil)

	one := m.MonthlyCost(common.EProvider.AWS(), common.ETier.Hot(), 1<<30)
	a.InDelta(0.023, one, 1e-9)
	a.InDelta(10*one, m.MonthlyCost(common.EProvider.AWS(), common.ETier.Hot(), 10<<30), 1e-9)
	a.Zero(m.MonthlyCost(common.EProvider.AWS(), common.ETier.Hot(), 0))
}

func TestMonthlySavingsNeverNegative(t *testing.T) {
	a := assert.New(t)
	m := NewCostModel(nil, nil)

	down := m.MonthlySavings(common.EProvider.Azure(), common.ETier.Hot(), common.ETier.Archive(), 1<<30)
	a.InDelta(0.0208-0.00099, down, 1e-9)
	// moving warmer costs money, never "saves"
	up := m.MonthlySavings(common.EProvider.Azure(), common.ETier.Archive(), common.ETier.Hot(), 1<<30)
	a.Zero(up)
}

func TestRetrievalChargesKeepBusyObjectsWarm(t *testing.T) {
	a := assert.New(t)
	m := NewCostModel(nil, nil)
	p, hot, cold := common.EProvider.AWS(), common.ETier.Hot(), common.ETier.Cold()
	size := int64(10) << 30

	// idle: cold is the clear winner
	a.Positive(m.MonthlySavingsWithRetrieval(p, hot, cold, size, 0))
	// 100 reads a month: retrieval swamps the storage delta
	a.Zero(m.MonthlySavingsWithRetrieval(p, hot, cold, size, 100))
}

func TestRoundToSupportedWalksWarmer(t *testing.T) {
	a := assert.New(t)
	// a provider with no COLD tier rounds COLD up to WARM
	table := PriceTable{
		common.EProvider.GCP(): {
			common.ETier.Hot():     0.02,
			common.ETier.Warm():    0.01,
			common.ETier.Archive(): 0.0012,
		},
	}
	m := NewCostModel(table, nil)
	a.Equal(common.ETier.Warm(), m.RoundToSupported(common.EProvider.GCP(), common.ETier.Cold()))
	a.Equal(common.ETier.Archive(), m.RoundToSupported(common.EProvider.GCP(), common.ETier.Archive()))
	a.False(m.Supports(common.EProvider.GCP(), common.ETier.Cold()))
}

func TestLoadPriceTable(t *testing.T) {
	a := assert.New(t)
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"AWS": {"HOT": 0.05, "ARCHIVE": 0.001}, "AZURE": {"HOT": 0.04}}`), 0o600))

	table, err := LoadPriceTable(path)
	require.NoError(t, err)
	a.InDelta(0.05, table[common.EProvider.AWS()][common.ETier.Hot()], 1e-9)
	a.InDelta(0.001, table[common.EProvider.AWS()][common.ETier.Archive()], 1e-9)
	a.InDelta(0.04, table[common.EProvider.Azure()][common.ETier.Hot()], 1e-9)

	_, err = LoadPriceTable(filepath.Join(t.TempDir(), "missing.json"))
	a.Equal(common.EErrorCode.InvalidArgument(), common.CodeOf(err))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"NOTACLOUD": {"HOT": 1}}`), 0o600))
	_, err = LoadPriceTable(bad)
	a.Equal(common.EErrorCode.InvalidArgument(), common.CodeOf(err))
}
