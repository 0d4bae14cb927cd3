// Package scoring computes category-relative analytics: per-category averages
// of the three risk metrics, fund-vs-category differentials, the composite
// score used for ranking, and the top-quartile return flag.
package scoring

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/fundlens/fundlens/internal/modules/dataset"
)

// Derived column names appended by Score, in their presentation order.
const (
	ColBetaDiff       = "Category Avg Beta - Fund Beta"
	ColSharpeDiff     = "Fund Sharpe - Category Avg Sharpe"
	ColStdDevDiff     = "Fund StdDev - Category Avg StdDev"
	ColCompositeScore = "Composite Score"
	ColTopQuartile    = "Top Quartile"
)

// DerivedColumns lists every column Score appends, for export ordering.
var DerivedColumns = []string{
	ColBetaDiff,
	ColSharpeDiff,
	ColStdDevDiff,
	ColCompositeScore,
	ColTopQuartile,
}

// TopQuartileYes and TopQuartileNo are the values of the top-quartile column.
const (
	TopQuartileYes = "Yes"
	TopQuartileNo  = "No"
)

// CategoryStats holds the missing-aware aggregates for one category.
type CategoryStats struct {
	Category   string  `json:"category"`
	Count      int     `json:"count"`
	AvgBeta    float64 `json:"avg_beta"`
	AvgSharpe  float64 `json:"avg_sharpe"`
	AvgStdDev  float64 `json:"avg_std_dev"`
	Return75th float64 `json:"return_75th_percentile"`
}

// Scorer computes category-relative metrics over a dataset table.
type Scorer struct {
	logger zerolog.Logger
}

// NewScorer creates a scorer.
func NewScorer() *Scorer {
	return &Scorer{
		logger: log.With().Str("component", "scorer").Logger(),
	}
}

// CategoryStats aggregates each category present in the table. Averages skip
// missing values; a category where every value of a metric is missing gets
// NaN for that average.
func (s *Scorer) CategoryStats(t *dataset.Table) []CategoryStats {
	catCol, ok := t.Column(dataset.ColCategory)
	if !ok || catCol.Kind != dataset.KindString {
		return nil
	}

	groups := make(map[string][]int)
	var order []string
	for i, cat := range catCol.Strs {
		if _, seen := groups[cat]; !seen {
			order = append(order, cat)
		}
		groups[cat] = append(groups[cat], i)
	}
	sort.Strings(order)

	stats := make([]CategoryStats, 0, len(order))
	for _, cat := range order {
		rows := groups[cat]
		cs := CategoryStats{
			Category:  cat,
			Count:     len(rows),
			AvgBeta:   groupMean(t, dataset.ColBeta, rows),
			AvgSharpe: groupMean(t, dataset.ColSharpe, rows),
			AvgStdDev: groupMean(t, dataset.ColStdDev, rows),
		}
		cs.Return75th = groupQuantile(t, dataset.ColReturn, rows, 0.75)
		stats = append(stats, cs)
	}
	return stats
}

// Score returns a copy of the table with the differential columns, composite
// score, and top-quartile flag appended, sorted by composite score descending
// with unscorable funds last. The input table is not modified.
func (s *Scorer) Score(t *dataset.Table) (*dataset.Table, error) {
	rows := t.NumRows()

	statsByCat := make(map[string]CategoryStats)
	for _, cs := range s.CategoryStats(t) {
		statsByCat[cs.Category] = cs
	}

	betaDiff := make([]float64, rows)
	sharpeDiff := make([]float64, rows)
	stdDevDiff := make([]float64, rows)
	composite := make([]float64, rows)
	topQuartile := make([]string, rows)

	for i := 0; i < rows; i++ {
		cs, ok := statsByCat[t.String(dataset.ColCategory, i)]
		if !ok {
			// No peer statistics for this row; everything derived from
			// them is missing.
			cs = CategoryStats{
				AvgBeta:    math.NaN(),
				AvgSharpe:  math.NaN(),
				AvgStdDev:  math.NaN(),
				Return75th: math.NaN(),
			}
		}

		beta := t.Float(dataset.ColBeta, i)
		sharpe := t.Float(dataset.ColSharpe, i)
		stdDev := t.Float(dataset.ColStdDev, i)

		betaDiff[i] = cs.AvgBeta - beta
		sharpeDiff[i] = sharpe - cs.AvgSharpe
		stdDevDiff[i] = stdDev - cs.AvgStdDev

		// Any missing input leaves the whole composite missing rather
		// than scoring with a partial picture.
		composite[i] = -stdDevDiff[i]/10 + sharpeDiff[i] + betaDiff[i]

		ret := t.Float(dataset.ColReturn, i)
		if !math.IsNaN(ret) && !math.IsNaN(cs.Return75th) && ret >= cs.Return75th {
			topQuartile[i] = TopQuartileYes
		} else {
			topQuartile[i] = TopQuartileNo
		}
	}

	out := t.Clone()
	var err error
	for _, col := range []dataset.Column{
		{Name: ColBetaDiff, Kind: dataset.KindNumeric, Nums: betaDiff},
		{Name: ColSharpeDiff, Kind: dataset.KindNumeric, Nums: sharpeDiff},
		{Name: ColStdDevDiff, Kind: dataset.KindNumeric, Nums: stdDevDiff},
		{Name: ColCompositeScore, Kind: dataset.KindNumeric, Nums: composite},
		{Name: ColTopQuartile, Kind: dataset.KindString, Strs: topQuartile},
	} {
		if out, err = out.WithColumn(col); err != nil {
			return nil, err
		}
	}

	sorted, err := out.SortBy(rankByDescending(composite))
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int("rows", rows).
		Int("categories", len(statsByCat)).
		Msg("Composite scores computed")
	return sorted, nil
}

// rankByDescending builds a stable permutation ordering values descending,
// with NaN entries after every real value.
func rankByDescending(vals []float64) []int {
	perm := make([]int, len(vals))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		va, vb := vals[perm[a]], vals[perm[b]]
		switch {
		case math.IsNaN(va):
			return false
		case math.IsNaN(vb):
			return true
		default:
			return va > vb
		}
	})
	return perm
}

// groupMean averages the non-missing values of a column over the given rows.
func groupMean(t *dataset.Table, col string, rows []int) float64 {
	c, ok := t.Column(col)
	if !ok || c.Kind != dataset.KindNumeric {
		return math.NaN()
	}
	present := make([]float64, 0, len(rows))
	for _, i := range rows {
		if !math.IsNaN(c.Nums[i]) {
			present = append(present, c.Nums[i])
		}
	}
	if len(present) == 0 {
		return math.NaN()
	}
	return stat.Mean(present, nil)
}

// groupQuantile computes the p-quantile of the non-missing values of a column
// over the given rows, with linear interpolation between closest ranks.
func groupQuantile(t *dataset.Table, col string, rows []int, p float64) float64 {
	c, ok := t.Column(col)
	if !ok || c.Kind != dataset.KindNumeric {
		return math.NaN()
	}
	present := make([]float64, 0, len(rows))
	for _, i := range rows {
		if !math.IsNaN(c.Nums[i]) {
			present = append(present, c.Nums[i])
		}
	}
	if len(present) == 0 {
		return math.NaN()
	}
	sort.Float64s(present)

	n := len(present)
	if n == 1 {
		return present[0]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return present[n-1]
	}
	return present[lo] + (h-float64(lo))*(present[lo+1]-present[lo])
}
