// Package strategy provides the built-in screening strategies. Each preset is
// a named formula; thresholds are percentile and z-score based, so they are
// always derived from the working set the preset runs against rather than
// fixed market-wide constants.
package strategy

import (
	"fmt"

	"github.com/fundlens/fundlens/internal/modules/dataset"
	"github.com/fundlens/fundlens/internal/modules/formula"
)

// Preset is a built-in screening strategy.
type Preset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Formula     string `json:"formula"`
}

var presets = []Preset{
	{
		ID:          "top-return",
		Name:        "Top Performers",
		Description: "Funds in the top quarter of the working set by 3 year annualised return.",
		Formula:     "top_n_pct(return, 25)",
	},
	{
		ID:          "low-fee",
		Name:        "Low Fee",
		Description: "Funds in the cheapest quarter of the working set by management fee.",
		Formula:     "bottom_n_pct(expense_ratio, 25)",
	},
	{
		ID:          "low-risk",
		Name:        "Low Risk",
		Description: "Funds in the least volatile quarter of the working set with below-market beta.",
		Formula:     "bottom_n_pct(risk, 25) and beta < 1",
	},
	{
		ID:          "quality-sharpe",
		Name:        "Quality Risk-Adjusted",
		Description: "Funds whose Sharpe ratio sits well above the working set average.",
		Formula:     "sharpe_zscore > 0.5",
	},
	{
		ID:          "category-leaders",
		Name:        "Category Leaders",
		Description: "Funds with top-quartile returns and above-median Sharpe across the working set.",
		Formula:     "return_percentile >= 75 and sharpe_percentile >= 50",
	},
}

// Presets returns the built-in strategies in their presentation order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// Find returns the preset with the given ID.
func Find(id string) (Preset, bool) {
	for _, p := range presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// Apply runs the preset's formula against the table through the given engine.
// The mask reflects the table's current contents: re-running the same preset
// after a filter narrows the thresholds to the surviving funds.
func Apply(engine *formula.Engine, t *dataset.Table, id string) (*dataset.Table, error) {
	preset, ok := Find(id)
	if !ok {
		return nil, fmt.Errorf("unknown strategy preset %q", id)
	}
	return engine.Filter(t, preset.Formula)
}
