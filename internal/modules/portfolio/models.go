// Package portfolio tracks the recommended fund list built from screening
// results: per-fund allocations, asset class assignments, weighted
// portfolio-level metrics, and comparison against strategic risk profiles.
package portfolio

import "time"

// Fund is one portfolio entry. Allocation is a percentage of the whole
// portfolio and is nil until the adviser sets it.
type Fund struct {
	APIRCode   string    `json:"apir_code"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Comments   string    `json:"comments"`
	AssetClass string    `json:"asset_class"`
	Allocation *float64  `json:"allocation,omitempty"`
	AddedAt    time.Time `json:"added_at"`
}

// AssetClasses enumerates the asset classes used for allocation analysis, in
// presentation order.
var AssetClasses = []string{
	"Cash",
	"Australian Fixed Interest",
	"International Fixed Interest",
	"Australian Equities",
	"International Equities",
	"Property",
	"Alternatives",
}

// DefaultAssetClass is assigned when a fund's category has no mapping.
const DefaultAssetClass = "Cash"

// categoryAssetClass maps Morningstar categories onto asset classes.
var categoryAssetClass = map[string]string{
	"Alternative - Private Equity":       "Alternatives",
	"Australia Equity Income":            "Australian Equities",
	"Australian Cash":                    "Cash",
	"Bonds - Australia":                  "Australian Fixed Interest",
	"Equity Australia Large Blend":       "Australian Equities",
	"Equity Australia Large Growth":      "Australian Equities",
	"Equity Australia Large Value":       "Australian Equities",
	"Equity Australia Mid/Small Growth":  "Australian Equities",
	"Equity Australia Real Estate":       "Property",
	"Equity Emerging Markets":            "International Equities",
	"Equity Region Emerging Markets":     "International Equities",
	"Equity Sector Global - Real Estate": "Property",
	"Equity World - Currency Hedged":     "International Equities",
	"Equity World Large Blend":           "International Equities",
	"Equity World Large Growth":          "International Equities",
	"Equity World Large Value":           "International Equities",
	"Equity World Mid/Small":             "International Equities",
	"Global Bond":                        "International Fixed Interest",
}

// AssetClassFor returns the asset class for a Morningstar category, falling
// back to the default for unmapped categories.
func AssetClassFor(category string) string {
	if ac, ok := categoryAssetClass[category]; ok {
		return ac
	}
	return DefaultAssetClass
}

// Profile is a strategic asset allocation for one risk profile, in percent
// per asset class.
type Profile struct {
	Name    string             `json:"name"`
	Targets map[string]float64 `json:"targets"`
}

// profiles are the strategic allocation guidelines, defensive through high
// growth. Values are percentages per asset class in AssetClasses order.
var profiles = []Profile{
	{Name: "Defensive (100/0)", Targets: targets(70, 30, 0, 0, 0, 0, 0)},
	{Name: "Conservative (80/20)", Targets: targets(20, 40, 20, 8, 6, 3, 3)},
	{Name: "Moderate (60/40)", Targets: targets(15, 30, 15, 18, 12, 5, 5)},
	{Name: "Balanced (40/60)", Targets: targets(5, 25, 10, 28, 20, 6, 6)},
	{Name: "Growth (20/80)", Targets: targets(2, 12, 6, 38, 26, 8, 8)},
	{Name: "High Growth (0/100)", Targets: targets(2, 0, 0, 48, 34, 8, 8)},
}

func targets(values ...float64) map[string]float64 {
	m := make(map[string]float64, len(AssetClasses))
	for i, ac := range AssetClasses {
		m[ac] = values[i]
	}
	return m
}

// Profiles returns the strategic risk profiles in order.
func Profiles() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	return out
}

// FindProfile returns the named risk profile.
func FindProfile(name string) (Profile, bool) {
	for _, p := range profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Metrics are the allocation-weighted portfolio figures. Each metric skips
// funds where the underlying value is missing; weights are not renormalized,
// so an incomplete allocation reads low rather than pretending completeness.
type Metrics struct {
	Return          float64 `json:"return"`
	StdDev          float64 `json:"std_dev"`
	Beta            float64 `json:"beta"`
	Sharpe          float64 `json:"sharpe"`
	Fee             float64 `json:"fee"`
	TotalAllocation float64 `json:"total_allocation"`
}

// ClassAllocation compares the portfolio's weight in one asset class against
// a target profile.
type ClassAllocation struct {
	AssetClass string  `json:"asset_class"`
	Portfolio  float64 `json:"portfolio_pct"`
	Target     float64 `json:"target_pct"`
	Variance   float64 `json:"variance"`
}
