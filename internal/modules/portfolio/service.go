package portfolio

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/fundlens/fundlens/internal/modules/dataset"
)

// Service provides portfolio operations over the repository plus the
// analytics that need fund metrics from the loaded dataset.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a portfolio service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "portfolio").Logger(),
	}
}

// Repo exposes the underlying repository for direct CRUD.
func (s *Service) Repo() *Repository {
	return s.repo
}

// AddFromTable adds the fund with the given APIR code from the dataset,
// assigning its asset class from the Morningstar category mapping.
func (s *Service) AddFromTable(t *dataset.Table, apirCode string) (*Fund, error) {
	col, ok := t.Column(dataset.ColAPIRCode)
	if !ok || col.Kind != dataset.KindString {
		return nil, fmt.Errorf("dataset has no %q column", dataset.ColAPIRCode)
	}

	row := -1
	for i, code := range col.Strs {
		if code == apirCode {
			row = i
			break
		}
	}
	if row == -1 {
		return nil, fmt.Errorf("fund %q not found in dataset", apirCode)
	}

	category := t.String(dataset.ColCategory, row)
	fund := Fund{
		APIRCode:   apirCode,
		Name:       t.String(dataset.ColName, row),
		Category:   category,
		AssetClass: AssetClassFor(category),
	}
	if err := s.repo.Add(fund); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("apir_code", apirCode).
		Str("asset_class", fund.AssetClass).
		Msg("Fund added to portfolio")
	return s.repo.Get(apirCode)
}

// TotalAllocation sums the allocated percentages.
func TotalAllocation(funds []Fund) float64 {
	total := 0.0
	for _, f := range funds {
		if f.Allocation != nil {
			total += *f.Allocation
		}
	}
	return total
}

// WeightedMetrics computes the allocation-weighted portfolio metrics using
// fund figures from the dataset. Funds without an allocation contribute
// nothing; a missing metric value is skipped for that metric only.
func (s *Service) WeightedMetrics(funds []Fund, t *dataset.Table) Metrics {
	byCode := indexByAPIR(t)

	var m Metrics
	for _, f := range funds {
		if f.Allocation == nil {
			continue
		}
		m.TotalAllocation += *f.Allocation

		row, ok := byCode[f.APIRCode]
		if !ok {
			continue
		}
		weight := *f.Allocation / 100

		accumulate(&m.Return, weight, t.Float(dataset.ColReturn, row))
		accumulate(&m.StdDev, weight, t.Float(dataset.ColStdDev, row))
		accumulate(&m.Beta, weight, t.Float(dataset.ColBeta, row))
		accumulate(&m.Sharpe, weight, t.Float(dataset.ColSharpe, row))
		accumulate(&m.Fee, weight, t.Float(dataset.ColFee, row))
	}
	return m
}

// CompareAllocation builds the portfolio-vs-target table for a risk profile.
func (s *Service) CompareAllocation(funds []Fund, profileName string) ([]ClassAllocation, error) {
	profile, ok := FindProfile(profileName)
	if !ok {
		return nil, fmt.Errorf("unknown risk profile %q", profileName)
	}

	byClass := make(map[string]float64, len(AssetClasses))
	for _, f := range funds {
		if f.Allocation == nil {
			continue
		}
		byClass[f.AssetClass] += *f.Allocation
	}

	out := make([]ClassAllocation, 0, len(AssetClasses))
	for _, ac := range AssetClasses {
		entry := ClassAllocation{
			AssetClass: ac,
			Portfolio:  byClass[ac],
			Target:     profile.Targets[ac],
		}
		entry.Variance = entry.Portfolio - entry.Target
		out = append(out, entry)
	}
	return out, nil
}

func accumulate(sum *float64, weight, v float64) {
	if !math.IsNaN(v) {
		*sum += weight * v
	}
}

func indexByAPIR(t *dataset.Table) map[string]int {
	byCode := make(map[string]int)
	col, ok := t.Column(dataset.ColAPIRCode)
	if !ok || col.Kind != dataset.KindString {
		return byCode
	}
	for i, code := range col.Strs {
		if _, dup := byCode[code]; !dup {
			byCode[code] = i
		}
	}
	return byCode
}
