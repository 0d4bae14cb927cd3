package portfolio

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundlens/fundlens/internal/modules/dataset"
	"github.com/fundlens/fundlens/internal/testutil"
)

func newService(t *testing.T) *Service {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)
	return NewService(NewRepository(db, zerolog.Nop()), zerolog.Nop())
}

func metricsTable(t *testing.T) *dataset.Table {
	t.Helper()
	table, err := dataset.New([]dataset.Column{
		{Name: dataset.ColName, Kind: dataset.KindString,
			Strs: []string{"Cash Fund", "Equity Fund", "Bond Fund"}},
		{Name: dataset.ColAPIRCode, Kind: dataset.KindString,
			Strs: []string{"CSH0001AU", "EQT0002AU", "BND0003AU"}},
		{Name: dataset.ColCategory, Kind: dataset.KindString,
			Strs: []string{"Australian Cash", "Equity Australia Large Blend", "Unmapped Category"}},
		{Name: dataset.ColReturn, Kind: dataset.KindNumeric, Nums: []float64{3, 9, 5}},
		{Name: dataset.ColFee, Kind: dataset.KindNumeric, Nums: []float64{0.1, 0.8, 0.4}},
		{Name: dataset.ColBeta, Kind: dataset.KindNumeric, Nums: []float64{0.1, 1.1, math.NaN()}},
		{Name: dataset.ColStdDev, Kind: dataset.KindNumeric, Nums: []float64{0.5, 12, 4}},
		{Name: dataset.ColSharpe, Kind: dataset.KindNumeric, Nums: []float64{0.2, 0.9, 0.6}},
	})
	require.NoError(t, err)
	return table
}

func alloc(v float64) *float64 { return &v }

func TestAddFromTable_MapsAssetClass(t *testing.T) {
	svc := newService(t)
	table := metricsTable(t)

	fund, err := svc.AddFromTable(table, "EQT0002AU")
	require.NoError(t, err)
	assert.Equal(t, "Equity Fund", fund.Name)
	assert.Equal(t, "Australian Equities", fund.AssetClass)

	// Unmapped categories fall back to the default class.
	fund, err = svc.AddFromTable(table, "BND0003AU")
	require.NoError(t, err)
	assert.Equal(t, DefaultAssetClass, fund.AssetClass)

	_, err = svc.AddFromTable(table, "XXX9999AU")
	assert.Error(t, err)
}

func TestAdd_ReAddingKeepsAdviserState(t *testing.T) {
	svc := newService(t)
	table := metricsTable(t)

	fund, err := svc.AddFromTable(table, "EQT0002AU")
	require.NoError(t, err)

	require.NoError(t, svc.Repo().SetAllocation(fund.APIRCode, alloc(40)))
	require.NoError(t, svc.Repo().SetComments(fund.APIRCode, "core holding"))

	_, err = svc.AddFromTable(table, "EQT0002AU")
	require.NoError(t, err)

	got, err := svc.Repo().Get("EQT0002AU")
	require.NoError(t, err)
	require.NotNil(t, got.Allocation)
	assert.InDelta(t, 40, *got.Allocation, 1e-9)
	assert.Equal(t, "core holding", got.Comments)
}

func TestWeightedMetrics_SkipsMissingValues(t *testing.T) {
	svc := newService(t)
	table := metricsTable(t)

	funds := []Fund{
		{APIRCode: "CSH0001AU", AssetClass: "Cash", Allocation: alloc(50)},
		{APIRCode: "BND0003AU", AssetClass: "Cash", Allocation: alloc(30)},
		{APIRCode: "EQT0002AU", AssetClass: "Australian Equities"}, // no allocation
	}

	m := svc.WeightedMetrics(funds, table)
	assert.InDelta(t, 80, m.TotalAllocation, 1e-9)
	assert.InDelta(t, 0.5*3+0.3*5, m.Return, 1e-9)
	// Bond Fund's beta is missing and is skipped for beta only.
	assert.InDelta(t, 0.5*0.1, m.Beta, 1e-9)
	assert.InDelta(t, 0.5*0.5+0.3*4, m.StdDev, 1e-9)
}

func TestCompareAllocation(t *testing.T) {
	svc := newService(t)

	funds := []Fund{
		{APIRCode: "A", AssetClass: "Australian Equities", Allocation: alloc(30)},
		{APIRCode: "B", AssetClass: "Australian Equities", Allocation: alloc(10)},
		{APIRCode: "C", AssetClass: "Cash", Allocation: alloc(5)},
	}

	comparison, err := svc.CompareAllocation(funds, "Balanced (40/60)")
	require.NoError(t, err)
	require.Len(t, comparison, len(AssetClasses))

	byClass := map[string]ClassAllocation{}
	for _, entry := range comparison {
		byClass[entry.AssetClass] = entry
	}
	// Balanced targets 28% Australian equities; the portfolio holds 40%.
	assert.InDelta(t, 40, byClass["Australian Equities"].Portfolio, 1e-9)
	assert.InDelta(t, 12, byClass["Australian Equities"].Variance, 1e-9)
	assert.InDelta(t, 0, byClass["Property"].Portfolio, 1e-9)
	assert.InDelta(t, -6, byClass["Property"].Variance, 1e-9)

	_, err = svc.CompareAllocation(funds, "Nonexistent")
	assert.Error(t, err)
}

func TestRepositoryLifecycle(t *testing.T) {
	svc := newService(t)
	repo := svc.Repo()

	require.NoError(t, repo.Add(Fund{APIRCode: "ABC0001AU", Name: "Fund", Category: "Cat", AssetClass: "Cash"}))

	funds, err := repo.List()
	require.NoError(t, err)
	require.Len(t, funds, 1)
	assert.Nil(t, funds[0].Allocation)

	require.NoError(t, repo.SetAssetClass("ABC0001AU", "Property"))
	got, err := repo.Get("ABC0001AU")
	require.NoError(t, err)
	assert.Equal(t, "Property", got.AssetClass)

	require.NoError(t, repo.Remove("ABC0001AU"))
	got, err = repo.Get("ABC0001AU")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Updating a missing fund reports it.
	assert.Error(t, repo.SetAllocation("ABC0001AU", alloc(10)))
}
