package workspace

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundlens/fundlens/internal/modules/dataset"
	"github.com/fundlens/fundlens/internal/modules/formula"
	"github.com/fundlens/fundlens/internal/modules/platform"
	"github.com/fundlens/fundlens/internal/modules/scoring"
)

const sampleCSV = `Name,APIR Code,Morningstar Category,3 Years Annualised (%),Investment Management Fee(%),Equity StyleBox™,Morningstar Rating,3 Year Beta,3 Year Standard Deviation,3 Year Sharpe Ratio
Alpha,ABC0001AU,Growth,12,0.2,Large Blend,5,0.8,8,1.2
Bravo,XYZ123AU,Growth,8,0.6,Large Value,4,1.2,14,0.6
Charlie,QRS987AU,Income,4,1.0,Large Growth,3,0.9,9,0.3
Delta,LMN456AU,Income,10,0.8,Large Blend,4,1.0,11,0.9
`

func loadedWorkspace(t *testing.T) *Workspace {
	t.Helper()
	w := New()
	_, err := w.Load([]io.Reader{strings.NewReader(sampleCSV)})
	require.NoError(t, err)
	return w
}

func TestLoad_ReplacesStateAndHistory(t *testing.T) {
	w := loadedWorkspace(t)

	_, err := w.ApplyFormula("return > 5")
	require.NoError(t, err)
	require.Len(t, w.History(), 1)

	summary, err := w.Load([]io.Reader{strings.NewReader(sampleCSV)})
	require.NoError(t, err)
	assert.True(t, summary.Loaded)
	assert.Equal(t, 4, summary.TotalRows)
	assert.Equal(t, 4, summary.WorkingRows)
	assert.Empty(t, summary.Filters)
}

func TestApplyFormula_NarrowsAndRecords(t *testing.T) {
	w := loadedWorkspace(t)

	summary, err := w.ApplyFormula("return > 5")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.WorkingRows)
	assert.Equal(t, 4, summary.TotalRows)

	// Filters compose over the narrowed set.
	summary, err = w.ApplyFormula("expense_ratio < 0.7")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.WorkingRows)

	history := w.History()
	require.Len(t, history, 2)
	assert.Equal(t, FilterFormula, history[0].Kind)
	assert.Equal(t, "return > 5", history[0].Expression)
	assert.Equal(t, 4, history[0].RowsBefore)
	assert.Equal(t, 3, history[0].RowsAfter)
}

func TestApplyFormula_FailedFilterLeavesStateAlone(t *testing.T) {
	w := loadedWorkspace(t)

	_, err := w.ApplyFormula("nonsense > 1")
	var unknownErr *formula.UnknownIdentifierError
	require.ErrorAs(t, err, &unknownErr)

	assert.Equal(t, 4, w.Summarize().WorkingRows)
	assert.Empty(t, w.History())
}

func TestApplyPreset_UsesWorkingSetThresholds(t *testing.T) {
	w := loadedWorkspace(t)

	summary, err := w.ApplyPreset("top-return")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.WorkingRows)

	working, err := w.Working()
	require.NoError(t, err)
	assert.Equal(t, "Alpha", working.String(dataset.ColName, 0))
}

func TestApplyPlatformCodes(t *testing.T) {
	w := loadedWorkspace(t)

	summary, err := w.ApplyPlatformCodes([]string{"ABC0001AU", "LMN456AU"})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.WorkingRows)

	history := w.History()
	require.Len(t, history, 1)
	assert.Equal(t, FilterPlatform, history[0].Kind)
}

func TestApplyPlatformCodes_WarnsWithoutColumn(t *testing.T) {
	w := New()
	table, err := dataset.New([]dataset.Column{
		{Name: dataset.ColName, Kind: dataset.KindString, Strs: []string{"A"}},
	})
	require.NoError(t, err)
	w.SetDataset(table)

	summary, err := w.ApplyPlatformCodes([]string{"ABC0001AU"})
	var noCol *platform.NoPlatformColumnError
	require.ErrorAs(t, err, &noCol)
	// Warning, not a wipe: the working set is unchanged and unrecorded.
	assert.Equal(t, 1, summary.WorkingRows)
	assert.Empty(t, w.History())
}

func TestReset_RestoresFullDataset(t *testing.T) {
	w := loadedWorkspace(t)

	_, err := w.ApplyFormula("return > 9")
	require.NoError(t, err)

	summary, err := w.Reset()
	require.NoError(t, err)
	assert.Equal(t, 4, summary.WorkingRows)
	assert.Empty(t, summary.Filters)
}

func TestScore_RanksWorkingSet(t *testing.T) {
	w := loadedWorkspace(t)

	scored, err := w.Score()
	require.NoError(t, err)
	assert.True(t, scored.HasColumn(scoring.ColCompositeScore))
	assert.Equal(t, 4, scored.NumRows())

	// Scoring never mutates the working set itself.
	working, err := w.Working()
	require.NoError(t, err)
	assert.False(t, working.HasColumn(scoring.ColCompositeScore))
}

func TestExportCSV(t *testing.T) {
	w := loadedWorkspace(t)

	var plain bytes.Buffer
	require.NoError(t, w.ExportCSV(&plain, false))
	assert.Contains(t, plain.String(), "Alpha")
	assert.NotContains(t, plain.String(), scoring.ColCompositeScore)

	var scored bytes.Buffer
	require.NoError(t, w.ExportCSV(&scored, true))
	header := strings.SplitN(scored.String(), "\n", 2)[0]
	assert.Contains(t, header, scoring.ColCompositeScore)
	// Derived columns sit at the end of the canonical order.
	assert.True(t, strings.HasSuffix(strings.TrimSpace(header), scoring.ColTopQuartile))
}

func TestOperationsWithoutDataset(t *testing.T) {
	w := New()

	_, err := w.ApplyFormula("return > 1")
	assert.ErrorIs(t, err, ErrNoDataset)
	_, err = w.Reset()
	assert.ErrorIs(t, err, ErrNoDataset)
	_, err = w.Score()
	assert.ErrorIs(t, err, ErrNoDataset)
	_, err = w.Working()
	assert.ErrorIs(t, err, ErrNoDataset)
}
