// Package workspace holds the session state of an analysis: the full loaded
// dataset and the current working set produced by applying filters to it.
// All state is explicit; every narrowing operation records what it did and
// Reset restores the full dataset.
package workspace

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fundlens/fundlens/internal/modules/dataset"
	"github.com/fundlens/fundlens/internal/modules/formula"
	"github.com/fundlens/fundlens/internal/modules/platform"
	"github.com/fundlens/fundlens/internal/modules/scoring"
	"github.com/fundlens/fundlens/internal/modules/strategy"
)

// ErrNoDataset is returned by operations that need a loaded dataset.
var ErrNoDataset = errors.New("no dataset loaded")

// FilterKind labels the operations recorded in the filter history.
type FilterKind string

const (
	FilterFormula  FilterKind = "formula"
	FilterPreset   FilterKind = "preset"
	FilterPlatform FilterKind = "platform"
)

// AppliedFilter is one history entry: what ran and how it narrowed the
// working set.
type AppliedFilter struct {
	Kind       FilterKind `json:"kind"`
	Expression string     `json:"expression"`
	RowsBefore int        `json:"rows_before"`
	RowsAfter  int        `json:"rows_after"`
	AppliedAt  time.Time  `json:"applied_at"`
}

// Summary describes the workspace state for status endpoints.
type Summary struct {
	Loaded      bool            `json:"loaded"`
	TotalRows   int             `json:"total_rows"`
	WorkingRows int             `json:"working_rows"`
	Columns     []string        `json:"columns,omitempty"`
	Filters     []AppliedFilter `json:"filters"`
}

// Workspace is the mutable analysis session. Safe for concurrent use.
type Workspace struct {
	mu      sync.RWMutex
	full    *dataset.Table
	working *dataset.Table
	history []AppliedFilter

	loader *dataset.Loader
	engine *formula.Engine
	scorer *scoring.Scorer
	logger zerolog.Logger
}

// New creates an empty workspace.
func New() *Workspace {
	return &Workspace{
		loader: dataset.NewLoader(),
		engine: formula.NewEngine(),
		scorer: scoring.NewScorer(),
		logger: log.With().Str("component", "workspace").Logger(),
	}
}

// Load parses one or more CSV imports, replaces the dataset, and resets the
// working set and history.
func (w *Workspace) Load(readers []io.Reader) (Summary, error) {
	table, err := w.loader.LoadAll(readers)
	if err != nil {
		return Summary{}, err
	}

	w.mu.Lock()
	w.full = table
	w.working = table.Clone()
	w.history = nil
	w.mu.Unlock()

	w.logger.Info().Int("rows", table.NumRows()).Msg("Workspace dataset replaced")
	return w.Summarize(), nil
}

// Validate checks a CSV import without touching workspace state.
func (w *Workspace) Validate(r io.Reader) error {
	return w.loader.Validate(r)
}

// SetDataset replaces the dataset with an already-built table, resetting the
// working set and history. Used when restoring a snapshot.
func (w *Workspace) SetDataset(t *dataset.Table) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.full = t
	w.working = t.Clone()
	w.history = nil
}

// Working returns a copy of the current working set.
func (w *Workspace) Working() (*dataset.Table, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.working == nil {
		return nil, ErrNoDataset
	}
	return w.working.Clone(), nil
}

// Dataset returns a copy of the full loaded dataset.
func (w *Workspace) Dataset() (*dataset.Table, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.full == nil {
		return nil, ErrNoDataset
	}
	return w.full.Clone(), nil
}

// ApplyFormula narrows the working set to the rows matching the formula.
func (w *Workspace) ApplyFormula(src string) (Summary, error) {
	return w.narrow(FilterFormula, src, func(t *dataset.Table) (*dataset.Table, error) {
		return w.engine.Filter(t, src)
	})
}

// ApplyPreset narrows the working set with a built-in strategy. Thresholds
// are computed over the current working set, not the full dataset.
func (w *Workspace) ApplyPreset(id string) (Summary, error) {
	return w.narrow(FilterPreset, id, func(t *dataset.Table) (*dataset.Table, error) {
		return strategy.Apply(w.engine, t, id)
	})
}

// ApplyPlatformCodes restricts the working set to funds whose APIR code is in
// the list. A dataset without the code column is left unchanged and the
// platform warning is returned alongside the unchanged summary.
func (w *Workspace) ApplyPlatformCodes(codes []string) (Summary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.working == nil {
		return Summary{}, ErrNoDataset
	}

	before := w.working.NumRows()
	filtered, err := platform.FilterByCodes(w.working, codes)
	if err != nil {
		return w.summarizeLocked(), err
	}
	w.working = filtered
	w.history = append(w.history, AppliedFilter{
		Kind:       FilterPlatform,
		Expression: "platform code list",
		RowsBefore: before,
		RowsAfter:  filtered.NumRows(),
		AppliedAt:  time.Now().UTC(),
	})
	return w.summarizeLocked(), nil
}

// Reset restores the working set to the full dataset and clears the history.
func (w *Workspace) Reset() (Summary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.full == nil {
		return Summary{}, ErrNoDataset
	}
	w.working = w.full.Clone()
	w.history = nil
	return w.summarizeLocked(), nil
}

// Score returns the working set with category-relative analytics appended,
// ranked by composite score. The working set itself is not modified.
func (w *Workspace) Score() (*dataset.Table, error) {
	working, err := w.Working()
	if err != nil {
		return nil, err
	}
	return w.scorer.Score(working)
}

// CategoryStats aggregates the working set's categories.
func (w *Workspace) CategoryStats() ([]scoring.CategoryStats, error) {
	working, err := w.Working()
	if err != nil {
		return nil, err
	}
	return w.scorer.CategoryStats(working), nil
}

// ExportCSV writes the working set as CSV in canonical column order. When
// scored is true, the export carries the derived analytics columns and their
// ranking order.
func (w *Workspace) ExportCSV(out io.Writer, scored bool) error {
	var table *dataset.Table
	var err error
	if scored {
		table, err = w.Score()
	} else {
		table, err = w.Working()
	}
	if err != nil {
		return err
	}
	return dataset.WriteCSV(out, table, table.CanonicalOrder(scoring.DerivedColumns))
}

// History returns the applied filter log, oldest first.
func (w *Workspace) History() []AppliedFilter {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]AppliedFilter(nil), w.history...)
}

// Summarize describes the current state.
func (w *Workspace) Summarize() Summary {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.summarizeLocked()
}

func (w *Workspace) summarizeLocked() Summary {
	s := Summary{Filters: append([]AppliedFilter(nil), w.history...)}
	if s.Filters == nil {
		s.Filters = []AppliedFilter{}
	}
	if w.full == nil {
		return s
	}
	s.Loaded = true
	s.TotalRows = w.full.NumRows()
	s.WorkingRows = w.working.NumRows()
	s.Columns = w.working.Names()
	return s
}

func (w *Workspace) narrow(kind FilterKind, expr string, apply func(*dataset.Table) (*dataset.Table, error)) (Summary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.working == nil {
		return Summary{}, ErrNoDataset
	}

	before := w.working.NumRows()
	filtered, err := apply(w.working)
	if err != nil {
		return Summary{}, err
	}
	w.working = filtered
	w.history = append(w.history, AppliedFilter{
		Kind:       kind,
		Expression: expr,
		RowsBefore: before,
		RowsAfter:  filtered.NumRows(),
		AppliedAt:  time.Now().UTC(),
	})

	w.logger.Debug().
		Str("kind", string(kind)).
		Str("expression", expr).
		Int("before", before).
		Int("after", filtered.NumRows()).
		Msg("Working set narrowed")
	return w.summarizeLocked(), nil
}
