// Package dataset provides the canonical investment record table: parsing,
// validation, locale repair of numeric encodings, and missing-value policy.
package dataset

import (
	"fmt"
	"math"
)

// Required column names for an investment data import. These match the
// Morningstar export format the tool was built around.
const (
	ColName     = "Name"
	ColAPIRCode = "APIR Code"
	ColCategory = "Morningstar Category"
	ColReturn   = "3 Years Annualised (%)"
	ColFee      = "Investment Management Fee(%)"
	ColStyleBox = "Equity StyleBox™"
	ColRating   = "Morningstar Rating"
	ColBeta     = "3 Year Beta"
	ColStdDev   = "3 Year Standard Deviation"
	ColSharpe   = "3 Year Sharpe Ratio"
)

// RequiredColumns enumerates the columns every import must carry, in the
// canonical presentation order.
var RequiredColumns = []string{
	ColName,
	ColAPIRCode,
	ColCategory,
	ColReturn,
	ColFee,
	ColStyleBox,
	ColRating,
	ColBeta,
	ColStdDev,
	ColSharpe,
}

// NumericColumns enumerates the declared numeric columns used for validation
// and normalization. Morningstar Rating is coerced separately (ordinal,
// invalid values become missing rather than failing validation).
var NumericColumns = []string{
	ColReturn,
	ColFee,
	ColBeta,
	ColStdDev,
	ColSharpe,
}

// ScoringMetrics are the three metrics whose missing values are deliberately
// left missing after load, so category averages exclude them instead of
// absorbing a median-filled estimate.
var ScoringMetrics = []string{ColStdDev, ColSharpe, ColBeta}

// UnknownPlaceholder fills missing values in string columns after load.
const UnknownPlaceholder = "Unknown"

// ColumnKind discriminates the two column representations in a Table.
type ColumnKind int

const (
	// KindString holds free-text values (names, codes, categories).
	KindString ColumnKind = iota
	// KindNumeric holds float values with NaN as the explicit missing marker.
	KindNumeric
)

// Column is a single named column. Exactly one of Nums/Strs is populated,
// matching Kind.
type Column struct {
	Name string
	Kind ColumnKind
	Nums []float64
	Strs []string
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	if c.Kind == KindNumeric {
		return len(c.Nums)
	}
	return len(c.Strs)
}

// IsMissing reports whether the value at row i is missing.
// Numeric columns use NaN; string columns use the empty string.
func (c *Column) IsMissing(i int) bool {
	if c.Kind == KindNumeric {
		return math.IsNaN(c.Nums[i])
	}
	return c.Strs[i] == ""
}

// clone returns a deep copy of the column.
func (c *Column) clone() Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == KindNumeric {
		out.Nums = append([]float64(nil), c.Nums...)
	} else {
		out.Strs = append([]string(nil), c.Strs...)
	}
	return out
}

// Table is a column-oriented table of investment records. Derived tables are
// always copies; no operation mutates a source table in place.
type Table struct {
	cols  []Column
	index map[string]int
}

// New creates a table from columns. All columns must have the same length and
// unique names.
func New(cols []Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	rows := -1
	for _, c := range cols {
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		if rows == -1 {
			rows = c.Len()
		} else if c.Len() != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), rows)
		}
		t.index[c.Name] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	return t, nil
}

// Empty returns a table with no columns and no rows.
func Empty() *Table {
	return &Table{index: map[string]int{}}
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int {
	return len(t.cols)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column, or false if absent.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return &t.cols[i], true
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// NumericColumnNames returns the names of all numeric columns in order.
func (t *Table) NumericColumnNames() []string {
	var names []string
	for _, c := range t.cols {
		if c.Kind == KindNumeric {
			names = append(names, c.Name)
		}
	}
	return names
}

// Float returns the numeric value at (column, row). Returns NaN if the column
// is absent, non-numeric, or the value is missing.
func (t *Table) Float(name string, row int) float64 {
	c, ok := t.Column(name)
	if !ok || c.Kind != KindNumeric {
		return math.NaN()
	}
	return c.Nums[row]
}

// String returns the string value at (column, row), or "" if the column is
// absent or non-numeric values don't apply.
func (t *Table) String(name string, row int) string {
	c, ok := t.Column(name)
	if !ok || c.Kind != KindString {
		return ""
	}
	return c.Strs[row]
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	cols := make([]Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.clone()
	}
	out, _ := New(cols)
	return out
}

// Select returns a new table containing the rows where mask is true.
// The mask must have exactly NumRows entries.
func (t *Table) Select(mask []bool) (*Table, error) {
	if len(mask) != t.NumRows() {
		return nil, fmt.Errorf("mask has %d entries, table has %d rows", len(mask), t.NumRows())
	}
	cols := make([]Column, len(t.cols))
	for i, c := range t.cols {
		nc := Column{Name: c.Name, Kind: c.Kind}
		for row := 0; row < c.Len(); row++ {
			if !mask[row] {
				continue
			}
			if c.Kind == KindNumeric {
				nc.Nums = append(nc.Nums, c.Nums[row])
			} else {
				nc.Strs = append(nc.Strs, c.Strs[row])
			}
		}
		cols[i] = nc
	}
	return New(cols)
}

// WithColumn returns a copy of the table with the column appended.
func (t *Table) WithColumn(col Column) (*Table, error) {
	if col.Len() != t.NumRows() {
		return nil, fmt.Errorf("column %q has %d rows, table has %d", col.Name, col.Len(), t.NumRows())
	}
	cols := make([]Column, 0, len(t.cols)+1)
	for _, c := range t.cols {
		cols = append(cols, c.clone())
	}
	cols = append(cols, col)
	return New(cols)
}

// SortBy returns a copy of the table with rows reordered by the given
// permutation (perm[i] is the source row of output row i).
func (t *Table) SortBy(perm []int) (*Table, error) {
	if len(perm) != t.NumRows() {
		return nil, fmt.Errorf("permutation has %d entries, table has %d rows", len(perm), t.NumRows())
	}
	cols := make([]Column, len(t.cols))
	for i, c := range t.cols {
		nc := Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == KindNumeric {
			nc.Nums = make([]float64, len(perm))
			for j, src := range perm {
				nc.Nums[j] = c.Nums[src]
			}
		} else {
			nc.Strs = make([]string, len(perm))
			for j, src := range perm {
				nc.Strs[j] = c.Strs[src]
			}
		}
		cols[i] = nc
	}
	return New(cols)
}

// CanonicalOrder returns the table's column names with the required columns
// first (in their canonical order), passthrough columns next, and derived
// scoring columns last. Used for presentation and CSV export.
func (t *Table) CanonicalOrder(derivedLast []string) []string {
	derived := make(map[string]bool, len(derivedLast))
	for _, name := range derivedLast {
		derived[name] = true
	}

	var ordered []string
	seen := make(map[string]bool)
	for _, name := range RequiredColumns {
		if t.HasColumn(name) {
			ordered = append(ordered, name)
			seen[name] = true
		}
	}
	for _, name := range t.Names() {
		if !seen[name] && !derived[name] {
			ordered = append(ordered, name)
			seen[name] = true
		}
	}
	for _, name := range derivedLast {
		if t.HasColumn(name) && !seen[name] {
			ordered = append(ordered, name)
		}
	}
	return ordered
}
