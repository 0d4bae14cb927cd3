package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// missingTokens are raw cell values treated as missing, compared
// case-insensitively after trimming whitespace.
var missingTokens = map[string]bool{
	"":        true,
	"na":      true,
	"n/a":     true,
	"unknown": true,
	"null":    true,
	"-":       true,
	"nan":     true,
}

// rangePattern matches "low-high" encodings like "0.5-1.2" after symbol
// cleanup. The separator hyphen must follow a digit so a leading minus sign
// is never split.
var rangePattern = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s*[-–]\s*(-?\d+(?:\.\d+)?)$`)

// currencySymbols are stripped from numeric cells before parsing, along with
// percent signs and thousands separators.
const currencySymbols = "%$€£,"

// Loader parses and normalizes investment data imports.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a dataset loader.
func NewLoader() *Loader {
	return &Loader{
		logger: log.With().Str("component", "dataset_loader").Logger(),
	}
}

// Validate checks an import for structural problems without building a table:
// required columns present, declared numeric columns coercible. Returns nil
// when the input is acceptable, otherwise one of the typed errors
// (*MissingColumnsError, *NonNumericColumnError, *MalformedInputError,
// ErrEmptyInput).
func (l *Loader) Validate(r io.Reader) error {
	header, rows, err := readCSV(r)
	if err != nil {
		return err
	}

	if missing := missingRequired(header); len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}

	pos := headerIndex(header)
	for _, name := range NumericColumns {
		col := pos[name]
		var bad []BadValue
		for i, row := range rows {
			if col >= len(row) {
				continue
			}
			raw := row[col]
			if _, ok := coerceNumeric(raw, false); !ok {
				bad = append(bad, BadValue{Row: i + 1, Value: raw})
			}
		}
		if len(bad) > 0 {
			errv := &NonNumericColumnError{Column: name, Examples: bad}
			if len(bad) > 3 {
				errv.Examples = bad[:3]
				errv.Omitted = len(bad) - 3
			}
			return errv
		}
	}
	return nil
}

// Load parses an import into a normalized Table. The input must pass the same
// checks as Validate; on success every declared numeric column holds floats
// with NaN for missing, general numeric columns are median-backfilled, the
// three scoring metrics keep their gaps, and string columns have missing
// values replaced with "Unknown".
func (l *Loader) Load(r io.Reader) (*Table, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	if missing := missingRequired(header); len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	t, err := buildTable(header, rows)
	if err != nil {
		return nil, err
	}

	l.logger.Info().
		Int("rows", t.NumRows()).
		Int("columns", t.NumCols()).
		Msg("Dataset loaded")
	return t, nil
}

// LoadAll parses several imports and concatenates their rows. Each input is
// validated independently; columns are the union of all inputs, with rows
// from files lacking a column marked missing there. An empty input list
// returns ErrEmptyInput.
func (l *Loader) LoadAll(readers []io.Reader) (*Table, error) {
	if len(readers) == 0 {
		return nil, ErrEmptyInput
	}

	tables := make([]*Table, 0, len(readers))
	for _, r := range readers {
		t, err := l.Load(r)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if len(tables) == 1 {
		return tables[0], nil
	}
	return Concat(tables)
}

// Concat concatenates tables row-wise over the union of their columns.
// A column's kind follows the first table that carries it; rows from tables
// without the column are missing.
func Concat(tables []*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, ErrEmptyInput
	}

	var names []string
	kinds := make(map[string]ColumnKind)
	for _, t := range tables {
		for _, name := range t.Names() {
			if _, seen := kinds[name]; !seen {
				c, _ := t.Column(name)
				kinds[name] = c.Kind
				names = append(names, name)
			}
		}
	}

	total := 0
	for _, t := range tables {
		total += t.NumRows()
	}

	cols := make([]Column, 0, len(names))
	for _, name := range names {
		nc := Column{Name: name, Kind: kinds[name]}
		if nc.Kind == KindNumeric {
			nc.Nums = make([]float64, 0, total)
		} else {
			nc.Strs = make([]string, 0, total)
		}
		for _, t := range tables {
			c, ok := t.Column(name)
			n := t.NumRows()
			for i := 0; i < n; i++ {
				switch {
				case !ok && nc.Kind == KindNumeric:
					nc.Nums = append(nc.Nums, math.NaN())
				case !ok:
					nc.Strs = append(nc.Strs, UnknownPlaceholder)
				case nc.Kind == KindNumeric && c.Kind == KindNumeric:
					nc.Nums = append(nc.Nums, c.Nums[i])
				case nc.Kind == KindNumeric:
					nc.Nums = append(nc.Nums, math.NaN())
				case c.Kind == KindString:
					nc.Strs = append(nc.Strs, c.Strs[i])
				default:
					nc.Strs = append(nc.Strs, UnknownPlaceholder)
				}
			}
		}
		cols = append(cols, nc)
	}
	return New(cols)
}

// readCSV parses the raw input, distinguishing structural failures
// (*MalformedInputError) from emptiness (ErrEmptyInput).
func readCSV(r io.Reader) (header []string, rows [][]string, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, &MalformedInputError{Err: err}
	}
	if len(records) == 0 || len(records) == 1 {
		return nil, nil, ErrEmptyInput
	}

	header = make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
	}
	return header, records[1:], nil
}

func missingRequired(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, name := range RequiredColumns {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

func headerIndex(header []string) map[string]int {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	return pos
}

// buildTable converts raw CSV rows into a normalized column-oriented table.
func buildTable(header []string, rows [][]string) (*Table, error) {
	declared := make(map[string]bool, len(NumericColumns))
	for _, name := range NumericColumns {
		declared[name] = true
	}
	requiredString := map[string]bool{
		ColName: true, ColAPIRCode: true, ColCategory: true, ColStyleBox: true,
	}

	cell := func(row []string, col int) string {
		if col >= len(row) {
			return ""
		}
		return row[col]
	}

	cols := make([]Column, 0, len(header))
	seen := make(map[string]bool, len(header))
	for colIdx, name := range header {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		isFee := name == ColFee
		switch {
		case declared[name] || name == ColRating:
			nums := make([]float64, len(rows))
			for i, row := range rows {
				v, ok := coerceNumeric(cell(row, colIdx), isFee)
				if !ok {
					v = math.NaN()
				}
				nums[i] = v
			}
			cols = append(cols, Column{Name: name, Kind: KindNumeric, Nums: nums})
		case requiredString[name]:
			cols = append(cols, Column{Name: name, Kind: KindString, Strs: stringColumn(rows, colIdx)})
		default:
			// Passthrough column: numeric when every non-missing value
			// coerces and at least one value is present.
			nums, numeric := tryNumericColumn(rows, colIdx)
			if numeric {
				cols = append(cols, Column{Name: name, Kind: KindNumeric, Nums: nums})
			} else {
				cols = append(cols, Column{Name: name, Kind: KindString, Strs: stringColumn(rows, colIdx)})
			}
		}
	}

	t, err := New(cols)
	if err != nil {
		return nil, err
	}
	backfill(t)
	return t, nil
}

func stringColumn(rows [][]string, colIdx int) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		v := ""
		if colIdx < len(row) {
			v = strings.TrimSpace(row[colIdx])
		}
		if missingTokens[strings.ToLower(v)] {
			v = ""
		}
		out[i] = v
	}
	return out
}

func tryNumericColumn(rows [][]string, colIdx int) ([]float64, bool) {
	nums := make([]float64, len(rows))
	anyValue := false
	for i, row := range rows {
		raw := ""
		if colIdx < len(row) {
			raw = row[colIdx]
		}
		v, ok := coerceNumeric(raw, false)
		if !ok {
			return nil, false
		}
		if !math.IsNaN(v) {
			anyValue = true
		}
		nums[i] = v
	}
	return nums, anyValue
}

// coerceNumeric normalizes a raw cell into a float. Missing tokens yield
// (NaN, true); values that cannot be repaired yield (0, false). When fee is
// set, an exact zero is treated as missing rather than free.
func coerceNumeric(raw string, fee bool) (float64, bool) {
	s := strings.TrimSpace(raw)
	if missingTokens[strings.ToLower(s)] {
		return math.NaN(), true
	}

	// Unicode minus to ASCII, then symbol cleanup.
	s = strings.ReplaceAll(s, "−", "-")
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(currencySymbols, r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), true
	}

	if m := rangePattern.FindStringSubmatch(s); m != nil {
		lo, err1 := strconv.ParseFloat(m[1], 64)
		hi, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			return applyFeeRule((lo+hi)/2, fee), true
		}
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(s, " ", ""), 64)
	if err != nil {
		return 0, false
	}
	return applyFeeRule(v, fee), true
}

func applyFeeRule(v float64, fee bool) float64 {
	if fee && v == 0 {
		return math.NaN()
	}
	return v
}

// backfill applies the per-kind missing value policy in place: string columns
// get the Unknown placeholder, general numeric columns get their column
// median, and the three scoring metrics keep their gaps.
func backfill(t *Table) {
	keep := make(map[string]bool, len(ScoringMetrics))
	for _, name := range ScoringMetrics {
		keep[name] = true
	}

	for i := range t.cols {
		c := &t.cols[i]
		if c.Kind == KindString {
			for j, v := range c.Strs {
				if v == "" {
					c.Strs[j] = UnknownPlaceholder
				}
			}
			continue
		}
		if keep[c.Name] {
			continue
		}
		med, ok := median(c.Nums)
		if !ok {
			continue
		}
		for j, v := range c.Nums {
			if math.IsNaN(v) {
				c.Nums[j] = med
			}
		}
	}
}

// median computes the median of the non-missing values with linear
// interpolation between the two middle ranks. Returns false when every value
// is missing.
func median(vals []float64) (float64, bool) {
	present := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return 0, false
	}
	sort.Float64s(present)
	n := len(present)
	if n%2 == 1 {
		return present[n/2], true
	}
	return (present[n/2-1] + present[n/2]) / 2, true
}
