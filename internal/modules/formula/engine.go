// Package formula implements the sandboxed screening expression engine.
// Formulas reference numeric columns by alias or backtick-quoted name,
// compare and combine them with boolean logic, and produce a per-row
// keep/drop mask. There is no general scripting surface: only the grammar in
// this package is evaluated.
package formula

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/fundlens/fundlens/internal/modules/dataset"
)

// MissingSentinel replaces missing numeric values during evaluation so every
// comparison is well-defined. It is far below any plausible metric, so
// missing rows naturally fail ">" screens and pass "<" screens.
const MissingSentinel = -9999

// Aliases maps short formula names onto the canonical column names.
var Aliases = map[string]string{
	"return":        dataset.ColReturn,
	"expense_ratio": dataset.ColFee,
	"risk":          dataset.ColStdDev,
	"beta":          dataset.ColBeta,
	"sharpe":        dataset.ColSharpe,
}

const (
	suffixZScore     = "_zscore"
	suffixPercentile = "_percentile"
)

// Engine evaluates screening formulas against a dataset table.
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates a formula engine.
func NewEngine() *Engine {
	return &Engine{
		logger: log.With().Str("component", "formula_engine").Logger(),
	}
}

// Apply evaluates a formula against the table and returns the row mask.
// The formula must produce a boolean result; a scalar boolean broadcasts to
// every row. Errors are *SyntaxError, *UnknownIdentifierError, or *EvalError.
func (e *Engine) Apply(t *dataset.Table, src string) ([]bool, error) {
	root, err := parse(src)
	if err != nil {
		return nil, err
	}

	ev := &evaluator{table: t, rows: t.NumRows()}
	result, err := ev.eval(root)
	if err != nil {
		return nil, err
	}
	if !result.isBool() {
		return nil, &EvalError{Msg: "formula must produce a true/false result for each row"}
	}

	mask := make([]bool, ev.rows)
	for i := range mask {
		mask[i] = result.boolAt(i)
	}

	kept := 0
	for _, m := range mask {
		if m {
			kept++
		}
	}
	e.logger.Debug().
		Str("formula", src).
		Int("rows", ev.rows).
		Int("matched", kept).
		Msg("Formula applied")
	return mask, nil
}

// Filter evaluates a formula and returns the matching rows as a new table.
func (e *Engine) Filter(t *dataset.Table, src string) (*dataset.Table, error) {
	mask, err := e.Apply(t, src)
	if err != nil {
		return nil, err
	}
	return t.Select(mask)
}

// Validate parses and resolves a formula against the table without building
// the final mask, for checking saved screens before they run.
func (e *Engine) Validate(t *dataset.Table, src string) error {
	_, err := e.Apply(t, src)
	return err
}

type evaluator struct {
	table *dataset.Table
	rows  int
}

func (ev *evaluator) eval(n node) (value, error) {
	switch n := n.(type) {
	case numberNode:
		return numScalar(n.value), nil
	case identNode:
		return ev.resolve(n.name)
	case unaryNode:
		return ev.evalUnary(n)
	case binaryNode:
		return ev.evalBinary(n)
	case callNode:
		return ev.evalCall(n)
	default:
		return value{}, &EvalError{Msg: "unsupported expression"}
	}
}

// resolve looks up an identifier: alias, exact column name, or a derived
// _zscore/_percentile series over either.
func (ev *evaluator) resolve(name string) (value, error) {
	if col, ok := ev.numericSeries(name); ok {
		return numSeries(col), nil
	}

	for _, suffix := range []string{suffixZScore, suffixPercentile} {
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		base, ok := ev.numericRaw(strings.TrimSuffix(name, suffix))
		if !ok {
			break
		}
		if suffix == suffixZScore {
			z, ok := zscores(base)
			if !ok {
				// A single distinct value has no spread to standardize
				// against, so the derived name stays undefined.
				break
			}
			return numSeries(z), nil
		}
		return numSeries(percentileRanks(base)), nil
	}

	return value{}, &UnknownIdentifierError{Name: name, Available: ev.available()}
}

// numericSeries returns the column's values with missing replaced by the
// sentinel.
func (ev *evaluator) numericSeries(name string) ([]float64, bool) {
	raw, ok := ev.numericRaw(name)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		if math.IsNaN(v) {
			out[i] = MissingSentinel
		} else {
			out[i] = v
		}
	}
	return out, true
}

// numericRaw returns the column's values with NaN still marking missing.
func (ev *evaluator) numericRaw(name string) ([]float64, bool) {
	target := name
	if aliased, ok := Aliases[name]; ok {
		target = aliased
	}
	col, ok := ev.table.Column(target)
	if !ok || col.Kind != dataset.KindNumeric {
		return nil, false
	}
	return col.Nums, true
}

// available lists every name a formula could reference, aliases first.
func (ev *evaluator) available() []string {
	var aliases []string
	for alias := range Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return append(aliases, ev.table.NumericColumnNames()...)
}

func (ev *evaluator) evalUnary(n unaryNode) (value, error) {
	v, err := ev.eval(n.expr)
	if err != nil {
		return value{}, err
	}

	switch n.op {
	case tokMinus:
		if !v.isNumeric() {
			return value{}, &EvalError{Msg: "unary '-' needs a numeric operand"}
		}
		if v.kind == scalarNum {
			return numScalar(-v.num), nil
		}
		out := make([]float64, len(v.nums))
		for i, x := range v.nums {
			out[i] = -x
		}
		return numSeries(out), nil

	case tokNot:
		if !v.isBool() {
			return value{}, &EvalError{Msg: "'not' needs a true/false operand"}
		}
		if v.kind == scalarBool {
			return boolScalar(!v.b), nil
		}
		out := make([]bool, len(v.bools))
		for i, x := range v.bools {
			out[i] = !x
		}
		return boolSeries(out), nil
	}
	return value{}, &EvalError{Msg: "unsupported unary operator"}
}

func (ev *evaluator) evalBinary(n binaryNode) (value, error) {
	left, err := ev.eval(n.left)
	if err != nil {
		return value{}, err
	}
	right, err := ev.eval(n.right)
	if err != nil {
		return value{}, err
	}

	switch n.op {
	case tokAnd, tokOr:
		if !left.isBool() || !right.isBool() {
			return value{}, &EvalError{Msg: "'and'/'or' need true/false operands"}
		}
		if left.kind == scalarBool && right.kind == scalarBool {
			if n.op == tokAnd {
				return boolScalar(left.b && right.b), nil
			}
			return boolScalar(left.b || right.b), nil
		}
		out := make([]bool, ev.rows)
		for i := range out {
			if n.op == tokAnd {
				out[i] = left.boolAt(i) && right.boolAt(i)
			} else {
				out[i] = left.boolAt(i) || right.boolAt(i)
			}
		}
		return boolSeries(out), nil

	case tokPlus, tokMinus, tokStar, tokSlash:
		if !left.isNumeric() || !right.isNumeric() {
			return value{}, &EvalError{Msg: "arithmetic needs numeric operands"}
		}
		if left.kind == scalarNum && right.kind == scalarNum {
			return numScalar(arith(n.op, left.num, right.num)), nil
		}
		out := make([]float64, ev.rows)
		for i := range out {
			out[i] = arith(n.op, left.numAt(i), right.numAt(i))
		}
		return numSeries(out), nil

	case tokLT, tokLE, tokGT, tokGE, tokEQ, tokNE:
		if !left.isNumeric() || !right.isNumeric() {
			return value{}, &EvalError{Msg: "comparison needs numeric operands"}
		}
		if left.kind == scalarNum && right.kind == scalarNum {
			return boolScalar(compare(n.op, left.num, right.num)), nil
		}
		out := make([]bool, ev.rows)
		for i := range out {
			out[i] = compare(n.op, left.numAt(i), right.numAt(i))
		}
		return boolSeries(out), nil
	}
	return value{}, &EvalError{Msg: "unsupported operator"}
}

func arith(op tokenKind, a, b float64) float64 {
	switch op {
	case tokPlus:
		return a + b
	case tokMinus:
		return a - b
	case tokStar:
		return a * b
	default:
		return a / b
	}
}

func compare(op tokenKind, a, b float64) bool {
	switch op {
	case tokLT:
		return a < b
	case tokLE:
		return a <= b
	case tokGT:
		return a > b
	case tokGE:
		return a >= b
	case tokEQ:
		return a == b
	default:
		return a != b
	}
}

func (ev *evaluator) evalCall(n callNode) (value, error) {
	switch n.name {
	case "top_n_pct", "bottom_n_pct":
		if len(n.args) != 2 {
			return value{}, &EvalError{Msg: fmt.Sprintf("%s expects (series, percent)", n.name)}
		}
		series, err := ev.eval(n.args[0])
		if err != nil {
			return value{}, err
		}
		if series.kind != seriesNum {
			return value{}, &EvalError{Msg: fmt.Sprintf("%s needs a numeric column as first argument", n.name)}
		}
		pct, err := ev.eval(n.args[1])
		if err != nil {
			return value{}, err
		}
		if pct.kind != scalarNum {
			return value{}, &EvalError{Msg: fmt.Sprintf("%s needs a numeric percentage as second argument", n.name)}
		}
		return boolSeries(percentBand(series.nums, pct.num, n.name == "top_n_pct")), nil

	default:
		return value{}, &EvalError{Msg: fmt.Sprintf("unknown function %q", n.name)}
	}
}

// percentBand marks the rows whose value falls in the top (or bottom) n
// percent of the series. Sentinel rows are excluded from the threshold and
// never match. An out-of-range percentage yields an all-false mask rather
// than an error.
func percentBand(series []float64, n float64, top bool) []bool {
	mask := make([]bool, len(series))
	if n < 0 || n > 100 {
		return mask
	}

	present := make([]float64, 0, len(series))
	for _, v := range series {
		if v != MissingSentinel {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return mask
	}
	sort.Float64s(present)

	var threshold float64
	if top {
		threshold = quantileLinear(present, 1-n/100)
	} else {
		threshold = quantileLinear(present, n/100)
	}
	for i, v := range series {
		if v == MissingSentinel {
			continue
		}
		if top {
			mask[i] = v >= threshold
		} else {
			mask[i] = v <= threshold
		}
	}
	return mask
}

// quantileLinear computes the p-quantile of sorted values with linear
// interpolation between closest ranks.
func quantileLinear(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	if lo < 0 {
		return sorted[0]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// zscores standardizes the non-missing values. Returns false when fewer than
// two distinct values are present. Missing rows get the sentinel.
func zscores(raw []float64) ([]float64, bool) {
	present := make([]float64, 0, len(raw))
	distinct := make(map[float64]struct{})
	for _, v := range raw {
		if !math.IsNaN(v) {
			present = append(present, v)
			distinct[v] = struct{}{}
		}
	}
	if len(distinct) < 2 {
		return nil, false
	}

	mean, std := stat.MeanStdDev(present, nil)
	out := make([]float64, len(raw))
	for i, v := range raw {
		if math.IsNaN(v) {
			out[i] = MissingSentinel
		} else {
			out[i] = (v - mean) / std
		}
	}
	return out, true
}

// percentileRanks assigns each non-missing value its fractional rank scaled
// to 0..100, averaging ranks across ties. Missing rows get the sentinel.
func percentileRanks(raw []float64) []float64 {
	type entry struct {
		idx int
		v   float64
	}
	present := make([]entry, 0, len(raw))
	for i, v := range raw {
		if !math.IsNaN(v) {
			present = append(present, entry{idx: i, v: v})
		}
	}

	out := make([]float64, len(raw))
	for i := range out {
		out[i] = MissingSentinel
	}
	if len(present) == 0 {
		return out
	}

	sort.Slice(present, func(a, b int) bool { return present[a].v < present[b].v })
	n := float64(len(present))

	// Average the 1-based ranks over each tie group.
	for i := 0; i < len(present); {
		j := i
		for j < len(present) && present[j].v == present[i].v {
			j++
		}
		rank := float64(i+1+j) / 2 // mean of ranks i+1 .. j
		for k := i; k < j; k++ {
			out[present[k].idx] = rank / n * 100
		}
		i = j
	}
	return out
}
