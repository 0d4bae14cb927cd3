package formula

// valueKind discriminates evaluation results. Scalars come from literals and
// scalar arithmetic; series come from column references and are row-aligned
// with the table under evaluation.
type valueKind int

const (
	scalarNum valueKind = iota
	seriesNum
	scalarBool
	seriesBool
)

type value struct {
	kind  valueKind
	num   float64
	nums  []float64
	b     bool
	bools []bool
}

func numScalar(v float64) value    { return value{kind: scalarNum, num: v} }
func numSeries(v []float64) value  { return value{kind: seriesNum, nums: v} }
func boolScalar(v bool) value      { return value{kind: scalarBool, b: v} }
func boolSeries(v []bool) value    { return value{kind: seriesBool, bools: v} }

func (v value) isNumeric() bool {
	return v.kind == scalarNum || v.kind == seriesNum
}

func (v value) isBool() bool {
	return v.kind == scalarBool || v.kind == seriesBool
}

// numAt returns the numeric value for row i, broadcasting scalars.
func (v value) numAt(i int) float64 {
	if v.kind == scalarNum {
		return v.num
	}
	return v.nums[i]
}

// boolAt returns the boolean value for row i, broadcasting scalars.
func (v value) boolAt(i int) bool {
	if v.kind == scalarBool {
		return v.b
	}
	return v.bools[i]
}
