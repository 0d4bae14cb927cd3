package dataset

import (
	"bytes"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvHeader = "Name,APIR Code,Morningstar Category,3 Years Annualised (%),Investment Management Fee(%),Equity StyleBox™,Morningstar Rating,3 Year Beta,3 Year Standard Deviation,3 Year Sharpe Ratio"

func buildCSV(rows ...string) io.Reader {
	return strings.NewReader(csvHeader + "\n" + strings.Join(rows, "\n") + "\n")
}

func TestValidate_MissingColumns(t *testing.T) {
	loader := NewLoader()

	input := strings.NewReader("Name,APIR Code\nFund A,ABC0001AU\n")
	err := loader.Validate(input)
	require.Error(t, err)

	var missingErr *MissingColumnsError
	require.ErrorAs(t, err, &missingErr)
	assert.Contains(t, missingErr.Columns, ColCategory)
	assert.Contains(t, missingErr.Columns, ColSharpe)
	assert.NotContains(t, missingErr.Columns, ColName)
}

func TestValidate_NonNumericColumn(t *testing.T) {
	loader := NewLoader()

	err := loader.Validate(buildCSV(
		"Fund A,ABC0001AU,Cat,ten,0.5,Large Blend,4,1.0,10,0.5",
		"Fund B,ABC0002AU,Cat,eleven,0.5,Large Blend,4,1.0,10,0.5",
		"Fund C,ABC0003AU,Cat,twelve,0.5,Large Blend,4,1.0,10,0.5",
		"Fund D,ABC0004AU,Cat,thirteen,0.5,Large Blend,4,1.0,10,0.5",
		"Fund E,ABC0005AU,Cat,fourteen,0.5,Large Blend,4,1.0,10,0.5",
	))
	require.Error(t, err)

	var numErr *NonNumericColumnError
	require.ErrorAs(t, err, &numErr)
	assert.Equal(t, ColReturn, numErr.Column)
	require.Len(t, numErr.Examples, 3)
	assert.Equal(t, BadValue{Row: 1, Value: "ten"}, numErr.Examples[0])
	assert.Equal(t, 2, numErr.Omitted)
	assert.Contains(t, numErr.Error(), "and 2 more")
}

func TestValidate_EmptyAndMalformed(t *testing.T) {
	loader := NewLoader()

	err := loader.Validate(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyInput)

	err = loader.Validate(strings.NewReader(csvHeader + "\n"))
	assert.ErrorIs(t, err, ErrEmptyInput)

	err = loader.Validate(strings.NewReader("a,\"b\nno closing quote"))
	var malformed *MalformedInputError
	assert.ErrorAs(t, err, &malformed)
}

func TestLoad_StripsByteOrderMark(t *testing.T) {
	loader := NewLoader()

	// Excel exports prefix the header with a UTF-8 BOM; the first column
	// must still resolve to Name.
	input := strings.NewReader("\uFEFF" + csvHeader + "\n" +
		"Fund A,ABC0001AU,Cat,10,0.5,Large Blend,4,1.0,10,0.5\n")
	table, err := loader.Load(input)
	require.NoError(t, err)
	assert.True(t, table.HasColumn(ColName))
	assert.Equal(t, "Fund A", table.String(ColName, 0))
}

func TestValidate_AcceptsRepairedValues(t *testing.T) {
	loader := NewLoader()

	// Tokens that normalize cleanly must not fail validation.
	err := loader.Validate(buildCSV(
		"Fund A,ABC0001AU,Cat,−3.5,0.45%,Large Blend,4,0.9,8.2,0.7",
		"Fund B,ABC0002AU,Cat,N/A,0.5-1.5,Large Blend,n/a,1.1,9.0,0.6",
	))
	assert.NoError(t, err)
}

func TestCoerceNumeric(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		fee     bool
		want    float64
		missing bool
		ok      bool
	}{
		{name: "plain float", raw: "3.14", want: 3.14, ok: true},
		{name: "surrounding whitespace", raw: "  7.5 ", want: 7.5, ok: true},
		{name: "unicode minus", raw: "−2.5", want: -2.5, ok: true},
		{name: "percent sign", raw: "12.5%", want: 12.5, ok: true},
		{name: "currency symbol", raw: "$1500", want: 1500, ok: true},
		{name: "thousands separator", raw: "1,500.25", want: 1500.25, ok: true},
		{name: "range mean", raw: "0.5-1.5", want: 1.0, ok: true},
		{name: "range with spaces", raw: "5 - 10", want: 7.5, ok: true},
		{name: "negative untouched by range", raw: "-4.2", want: -4.2, ok: true},
		{name: "missing empty", raw: "", missing: true, ok: true},
		{name: "missing na upper", raw: "NA", missing: true, ok: true},
		{name: "missing n/a", raw: "n/a", missing: true, ok: true},
		{name: "missing dash", raw: "-", missing: true, ok: true},
		{name: "missing nan mixed case", raw: "NaN", missing: true, ok: true},
		{name: "missing whitespace only", raw: "   ", missing: true, ok: true},
		{name: "fee zero becomes missing", raw: "0.00", fee: true, missing: true, ok: true},
		{name: "fee nonzero kept", raw: "0.45", fee: true, want: 0.45, ok: true},
		{name: "not a number", raw: "ten", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := coerceNumeric(tt.raw, tt.fee)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			if tt.missing {
				assert.True(t, math.IsNaN(got), "expected missing, got %v", got)
			} else {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestLoad_MedianBackfillPolicy(t *testing.T) {
	loader := NewLoader()

	table, err := loader.Load(buildCSV(
		"Fund A,ABC0001AU,Cat,10,0.5,Large Blend,4,1.0,10,0.5",
		"Fund B,ABC0002AU,Cat,20,0.7,Large Blend,5,,,",
		"Fund C,ABC0003AU,Cat,,0.9,Large Blend,3,1.2,12,0.9",
	))
	require.NoError(t, err)

	// General numeric column: missing return is backfilled with the median
	// of the present values (10, 20).
	assert.InDelta(t, 15.0, table.Float(ColReturn, 2), 1e-9)

	// Scoring metrics keep their gaps.
	assert.True(t, math.IsNaN(table.Float(ColBeta, 1)))
	assert.True(t, math.IsNaN(table.Float(ColStdDev, 1)))
	assert.True(t, math.IsNaN(table.Float(ColSharpe, 1)))
}

func TestLoad_StringUnknownAndPassthrough(t *testing.T) {
	loader := NewLoader()

	input := strings.NewReader(csvHeader + ",Region,5 Year Return\n" +
		"Fund A,ABC0001AU,Cat,10,0.5,Large Blend,4,1.0,10,0.5,AU,8.1\n" +
		"Fund B,ABC0002AU,unknown,20,0.7,,5,1.1,11,0.6,,9.2\n")

	table, err := loader.Load(input)
	require.NoError(t, err)

	// Missing string values become the placeholder, including tokens
	// like "unknown" itself.
	assert.Equal(t, UnknownPlaceholder, table.String(ColCategory, 1))
	assert.Equal(t, UnknownPlaceholder, table.String(ColStyleBox, 1))
	assert.Equal(t, UnknownPlaceholder, table.String("Region", 1))

	// An extra column with fully coercible values is detected as numeric
	// and picked up by the numeric column listing.
	assert.Contains(t, table.NumericColumnNames(), "5 Year Return")
	assert.InDelta(t, 9.2, table.Float("5 Year Return", 1), 1e-9)
}

func TestLoadAll_Concat(t *testing.T) {
	loader := NewLoader()

	table, err := loader.LoadAll([]io.Reader{
		buildCSV("Fund A,ABC0001AU,Cat,10,0.5,Large Blend,4,1.0,10,0.5"),
		buildCSV("Fund B,ABC0002AU,Cat,20,0.7,Large Blend,5,1.1,11,0.6"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, table.NumRows())
	nameCol, ok := table.Column(ColName)
	require.True(t, ok)
	assert.Equal(t, []string{"Fund A", "Fund B"}, nameCol.Strs)

	_, err = loader.LoadAll(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestTable_SelectAndClone(t *testing.T) {
	loader := NewLoader()
	table, err := loader.Load(buildCSV(
		"Fund A,ABC0001AU,Cat,10,0.5,Large Blend,4,1.0,10,0.5",
		"Fund B,ABC0002AU,Cat,20,0.7,Large Blend,5,1.1,11,0.6",
		"Fund C,ABC0003AU,Cat,30,0.9,Large Blend,3,1.2,12,0.9",
	))
	require.NoError(t, err)

	subset, err := table.Select([]bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, 2, subset.NumRows())
	assert.Equal(t, "Fund C", subset.String(ColName, 1))

	// Mutating a clone must not touch the source.
	clone := table.Clone()
	c, _ := clone.Column(ColReturn)
	c.Nums[0] = 999
	assert.InDelta(t, 10.0, table.Float(ColReturn, 0), 1e-9)
}

func TestWriteCSV_MissingBlank(t *testing.T) {
	loader := NewLoader()
	table, err := loader.Load(buildCSV(
		"Fund A,ABC0001AU,Cat,10,0.5,Large Blend,4,1.0,10,0.5",
		"Fund B,ABC0002AU,Cat,20,0.7,Large Blend,5,,,",
	))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table, table.CanonicalOrder(nil)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, csvHeader, lines[0])
	// Missing beta/stddev/sharpe serialize as empty cells.
	assert.True(t, strings.HasSuffix(lines[2], ",,,"))
}
