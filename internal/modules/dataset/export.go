package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
)

// WriteCSV serializes the table in the given column order. Missing numeric
// values are written as empty cells, never as a sentinel. Columns listed in
// order but absent from the table are skipped.
func WriteCSV(w io.Writer, t *Table, order []string) error {
	if order == nil {
		order = t.Names()
	}

	cols := make([]*Column, 0, len(order))
	header := make([]string, 0, len(order))
	for _, name := range order {
		if c, ok := t.Column(name); ok {
			cols = append(cols, c)
			header = append(header, name)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(cols))
	for row := 0; row < t.NumRows(); row++ {
		for i, c := range cols {
			if c.Kind == KindString {
				record[i] = c.Strs[row]
				continue
			}
			v := c.Nums[row]
			if math.IsNaN(v) {
				record[i] = ""
			} else {
				record[i] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
