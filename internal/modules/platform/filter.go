package platform

import (
	"fmt"

	"github.com/fundlens/fundlens/internal/modules/dataset"
)

// NoPlatformColumnError reports a dataset without the code column needed for
// platform filtering. Callers treat it as a warning: the dataset is usable,
// it just cannot be restricted.
type NoPlatformColumnError struct {
	Column string
}

func (e *NoPlatformColumnError) Error() string {
	return fmt.Sprintf("dataset has no %q column, platform filtering is unavailable", e.Column)
}

// FilterByCodes returns the rows whose APIR code exactly matches one of the
// given codes. Matching is case-sensitive. An empty code list or empty table
// returns the table unchanged. A missing code column returns the table
// unchanged together with *NoPlatformColumnError.
func FilterByCodes(t *dataset.Table, codes []string) (*dataset.Table, error) {
	if len(codes) == 0 || t.NumRows() == 0 {
		return t, nil
	}

	col, ok := t.Column(dataset.ColAPIRCode)
	if !ok || col.Kind != dataset.KindString {
		return t, &NoPlatformColumnError{Column: dataset.ColAPIRCode}
	}

	wanted := make(map[string]bool, len(codes))
	for _, code := range codes {
		wanted[code] = true
	}

	mask := make([]bool, t.NumRows())
	for i, code := range col.Strs {
		mask[i] = wanted[code]
	}
	return t.Select(mask)
}
