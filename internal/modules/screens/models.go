// Package screens persists reusable screening artifacts: named formulas and
// platform code sets extracted from approved product lists.
package screens

import "time"

// SavedScreen is a named screening formula.
type SavedScreen struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Formula   string    `json:"formula"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CodeSet is a named list of platform product codes, typically extracted from
// one approved product document.
type CodeSet struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SourceName string    `json:"source_name,omitempty"`
	Codes      []string  `json:"codes"`
	CreatedAt  time.Time `json:"created_at"`
}
