package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundlens/fundlens/internal/database"
)

// Repository handles portfolio database operations.
// Database: portfolio.db (portfolio_funds table)
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a portfolio repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Add inserts a fund, or refreshes its name and category if the APIR code is
// already present. Comments, asset class, and allocation survive re-adding.
func (r *Repository) Add(fund Fund) error {
	if fund.AddedAt.IsZero() {
		fund.AddedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(`
		INSERT INTO portfolio_funds (apir_code, name, category, comments, asset_class, allocation, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(apir_code) DO UPDATE SET name = excluded.name, category = excluded.category`,
		fund.APIRCode, fund.Name, fund.Category, fund.Comments, fund.AssetClass,
		allocationValue(fund.Allocation), fund.AddedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to add portfolio fund: %w", err)
	}
	return nil
}

// Get returns a fund by APIR code, or nil if it is not in the portfolio.
func (r *Repository) Get(apirCode string) (*Fund, error) {
	row := r.db.QueryRow(
		"SELECT apir_code, name, category, comments, asset_class, allocation, added_at FROM portfolio_funds WHERE apir_code = ?",
		apirCode,
	)

	fund, err := scanFund(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fund, nil
}

// List returns every portfolio fund, oldest first.
func (r *Repository) List() ([]Fund, error) {
	rows, err := r.db.Query(
		"SELECT apir_code, name, category, comments, asset_class, allocation, added_at FROM portfolio_funds ORDER BY added_at, apir_code",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio funds: %w", err)
	}
	defer rows.Close()

	var funds []Fund
	for rows.Next() {
		fund, err := scanFund(rows.Scan)
		if err != nil {
			return nil, err
		}
		funds = append(funds, *fund)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio funds: %w", err)
	}
	return funds, nil
}

// Remove deletes a fund from the portfolio.
func (r *Repository) Remove(apirCode string) error {
	if _, err := r.db.Exec("DELETE FROM portfolio_funds WHERE apir_code = ?", apirCode); err != nil {
		return fmt.Errorf("failed to remove portfolio fund: %w", err)
	}
	return nil
}

// SetAllocation updates a fund's allocation percentage. A nil allocation
// clears it.
func (r *Repository) SetAllocation(apirCode string, allocation *float64) error {
	return r.updateField(apirCode, "allocation", allocationValue(allocation))
}

// SetAssetClass updates a fund's asset class assignment.
func (r *Repository) SetAssetClass(apirCode, assetClass string) error {
	return r.updateField(apirCode, "asset_class", assetClass)
}

// SetComments updates a fund's adviser comments.
func (r *Repository) SetComments(apirCode, comments string) error {
	return r.updateField(apirCode, "comments", comments)
}

func (r *Repository) updateField(apirCode, field string, value interface{}) error {
	result, err := r.db.Exec(
		fmt.Sprintf("UPDATE portfolio_funds SET %s = ? WHERE apir_code = ?", field),
		value, apirCode,
	)
	if err != nil {
		return fmt.Errorf("failed to update portfolio fund %s: %w", field, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func allocationValue(allocation *float64) interface{} {
	if allocation == nil {
		return nil
	}
	return *allocation
}

func scanFund(scan func(...interface{}) error) (*Fund, error) {
	var fund Fund
	var allocation sql.NullFloat64
	var addedAt int64

	if err := scan(&fund.APIRCode, &fund.Name, &fund.Category, &fund.Comments,
		&fund.AssetClass, &allocation, &addedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan portfolio fund: %w", err)
	}
	if allocation.Valid {
		fund.Allocation = &allocation.Float64
	}
	fund.AddedAt = time.Unix(addedAt, 0).UTC()
	return &fund, nil
}
