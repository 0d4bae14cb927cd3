package screens

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fundlens/fundlens/internal/database"
)

// Repository handles saved screen and code set database operations.
// Database: screens.db (saved_screens, platform_code_sets tables)
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a screens repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "screens").Logger(),
	}
}

// SaveScreen stores a new named formula and returns it with its generated ID.
func (r *Repository) SaveScreen(name, formulaSrc string) (*SavedScreen, error) {
	now := time.Now().UTC()
	screen := &SavedScreen{
		ID:        uuid.New().String(),
		Name:      name,
		Formula:   formulaSrc,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.Exec(
		"INSERT INTO saved_screens (id, name, formula, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		screen.ID, screen.Name, screen.Formula, now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert saved screen: %w", err)
	}
	return screen, nil
}

// UpdateScreen replaces the name and formula of an existing screen.
func (r *Repository) UpdateScreen(id, name, formulaSrc string) error {
	result, err := r.db.Exec(
		"UPDATE saved_screens SET name = ?, formula = ?, updated_at = ? WHERE id = ?",
		name, formulaSrc, time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update saved screen: %w", err)
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

// GetScreen returns a saved screen by ID, or nil if it does not exist.
func (r *Repository) GetScreen(id string) (*SavedScreen, error) {
	row := r.db.QueryRow(
		"SELECT id, name, formula, created_at, updated_at FROM saved_screens WHERE id = ?", id,
	)

	var screen SavedScreen
	var createdAt, updatedAt int64
	err := row.Scan(&screen.ID, &screen.Name, &screen.Formula, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan saved screen: %w", err)
	}
	screen.CreatedAt = time.Unix(createdAt, 0).UTC()
	screen.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &screen, nil
}

// ListScreens returns all saved screens, most recently updated first.
func (r *Repository) ListScreens() ([]SavedScreen, error) {
	rows, err := r.db.Query(
		"SELECT id, name, formula, created_at, updated_at FROM saved_screens ORDER BY updated_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved screens: %w", err)
	}
	defer rows.Close()

	var screens []SavedScreen
	for rows.Next() {
		var screen SavedScreen
		var createdAt, updatedAt int64
		if err := rows.Scan(&screen.ID, &screen.Name, &screen.Formula, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan saved screen: %w", err)
		}
		screen.CreatedAt = time.Unix(createdAt, 0).UTC()
		screen.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		screens = append(screens, screen)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating saved screens: %w", err)
	}
	return screens, nil
}

// DeleteScreen removes a saved screen. Deleting a missing ID is not an error.
func (r *Repository) DeleteScreen(id string) error {
	if _, err := r.db.Exec("DELETE FROM saved_screens WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete saved screen: %w", err)
	}
	return nil
}

// SaveCodeSet stores an extracted platform code list.
func (r *Repository) SaveCodeSet(name, sourceName string, codes []string) (*CodeSet, error) {
	encoded, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode codes: %w", err)
	}

	now := time.Now().UTC()
	set := &CodeSet{
		ID:         uuid.New().String(),
		Name:       name,
		SourceName: sourceName,
		Codes:      codes,
		CreatedAt:  now,
	}
	_, err = r.db.Exec(
		"INSERT INTO platform_code_sets (id, name, source_name, codes, created_at) VALUES (?, ?, ?, ?, ?)",
		set.ID, set.Name, set.SourceName, string(encoded), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert code set: %w", err)
	}
	return set, nil
}

// GetCodeSet returns a code set by ID, or nil if it does not exist.
func (r *Repository) GetCodeSet(id string) (*CodeSet, error) {
	row := r.db.QueryRow(
		"SELECT id, name, source_name, codes, created_at FROM platform_code_sets WHERE id = ?", id,
	)
	set, err := scanCodeSet(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return set, nil
}

// ListCodeSets returns all code sets, newest first.
func (r *Repository) ListCodeSets() ([]CodeSet, error) {
	rows, err := r.db.Query(
		"SELECT id, name, source_name, codes, created_at FROM platform_code_sets ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query code sets: %w", err)
	}
	defer rows.Close()

	var sets []CodeSet
	for rows.Next() {
		set, err := scanCodeSet(rows.Scan)
		if err != nil {
			return nil, err
		}
		sets = append(sets, *set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating code sets: %w", err)
	}
	return sets, nil
}

// DeleteCodeSet removes a code set. Deleting a missing ID is not an error.
func (r *Repository) DeleteCodeSet(id string) error {
	if _, err := r.db.Exec("DELETE FROM platform_code_sets WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete code set: %w", err)
	}
	return nil
}

func scanCodeSet(scan func(...interface{}) error) (*CodeSet, error) {
	var set CodeSet
	var sourceName sql.NullString
	var encoded string
	var createdAt int64

	if err := scan(&set.ID, &set.Name, &sourceName, &encoded, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan code set: %w", err)
	}
	if sourceName.Valid {
		set.SourceName = sourceName.String
	}
	if err := json.Unmarshal([]byte(encoded), &set.Codes); err != nil {
		return nil, fmt.Errorf("failed to decode codes: %w", err)
	}
	set.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &set, nil
}
