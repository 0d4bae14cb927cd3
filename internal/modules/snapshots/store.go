// Package snapshots persists workspace datasets to disk so an analysis can be
// resumed later. Snapshots are msgpack-encoded column dumps keyed by UUID.
package snapshots

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/fundlens/fundlens/internal/modules/dataset"
)

// ErrNotFound is returned when a snapshot ID does not exist.
var ErrNotFound = errors.New("snapshot not found")

const (
	fileExt       = ".snap"
	formatVersion = 1
)

// Snapshot describes a stored dataset.
type Snapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Rows      int       `json:"rows"`
	Columns   int       `json:"columns"`
	CreatedAt time.Time `json:"created_at"`
}

type columnDoc struct {
	Name string    `msgpack:"name"`
	Kind int8      `msgpack:"kind"`
	Nums []float64 `msgpack:"nums,omitempty"`
	Strs []string  `msgpack:"strs,omitempty"`
}

type snapshotDoc struct {
	Version   int         `msgpack:"version"`
	ID        string      `msgpack:"id"`
	Name      string      `msgpack:"name"`
	CreatedAt time.Time   `msgpack:"created_at"`
	Columns   []columnDoc `msgpack:"columns"`
}

// Store reads and writes snapshots under a directory.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore creates a snapshot store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: log.With().Str("component", "snapshot_store").Logger(),
	}, nil
}

// Save writes the table as a new snapshot and returns its metadata.
func (s *Store) Save(name string, t *dataset.Table) (Snapshot, error) {
	doc := snapshotDoc{
		Version:   formatVersion,
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	for _, colName := range t.Names() {
		col, _ := t.Column(colName)
		doc.Columns = append(doc.Columns, columnDoc{
			Name: col.Name,
			Kind: int8(col.Kind),
			Nums: col.Nums,
			Strs: col.Strs,
		})
	}

	data, err := msgpack.Marshal(doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(s.path(doc.ID), data, 0o644); err != nil {
		return Snapshot{}, fmt.Errorf("failed to write snapshot: %w", err)
	}

	s.logger.Info().
		Str("snapshot_id", doc.ID).
		Str("name", name).
		Int("rows", t.NumRows()).
		Msg("Snapshot saved")
	return s.meta(doc), nil
}

// Load reads a snapshot back into a table.
func (s *Store) Load(id string) (*dataset.Table, Snapshot, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, Snapshot{}, ErrNotFound
	}
	if err != nil {
		return nil, Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var doc snapshotDoc
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if doc.Version != formatVersion {
		return nil, Snapshot{}, fmt.Errorf("unsupported snapshot version %d", doc.Version)
	}

	cols := make([]dataset.Column, 0, len(doc.Columns))
	for _, cd := range doc.Columns {
		cols = append(cols, dataset.Column{
			Name: cd.Name,
			Kind: dataset.ColumnKind(cd.Kind),
			Nums: cd.Nums,
			Strs: cd.Strs,
		})
	}
	table, err := dataset.New(cols)
	if err != nil {
		return nil, Snapshot{}, fmt.Errorf("snapshot is inconsistent: %w", err)
	}
	return table, s.meta(doc), nil
}

// List returns every snapshot's metadata, newest first. Unreadable files are
// skipped.
func (s *Store) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	snaps := make([]Snapshot, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), fileExt)
		_, snap, err := s.Load(id)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping unreadable snapshot")
			continue
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(a, b int) bool {
		return snaps[a].CreatedAt.After(snaps[b].CreatedAt)
	})
	return snaps, nil
}

// Delete removes a snapshot.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func (s *Store) path(id string) string {
	// IDs come from UUIDs; reject anything that could escape the dir.
	return filepath.Join(s.dir, filepath.Base(id)+fileExt)
}

func (s *Store) meta(doc snapshotDoc) Snapshot {
	rows := 0
	if len(doc.Columns) > 0 {
		if doc.Columns[0].Kind == int8(dataset.KindNumeric) {
			rows = len(doc.Columns[0].Nums)
		} else {
			rows = len(doc.Columns[0].Strs)
		}
	}
	return Snapshot{
		ID:        doc.ID,
		Name:      doc.Name,
		Rows:      rows,
		Columns:   len(doc.Columns),
		CreatedAt: doc.CreatedAt,
	}
}
