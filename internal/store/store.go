// Package store keeps aggregated metadata of datasets in SQLite and answers
// field searches over it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// UniqueKey is the dataset-level key holding unique content properties.
const UniqueKey = "datalad_unique_content_properties"

// ErrNotAggregated is returned for datasets without stored metadata.
var ErrNotAggregated = errors.New("no aggregated metadata")

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	root          TEXT PRIMARY KEY,
	dataset_id    TEXT NOT NULL DEFAULT '',
	refcommit     TEXT NOT NULL DEFAULT '',
	unique_json   TEXT NOT NULL DEFAULT '{}',
	aggregated_at INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS metadata (
	root      TEXT NOT NULL,
	path      TEXT NOT NULL,
	extractor TEXT NOT NULL,
	json      TEXT NOT NULL,
	PRIMARY KEY (root, path, extractor)
);
CREATE TABLE IF NOT EXISTS fields (
	root  TEXT NOT NULL,
	path  TEXT NOT NULL,
	key   TEXT NOT NULL,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fields_key ON fields(key);
CREATE INDEX IF NOT EXISTS idx_fields_record ON fields(root, path);
`

// Store is an SQLite backed metadata store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Record is the stored metadata of one dataset or file.
type Record struct {
	Root string `json:"root"`
	// Path is "" for dataset-level metadata.
	Path      string                    `json:"path,omitempty"`
	DatasetID string                    `json:"dataset_id,omitempty"`
	RefCommit string                    `json:"refcommit,omitempty"`
	Metadata  map[string]map[string]any `json:"metadata"`
	// Unique holds the unique content properties of a dataset record.
	Unique map[string]map[string][]any `json:"datalad_unique_content_properties,omitempty"`
}

// DatasetInfo summarizes an aggregated dataset.
type DatasetInfo struct {
	Root         string
	DatasetID    string
	RefCommit    string
	AggregatedAt time.Time
	Extractors   []string
	Files        int
	Unique       map[string]map[string][]any
}

// Put replaces everything stored for dataset.Root with the given records. The
// dataset record must have an empty Path.
func (s *Store) Put(ctx context.Context, dataset Record, files []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"metadata", "fields", "datasets"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE root = ?", dataset.Root); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	unique, err := json.Marshal(dataset.Unique)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO datasets (root, dataset_id, refcommit, unique_json, aggregated_at) VALUES (?, ?, ?, ?, ?)",
		dataset.Root, dataset.DatasetID, dataset.RefCommit, string(unique), time.Now().Unix()); err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}

	insertMD, err := tx.PrepareContext(ctx, "INSERT INTO metadata (root, path, extractor, json) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer insertMD.Close()
	insertField, err := tx.PrepareContext(ctx, "INSERT INTO fields (root, path, key, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer insertField.Close()

	for _, rec := range append([]Record{dataset}, files...) {
		for extractor, md := range rec.Metadata {
			data, err := json.Marshal(md)
			if err != nil {
				return fmt.Errorf("%s %s: %w", extractor, rec.Path, err)
			}
			if _, err := insertMD.ExecContext(ctx, dataset.Root, rec.Path, extractor, string(data)); err != nil {
				return err
			}
			for _, f := range Flatten(extractor, md) {
				if _, err := insertField.ExecContext(ctx, dataset.Root, rec.Path, f.Key, f.Value); err != nil {
					return err
				}
			}
		}
	}
	return tx.Commit()
}

// Get returns the stored record of a dataset (path "") or file.
func (s *Store) Get(ctx context.Context, root, path string) (Record, error) {
	rec := Record{Root: root, Path: path, Metadata: make(map[string]map[string]any)}
	var unique string
	err := s.db.QueryRowContext(ctx, "SELECT dataset_id, refcommit, unique_json FROM datasets WHERE root = ?", root).
		Scan(&rec.DatasetID, &rec.RefCommit, &unique)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%s: %w", root, ErrNotAggregated)
	}
	if err != nil {
		return Record{}, err
	}
	if path == "" {
		if err := json.Unmarshal([]byte(unique), &rec.Unique); err != nil {
			return Record{}, err
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT extractor, json FROM metadata WHERE root = ? AND path = ?", root, path)
	if err != nil {
		return Record{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var extractor, data string
		if err := rows.Scan(&extractor, &data); err != nil {
			return Record{}, err
		}
		var md map[string]any
		if err := json.Unmarshal([]byte(data), &md); err != nil {
			return Record{}, err
		}
		rec.Metadata[extractor] = md
	}
	if err := rows.Err(); err != nil {
		return Record{}, err
	}
	if path != "" && len(rec.Metadata) == 0 {
		return Record{}, fmt.Errorf("%s: %w", filepath.Join(root, path), ErrNotAggregated)
	}
	return rec, nil
}

// Datasets lists the aggregated datasets ordered by root.
func (s *Store) Datasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.root, d.dataset_id, d.refcommit, d.unique_json, d.aggregated_at,
			(SELECT COUNT(DISTINCT m.path) FROM metadata m WHERE m.root = d.root AND m.path != '')
		FROM datasets d ORDER BY d.root`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DatasetInfo
	for rows.Next() {
		var info DatasetInfo
		var unique string
		var at int64
		if err := rows.Scan(&info.Root, &info.DatasetID, &info.RefCommit, &unique, &at, &info.Files); err != nil {
			return nil, err
		}
		info.AggregatedAt = time.Unix(at, 0)
		if err := json.Unmarshal([]byte(unique), &info.Unique); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		exRows, err := s.db.QueryContext(ctx, "SELECT DISTINCT extractor FROM metadata WHERE root = ? AND path = '' ORDER BY extractor", out[i].Root)
		if err != nil {
			return nil, err
		}
		for exRows.Next() {
			var name string
			if err := exRows.Scan(&name); err != nil {
				exRows.Close()
				return nil, err
			}
			out[i].Extractors = append(out[i].Extractors, name)
		}
		exRows.Close()
	}
	return out, nil
}
