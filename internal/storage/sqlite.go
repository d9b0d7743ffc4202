package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE entries (
	id      INTEGER PRIMARY KEY,
	source  TEXT    NOT NULL,
	ordinal INTEGER NOT NULL,
	text    TEXT    NOT NULL,
	vector  BLOB    NOT NULL
);
CREATE INDEX idx_entries_source ON entries(source);
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

type entryRow struct {
	ID      int64  `db:"id"`
	Source  string `db:"source"`
	Ordinal int    `db:"ordinal"`
	Text    string `db:"text"`
	Vector  []byte `db:"vector"`
}

// SQLiteBuilder writes a single-file index. Rebuild writes to a temporary
// file next to the target and renames it into place, so readers never see a
// partially written index.
type SQLiteBuilder struct {
	path string
}

// NewSQLiteBuilder creates a builder for the index file at path.
func NewSQLiteBuilder(path string) *SQLiteBuilder {
	return &SQLiteBuilder{path: path}
}

// BuildSQLiteIndex replaces the index file at path with entries.
func BuildSQLiteIndex(ctx context.Context, path, model string, entries []Entry) error {
	return NewSQLiteBuilder(path).Rebuild(ctx, model, entries)
}

// Rebuild implements Builder.
func (b *SQLiteBuilder) Rebuild(ctx context.Context, model string, entries []Entry) error {
	dim, err := validateEntries(entries)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp := b.path + ".tmp-" + uuid.New().String()
	if err := writeSQLiteIndex(ctx, tmp, dim, model, entries); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

func writeSQLiteIndex(ctx context.Context, path string, dim int, model string, entries []Entry) error {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO entries (id, source, ordinal, text, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, i, e.Source, e.Ordinal, e.Text, encodeVector(normalize(e.Vector))); err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}

	meta := map[string]string{
		"dimension":       strconv.Itoa(dim),
		"embedding_model": model,
		"built_at":        time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index: %w", err)
	}
	return nil
}

// SQLiteIndex is an index file loaded fully into memory at open. It is never
// mutated afterwards, so concurrent searches need no locking.
type SQLiteIndex struct {
	path      string
	dimension int
	model     string
	entries   []Entry
	sources   map[string]int
}

// OpenSQLiteIndex loads the index file at path. A missing or unreadable
// file yields an error wrapping ErrIndexUnavailable.
func OpenSQLiteIndex(ctx context.Context, path string) (*SQLiteIndex, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrIndexUnavailable, path)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrIndexUnavailable, err)
	}
	defer db.Close()

	var dimValue string
	if err := db.GetContext(ctx, &dimValue, `SELECT value FROM meta WHERE key = 'dimension'`); err != nil {
		return nil, fmt.Errorf("%w: read dimension: %v", ErrIndexUnavailable, err)
	}
	dim, err := strconv.Atoi(dimValue)
	if err != nil || dim <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %q", ErrIndexUnavailable, dimValue)
	}

	// Indexes written before the model was recorded report "" and fail
	// VerifyModel.
	var model string
	err = db.GetContext(ctx, &model, `SELECT value FROM meta WHERE key = 'embedding_model'`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: read embedding model: %v", ErrIndexUnavailable, err)
	}

	var rows []entryRow
	if err := db.SelectContext(ctx, &rows, `SELECT id, source, ordinal, text, vector FROM entries ORDER BY id`); err != nil {
		return nil, fmt.Errorf("%w: read entries: %v", ErrIndexUnavailable, err)
	}

	idx := &SQLiteIndex{
		path:      path,
		dimension: dim,
		model:     model,
		entries:   make([]Entry, 0, len(rows)),
		sources:   make(map[string]int),
	}
	for _, row := range rows {
		vec, err := decodeVector(row.Vector)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrIndexUnavailable, row.ID, err)
		}
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, fmtDimension(int(row.ID), len(vec), dim))
		}
		idx.entries = append(idx.entries, Entry{
			Seq:     int(row.ID),
			Source:  row.Source,
			Ordinal: row.Ordinal,
			Text:    row.Text,
			Vector:  vec,
		})
		idx.sources[row.Source]++
	}

	return idx, nil
}

// Search implements Index with an exact scan.
func (s *SQLiteIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := normalize(vector)
	hits := make([]Hit, len(s.entries))
	for i, e := range s.entries {
		hits[i] = Hit{Entry: e, Distance: cosineDistance(query, e.Vector)}
	}
	sortHits(hits)

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Stats implements Index.
func (s *SQLiteIndex) Stats(_ context.Context) (*Stats, error) {
	sources := make(map[string]int, len(s.sources))
	for k, v := range s.sources {
		sources[k] = v
	}
	return &Stats{
		Backend:   "sqlite",
		Location:  s.path,
		Entries:   len(s.entries),
		Dimension: s.dimension,
		Model:     s.model,
		Sources:   sources,
	}, nil
}

// Health reports ErrIndexUnavailable once the index file is gone. Searches
// keep working from memory, but the next process start would fail.
func (s *SQLiteIndex) Health(_ context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// Close implements Index. The file was closed after loading.
func (s *SQLiteIndex) Close() error { return nil }

// IndexExists reports whether an index file exists at path.
func IndexExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
