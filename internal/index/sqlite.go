package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smartdocs/smartdocs/internal/models"
)

// SQLiteManager is the durable collection backend. One database file per collection;
// vectors are stored as little-endian float32 blobs and scanned in-process for search.
// Writes are serialized behind a mutex; reads run concurrently under WAL.
type SQLiteManager struct {
	db         *sql.DB
	collection string
	dimensions int
	metric     string
	model      string
	writeMu    sync.Mutex
}

// NewSQLiteManager opens or creates the collection database at dbPath. Parent
// directories are created if needed. Opening an existing collection whose recorded
// dimensionality or embedding model disagrees with the arguments fails rather than
// mixing vector spaces.
func NewSQLiteManager(dbPath, collection string, dimensions int, model, metric string) (*SQLiteManager, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %v", ErrUnavailable, err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrUnavailable, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: enable WAL: %v", ErrUnavailable, err)
	}
	m := &SQLiteManager{
		db:         db,
		collection: collection,
		dimensions: dimensions,
		metric:     metric,
		model:      model,
	}
	if err := m.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *SQLiteManager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collection_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entries (
		chunk_id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		source_path TEXT,
		ordinal INTEGER NOT NULL,
		text TEXT NOT NULL,
		metadata TEXT,
		vector BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_source ON entries(source_id);
	`
	if _, err := m.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return m.checkMeta()
}

// checkMeta records the collection configuration on first open and verifies it on
// subsequent opens. Vectors from differing embedder configurations must never share
// a collection.
func (m *SQLiteManager) checkMeta() error {
	stored, err := m.metaValue("dimensions")
	if err != nil {
		return err
	}
	if stored == "" {
		for k, v := range map[string]string{
			"dimensions": strconv.Itoa(m.dimensions),
			"model":      m.model,
			"metric":     m.metric,
		} {
			if _, err := m.db.Exec(`INSERT OR REPLACE INTO collection_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
				return fmt.Errorf("write collection meta: %w", err)
			}
		}
		return nil
	}
	if stored != strconv.Itoa(m.dimensions) {
		return fmt.Errorf("%w: collection has %s, embedder config has %d", ErrDimensionMismatch, stored, m.dimensions)
	}
	model, err := m.metaValue("model")
	if err != nil {
		return err
	}
	if model != "" && m.model != "" && model != m.model {
		return fmt.Errorf("collection was built with embedding model %q, config says %q", model, m.model)
	}
	return nil
}

func (m *SQLiteManager) metaValue(key string) (string, error) {
	var v string
	err := m.db.QueryRow(`SELECT value FROM collection_meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read collection meta: %w", err)
	}
	return v, nil
}

func (m *SQLiteManager) checkDimensions(entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) != m.dimensions {
			return fmt.Errorf("%w: got %d, expected %d (chunk %s)", ErrDimensionMismatch, len(e.Vector), m.dimensions, e.ChunkID)
		}
	}
	return nil
}

// Upsert inserts or replaces entries by chunk ID in one transaction. The batch is
// validated before the transaction begins, so a dimension mismatch rejects the whole
// batch with the collection unchanged.
func (m *SQLiteManager) Upsert(ctx context.Context, entries []Entry) error {
	if err := m.checkDimensions(entries); err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrUnavailable, err)
	}
	if err := insertEntries(ctx, tx, entries); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ReplaceSource deletes all of sourceID's entries and inserts the new set in one
// transaction, so a concurrent reader sees either the old set or the new one.
func (m *SQLiteManager) ReplaceSource(ctx context.Context, sourceID string, entries []Entry) error {
	if err := m.checkDimensions(entries); err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE source_id = ?`, sourceID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete source entries: %w", err)
	}
	if err := insertEntries(ctx, tx, entries); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertEntries(ctx context.Context, tx *sql.Tx, entries []Entry) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO entries
		(chunk_id, source_id, source_path, ordinal, text, metadata, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", e.ChunkID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.ChunkID, e.SourceID, e.SourcePath, e.Ordinal, e.Text, string(metaJSON), float32SliceToBytes(e.Vector)); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ChunkID, err)
		}
	}
	return nil
}

// DeleteBySource removes all entries for sourceID, returning how many were removed.
func (m *SQLiteManager) DeleteBySource(ctx context.Context, sourceID string) (int, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	res, err := m.db.ExecContext(ctx, `DELETE FROM entries WHERE source_id = ?`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("delete by source: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Search scans the collection and returns up to topK entries by descending similarity,
// ties broken by chunk ID.
func (m *SQLiteManager) Search(ctx context.Context, query []float32, topK int, filter *Filter) ([]models.ScoredChunk, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, collection expects %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	if topK <= 0 {
		return nil, nil
	}
	q := `SELECT chunk_id, source_id, source_path, ordinal, text, metadata, vector FROM entries`
	args := []any{}
	if filter != nil && filter.SourceID != "" {
		q += ` WHERE source_id = ?`
		args = append(args, filter.SourceID)
	}
	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query entries: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan entries: %v", ErrUnavailable, err)
	}
	return rankEntries(entries, query, topK, filter, scoreFunc(m.metric)), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*Entry, error) {
	var e Entry
	var metaJSON string
	var vecBytes []byte
	if err := r.Scan(&e.ChunkID, &e.SourceID, &e.SourcePath, &e.Ordinal, &e.Text, &metaJSON, &vecBytes); err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	e.Vector = bytesToFloat32Slice(vecBytes)
	return &e, nil
}

// GetChunk returns the stored entry for chunkID or ErrNotFound.
func (m *SQLiteManager) GetChunk(ctx context.Context, chunkID string) (*Entry, error) {
	row := m.db.QueryRowContext(ctx, `SELECT chunk_id, source_id, source_path, ordinal, text, metadata, vector
		FROM entries WHERE chunk_id = ?`, chunkID)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, chunkID)
		}
		return nil, err
	}
	return e, nil
}

// SourceHash returns the content hash recorded with sourceID's entries, or "".
func (m *SQLiteManager) SourceHash(ctx context.Context, sourceID string) (string, error) {
	var metaJSON string
	err := m.db.QueryRowContext(ctx, `SELECT metadata FROM entries WHERE source_id = ? LIMIT 1`, sourceID).Scan(&metaJSON)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read source hash: %v", ErrUnavailable, err)
	}
	var meta models.Metadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return "", fmt.Errorf("unmarshal metadata: %w", err)
	}
	return meta.ContentHash, nil
}

// ClearCollection removes every entry. Destructive; used only for explicit re-indexing.
func (m *SQLiteManager) ClearCollection(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := m.db.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	return nil
}

// Count returns the number of entries in the collection.
func (m *SQLiteManager) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count entries: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Stats returns collection statistics.
func (m *SQLiteManager) Stats(ctx context.Context) (*Stats, error) {
	entries, err := m.Count(ctx)
	if err != nil {
		return nil, err
	}
	var sources int64
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT source_id) FROM entries`).Scan(&sources); err != nil {
		return nil, fmt.Errorf("%w: count sources: %v", ErrUnavailable, err)
	}
	return &Stats{
		Collection: m.collection,
		Entries:    entries,
		Sources:    sources,
		Dimensions: m.dimensions,
		Model:      m.model,
		Metric:     m.metric,
	}, nil
}

// Close closes the database.
func (m *SQLiteManager) Close() error {
	return m.db.Close()
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
