package services

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

	_ "modernc.org/sqlite" // SQLite driver

	"github/itish2003/docbot/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS index_manifest (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	manifest TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS index_entries (
	chunk_id  TEXT PRIMARY KEY,
	doc_id    TEXT NOT NULL,
	source    TEXT NOT NULL,
	namespace TEXT NOT NULL,
	chunk_num INTEGER NOT NULL,
	text      TEXT NOT NULL,
	embedding BLOB NOT NULL
);
`

// SQLiteIndexStore keeps the index in storage/index.db. A rebuild replaces
// both tables inside one transaction.
type SQLiteIndexStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteIndexStore opens (and migrates) the database under dir.
func NewSQLiteIndexStore(dir string) (*SQLiteIndexStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	dbPath := filepath.Join(dir, "index.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &SQLiteIndexStore{db: db, path: dbPath}, nil
}

func (s *SQLiteIndexStore) Name() string { return "sqlite" }

func (s *SQLiteIndexStore) Exists(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_manifest`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking manifest: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteIndexStore) Persist(ctx context.Context, idx *Index) error {
	manifest, err := json.Marshal(idx.Manifest())
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_entries`); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO index_entries
		(chunk_id, doc_id, source, namespace, chunk_num, text, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range idx.Entries() {
		if _, err := stmt.ExecContext(ctx, e.ChunkID, e.DocID, e.Source, e.Namespace, e.ChunkNum, e.Text, floatsToBytes(e.Embedding)); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", e.ChunkID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO index_manifest (id, manifest) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET manifest = excluded.manifest`, string(manifest)); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index: %w", err)
	}
	return nil
}

func (s *SQLiteIndexStore) Load(ctx context.Context) (Searchable, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT manifest FROM index_manifest WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no index persisted in %s", s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var manifest models.IndexManifest
	if err := json.Unmarshal([]byte(raw), &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, doc_id, source, namespace, chunk_num, text, embedding
		FROM index_entries ORDER BY doc_id, chunk_num`)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []models.IndexEntry
	for rows.Next() {
		var e models.IndexEntry
		var blob []byte
		if err := rows.Scan(&e.ChunkID, &e.DocID, &e.Source, &e.Namespace, &e.ChunkNum, &e.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Embedding = bytesToFloats(blob)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return NewIndex(manifest, entries), nil
}

func (s *SQLiteIndexStore) Close() error { return s.db.Close() }

func floatsToBytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
