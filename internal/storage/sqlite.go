package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/compendium/internal/models"
)

// SQLiteStorage implements Storage using SQLite. Embeddings are stored as
// little-endian float32 blobs.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embedding_sets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		doc_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sets_doc_id ON embedding_sets(doc_id, id);

	CREATE TABLE IF NOT EXISTS set_chunks (
		set_id INTEGER NOT NULL,
		chunk_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB,
		PRIMARY KEY (set_id, chunk_id)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// InsertEmbeddingSet stores set and its chunks in one transaction.
// CreatedAt is set when zero.
func (s *SQLiteStorage) InsertEmbeddingSet(ctx context.Context, set *models.EmbeddingSet) error {
	if err := validateSet(set); err != nil {
		return err
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO embedding_sets (doc_id, created_at) VALUES (?, ?)`,
		set.DocID, set.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert embedding set: %w", err)
	}
	setID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO set_chunks (set_id, chunk_id, text, embedding) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range set.Chunks {
		if _, err := stmt.ExecContext(ctx, setID, c.ChunkID, c.Text, float32SliceToBytes(c.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkID, err)
		}
	}
	return tx.Commit()
}

// GetEmbeddingSet returns the newest set for docID with chunks in chunk order.
func (s *SQLiteStorage) GetEmbeddingSet(ctx context.Context, docID string) (*models.EmbeddingSet, error) {
	set := &models.EmbeddingSet{DocID: docID}
	var setID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM embedding_sets WHERE doc_id = ? ORDER BY id DESC LIMIT 1`, docID,
	).Scan(&setID, &set.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound(docID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, text, embedding FROM set_chunks WHERE set_id = ? ORDER BY chunk_id`, setID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Chunk
		var blob []byte
		if err := rows.Scan(&c.ChunkID, &c.Text, &blob); err != nil {
			return nil, err
		}
		c.Embedding = bytesToFloat32Slice(blob)
		set.Chunks = append(set.Chunks, c)
	}
	return set, rows.Err()
}

// ListDocuments returns one summary per document, newest ingestion first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.doc_id, e.created_at, g.sets,
		        (SELECT COUNT(*) FROM set_chunks c WHERE c.set_id = e.id)
		 FROM embedding_sets e
		 JOIN (SELECT doc_id, MAX(id) AS latest, COUNT(*) AS sets FROM embedding_sets GROUP BY doc_id) g
		   ON e.id = g.latest
		 ORDER BY e.id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.DocumentSummary
	for rows.Next() {
		var d models.DocumentSummary
		if err := rows.Scan(&d.DocID, &d.CreatedAt, &d.Sets, &d.ChunkCount); err != nil {
			return nil, err
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes every set of docID and their chunks.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM set_chunks WHERE set_id IN (SELECT id FROM embedding_sets WHERE doc_id = ?)`, docID,
	); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM embedding_sets WHERE doc_id = ?`, docID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(docID)
	}
	return tx.Commit()
}

// CountDocuments returns the number of distinct documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT doc_id) FROM embedding_sets`).Scan(&count)
	return count, err
}

// CountChunks returns the number of stored chunks across all sets.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM set_chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
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
