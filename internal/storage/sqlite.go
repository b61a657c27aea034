package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	_ "github.com/mattn/go-sqlite3"
)

// sqlite caps host parameters per statement; lookups are chunked below it.
const lookupChunk = 500

// SQLiteEmbeddingStore implements EmbeddingStore using SQLite.
type SQLiteEmbeddingStore struct {
	db *sql.DB
}

// NewSQLiteEmbeddingStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteEmbeddingStore(dbPath string) (*SQLiteEmbeddingStore, error) {
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

	return &SQLiteEmbeddingStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		model TEXT NOT NULL,
		text_hash TEXT NOT NULL,
		dim INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (model, text_hash)
	);
	`
	_, err := db.Exec(schema)
	return err
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Lookup returns stored embeddings for the given texts.
func (s *SQLiteEmbeddingStore) Lookup(ctx context.Context, model string, texts []string) (map[string][]float32, error) {
	byHash := make(map[string]string, len(texts))
	for _, t := range texts {
		byHash[textHash(t)] = t
	}
	hashes := make([]string, 0, len(byHash))
	for h := range byHash {
		hashes = append(hashes, h)
	}

	found := make(map[string][]float32)
	for start := 0; start < len(hashes); start += lookupChunk {
		end := min(start+lookupChunk, len(hashes))
		chunk := hashes[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, model)
		for _, h := range chunk {
			args = append(args, h)
		}
		query := `SELECT text_hash, vector FROM embeddings WHERE model = ? AND text_hash IN (?` +
			strings.Repeat(",?", len(chunk)-1) + `)`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var h string
			var blob []byte
			if err := rows.Scan(&h, &blob); err != nil {
				rows.Close()
				return nil, err
			}
			var v []float32
			if err := cbor.Unmarshal(blob, &v); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to decode embedding: %w", err)
			}
			found[byHash[h]] = v
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return found, nil
}

// Store upserts embeddings in one transaction.
func (s *SQLiteEmbeddingStore) Store(ctx context.Context, model string, texts []string, embeddings [][]float32) error {
	if len(texts) != len(embeddings) {
		return fmt.Errorf("texts and embeddings length mismatch: %d vs %d", len(texts), len(embeddings))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO embeddings (model, text_hash, dim, vector) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, text := range texts {
		blob, err := cbor.Marshal(embeddings[i])
		if err != nil {
			return fmt.Errorf("failed to encode embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, model, textHash(text), len(embeddings[i]), blob); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Count returns the number of embeddings stored for model.
func (s *SQLiteEmbeddingStore) Count(ctx context.Context, model string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE model = ?`, model).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteEmbeddingStore) Close() error {
	return s.db.Close()
}
