package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// zstdThreshold is the blob size above which SQLiteStore compresses
// the value before writing it. Small snapshots are not worth the
// framing overhead of a zstd frame header.
const zstdThreshold = 4096

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	compressed INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
`

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// SQLiteStore is a KVStore backed by modernc.org/sqlite (no cgo). Each
// key is one row; writes go through a transaction so Get never
// observes a half-written value. Values above zstdThreshold are
// zstd-compressed on write and transparently decompressed on read.
type SQLiteStore struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// OpenSQLiteStore opens or creates a SQLite-backed store at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	for _, p := range sqlitePragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		enc.Close()
		return nil, fmt.Errorf("initializing zstd decoder: %w", err)
	}

	return &SQLiteStore{db: db, enc: enc, dec: dec}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var compressed bool
	err := s.db.QueryRowContext(ctx, `SELECT value, compressed FROM kv WHERE key = ?`, key).Scan(&value, &compressed)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying %s: %w", key, err)
	}
	if compressed {
		value, err = s.dec.DecodeAll(value, nil)
		if err != nil {
			return nil, false, fmt.Errorf("decompressing %s: %w", key, err)
		}
	}
	return value, true, nil
}

func (s *SQLiteStore) Update(ctx context.Context, key string, fn func(current []byte, exists bool) ([]byte, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var stored []byte
	var compressed bool
	current, exists := []byte(nil), false
	err = tx.QueryRowContext(ctx, `SELECT value, compressed FROM kv WHERE key = ?`, key).Scan(&stored, &compressed)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("querying %s: %w", key, err)
	default:
		exists = true
		if compressed {
			stored, err = s.dec.DecodeAll(stored, nil)
			if err != nil {
				return fmt.Errorf("decompressing %s: %w", key, err)
			}
		}
		current = stored
	}

	next, err := fn(current, exists)
	if err != nil {
		return err
	}

	toStore := next
	wasCompressed := false
	if len(next) > zstdThreshold {
		toStore = s.enc.EncodeAll(next, nil)
		wasCompressed = true
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, compressed, updated_at) VALUES (?, ?, ?, unixepoch())
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, compressed=excluded.compressed, updated_at=excluded.updated_at
	`, key, toStore, wasCompressed)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", key, err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}
