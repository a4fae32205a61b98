package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const SQLITE_FILE = "convsim.db"

// SQLite keeps every document in one table of a shared database file. Replica
// processes open the same file; WAL mode and a busy timeout let them write
// concurrently.
type SQLite struct {
	path string
	conn *sql.DB
}

func InitSQLite(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	path := filepath.Join(dir, SQLITE_FILE)
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}

	db := &SQLite{path: path, conn: conn}
	if err := db.createDocumentTable(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *SQLite) createDocumentTable() error {
	_, err := db.conn.Exec("CREATE TABLE IF NOT EXISTS documents (bucket TEXT NOT NULL, key TEXT NOT NULL, data TEXT NOT NULL, PRIMARY KEY (bucket, key))")
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	return nil
}

func (db *SQLite) Put(ctx context.Context, bucket string, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", bucket, key, err)
	}

	_, err = db.conn.ExecContext(ctx, "INSERT INTO documents (bucket, key, data) VALUES ($1, $2, $3) ON CONFLICT(bucket, key) DO UPDATE SET data=excluded.data", bucket, key, string(data))
	if err != nil {
		return fmt.Errorf("inserting %s/%s: %w", bucket, key, err)
	}

	return nil
}

func (db *SQLite) Get(ctx context.Context, bucket string, key string, v any) error {
	var data string
	err := db.conn.QueryRowContext(ctx, "SELECT data FROM documents WHERE bucket=$1 AND key=$2", bucket, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("querying %s/%s: %w", bucket, key, err)
	}

	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", bucket, key, err)
	}

	return nil
}

func (db *SQLite) Reset(ctx context.Context, bucket string) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM documents WHERE bucket=$1", bucket); err != nil {
		return fmt.Errorf("clearing %s: %w", bucket, err)
	}

	return nil
}

func (db *SQLite) Close() error {
	return db.conn.Close()
}
