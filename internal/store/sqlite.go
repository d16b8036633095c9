package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteConfig holds database configuration settings.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database. Use ":memory:" for an
	// in-memory database (useful for testing).
	Path string

	// BusyTimeout sets how long to wait when the database is locked.
	// Default: 5 seconds.
	BusyTimeout time.Duration

	// JournalMode sets the SQLite journal mode. Default: WAL.
	JournalMode string

	// AutoMigrate runs pending schema migrations on Open.
	AutoMigrate bool
}

// DefaultSQLiteConfig returns a config with sensible defaults.
func DefaultSQLiteConfig(path string) *SQLiteConfig {
	return &SQLiteConfig{
		Path:        path,
		BusyTimeout: 5 * time.Second,
		JournalMode: "WAL",
		AutoMigrate: true,
	}
}

// SQLiteStore implements Store on a single documents table.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if necessary) the document database.
func OpenSQLite(cfg *SQLiteConfig) (*SQLiteStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sqlite config is required")
	}

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	journal := cfg.JournalMode
	if journal == "" {
		journal = "WAL"
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		cfg.Path, journal, busy.Milliseconds())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{conn: conn}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return s, nil
}

// Conn exposes the underlying connection, used by the migration manager.
func (s *SQLiteStore) Conn() *sql.DB { return s.conn }

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.conn.Close() }

// Get retrieves one document.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	var raw []byte
	err := s.conn.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return decodeDoc(raw, collection, id)
}

// List retrieves all documents in a collection, keyed by id.
func (s *SQLiteStore) List(ctx context.Context, collection string) (map[string]Doc, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	docs := make(map[string]Doc)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeDoc(raw, collection, id)
		if err != nil {
			return nil, err
		}
		docs[id] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collection %s: %w", collection, err)
	}
	return docs, nil
}

// Set writes a document, merging into the existing body when merge is true.
func (s *SQLiteStore) Set(ctx context.Context, collection, id string, data Doc, merge bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return txSet(ctx, tx, collection, id, data, merge)
	})
}

// Update applies dotted field-path updates to an existing document.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return txUpdate(ctx, tx, collection, id, fields)
	})
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

// BatchCommit applies all operations inside one transaction; on any failure
// the whole batch rolls back.
func (s *SQLiteStore) BatchCommit(ctx context.Context, ops []Op) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, op := range ops {
			var err error
			switch op.Kind {
			case OpSet:
				err = txSet(ctx, tx, op.Collection, op.ID, op.Data, op.Merge)
			case OpUpdate:
				err = txUpdate(ctx, tx, op.Collection, op.ID, op.Fields)
			case OpDelete:
				_, err = tx.ExecContext(ctx,
					`DELETE FROM documents WHERE collection = ? AND id = ?`, op.Collection, op.ID)
			default:
				err = fmt.Errorf("unknown op kind %d", op.Kind)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func txGet(ctx context.Context, tx *sql.Tx, collection, id string) (Doc, error) {
	var raw []byte
	err := tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return decodeDoc(raw, collection, id)
}

func txPut(ctx context.Context, tx *sql.Tx, collection, id string, doc Doc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", collection, id, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, collection, id, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write document %s/%s: %w", collection, id, err)
	}
	return nil
}

func txSet(ctx context.Context, tx *sql.Tx, collection, id string, data Doc, merge bool) error {
	doc := data
	if merge {
		existing, err := txGet(ctx, tx, collection, id)
		if err == nil {
			mergeDoc(existing, data)
			doc = existing
		} else if err != ErrNotFound {
			return err
		}
	}
	return txPut(ctx, tx, collection, id, doc)
}

func txUpdate(ctx context.Context, tx *sql.Tx, collection, id string, fields map[string]any) error {
	doc, err := txGet(ctx, tx, collection, id)
	if err != nil {
		return err
	}
	for path, value := range fields {
		applyFieldPath(doc, path, value)
	}
	return txPut(ctx, tx, collection, id, doc)
}

func decodeDoc(raw []byte, collection, id string) (Doc, error) {
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}
