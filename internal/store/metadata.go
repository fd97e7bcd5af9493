package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteMetadataStore implements MetadataStore using modernc.org/sqlite.
// WAL mode allows the MCP server and the indexer to share the database.
type SQLiteMetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// validateSQLiteIntegrity checks a SQLite database before opening.
// Returns nil if valid, error describing corruption if not.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	return nil
}

// NewSQLiteMetadataStore opens or creates the metadata store.
// If path is empty, creates an in-memory store for testing.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("metadata_store_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			// Auto-clear corrupted store
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("metadata store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("metadata_store_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536", // 64MB cache (negative = KB)
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteMetadataStore{
		db:   db,
		path: path,
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the chunk, anchor, and state tables.
func (s *SQLiteMetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id             TEXT PRIMARY KEY,
		doc_id         TEXT NOT NULL,
		file_path      TEXT NOT NULL,
		start_char     INTEGER NOT NULL,
		end_char       INTEGER NOT NULL,
		text           TEXT NOT NULL,
		token_estimate INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path, start_char);

	CREATE TABLE IF NOT EXISTS anchors (
		key      TEXT NOT NULL,
		role     TEXT NOT NULL,
		priority INTEGER NOT NULL,
		text     TEXT NOT NULL,
		tokens   INTEGER NOT NULL,
		PRIMARY KEY (role, key)
	);

	CREATE INDEX IF NOT EXISTS idx_anchors_role ON anchors(role, priority);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// PutChunks inserts or updates chunk metadata.
func (s *SQLiteMetadataStore) PutChunks(ctx context.Context, chunks []*EvidenceChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, doc_id, file_path, start_char, end_char, text, token_estimate)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocID, c.FilePath, c.StartChar, c.EndChar, c.Text, c.TokenEstimate); err != nil {
			return fmt.Errorf("failed to store chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetChunks fetches chunks by ID. Missing IDs are skipped.
// Results preserve the order of the input IDs.
func (s *SQLiteMetadataStore) GetChunks(ctx context.Context, ids []string) ([]*EvidenceChunk, error) {
	if len(ids) == 0 {
		return []*EvidenceChunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, doc_id, file_path, start_char, end_char, text, token_estimate
		FROM chunks WHERE id IN (%s)`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*EvidenceChunk, len(ids))
	for rows.Next() {
		var c EvidenceChunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.FilePath, &c.StartChar, &c.EndChar, &c.Text, &c.TokenEstimate); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	results := make([]*EvidenceChunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			results = append(results, c)
		}
	}

	return results, nil
}

// ChunksByFile returns all chunks for a file path, ordered by span.
func (s *SQLiteMetadataStore) ChunksByFile(ctx context.Context, filePath string) ([]*EvidenceChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, file_path, start_char, end_char, text, token_estimate
		FROM chunks WHERE file_path = ? ORDER BY start_char`, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks by file: %w", err)
	}
	defer rows.Close()

	var results []*EvidenceChunk
	for rows.Next() {
		var c EvidenceChunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.FilePath, &c.StartChar, &c.EndChar, &c.Text, &c.TokenEstimate); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		results = append(results, &c)
	}
	return results, rows.Err()
}

// CountChunks returns the number of stored chunks.
func (s *SQLiteMetadataStore) CountChunks(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// ReplaceAnchors replaces the entire anchor registry atomically.
func (s *SQLiteMetadataStore) ReplaceAnchors(ctx context.Context, pins []*AnchorPin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM anchors`); err != nil {
		return fmt.Errorf("failed to clear anchors: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO anchors (key, role, priority, text, tokens)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare anchor statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range pins {
		if _, err := stmt.ExecContext(ctx, p.Key, p.Role, p.Priority, p.Text, p.Tokens); err != nil {
			return fmt.Errorf("failed to store anchor %s/%s: %w", p.Role, p.Key, err)
		}
	}

	return tx.Commit()
}

// AnchorsForRole returns a role's pins ordered by priority ascending.
func (s *SQLiteMetadataStore) AnchorsForRole(ctx context.Context, role string) ([]*AnchorPin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, role, priority, text, tokens
		FROM anchors WHERE role = ? ORDER BY priority, key`, role)
	if err != nil {
		return nil, fmt.Errorf("failed to query anchors: %w", err)
	}
	defer rows.Close()

	return scanAnchors(rows)
}

// ListAnchors returns all pins ordered by role, priority.
func (s *SQLiteMetadataStore) ListAnchors(ctx context.Context) ([]*AnchorPin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, role, priority, text, tokens
		FROM anchors ORDER BY role, priority, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query anchors: %w", err)
	}
	defer rows.Close()

	return scanAnchors(rows)
}

func scanAnchors(rows *sql.Rows) ([]*AnchorPin, error) {
	var pins []*AnchorPin
	for rows.Next() {
		var p AnchorPin
		if err := rows.Scan(&p.Key, &p.Role, &p.Priority, &p.Text, &p.Tokens); err != nil {
			return nil, fmt.Errorf("failed to scan anchor: %w", err)
		}
		pins = append(pins, &p)
	}
	return pins, rows.Err()
}

// GetState returns the value for a state key, or empty string if absent.
func (s *SQLiteMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, nil
}

// SetState stores a state key-value pair.
func (s *SQLiteMetadataStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
