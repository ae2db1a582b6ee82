package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable StateStore backed by a single SQLite file. Each
// conversation owns one row holding the JSON encoded ConversationState; saves
// overwrite that row and bump its step counter.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY
	locks   *lockTable
	logger  logging.Logger
}

var _ core.StateStore = (*SQLiteStore)(nil)

// SQLiteOptions configures a SQLiteStore.
type SQLiteOptions struct {
	Logger logging.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists. Use ":memory:" for a throwaway database.
func NewSQLiteStore(dbPath string, optFns ...func(o *SQLiteOptions)) (*SQLiteStore, error) {
	opts := SQLiteOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	inMemory := dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
	dsn := dbPath
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbFile(dbPath)), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = withPragmas(dbPath)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database; keep exactly one.
	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, locks: newLockTable(), logger: opts.Logger}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// withPragmas appends the connection pragmas, keeping any query string the
// caller already put on the path (e.g. "file:x.db?cache=shared").
func withPragmas(dbPath string) string {
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + sqlitePragmas
	}
	return dbPath + "?" + sqlitePragmas
}

// dbFile strips a "file:" prefix and query string from a DSN style path.
func dbFile(dbPath string) string {
	path := strings.TrimPrefix(dbPath, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		conversation_id TEXT PRIMARY KEY,
		state_json TEXT NOT NULL,
		field_types TEXT NOT NULL DEFAULT '{}',
		step INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_updated ON checkpoints(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return s.ensureColumn("field_types", `field_types TEXT NOT NULL DEFAULT '{}'`)
}

// ensureColumn adds a column missing from databases created by older versions.
func (s *SQLiteStore) ensureColumn(name, definition string) error {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('checkpoints') WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect column %s: %w", name, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.Exec(`ALTER TABLE checkpoints ADD COLUMN ` + definition); err != nil {
		return fmt.Errorf("add column %s: %w", name, err)
	}
	return nil
}

// Load returns the stored state or an empty state for unknown ids.
func (s *SQLiteStore) Load(ctx context.Context, conversationID string) (*core.ConversationState, error) {
	cp, err := s.Checkpoint(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return core.NewConversationState(), nil
	}
	return cp.State, nil
}

// Checkpoint returns the stored checkpoint or nil when none exists.
func (s *SQLiteStore) Checkpoint(ctx context.Context, conversationID string) (*core.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state_json, field_types, step, updated_at FROM checkpoints WHERE conversation_id = ?`, conversationID)

	var (
		raw       string
		types     string
		step      int
		updatedAt int64
	)
	err := row.Scan(&raw, &types, &step, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint row: %w", err)
	}

	state, err := decodeState([]byte(raw), []byte(types))
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", conversationID, err)
	}

	return &core.Checkpoint{
		ConversationID: conversationID,
		State:          state,
		Step:           step,
		UpdatedAt:      time.UnixMilli(updatedAt).UTC(),
	}, nil
}

// Save upserts the checkpoint row for the id.
func (s *SQLiteStore) Save(ctx context.Context, conversationID string, state *core.ConversationState) error {
	raw, types, err := encodeState(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", conversationID, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (conversation_id, state_json, field_types, step, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			state_json = excluded.state_json,
			field_types = excluded.field_types,
			step = checkpoints.step + 1,
			updated_at = excluded.updated_at`,
		conversationID, string(raw), string(types), now, now)
	if err != nil {
		if isConflictError(err) {
			s.logger.Warn("session.sqlite.busy", "conversation_id", conversationID, "error", err.Error())
		}
		return fmt.Errorf("save checkpoint %s: %w", conversationID, err)
	}

	return nil
}

// Lock acquires the per-conversation lock. Locks are process local; the
// store does not coordinate between processes sharing one file.
func (s *SQLiteStore) Lock(ctx context.Context, conversationID string) (func(), error) {
	return s.locks.Lock(ctx, conversationID)
}

// Delete removes the checkpoint for the id.
func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", conversationID, err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConflictError reports SQLite concurrency errors (SQLITE_BUSY or a locked database).
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
