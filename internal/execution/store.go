package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
)

const (
	defaultListLimit = 20
	lockWait         = 5 * time.Second
)

var schemaStatements = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA busy_timeout=5000;",
	`CREATE TABLE IF NOT EXISTS executions (
		execution_id TEXT PRIMARY KEY,
		request_id   TEXT NOT NULL,
		status       TEXT NOT NULL,
		chain_id     INTEGER NOT NULL,
		account      TEXT NOT NULL,
		tx_hash      TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL,
		record       BLOB NOT NULL
	);`,
	"CREATE INDEX IF NOT EXISTS executions_by_status ON executions(status, updated_at DESC);",
	"CREATE INDEX IF NOT EXISTS executions_by_request ON executions(request_id, updated_at DESC);",
	"CREATE INDEX IF NOT EXISTS executions_by_account ON executions(account, updated_at DESC);",
}

const upsertExecution = `
INSERT INTO executions (execution_id, request_id, status, chain_id, account, tx_hash, created_at, updated_at, record)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(execution_id) DO UPDATE SET
	request_id = excluded.request_id,
	status     = excluded.status,
	chain_id   = excluded.chain_id,
	account    = excluded.account,
	tx_hash    = excluded.tx_hash,
	updated_at = excluded.updated_at,
	record     = excluded.record`

// Store keeps one row per execution in sqlite. Writes serialize on a file lock
// so a CLI run and a long-lived server can share the same database file.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Status  ExecutionStatus
	Account string
	Limit   int
}

func OpenStore(path, lockPath string) (*Store, error) {
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create execution store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open execution sqlite: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init execution schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts exec keyed by execution id; created_at is fixed on first insert.
func (s *Store) Save(ctx context.Context, exec Execution) error {
	if strings.TrimSpace(exec.ExecutionID) == "" {
		return errors.New("save execution: missing execution id")
	}
	record, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("encode execution: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock execution store: %w", err)
	}
	if !locked {
		return errors.New("lock execution store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	_, err = s.db.ExecContext(ctx, upsertExecution,
		exec.ExecutionID,
		exec.RequestID,
		string(exec.Status),
		exec.ChainID,
		strings.ToLower(exec.Account),
		exec.TransactionHash,
		unixOrNow(exec.CreatedAt),
		unixOrNow(exec.UpdatedAt),
		record,
	)
	if err != nil {
		return fmt.Errorf("save execution %s: %w", exec.ExecutionID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, executionID string) (Execution, error) {
	return s.one(ctx, "execution not found: "+executionID,
		"SELECT record FROM executions WHERE execution_id = ?", executionID)
}

// FindByRequestID returns the latest execution of a relay request.
func (s *Store) FindByRequestID(ctx context.Context, requestID string) (Execution, error) {
	return s.one(ctx, "no execution for request: "+requestID,
		"SELECT record FROM executions WHERE request_id = ? ORDER BY updated_at DESC LIMIT 1", requestID)
}

// List returns executions newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Execution, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if account := strings.TrimSpace(filter.Account); account != "" {
		where = append(where, "account = ?")
		args = append(args, strings.ToLower(account))
	}
	query := "SELECT record FROM executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	out := []Execution{}
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		exec, err := decodeExecution(record)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func (s *Store) one(ctx context.Context, notFound, query string, args ...any) (Execution, error) {
	var record []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return Execution{}, clierr.New(clierr.CodeUsage, notFound)
	}
	if err != nil {
		return Execution{}, fmt.Errorf("read execution: %w", err)
	}
	return decodeExecution(record)
}

func decodeExecution(record []byte) (Execution, error) {
	var exec Execution
	if err := json.Unmarshal(record, &exec); err != nil {
		return Execution{}, fmt.Errorf("decode execution record: %w", err)
	}
	return exec, nil
}

func unixOrNow(ts string) int64 {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.Unix()
	}
	return time.Now().Unix()
}
