package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Store keeps read-only upstream lookups (chain lists, prices, currency
// metadata) in sqlite. Writers serialize on a file lock so several wagent
// processes can share one cache file.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

type Entry struct {
	Value []byte
	Age   time.Duration
	// Expired is set once Age passes the TTL the entry was written with.
	Expired bool
}

func Open(path, lockPath string) (*Store, error) {
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS lookups (
			key TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			value BLOB NOT NULL,
			stored_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_lookups_expires ON lookups(expires_at);",
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}
	s := &Store{db: db, lock: flock.New(lockPath), now: time.Now}
	_ = s.Prune(context.Background())
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Key builds a stable cache key from a namespace and request parts.
func Key(namespace string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return namespace + ":" + hex.EncodeToString(sum[:12])
}

// Prune drops expired entries.
func (s *Store) Prune(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM lookups WHERE expires_at < ?", s.now().UTC().Unix()); err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

// Lookup returns the entry for key. Expired entries are still returned so
// callers can fall back to them when the upstream is down.
func (s *Store) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	var (
		value     []byte
		storedAt  int64
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT value, stored_at, expires_at FROM lookups WHERE key = ?", key).Scan(&value, &storedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache read: %w", err)
	}
	now := s.now().UTC()
	age := now.Sub(time.Unix(storedAt, 0))
	if age < 0 {
		age = 0
	}
	return Entry{Value: value, Age: age, Expired: now.Unix() > expiresAt}, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < time.Second {
		ttl = time.Second
	}
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return errors.New("lock cache: not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()

	namespace, _, _ := strings.Cut(key, ":")
	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lookups (key, namespace, value, stored_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			stored_at=excluded.stored_at,
			expires_at=excluded.expires_at
	`, key, namespace, value, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}
