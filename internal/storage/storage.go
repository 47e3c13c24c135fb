// Package storage is the durable client-side key-value store. It backs the
// session token and the optional API base-URL override so both survive
// restarts, and can seal values at rest with a passphrase.
package storage

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Keys used by the rest of the client. Nothing else is stored.
const (
	TokenKey   = "access_token"
	BaseURLKey = "api_base_url"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a SQLite-backed key-value store.
type Store struct {
	db     *sql.DB
	cipher *valueCipher
}

// Open opens the store at the given path (":memory:" for tests) and runs
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// Seal enables at-rest encryption of values with a passphrase-derived key.
// Must be called before any reads or writes; values written while sealed
// cannot be read back without the same passphrase.
func (s *Store) Seal(passphrase string) {
	if passphrase == "" {
		return
	}
	s.cipher = newValueCipher(passphrase)
}

// Get returns the value for key, or "" if the key is not set.
func (s *Store) Get(key string) (string, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	if s.cipher != nil {
		plain, err := s.cipher.open(value)
		if err != nil {
			return "", fmt.Errorf("unseal %s: %w", key, err)
		}
		return string(plain), nil
	}
	return string(value), nil
}

// Set writes the value for key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	payload := []byte(value)
	if s.cipher != nil {
		sealed, err := s.cipher.seal(payload)
		if err != nil {
			return fmt.Errorf("seal %s: %w", key, err)
		}
		payload = sealed
	}
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, payload,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
