// Package store is a content-addressed cache of finalized units, kept in a
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/garnet/bytecode"
)

// ErrNotFound indicates the requested unit is not cached.
var ErrNotFound = errors.New("unit not found")

// Store maps content hashes to encoded units. It is safe for concurrent
// use.
type Store struct {
	db  *sql.DB
	log commonlog.Logger
}

// Entry describes one cached unit.
type Entry struct {
	Hash string // hex content hash
	ID   string
	Name string
	Size int
}

// Open opens or creates the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS units (
		hash TEXT PRIMARY KEY,
		id   TEXT NOT NULL,
		name TEXT NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &Store{db: db, log: commonlog.GetLogger("garnet.store")}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores u under its content hash and returns the hash. Storing the
// same unit twice is a no-op.
func (s *Store) Put(ctx context.Context, u *bytecode.Unit) (string, error) {
	data, err := bytecode.MarshalUnit(u)
	if err != nil {
		return "", err
	}
	id, err := bytecode.UnitID(u)
	if err != nil {
		return "", err
	}
	sum, err := bytecode.ContentHash(u)
	if err != nil {
		return "", err
	}
	hash := hex.EncodeToString(sum[:])
	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO units (hash, id, name, data) VALUES (?, ?, ?, ?)",
		hash, id.String(), u.Name, data)
	if err != nil {
		return "", fmt.Errorf("saving unit %s: %w", u.Name, err)
	}
	s.log.Debugf("stored %s as %s", u.Name, hash[:12])
	return hash, nil
}

// Get loads the unit stored under hash. The hash may be abbreviated to
// any unambiguous prefix.
func (s *Store) Get(ctx context.Context, hash string) (*bytecode.Unit, error) {
	if hash == "" {
		return nil, fmt.Errorf("empty hash: %w", ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT data FROM units WHERE substr(hash, 1, ?) = ? LIMIT 2", len(hash), strings.ToLower(hash))
	if err != nil {
		return nil, fmt.Errorf("querying unit: %w", err)
	}
	defer rows.Close()

	var found [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("reading unit: %w", err)
		}
		found = append(found, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying unit: %w", err)
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%s: %w", hash, ErrNotFound)
	case 1:
	default:
		return nil, fmt.Errorf("hash prefix %s is ambiguous", hash)
	}
	s.log.Debugf("cache hit %s", hash)
	return bytecode.UnmarshalUnit(found[0])
}

// List returns the cached units ordered by name, then hash.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT hash, id, name, length(data) FROM units ORDER BY name, hash")
	if err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Hash, &e.ID, &e.Name, &e.Size); err != nil {
			return nil, fmt.Errorf("listing units: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes the unit stored under hash.
func (s *Store) Delete(ctx context.Context, hash string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM units WHERE hash = ?", hash)
	if err != nil {
		return fmt.Errorf("deleting unit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", hash, ErrNotFound)
	}
	return nil
}
