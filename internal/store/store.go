// Package store is the SQLite record store behind the catalog: auction
// items, queried by the same filter snapshot the bridge reports.
package store

import (
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/vitrine/dbopen"
)

// ErrNotFound is returned when an item does not exist.
var ErrNotFound = errors.New("store: item not found")

// Store is the item database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(Schema)}, opts...)
	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// OpenMemory returns an in-memory Store closed by t.Cleanup.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	return &Store{DB: dbopen.OpenMemory(t, dbopen.WithSchema(Schema))}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
