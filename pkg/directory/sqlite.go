package directory

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const createContactsTable = `
CREATE TABLE IF NOT EXISTS contacts (
	email      TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	department TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT '',
	active     INTEGER NOT NULL DEFAULT 1
)`

// SQLite is a Directory backed by a sqlite database file.
//
// Matching happens in Go on the loaded rows rather than in SQL so both
// backends share the exact same semantics.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) a sqlite-backed directory.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if _, err := db.Exec(createContactsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: initializing schema: %v", ErrDirectoryUnavailable, err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Seed inserts contacts, skipping emails that already exist.
func (s *SQLite) Seed(ctx context.Context, contacts []Contact) (int, error) {
	inserted := 0
	for _, c := range contacts {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO contacts (email, name, department, role, active) VALUES (?, ?, ?, ?, ?)`,
			c.Email, c.Name, c.Department, c.Role, c.Active)
		if err != nil {
			return inserted, fmt.Errorf("%w: seeding contacts: %v", ErrDirectoryUnavailable, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// Find implements Directory.
func (s *SQLite) Find(ctx context.Context, name string) ([]Contact, error) {
	contacts, err := s.loadActive(ctx)
	if err != nil {
		return nil, err
	}
	return filter(contacts, func(n string) bool { return matchTokens(name, n) }), nil
}

// FindContaining implements Directory.
func (s *SQLite) FindContaining(ctx context.Context, name string) ([]Contact, error) {
	contacts, err := s.loadActive(ctx)
	if err != nil {
		return nil, err
	}
	return filter(contacts, func(n string) bool { return matchSubstring(name, n) }), nil
}

func (s *SQLite) loadActive(ctx context.Context) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email, name, department, role, active FROM contacts WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.Email, &c.Name, &c.Department, &c.Role, &c.Active); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return contacts, nil
}
