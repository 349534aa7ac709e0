package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/huddle-sports/huddle/pkg/secrets"
)

// SQL keeps sessions encrypted in a database table, sqlite, postgres or mysql.
type SQL struct {
	db     *sql.DB
	dbType string
	box    *secrets.Box
}

// NewSQL opens the database and makes the sessions table if missing. Values are encrypted with key.
func NewSQL(conn string, key []byte) (*SQL, error) {
	box, err := secrets.NewBox(key)
	if err != nil {
		return nil, fmt.Errorf("can't make session encryption: %w", err)
	}
	db, dbType, err := secrets.OpenDB(conn)
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS huddle_sessions (skey VARCHAR(255) PRIMARY KEY, sval TEXT)`); err != nil {
		return nil, fmt.Errorf("can't make sessions table: %w", err)
	}
	log.Printf("[INFO] session store: %s database", dbType)
	return &SQL{db: db, dbType: dbType, box: box}, nil
}

// Get loads and decrypts the session.
func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	stmt := "SELECT sval FROM huddle_sessions WHERE skey = ?"
	if s.dbType == "postgres" {
		stmt = "SELECT sval FROM huddle_sessions WHERE skey = $1"
	}
	var sealed string
	if err := s.db.QueryRowContext(ctx, stmt, key).Scan(&sealed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("can't load session %s: %w", key, err)
	}
	data, err := s.box.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("can't decrypt session %s: %w", key, err)
	}
	return []byte(data), nil
}

// Set encrypts and stores the session, replacing the existing one.
func (s *SQL) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.box.Seal(string(value))
	if err != nil {
		return fmt.Errorf("can't encrypt session %s: %w", key, err)
	}
	var stmt string
	switch s.dbType {
	case "sqlite":
		stmt = "INSERT OR REPLACE INTO huddle_sessions (skey, sval) VALUES ($1, $2)"
	case "postgres":
		stmt = "INSERT INTO huddle_sessions (skey, sval) VALUES ($1, $2) ON CONFLICT (skey) DO UPDATE SET sval = $2"
	case "mysql":
		stmt = "REPLACE INTO huddle_sessions (skey, sval) VALUES (?, ?)"
	default:
		return fmt.Errorf("unsupported database type: %s", s.dbType)
	}
	if _, err := s.db.ExecContext(ctx, stmt, key, sealed); err != nil {
		return fmt.Errorf("can't store session %s: %w", key, err)
	}
	return nil
}

// Delete removes the session.
func (s *SQL) Delete(ctx context.Context, key string) error {
	stmt := "DELETE FROM huddle_sessions WHERE skey = ?"
	if s.dbType == "postgres" {
		stmt = "DELETE FROM huddle_sessions WHERE skey = $1"
	}
	if _, err := s.db.ExecContext(ctx, stmt, key); err != nil {
		return fmt.Errorf("can't delete session %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQL) Close() error {
	return s.db.Close()
}
