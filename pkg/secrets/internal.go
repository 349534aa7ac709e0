package secrets

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
)

// InternalProvider keeps secrets encrypted in a database table, sqlite, postgres or mysql.
// Managed with the huddle-secrets command.
type InternalProvider struct {
	db     *sql.DB
	dbType string
	box    *Box
}

// NewInternalProvider opens the database and makes the secrets table if missing.
func NewInternalProvider(conn string, key []byte) (*InternalProvider, error) {
	box, err := NewBox(key)
	if err != nil {
		return nil, err
	}
	db, dbType, err := OpenDB(conn)
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS huddle_secrets (skey VARCHAR(255) PRIMARY KEY, sval TEXT)`); err != nil {
		return nil, fmt.Errorf("can't make secrets table: %w", err)
	}
	log.Printf("[INFO] secrets provider: %s database", dbType)
	return &InternalProvider{db: db, dbType: dbType, box: box}, nil
}

// Get loads and decrypts the secret.
func (p *InternalProvider) Get(key string) (string, error) {
	var sealed string
	if err := p.db.QueryRow(p.bind("SELECT sval FROM huddle_secrets WHERE skey = ?"), key).Scan(&sealed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("internal secret %s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("can't load secret %s: %w", key, err)
	}
	value, err := p.box.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("can't get secret for %s: %w", key, err)
	}
	return value, nil
}

// Set encrypts and stores the secret, replacing the existing one.
func (p *InternalProvider) Set(key, value string) error {
	sealed, err := p.box.Seal(value)
	if err != nil {
		return fmt.Errorf("can't set secret for %s: %w", key, err)
	}
	var stmt string
	switch p.dbType {
	case "sqlite":
		stmt = "INSERT OR REPLACE INTO huddle_secrets (skey, sval) VALUES ($1, $2)"
	case "postgres":
		stmt = "INSERT INTO huddle_secrets (skey, sval) VALUES ($1, $2) ON CONFLICT (skey) DO UPDATE SET sval = $2"
	case "mysql":
		stmt = "REPLACE INTO huddle_secrets (skey, sval) VALUES (?, ?)"
	default:
		return fmt.Errorf("unsupported database type: %s", p.dbType)
	}
	if _, err = p.db.Exec(stmt, key, sealed); err != nil {
		return fmt.Errorf("error inserting secret: %w", err)
	}
	return nil
}

// Delete removes the secret, missing key is an error.
func (p *InternalProvider) Delete(key string) error {
	res, err := p.db.Exec(p.bind("DELETE FROM huddle_secrets WHERE skey = ?"), key)
	if err != nil {
		return fmt.Errorf("error deleting secret for %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("internal secret %s: %w", key, ErrNotFound)
	}
	return nil
}

// List returns secret keys with the prefix, all keys for "*" or empty prefix.
func (p *InternalProvider) List(prefix string) ([]string, error) {
	var rows *sql.Rows
	var err error
	if prefix != "*" && prefix != "" {
		rows, err = p.db.Query(p.bind("SELECT skey FROM huddle_secrets WHERE skey LIKE ? ORDER BY skey"), prefix+"%")
	} else {
		rows, err = p.db.Query("SELECT skey FROM huddle_secrets ORDER BY skey")
	}
	if err != nil {
		return nil, fmt.Errorf("error listing secrets: %w", err)
	}
	defer rows.Close() // nolint

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("error scanning secret keys: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error retrieving secret keys: %w", err)
	}
	return keys, nil
}

// Close closes the database.
func (p *InternalProvider) Close() error {
	return p.db.Close()
}

// bind converts ? placeholder to $1 for postgres, statements here have a single parameter
func (p *InternalProvider) bind(stmt string) string {
	if p.dbType != "postgres" {
		return stmt
	}
	return strings.Replace(stmt, "?", "$1", 1)
}
