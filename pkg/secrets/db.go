package secrets

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql driver loaded here
	_ "github.com/lib/pq"              // postgres driver loaded here
	_ "modernc.org/sqlite"             // sqlite driver loaded here
)

// DBType detects the database type of the connection string: postgres, mysql or sqlite.
func DBType(conn string) (string, error) {
	switch {
	case strings.HasPrefix(conn, "postgres://"), strings.HasPrefix(conn, "postgresql://"):
		return "postgres", nil
	case strings.Contains(conn, "@tcp("):
		return "mysql", nil
	case strings.HasPrefix(conn, "file:"), strings.HasSuffix(conn, ".sqlite"), strings.HasSuffix(conn, ".db"):
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported database type in connection string")
}

// OpenDB opens the database for the connection string, returns it with the detected type.
func OpenDB(conn string) (db *sql.DB, dbType string, err error) {
	if dbType, err = DBType(conn); err != nil {
		return nil, "", fmt.Errorf("can't determine database type: %w", err)
	}
	if db, err = sql.Open(dbType, conn); err != nil {
		return nil, "", fmt.Errorf("error opening %s database: %w", dbType, err)
	}
	return db, dbType, nil
}
