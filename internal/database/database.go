package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// Open creates or opens a SQLite database at the given path and brings its
// schema up to date. Migration progress goes to the standard logrus logger.
func Open(dbPath string) (*DB, error) {
	return OpenWithLogger(dbPath, logrus.StandardLogger())
}

// OpenWithLogger is Open with an explicit logger for migration progress.
func OpenWithLogger(dbPath string, log logrus.FieldLogger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if _, err := migrate(conn, log); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// SchemaVersion reports the applied migration version.
func (db *DB) SchemaVersion() (int, error) {
	return getSchemaVersion(db.conn)
}

// GetStats returns row counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM analyses", &s.Analyses},
		{"SELECT COUNT(*) FROM analyses WHERE archive_url IS NOT NULL", &s.ArchivedAnalyses},
		{"SELECT COUNT(DISTINCT country) FROM analyses", &s.Countries},
		{"SELECT COUNT(*) FROM faostat_items", &s.FAOItems},
		{"SELECT COUNT(*) FROM faostat_data", &s.FAOObservations},
		{"SELECT COUNT(DISTINCT area) FROM faostat_data", &s.FAOAreas},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
