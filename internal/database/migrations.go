package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "analyses",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    country TEXT NOT NULL,
    commodity TEXT NOT NULL,
    narrative TEXT NOT NULL,
    strengths TEXT NOT NULL DEFAULT '[]',
    weaknesses TEXT NOT NULL DEFAULT '[]',
    opportunities TEXT NOT NULL DEFAULT '[]',
    threats TEXT NOT NULL DEFAULT '[]',
    partial_failures TEXT NOT NULL DEFAULT '[]',
    archive_url TEXT,
    created_at TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
CREATE INDEX IF NOT EXISTS idx_analyses_country ON analyses(country, commodity);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "faostat items and observations",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS faostat_items (
    code TEXT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS faostat_data (
    area TEXT NOT NULL,
    item TEXT NOT NULL,
    element TEXT NOT NULL,
    year INTEGER NOT NULL,
    unit TEXT NOT NULL DEFAULT '',
    value REAL,
    PRIMARY KEY (area, item, element, year)
);

CREATE INDEX IF NOT EXISTS idx_faostat_area_item ON faostat_data(area, item, element);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
