package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout sorts lexically in the created_at column.
const timeLayout = "2006-01-02T15:04:05.000Z"

const analysisColumns = `id, country, commodity, narrative, strengths, weaknesses,
	opportunities, threats, partial_failures, archive_url, created_at`

// InsertAnalysis stores a; an empty ID is filled with a new UUID and an
// empty CreatedAt with the current time.
func (db *DB) InsertAnalysis(a *Analysis) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	lists := make([]string, 5)
	for i, l := range [][]string{a.Strengths, a.Weaknesses, a.Opportunities, a.Threats, a.PartialFailures} {
		lists[i] = encodeList(l)
	}

	_, err := db.conn.Exec(
		`INSERT INTO analyses (`+analysisColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Country, a.Commodity, a.Narrative,
		lists[0], lists[1], lists[2], lists[3], lists[4],
		a.ArchiveURL, a.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting analysis: %w", err)
	}
	return nil
}

// SetArchiveURL records where the analysis report was archived.
func (db *DB) SetArchiveURL(id, url string) error {
	_, err := db.conn.Exec("UPDATE analyses SET archive_url = ? WHERE id = ?", url, id)
	return err
}

// GetAnalysis returns the analysis with id, or nil if there is none.
func (db *DB) GetAnalysis(id string) (*Analysis, error) {
	row := db.conn.QueryRow("SELECT "+analysisColumns+" FROM analyses WHERE id = ?", id)
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListAnalyses returns the most recent analyses, newest first.
func (db *DB) ListAnalyses(limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(
		"SELECT "+analysisColumns+" FROM analyses ORDER BY created_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (*Analysis, error) {
	var (
		a         Analysis
		lists     [5]string
		createdAt string
	)
	if err := s.Scan(&a.ID, &a.Country, &a.Commodity, &a.Narrative,
		&lists[0], &lists[1], &lists[2], &lists[3], &lists[4],
		&a.ArchiveURL, &createdAt); err != nil {
		return nil, err
	}
	a.Strengths = decodeList(lists[0])
	a.Weaknesses = decodeList(lists[1])
	a.Opportunities = decodeList(lists[2])
	a.Threats = decodeList(lists[3])
	a.PartialFailures = decodeList(lists[4])
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		a.CreatedAt = t
	}
	return &a, nil
}

func encodeList(l []string) string {
	if l == nil {
		return "[]"
	}
	data, _ := json.Marshal(l)
	return string(data)
}

func decodeList(s string) []string {
	out := []string{}
	json.Unmarshal([]byte(s), &out)
	return out
}
