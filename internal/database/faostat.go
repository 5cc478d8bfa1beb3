package database

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Elements used by the series endpoints.
const (
	ElementProduction    = "Production"
	ElementAreaHarvested = "Area harvested"
	ElementYield         = "Yield"
)

// GetAreas returns every distinct area, sorted.
func (db *DB) GetAreas() ([]string, error) {
	rows, err := db.conn.Query("SELECT DISTINCT area FROM faostat_data ORDER BY area")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	areas := []string{}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

// GetItems returns every FAOSTAT item ordered by name.
func (db *DB) GetItems() ([]Item, error) {
	rows, err := db.conn.Query("SELECT code, name FROM faostat_items ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Code, &it.Name); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetSeries returns the non-null observations for area, item and element in
// year order, or nil when there are none.
func (db *DB) GetSeries(area, item, element string) (*Series, error) {
	rows, err := db.conn.Query(
		`SELECT area, item, unit, year, value FROM faostat_data
		WHERE area = ? AND item = ? AND element = ? AND value IS NOT NULL
		ORDER BY year`,
		area, item, element,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var s *Series
	for rows.Next() {
		var (
			a, it, unit string
			p           SeriesPoint
		)
		if err := rows.Scan(&a, &it, &unit, &p.Year, &p.Value); err != nil {
			return nil, err
		}
		if s == nil {
			s = &Series{Area: a, Item: it, Element: element, Unit: unit}
		}
		s.Data = append(s.Data, p)
	}
	return s, rows.Err()
}

// ImportResult summarizes a CSV import.
type ImportResult struct {
	Rows    int
	Items   int
	Skipped int
}

var requiredColumns = []string{"Area", "Item", "Element", "Year", "Unit", "Value"}

// ImportCSV loads a FAOSTAT bulk-download CSV. Columns are matched by
// header name; rows without a value are skipped. Re-importing the same file
// replaces existing observations.
func (db *DB) ImportCSV(r io.Reader) (*ImportResult, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(strings.TrimSpace(h), "\uFEFF")
		col[h] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	var (
		itemCode    int
		hasItemCode bool
	)
	for _, name := range []string{"Item Code", "Item Code (CPC)", "Item Code (FAO)"} {
		if itemCode, hasItemCode = col[name]; hasItemCode {
			break
		}
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	obsStmt, err := tx.Prepare(`INSERT OR REPLACE INTO faostat_data
		(area, item, element, year, unit, value) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer obsStmt.Close()

	itemStmt, err := tx.Prepare("INSERT OR REPLACE INTO faostat_items (code, name) VALUES (?, ?)")
	if err != nil {
		return nil, err
	}
	defer itemStmt.Close()

	res := &ImportResult{}
	seenItems := make(map[string]bool)
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		field := func(name string) string {
			i := col[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		value, verr := strconv.ParseFloat(field("Value"), 64)
		year, yerr := strconv.Atoi(field("Year"))
		if verr != nil || yerr != nil || field("Area") == "" || field("Item") == "" {
			res.Skipped++
			continue
		}

		if _, err := obsStmt.Exec(field("Area"), field("Item"), field("Element"), year, field("Unit"), value); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		res.Rows++

		name := field("Item")
		if seenItems[name] {
			continue
		}
		seenItems[name] = true
		code := name
		if hasItemCode && itemCode < len(rec) && strings.TrimSpace(rec[itemCode]) != "" {
			code = strings.Trim(strings.TrimSpace(rec[itemCode]), "'")
		}
		if _, err := itemStmt.Exec(code, name); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		res.Items++
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// InsertObservation stores a single observation.
func (db *DB) InsertObservation(o Observation) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO faostat_data (area, item, element, year, unit, value)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.Area, o.Item, o.Element, o.Year, o.Unit, o.Value,
	)
	return err
}

// UpsertItem stores or renames a FAOSTAT item.
func (db *DB) UpsertItem(it Item) error {
	_, err := db.conn.Exec("INSERT OR REPLACE INTO faostat_items (code, name) VALUES (?, ?)", it.Code, it.Name)
	return err
}
