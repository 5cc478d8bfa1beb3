package database

import "time"

// Analysis is a stored SWOT analysis.
type Analysis struct {
	ID              string    `json:"id"`
	Country         string    `json:"country"`
	Commodity       string    `json:"commodity"`
	Narrative       string    `json:"narrative"`
	Strengths       []string  `json:"strengths"`
	Weaknesses      []string  `json:"weaknesses"`
	Opportunities   []string  `json:"opportunities"`
	Threats         []string  `json:"threats"`
	PartialFailures []string  `json:"partial_failures"`
	ArchiveURL      *string   `json:"archive_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Item is a FAOSTAT item (crop or product).
type Item struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Observation is one FAOSTAT data row.
type Observation struct {
	Area    string
	Item    string
	Element string
	Year    int
	Unit    string
	Value   float64
}

// SeriesPoint is one year of a FAOSTAT series.
type SeriesPoint struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// Series is a FAOSTAT time series for one area, item and element.
type Series struct {
	Area    string        `json:"area"`
	Item    string        `json:"item"`
	Element string        `json:"element"`
	Unit    string        `json:"unit"`
	Data    []SeriesPoint `json:"data"`
}

// Stats holds row counts.
type Stats struct {
	Analyses         int
	ArchivedAnalyses int
	Countries        int
	FAOItems         int
	FAOObservations  int
	FAOAreas         int
}
