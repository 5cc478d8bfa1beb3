package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Query is one analysis request.
type Query struct {
	Country   string `json:"country"`
	Commodity string `json:"commodity"`
}

// UnmarshalJSON accepts "crop" or "item" when "commodity" is absent.
func (q *Query) UnmarshalJSON(data []byte) error {
	var raw struct {
		Country   string `json:"country"`
		Commodity string `json:"commodity"`
		Crop      string `json:"crop"`
		Item      string `json:"item"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	q.Country = raw.Country
	q.Commodity = raw.Commodity
	if q.Commodity == "" {
		q.Commodity = raw.Crop
	}
	if q.Commodity == "" {
		q.Commodity = raw.Item
	}
	return nil
}

// ValidationError lists the required fields that were empty.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// Message is the user-facing text.
func (e *ValidationError) Message() string {
	return "Country and commodity are required"
}

// Normalize trims both fields and fails if either ends up empty.
func (q Query) Normalize() (Query, error) {
	out := Query{
		Country:   strings.TrimSpace(q.Country),
		Commodity: strings.TrimSpace(q.Commodity),
	}
	var missing []string
	if out.Country == "" {
		missing = append(missing, "country")
	}
	if out.Commodity == "" {
		missing = append(missing, "commodity")
	}
	if len(missing) > 0 {
		return Query{}, &ValidationError{Fields: missing}
	}
	return out, nil
}

const promptTemplate = "Please provide a brief SWOT analysis of %s in %s and return in markdown, " +
	"each with a header for SWOT and 3-5 bullet points for each SWOT category"

// Prompt builds the generation prompt for a normalized query.
func Prompt(q Query) string {
	return fmt.Sprintf(promptTemplate, q.Commodity, q.Country)
}
