package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/cropscope/internal/country"
)

// DefaultStatisticsURL is the World Bank v2 API.
const DefaultStatisticsURL = "https://api.worldbank.org/v2"

// Indicator codes fetched for every country.
const (
	IndicatorAgriculturalLand = "AG.LND.AGRI.ZS"
	IndicatorCerealYield      = "AG.YLD.CREL.KG"
	IndicatorAgricultureGDP   = "NV.AGR.TOTL.ZS"
	IndicatorAgricultureJobs  = "SL.AGR.EMPL.ZS"
)

var indicators = []string{
	IndicatorAgriculturalLand,
	IndicatorCerealYield,
	IndicatorAgricultureGDP,
	IndicatorAgricultureJobs,
}

// StatisticsSnapshot holds agricultural development indicators for a country.
type StatisticsSnapshot struct {
	CountryCode           string `json:"country_code"`
	AgriculturalLand      string `json:"agricultural_land"`
	CerealYield           string `json:"cereal_yield"`
	AgricultureGDP        string `json:"agriculture_gdp"`
	AgricultureEmployment string `json:"agriculture_employment"`

	// Values holds the raw figure for every indicator that reported one.
	Values map[string]float64 `json:"values"`
	// Years holds the observation year for every indicator in Values.
	Years map[string]string `json:"years"`
}

// StatisticsClient talks to the World Bank API. It doubles as the country
// catalog used to resolve statistics codes.
type StatisticsClient struct {
	baseURL string
	client  *http.Client
	log     logrus.FieldLogger
}

// NewStatisticsClient creates a statistics adapter.
func NewStatisticsClient(baseURL string, client *http.Client, log logrus.FieldLogger) *StatisticsClient {
	if baseURL == "" {
		baseURL = DefaultStatisticsURL
	}
	return &StatisticsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

func (c *StatisticsClient) Name() ProviderName { return Statistics }

type wbPage struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

type wbCountry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"region"`
}

type wbObservation struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// decodeWB splits the API's [metadata, rows] envelope. A single-element
// envelope is an API-level error message and yields no rows.
func decodeWB(raw []json.RawMessage, rows any) (wbPage, error) {
	var page wbPage
	if len(raw) == 0 {
		return page, fmt.Errorf("empty response")
	}
	if err := json.Unmarshal(raw[0], &page); err != nil {
		return page, fmt.Errorf("decode page metadata: %w", err)
	}
	if len(raw) < 2 || string(raw[1]) == "null" {
		return page, nil
	}
	if err := json.Unmarshal(raw[1], rows); err != nil {
		return page, fmt.Errorf("decode rows: %w", err)
	}
	return page, nil
}

// Countries lists every real country in provider order, following pagination
// and dropping regional aggregates.
func (c *StatisticsClient) Countries(ctx context.Context) ([]country.CatalogEntry, error) {
	var entries []country.CatalogEntry
	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/country?format=json&per_page=400&page=%d", c.baseURL, page)

		var raw []json.RawMessage
		if err := getJSON(ctx, c.client, u, u, &raw); err != nil {
			return nil, fmt.Errorf("fetch country catalog: %w", err)
		}
		var rows []wbCountry
		meta, err := decodeWB(raw, &rows)
		if err != nil {
			return nil, fmt.Errorf("fetch country catalog: %w", err)
		}
		for _, r := range rows {
			if r.Region.Value == "Aggregates" {
				continue
			}
			entries = append(entries, country.CatalogEntry{Code: r.ID, Name: r.Name})
		}
		if meta.Pages <= page {
			break
		}
	}
	c.log.WithField("countries", len(entries)).Debug("Loaded statistics country catalog")
	return entries, nil
}

// indicator fetches the most recent non-empty value for one indicator.
func (c *StatisticsClient) indicator(ctx context.Context, code, id string) (float64, string, bool, error) {
	u := fmt.Sprintf("%s/country/%s/indicator/%s?format=json&mrnev=1",
		c.baseURL, url.PathEscape(code), url.PathEscape(id))

	var raw []json.RawMessage
	if err := getJSON(ctx, c.client, u, u, &raw); err != nil {
		return 0, "", false, err
	}
	var rows []wbObservation
	if _, err := decodeWB(raw, &rows); err != nil {
		return 0, "", false, err
	}
	for _, r := range rows {
		if r.Value != nil {
			return *r.Value, r.Date, true, nil
		}
	}
	return 0, "", false, nil
}

// Fetch loads the four indicators concurrently. A failed indicator leaves its
// field at "N/A".
func (c *StatisticsClient) Fetch(ctx context.Context, req Request) Result[StatisticsSnapshot] {
	if req.CatalogErr != nil {
		return Unavailable[StatisticsSnapshot](fmt.Sprintf("country catalog unavailable: %v", req.CatalogErr))
	}
	if req.StatisticsCode == "" {
		return Unavailable[StatisticsSnapshot](ReasonNoIdentifier)
	}

	type outcome struct {
		value float64
		year  string
		found bool
	}
	outcomes := make([]outcome, len(indicators))

	var wg sync.WaitGroup
	for i, id := range indicators {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			v, year, found, err := c.indicator(ctx, req.StatisticsCode, id)
			if err != nil {
				c.log.WithError(err).WithField("indicator", id).Warn("Indicator fetch failed")
				return
			}
			outcomes[i] = outcome{value: v, year: year, found: found}
		}(i, id)
	}
	wg.Wait()

	snap := StatisticsSnapshot{
		CountryCode:           req.StatisticsCode,
		AgriculturalLand:      NotAvailable,
		CerealYield:           NotAvailable,
		AgricultureGDP:        NotAvailable,
		AgricultureEmployment: NotAvailable,
		Values:                make(map[string]float64),
		Years:                 make(map[string]string),
	}
	for i, id := range indicators {
		o := outcomes[i]
		if !o.found {
			continue
		}
		snap.Values[id] = o.value
		snap.Years[id] = o.year
		switch id {
		case IndicatorAgriculturalLand:
			snap.AgriculturalLand = fmt.Sprintf("%.1f%%", o.value)
		case IndicatorCerealYield:
			snap.CerealYield = fmt.Sprintf("%d kg/ha", int64(math.Round(o.value)))
		case IndicatorAgricultureGDP:
			snap.AgricultureGDP = fmt.Sprintf("%.1f%% of GDP", o.value)
		case IndicatorAgricultureJobs:
			snap.AgricultureEmployment = fmt.Sprintf("%.1f%%", o.value)
		}
	}

	c.log.WithFields(logrus.Fields{
		"country":    req.StatisticsCode,
		"indicators": len(snap.Values),
	}).Debug("Fetched statistics")
	return Success(snap)
}
