package collect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/cropscope/internal/country"
)

// DefaultMarketURL is the Trading Economics API.
const DefaultMarketURL = "https://api.tradingeconomics.com"

// ErrNoCredential is returned by catalog lookups when no API key is set.
var ErrNoCredential = errors.New("market API key not configured")

// commoditySymbols maps user-facing crop names to the provider's commodity
// names. Unmapped crops fall back to rice.
var commoditySymbols = map[string]string{
	"maize":     "corn",
	"corn":      "corn",
	"wheat":     "wheat",
	"rice":      "rice",
	"paddy":     "rice",
	"soy":       "soybeans",
	"soya":      "soybeans",
	"soybean":   "soybeans",
	"soybeans":  "soybeans",
	"coffee":    "coffee",
	"cocoa":     "cocoa",
	"cacao":     "cocoa",
	"sugar":     "sugar",
	"sugarcane": "sugar",
	"cotton":    "cotton",
	"palm oil":  "palm oil",
	"oats":      "oat",
	"oat":       "oat",
	"canola":    "canola",
	"rapeseed":  "canola",
	"tea":       "tea",
	"rubber":    "rubber",
}

// defaultCommodity is used for crops without a traded contract.
const defaultCommodity = "rice"

// CommoditySymbol returns the provider commodity name for a crop.
func CommoditySymbol(crop string) string {
	if s, ok := commoditySymbols[strings.ToLower(strings.TrimSpace(crop))]; ok {
		return s
	}
	return defaultCommodity
}

// MarketSnapshot is commodity pricing plus the country's macro context.
type MarketSnapshot struct {
	Commodity     string `json:"commodity"`
	Price         string `json:"price"`
	DailyChange   string `json:"daily_change"`
	Inflation     string `json:"inflation"`
	FoodInflation string `json:"food_inflation"`
	GDPGrowth     string `json:"gdp_growth"`
	ExchangeRate  string `json:"exchange_rate"`

	PriceValue        float64 `json:"price_value"`
	ExchangeRateValue float64 `json:"exchange_rate_value"`
}

// keyRequiredSnapshot is returned when no credential is configured.
func keyRequiredSnapshot() MarketSnapshot {
	return MarketSnapshot{
		Commodity:     KeyRequired,
		Price:         KeyRequired,
		DailyChange:   KeyRequired,
		Inflation:     KeyRequired,
		FoodInflation: KeyRequired,
		GDPGrowth:     KeyRequired,
		ExchangeRate:  KeyRequired,
	}
}

// MarketClient queries commodity prices, country indicators and exchange
// rates. It doubles as the market country catalog.
type MarketClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     logrus.FieldLogger
}

// NewMarketClient creates a market adapter.
func NewMarketClient(baseURL, apiKey string, client *http.Client, log logrus.FieldLogger) *MarketClient {
	if baseURL == "" {
		baseURL = DefaultMarketURL
	}
	return &MarketClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		log:     log,
	}
}

func (c *MarketClient) Name() ProviderName { return Market }

// IsConfigured returns whether the API key is available.
func (c *MarketClient) IsConfigured() bool {
	return c.apiKey != ""
}

// get fetches path with the credential appended and decodes the JSON body.
func (c *MarketClient) get(ctx context.Context, path string, out any) error {
	display := c.baseURL + path
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	full := display + sep + url.Values{"c": {c.apiKey}, "f": {"json"}}.Encode()
	return getJSON(ctx, c.client, full, display, out)
}

type teCountry struct {
	Country string `json:"Country"`
	ISO3    string `json:"ISO3"`
}

// Countries lists the provider's countries. Codes are lowercase names, which
// is how the provider addresses countries in paths; the currency comes from
// the ISO3 code and is empty for codes outside the local table.
func (c *MarketClient) Countries(ctx context.Context) ([]country.CatalogEntry, error) {
	if !c.IsConfigured() {
		return nil, ErrNoCredential
	}
	var rows []teCountry
	if err := c.get(ctx, "/country", &rows); err != nil {
		return nil, fmt.Errorf("fetch market countries: %w", err)
	}
	entries := make([]country.CatalogEntry, 0, len(rows))
	for _, r := range rows {
		if r.Country == "" {
			continue
		}
		entries = append(entries, country.CatalogEntry{
			Code:     strings.ToLower(r.Country),
			Name:     r.Country,
			Currency: country.CurrencyForISO3(r.ISO3),
		})
	}
	return entries, nil
}

type teCommodity struct {
	Name                  string  `json:"Name"`
	Last                  float64 `json:"Last"`
	DailyPercentualChange float64 `json:"DailyPercentualChange"`
	Unit                  string  `json:"unit"`
}

type teIndicator struct {
	Category    string  `json:"Category"`
	LatestValue float64 `json:"LatestValue"`
	Unit        string  `json:"Unit"`
}

type teCurrency struct {
	Symbol string  `json:"Symbol"`
	Last   float64 `json:"Last"`
}

// Fetch issues the commodity, country and currency calls concurrently. The
// first two are mandatory; the exchange rate is best-effort.
func (c *MarketClient) Fetch(ctx context.Context, req Request) Result[MarketSnapshot] {
	if !c.IsConfigured() {
		return Success(keyRequiredSnapshot())
	}
	if req.MarketCode == "" {
		return Unavailable[MarketSnapshot](ReasonNoIdentifier)
	}

	symbol := CommoditySymbol(req.Commodity)

	var (
		wg                      sync.WaitGroup
		commodities             []teCommodity
		countryRows             []teIndicator
		currencies              []teCurrency
		commErr, ctryErr, fxErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		commErr = c.get(ctx, "/markets/commodities", &commodities)
	}()
	go func() {
		defer wg.Done()
		ctryErr = c.get(ctx, "/country/"+url.PathEscape(req.MarketCode), &countryRows)
	}()
	go func() {
		defer wg.Done()
		if req.Currency == "" {
			fxErr = errors.New("no currency for country")
			return
		}
		fxErr = c.get(ctx, "/markets/currency", &currencies)
	}()
	wg.Wait()

	if commErr != nil {
		c.log.WithError(commErr).Warn("Commodity price fetch failed")
		return Unavailable[MarketSnapshot](commErr.Error())
	}
	if ctryErr != nil {
		c.log.WithError(ctryErr).WithField("country", req.MarketCode).Warn("Country indicator fetch failed")
		return Unavailable[MarketSnapshot](ctryErr.Error())
	}

	snap := MarketSnapshot{
		Commodity:     symbol,
		Price:         NotAvailable,
		DailyChange:   NotAvailable,
		Inflation:     NotAvailable,
		FoodInflation: NotAvailable,
		GDPGrowth:     NotAvailable,
		ExchangeRate:  NotAvailable,
	}

	for _, row := range commodities {
		if strings.EqualFold(row.Name, symbol) {
			snap.Commodity = row.Name
			snap.PriceValue = row.Last
			snap.Price = strings.TrimSpace(fmt.Sprintf("%.2f %s", row.Last, row.Unit))
			snap.DailyChange = fmt.Sprintf("%+.2f%%", row.DailyPercentualChange)
			break
		}
	}

	for _, row := range countryRows {
		switch strings.ToLower(row.Category) {
		case "inflation rate":
			snap.Inflation = fmt.Sprintf("%.1f%%", row.LatestValue)
		case "food inflation":
			snap.FoodInflation = fmt.Sprintf("%.1f%%", row.LatestValue)
		case "gdp growth rate":
			snap.GDPGrowth = fmt.Sprintf("%.1f%%", row.LatestValue)
		}
	}

	if fxErr != nil {
		c.log.WithError(fxErr).Debug("Exchange rate unavailable")
	} else {
		pair := "USD" + strings.ToUpper(req.Currency)
		for _, row := range currencies {
			if strings.HasPrefix(strings.ToUpper(row.Symbol), pair) {
				snap.ExchangeRateValue = row.Last
				snap.ExchangeRate = fmt.Sprintf("%.2f %s/USD", row.Last, strings.ToUpper(req.Currency))
				break
			}
		}
	}

	return Success(snap)
}
