package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/cropscope/internal/country"
)

func TestClimateConvertsUnits(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"name":"Kenya","main":{"temp":27.6,"humidity":64},
			"weather":[{"main":"Clouds","description":"scattered clouds"}],"wind":{"speed":5}}`)
	}))
	defer srv.Close()

	c := NewClimateClient(srv.URL, "secret", srv.Client(), nullLogger())
	res := c.Fetch(context.Background(), Request{Identifiers: country.Identifiers{Name: "Kenya"}})
	if !res.OK() {
		t.Fatalf("expected success, got %s", res.Reason)
	}
	s := res.Value
	if s.WindKPH != 18 || s.WindSpeed != "18 km/h" {
		t.Errorf("expected 18 km/h, got %d / %q", s.WindKPH, s.WindSpeed)
	}
	if s.TemperatureC != 28 || s.Temperature != "28°C" {
		t.Errorf("expected 28°C, got %d / %q", s.TemperatureC, s.Temperature)
	}
	if s.Conditions != "scattered clouds" {
		t.Errorf("unexpected conditions %q", s.Conditions)
	}
	if !strings.Contains(gotQuery, "q=Kenya") || !strings.Contains(gotQuery, "units=metric") {
		t.Errorf("unexpected query %q", gotQuery)
	}
}

func TestClimateNon2xxIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "city not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClimateClient(srv.URL, "secret", srv.Client(), nullLogger())
	res := c.Fetch(context.Background(), Request{Identifiers: country.Identifiers{Name: "Atlantis"}})
	if res.OK() {
		t.Fatal("expected unavailable")
	}
	if strings.Contains(res.Reason, "secret") {
		t.Errorf("reason leaks the API key: %q", res.Reason)
	}
}

func TestClimateWithoutKey(t *testing.T) {
	c := NewClimateClient("", "", http.DefaultClient, nullLogger())
	if res := c.Fetch(context.Background(), Request{Identifiers: country.Identifiers{Name: "Kenya"}}); res.OK() {
		t.Error("expected unavailable without key")
	}
}

func TestMarketWithoutKeyReturnsSentinel(t *testing.T) {
	c := NewMarketClient("", "", http.DefaultClient, nullLogger())

	res := c.Fetch(context.Background(), Request{
		Identifiers: country.Identifiers{Name: "India", MarketCode: "india", Currency: "INR"},
		Commodity:   "rice",
	})
	if !res.OK() {
		t.Fatalf("expected success sentinel, got unavailable: %s", res.Reason)
	}
	s := res.Value
	for name, v := range map[string]string{
		"commodity":      s.Commodity,
		"price":          s.Price,
		"daily_change":   s.DailyChange,
		"inflation":      s.Inflation,
		"food_inflation": s.FoodInflation,
		"gdp_growth":     s.GDPGrowth,
		"exchange_rate":  s.ExchangeRate,
	} {
		if v != KeyRequired {
			t.Errorf("%s: expected %q, got %q", name, KeyRequired, v)
		}
	}
}

func TestCommoditySymbol(t *testing.T) {
	cases := map[string]string{
		"maize":   "corn",
		"Maize ":  "corn",
		"soybean": "soybeans",
		"quinoa":  "rice",
		"":        "rice",
	}
	for in, want := range cases {
		if got := CommoditySymbol(in); got != want {
			t.Errorf("%q: expected %q, got %q", in, want, got)
		}
	}
}

func newMarketServer(t *testing.T, currencyStatus int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("c") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/markets/commodities":
			fmt.Fprint(w, `[{"Name":"Wheat","Last":540.25,"DailyPercentualChange":-0.4,"unit":"USd/Bu"},
				{"Name":"Corn","Last":412.5,"DailyPercentualChange":1.25,"unit":"USd/Bu"}]`)
		case "/country/india":
			fmt.Fprint(w, `[{"Category":"Inflation Rate","LatestValue":5.49},
				{"Category":"Food Inflation","LatestValue":9.24},
				{"Category":"GDP Growth Rate","LatestValue":1.6}]`)
		case "/markets/currency":
			if currencyStatus != http.StatusOK {
				w.WriteHeader(currencyStatus)
				return
			}
			fmt.Fprint(w, `[{"Symbol":"USDEUR:CUR","Last":0.92},{"Symbol":"USDINR:CUR","Last":83.123}]`)
		case "/country":
			fmt.Fprint(w, `[{"Country":"Peru","ISO3":"PER"},{"Country":"Kenya","ISO3":"KEN"},{"Country":"Atlantis","ISO3":"ATL"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestMarketFetch(t *testing.T) {
	srv, _ := newMarketServer(t, http.StatusOK)
	c := NewMarketClient(srv.URL, "key", srv.Client(), nullLogger())

	res := c.Fetch(context.Background(), Request{
		Identifiers: country.Identifiers{Name: "India", MarketCode: "india", Currency: "INR"},
		Commodity:   "Maize",
	})
	if !res.OK() {
		t.Fatalf("expected success, got %s", res.Reason)
	}
	s := res.Value
	if s.Commodity != "Corn" || s.Price != "412.50 USd/Bu" || s.DailyChange != "+1.25%" {
		t.Errorf("unexpected commodity fields %+v", s)
	}
	if s.Inflation != "5.5%" || s.FoodInflation != "9.2%" || s.GDPGrowth != "1.6%" {
		t.Errorf("unexpected indicator fields %+v", s)
	}
	if s.ExchangeRate != "83.12 INR/USD" {
		t.Errorf("unexpected exchange rate %q", s.ExchangeRate)
	}
}

func TestMarketExchangeRateIsBestEffort(t *testing.T) {
	srv, _ := newMarketServer(t, http.StatusServiceUnavailable)
	c := NewMarketClient(srv.URL, "key", srv.Client(), nullLogger())

	res := c.Fetch(context.Background(), Request{
		Identifiers: country.Identifiers{Name: "India", MarketCode: "india", Currency: "INR"},
		Commodity:   "wheat",
	})
	if !res.OK() {
		t.Fatalf("expected success despite exchange failure, got %s", res.Reason)
	}
	if res.Value.ExchangeRate != NotAvailable {
		t.Errorf("expected N/A exchange rate, got %q", res.Value.ExchangeRate)
	}
	if res.Value.Price != "540.25 USd/Bu" {
		t.Errorf("unexpected price %q", res.Value.Price)
	}
}

func TestMarketMandatoryCallFailure(t *testing.T) {
	srv, _ := newMarketServer(t, http.StatusOK)
	c := NewMarketClient(srv.URL, "key", srv.Client(), nullLogger())

	res := c.Fetch(context.Background(), Request{
		Identifiers: country.Identifiers{Name: "Atlantis", MarketCode: "atlantis"},
		Commodity:   "rice",
	})
	if res.OK() {
		t.Error("expected unavailable when the country call fails")
	}
	if strings.Contains(res.Reason, "key") {
		t.Errorf("reason leaks the API key: %q", res.Reason)
	}
}

func TestMarketCountries(t *testing.T) {
	srv, _ := newMarketServer(t, http.StatusOK)
	c := NewMarketClient(srv.URL, "key", srv.Client(), nullLogger())

	entries, err := c.Countries(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 || entries[0].Code != "peru" || entries[0].Name != "Peru" {
		t.Errorf("unexpected entries %v", entries)
	}
	if entries[0].Currency != "PEN" || entries[1].Currency != "KES" {
		t.Errorf("expected currencies from ISO3 codes, got %q and %q", entries[0].Currency, entries[1].Currency)
	}
	if entries[2].Currency != "" {
		t.Errorf("expected empty currency for unknown code, got %q", entries[2].Currency)
	}

	if _, err := NewMarketClient("", "", nil, nullLogger()).Countries(context.Background()); err != ErrNoCredential {
		t.Errorf("expected ErrNoCredential, got %v", err)
	}
}

func TestImageryStub(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	stub := NewImageryStub("", "").WithClock(func() time.Time { return fixed })

	box, name, _ := country.LookupBoundingBox("india")
	res := stub.Fetch(context.Background(), Request{Identifiers: country.Identifiers{
		Name:        "india",
		BoundingBox: &box,
		BoxCountry:  name,
	}})
	if !res.OK() {
		t.Fatalf("expected success, got %s", res.Reason)
	}
	if res.Value.CaptureDate != "2026-03-14" {
		t.Errorf("expected injected date, got %q", res.Value.CaptureDate)
	}
	if res.Value.Country != "India" || res.Value.ImageURL != DefaultImageURL || res.Value.Resolution != DefaultResolution {
		t.Errorf("unexpected snapshot %+v", res.Value)
	}

	res = stub.Fetch(context.Background(), Request{Identifiers: country.Identifiers{Name: "Peru"}})
	if res.OK() || res.Reason != ReasonNoIdentifier {
		t.Errorf("expected identifier not found, got ok=%v reason=%q", res.OK(), res.Reason)
	}
}
