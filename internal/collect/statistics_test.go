package collect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/TobiSchelling/cropscope/internal/country"
)

func nullLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func observation(value string) string {
	return fmt.Sprintf(`[{"page":1,"pages":1,"per_page":1,"total":1},[{"date":"2022","value":%s}]]`, value)
}

func newStatisticsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/country":
			if r.URL.Query().Get("page") == "2" {
				fmt.Fprint(w, `[{"page":2,"pages":2,"per_page":400,"total":3},[
					{"id":"KEN","name":"Kenya","region":{"id":"SSF","value":"Sub-Saharan Africa "}}]]`)
				return
			}
			fmt.Fprint(w, `[{"page":1,"pages":2,"per_page":400,"total":3},[
				{"id":"AFE","name":"Africa Eastern and Southern","region":{"id":"NA","value":"Aggregates"}},
				{"id":"IND","name":"India","region":{"id":"SAS","value":"South Asia"}}]]`)
		case "/country/IND/indicator/" + IndicatorAgriculturalLand:
			fmt.Fprint(w, observation("54.321"))
		case "/country/IND/indicator/" + IndicatorCerealYield:
			fmt.Fprint(w, observation("3245.4"))
		case "/country/IND/indicator/" + IndicatorAgricultureGDP:
			fmt.Fprint(w, observation("16.84"))
		case "/country/IND/indicator/" + IndicatorAgricultureJobs:
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/country/KEN/indicator/" + IndicatorAgriculturalLand:
			fmt.Fprint(w, observation("null"))
		default:
			fmt.Fprint(w, `[{"page":1,"pages":0,"per_page":1,"total":0},null]`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStatisticsCatalogPaginatesAndDropsAggregates(t *testing.T) {
	srv := newStatisticsServer(t)
	c := NewStatisticsClient(srv.URL, srv.Client(), nullLogger())

	entries, err := c.Countries(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 countries, got %d: %v", len(entries), entries)
	}
	if entries[0].Code != "IND" || entries[1].Code != "KEN" {
		t.Errorf("unexpected order %v", entries)
	}
}

func TestStatisticsFetchFormatsIndicators(t *testing.T) {
	srv := newStatisticsServer(t)
	c := NewStatisticsClient(srv.URL, srv.Client(), nullLogger())

	res := c.Fetch(context.Background(), Request{Identifiers: country.Identifiers{Name: "India", StatisticsCode: "IND"}})
	if !res.OK() {
		t.Fatalf("expected success, got unavailable: %s", res.Reason)
	}
	snap := res.Value
	if snap.AgriculturalLand != "54.3%" {
		t.Errorf("agricultural land: got %q", snap.AgriculturalLand)
	}
	if snap.CerealYield != "3245 kg/ha" {
		t.Errorf("cereal yield: got %q", snap.CerealYield)
	}
	if snap.AgricultureGDP != "16.8% of GDP" {
		t.Errorf("agriculture GDP: got %q", snap.AgricultureGDP)
	}
	if snap.AgricultureEmployment != NotAvailable {
		t.Errorf("failed indicator should stay N/A, got %q", snap.AgricultureEmployment)
	}
	if snap.Values[IndicatorCerealYield] != 3245.4 {
		t.Errorf("expected raw yield 3245.4, got %v", snap.Values[IndicatorCerealYield])
	}
	if snap.Years[IndicatorAgriculturalLand] != "2022" {
		t.Errorf("expected year 2022, got %q", snap.Years[IndicatorAgriculturalLand])
	}
}

func TestStatisticsNullValueStaysNA(t *testing.T) {
	srv := newStatisticsServer(t)
	c := NewStatisticsClient(srv.URL, srv.Client(), nullLogger())

	res := c.Fetch(context.Background(), Request{Identifiers: country.Identifiers{StatisticsCode: "KEN"}})
	if !res.OK() {
		t.Fatalf("expected success, got %s", res.Reason)
	}
	for name, v := range map[string]string{
		"land":       res.Value.AgriculturalLand,
		"yield":      res.Value.CerealYield,
		"gdp":        res.Value.AgricultureGDP,
		"employment": res.Value.AgricultureEmployment,
	} {
		if v != NotAvailable {
			t.Errorf("%s: expected N/A, got %q", name, v)
		}
	}
	if len(res.Value.Values) != 0 {
		t.Errorf("expected no raw values, got %v", res.Value.Values)
	}
}

func TestStatisticsUnavailableWithoutCode(t *testing.T) {
	c := NewStatisticsClient("http://127.0.0.1:0", http.DefaultClient, nullLogger())

	res := c.Fetch(context.Background(), Request{Identifiers: country.Identifiers{Name: "Atlantis"}})
	if res.OK() || res.Reason != ReasonNoIdentifier {
		t.Errorf("expected identifier not found, got ok=%v reason=%q", res.OK(), res.Reason)
	}

	res = c.Fetch(context.Background(), Request{Identifiers: country.Identifiers{
		Name:       "India",
		CatalogErr: errors.New("dial tcp: refused"),
	}})
	if res.OK() {
		t.Fatal("expected catalog failure to make the adapter unavailable")
	}
	if !strings.Contains(res.Reason, "catalog") {
		t.Errorf("expected catalog reason, got %q", res.Reason)
	}
}

func TestStatisticsCatalogStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewStatisticsClient(srv.URL, srv.Client(), nullLogger())
	_, err := c.Countries(context.Background())

	var se *StatusError
	if !errors.As(err, &se) || se.HTTPStatus() != http.StatusBadGateway {
		t.Errorf("expected wrapped 502 StatusError, got %v", err)
	}
}
