package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/TobiSchelling/cropscope/internal/database"
	"github.com/TobiSchelling/cropscope/internal/pipeline"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeAnalyzer struct {
	composite *pipeline.Composite
	err       error
	got       pipeline.Query
}

func (f *fakeAnalyzer) Run(_ context.Context, q pipeline.Query) (*pipeline.Composite, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	if _, err := q.Normalize(); err != nil {
		return nil, err
	}
	return f.composite, nil
}

type fakeArchiver struct {
	url   string
	err   error
	calls int
}

func (f *fakeArchiver) Archive(_ context.Context, a *database.Analysis) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.url + a.ID + ".md", nil
}

func newTestServer(t *testing.T, db *database.DB, an Analyzer, ar Archiver) *Server {
	t.Helper()
	log, _ := test.NewNullLogger()
	srv, err := New(Options{DB: db, Analyzer: an, Archiver: ar, Logger: log})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthRoute(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), &fakeAnalyzer{}, nil)
	rec := do(srv, "GET", "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	an := &fakeAnalyzer{composite: &pipeline.Composite{Success: true, Country: "India", Commodity: "rice", Narrative: "## Strengths\n- Yield"}}
	srv := newTestServer(t, openTestDB(t), an, nil)

	rec := do(srv, "POST", "/api/analyze", `{"country":"India","crop":"rice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if an.got.Commodity != "rice" {
		t.Errorf("expected legacy crop key honoured, got %+v", an.got)
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["narrative"] == "" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		msg    string
	}{
		{"validation", `{"country":"","commodity":"rice"}`, nil, http.StatusBadRequest, "Country and commodity are required"},
		{"bad json", `{`, nil, http.StatusBadRequest, "Invalid JSON body"},
		{"not configured", `{"country":"India","commodity":"rice"}`, pipeline.ErrNotConfigured, http.StatusInternalServerError, "API key not configured"},
		{"overload", `{"country":"India","commodity":"rice"}`, &pipeline.GenerationError{Kind: pipeline.KindOverload, Status: 529, Err: errors.New("overloaded")}, http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, openTestDB(t), &fakeAnalyzer{err: tc.err}, nil)
			rec := do(srv, "POST", "/api/analyze", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			body := decodeBody(t, rec)
			if body["success"] != false {
				t.Errorf("expected success=false, got %v", body)
			}
			msg, _ := body["error"].(string)
			if tc.msg != "" && msg != tc.msg {
				t.Errorf("expected %q, got %q", tc.msg, msg)
			}
			if msg == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestSaveAndFetchAnalysis(t *testing.T) {
	db := openTestDB(t)
	ar := &fakeArchiver{url: "http://archive.local/reports/"}
	srv := newTestServer(t, db, &fakeAnalyzer{}, ar)

	rec := do(srv, "POST", "/api/analyses",
		`{"country":"Kenya","item":"tea","analysis":"## Strengths\n- Highland climate\n## Threats\n- Drought\n\nOverall **moderate** risk."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	id, _ := body["id"].(string)
	if body["success"] != true || id == "" {
		t.Fatalf("unexpected body %v", body)
	}
	if ar.calls != 1 || !strings.HasSuffix(body["archive_url"].(string), id+".md") {
		t.Errorf("expected archive url in response, got %v", body)
	}

	stored, _ := db.GetAnalysis(id)
	if stored == nil || stored.Commodity != "tea" || len(stored.Threats) != 1 {
		t.Fatalf("unexpected stored analysis %+v", stored)
	}
	if stored.ArchiveURL == nil {
		t.Error("expected archive url recorded")
	}

	rec = do(srv, "GET", "/api/analyses/"+id, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Highland climate") {
		t.Errorf("unexpected get response %d %s", rec.Code, rec.Body.String())
	}

	rec = do(srv, "GET", "/api/analyses?limit=5", "")
	if !strings.Contains(rec.Body.String(), id) {
		t.Errorf("expected list to include %s", id)
	}

	rec = do(srv, "GET", "/analyses/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for page, got %d", rec.Code)
	}
	page := rec.Body.String()
	if !strings.Contains(page, "Tea in Kenya") || !strings.Contains(page, "<li>Drought</li>") {
		t.Error("expected rendered analysis page")
	}
	if !strings.Contains(page, "<strong>moderate</strong>") {
		t.Error("expected goldmark-rendered narrative")
	}
}

func TestSaveAnalysisArchiveFailureStillSaves(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, &fakeAnalyzer{}, &fakeArchiver{err: errors.New("bucket unreachable")})

	rec := do(srv, "POST", "/api/analyses", `{"country":"Ghana","commodity":"cocoa","analysis":"Plain text"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if _, ok := body["archive_url"]; ok {
		t.Error("expected no archive url")
	}
	stats, _ := db.GetStats()
	if stats.Analyses != 1 || stats.ArchivedAnalyses != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSaveAnalysisMissingFields(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), &fakeAnalyzer{}, nil)
	rec := do(srv, "POST", "/api/analyses", `{"country":"Kenya","analysis":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), &fakeAnalyzer{}, nil)
	if rec := do(srv, "GET", "/api/analyses/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(srv, "GET", "/analyses/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 page, got %d", rec.Code)
	}
}

func seedFAOSTAT(t *testing.T, db *database.DB) {
	t.Helper()
	obs := []database.Observation{
		{Area: "India", Item: "Rice", Element: database.ElementProduction, Year: 2021, Unit: "t", Value: 195425000},
		{Area: "India", Item: "Rice", Element: database.ElementProduction, Year: 2020, Unit: "t", Value: 186500000},
		{Area: "India", Item: "Rice", Element: database.ElementAreaHarvested, Year: 2020, Unit: "ha", Value: 45769000},
		{Area: "Kenya", Item: "Maize", Element: database.ElementProduction, Year: 2021, Unit: "t", Value: 3670000},
	}
	for _, o := range obs {
		if err := db.InsertObservation(o); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
	db.UpsertItem(database.Item{Code: "0113", Name: "Rice"})
	db.UpsertItem(database.Item{Code: "0112", Name: "Maize"})
}

func TestFAOSTATRoutes(t *testing.T) {
	db := openTestDB(t)
	seedFAOSTAT(t, db)
	srv := newTestServer(t, db, &fakeAnalyzer{}, nil)

	rec := do(srv, "GET", "/api/faostat/areas", "")
	if !strings.Contains(rec.Body.String(), `"areas":["India","Kenya"]`) {
		t.Errorf("unexpected areas %s", rec.Body.String())
	}

	rec = do(srv, "GET", "/api/faostat/items", "")
	if !strings.Contains(rec.Body.String(), "Maize") {
		t.Errorf("unexpected items %s", rec.Body.String())
	}

	rec = do(srv, "POST", "/api/faostat/series", `{"area":"India","item":"Rice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var s database.Series
	json.Unmarshal(rec.Body.Bytes(), &s)
	if s.Element != database.ElementProduction || len(s.Data) != 2 || s.Data[0].Year != 2020 {
		t.Errorf("unexpected series %+v", s)
	}

	rec = do(srv, "POST", "/api/faostat/area-harvested", `{"area":"India","item":"Rice"}`)
	json.Unmarshal(rec.Body.Bytes(), &s)
	if rec.Code != http.StatusOK || s.Unit != "ha" {
		t.Errorf("unexpected area harvested %d %+v", rec.Code, s)
	}
}

func TestFAOSTATSeriesErrors(t *testing.T) {
	db := openTestDB(t)
	seedFAOSTAT(t, db)
	srv := newTestServer(t, db, &fakeAnalyzer{}, nil)

	if rec := do(srv, "POST", "/api/faostat/series", `{"area":"India"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := do(srv, "POST", "/api/faostat/area-harvested", `{"area":"Kenya","item":"Maize"}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	db.InsertAnalysis(&database.Analysis{Country: "Brazil", Commodity: "coffee", Narrative: "x"})
	srv := newTestServer(t, db, &fakeAnalyzer{}, nil)

	rec := do(srv, "GET", "/", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Saved Analyses") || !strings.Contains(rec.Body.String(), "Brazil") {
		t.Error("expected analysis list in response body")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), &fakeAnalyzer{}, nil)
	req := httptest.NewRequest("OPTIONS", "/api/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS headers on preflight")
	}
}

func TestStaticRoute(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), &fakeAnalyzer{}, nil)
	rec := do(srv, "GET", "/static/style.css", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), ".quadrant") {
		t.Error("expected CSS content")
	}
}
