package archive

import (
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/TobiSchelling/cropscope/internal/database"
	"github.com/TobiSchelling/cropscope/internal/swot"
)

func testStore(t *testing.T, publicURL string) *Store {
	t.Helper()
	cli, err := minio.New("localhost:9000", &minio.Options{
		Creds: credentials.NewStaticV4("access", "secret", ""),
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	log, _ := test.NewNullLogger()
	return newStore(cli, "reports", publicURL, log)
}

func sampleAnalysis() *database.Analysis {
	return &database.Analysis{
		ID:         "abc-123",
		Country:    "Kenya",
		Commodity:  "tea",
		Narrative:  "## Strengths\n- Highland climate",
		Strengths:  []string{"Highland climate"},
		Threats:    []string{"Price volatility"},
		CreatedAt:  time.Date(2026, 4, 9, 8, 30, 0, 0, time.UTC),
		Weaknesses: []string{},
	}
}

func TestObjectKey(t *testing.T) {
	if got := ObjectKey(sampleAnalysis()); got != "analyses/2026/04/abc-123.md" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestURLFromEndpoint(t *testing.T) {
	s := testStore(t, "")
	if got := s.URL("analyses/x.md"); got != "http://localhost:9000/reports/analyses/x.md" {
		t.Errorf("unexpected url %q", got)
	}
}

func TestURLFromPublicBase(t *testing.T) {
	s := testStore(t, "https://reports.example.org/")
	if got := s.URL("analyses/x.md"); got != "https://reports.example.org/analyses/x.md" {
		t.Errorf("unexpected url %q", got)
	}
}

func TestReportRoundTripsSections(t *testing.T) {
	a := sampleAnalysis()
	a.PartialFailures = []string{"market"}
	r := Report(a)

	if !strings.HasPrefix(r, "# Tea in Kenya\n") {
		t.Errorf("unexpected title in %q", r)
	}
	if !strings.Contains(r, "Data unavailable from: market") {
		t.Error("expected partial failure note")
	}

	parsed := swot.Parse(r)
	if len(parsed.Strengths) != 1 || parsed.Strengths[0] != "Highland climate" {
		t.Errorf("unexpected strengths %v", parsed.Strengths)
	}
	if len(parsed.Threats) != 1 || parsed.Threats[0] != "Price volatility" {
		t.Errorf("unexpected threats %v", parsed.Threats)
	}
}

func TestReportFallsBackToNarrative(t *testing.T) {
	a := sampleAnalysis()
	a.Strengths, a.Threats = nil, nil
	a.Narrative = "Free text without headers."
	if r := Report(a); !strings.Contains(r, "Free text without headers.") {
		t.Errorf("expected narrative in report, got %q", r)
	}
}
