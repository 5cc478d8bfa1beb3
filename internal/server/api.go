package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/cropscope/internal/database"
	"github.com/TobiSchelling/cropscope/internal/pipeline"
	"github.com/TobiSchelling/cropscope/internal/swot"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var q pipeline.Query
	if err := decode(w, r, &q); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	c, err := s.analyzer.Run(r.Context(), q)
	if err != nil {
		var ve *pipeline.ValidationError
		var ge *pipeline.GenerationError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, ve.Message())
		case errors.Is(err, pipeline.ErrNotConfigured):
			writeError(w, http.StatusInternalServerError, pipeline.ErrNotConfigured.Error())
		case errors.As(err, &ge):
			writeError(w, http.StatusInternalServerError, ge.Message())
		default:
			s.log.WithError(err).Error("Analysis failed")
			writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
		}
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type saveRequest struct {
	Country   string `json:"country"`
	Commodity string `json:"commodity"`
	Item      string `json:"item"`
	Crop      string `json:"crop"`
	Analysis  string `json:"analysis"`
}

func (req saveRequest) commodity() string {
	for _, c := range []string{req.Commodity, req.Item, req.Crop} {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// POST /api/analyses
func (s *Server) handleSaveAnalysis(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	country := strings.TrimSpace(req.Country)
	commodity := req.commodity()
	if country == "" || commodity == "" || strings.TrimSpace(req.Analysis) == "" {
		writeError(w, http.StatusBadRequest, "Country, item, and analysis are required")
		return
	}

	sections := swot.Parse(req.Analysis)
	a := &database.Analysis{
		Country:       country,
		Commodity:     commodity,
		Narrative:     req.Analysis,
		Strengths:     sections.Strengths,
		Weaknesses:    sections.Weaknesses,
		Opportunities: sections.Opportunities,
		Threats:       sections.Threats,
	}
	if err := s.db.InsertAnalysis(a); err != nil {
		s.log.WithError(err).Error("Saving analysis failed")
		writeError(w, http.StatusInternalServerError, "Failed to save analysis to database")
		return
	}

	resp := map[string]any{"success": true, "id": a.ID}
	if s.archiver != nil {
		url, err := s.archiver.Archive(r.Context(), a)
		if err != nil {
			s.log.WithError(err).WithField("id", a.ID).Warn("Archiving analysis failed")
		} else if err := s.db.SetArchiveURL(a.ID, url); err != nil {
			s.log.WithError(err).WithField("id", a.ID).Warn("Recording archive URL failed")
		} else {
			resp["archive_url"] = url
		}
	}

	s.log.WithFields(logrus.Fields{"id": a.ID, "country": country, "commodity": commodity}).Info("Analysis saved")
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/analyses?limit=
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.db.ListAnalyses(limit)
	if err != nil {
		s.log.WithError(err).Error("Listing analyses failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch analyses")
		return
	}
	if list == nil {
		list = []database.Analysis{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": list})
}

// GET /api/analyses/{id}
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.db.GetAnalysis(chi.URLParam(r, "id"))
	if err != nil {
		s.log.WithError(err).Error("Loading analysis failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch analysis")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Analysis not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GET /api/faostat/areas
func (s *Server) handleAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := s.db.GetAreas()
	if err != nil {
		s.log.WithError(err).Error("Fetching FAOSTAT areas failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch areas")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"areas": areas})
}

// GET /api/faostat/items
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.db.GetItems()
	if err != nil {
		s.log.WithError(err).Error("Fetching FAOSTAT items failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type seriesRequest struct {
	Area    string `json:"area"`
	Item    string `json:"item"`
	Element string `json:"element"`
}

// POST /api/faostat/series
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	s.series(w, r, "")
}

// POST /api/faostat/area-harvested
func (s *Server) handleAreaHarvested(w http.ResponseWriter, r *http.Request) {
	s.series(w, r, database.ElementAreaHarvested)
}

// series serves one FAOSTAT series; a non-empty element overrides the body.
func (s *Server) series(w http.ResponseWriter, r *http.Request, element string) {
	var req seriesRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	area, item := strings.TrimSpace(req.Area), strings.TrimSpace(req.Item)
	if area == "" || item == "" {
		writeError(w, http.StatusBadRequest, "Area and item are required")
		return
	}
	if element == "" {
		element = strings.TrimSpace(req.Element)
	}
	if element == "" {
		element = database.ElementProduction
	}

	series, err := s.db.GetSeries(area, item, element)
	if err != nil {
		s.log.WithError(err).Error("Fetching FAOSTAT series failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch data")
		return
	}
	if series == nil {
		writeError(w, http.StatusNotFound, "No "+element+" data found for the selected area and item")
		return
	}
	writeJSON(w, http.StatusOK, series)
}
