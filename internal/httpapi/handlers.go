package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mlahti/bookfetch/internal/book"
	"github.com/mlahti/bookfetch/internal/search"
)

const healthzTimeout = 5 * time.Second

type metadataDTO struct {
	PageCount   *int     `json:"pageCount,omitempty"`
	ISBN        *string  `json:"isbn,omitempty"`
	Description *string  `json:"description,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	CoverURL    *string  `json:"coverUrl,omitempty"`
	Source      string   `json:"source,omitempty"`
}

func toDTO(meta *book.Metadata) *metadataDTO {
	return &metadataDTO{
		PageCount:   meta.PageCount,
		ISBN:        meta.ISBN,
		Description: meta.Description,
		Categories:  meta.Categories,
		CoverURL:    meta.CoverURL,
		Source:      meta.Source,
	}
}

type resolveRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

type resolveResponse struct {
	Success  bool         `json:"success"`
	Enriched bool         `json:"enriched"`
	Data     *metadataDTO `json:"data,omitempty"`
}

// handleResolve resolves one title and author pair on demand. Resolution
// failure is not a server error: the providers may simply not know the
// book, so the response is success with enriched=false.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	meta := s.resolver.Resolve(r.Context(), req.Title, req.Author)
	resp := resolveResponse{Success: true, Enriched: !meta.Empty()}
	if resp.Enriched {
		resp.Data = toDTO(meta)
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchResponse struct {
	Success bool               `json:"success"`
	Items   []search.Candidate `json:"items"`
	Source  string             `json:"source,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	items, source, err := s.searcher.Search(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if items == nil {
		items = []search.Candidate{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Success: true, Items: items, Source: source})
}

type enrichRequest struct {
	BatchSize     int  `json:"batchSize"`
	RefreshCovers bool `json:"refreshCovers"`
}

// handleEnrich runs one batch pass. Only one pass may run at a time;
// overlapping requests get 409 so the scheduler can back off.
func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if !s.enriching.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "enrichment already running")
		return
	}
	defer s.enriching.Store(false)

	report, err := s.enricher.Run(r.Context(), req.BatchSize, req.RefreshCovers)
	if err != nil {
		slog.Error("Batch enrichment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "enrichment failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"report":  report,
	})
}

type healthzResponse struct {
	Status    string            `json:"status"`
	Providers map[string]string `json:"providers"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthzTimeout)
	defer cancel()

	resp := healthzResponse{Status: "ok", Providers: make(map[string]string, len(s.providers))}
	for _, p := range s.providers {
		if err := p.Ping(ctx); err != nil {
			resp.Providers[p.Name()] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Providers[p.Name()] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
