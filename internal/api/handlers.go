package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/webintel/webintel/internal/scrape"
)

const (
	defaultRunLimit  = 50
	maxRunLimit      = 500
	defaultPageLimit = 50
	maxPageLimit     = 500
)

type createRunRequest struct {
	Query    string              `json:"query"`
	MaxDepth *int                `json:"max_depth"`
	Sources  []scrape.SourceKind `json:"sources"`
	Config   scrape.JobConfig    `json:"config"`
}

type vectorSearchRequest struct {
	Query string `json:"query"`
	RunID string `json:"run_id"`
	Limit int    `json:"limit"`
}

// createRun handles POST /runs. The run is created and started in one call;
// unknown body fields are rejected rather than silently dropped.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%v: %v", scrape.ErrInvalidConfig, err))
		return
	}

	cfg := req.Config
	if req.MaxDepth != nil {
		cfg.MaxDepth = *req.MaxDepth
	}
	if len(req.Sources) > 0 {
		cfg.Sources = req.Sources
	}
	s.applyRunDefaults(&cfg, req.MaxDepth != nil)

	job, err := s.ctrl.CreateJob(r.Context(), req.Query, cfg)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.ctrl.Start(r.Context(), job.ID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID})
}

func (s *Server) applyRunDefaults(cfg *scrape.JobConfig, depthSet bool) {
	if !depthSet && cfg.MaxDepth == 0 && s.cfg.Crawl.MaxDepthDefault > 0 {
		cfg.MaxDepth = s.cfg.Crawl.MaxDepthDefault
	}
	if cfg.MaxPages == 0 && s.cfg.Crawl.MaxPagesDefault > 0 {
		cfg.MaxPages = s.cfg.Crawl.MaxPagesDefault
	}
	if len(cfg.StartURLs) == 0 && len(s.cfg.Crawl.Seeds) > 0 {
		cfg.StartURLs = append([]string(nil), s.cfg.Crawl.Seeds...)
	}
}

// listRuns handles GET /runs?limit=&offset=.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobs, total, err := s.ctrl.ListJobs(r.Context(), limit, offset)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if jobs == nil {
		jobs = []scrape.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "runs": jobs})
}

// getRun handles GET /runs/{run_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	job, err := s.ctrl.GetJob(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": job})
}

// deleteRun handles DELETE /runs/{run_id}. Only terminal runs are deletable.
func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Delete(r.Context(), chi.URLParam(r, "run_id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pauseRun handles POST /runs/{run_id}/pause.
func (s *Server) pauseRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Pause(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": snap})
}

// resumeRun handles POST /runs/{run_id}/resume.
func (s *Server) resumeRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Resume(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": snap})
}

// stopRun handles POST /runs/{run_id}/stop.
func (s *Server) stopRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Stop(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": snap})
}

// listRunPages handles GET /runs/{run_id}/pages with paging, ordering and a
// substring search over url/title/text.
func (s *Server) listRunPages(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if _, err := s.ctrl.Status(r.Context(), runID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	limit, offset, err := parseLimitOffset(r, defaultPageLimit, maxPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	opts := scrape.PageListOptions{
		Limit:    limit,
		Offset:   offset,
		OrderBy:  strings.TrimSpace(q.Get("order_by")),
		OrderDir: strings.TrimSpace(q.Get("order_dir")),
		Search:   strings.TrimSpace(q.Get("search")),
	}
	pages, total, err := s.pages.ListPages(r.Context(), runID, opts)
	if err != nil {
		if errors.Is(err, scrape.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeDomainError(w, fmt.Errorf("%w: list pages: %v", scrape.ErrStorageUnavailable, err))
		return
	}
	if pages == nil {
		pages = []scrape.Page{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "pages": pages})
}

// getPage handles GET /pages/{page_id}?include_links=.
func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	page, links, err := s.pages.GetPage(r.Context(), chi.URLParam(r, "page_id"))
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeDomainError(w, fmt.Errorf("%w: get page: %v", scrape.ErrStorageUnavailable, err))
		return
	}
	if includeLinks(r) {
		page.Links = links
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": page})
}

// vectorSearch handles POST /vector-search {query, run_id?, limit}.
func (s *Server) vectorSearch(w http.ResponseWriter, r *http.Request) {
	var req vectorSearchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%v: %v", scrape.ErrInvalidConfig, err))
		return
	}
	results, err := s.ctrl.Search(r.Context(), req.Query, req.RunID, req.Limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if results == nil {
		results = []scrape.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func includeLinks(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("include_links")) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
