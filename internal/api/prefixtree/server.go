package prefixtree

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/elliewise/nametrie/internal/core"
	"github.com/elliewise/nametrie/internal/engine"
)

// Engine is the query surface the handlers delegate to.
type Engine interface {
	GetTree(ctx context.Context, q engine.TreeQuery) (*engine.TreeResponse, error)
	NamesUnderPrefix(ctx context.Context, prefix string, limit, offset int) (*engine.PagedNames, error)
	Search(ctx context.Context, query string, limit int) (*engine.SearchResult, error)
}

type RebuildRunner interface {
	Rebuild(ctx context.Context) (core.BuildSummary, error)
}

// Server exposes the prefix index over JSON HTTP. It is transport glue
// only; validation and semantics live in the engine and rebuilder.
type Server struct {
	engine  Engine
	rebuild RebuildRunner
}

func NewServer(e Engine, r RebuildRunner) *Server {
	return &Server{engine: e, rebuild: r}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/tree", s.handleGetTree)
	mux.HandleFunc("GET /v1/tree/names/{prefix}", s.handleNames)
	mux.HandleFunc("GET /v1/tree/search", s.handleSearch)
	mux.HandleFunc("POST /v1/tree/rebuild", s.handleRebuild)
}

func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	q := engine.TreeQuery{
		Prefix:       params.Get("prefix"),
		MaxDepth:     engine.DefaultTreeDepth,
		IncludeNames: params.Get("include_names") == "true",
	}

	if raw := params.Get("max_depth"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, core.NewValidationError("max_depth", "must be an integer, got %q", raw))
			return
		}
		q.MaxDepth = depth
	}

	q.Filters.Gender = params.Get("gender")
	q.Filters.OriginCountry = params.Get("origin_country")

	var err error
	if q.Filters.MinPopularity, err = parseFloatParam(params.Get("min_popularity"), "min_popularity"); err != nil {
		writeError(w, err)
		return
	}
	if q.Filters.MaxPopularity, err = parseFloatParam(params.Get("max_popularity"), "max_popularity"); err != nil {
		writeError(w, err)
		return
	}

	q.Highlight.Prefixes = splitCSV(params.Get("highlight_prefixes"))
	if q.Highlight.NameIDs, err = parseIDList(params.Get("highlight_name_ids")); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.engine.GetTree(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNames(w http.ResponseWriter, r *http.Request) {
	prefix := r.PathValue("prefix")
	params := r.URL.Query()

	limit := engine.DefaultNamesLimit
	offset := 0
	var err error
	if limit, err = parseIntParam(params.Get("limit"), "limit", limit); err != nil {
		writeError(w, err)
		return
	}
	if offset, err = parseIntParam(params.Get("offset"), "offset", offset); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.engine.NamesUnderPrefix(r.Context(), prefix, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	limit := 0
	var err error
	if limit, err = parseIntParam(params.Get("limit"), "limit", limit); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.engine.Search(r.Context(), params.Get("query"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type rebuildResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	core.BuildSummary
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	summary, err := s.rebuild.Rebuild(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rebuildResponse{
		Status:       "success",
		Message:      "Prefix tree rebuilt successfully",
		BuildSummary: summary,
	})
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDList(raw string) ([]int64, error) {
	parts := splitCSV(raw)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, core.NewValidationError("highlight_name_ids", "expected integer ids, got %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}

func parseFloatParam(raw, field string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, core.NewValidationError(field, "must be a number, got %q", raw)
	}
	return &val, nil
}

func parseIntParam(raw, field string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.NewValidationError(field, "must be an integer, got %q", raw)
	}
	return val, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.IsValidation(err):
		status = http.StatusBadRequest
	case core.IsConflict(err):
		status = http.StatusConflict
	default:
		log.Printf("[API] Internal error: %v", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
