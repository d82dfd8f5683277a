package handler

import (
	"encoding/json"
	"net/http"

	"github.com/atlekbai/accessql/internal/access"
	"github.com/atlekbai/accessql/internal/schema"
)

type Handler struct {
	cache  *schema.Cache
	filter *access.Filter
}

func New(cache *schema.Cache, filter *access.Filter) *Handler {
	return &Handler{cache: cache, filter: filter}
}

type HealthResponse struct {
	Status   string `json:"status"`
	Entities int    `json:"entities"`
	Rules    int    `json:"rules"`
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Entities: h.cache.EntityCount(),
		Rules:    len(h.filter.Rules()),
	})
}

// Ready handles GET /readyz. The server is ready once a mapping is loaded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.cache.EntityCount() == 0 {
		writeError(w, http.StatusServiceUnavailable, CodeNotReady,
			"Mapping not loaded",
			"No entities registered")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ready",
		Entities: h.cache.EntityCount(),
		Rules:    len(h.filter.Rules()),
	})
}

// FilterRequest is the body of POST /v1/filter.
type FilterRequest struct {
	Query     string         `json:"query"`
	Access    string         `json:"access,omitempty"`
	Principal string         `json:"principal,omitempty"`
	Roles     []string       `json:"roles,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

type FilterResponse struct {
	Query         string         `json:"query"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	SelectedPaths []string       `json:"selected_paths,omitempty"`
	AlwaysFalse   bool           `json:"always_false"`
	Modified      bool           `json:"modified"`
}

// Filter handles POST /v1/filter, the plain JSON form of FilterQuery.
// Access defaults to READ.
func (h *Handler) Filter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "Invalid request body", err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "Invalid request body", "query is required")
		return
	}
	at := access.AccessRead
	if req.Access != "" {
		parsed, err := access.ParseAccessType(req.Access)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidAccess, "Invalid access type", err.Error())
			return
		}
		at = parsed
	}

	sc := access.StaticContext{Principal: req.Principal, Roles: req.Roles, Values: req.Context}
	res, err := h.filter.FilterQuery(req.Query, at, sc)
	if err != nil {
		writeAccessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FilterResponse{
		Query:         res.Query,
		Parameters:    res.Parameters,
		SelectedPaths: res.SelectedPaths,
		AlwaysFalse:   res.AlwaysFalse,
		Modified:      res.Modified,
	})
}

// Register mounts the health and filter endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)
	mux.HandleFunc("POST /v1/filter", h.Filter)
}
