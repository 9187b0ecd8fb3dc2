package handler

import (
	"net/http"
	"strconv"

	"github.com/freeeve/hexwar/internal/auth"
	"github.com/freeeve/hexwar/internal/service"
	"github.com/freeeve/hexwar/pkg/tactics"
)

// MatchHandler handles match lifecycle and movement query endpoints.
type MatchHandler struct {
	matchSvc *service.MatchService
}

// NewMatchHandler creates a MatchHandler.
func NewMatchHandler(matchSvc *service.MatchService) *MatchHandler {
	return &MatchHandler{matchSvc: matchSvc}
}

// CreateMatch handles POST /api/v1/matches
func (h *MatchHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req service.CreateMatchInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	match, err := h.matchSvc.CreateMatch(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, match)
}

// ListMatches handles GET /api/v1/matches
func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}
	matches, err := h.matchSvc.ListMatches(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeList(w, matches)
}

// GetMatch handles GET /api/v1/matches/{id}
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	match, err := h.matchSvc.GetMatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// Tick handles POST /api/v1/matches/{id}/tick?n=
func (h *MatchHandler) Tick(w http.ResponseWriter, r *http.Request) {
	n := 1
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "n must be a positive number")
			return
		}
		n = parsed
	}
	out, err := h.matchSvc.Tick(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Actions handles GET /api/v1/matches/{id}/actions
func (h *MatchHandler) Actions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.matchSvc.Actions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeList(w, actions)
}

// Reach handles GET /api/v1/matches/{id}/reach?at=col,row
func (h *MatchHandler) Reach(w http.ResponseWriter, r *http.Request) {
	at, ok := queryPosition(w, r, "at")
	if !ok {
		return
	}
	out, err := h.matchSvc.Reach(r.Context(), r.PathValue("id"), at)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Path handles GET /api/v1/matches/{id}/path?from=col,row&to=col,row
func (h *MatchHandler) Path(w http.ResponseWriter, r *http.Request) {
	from, ok := queryPosition(w, r, "from")
	if !ok {
		return
	}
	to, ok := queryPosition(w, r, "to")
	if !ok {
		return
	}
	out, err := h.matchSvc.Path(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Search handles GET /api/v1/matches/{id}/search/{kind}?at=col,row
func (h *MatchHandler) Search(w http.ResponseWriter, r *http.Request) {
	kind, err := tactics.ParseSearchKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	at, ok := queryPosition(w, r, "at")
	if !ok {
		return
	}
	out, err := h.matchSvc.Search(r.Context(), r.PathValue("id"), kind, at)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func queryPosition(w http.ResponseWriter, r *http.Request, key string) (tactics.Position, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		writeError(w, http.StatusBadRequest, "missing "+key+" parameter")
		return tactics.Position{}, false
	}
	p, err := tactics.ParsePosition(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return tactics.Position{}, false
	}
	return p, true
}
