package handler

import (
	"net/http"
	"regexp"

	"github.com/freeeve/hexwar/internal/auth"
	"github.com/freeeve/hexwar/internal/logger"
	"github.com/freeeve/hexwar/internal/repository"
)

// devNamePattern limits dev login names to something safe to log and show.
var devNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// AuthHandler issues tokens and serves the caller's profile.
type AuthHandler struct {
	jwtMgr   *auth.JWTManager
	userRepo repository.UserRepository
	devMode  bool
}

// NewAuthHandler creates an AuthHandler. devMode enables DevLogin.
func NewAuthHandler(jwtMgr *auth.JWTManager, userRepo repository.UserRepository, devMode bool) *AuthHandler {
	return &AuthHandler{jwtMgr: jwtMgr, userRepo: userRepo, devMode: devMode}
}

// RefreshToken handles POST /auth/refresh. Only refresh tokens are accepted.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	claims, err := h.jwtMgr.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	h.issueTokens(w, r, claims.UserID)
}

// DevLogin handles GET /auth/dev?name=. It upserts a "dev" user and
// returns a token pair; outside dev mode the route does not exist.
func (h *AuthHandler) DevLogin(w http.ResponseWriter, r *http.Request) {
	if !h.devMode {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	name := r.URL.Query().Get("name")
	if !devNamePattern.MatchString(name) {
		writeError(w, http.StatusBadRequest, "name must be 1-32 letters, digits, - or _")
		return
	}

	user, err := h.userRepo.Upsert(r.Context(), "dev", "dev-"+name, name)
	if err != nil {
		l := logger.ForRequest(r.Context())
		l.Error().Err(err).Str("name", name).Msg("Failed to upsert dev user")
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	h.issueTokens(w, r, user.ID)
}

// Me handles GET /api/v1/users/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.userRepo.FindByID(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) issueTokens(w http.ResponseWriter, r *http.Request, userID string) {
	tokens, err := h.jwtMgr.GenerateTokenPair(userID)
	if err != nil {
		l := logger.ForRequest(r.Context())
		l.Error().Err(err).Str("userId", userID).Msg("Failed to sign tokens")
		writeError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}
