package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"contractdesk.org/internal/audit"
	"contractdesk.org/internal/authz"
)

type tokenRequest struct {
	User    string `json:"user"`
	Context string `json:"context"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "validation_error", "user is required")
		return
	}
	if err := authz.ValidateContext(req.Context); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", "invalid context")
		return
	}

	token, err := authz.GenerateToken(user, req.Context, tokenTTL)
	if err != nil {
		if errors.Is(err, authz.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal", "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	fields := map[string]any{
		"user":       user,
		"expires_at": expiresAt.Format(time.RFC3339),
	}
	if req.Context != "" {
		fields["context"] = req.Context
	}
	_ = audit.LogEvent(r.Context(), "auth.token.issued", fields)

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
