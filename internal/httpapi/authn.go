package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"contractdesk.org/internal/authz"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}

		claims, err := authz.ParseAndValidate(token)
		if err != nil {
			switch {
			case errors.Is(err, authz.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "unauthenticated", "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "internal", "authentication error")
			}
			return
		}

		ctx := authz.ContextWithActor(r.Context(), authz.Actor{
			UserID:  claims.Subject,
			Context: claims.Context,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actor extracts the verified identity; ok is false on public paths where
// no token was presented.
func actor(r *http.Request) (authz.Actor, bool) {
	return authz.ActorFromContext(r.Context())
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
