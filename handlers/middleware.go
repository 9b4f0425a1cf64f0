package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/CrowderSoup/wiseflow/services"
)

type AuthMiddleware struct {
	authService *services.AuthService
}

func NewAuthMiddleware(authService *services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// Auth puts the user of a valid session token into the request context. The
// token comes from the Authorization header, or from the token query
// parameter for websocket upgrades, which cannot set headers.
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from Authorization header or query
		tokenString, err := bearerToken(r)
		if err != nil {
			if q := r.URL.Query().Get("token"); q != "" {
				tokenString, err = q, nil
			}
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// Verify token
		userID, err := m.authService.VerifyJWT(tokenString)
		if err != nil {
			http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(services.WithUser(r.Context(), userID)))
	})
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing authorization header")
	}

	// Extract token from Bearer format
	authParts := strings.Split(authHeader, " ")
	if len(authParts) != 2 || authParts[0] != "Bearer" {
		return "", errors.New("invalid authorization format")
	}
	return authParts[1], nil
}
