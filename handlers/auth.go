package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/CrowderSoup/wiseflow/database"
	"github.com/CrowderSoup/wiseflow/services"
)

// AuthHandler handles authentication-related endpoints
type AuthHandler struct {
	authService *services.AuthService
	store       *database.Store
	publicURL   string
}

// NewAuthHandler builds magic links against publicURL; an empty publicURL
// falls back to the request's host.
func NewAuthHandler(authService *services.AuthService, store *database.Store, publicURL string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		store:       store,
		publicURL:   strings.TrimRight(publicURL, "/"),
	}
}

// Login handles the login request (sending a magic link)
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	// Parse request
	var req struct {
		Email string `json:"email"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	// Validate email
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		http.Error(w, "Invalid email address", http.StatusBadRequest)
		return
	}

	// Get base URL from config or the request
	baseURL := h.publicURL
	if baseURL == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, r.Host)
	}

	// Generate magic link
	magicLink, err := h.authService.GenerateMagicLink(email, baseURL)
	if err != nil {
		log.Printf("Error generating magic link: %v", err)
		http.Error(w, "Failed to generate login link", http.StatusInternalServerError)
		return
	}

	// Return success response with magic link for development setups without SMTP
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "success",
		"message":   "Magic link has been sent",
		"magicLink": magicLink,
	})
}

// HandleMagicLink consumes a magic link token and redirects to the frontend
// with a session token.
func (h *AuthHandler) HandleMagicLink(w http.ResponseWriter, r *http.Request) {
	// Get token from query
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusBadRequest)
		return
	}

	// Verify token
	email, err := h.authService.VerifyMagicLinkToken(token)
	if err != nil {
		http.Error(w, "Invalid or expired token", http.StatusBadRequest)
		return
	}

	// First login creates the user
	if err := h.store.EnsureUser(r.Context(), email); err != nil {
		log.Printf("Error creating user %s: %v", email, err)
		http.Error(w, "Authentication error", http.StatusInternalServerError)
		return
	}

	// Create JWT token
	jwtToken, err := h.authService.CreateJWT(email)
	if err != nil {
		log.Printf("Error creating JWT: %v", err)
		http.Error(w, "Authentication error", http.StatusInternalServerError)
		return
	}

	// Redirect to frontend with token
	q := url.Values{}
	q.Set("token", jwtToken)
	q.Set("email", email)
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusFound)
}

// VerifyToken checks if a session token is valid
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	// Get token from Authorization header
	tokenString, err := bearerToken(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	// Verify token
	email, err := h.authService.VerifyJWT(tokenString)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	// Return success with email
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"email":  email,
		"status": "valid",
	})
}
