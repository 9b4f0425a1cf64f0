package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/smtp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrNotAuthenticated is returned by every mutating operation when no user is
// attached to the context.
var ErrNotAuthenticated = errors.New("not authenticated")

const (
	magicLinkTTL     = 15 * time.Minute
	maxPendingLogins = 10000
	sessionTTL       = 7 * 24 * time.Hour
)

type AuthService struct {
	tokens     *expirable.LRU[string, string] // one-time token -> email
	jwtSecret  []byte
	smtpConfig SMTPConfig
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

func NewAuthService(jwtSecret string, smtpConfig SMTPConfig) *AuthService {
	if jwtSecret == "" {
		log.Println("Warning: JWT_SECRET is not set, using an insecure default")
		jwtSecret = "wiseflow-default-secret-change-in-production"
	}

	return &AuthService{
		tokens:     expirable.NewLRU[string, string](maxPendingLogins, nil, magicLinkTTL),
		jwtSecret:  []byte(jwtSecret),
		smtpConfig: smtpConfig,
	}
}

// GenerateMagicLink creates a one-time token and emails the login link
func (s *AuthService) GenerateMagicLink(email string, baseURL string) (string, error) {
	// Generate a random token
	token, err := generateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	// Store the token -> email mapping; unused tokens expire on their own
	s.tokens.Add(token, email)

	// Create the magic link URL
	magicLink := fmt.Sprintf("%s/api/auth/magic-link?token=%s", baseURL, token)

	// Send the email (if SMTP is configured)
	if s.smtpConfig.Host != "" {
		if err := s.sendMagicLinkEmail(email, magicLink); err != nil {
			log.Printf("Warning: Failed to send email: %v", err)
		}
	}

	// For development, return the magic link directly
	return magicLink, nil
}

// VerifyMagicLinkToken consumes a one-time token and returns the associated email
func (s *AuthService) VerifyMagicLinkToken(token string) (string, error) {
	email, ok := s.tokens.Get(token)
	if !ok {
		return "", errors.New("invalid or expired token")
	}

	// Remove the token (one-time use)
	s.tokens.Remove(token)
	return email, nil
}

// CreateJWT generates a session token for a user. The email is the user id.
func (s *AuthService) CreateJWT(email string) (string, error) {
	// Create token with claims
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   email,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(sessionTTL).Unix(),
	})

	// Sign the token
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// VerifyJWT verifies a session token and returns the user id
func (s *AuthService) VerifyJWT(tokenString string) (string, error) {
	// Parse the token
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	// Check if token is valid
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	// Extract claims
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}

	// Get user id from claims; older tokens only carry the email claim
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return "", errors.New("email claim missing")
	}
	return email, nil
}

// Helper to generate a secure random token
func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Helper to send a magic link email
func (s *AuthService) sendMagicLinkEmail(to, magicLink string) error {
	// Skip if SMTP not fully configured
	if s.smtpConfig.Host == "" || s.smtpConfig.Port == "" ||
		s.smtpConfig.Username == "" || s.smtpConfig.Password == "" {
		return errors.New("SMTP not fully configured")
	}

	// Set up authentication
	auth := smtp.PlainAuth("", s.smtpConfig.Username, s.smtpConfig.Password, s.smtpConfig.Host)

	from := s.smtpConfig.From
	if from == "" {
		from = s.smtpConfig.Username
	}

	// Prepare email content
	subject := "Your WiseFlow login link"
	body := fmt.Sprintf("Click the link below to log in to WiseFlow:\n\n%s\n\nThe link expires in %d minutes. If you didn't request it, you can safely ignore this email.",
		magicLink, int(magicLinkTTL.Minutes()))
	message := fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\n\n%s", from, to, subject, body)

	// Send email
	addr := fmt.Sprintf("%s:%s", s.smtpConfig.Host, s.smtpConfig.Port)
	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

type userContextKey struct{}

// WithUser attaches the authenticated user id to ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFromContext returns the authenticated user id, or ErrNotAuthenticated.
func UserFromContext(ctx context.Context) (string, error) {
	userID, _ := ctx.Value(userContextKey{}).(string)
	if userID == "" {
		return "", ErrNotAuthenticated
	}
	return userID, nil
}
