// Package auth verifies session tokens minted by the identity provider.
// The dashboard signs HS256 session JWTs with a shared secret; this
// service only verifies them, it never issues tokens itself.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumail/lumail/internal/config"
)

type contextKey string

const sessionContextKey contextKey = "auth.session"

// Session holds the verified identity of the caller.
type Session struct {
	UserID string
	Email  string
}

// sessionClaims is the claim set the dashboard puts in its session JWTs.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Manager verifies bearer tokens on incoming API requests.
type Manager struct {
	secret  []byte
	enabled bool
}

// NewManager creates a token verifier from the auth configuration. When
// auth is disabled (no session secret configured, typical for local
// development) every request passes with an anonymous session.
func NewManager(cfg *config.AuthConfig) *Manager {
	return &Manager{
		secret:  []byte(cfg.SessionSecret),
		enabled: cfg.Enabled && cfg.SessionSecret != "",
	}
}

// Enabled reports whether bearer tokens are actually checked.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Verify parses and validates a session token string.
func (m *Manager) Verify(tokenString string) (*Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session claims")
	}

	return &Session{UserID: claims.Subject, Email: claims.Email}, nil
}

// Middleware rejects requests without a valid Authorization: Bearer
// token. The verified session is stored on the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		session, err := m.Verify(tokenString)
		if err != nil {
			unauthorized(w, "invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the verified session for the request, or nil when
// auth is disabled or the request was not authenticated.
func FromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionContextKey).(*Session)
	return session
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
