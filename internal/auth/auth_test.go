package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumail/lumail/internal/config"
)

const testSecret = "test-session-secret"

func signSession(t *testing.T, secret, userID, email string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestManager() *Manager {
	return NewManager(&config.AuthConfig{Enabled: true, SessionSecret: testSecret})
}

func TestVerify(t *testing.T) {
	m := newTestManager()

	token := signSession(t, testSecret, "u-1", "ops@lumail.co.uk", time.Hour)
	session, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if session.UserID != "u-1" || session.Email != "ops@lumail.co.uk" {
		t.Errorf("session = %+v", session)
	}
}

func TestVerifyRejects(t *testing.T) {
	m := newTestManager()

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signSession(t, "other-secret", "u-1", "a@b.com", time.Hour)},
		{"expired", signSession(t, testSecret, "u-1", "a@b.com", -time.Minute)},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Verify(tt.token); err == nil {
				t.Error("Verify() accepted an invalid token")
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	m := newTestManager()

	var gotSession *Session
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSession = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid bearer token", func(t *testing.T) {
		gotSession = nil
		req := httptest.NewRequest("GET", "/api/send", nil)
		req.Header.Set("Authorization", "Bearer "+signSession(t, testSecret, "u-2", "x@y.com", time.Hour))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if gotSession == nil || gotSession.UserID != "u-2" {
			t.Errorf("session = %+v", gotSession)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/send", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/send", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestMiddlewareDisabled(t *testing.T) {
	m := NewManager(&config.AuthConfig{Enabled: false})

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) != nil {
			t.Error("disabled auth must not attach a session")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/send", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when auth disabled", rec.Code)
	}
}
