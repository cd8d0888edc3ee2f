package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"studybot-backend/internal/middleware"
	"studybot-backend/internal/models"
)

func TestLogin(t *testing.T) {
	jwtAuth := middleware.NewJWTAuth("test-secret")
	handler := NewAuthHandler(jwtAuth, "correct-horse")

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid password", `{"password":"correct-horse"}`, http.StatusOK},
		{"wrong password", `{"password":"battery-staple"}`, http.StatusUnauthorized},
		{"empty password", `{"password":""}`, http.StatusBadRequest},
		{"malformed body", `{password}`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			handler.Login(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body: %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestLoginTokenPassesMiddleware(t *testing.T) {
	jwtAuth := middleware.NewJWTAuth("test-secret")
	handler := NewAuthHandler(jwtAuth, "correct-horse")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"password":"correct-horse"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}

	var resp models.TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse token response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("empty access token")
	}

	var reached bool
	guarded := jwtAuth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	guardedReq := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats", nil)
	guardedReq.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	guardedRec := httptest.NewRecorder()
	guarded.ServeHTTP(guardedRec, guardedReq)

	if !reached {
		t.Errorf("valid token rejected: %d %s", guardedRec.Code, guardedRec.Body.String())
	}

	if !jwtAuth.Validate(resp.AccessToken) {
		t.Error("Validate rejected a freshly issued token")
	}
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	jwtAuth := middleware.NewJWTAuth("test-secret")
	guarded := jwtAuth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"garbage token", "Bearer not.a.token"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}
