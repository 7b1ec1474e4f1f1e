package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eventfuse/eventfuse/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := Security(okHandler())

	req := httptest.NewRequest("GET", "/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected nosniff header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("Expected frame options header")
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(2)(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/v1/events", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest("GET", "/v1/events", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 past the limit, got %d", rec.Code)
	}

	// A different client is unaffected
	req = httptest.NewRequest("GET", "/v1/events", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected other client to pass, got %d", rec.Code)
	}
}

func TestAdminToken(t *testing.T) {
	hash, err := auth.HashToken("super-secret")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	handler := AdminToken(hash)(okHandler())

	req := httptest.NewRequest("POST", "/v1/admin/sources", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/v1/admin/sources", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 with wrong token, got %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/v1/admin/sources", nil)
	req.Header.Set("X-Admin-Token", "super-secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with correct token, got %d", rec.Code)
	}
}

func TestAdminTokenUnconfigured(t *testing.T) {
	handler := AdminToken("")(okHandler())

	req := httptest.NewRequest("POST", "/v1/admin/sources", nil)
	req.Header.Set("X-Admin-Token", "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 when admin is unconfigured, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(okHandler())

	req := httptest.NewRequest("GET", "/v1/events", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Error("Expected allowed origin echoed")
	}

	req = httptest.NewRequest("GET", "/v1/events", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Expected disallowed origin rejected")
	}
}
