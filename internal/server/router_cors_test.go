package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newCORSRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(corsMiddleware(origins))
	router.PUT("/api/psychologists/:userId", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func preflight(router http.Handler, origin string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodOptions, "/api/psychologists/p1", http.NoBody)
	request.Header.Set("Origin", origin)
	request.Header.Set("Access-Control-Request-Method", http.MethodPut)
	request.Header.Set("Access-Control-Request-Headers", "Content-Type")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestCORSMiddlewareReflectsAnyOriginWithCredentials(t *testing.T) {
	recorder := preflight(newCORSRouter(nil), "https://app.example.com")

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected origin to be reflected, got %q", got)
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be enabled")
	}
}

func TestCORSMiddlewareRestrictsConfiguredOrigins(t *testing.T) {
	router := newCORSRouter([]string{"https://app.example.com"})

	allowed := preflight(router, "https://app.example.com")
	if allowed.Code != http.StatusNoContent {
		t.Fatalf("expected allowed origin preflight to succeed, got %d", allowed.Code)
	}

	denied := preflight(router, "https://evil.example.com")
	if denied.Code != http.StatusForbidden {
		t.Fatalf("expected foreign origin to be refused, got %d", denied.Code)
	}
	if denied.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected no allow-origin header for foreign origin")
	}
}
