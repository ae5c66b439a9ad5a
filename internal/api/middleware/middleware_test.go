package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/timmy/jobstore/internal/logger"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, logger.GetRequestID(c.Request.Context()))
	})
	return r
}

func TestLoggerMiddlewareRequestID(t *testing.T) {
	r := newEngine(LoggerMiddleware())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get(RequestIDHeader)
	if generated == "" || w.Body.String() != generated {
		t.Errorf("generated id %q not propagated, body %q", generated, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(RequestIDHeader) != "abc-123" || w.Body.String() != "abc-123" {
		t.Errorf("caller id not kept: header %q body %q", w.Header().Get(RequestIDHeader), w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		config     CORSConfig
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{"allowed origin", CORSConfig{AllowedOrigins: []string{"https://ops.example"}}, "https://ops.example", http.MethodGet, "https://ops.example", http.StatusOK},
		{"other origin", CORSConfig{AllowedOrigins: []string{"https://ops.example"}}, "https://evil.example", http.MethodGet, "", http.StatusOK},
		{"wildcard", CORSConfig{AllowAllOrigins: true}, "https://any.example", http.MethodGet, "*", http.StatusOK},
		{"preflight", CORSConfig{AllowAllOrigins: true}, "https://any.example", http.MethodOptions, "*", http.StatusNoContent},
		{"no origin", CORSConfig{AllowAllOrigins: true}, "", http.MethodGet, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(CORS(tt.config))
			r.OPTIONS("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(tt.method, "/ping", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
