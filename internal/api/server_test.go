package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomwatch/roomwatch/internal/cache"
	"github.com/roomwatch/roomwatch/internal/stats"
)

type noopEngine struct{}

func (noopEngine) RefreshNow(context.Context) error { return nil }
func (noopEngine) Progress() stats.Progress         { return stats.Progress{} }

func TestNewServer_Routes(t *testing.T) {
	t.Parallel()

	srv := NewServer(cache.NewStore(), noopEngine{})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodGet, "/v0/rooms", http.StatusOK},
		{http.MethodGet, "/v0/progress", http.StatusOK},
		{http.MethodPost, "/v0/refresh", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestNewServer_MetricsHandler(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	srv := NewServer(cache.NewStore(), noopEngine{}, WithMetricsHandler(metrics))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestNewServer_Middleware(t *testing.T) {
	t.Parallel()

	var seen bool
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = true
			next.ServeHTTP(w, r)
		})
	}
	srv := NewServer(cache.NewStore(), noopEngine{}, WithMiddlewares(mw, LoggingMiddleware))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, seen)
}
