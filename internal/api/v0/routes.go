// Package v0 provides the REST API handlers for room status access.
package v0

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roomwatch/roomwatch/internal/cache"
	"github.com/roomwatch/roomwatch/internal/refresh"
	"github.com/roomwatch/roomwatch/internal/stats"
	"github.com/roomwatch/roomwatch/pkg/versions"
)

// RefreshEngine triggers refresh cycles and reports their progress.
type RefreshEngine interface {
	RefreshNow(ctx context.Context) error
	Progress() stats.Progress
}

// RoomListResponse represents the room list response
type RoomListResponse struct {
	Rooms []cache.Entry `json:"rooms"`
	Total int           `json:"total"`
}

// ProgressResponse represents the refresh progress response
type ProgressResponse struct {
	Running   bool  `json:"running"`
	Completed int   `json:"completed"`
	Total     int   `json:"total"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

// RefreshResponse acknowledges an accepted refresh request
type RefreshResponse struct {
	Status string `json:"status"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes defines the routes for the room API with dependency injection
type Routes struct {
	store  *cache.Store
	engine RefreshEngine
}

// NewRoutes creates a new Routes instance with the provided dependencies
func NewRoutes(store *cache.Store, engine RefreshEngine) *Routes {
	return &Routes{
		store:  store,
		engine: engine,
	}
}

// Router creates a new router for the room API
func Router(store *cache.Store, engine RefreshEngine) http.Handler {
	routes := NewRoutes(store, engine)

	r := chi.NewRouter()

	r.Get("/rooms", routes.listRooms)
	r.Get("/rooms/{key}", routes.getRoom)
	r.Post("/refresh", routes.triggerRefresh)
	r.Get("/progress", routes.getProgress)

	return r
}

// listRooms handles GET /v0/rooms
func (rr *Routes) listRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := rr.store.Snapshot()
	rr.writeJSONResponse(w, RoomListResponse{
		Rooms: rooms,
		Total: len(rooms),
	})
}

// getRoom handles GET /v0/rooms/{key}
func (rr *Routes) getRoom(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	entry, ok := rr.store.Get(key)
	if !ok {
		rr.writeErrorResponse(w, "Room not found: "+key, http.StatusNotFound)
		return
	}

	rr.writeJSONResponse(w, entry)
}

// triggerRefresh handles POST /v0/refresh. A cycle already in progress is
// reported as a conflict; a cooldown rejection carries a Retry-After header.
func (rr *Routes) triggerRefresh(w http.ResponseWriter, r *http.Request) {
	err := rr.engine.RefreshNow(r.Context())

	var cooldown *refresh.CooldownError
	switch {
	case errors.Is(err, refresh.ErrAlreadyRefreshing):
		rr.writeErrorResponse(w, err.Error(), http.StatusConflict)
	case errors.As(err, &cooldown):
		w.Header().Set("Retry-After", strconv.Itoa(cooldown.RemainingSeconds()))
		rr.writeErrorResponse(w, err.Error(), http.StatusTooManyRequests)
	case err != nil:
		slog.Error("Manual refresh failed", "error", err)
		rr.writeErrorResponse(w, "Refresh failed", http.StatusInternalServerError)
	default:
		rr.writeJSONResponse(w, RefreshResponse{Status: "completed"})
	}
}

// getProgress handles GET /v0/progress
func (rr *Routes) getProgress(w http.ResponseWriter, _ *http.Request) {
	p := rr.engine.Progress()
	rr.writeJSONResponse(w, ProgressResponse{
		Running:   p.Running,
		Completed: p.Completed,
		Total:     p.Total,
		ElapsedMS: p.Elapsed.Milliseconds(),
	})
}

// HealthRouter creates a router for health check endpoints
func HealthRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		slog.Error("Failed to encode version info", "error", err)
	}
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
