// Package handlers implements the HTTP handlers for the deckforge API.
package handlers

import (
	"net/http"
	"time"

	"deckforge/internal/api/response"
	"deckforge/internal/version"
)

// SystemHandler serves health and version information.
type SystemHandler struct {
	started time.Time
}

// NewSystemHandler creates a system handler.
func NewSystemHandler() *SystemHandler {
	return &SystemHandler{started: time.Now()}
}

// Health handles GET /api/health.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}
