package handlers

import (
	"net/http"
)

// SessionStats reports the state of the session registry
type SessionStats interface {
	Stats() map[string]interface{}
}

// HealthHandler handles health check requests
type HealthHandler struct {
	sessions SessionStats
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(sessions SessionStats) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// Health handles GET /health - Health check endpoint
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{"status": "healthy"}
	if h.sessions != nil {
		response["sessions"] = h.sessions.Stats()
	}
	writeJSONResponse(w, http.StatusOK, response)
}
