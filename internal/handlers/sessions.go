package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"flipit-overrides-api/internal/middleware"
	"flipit-overrides-api/internal/models"
	"flipit-overrides-api/internal/overrides"
	"flipit-overrides-api/internal/services"
)

// SessionHandler handles listing edit session requests
type SessionHandler struct {
	sessions *services.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type categoryRequest struct {
	CategoryID *models.FlexString `json:"categoryId"`
}

type optionalRequest struct {
	Expanded bool `json:"expanded"`
}

// RegisterRoutes mounts the session API on an authenticated /v1 subrouter
func (h *SessionHandler) RegisterRoutes(v1 *mux.Router) {
	v1.HandleFunc("/listings/{listingId}/sessions", h.OpenSession).Methods("POST")
	v1.HandleFunc("/sessions/{sessionId}", h.GetSession).Methods("GET")
	v1.HandleFunc("/sessions/{sessionId}", h.DeleteSession).Methods("DELETE")
	v1.HandleFunc("/sessions/{sessionId}/save", h.SaveSession).Methods("POST")
	v1.HandleFunc("/sessions/{sessionId}/platforms/{platform}/enabled", h.SetEnabled).Methods("PUT")
	v1.HandleFunc("/sessions/{sessionId}/platforms/{platform}/category", h.SetCategory).Methods("PUT")
	v1.HandleFunc("/sessions/{sessionId}/platforms/{platform}/values/{key}", h.SetValue).Methods("PUT")
	v1.HandleFunc("/sessions/{sessionId}/platforms/{platform}/optional", h.SetOptional).Methods("PUT")
	v1.HandleFunc("/sessions/{sessionId}/platforms/{platform}/retry", h.Retry).Methods("POST")
	v1.HandleFunc("/sessions/{sessionId}/platforms/{platform}/form", h.GetForm).Methods("GET")
}

// OpenSession handles POST /v1/listings/{listingId}/sessions
func (h *SessionHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	creds, _ := middleware.CredentialsFromContext(r.Context())
	listingID := mux.Vars(r)["listingId"]

	session, err := h.sessions.Open(r.Context(), creds, listingID)
	if err != nil {
		slog.Warn("Failed to open edit session", "listing_id", listingID, "error", err)
		writeServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, session.View())
}

// GetSession handles GET /v1/sessions/{sessionId}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	creds, _ := middleware.CredentialsFromContext(r.Context())
	session, err := h.sessions.Get(mux.Vars(r)["sessionId"], creds)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session.View())
}

// DeleteSession handles DELETE /v1/sessions/{sessionId}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	creds, _ := middleware.CredentialsFromContext(r.Context())
	if err := h.sessions.Close(mux.Vars(r)["sessionId"], creds); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveSession handles POST /v1/sessions/{sessionId}/save
func (h *SessionHandler) SaveSession(w http.ResponseWriter, r *http.Request) {
	creds, _ := middleware.CredentialsFromContext(r.Context())
	session, err := h.sessions.Get(mux.Vars(r)["sessionId"], creds)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	view, err := session.Save(r.Context(), creds)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// SetEnabled handles PUT .../platforms/{platform}/enabled
func (h *SessionHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	session, platform, ok := h.platformTarget(w, r)
	if !ok {
		return
	}

	var req enabledRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Missing field", []models.ErrorDetail{
			{Field: "enabled", Issue: "required"},
		})
		return
	}

	if err := session.SetEnabled(platform, *req.Enabled); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writePlatform(w, r, session, platform)
}

// SetCategory handles PUT .../platforms/{platform}/category
func (h *SessionHandler) SetCategory(w http.ResponseWriter, r *http.Request) {
	creds, _ := middleware.CredentialsFromContext(r.Context())
	session, platform, ok := h.platformTarget(w, r)
	if !ok {
		return
	}

	var req categoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CategoryID == nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Missing field", []models.ErrorDetail{
			{Field: "categoryId", Issue: `required; use "" to clear`},
		})
		return
	}

	if err := session.SetCategory(creds, platform, req.CategoryID.String()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writePlatform(w, r, session, platform)
}

// SetValue handles PUT .../platforms/{platform}/values/{key}
func (h *SessionHandler) SetValue(w http.ResponseWriter, r *http.Request) {
	session, platform, ok := h.platformTarget(w, r)
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]

	var raw map[string]json.RawMessage
	if !decodeBody(w, r, &raw) {
		return
	}
	encoded, present := raw["value"]
	if !present {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Missing field", []models.ErrorDetail{
			{Field: "value", Issue: "required; use null to clear"},
		})
		return
	}

	var value any
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON", nil)
		return
	}

	if err := session.SetValue(platform, key, value); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writePlatform(w, r, session, platform)
}

// SetOptional handles PUT .../platforms/{platform}/optional
func (h *SessionHandler) SetOptional(w http.ResponseWriter, r *http.Request) {
	session, platform, ok := h.platformTarget(w, r)
	if !ok {
		return
	}

	var req optionalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := session.SetOptionalExpanded(platform, req.Expanded); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writePlatform(w, r, session, platform)
}

// Retry handles POST .../platforms/{platform}/retry
func (h *SessionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	creds, _ := middleware.CredentialsFromContext(r.Context())
	session, platform, ok := h.platformTarget(w, r)
	if !ok {
		return
	}

	if err := session.Retry(creds, platform); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writePlatform(w, r, session, platform)
}

// GetForm handles GET .../platforms/{platform}/form
func (h *SessionHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	session, platform, ok := h.platformTarget(w, r)
	if !ok {
		return
	}

	c, err := session.Controller(platform)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, c.Form())
}

func (h *SessionHandler) platformTarget(w http.ResponseWriter, r *http.Request) (*overrides.EditSession, models.Platform, bool) {
	vars := mux.Vars(r)

	platform, err := models.ParsePlatform(vars["platform"])
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_platform", err.Error(), []models.ErrorDetail{
			{Field: "platform", Issue: fmt.Sprintf("must be one of %v", models.AllPlatforms)},
		})
		return nil, "", false
	}

	creds, _ := middleware.CredentialsFromContext(r.Context())
	session, err := h.sessions.Get(vars["sessionId"], creds)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, "", false
	}
	return session, platform, true
}

func (h *SessionHandler) writePlatform(w http.ResponseWriter, r *http.Request, session *overrides.EditSession, platform models.Platform) {
	view, err := session.Platform(platform)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		slog.Warn("Invalid JSON in request", "path", r.URL.Path, "error", err, "remote_addr", r.RemoteAddr)
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON", nil)
		return false
	}
	return true
}
