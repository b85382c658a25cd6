// Package api provides the relay worker's HTTP surface: health and stats
// for operations, plus message submission and credential management.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/coregx/relay"
	"github.com/coregx/relay/model"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	messages    relay.MessageRepository
	publisher   *relay.DedupPublisher
	credentials *relay.CredentialManager
	logger      relay.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	messages relay.MessageRepository,
	publisher *relay.DedupPublisher,
	credentials *relay.CredentialManager,
	logger relay.Logger,
) *Handler {
	return &Handler{
		messages:    messages,
		publisher:   publisher,
		credentials: credentials,
		logger:      logger,
	}
}

// Router builds the chi router for the worker's HTTP endpoint.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.HandleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/stats", h.HandleStats)
		r.Post("/messages", h.HandleSubmitMessage)
		r.Post("/credentials", h.HandleRegisterCredential)
		r.Post("/projects/bind", h.HandleBindProject)
	})

	return r
}

// SubmitMessageRequest represents a message submission request.
type SubmitMessageRequest struct {
	ProjectID int64                  `json:"projectID"`
	Channel   string                 `json:"channel"`
	Recipient string                 `json:"recipient"`
	Payload   map[string]interface{} `json:"payload"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleSubmitMessage handles POST /api/v1/messages.
// The message row is created first, then the stream entry is published;
// if the publish fails the orphaned-event sweep re-publishes later.
func (h *Handler) HandleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req SubmitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	payloadJSON, err := json.Marshal(req.Payload)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to serialize payload", "SERIALIZATION_ERROR")
		return
	}

	msg := model.NewMessage(uuid.NewString(), req.ProjectID, model.Channel(req.Channel), req.Recipient, string(payloadJSON))
	if err := msg.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if err := h.messages.Create(r.Context(), &msg); err != nil {
		h.logger.Errorf("Failed to create message: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to create message", "CREATE_ERROR")
		return
	}

	if _, err := h.publisher.Publish(r.Context(), msg.ID, 0); err != nil {
		h.logger.Warnf("Failed to publish entry for message %s: %v", msg.ID, err)
	}

	h.respondSuccess(w, http.StatusCreated, msg, "Message accepted")
}

// HandleStats handles GET /api/v1/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.messages.CountByStatus(r.Context())
	if err != nil {
		h.logger.Errorf("Failed to count messages: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to count messages", "STATS_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, counts, "")
}

// HandleRegisterCredential handles POST /api/v1/credentials.
func (h *Handler) HandleRegisterCredential(w http.ResponseWriter, r *http.Request) {
	var req relay.RegisterCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	credential, err := h.credentials.RegisterCredential(r.Context(), req)
	if err != nil {
		h.logger.Errorf("Failed to register credential: %v", err)
		h.respondError(w, http.StatusBadRequest, err.Error(), "CREDENTIAL_ERROR")
		return
	}

	// Never echo the sealed config back.
	credential.EncryptedConfig = nil
	h.respondSuccess(w, http.StatusCreated, credential, "Credential registered")
}

// HandleBindProject handles POST /api/v1/projects/bind.
func (h *Handler) HandleBindProject(w http.ResponseWriter, r *http.Request) {
	var req relay.BindProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	association, err := h.credentials.BindProject(r.Context(), req)
	if err != nil {
		h.logger.Errorf("Failed to bind project: %v", err)
		h.respondError(w, http.StatusBadRequest, err.Error(), "BIND_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusCreated, association, "Project bound")
}

// HandleHealth handles GET /healthz and GET /api/v1/health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "0.1.0",
	}

	h.respondSuccess(w, http.StatusOK, health, "")
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}
