package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	smimecheck "github.com/mseverin/go-smimecheck"
	"github.com/mseverin/go-smimecheck/server/logger"
	"github.com/mseverin/go-smimecheck/server/store"
)

// Error codes returned by the HTTP API.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeResultNotFound  = "RESULT_NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
)

// APIResponse represents the standard API response format.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in an API response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// VerifyRequest is the body of POST /api/v1/verify. Message carries the raw
// message source base64 encoded, so the exact signed bytes survive JSON
// transport.
type VerifyRequest struct {
	MailID  string `json:"mail_id" validate:"required,max=256"`
	Message string `json:"message" validate:"required"`
}

// Handler serves the verification API.
type Handler struct {
	verifier *smimecheck.Verifier
	store    store.ResultStore
}

// NewHandler creates a new Handler instance.
func NewHandler(verifier *smimecheck.Verifier, store store.ResultStore) *Handler {
	return &Handler{verifier: verifier, store: store}
}

// Router assembles the HTTP API with the standard middleware stack.
func (h *Handler) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/verify", h.VerifyMessage)
		r.Get("/results", h.ListResults)
		r.Get("/results/{mailID}", h.GetResult)
	})

	return r
}

// VerifyMessage handles POST /api/v1/verify.
func (h *Handler) VerifyMessage(w http.ResponseWriter, r *http.Request) {
	httpVerifyRequestsTotal.Inc()

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "mail_id and message are required")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Message)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "message must be base64 encoded")
		return
	}

	start := time.Now()
	result, err := h.verifier.Verify(raw, req.MailID)
	if err != nil {
		// No verdict exists for this call; nothing is recorded.
		verificationFailures.Inc()
		logger.LogError("verification aborted", err, map[string]string{"mail_id": req.MailID})
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Verification failed, no verdict was recorded")
		return
	}

	if err := h.store.Save(result); err != nil {
		logger.LogError("failed to record verdict", err, map[string]string{"mail_id": req.MailID})
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to record the verdict")
		return
	}

	observeVerification(result.Code.String(), time.Since(start))
	logger.LogVerification(result.MailID, result.Code.String(), result.Signer, result.Message)
	h.writeSuccess(w, http.StatusOK, result)
}

// GetResult handles GET /api/v1/results/{mailID}.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	mailID := chi.URLParam(r, "mailID")

	result, err := h.store.Get(mailID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to read the store")
		return
	}
	if result == nil {
		h.writeError(w, http.StatusNotFound, CodeResultNotFound, "No result recorded for this mail id")
		return
	}
	h.writeSuccess(w, http.StatusOK, result)
}

// ListResults handles GET /api/v1/results.
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.List()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to read the store")
		return
	}
	h.writeSuccess(w, http.StatusOK, results)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"healthy"}`)
}

// writeSuccess writes a successful JSON response.
func (h *Handler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// writeError writes an error JSON response.
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}
