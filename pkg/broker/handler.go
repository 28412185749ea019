package broker

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Handler handles HTTP requests for the credential broker
type Handler struct {
	service *Service
}

// NewHandler creates a new broker handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the broker routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/service-account", h.ServiceAccount)
}

// ServiceAccountResponse is the success response body
type ServiceAccountResponse struct {
	ServiceAccount json.RawMessage `json:"serviceAccount"`
}

// ServiceAccount handles POST /service-account.
//
// Status contract: 401 when the Authorization header is missing or
// malformed, 403 when the assertion fails verification, 500 when the shared
// credential is not configured.
func (h *Handler) ServiceAccount(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "missing bearer token"})
		return
	}

	account, err := h.service.Verify(r.Context(), token)
	if err != nil {
		slog.Info("Rejected service-account request", "err", err)
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, map[string]string{"error": "assertion verification failed"})
		return
	}

	if !h.service.Configured() {
		slog.Error("Service credential is not configured")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "service credential not configured"})
		return
	}

	slog.Info("Issued service credential", "account", account.ID, "email", account.Email)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, ServiceAccountResponse{ServiceAccount: h.service.Credential()})
}
