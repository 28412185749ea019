package staff

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
)

// Handler handles HTTP requests for staff sign-in
type Handler struct {
	service *Service
}

// NewHandler creates a new staff handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the staff routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/signin", h.SignIn)
}

// SignInRequest is the sign-in request body
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInResponse is the sign-in response body
type SignInResponse struct {
	IDToken   string `json:"idToken"`
	ExpiresAt int64  `json:"expiresAt"`
	AccountID string `json:"accountId"`
}

// SignIn handles POST /signin
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, clinicerr.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.Email == "" || req.Password == "" {
		renderError(w, r, clinicerr.New(clinicerr.ErrCodeMissingRequired, "email and password are required"))
		return
	}

	assertion, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Info("Sign-in rejected", "email", req.Email, "code", clinicerr.GetCode(err))
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SignInResponse{
		IDToken:   assertion.Token,
		ExpiresAt: assertion.ExpiresAt.Unix(),
		AccountID: assertion.AccountID.String(),
	})
}

// renderError writes a structured error response with the mapped status code
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := clinicerr.GetCode(err)
	status := clinicerr.MapErrorCodeToHTTPStatus(code)
	render.Status(r, status)
	render.JSON(w, r, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": err.Error(),
		},
	})
}
