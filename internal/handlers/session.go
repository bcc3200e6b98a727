package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/models"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
	"github.com/go-chi/chi/v5"
)

type SessionServiceInterface interface {
	ListForPrincipal(ctx context.Context, p *models.Principal) ([]models.SessionResponse, error)
	Current(ctx context.Context, p *models.Principal) (*models.Session, *models.User, error)
	Delete(ctx context.Context, sessionID, ownerID string) error
}

type SessionHandler struct {
	service SessionServiceInterface
}

func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: service}
}

type CurrentSessionResponse struct {
	Session models.SessionResponse `json:"session"`
	User    *models.UserResponse   `json:"user"`
}

// ListAll handles GET /session/all
func (h *SessionHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "missing access token")
		return
	}

	sessions, err := h.service.ListForPrincipal(r.Context(), principal)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, sessions)
}

// Current handles GET /session
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "missing access token")
		return
	}

	session, user, err := h.service.Current(r.Context(), principal)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := session.ToResponse(principal.SessionID)
	pkghttp.WriteJSON(w, http.StatusOK, CurrentSessionResponse{Session: resp, User: user.ToResponse()})
}

// Delete handles DELETE /session/{id}. Only the caller's own sessions can
// be deleted; anything else reads as not found.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "missing access token")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "session id is required")
		return
	}

	if err := h.service.Delete(r.Context(), id, principal.Subject); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
