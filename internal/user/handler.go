package user

import (
	"context"
	"net/http"

	errs "github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/internal/core/common/pagination"
	"github.com/frahmantamala/access-management/internal/transport"
)

type ServiceAPI interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context, params pagination.Params) (*ListResponse, error)
	Update(ctx context.Context, actorID, id int64, dto UpdateUserDTO) (*User, error)
	Delete(ctx context.Context, actorID, id int64) (*User, error)
	Permissions(ctx context.Context, id int64) (*PermissionsResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
	}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := errs.IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, errs.ErrMissingToken)
		return
	}

	user, err := h.Service.GetByID(r.Context(), identity.UserID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, user)
}

// ListUsers handles GET /users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Service.List(r.Context(), pagination.FromRequest(r))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// UpdateUser handles PUT /users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := errs.IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, errs.ErrMissingToken)
		return
	}

	id, err := h.PathID(r, "id")
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	var dto UpdateUserDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	user, err := h.Service.Update(r.Context(), identity.UserID, id, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, MutationResponse{Message: "user updated", User: user})
}

// DeleteUser handles DELETE /users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := errs.IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, errs.ErrMissingToken)
		return
	}

	id, err := h.PathID(r, "id")
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	user, err := h.Service.Delete(r.Context(), identity.UserID, id)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, MutationResponse{Message: "user deleted", User: user})
}

// GetUserPermissions handles GET /users/{id}/permissions
func (h *Handler) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	resp, err := h.Service.Permissions(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}
