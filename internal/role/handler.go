package role

import (
	"context"
	"net/http"

	"github.com/frahmantamala/access-management/internal/transport"
)

type ServiceAPI interface {
	GetAllRoles(ctx context.Context) ([]Role, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// GetRoles handles GET /roles
func (h *Handler) GetRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Service.GetAllRoles(r.Context())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, RolesResponse{Roles: roles})
}
