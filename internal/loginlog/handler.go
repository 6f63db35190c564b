package loginlog

import (
	"context"
	"net/http"
	"strconv"

	errs "github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/internal/core/common/pagination"
	"github.com/frahmantamala/access-management/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, filter Filter) (*ListResponse, error)
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

// ListLogins handles GET /audit/logins
func (h *Handler) ListLogins(w http.ResponseWriter, r *http.Request) {
	filter := Filter{Params: pagination.FromRequest(r)}

	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			h.WriteAppError(w, errs.NewValidationFieldError("user_id", "user_id must be a positive integer", errs.ErrCodeInvalidID))
			return
		}
		filter.UserID = &id
	}

	resp, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}
