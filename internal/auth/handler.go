package auth

import (
	"context"
	"net"
	"net/http"

	errs "github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/internal/transport"
)

type ServiceAPI interface {
	Register(ctx context.Context, dto RegisterDTO) (*PublicUser, error)
	Login(ctx context.Context, dto LoginDTO, client ClientInfo) (*LoginResult, error)
	Logout(ctx context.Context, token string, client ClientInfo) error
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

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var dto RegisterDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	user, err := h.Service.Register(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, RegisterResponse{
		Message: "user created",
		User:    *user,
	})
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	result, err := h.Service.Login(r.Context(), dto, ClientInfoFromRequest(r))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

// Logout handles POST /auth/logout. It sits behind Authenticate, so the identity already
// carries the token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := errs.IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, errs.ErrMissingToken)
		return
	}

	if err := h.Service.Logout(r.Context(), identity.Token, ClientInfoFromRequest(r)); err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, LogoutResponse{Message: "logged out"})
}

func ClientInfoFromRequest(r *http.Request) ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return ClientInfo{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}
