package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	errs "github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/internal/core/common/validation"
	"github.com/frahmantamala/access-management/pkg/logger"
	"github.com/go-chi/chi"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteAppError maps err onto the {"error": {...}} envelope. Errors that are not AppErrors, and
// internal AppErrors, go out as a generic 500 with the cause only in the log.
func (h *BaseHandler) WriteAppError(w http.ResponseWriter, err error) {
	appErr, ok := errs.IsAppError(err)
	if !ok {
		appErr = errs.NewInternalError("internal server error", err)
	}

	if appErr.Type == errs.ErrorTypeInternal {
		h.Logger.Error("request failed", "code", appErr.Code, "error", err)
		appErr = &errs.AppError{
			Type:       errs.ErrorTypeInternal,
			Code:       appErr.Code,
			Message:    "internal server error",
			StatusCode: http.StatusInternalServerError,
		}
	} else {
		h.Logger.Warn("request rejected", "status", appErr.StatusCode, "code", appErr.Code, "message", appErr.GetDetailedMessage())
	}

	status, body := appErr.ToHTTPResponse()
	h.WriteJSON(w, status, body)
}

// DecodeJSON decodes the request body into dst, answering 400 on malformed input.
func (h *BaseHandler) DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil {
		h.WriteAppError(w, errs.NewValidationError("request body is required", errs.ErrCodeValidationFailed))
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.WriteAppError(w, errs.NewValidationError("invalid request body", errs.ErrCodeValidationFailed))
		return false
	}
	return true
}

// PathID parses a positive integer URL parameter.
func (h *BaseHandler) PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, errs.NewValidationFieldError(name, name+" must be a positive integer", errs.ErrCodeInvalidID)
	}
	if appErr := validation.ValidateID(name, id); appErr != nil {
		return 0, appErr
	}
	return id, nil
}

// ExtractTokenFromHeader returns the token from "Authorization: Bearer <token>". A header
// without the scheme is taken as the raw token.
func (h *BaseHandler) ExtractTokenFromHeader(r *http.Request) string {
	return ExtractToken(r)
}

func ExtractToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return ""
	}

	if len(authHeader) >= 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}

	return authHeader
}
