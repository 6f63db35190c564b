package loginlog

import (
	"context"
	"time"

	errs "github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/internal/core/common/pagination"
	loginlogDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/loginlog"
)

// Messages recorded with each attempt. Failure reasons stay in the audit trail only.
const (
	MessageLoginSucceeded   = "login successful"
	MessageLogout           = "logout"
	MessageUnknownEmail     = "unknown email"
	MessageInvalidPassword  = "invalid password"
	MessageUserInactive     = "user inactive"
	MessageValidationFailed = "validation failed"
)

// Attempt is what the auth workflows know about a single authentication event.
type Attempt struct {
	UserID    *int64
	Email     string
	Success   bool
	Message   string
	IPAddress string
	UserAgent string
}

type Entry struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"userId"`
	Email     string    `json:"email"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
}

type Filter struct {
	UserID *int64
	pagination.Params
}

type ListResponse struct {
	Logs       []Entry         `json:"logs"`
	Pagination pagination.Meta `json:"pagination"`
}

type RepositoryAPI interface {
	Append(ctx context.Context, entry *loginlogDatamodel.Entry) error
	List(ctx context.Context, filter Filter) ([]*loginlogDatamodel.Entry, int64, error)
}

type Service struct {
	repo RepositoryAPI
	now  func() time.Time
}

func NewService(repo RepositoryAPI) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) WithRepository(repo RepositoryAPI) *Service {
	cp := *s
	cp.repo = repo
	return &cp
}

// Record appends one entry. Entries are never updated or removed afterwards.
func (s *Service) Record(ctx context.Context, a Attempt) error {
	row := &loginlogDatamodel.Entry{
		UserID:    a.UserID,
		Email:     a.Email,
		Success:   a.Success,
		Message:   a.Message,
		IPAddress: a.IPAddress,
		UserAgent: a.UserAgent,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Append(ctx, row); err != nil {
		return errs.NewInternalError("failed to append login log", err)
	}
	return nil
}

// List returns entries newest first.
func (s *Service) List(ctx context.Context, filter Filter) (*ListResponse, error) {
	filter.Params = filter.Params.Normalize()

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, errs.NewInternalError("failed to list login logs", err)
	}

	logs := make([]Entry, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, FromDataModel(row))
	}

	return &ListResponse{
		Logs:       logs,
		Pagination: filter.Params.Meta(total),
	}, nil
}

func FromDataModel(e *loginlogDatamodel.Entry) Entry {
	return Entry{
		ID:        e.ID,
		UserID:    e.UserID,
		Email:     e.Email,
		Success:   e.Success,
		Message:   e.Message,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		CreatedAt: e.CreatedAt,
	}
}
