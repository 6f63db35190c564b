package role

import (
	"context"
	"log/slog"

	errs "github.com/frahmantamala/access-management/internal"
)

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetAllRoles lists the role catalog by name.
func (s *Service) GetAllRoles(ctx context.Context) ([]Role, error) {
	dataRoles, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, errs.NewInternalError("failed to get roles", err)
	}

	grants, err := s.repo.PermissionNames(ctx)
	if err != nil {
		return nil, errs.NewInternalError("failed to get role permissions", err)
	}

	roles := make([]Role, 0, len(dataRoles))
	for _, r := range dataRoles {
		roles = append(roles, FromDataModel(r, grants[r.ID]))
	}

	s.logger.Debug("retrieved roles", "count", len(roles))
	return roles, nil
}
