package user

import (
	"context"
	"log/slog"

	errs "github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/internal/core/common/pagination"
	"github.com/frahmantamala/access-management/internal/core/events"
	"github.com/frahmantamala/access-management/internal/core/store"
	"github.com/frahmantamala/access-management/internal/permission"
	"github.com/frahmantamala/access-management/internal/session"
)

type EventPublisher interface {
	PublishSync(ctx context.Context, event events.Event) error
}

type Service struct {
	uow       UnitOfWork
	directory DirectoryRepository
	evaluator *permission.Evaluator
	sessions  *session.Manager
	publisher EventPublisher
	logger    *slog.Logger
}

func NewService(uow UnitOfWork, directory DirectoryRepository, evaluator *permission.Evaluator, sessions *session.Manager, publisher EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:       uow,
		directory: directory,
		evaluator: evaluator,
		sessions:  sessions,
		publisher: publisher,
		logger:    logger,
	}
}

// GetByID returns the user with its permission names.
func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	row, err := s.uow.Repositories().Users.FindByID(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, errs.ErrUserNotFound
		}
		return nil, errs.NewInternalError("failed to get user by id", err)
	}

	perms, err := s.evaluator.PermissionsForUser(ctx, id)
	if err != nil {
		return nil, err
	}

	u := FromDataModel(row)
	u.Permissions = make([]string, 0, len(perms))
	for _, p := range perms {
		u.Permissions = append(u.Permissions, p.Name)
	}
	return u, nil
}

// List pages through the directory ordered by id, attaching role names.
func (s *Service) List(ctx context.Context, params pagination.Params) (*ListResponse, error) {
	params = params.Normalize()

	total, err := s.directory.Count(ctx)
	if err != nil {
		return nil, errs.NewInternalError("failed to count users", err)
	}

	entries, err := s.directory.List(ctx, params.Limit, params.Offset())
	if err != nil {
		return nil, errs.NewInternalError("failed to list users", err)
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	roles, err := s.directory.RoleNames(ctx, ids)
	if err != nil {
		return nil, errs.NewInternalError("failed to load user roles", err)
	}

	users := make([]User, 0, len(entries))
	for _, e := range entries {
		users = append(users, FromDirectoryEntry(e, roles[e.ID]))
	}

	return &ListResponse{
		Users:      users,
		Pagination: params.Meta(total),
	}, nil
}

// Update applies the provided fields. Deactivating a user ends all of its sessions in the same
// transaction.
func (s *Service) Update(ctx context.Context, actorID, id int64, dto UpdateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	var (
		updated *User
		revoked int64
	)
	err := s.uow.WithinTx(ctx, func(repos Repositories) error {
		current, err := repos.Users.FindByID(ctx, id)
		if err != nil {
			if store.IsNotFound(err) {
				return errs.ErrUserNotFound
			}
			return errs.NewInternalError("failed to load user", err)
		}

		if fields := dto.fields(); len(fields) > 0 {
			if err := repos.Users.Update(ctx, id, fields); err != nil {
				return errs.NewInternalError("failed to update user", err)
			}
		}

		if current.IsActive && dto.Active != nil && !*dto.Active {
			n, err := s.sessions.WithRepository(repos.Sessions).InvalidateAllForUser(ctx, id)
			if err != nil {
				return err
			}
			revoked = n
		}

		row, err := repos.Users.FindByID(ctx, id)
		if err != nil {
			return errs.NewInternalError("failed to reload user", err)
		}
		updated = FromDataModel(row)
		return nil
	})
	if err != nil {
		return nil, txError(err)
	}

	s.logger.Info("user updated", "user_id", id, "actor_id", actorID, "sessions_revoked", revoked)
	if dto.Active != nil && !*dto.Active {
		s.publish(ctx, events.NewUserRemovedEvent(id, false, revoked, actorID))
	}
	return updated, nil
}

// Delete removes a user other than the actor. Sessions are deactivated and role links removed
// in the same transaction; login log entries are kept.
func (s *Service) Delete(ctx context.Context, actorID, id int64) (*User, error) {
	if actorID == id {
		return nil, errs.ErrCannotDeleteSelf
	}

	var (
		deleted *User
		revoked int64
	)
	err := s.uow.WithinTx(ctx, func(repos Repositories) error {
		row, err := repos.Users.FindByID(ctx, id)
		if err != nil {
			if store.IsNotFound(err) {
				return errs.ErrUserNotFound
			}
			return errs.NewInternalError("failed to load user", err)
		}

		n, err := s.sessions.WithRepository(repos.Sessions).InvalidateAllForUser(ctx, id)
		if err != nil {
			return err
		}
		revoked = n

		if err := repos.Permissions.RemoveRoles(ctx, id); err != nil {
			return errs.NewInternalError("failed to remove user roles", err)
		}
		if err := repos.Users.Delete(ctx, id); err != nil {
			return errs.NewInternalError("failed to delete user", err)
		}

		deleted = FromDataModel(row)
		return nil
	})
	if err != nil {
		return nil, txError(err)
	}

	s.logger.Info("user deleted", "user_id", id, "actor_id", actorID, "sessions_revoked", revoked)
	s.publish(ctx, events.NewUserRemovedEvent(id, true, revoked, actorID))
	return deleted, nil
}

// Permissions lists what the user may do. Unknown users simply have none.
func (s *Service) Permissions(ctx context.Context, id int64) (*PermissionsResponse, error) {
	perms, err := s.evaluator.PermissionsForUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PermissionsResponse{UserID: id, Permissions: perms}, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSync(ctx, event); err != nil {
		s.logger.Warn("event publish failed", "event_type", event.EventType(), "error", err)
	}
}

func txError(err error) error {
	if _, ok := errs.IsAppError(err); ok {
		return err
	}
	return errs.NewInternalError("transaction failed", err)
}
