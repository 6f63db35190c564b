package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	errs "github.com/frahmantamala/access-management/internal"
	userDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/user"
	"github.com/frahmantamala/access-management/internal/core/events"
	"github.com/frahmantamala/access-management/internal/core/store"
	"github.com/frahmantamala/access-management/internal/loginlog"
	"github.com/frahmantamala/access-management/internal/session"
)

type EventPublisher interface {
	PublishSync(ctx context.Context, event events.Event) error
}

// Service runs the registration, login and logout workflows. Each workflow is one transaction.
type Service struct {
	uow         UnitOfWork
	hasher      PasswordHasher
	sessions    *session.Manager
	audit       *loginlog.Service
	publisher   EventPublisher
	defaultRole string
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithDefaultRole(role string) Option {
	return func(s *Service) {
		if role != "" {
			s.defaultRole = role
		}
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func NewService(uow UnitOfWork, hasher PasswordHasher, sessions *session.Manager, audit *loginlog.Service, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		uow:         uow,
		hasher:      hasher,
		sessions:    sessions,
		audit:       audit,
		defaultRole: DefaultRole,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an active user holding the default role. The duplicate check, the insert
// and the role assignment commit together or not at all.
func (s *Service) Register(ctx context.Context, dto RegisterDTO) (*PublicUser, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	// bcrypt is slow; hash before the transaction so it holds no locks meanwhile.
	hash, err := s.hasher.Hash(dto.Password)
	if err != nil {
		return nil, errs.NewInternalError("failed to hash password", err)
	}

	var created *userDatamodel.User
	err = s.uow.WithinTx(ctx, func(repos Repositories) error {
		_, err := repos.Users.FindByEmail(ctx, dto.Email)
		switch {
		case err == nil:
			return errs.ErrDuplicateEmail
		case !store.IsNotFound(err):
			return errs.NewInternalError("failed to check email", err)
		}

		u := &userDatamodel.User{
			Email:        dto.Email,
			PasswordHash: hash,
			LastName:     dto.LastName,
			FirstName:    dto.FirstName,
			IsActive:     true,
		}
		if err := repos.Users.Create(ctx, u); err != nil {
			if store.IsUniqueViolation(err) {
				return errs.ErrDuplicateEmail
			}
			return errs.NewInternalError("failed to create user", err)
		}

		role, err := repos.Permissions.FindRoleByName(ctx, s.defaultRole)
		if err != nil {
			if store.IsNotFound(err) {
				return errs.NewInternalError("default role is not configured", fmt.Errorf("role %q not found", s.defaultRole))
			}
			return errs.NewInternalError("failed to load default role", err)
		}
		if err := repos.Permissions.AssignRole(ctx, u.ID, role.ID, s.now().UTC()); err != nil {
			return errs.NewInternalError("failed to assign default role", err)
		}

		created = u
		return nil
	})
	if err != nil {
		return nil, s.txError(err)
	}

	s.logger.Info("user registered", "user_id", created.ID, "role", s.defaultRole)
	s.publish(ctx, events.NewUserRegisteredEvent(created.ID, created.Email, s.defaultRole))

	out := PublicUserFromDataModel(created)
	return &out, nil
}

// loginFailure carries a credential rejection out of the aborted transaction so it can be
// audited afterwards.
type loginFailure struct {
	userID  *int64
	message string
	err     *errs.AppError
}

// Login verifies credentials and issues a session. Every attempt leaves exactly one login log
// entry: the success entry commits with the session, a failure entry is written after the
// rollback, and a malformed request is recorded before any lookup.
func (s *Service) Login(ctx context.Context, dto LoginDTO, client ClientInfo) (*LoginResult, error) {
	if err := dto.Validate(); err != nil {
		appErr, ok := errs.IsAppError(err)
		if !ok {
			return nil, err
		}
		return nil, s.recordFailure(ctx, dto.Email, client, &loginFailure{message: loginlog.MessageValidationFailed, err: appErr})
	}

	var (
		result  *LoginResult
		failure *loginFailure
	)
	err := s.uow.WithinTx(ctx, func(repos Repositories) error {
		u, err := repos.Users.FindByEmail(ctx, dto.Email)
		if err != nil {
			if store.IsNotFound(err) {
				failure = &loginFailure{message: loginlog.MessageUnknownEmail, err: errs.ErrInvalidCredentials}
				return failure.err
			}
			return errs.NewInternalError("failed to look up user", err)
		}

		userID := u.ID
		if !u.IsActive {
			failure = &loginFailure{userID: &userID, message: loginlog.MessageUserInactive, err: errs.ErrUserInactive}
			return failure.err
		}

		if err := s.hasher.Compare(u.PasswordHash, dto.Password); err != nil {
			if !errors.Is(err, ErrPasswordMismatch) {
				s.logger.Error("stored password hash is unusable", "user_id", userID, "error", err)
			}
			failure = &loginFailure{userID: &userID, message: loginlog.MessageInvalidPassword, err: errs.ErrInvalidCredentials}
			return failure.err
		}

		issued, err := s.sessions.WithRepository(repos.Sessions).Issue(ctx, userID)
		if err != nil {
			return err
		}

		err = s.audit.WithRepository(repos.LoginLogs).Record(ctx, loginlog.Attempt{
			UserID:    &userID,
			Email:     u.Email,
			Success:   true,
			Message:   loginlog.MessageLoginSucceeded,
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
		})
		if err != nil {
			return err
		}

		result = &LoginResult{
			Token: issued.Token,
			User: PublicUser{
				ID:        u.ID,
				Email:     u.Email,
				LastName:  u.LastName,
				FirstName: u.FirstName,
				CreatedAt: u.CreatedAt,
			},
			ExpiresAt: issued.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		if failure != nil && errors.Is(err, failure.err) {
			return nil, s.recordFailure(ctx, dto.Email, client, failure)
		}
		return nil, s.txError(err)
	}

	s.logger.Info("login succeeded", "user_id", result.User.ID)
	s.publish(ctx, events.NewLoginSucceededEvent(result.User.ID, result.ExpiresAt))
	return result, nil
}

// recordFailure appends the failed-attempt entry outside the rolled back transaction. It runs
// even if the caller has gone away, so the attempt is never lost from the audit trail.
func (s *Service) recordFailure(ctx context.Context, email string, client ClientInfo, f *loginFailure) error {
	err := s.audit.Record(context.WithoutCancel(ctx), loginlog.Attempt{
		UserID:    f.userID,
		Email:     email,
		Success:   false,
		Message:   f.message,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	if err != nil {
		s.logger.Error("failed to record failed login", "reason", f.message, "error", err)
		return err
	}

	s.logger.Warn("login rejected", "reason", f.message, "code", f.err.Code)
	s.publish(ctx, events.NewLoginFailedEvent(f.userID, f.message))
	return f.err
}

// Logout ends the session behind token and records it against the session's owner.
func (s *Service) Logout(ctx context.Context, token string, client ClientInfo) error {
	var userID int64
	err := s.uow.WithinTx(ctx, func(repos Repositories) error {
		id, err := s.sessions.WithRepository(repos.Sessions).Invalidate(ctx, token)
		if err != nil {
			return err
		}
		userID = id

		var email string
		u, err := repos.Users.FindByID(ctx, id)
		switch {
		case err == nil:
			email = u.Email
		case !store.IsNotFound(err):
			return errs.NewInternalError("failed to load session owner", err)
		}

		return s.audit.WithRepository(repos.LoginLogs).Record(ctx, loginlog.Attempt{
			UserID:    &id,
			Email:     email,
			Success:   true,
			Message:   loginlog.MessageLogout,
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
		})
	})
	if err != nil {
		return s.txError(err)
	}

	s.logger.Info("logout", "user_id", userID)
	s.publish(ctx, events.NewLoggedOutEvent(userID))
	return nil
}

// txError keeps AppErrors as they are and wraps anything else, such as a failed commit or a
// cancelled context, as an internal error.
func (s *Service) txError(err error) error {
	if _, ok := errs.IsAppError(err); ok {
		return err
	}
	return errs.NewInternalError("transaction failed", err)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSync(ctx, event); err != nil {
		s.logger.Warn("event publish failed", "event_type", event.EventType(), "error", err)
	}
}
