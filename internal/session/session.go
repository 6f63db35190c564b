package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	errs "github.com/frahmantamala/access-management/internal"
	sessionDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/session"
	"github.com/frahmantamala/access-management/internal/core/store"
)

const (
	DefaultTTL = 24 * time.Hour
	tokenBytes = 32
)

// ErrNoActiveSession is returned by repositories when a conditional deactivation touched no row.
var ErrNoActiveSession = errors.New("no active session for token")

type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Record is a session row read together with its owner. Owner fields are nil when the
// owning user no longer exists.
type Record struct {
	ID             int64
	Token          string
	UserID         int64
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Active         bool
	OwnerEmail     *string
	OwnerLastName  *string
	OwnerFirstName *string
	OwnerActive    *bool
}

type RepositoryAPI interface {
	Create(ctx context.Context, s *sessionDatamodel.Session) error
	FindWithOwner(ctx context.Context, token string) (*Record, error)
	FindByToken(ctx context.Context, token string) (*sessionDatamodel.Session, error)
	Deactivate(ctx context.Context, token string) error
	DeactivateAllForUser(ctx context.Context, userID int64) (int64, error)
}

type Manager struct {
	repo RepositoryAPI
	ttl  time.Duration
	now  func() time.Time
}

type Option func(*Manager)

// WithClock replaces time.Now, mostly for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(repo RepositoryAPI, ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithRepository returns a copy of m that reads and writes through repo, typically one bound
// to an open transaction.
func (m *Manager) WithRepository(repo RepositoryAPI) *Manager {
	cp := *m
	cp.repo = repo
	return &cp
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue creates and persists a new active session for userID.
func (m *Manager) Issue(ctx context.Context, userID int64) (*Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, errs.NewInternalError("failed to generate session token", err)
	}

	now := m.now().UTC()
	row := &sessionDatamodel.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		Active:    true,
	}
	if err := m.repo.Create(ctx, row); err != nil {
		return nil, errs.NewInternalError("failed to persist session", err)
	}

	return &Session{
		Token:     row.Token,
		UserID:    row.UserID,
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// Validate resolves token to the identity of its owner. Expired sessions are rejected here and
// left in place; nothing sweeps them.
func (m *Manager) Validate(ctx context.Context, token string) (*errs.Identity, error) {
	if token == "" {
		return nil, errs.ErrInvalidToken
	}

	rec, err := m.repo.FindWithOwner(ctx, token)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, errs.ErrInvalidToken
		}
		return nil, errs.NewInternalError("failed to load session", err)
	}

	if !rec.Active || !rec.ExpiresAt.After(m.now()) {
		return nil, errs.ErrInvalidToken
	}
	if rec.OwnerEmail == nil || rec.OwnerActive == nil || !*rec.OwnerActive {
		return nil, errs.ErrInvalidToken
	}

	return &errs.Identity{
		UserID:    rec.UserID,
		Email:     *rec.OwnerEmail,
		LastName:  deref(rec.OwnerLastName),
		FirstName: deref(rec.OwnerFirstName),
		Token:     token,
	}, nil
}

// Invalidate deactivates an active session and returns its owner id.
func (m *Manager) Invalidate(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, errs.ErrSessionNotFound
	}

	if err := m.repo.Deactivate(ctx, token); err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			return 0, errs.ErrSessionNotFound
		}
		return 0, errs.NewInternalError("failed to deactivate session", err)
	}

	row, err := m.repo.FindByToken(ctx, token)
	if err != nil {
		return 0, errs.NewInternalError("failed to load session owner", err)
	}
	return row.UserID, nil
}

// InvalidateAllForUser deactivates every active session of userID and reports how many.
func (m *Manager) InvalidateAllForUser(ctx context.Context, userID int64) (int64, error) {
	n, err := m.repo.DeactivateAllForUser(ctx, userID)
	if err != nil {
		return 0, errs.NewInternalError("failed to deactivate user sessions", err)
	}
	return n, nil
}

// GenerateToken returns 32 random bytes, hex encoded.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
