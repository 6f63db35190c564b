package auth

import (
	"context"
	"time"

	userDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/user"
	"github.com/frahmantamala/access-management/internal/loginlog"
	"github.com/frahmantamala/access-management/internal/permission"
	"github.com/frahmantamala/access-management/internal/session"
)

const DefaultRole = "user"

// CredentialRepository reads and creates the user rows the auth workflows need.
type CredentialRepository interface {
	FindByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	FindByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	Create(ctx context.Context, u *userDatamodel.User) error
}

// Repositories is the set of repositories bound to one store handle, either the pool or an
// open transaction.
type Repositories struct {
	Users       CredentialRepository
	Sessions    session.RepositoryAPI
	Permissions permission.RepositoryAPI
	LoginLogs   loginlog.RepositoryAPI
}

// UnitOfWork binds repositories to a transaction. WithinTx commits when fn returns nil and
// rolls back on error, panic or context cancellation.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
}

// ClientInfo identifies where a login attempt came from.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// PublicUser is the user shape returned by auth endpoints. It never carries the password hash.
type PublicUser struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	LastName  *string   `json:"nom"`
	FirstName *string   `json:"prenom"`
	CreatedAt time.Time `json:"createdAt"`
}

type LoginResult struct {
	Token     string     `json:"token"`
	User      PublicUser `json:"user"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

func PublicUserFromDataModel(u *userDatamodel.User) PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		LastName:  u.LastName,
		FirstName: u.FirstName,
		CreatedAt: u.CreatedAt,
	}
}
