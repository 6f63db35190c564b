package user

import (
	"context"
	"time"

	userDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/user"
	"github.com/frahmantamala/access-management/internal/permission"
	"github.com/frahmantamala/access-management/internal/session"
)

type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	LastName    *string   `json:"nom"`
	FirstName   *string   `json:"prenom"`
	IsActive    bool      `json:"actif"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DirectoryEntry is one row of the user directory read model.
type DirectoryEntry struct {
	ID        int64     `db:"id"`
	Email     string    `db:"email"`
	LastName  *string   `db:"last_name"`
	FirstName *string   `db:"first_name"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type RepositoryAPI interface {
	FindByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	Update(ctx context.Context, id int64, fields map[string]interface{}) error
	Delete(ctx context.Context, id int64) error
}

// DirectoryRepository is the paginated listing side, kept apart from the transactional writes.
type DirectoryRepository interface {
	List(ctx context.Context, limit, offset int) ([]DirectoryEntry, error)
	Count(ctx context.Context) (int64, error)
	RoleNames(ctx context.Context, userIDs []int64) (map[int64][]string, error)
}

type Repositories struct {
	Users       RepositoryAPI
	Sessions    session.RepositoryAPI
	Permissions permission.RepositoryAPI
}

type UnitOfWork interface {
	Repositories() Repositories
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:        u.ID,
		Email:     u.Email,
		LastName:  u.LastName,
		FirstName: u.FirstName,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func FromDirectoryEntry(e DirectoryEntry, roles []string) User {
	if roles == nil {
		roles = []string{}
	}
	return User{
		ID:        e.ID,
		Email:     e.Email,
		LastName:  e.LastName,
		FirstName: e.FirstName,
		IsActive:  e.IsActive,
		Roles:     roles,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}
