package postgres

import (
	"context"

	"github.com/frahmantamala/access-management/internal/auth"
	userDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/user"
	"github.com/frahmantamala/access-management/internal/core/store"
	loginlogPostgres "github.com/frahmantamala/access-management/internal/loginlog/postgres"
	permissionPostgres "github.com/frahmantamala/access-management/internal/permission/postgres"
	sessionPostgres "github.com/frahmantamala/access-management/internal/session/postgres"
	"gorm.io/gorm"
)

type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) auth.CredentialRepository {
	return &CredentialRepository{db: db}
}

// FindByEmail matches the stored email exactly. Inactive users are returned too; the caller
// decides what inactivity means.
func (r *CredentialRepository) FindByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	var u userDatamodel.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *CredentialRepository) FindByID(ctx context.Context, id int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	if err := r.db.WithContext(ctx).Take(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *CredentialRepository) Create(ctx context.Context, u *userDatamodel.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

// UnitOfWork builds auth repositories over the store, bound to the transaction when one is open.
type UnitOfWork struct {
	store *store.Store
}

func NewUnitOfWork(s *store.Store) *UnitOfWork {
	return &UnitOfWork{store: s}
}

func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(repos auth.Repositories) error) error {
	return u.store.WithinTx(ctx, func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

func NewRepositories(db *gorm.DB) auth.Repositories {
	return auth.Repositories{
		Users:       NewCredentialRepository(db),
		Sessions:    sessionPostgres.NewSessionRepository(db),
		Permissions: permissionPostgres.NewPermissionRepository(db),
		LoginLogs:   loginlogPostgres.NewLoginLogRepository(db),
	}
}
