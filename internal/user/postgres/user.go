package postgres

import (
	"context"
	"fmt"
	"time"

	userDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/user"
	"github.com/frahmantamala/access-management/internal/core/store"
	permissionPostgres "github.com/frahmantamala/access-management/internal/permission/postgres"
	sessionPostgres "github.com/frahmantamala/access-management/internal/session/postgres"
	"github.com/frahmantamala/access-management/internal/user"
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	if err := r.db.WithContext(ctx).Take(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Update(ctx context.Context, id int64, fields map[string]interface{}) error {
	values := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	values["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&userDatamodel.User{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DirectoryRepository serves the user listing with plain SQL over sqlx.
type DirectoryRepository struct {
	db *sqlx.DB
}

func NewDirectoryRepository(db *sqlx.DB) user.DirectoryRepository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) List(ctx context.Context, limit, offset int) ([]user.DirectoryEntry, error) {
	query := r.db.Rebind(`
SELECT id, email, last_name, first_name, is_active, created_at, updated_at
FROM users
ORDER BY id
LIMIT ? OFFSET ?`)

	entries := []user.DirectoryEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return entries, nil
}

func (r *DirectoryRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return total, nil
}

func (r *DirectoryRepository) RoleNames(ctx context.Context, userIDs []int64) (map[int64][]string, error) {
	names := make(map[int64][]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	query, args, err := sqlx.In(`
SELECT ur.user_id, r.name
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id IN (?)
ORDER BY ur.user_id, r.name`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("build role query: %w", err)
	}

	var rows []struct {
		UserID int64  `db:"user_id"`
		Name   string `db:"name"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load role names: %w", err)
	}

	for _, row := range rows {
		names[row.UserID] = append(names[row.UserID], row.Name)
	}
	return names, nil
}

// UnitOfWork builds user repositories over the store, bound to the transaction when one is open.
type UnitOfWork struct {
	store *store.Store
	root  *gorm.DB
}

func NewUnitOfWork(s *store.Store, root *gorm.DB) *UnitOfWork {
	return &UnitOfWork{store: s, root: root}
}

func (u *UnitOfWork) Repositories() user.Repositories {
	return NewRepositories(u.root)
}

func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(repos user.Repositories) error) error {
	return u.store.WithinTx(ctx, func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

func NewRepositories(db *gorm.DB) user.Repositories {
	return user.Repositories{
		Users:       NewUserRepository(db),
		Sessions:    sessionPostgres.NewSessionRepository(db),
		Permissions: permissionPostgres.NewPermissionRepository(db),
	}
}
