package postgres

import (
	"context"
	"time"

	userDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/user"
	"github.com/frahmantamala/access-management/internal/permission"
	"gorm.io/gorm"
)

type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) permission.RepositoryAPI {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) PermissionsForUser(ctx context.Context, userID int64) ([]*userDatamodel.Permission, error) {
	granted := r.db.
		Table("role_permissions AS rp").
		Select("rp.permission_id").
		Joins("JOIN user_roles ur ON ur.role_id = rp.role_id").
		Where("ur.user_id = ?", userID)

	var perms []*userDatamodel.Permission
	err := r.db.WithContext(ctx).
		Where("id IN (?)", granted).
		Order("resource ASC, action ASC").
		Find(&perms).Error
	return perms, err
}

func (r *PermissionRepository) FindRoleByName(ctx context.Context, name string) (*userDatamodel.Role, error) {
	var role userDatamodel.Role
	if err := r.db.WithContext(ctx).Where("name = ?", name).Take(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *PermissionRepository) AssignRole(ctx context.Context, userID, roleID int64, at time.Time) error {
	return r.db.WithContext(ctx).Create(&userDatamodel.UserRole{
		UserID:     userID,
		RoleID:     roleID,
		AssignedAt: at,
	}).Error
}

func (r *PermissionRepository) RemoveRoles(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&userDatamodel.UserRole{}).Error
}
