package postgres

import (
	"context"

	userDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/user"
	"github.com/frahmantamala/access-management/internal/role"
	"gorm.io/gorm"
)

type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) role.RepositoryAPI {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) GetAll(ctx context.Context) ([]*userDatamodel.Role, error) {
	var roles []*userDatamodel.Role
	err := r.db.WithContext(ctx).Order("name ASC").Find(&roles).Error
	return roles, err
}

// PermissionNames maps role id to the names of its permissions, ordered by resource and action.
func (r *RoleRepository) PermissionNames(ctx context.Context) (map[int64][]string, error) {
	var rows []struct {
		RoleID int64
		Name   string
	}
	err := r.db.WithContext(ctx).
		Table("role_permissions AS rp").
		Select("rp.role_id AS role_id, p.name AS name").
		Joins("JOIN permissions p ON p.id = rp.permission_id").
		Order("rp.role_id, p.resource, p.action").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	names := make(map[int64][]string)
	for _, row := range rows {
		names[row.RoleID] = append(names[row.RoleID], row.Name)
	}
	return names, nil
}
