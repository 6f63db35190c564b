package role

import (
	"context"

	userDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/user"
)

// Role is a catalog entry together with the permission names it grants.
type Role struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type RepositoryAPI interface {
	GetAll(ctx context.Context) ([]*userDatamodel.Role, error)
	PermissionNames(ctx context.Context) (map[int64][]string, error)
}

func FromDataModel(r *userDatamodel.Role, permissions []string) Role {
	if permissions == nil {
		permissions = []string{}
	}
	return Role{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: permissions,
	}
}
