// Package permission answers whether a user may perform an action on a resource.
// Grants are read from the store on every call; nothing is cached between calls.
package permission

import (
	"context"
	"time"

	errs "github.com/frahmantamala/access-management/internal"
	userDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/user"
)

type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// Matches is an exact, case-sensitive comparison on both dimensions.
func (p Permission) Matches(resource, action string) bool {
	return p.Resource == resource && p.Action == action
}

type RepositoryAPI interface {
	PermissionsForUser(ctx context.Context, userID int64) ([]*userDatamodel.Permission, error)
	FindRoleByName(ctx context.Context, name string) (*userDatamodel.Role, error)
	AssignRole(ctx context.Context, userID, roleID int64, at time.Time) error
	RemoveRoles(ctx context.Context, userID int64) error
}

type Evaluator struct {
	repo RepositoryAPI
}

func NewEvaluator(repo RepositoryAPI) *Evaluator {
	return &Evaluator{repo: repo}
}

func (e *Evaluator) WithRepository(repo RepositoryAPI) *Evaluator {
	return &Evaluator{repo: repo}
}

// HasPermission reports whether any role held by userID grants (resource, action).
// A user without roles, or an unknown user, has no permissions.
func (e *Evaluator) HasPermission(ctx context.Context, userID int64, resource, action string) (bool, error) {
	perms, err := e.PermissionsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Matches(resource, action) {
			return true, nil
		}
	}
	return false, nil
}

// PermissionsForUser lists the distinct permissions granted through all of the user's roles,
// ordered by resource then action.
func (e *Evaluator) PermissionsForUser(ctx context.Context, userID int64) ([]Permission, error) {
	rows, err := e.repo.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, errs.NewInternalError("failed to load permissions", err)
	}

	perms := make([]Permission, 0, len(rows))
	for _, row := range rows {
		perms = append(perms, FromDataModel(row))
	}
	return perms, nil
}

func FromDataModel(p *userDatamodel.Permission) Permission {
	return Permission{
		ID:          p.ID,
		Name:        p.Name,
		Resource:    p.Resource,
		Action:      p.Action,
		Description: p.Description,
	}
}
