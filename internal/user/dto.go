package user

import (
	"strings"

	"github.com/frahmantamala/access-management/internal/core/common/pagination"
	"github.com/frahmantamala/access-management/internal/core/common/validation"
	"github.com/frahmantamala/access-management/internal/permission"
)

// UpdateUserDTO carries the editable fields. Omitted fields are left unchanged.
type UpdateUserDTO struct {
	LastName  *string `json:"nom"`
	FirstName *string `json:"prenom"`
	Active    *bool   `json:"actif"`
}

func (d UpdateUserDTO) Validate() error {
	if err := validation.ValidateNames(d.LastName, d.FirstName); err != nil {
		return err
	}
	return nil
}

func (d UpdateUserDTO) fields() map[string]interface{} {
	fields := map[string]interface{}{}
	if d.LastName != nil {
		fields["last_name"] = nullableName(*d.LastName)
	}
	if d.FirstName != nil {
		fields["first_name"] = nullableName(*d.FirstName)
	}
	if d.Active != nil {
		fields["is_active"] = *d.Active
	}
	return fields
}

// nullableName trims a name and maps blank input to NULL, as registration does.
func nullableName(name string) interface{} {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

type ListResponse struct {
	Users      []User          `json:"users"`
	Pagination pagination.Meta `json:"pagination"`
}

type MutationResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user"`
}

type PermissionsResponse struct {
	UserID      int64                   `json:"userId"`
	Permissions []permission.Permission `json:"permissions"`
}
