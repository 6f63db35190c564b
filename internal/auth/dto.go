package auth

import (
	"strings"

	"github.com/frahmantamala/access-management/internal/core/common/validation"
)

type RegisterDTO struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	LastName  *string `json:"nom,omitempty"`
	FirstName *string `json:"prenom,omitempty"`
}

// Validate checks required fields. Email is trimmed; the password is taken as is.
func (d *RegisterDTO) Validate() error {
	d.Email = strings.TrimSpace(d.Email)
	d.LastName = blankToNil(d.LastName)
	d.FirstName = blankToNil(d.FirstName)

	if err := validation.ValidateCredentials(d.Email, d.Password); err != nil {
		return err
	}
	if err := validation.ValidateNames(d.LastName, d.FirstName); err != nil {
		return err
	}
	return nil
}

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d *LoginDTO) Validate() error {
	d.Email = strings.TrimSpace(d.Email)
	if err := validation.ValidateCredentials(d.Email, d.Password); err != nil {
		return err
	}
	return nil
}

type RegisterResponse struct {
	Message string     `json:"message"`
	User    PublicUser `json:"user"`
}

type LogoutResponse struct {
	Message string `json:"message"`
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
