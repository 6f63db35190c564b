package validation

import (
	"fmt"
	"strings"

	errors "github.com/frahmantamala/access-management/internal"
)

const (
	MaxEmailLength    = 255
	MaxPasswordLength = 72 // bcrypt ignores anything past 72 bytes
	MaxNameLength     = 100
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

type ValidationBuilder struct {
	fields []FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{
		fields: make([]FieldValidator, 0),
	}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := FieldValidator{
		FieldName:  name,
		Value:      value,
		Validators: make([]ValidatorFunc, 0),
	}
	v.fields = append(v.fields, fv)
	return &v.fields[len(v.fields)-1]
}

func (fv *FieldValidator) Required(code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		message := fmt.Sprintf("%s is required", fv.FieldName)
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return errors.NewValidationFieldError(fv.FieldName, message, code)
			}
		case int64:
			if v == 0 {
				return errors.NewValidationFieldError(fv.FieldName, message, code)
			}
		case *string:
			if v == nil || strings.TrimSpace(*v) == "" {
				return errors.NewValidationFieldError(fv.FieldName, message, code)
			}
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MinInt(min int64, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(int64); ok && v < min {
			message := fmt.Sprintf("%s must be at least %d", fv.FieldName, min)
			return errors.NewValidationFieldError(fv.FieldName, message, code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MaxLength(max int) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case *string:
			if v == nil {
				return nil
			}
			s = *v
		default:
			return nil
		}
		if len(s) > max {
			message := fmt.Sprintf("%s must not exceed %d characters", fv.FieldName, max)
			return errors.NewValidationFieldError(fv.FieldName, message, errors.ErrCodeValidationFailed)
		}
		return nil
	})
	return fv
}

// Validate runs every field and folds all failures into one VALIDATION_FAILED error.
func (v *ValidationBuilder) Validate() *errors.AppError {
	var validationErrors []errors.ValidationError

	for _, field := range v.fields {
		for _, validator := range field.Validators {
			appErr := validator(field.Value)
			if appErr == nil {
				continue
			}
			if details, ok := appErr.Details.(errors.ValidationErrors); ok {
				validationErrors = append(validationErrors, details.Errors...)
				continue
			}
			validationErrors = append(validationErrors, errors.ValidationError{
				Field:   field.FieldName,
				Message: appErr.Message,
				Code:    string(appErr.Code),
			})
		}
	}

	if len(validationErrors) > 0 {
		return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
			WithDetails(errors.ValidationErrors{Errors: validationErrors})
	}

	return nil
}

// ValidateCredentials checks the email/password pair shared by registration and login.
func ValidateCredentials(email, password string) *errors.AppError {
	validator := NewValidator()
	validator.Field("email", email).
		Required(errors.ErrCodeInvalidEmail).
		MaxLength(MaxEmailLength)
	validator.Field("password", password).
		Required(errors.ErrCodeInvalidPassword).
		MaxLength(MaxPasswordLength)
	return validator.Validate()
}

func ValidateNames(lastName, firstName *string) *errors.AppError {
	validator := NewValidator()
	validator.Field("nom", lastName).MaxLength(MaxNameLength)
	validator.Field("prenom", firstName).MaxLength(MaxNameLength)
	return validator.Validate()
}

func ValidateID(field string, id int64) *errors.AppError {
	validator := NewValidator()
	validator.Field(field, id).MinInt(1, errors.ErrCodeInvalidID)
	return validator.Validate()
}
