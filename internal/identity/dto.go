package identity

import (
	"github.com/formulapm/access-management/internal"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ChangeRoleDTO is the request payload for migrating an identity's role.
// Role strings are validated against the closed role set in the service, not
// here, so the rejection carries the proper reason code.
type ChangeRoleDTO struct {
	Role      string `json:"role" validate:"required"`
	Seniority string `json:"seniority"`
}

func (dto ChangeRoleDTO) Validate() error {
	if err := validate.Struct(dto); err != nil {
		return internal.NewValidationFieldError("role", "role is required", internal.ErrCodeInvalidRequest)
	}
	return nil
}
