package approval

import (
	"github.com/formulapm/access-management/internal"
	"github.com/formulapm/access-management/internal/authz"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// EvaluateDTO is the request payload for evaluating an amount against the
// caller's approval limit.
type EvaluateDTO struct {
	Resource string          `json:"resource" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

func (dto EvaluateDTO) Validate() error {
	if err := validate.Struct(dto); err != nil {
		return internal.NewValidationFieldError("resource", "resource is required", internal.ErrCodeInvalidRequest)
	}
	if !authz.ValidResource(dto.Resource) {
		return internal.NewValidationFieldError("resource", "malformed resource name", internal.ErrCodeInvalidRequest)
	}
	if dto.Amount.LessThanOrEqual(decimal.Zero) {
		return internal.NewValidationFieldError("amount", "amount must be positive", internal.ErrCodeInvalidAmount)
	}
	return nil
}

// RejectDTO is the request payload for rejecting an approval request.
type RejectDTO struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (dto RejectDTO) Validate() error {
	if err := validate.Struct(dto); err != nil {
		return internal.NewValidationFieldError("reason", "reason is required when rejecting a request", internal.ErrCodeValidationFailed)
	}
	return nil
}
