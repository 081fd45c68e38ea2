package auth

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/printhaus/storeauth/profiles"
	"github.com/printhaus/storeauth/users"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RegisterRequest carries a registration submission. The address is only
// used for storefront registrations, where a profile row is created
// alongside the account.
type RegisterRequest struct {
	Email    string            `json:"email" validate:"required,email"`
	Password string            `json:"password" validate:"required"`
	Name     string            `json:"name" validate:"required,max=100"`
	Phone    string            `json:"phone" validate:"omitempty,min=7,max=20"`
	Address  *profiles.Address `json:"address,omitempty"`
}

// Validate checks field shape and password strength.
func (r *RegisterRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return fmt.Errorf("invalid %s", fieldName(errs[0]))
		}
		return err
	}
	return users.ValidatePasswordStrength(r.Password)
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Email":
		return "email"
	case "Password":
		return "password"
	case "Name":
		return "name"
	case "Phone":
		return "phone"
	}
	return fe.Field()
}
