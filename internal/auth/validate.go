package auth

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rewearify/rewearify/internal/identity"
)

// SignupRequest carries the registration form.
type SignupRequest struct {
	Name            string        `json:"name" validate:"required"`
	Email           string        `json:"email" validate:"required,email"`
	Password        string        `json:"password" validate:"required,min=6"`
	ConfirmPassword string        `json:"confirmPassword" validate:"required,eqfield=Password"`
	Role            identity.Role `json:"role" validate:"required,oneof=donor recipient"`
	Organization    string        `json:"organization,omitempty" validate:"required_if=Role recipient"`
	Location        string        `json:"location" validate:"required"`
	Phone           string        `json:"phone,omitempty"`
	Bio             string        `json:"bio,omitempty"`
}

// Normalize trims the text fields and folds the email.
func (r SignupRequest) Normalize() SignupRequest {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = identity.NormalizeEmail(r.Email)
	r.Role = identity.ParseRole(string(r.Role))
	r.Organization = strings.TrimSpace(r.Organization)
	r.Location = strings.TrimSpace(r.Location)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Bio = strings.TrimSpace(r.Bio)
	return r
}

// Validate checks the form and returns a *ValidationError listing every
// failing field.
func (r SignupRequest) Validate() error {
	return validateStruct(r.Normalize(), signupMessages)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type resetForm struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

type forgotForm struct {
	Email string `json:"email" validate:"required,email"`
}

// ValidateLogin checks the login form shape before any backend call.
func ValidateLogin(email, password string) error {
	return validateStruct(loginForm{Email: identity.NormalizeEmail(email), Password: password}, loginMessages)
}

// ValidateReset checks a reset token and the new password.
func ValidateReset(token, password string) error {
	return validateStruct(resetForm{Token: strings.TrimSpace(token), Password: password}, signupMessages)
}

// ValidateForgot checks the email of a reset request.
func ValidateForgot(email string) error {
	return validateStruct(forgotForm{Email: identity.NormalizeEmail(email)}, signupMessages)
}

type fieldCheck struct {
	field string
	value *string
	tag   string
}

// ValidateProfile checks the fields a patch sets. Present fields follow the
// signup rules: name and location stay non-empty, email stays well formed and
// recipients keep an organization.
func ValidateProfile(role identity.Role, patch identity.ProfilePatch) error {
	checks := []fieldCheck{
		{"name", patch.Name, "required"},
		{"email", patch.Email, "required,email"},
		{"location", patch.Location, "required"},
	}
	if role == identity.RoleRecipient {
		checks = append(checks, fieldCheck{"organization", patch.Organization, "required"})
	}
	out := &ValidationError{Fields: map[string]string{}}
	for _, c := range checks {
		if c.value == nil {
			continue
		}
		var fieldErrs validator.ValidationErrors
		if !errors.As(validate.Var(*c.value, c.tag), &fieldErrs) || len(fieldErrs) == 0 {
			continue
		}
		out.Fields[c.field] = signupMessages[c.field+"."+fieldErrs[0].Tag()]
	}
	if len(out.Fields) == 0 {
		return nil
	}
	return out
}

var signupMessages = map[string]string{
	"name.required":            "Name is required",
	"email.required":           "Email is required",
	"email.email":              "Email is invalid",
	"password.required":        "Password is required",
	"password.min":             "Password must be at least 6 characters",
	"confirmPassword.required": "Please confirm your password",
	"confirmPassword.eqfield":  "Passwords do not match",
	"role.required":            "Please select a role",
	"role.oneof":               "Please select a role",
	"organization.required_if": "Organization is required for recipients",
	"organization.required":    "Organization is required for recipients",
	"location.required":        "Location is required",
	"token.required":           "Reset token is required",
}

var loginMessages = map[string]string{
	"email.required":    "Email is required",
	"email.email":       "Email is invalid",
	"password.required": "Password is required",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateStruct(s any, messages map[string]string) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := fe.Field()
		if msg, ok := messages[field+"."+fe.Tag()]; ok {
			out.Fields[field] = msg
			continue
		}
		out.Fields[field] = fe.Error()
	}
	return out
}
