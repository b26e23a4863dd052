package handlers

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/tech-arch1tect/gatekeep/services/users"
	"github.com/tech-arch1tect/gatekeep/validation"
)

const (
	maxStringLength   = 255
	minPasswordLength = 8
)

type RegisterRequest struct {
	Name                 string `json:"name" form:"name"`
	Email                string `json:"email" form:"email"`
	Password             string `json:"password" form:"password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation"`
}

func (r *RegisterRequest) Validate() error {
	r.Email = users.NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)

	errs := validation.Errors{}
	required(errs, "name", r.Name)
	maxLength(errs, "name", r.Name)
	email(errs, "email", r.Email)
	password(errs, r.Password)
	confirmed(errs, r.Password, r.PasswordConfirmation)
	return result(errs)
}

type LoginRequest struct {
	Email      string `json:"email" form:"email"`
	Password   string `json:"password" form:"password"`
	DeviceName string `json:"device_name" form:"device_name"`
	Remember   bool   `json:"remember" form:"remember"`
}

func (r *LoginRequest) Validate() error {
	r.Email = users.NormalizeEmail(r.Email)

	errs := validation.Errors{}
	email(errs, "email", r.Email)
	password(errs, r.Password)
	maxLength(errs, "device_name", r.DeviceName)
	return result(errs)
}

type EmailRequest struct {
	Email string `json:"email" form:"email"`
}

func (r *EmailRequest) Validate() error {
	r.Email = users.NormalizeEmail(r.Email)

	errs := validation.Errors{}
	email(errs, "email", r.Email)
	return result(errs)
}

type ResetPasswordRequest struct {
	Email                string `json:"email" form:"email"`
	Token                string `json:"token" form:"token"`
	Password             string `json:"password" form:"password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation"`
}

func (r *ResetPasswordRequest) Validate() error {
	r.Email = users.NormalizeEmail(r.Email)

	errs := validation.Errors{}
	email(errs, "email", r.Email)
	required(errs, "token", r.Token)
	required(errs, "password", r.Password)
	required(errs, "password_confirmation", r.PasswordConfirmation)
	confirmed(errs, r.Password, r.PasswordConfirmation)
	return result(errs)
}

func result(errs validation.Errors) error {
	if errs.Empty() {
		return nil
	}
	return &InputError{Errors: errs}
}

func required(errs validation.Errors, field, value string) bool {
	if strings.TrimSpace(value) == "" {
		errs.Add(field, fmt.Sprintf("The %s field is required.", label(field)))
		return false
	}
	return true
}

func maxLength(errs validation.Errors, field, value string) {
	if utf8.RuneCountInString(value) > maxStringLength {
		errs.Add(field, fmt.Sprintf("The %s field must not be greater than %d characters.", label(field), maxStringLength))
	}
}

func email(errs validation.Errors, field, value string) {
	if !required(errs, field, value) {
		return
	}
	maxLength(errs, field, value)

	// display names and comments are not addresses
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		errs.Add(field, fmt.Sprintf("The %s field must be a valid email address.", label(field)))
	}
}

func password(errs validation.Errors, value string) {
	if !required(errs, "password", value) {
		return
	}
	if utf8.RuneCountInString(value) < minPasswordLength {
		errs.Add("password", fmt.Sprintf("The password field must be at least %d characters.", minPasswordLength))
	}
}

func confirmed(errs validation.Errors, value, confirmation string) {
	if value != "" && value != confirmation {
		errs.Add("password", "The password field confirmation does not match.")
	}
}

func label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}
