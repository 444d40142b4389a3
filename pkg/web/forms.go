package web

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"

	"github.com/ideamans/asiriapos-web/pkg/apiclient"
)

var (
	phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)
	emailPattern = regexp.MustCompile(`^([a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+)$`)
)

const (
	msgRequired      = "This field is required."
	msgLoginPhone    = "Enter a valid phone number (10-15 digits, may start with +)"
	msgRegisterPhone = "Enter a valid phone number (10-15 digits, may start with +)."
	msgEmail         = "Enter a valid email address."
	msgPasswordMatch = "Passwords do not match."
	msgNumber        = "Enter a number."
	msgWholeNumber   = "Enter a whole number."
	msgChoice        = "Select a valid choice."
	msgInvalid       = "Enter a valid value."
)

var (
	formDecoder = form.NewDecoder()
	validate    = newValidator()
)

// newValidator reports fields under their form names and registers the
// pattern checks used by the account forms.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		return name
	})

	for tag, pattern := range map[string]*regexp.Regexp{
		"phone_number":  phonePattern,
		"email_address": emailPattern,
	} {
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return pattern.MatchString(fl.Field().String())
		}); err != nil {
			panic(err)
		}
	}
	v.RegisterStructValidation(passwordsMatch, RegistrationForm{})
	return v
}

// passwordsMatch only compares the two passwords once both are present.
func passwordsMatch(sl validator.StructLevel) {
	f := sl.Current().Interface().(RegistrationForm)
	if f.Password != "" && f.PasswordConfirmation != "" && f.Password != f.PasswordConfirmation {
		sl.ReportError(f.PasswordConfirmation, "password_confirmation", "PasswordConfirmation", "password_match", "")
	}
}

// FieldErrors maps a form field name to its first error.
type FieldErrors map[string]string

func (e FieldErrors) add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

// collect turns validator output into per-field messages. messages overrides
// the text for individual tags.
func (e FieldErrors) collect(err error, messages map[string]string) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return
	}
	for _, fe := range verrs {
		e.add(fe.Field(), fieldMessage(fe, messages))
	}
}

func fieldMessage(fe validator.FieldError, messages map[string]string) string {
	if msg, ok := messages[fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "required":
		return msgRequired
	case "max":
		value, _ := fe.Value().(string)
		return fmt.Sprintf("Ensure this value has at most %s characters (it has %d).", fe.Param(), utf8.RuneCountInString(value))
	case "email_address":
		return msgEmail
	case "password_match":
		return msgPasswordMatch
	case "numeric":
		return msgNumber
	case "number":
		return msgWholeNumber
	case "uuid":
		return msgChoice
	}
	return fmt.Sprintf("Invalid value (%s).", fe.Tag())
}

// bind decodes values into dst, trims the listed fields and validates the
// result. Decoding problems are reported against the offending field.
func bind(values url.Values, dst any, messages map[string]string, trim ...*string) FieldErrors {
	errs := FieldErrors{}
	if err := formDecoder.Decode(dst, values); err != nil {
		var derrs form.DecodeErrors
		if errors.As(err, &derrs) {
			for field := range derrs {
				errs.add(field, msgInvalid)
			}
		}
	}
	for _, s := range trim {
		*s = strings.TrimSpace(*s)
	}
	errs.collect(validate.Struct(dst), messages)
	return errs
}

// LoginForm is the posted sign-in form.
type LoginForm struct {
	PhoneNumber string      `form:"phone_number" validate:"required,max=20,phone_number"`
	Password    string      `form:"password" validate:"required"`
	Errors      FieldErrors `form:"-"`
}

var loginMessages = map[string]string{"phone_number": msgLoginPhone}

func parseLoginForm(values url.Values) *LoginForm {
	f := &LoginForm{}
	f.Errors = bind(values, f, loginMessages, &f.PhoneNumber)
	return f
}

// Validate reports whether the bound form is usable.
func (f *LoginForm) Validate() bool { return len(f.Errors) == 0 }

// RegistrationForm is the posted sign-up form.
type RegistrationForm struct {
	StoreName            string      `form:"storename" validate:"required,max=100"`
	ClientName           string      `form:"client_name" validate:"required,max=100"`
	PhoneNumber          string      `form:"phone_number" validate:"required,max=20,phone_number"`
	Email                string      `form:"email" validate:"required,email_address"`
	Address              string      `form:"address" validate:"required,max=255"`
	Password             string      `form:"password" validate:"required"`
	PasswordConfirmation string      `form:"password_confirmation" validate:"required"`
	Errors               FieldErrors `form:"-"`
}

var registrationMessages = map[string]string{"phone_number": msgRegisterPhone}

func parseRegistrationForm(values url.Values) *RegistrationForm {
	f := &RegistrationForm{}
	f.Errors = bind(values, f, registrationMessages,
		&f.StoreName, &f.ClientName, &f.PhoneNumber, &f.Email, &f.Address)
	return f
}

// Validate reports whether the bound form can be submitted.
func (f *RegistrationForm) Validate() bool { return len(f.Errors) == 0 }

// Registration converts a validated form into the API payload.
func (f *RegistrationForm) Registration() apiclient.Registration {
	return apiclient.Registration{
		StoreName:            f.StoreName,
		ClientName:           f.ClientName,
		PhoneNumber:          f.PhoneNumber,
		Email:                f.Email,
		Password:             f.Password,
		PasswordConfirmation: f.PasswordConfirmation,
		Address:              f.Address,
	}
}
