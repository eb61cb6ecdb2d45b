package patient

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	nameRE        = regexp.MustCompile(`^[a-zA-ZáéíóúÁÉÍÓÚñÑ\s]+$`)
	gmailRE       = regexp.MustCompile(`@gmail\.com$`)
	countryCodeRE = regexp.MustCompile(`^\+\d{1,4}$`)
	phoneRE       = regexp.MustCompile(`^\d{6,15}$`)
)

// Registration is the input to Service.Register.
type Registration struct {
	FullName      string `json:"fullName" validate:"required,personname"`
	Email         string `json:"email" validate:"required,email,gmail"`
	CountryCode   string `json:"countryCode" validate:"required,countrycode"`
	PhoneNumber   string `json:"phoneNumber" validate:"required,phonedigits"`
	DocumentPhoto string `json:"documentPhoto"`
}

// FieldError is one failed rule, reported as {field, message}.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "patient: invalid registration: " + strings.Join(parts, "; ")
}

var messages = map[string]string{
	"fullName.required":       "Full name is required",
	"fullName.personname":     "Full name must contain only letters",
	"email.required":          "Email is required",
	"email.email":             "Invalid email format",
	"email.gmail":             "Only @gmail.com addresses are allowed",
	"countryCode.required":    "Country code is required",
	"countryCode.countrycode": "Invalid country code format (e.g., +598)",
	"phoneNumber.required":    "Phone number is required",
	"phoneNumber.phonedigits": "Phone number must contain 6-15 digits",
}

// Validator checks registrations against the intake rules.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a Validator with the custom rules registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "personname", nameRE)
	mustRegister(v, "gmail", gmailRE)
	mustRegister(v, "countrycode", countryCodeRE)
	mustRegister(v, "phonedigits", phoneRE)
	return &Validator{v: v}
}

func mustRegister(v *validator.Validate, tag string, re *regexp.Regexp) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("patient: register validation %q: %v", tag, err))
	}
}

// Validate trims r, checks it and normalises the email. It returns a
// *ValidationError when any rule fails.
func (val *Validator) Validate(r *Registration) error {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.TrimSpace(r.Email)
	r.CountryCode = strings.TrimSpace(r.CountryCode)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)

	err := val.v.Struct(r)
	if err == nil {
		r.Email = NormalizeEmail(r.Email)
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("patient: validate: %w", err)
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		msg, ok := messages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = "Invalid value"
		}
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}

// NormalizeEmail lower-cases an address and, for Gmail, strips dots and
// any "+tag" from the local part, since Gmail delivers all of those
// spellings to the same mailbox.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	if domain == "googlemail.com" {
		domain = "gmail.com"
	}
	if domain == "gmail.com" {
		if i := strings.IndexByte(local, '+'); i >= 0 {
			local = local[:i]
		}
		local = strings.ReplaceAll(local, ".", "")
	}
	return local + "@" + domain
}
