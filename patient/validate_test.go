package patient

import (
	"errors"
	"testing"
)

func valid() Registration {
	return Registration{
		FullName:    "  María Núñez ",
		Email:       "Maria.Nunez@gmail.com",
		CountryCode: "+598",
		PhoneNumber: "91234567",
	}
}

func TestValidate_OK(t *testing.T) {
	r := valid()
	if err := NewValidator().Validate(&r); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if r.FullName != "María Núñez" {
		t.Errorf("FullName = %q, want trimmed", r.FullName)
	}
	if r.Email != "marianunez@gmail.com" {
		t.Errorf("Email = %q, want normalized", r.Email)
	}
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Registration)
		field   string
		message string
	}{
		{"missing name", func(r *Registration) { r.FullName = " " }, "fullName", "Full name is required"},
		{"digits in name", func(r *Registration) { r.FullName = "R2D2" }, "fullName", "Full name must contain only letters"},
		{"bad email", func(r *Registration) { r.Email = "nope" }, "email", "Invalid email format"},
		{"not gmail", func(r *Registration) { r.Email = "ana@outlook.com" }, "email", "Only @gmail.com addresses are allowed"},
		{"no plus", func(r *Registration) { r.CountryCode = "598" }, "countryCode", "Invalid country code format (e.g., +598)"},
		{"long code", func(r *Registration) { r.CountryCode = "+12345" }, "countryCode", "Invalid country code format (e.g., +598)"},
		{"short phone", func(r *Registration) { r.PhoneNumber = "12345" }, "phoneNumber", "Phone number must contain 6-15 digits"},
		{"phone letters", func(r *Registration) { r.PhoneNumber = "555-1234" }, "phoneNumber", "Phone number must contain 6-15 digits"},
		{"missing phone", func(r *Registration) { r.PhoneNumber = "" }, "phoneNumber", "Phone number is required"},
	}
	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)
			err := v.Validate(&r)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if len(verr.Fields) != 1 {
				t.Fatalf("fields = %+v, want exactly one", verr.Fields)
			}
			if got := verr.Fields[0]; got.Field != tt.field || got.Message != tt.message {
				t.Errorf("got %+v, want {%s %s}", got, tt.field, tt.message)
			}
		})
	}
}

func TestValidate_ReportsEveryField(t *testing.T) {
	r := Registration{}
	err := NewValidator().Validate(&r)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v", err)
	}
	if len(verr.Fields) != 4 {
		t.Errorf("fields = %+v, want 4", verr.Fields)
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := map[string]string{
		"A.B.C@Gmail.com":        "abc@gmail.com",
		"ana+promo@gmail.com":    "ana@gmail.com",
		"ana.b+x@googlemail.com": "anab@gmail.com",
		"First.Last@Example.com": "first.last@example.com",
		"  spaced@gmail.com ":    "spaced@gmail.com",
		"no-at-sign":             "no-at-sign",
	}
	for in, want := range tests {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
