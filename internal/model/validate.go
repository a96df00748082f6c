package model

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Validation limits. MaxPasswordBytes matches bcrypt's input limit. Password
// strength beyond non-empty is left to the clients.
const (
	MinPasswordBytes    = 1
	MaxPasswordBytes    = 72
	MaxNameLength       = 100
	MaxCourseLength     = 50
	MaxGenderLength     = 30
	MaxMiddleInitialLen = 3
)

// Normalize trims surrounding whitespace from every text field.
func (f *StudentFields) Normalize() {
	f.LastName = strings.TrimSpace(f.LastName)
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.MiddleInitial = strings.TrimSpace(f.MiddleInitial)
	f.Course = strings.TrimSpace(f.Course)
	f.Gender = strings.TrimSpace(f.Gender)
}

// Validate checks the profile fields. Error keys are the JSON field names.
func (f StudentFields) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.LastName, validation.Required, validation.RuneLength(1, MaxNameLength)),
		validation.Field(&f.FirstName, validation.Required, validation.RuneLength(1, MaxNameLength)),
		validation.Field(&f.MiddleInitial, validation.RuneLength(0, MaxMiddleInitialLen)),
		validation.Field(&f.Course, validation.Required, validation.RuneLength(1, MaxCourseLength)),
		validation.Field(&f.Year, validation.Required, validation.Min(1)),
		validation.Field(&f.Gender, validation.Required, validation.RuneLength(1, MaxGenderLength)),
	)
}

// Normalize lower-cases and trims the email and normalizes the profile fields.
// The password is left untouched.
func (r *Registration) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.StudentFields.Normalize()
}

// Validate checks the credentials and the embedded profile fields and
// reports every failing field at once.
func (r Registration) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordBytes, MaxPasswordBytes)),
	)
	return mergeErrors(err, r.StudentFields.Validate())
}

// NormalizeEmail is applied on every write and lookup so that
// "A@X.com" and "a@x.com" are the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// mergeErrors combines two results of validation.ValidateStruct. Anything
// that is not a validation.Errors map is an internal error and wins.
func mergeErrors(a, b error) error {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	ae, ok := a.(validation.Errors)
	if !ok {
		return a
	}
	be, ok := b.(validation.Errors)
	if !ok {
		return b
	}
	merged := validation.Errors{}
	for k, v := range ae {
		merged[k] = v
	}
	for k, v := range be {
		merged[k] = v
	}
	return merged
}
