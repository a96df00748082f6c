// Package service contains the business logic layer of the registry.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take plain Go values and return domain errors from apperror.
// They never see an *http.Request and never pick a status code; the
// handler package translates errors to HTTP in one place.
//
// Every service depends on repository.UserRepository (an interface), not on
// the SQLite type, so tests run against an in-memory fake.
package service

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sakif/student-registry/internal/apperror"
)

// validationError converts the result of an ozzo Validate call into an
// apperror validation error. The Field is the first failing field in
// alphabetical order; the Message lists every failing field.
//
// Errors that are not validation.Errors (rule misconfiguration) are
// returned as they are and end up as 500s.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for field := range verrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	field := ""
	if len(fields) > 0 {
		field = fields[0]
	}
	return apperror.ValidationFailed(field, verrs.Error())
}
