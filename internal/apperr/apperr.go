// Package apperr defines the error taxonomy shared by the case, hearing,
// appeal and verdict services, and the HTTP status each error maps to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed or missing input. Use ValidationError to
	// report the offending field.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals that a referenced case, hearing or verdict is absent.
	ErrNotFound = errors.New("not found")
	// ErrForbidden signals that the acting user may not perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized signals a missing or invalid identity.
	ErrUnauthorized = errors.New("unauthorized")

	ErrExpired         = errors.New("invitation expired")
	ErrAlreadyRejected = errors.New("invitation already rejected")
	ErrAlreadyAccepted = errors.New("invitation already accepted")
	ErrCaseNotAccepted = errors.New("case not accepted")
	ErrHearingJudged   = errors.New("hearing already judged")
	ErrJudgeInProgress = errors.New("hearing is being judged")

	// ErrAdjudicationUnavailable means the adjudicator could not be reached.
	// The hearing stays submitted, so the judge call can be retried.
	ErrAdjudicationUnavailable = errors.New("adjudication unavailable")
	// ErrAdjudicationMalformed means the adjudicator answered with something
	// that is not a JSON object. Needs human review.
	ErrAdjudicationMalformed = errors.New("adjudication response malformed")
)

// ValidationError reports a single invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) hold for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// HTTPStatus maps an error from the services to a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrAlreadyRejected),
		errors.Is(err, ErrAlreadyAccepted),
		errors.Is(err, ErrCaseNotAccepted),
		errors.Is(err, ErrHearingJudged),
		errors.Is(err, ErrJudgeInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrAdjudicationUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrAdjudicationMalformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
