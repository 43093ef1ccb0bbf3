package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"arbiter/backend/internal/apperr"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_IsErrValidation(t *testing.T) {
	err := fmt.Errorf("lifecycle: create: %w", apperr.Invalid("topic", "must not be empty"))

	assert.True(t, errors.Is(err, apperr.ErrValidation))

	var verr *apperr.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, "topic", verr.Field)
	assert.Equal(t, "topic: must not be empty", verr.Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{apperr.Invalid("x", "bad"), http.StatusBadRequest},
		{apperr.ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", apperr.ErrForbidden), http.StatusForbidden},
		{apperr.ErrNotFound, http.StatusNotFound},
		{apperr.ErrExpired, http.StatusGone},
		{apperr.ErrAlreadyRejected, http.StatusConflict},
		{apperr.ErrAlreadyAccepted, http.StatusConflict},
		{apperr.ErrCaseNotAccepted, http.StatusConflict},
		{apperr.ErrHearingJudged, http.StatusConflict},
		{apperr.ErrJudgeInProgress, http.StatusConflict},
		{apperr.ErrAdjudicationUnavailable, http.StatusServiceUnavailable},
		{apperr.ErrAdjudicationMalformed, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.HTTPStatus(tt.err))
		})
	}
}
