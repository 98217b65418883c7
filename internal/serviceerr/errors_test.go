package serviceerr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name        string
		err         *serviceerr.Error
		expectedMsg string
	}{
		{
			name:        "Error with description",
			err:         &serviceerr.Error{Err: serviceerr.CodeNotFound, Description: "resource not found"},
			expectedMsg: "not_found: resource not found",
		},
		{
			name:        "Error without description",
			err:         &serviceerr.Error{Err: serviceerr.CodeInvalidRequest},
			expectedMsg: "invalid_request",
		},
		{
			name:        "Predefined error - ErrUnknown",
			err:         serviceerr.ErrUnknown,
			expectedMsg: "unknown: unknown error",
		},
		{
			name:        "Predefined error - ErrStateMismatch",
			err:         serviceerr.ErrStateMismatch,
			expectedMsg: "state_mismatch: unknown login state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedMsg, tt.err.Error())
		})
	}
}

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code               serviceerr.Code
		expectedHTTPStatus int
	}{
		{code: serviceerr.CodeInvalidRequest, expectedHTTPStatus: http.StatusBadRequest},
		{code: serviceerr.CodeInvalidGrant, expectedHTTPStatus: http.StatusBadRequest},
		{code: serviceerr.CodeStateMismatch, expectedHTTPStatus: http.StatusBadRequest},
		{code: serviceerr.CodeUnauthorizedClient, expectedHTTPStatus: http.StatusUnauthorized},
		{code: serviceerr.CodeUnauthenticated, expectedHTTPStatus: http.StatusUnauthorized},
		{code: serviceerr.CodeRenewalUnrecoverable, expectedHTTPStatus: http.StatusUnauthorized},
		{code: serviceerr.CodeAccessDenied, expectedHTTPStatus: http.StatusForbidden},
		{code: serviceerr.CodeInvalidCSRFToken, expectedHTTPStatus: http.StatusForbidden},
		{code: serviceerr.CodeConflict, expectedHTTPStatus: http.StatusConflict},
		{code: serviceerr.CodeNotFound, expectedHTTPStatus: http.StatusNotFound},
		{code: serviceerr.CodeStateExpired, expectedHTTPStatus: http.StatusGone},
		{code: serviceerr.CodeFingerprintMismatch, expectedHTTPStatus: http.StatusPreconditionFailed},
		{code: serviceerr.CodeInvalidAtHashToken, expectedHTTPStatus: http.StatusPreconditionFailed},
		{code: serviceerr.CodeTemporarilyUnavailable, expectedHTTPStatus: http.StatusServiceUnavailable},
		{code: serviceerr.CodeInvalidOIDCProvider, expectedHTTPStatus: http.StatusInternalServerError},
		{code: serviceerr.CodeUnknown, expectedHTTPStatus: http.StatusInternalServerError},
		{code: serviceerr.Code("something_else"), expectedHTTPStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := &serviceerr.Error{Err: tt.code}
			assert.Equal(t, tt.expectedHTTPStatus, err.HTTPStatus())
		})
	}
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("completing sign-in: %w", serviceerr.New(serviceerr.CodeStateExpired, "state abc expired"))

	assert.ErrorIs(t, err, serviceerr.ErrStateExpired)
	assert.NotErrorIs(t, err, serviceerr.ErrStateMismatch)
	assert.False(t, errors.Is(errors.New("state_expired"), serviceerr.ErrStateExpired))
}
