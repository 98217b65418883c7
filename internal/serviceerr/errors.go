// Package serviceerr holds the coded errors returned by the console and their HTTP mapping.
package serviceerr

import "net/http"

type Code string

const (
	// RFC6749 authorization and token endpoint errors
	CodeInvalidRequest          Code = "invalid_request"
	CodeUnauthorizedClient      Code = "unauthorized_client"
	CodeAccessDenied            Code = "access_denied"
	CodeUnsupportedResponseType Code = "unsupported_response_type"
	CodeInvalidScope            Code = "invalid_scope"
	CodeServerError             Code = "server_error"
	CodeTemporarilyUnavailable  Code = "temporarily_unavailable"
	CodeInvalidClient           Code = "invalid_client"
	CodeInvalidGrant            Code = "invalid_grant"
	CodeUnsupportedGrantType    Code = "unsupported_grant_type"
	CodeLoginRequired           Code = "login_required"

	// console errors
	CodeUnknown                Code = "unknown"
	CodeConflict               Code = "conflict"
	CodeNotFound               Code = "not_found"
	CodeUnauthenticated        Code = "unauthenticated"
	CodeFingerprintMismatch    Code = "fingerprint_mismatch"
	CodeStateExpired           Code = "state_expired"
	CodeStateMismatch          Code = "state_mismatch"
	CodeInvalidCSRFToken       Code = "invalid_csrf_token"
	CodeInvalidOIDCProvider    Code = "invalid_oidc_provider"
	CodeInvalidAtHashToken     Code = "invalid_at_hash"
	CodeInvalidIDToken         Code = "invalid_id_token"
	CodeEndSessionNotSupported Code = "end_session_not_supported"
	CodeRenewalUnrecoverable   Code = "renewal_unrecoverable"
	CodeConfigurationMissing   Code = "configuration_missing"
)

type Error struct {
	Err         Code
	Description string
}

var (
	ErrInvalidRequest          = &Error{Err: CodeInvalidRequest}
	ErrUnauthorizedClient      = &Error{Err: CodeUnauthorizedClient, Description: "client is not authorized"}
	ErrAccessDenied            = &Error{Err: CodeAccessDenied, Description: "access denied"}
	ErrUnsupportedResponseType = &Error{Err: CodeUnsupportedResponseType, Description: "unsupported response type"}
	ErrInvalidScope            = &Error{Err: CodeInvalidScope, Description: "invalid scope"}
	ErrServerError             = &Error{Err: CodeServerError, Description: "server error"}
	ErrTemporarilyUnavailable  = &Error{Err: CodeTemporarilyUnavailable, Description: "temporarily unavailable"}
	ErrInvalidClient           = &Error{Err: CodeInvalidClient, Description: "invalid client"}
	ErrInvalidGrant            = &Error{Err: CodeInvalidGrant, Description: "invalid grant"}
	ErrUnsupportedGrantType    = &Error{Err: CodeUnsupportedGrantType, Description: "unsupported grant type"}

	ErrUnknown                = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrConflict               = &Error{Err: CodeConflict, Description: "already exists"}
	ErrNotFound               = &Error{Err: CodeNotFound, Description: "not found"}
	ErrUnauthenticated        = &Error{Err: CodeUnauthenticated, Description: "not signed in"}
	ErrFingerprintMismatch    = &Error{Err: CodeFingerprintMismatch, Description: "fingerprint mismatch"}
	ErrStateExpired           = &Error{Err: CodeStateExpired, Description: "state expired"}
	ErrStateMismatch          = &Error{Err: CodeStateMismatch, Description: "unknown login state"}
	ErrInvalidCSRFToken       = &Error{Err: CodeInvalidCSRFToken, Description: "invalid CSRF token"}
	ErrInvalidOIDCProvider    = &Error{Err: CodeInvalidOIDCProvider, Description: "invalid OIDC provider"}
	ErrInvalidAtHash          = &Error{Err: CodeInvalidAtHashToken, Description: "access token does not match at_hash"}
	ErrInvalidIDToken         = &Error{Err: CodeInvalidIDToken, Description: "invalid ID token"}
	ErrEndSessionNotSupported = &Error{Err: CodeEndSessionNotSupported, Description: "provider has no end session endpoint"}
	ErrRenewalUnrecoverable   = &Error{Err: CodeRenewalUnrecoverable, Description: "session cannot be renewed"}
	ErrConfigurationMissing   = &Error{Err: CodeConfigurationMissing, Description: "configuration missing"}
)

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

// Is matches errors by code so that wrapped copies with another description still match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Err == t.Err
}

func (e *Error) HTTPStatus() int {
	return e.Err.HTTPStatus()
}

func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidRequest, CodeUnsupportedResponseType, CodeInvalidScope,
		CodeInvalidGrant, CodeUnsupportedGrantType, CodeStateMismatch:
		return http.StatusBadRequest
	case CodeUnauthorizedClient, CodeInvalidClient, CodeUnauthenticated,
		CodeLoginRequired, CodeRenewalUnrecoverable:
		return http.StatusUnauthorized
	case CodeAccessDenied, CodeInvalidCSRFToken:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeStateExpired:
		return http.StatusGone
	case CodeFingerprintMismatch, CodeInvalidAtHashToken, CodeInvalidIDToken:
		return http.StatusPreconditionFailed
	case CodeTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New returns an error carrying code with a request specific description.
func New(code Code, description string) *Error {
	return &Error{Err: code, Description: description}
}
