package accounts

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors. Every failure of the core is one of these (possibly wrapped)
// and is a per-request outcome; none of them is fatal to the process.
var (
	ErrValidation            = errors.New("validation failed")
	ErrMissingParameter      = errors.New("missing callback parameter")
	ErrStateMismatch         = errors.New("oauth state mismatch")
	ErrProvider              = errors.New("identity provider error")
	ErrNoVerifiedEmail       = errors.New("no account email returned by provider")
	ErrUnknownProvider       = errors.New("unknown identity provider")
	ErrAccountTypeMismatch   = errors.New("account type mismatch")
	ErrAccountInactive       = errors.New("account inactive")
	ErrInvalidCredentials    = errors.New("invalid email and/or password")
	ErrEmailInUse            = errors.New("email address already in use")
	ErrTokenInvalidOrExpired = errors.New("token invalid or expired")
	ErrRequestAlreadyPending = errors.New("request already pending")
	ErrInsufficientPrivilege = errors.New("insufficient privileges")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrRateLimited           = errors.New("too many requests")
)

// Store errors. Store implementations translate their driver errors into
// these so that the core never depends on a particular backend.
var (
	ErrNotFound         = errors.New("not found")
	ErrEmailTaken       = errors.New("email already taken")
	ErrAliasTaken       = errors.New("alias already taken")
	ErrDuplicateToken   = errors.New("duplicate token value")
	ErrDomainExists     = errors.New("domain already exists")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Error codes returned to clients in AuthError.Code.
const (
	ErrCodeMissingField       = "missing_field"
	ErrCodeInvalidEmail       = "invalid_email"
	ErrCodeWeakPassword       = "weak_password"
	ErrCodePasswordMismatch   = "password_mismatch"
	ErrCodeEmailExists        = "email_exists"
	ErrCodeInvalidCreds       = "invalid_credentials"
	ErrCodeAccountInactive    = "account_inactive"
	ErrCodeAccountMismatch    = "account_type_mismatch"
	ErrCodeTokenInvalid       = "token_invalid"
	ErrCodeRequestPending     = "request_pending"
	ErrCodeHandshakeFailed    = "handshake_failed"
	ErrCodeProviderError      = "provider_error"
	ErrCodeNotFound           = "not_found"
	ErrCodeForbidden          = "forbidden"
	ErrCodeNotAuthenticated   = "not_authenticated"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInvalidTimezone    = "invalid_timezone"
	ErrCodeInvalidDomain      = "invalid_domain"
	ErrCodeDomainExists       = "domain_exists"
	ErrCodeServiceUnavailable = "service_unavailable"
)

// AuthError is a user-facing failure: a stable code, a message that is safe
// to show, and optionally the form field it relates to.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`

	err error
}

// NewAuthError creates an AuthError without an underlying cause.
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func validationError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field, err: ErrValidation}
}

func (e *AuthError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.err }

// storeError wraps an unexpected store failure so callers can tell it apart
// from the domain outcomes above.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// PublicError converts any error produced by this package into the AuthError
// and HTTP status presented to the end user. Messages never reveal which
// channel owns an email or whether a token ever existed.
func PublicError(err error) (*AuthError, int) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, http.StatusBadRequest
	}
	switch {
	case errors.Is(err, ErrValidation):
		return NewAuthError(ErrCodeMissingField, "The request is invalid.", ""), http.StatusBadRequest
	case errors.Is(err, ErrMissingParameter), errors.Is(err, ErrStateMismatch):
		return NewAuthError(ErrCodeHandshakeFailed, "The sign-in request could not be verified. Please try again.", ""), http.StatusBadRequest
	case errors.Is(err, ErrProvider):
		return NewAuthError(ErrCodeProviderError, "An error occurred while verifying the response. Please try again.", ""), http.StatusBadGateway
	case errors.Is(err, ErrNoVerifiedEmail):
		return NewAuthError(ErrCodeProviderError, "No valid account-based email address found.", ""), http.StatusBadRequest
	case errors.Is(err, ErrUnknownProvider), errors.Is(err, ErrNotFound):
		return NewAuthError(ErrCodeNotFound, "Not found", ""), http.StatusNotFound
	case errors.Is(err, ErrAccountTypeMismatch):
		return NewAuthError(ErrCodeAccountMismatch, "This email address cannot be used with this sign-in method.", "email"), http.StatusForbidden
	case errors.Is(err, ErrAccountInactive):
		return NewAuthError(ErrCodeAccountInactive, "Your account is inactive. Please check your mail box for the activation email.", "email"), http.StatusForbidden
	case errors.Is(err, ErrInvalidCredentials):
		return NewAuthError(ErrCodeInvalidCreds, "Invalid Email and/or password", "email"), http.StatusUnauthorized
	case errors.Is(err, ErrEmailInUse):
		return NewAuthError(ErrCodeEmailExists, "This email address is already in use", "email"), http.StatusConflict
	case errors.Is(err, ErrTokenInvalidOrExpired):
		return NewAuthError(ErrCodeTokenInvalid, "Invalid or expired link", ""), http.StatusNotFound
	case errors.Is(err, ErrRequestAlreadyPending):
		return NewAuthError(ErrCodeRequestPending, "You have already requested a password reset within the last 24 hours.", "email"), http.StatusTooManyRequests
	case errors.Is(err, ErrInsufficientPrivilege):
		return NewAuthError(ErrCodeForbidden, "Insufficient privileges", ""), http.StatusForbidden
	case errors.Is(err, ErrNotAuthenticated):
		return NewAuthError(ErrCodeNotAuthenticated, "Login required", ""), http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return NewAuthError(ErrCodeRateLimited, "Too many requests, please try again later.", ""), http.StatusTooManyRequests
	case errors.Is(err, ErrDomainExists):
		return NewAuthError(ErrCodeDomainExists, "That domain name is already in our system", "name"), http.StatusConflict
	}
	return NewAuthError(ErrCodeServiceUnavailable, "The service is temporarily unavailable. Please try again.", ""), http.StatusServiceUnavailable
}
