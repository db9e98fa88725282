package user

import (
	"fmt"
	"net/http"
)

// DomainError is a structured, self-describing domain error used across the user module.
// It carries HTTP metadata so httpx can turn any domain error into the public
// error envelope without enumerating error types.
type DomainError struct {
	// Code is a stable, machine-readable business code (e.g., "ErrInvalidOTP").
	Code string

	// HTTPStatus is the HTTP status suggested for this error (e.g., 400, 401, 404, 409, 500).
	HTTPStatus int

	// Title is a short human summary; if empty the formatter will default to StatusText(HTTPStatus).
	Title string

	// Message is a human-readable message primarily for logs. When Detail is empty,
	// this is used as the public detail.
	Message string

	// Detail is a user-friendly, safe explanation for clients. If empty, Message is used.
	Detail string

	// TypeURI documents the error, e.g., "urn:problem:user/err-invalid-otp".
	TypeURI string

	// Context is an optional extension payload for clients (e.g., validation fields map).
	Context any

	// cause is the underlying error that triggered this one, if any.
	cause error
}

// Error satisfies the standard Go error interface.
// It includes the underlying cause's error message if it exists.
func (e *DomainError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Message
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is compares by Code so copies made with WithCause still match their sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a new instance of the DomainError, wrapping the provided cause.
func (e *DomainError) WithCause(err error) *DomainError {
	if err == nil {
		return e
	}
	cp := *e
	cp.cause = err
	return &cp
}

// WithDetail sets a public-friendly detail message for clients.
func (e *DomainError) WithDetail(detail string) *DomainError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithType sets the documentation URI for this error.
func (e *DomainError) WithType(uri string) *DomainError {
	cp := *e
	cp.TypeURI = uri
	return &cp
}

// WithContext attaches an extension payload for clients (e.g., validation fields).
func (e *DomainError) WithContext(ctx any) *DomainError {
	cp := *e
	cp.Context = ctx
	return &cp
}

// --- httpx.DomainProblem accessors ---

func (e *DomainError) ProblemCode() string { return e.Code }
func (e *DomainError) ProblemStatus() int {
	if e.HTTPStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTPStatus
}
func (e *DomainError) ProblemTitle() string { return e.Title }
func (e *DomainError) ProblemDetail() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Message
}
func (e *DomainError) ProblemTypeURI() string { return e.TypeURI }
func (e *DomainError) ProblemContext() any    { return e.Context }

// --- Pre-defined Domain Errors ---

var (
	// Resource & identity
	ErrNotFound = &DomainError{
		Code:       "ErrNotFound",
		HTTPStatus: http.StatusNotFound,
		Title:      "Not Found",
		Message:    "not found",
		TypeURI:    "urn:problem:user/err-not-found",
	}

	ErrUnauthorized = &DomainError{
		Code:       "ErrUnauthorized",
		HTTPStatus: http.StatusUnauthorized,
		Title:      "Unauthorized",
		Message:    "authentication required",
		TypeURI:    "urn:problem:user/err-unauthorized",
	}

	ErrInvalidSite = &DomainError{
		Code:       "ErrInvalidSite",
		HTTPStatus: http.StatusBadRequest,
		Title:      "Bad Request",
		Message:    "site does not exist",
		Detail:     "Invalid site",
		TypeURI:    "urn:problem:user/err-invalid-site",
	}

	// Signup
	ErrAccountExists = &DomainError{
		Code:       "ErrAccountExists",
		HTTPStatus: http.StatusBadRequest,
		Title:      "Bad Request",
		Message:    "account already exists",
		Detail:     "An account with this email already exists. Please sign in instead.",
		TypeURI:    "urn:problem:user/err-account-exists",
	}

	ErrSignupInProgress = &DomainError{
		Code:       "ErrSignupInProgress",
		HTTPStatus: http.StatusTooManyRequests,
		Title:      "Too Many Requests",
		Message:    "signup lock held for email",
		Detail:     "A signup for this email is already in progress. Please try again in a moment.",
		TypeURI:    "urn:problem:user/err-signup-in-progress",
	}

	ErrAccountCreateFailed = &DomainError{
		Code:       "ErrAccountCreateFailed",
		HTTPStatus: http.StatusInternalServerError,
		Title:      "Internal Server Error",
		Message:    "create account failed",
		Detail:     "Failed to create account. Please try again.",
		TypeURI:    "urn:problem:user/err-account-create-failed",
	}

	ErrOTPStoreFailed = &DomainError{
		Code:       "ErrOTPStoreFailed",
		HTTPStatus: http.StatusInternalServerError,
		Title:      "Internal Server Error",
		Message:    "store otp failed",
		Detail:     "Failed to create verification code. Please try again.",
		TypeURI:    "urn:problem:user/err-otp-store-failed",
	}

	ErrEmailSendFailed = &DomainError{
		Code:       "ErrEmailSendFailed",
		HTTPStatus: http.StatusInternalServerError,
		Title:      "Internal Server Error",
		Message:    "send verification email failed",
		Detail:     "Failed to send verification email. Please try again.",
		TypeURI:    "urn:problem:user/err-email-send-failed",
	}

	// One-time codes. Messages never say whether the email or the code was wrong.
	ErrInvalidOTP = &DomainError{
		Code:       "ErrInvalidOTP",
		HTTPStatus: http.StatusBadRequest,
		Title:      "Bad Request",
		Message:    "otp rejected",
		Detail:     "Invalid or expired verification code",
		TypeURI:    "urn:problem:user/err-invalid-otp",
	}

	ErrTooManyAttempts = &DomainError{
		Code:       "ErrTooManyAttempts",
		HTTPStatus: http.StatusTooManyRequests,
		Title:      "Too Many Requests",
		Message:    "otp attempts exhausted",
		Detail:     "Too many attempts. Please request a new code.",
		TypeURI:    "urn:problem:user/err-too-many-attempts",
	}

	ErrResendTooSoon = &DomainError{
		Code:       "ErrResendTooSoon",
		HTTPStatus: http.StatusTooManyRequests,
		Title:      "Too Many Requests",
		Message:    "resend cooldown active",
		Detail:     "Please wait before requesting another code.",
		TypeURI:    "urn:problem:user/err-resend-too-soon",
	}

	ErrRateLimited = &DomainError{
		Code:       "ErrRateLimited",
		HTTPStatus: http.StatusTooManyRequests,
		Title:      "Too Many Requests",
		Message:    "rate limit exceeded",
		Detail:     "Too many requests. Please try again later.",
		TypeURI:    "urn:problem:user/err-rate-limited",
	}

	// Login
	ErrInvalidCredentials = &DomainError{
		Code:       "ErrInvalidCredentials",
		HTTPStatus: http.StatusUnauthorized,
		Title:      "Unauthorized",
		Message:    "invalid email or password",
		Detail:     "Invalid email or password",
		TypeURI:    "urn:problem:user/err-invalid-credentials",
	}

	ErrEmailNotVerified = &DomainError{
		Code:       "ErrEmailNotVerified",
		HTTPStatus: http.StatusForbidden,
		Title:      "Forbidden",
		Message:    "email not verified",
		Detail:     "Please verify your email before signing in.",
		TypeURI:    "urn:problem:user/err-email-not-verified",
	}

	ErrInvalidMagicLink = &DomainError{
		Code:       "ErrInvalidMagicLink",
		HTTPStatus: http.StatusBadRequest,
		Title:      "Bad Request",
		Message:    "magic link rejected",
		Detail:     "This sign-in link is invalid or has expired.",
		TypeURI:    "urn:problem:user/err-invalid-magic-link",
	}

	// MFA
	ErrInvalidMFACode = &DomainError{
		Code:       "ErrInvalidMFACode",
		HTTPStatus: http.StatusBadRequest,
		Title:      "Bad Request",
		Message:    "mfa code rejected",
		Detail:     "Invalid verification code",
		TypeURI:    "urn:problem:user/err-invalid-mfa-code",
	}

	ErrInvalidMFAChallenge = &DomainError{
		Code:       "ErrInvalidMFAChallenge",
		HTTPStatus: http.StatusUnauthorized,
		Title:      "Unauthorized",
		Message:    "mfa challenge missing, expired or already used",
		Detail:     "Your sign-in attempt expired. Please sign in again.",
		TypeURI:    "urn:problem:user/err-invalid-mfa-challenge",
	}

	ErrMFANotEnabled = &DomainError{
		Code:       "ErrMFANotEnabled",
		HTTPStatus: http.StatusBadRequest,
		Title:      "Bad Request",
		Message:    "totp not enabled",
		Detail:     "Two-factor authentication is not enabled.",
		TypeURI:    "urn:problem:user/err-mfa-not-enabled",
	}

	ErrMFAAlreadyEnabled = &DomainError{
		Code:       "ErrMFAAlreadyEnabled",
		HTTPStatus: http.StatusConflict,
		Title:      "Conflict",
		Message:    "totp already enabled",
		Detail:     "Two-factor authentication is already enabled.",
		TypeURI:    "urn:problem:user/err-mfa-already-enabled",
	}

	ErrMFASetupRequired = &DomainError{
		Code:       "ErrMFASetupRequired",
		HTTPStatus: http.StatusBadRequest,
		Title:      "Bad Request",
		Message:    "totp setup not started",
		Detail:     "Start two-factor setup first.",
		TypeURI:    "urn:problem:user/err-mfa-setup-required",
	}

	// Devices & sessions
	ErrDeviceNotFound = &DomainError{
		Code:       "ErrDeviceNotFound",
		HTTPStatus: http.StatusNotFound,
		Title:      "Not Found",
		Message:    "trusted device not found",
		Detail:     "Device not found",
		TypeURI:    "urn:problem:user/err-device-not-found",
	}

	ErrSessionNotFound = &DomainError{
		Code:       "ErrSessionNotFound",
		HTTPStatus: http.StatusNotFound,
		Title:      "Not Found",
		Message:    "session not found",
		Detail:     "Session not found",
		TypeURI:    "urn:problem:user/err-session-not-found",
	}

	// OAuth
	ErrUnsupportedOAuthProvider = &DomainError{
		Code:       "ErrUnsupportedOAuthProvider",
		HTTPStatus: http.StatusBadRequest,
		Title:      "Bad Request",
		Message:    "unsupported oauth provider",
		TypeURI:    "urn:problem:user/err-unsupported-oauth-provider",
	}

	ErrOAuthEmailMissing = &DomainError{
		Code:       "ErrOAuthEmailMissing",
		HTTPStatus: http.StatusBadRequest,
		Title:      "Bad Request",
		Message:    "email not provided by oauth provider",
		TypeURI:    "urn:problem:user/err-oauth-email-missing",
	}

	// Generic internal
	ErrInternal = &DomainError{
		Code:       "ErrInternal",
		HTTPStatus: http.StatusInternalServerError,
		Title:      "Internal Server Error",
		Message:    "internal server error",
		TypeURI:    "urn:problem:user/err-internal",
	}
)
