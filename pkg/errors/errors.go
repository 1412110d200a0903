// Package errors defines structured error types for the crewbill key service.
// Every error carries a machine-readable code that maps onto the handling
// policy: conflicts surface immediately, transient store errors are retried,
// validation errors are rejected synchronously, and invariant violations are
// self-healed before they propagate.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ================================================================================
// Error Codes
// ================================================================================

// ErrorCode is the machine-readable classification of an AppError
type ErrorCode string

const (
	// CodeRotationInProgress signals that another rotation holds the
	// in-process guard; the caller decides whether to retry later
	CodeRotationInProgress ErrorCode = "rotation_in_progress"

	// CodeNoActiveKey signals that no usable active key exists; callers on
	// the signing path self-heal before surfacing this
	CodeNoActiveKey ErrorCode = "no_active_key"

	// CodeKeyNotFound signals a lookup miss for a specific key id
	CodeKeyNotFound ErrorCode = "key_not_found"

	// CodeTransientStore signals a retryable store failure such as a
	// transaction write conflict
	CodeTransientStore ErrorCode = "transient_store_error"

	// CodeStoreUnavailable signals a non-retryable store failure
	CodeStoreUnavailable ErrorCode = "store_unavailable"

	// CodeSignatureInvalid signals that a token verified against no valid
	// key; never auto-remediated
	CodeSignatureInvalid ErrorCode = "signature_invalid"

	// CodeTokenMalformed signals an unparseable token
	CodeTokenMalformed ErrorCode = "token_malformed"

	// CodeTokenExpired signals a token whose signature verified but whose
	// exp claim has elapsed
	CodeTokenExpired ErrorCode = "token_expired"

	// CodeValidation signals a synchronously rejected request
	// (weak secret, revoking the active key, bad interval, ...)
	CodeValidation ErrorCode = "validation_error"

	// CodeRateLimited rejects requests past the admin surface rate limit
	CodeRateLimited ErrorCode = "rate_limited"

	// CodeFallbackExhausted signals that the static-fallback grace window
	// has elapsed and degraded operation is now treated as a hard failure
	CodeFallbackExhausted ErrorCode = "fallback_exhausted"

	// CodeInternal is the catch-all for unexpected failures
	CodeInternal ErrorCode = "internal_error"
)

// ================================================================================
// AppError
// ================================================================================

// AppError is the structured error used across the service
type AppError struct {
	code       ErrorCode
	httpStatus int
	message    string
	cause      error
	metadata   map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the machine-readable error code
func (e *AppError) Code() ErrorCode {
	return e.code
}

// HTTPStatus returns the HTTP status the admin surface should respond with
func (e *AppError) HTTPStatus() int {
	return e.httpStatus
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error
func (e *AppError) WithCause(cause error) *AppError {
	e.cause = cause
	return e
}

// WithMetadata attaches additional context
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all attached metadata
func (e *AppError) Metadata() map[string]interface{} {
	return e.metadata
}

// New creates an AppError with the given code, HTTP status and message
func New(code ErrorCode, httpStatus int, message string) *AppError {
	return &AppError{
		code:       code,
		httpStatus: httpStatus,
		message:    message,
	}
}

// ================================================================================
// Constructors
// ================================================================================

// ErrRotationInProgress is returned when a second rotation is attempted while
// one is already in flight in this process
func ErrRotationInProgress() *AppError {
	return New(CodeRotationInProgress, http.StatusConflict,
		"a key rotation is already in progress")
}

// ErrNoActiveKey is returned when the store holds no usable active key
func ErrNoActiveKey() *AppError {
	return New(CodeNoActiveKey, http.StatusServiceUnavailable,
		"no active signing key available")
}

// ErrKeyNotFound is returned for a lookup miss on a key id
func ErrKeyNotFound(keyID string) *AppError {
	return New(CodeKeyNotFound, http.StatusNotFound,
		fmt.Sprintf("signing key not found: %s", keyID)).
		WithMetadata("key_id", keyID)
}

// ErrTransientStore wraps a retryable store failure
func ErrTransientStore(cause error) *AppError {
	return New(CodeTransientStore, http.StatusServiceUnavailable,
		"transient store conflict").WithCause(cause)
}

// ErrStoreUnavailable wraps a non-retryable store failure
func ErrStoreUnavailable(cause error) *AppError {
	return New(CodeStoreUnavailable, http.StatusServiceUnavailable,
		"key store unavailable").WithCause(cause)
}

// ErrSignatureInvalid is returned when a token matches no valid key
func ErrSignatureInvalid() *AppError {
	return New(CodeSignatureInvalid, http.StatusUnauthorized,
		"token signature verification failed against all valid keys")
}

// ErrTokenMalformed is returned when a token cannot be parsed at all
func ErrTokenMalformed(cause error) *AppError {
	return New(CodeTokenMalformed, http.StatusBadRequest,
		"token is malformed").WithCause(cause)
}

// ErrTokenExpired is returned when a token's signature verifies but its exp
// claim has elapsed
func ErrTokenExpired() *AppError {
	return New(CodeTokenExpired, http.StatusUnauthorized,
		"token has expired")
}

// ErrWeakSecret rejects secret material that fails the strength checks
func ErrWeakSecret(reason string) *AppError {
	return New(CodeValidation, http.StatusBadRequest,
		fmt.Sprintf("secret material rejected: %s", reason))
}

// ErrRevokeActiveKey rejects revocation of the current active key through the
// single-key path; a replacement must exist atomically, so the coordinated
// emergency path is required instead
func ErrRevokeActiveKey(keyID string) *AppError {
	return New(CodeValidation, http.StatusBadRequest,
		"cannot revoke the active signing key directly; use emergency rotation").
		WithMetadata("key_id", keyID)
}

// ErrKeyNotActivatable rejects promotion of a revoked or expired key
func ErrKeyNotActivatable(keyID, reason string) *AppError {
	return New(CodeValidation, http.StatusBadRequest,
		fmt.Sprintf("key %s cannot be activated: %s", keyID, reason)).
		WithMetadata("key_id", keyID)
}

// ErrInvalidRequest rejects a malformed or unparseable admin request body
func ErrInvalidRequest(cause error) *AppError {
	return New(CodeValidation, http.StatusBadRequest, "invalid request").WithCause(cause)
}

// ErrMissingReason rejects an emergency rotation without an operator reason
func ErrMissingReason() *AppError {
	return New(CodeValidation, http.StatusBadRequest,
		"emergency rotation requires a human-readable reason")
}

// ErrInvalidRotationInterval rejects a non-positive rotation interval
func ErrInvalidRotationInterval(days int) *AppError {
	return New(CodeValidation, http.StatusBadRequest,
		fmt.Sprintf("invalid rotation interval: %d days", days)).
		WithMetadata("interval_days", days)
}

// ErrRateLimited rejects a request over the admin surface rate limit
func ErrRateLimited() *AppError {
	return New(CodeRateLimited, http.StatusTooManyRequests,
		"rate limit exceeded, retry later")
}

// ErrFallbackExhausted is returned once the static-fallback grace window has
// elapsed without the rotation subsystem recovering
func ErrFallbackExhausted() *AppError {
	return New(CodeFallbackExhausted, http.StatusServiceUnavailable,
		"static fallback secret grace window exhausted; rotation subsystem still unavailable")
}

// ErrInternal wraps an unexpected failure
func ErrInternal(message string, cause error) *AppError {
	return New(CodeInternal, http.StatusInternalServerError, message).WithCause(cause)
}

// ================================================================================
// Inspection Helpers
// ================================================================================

// CodeOf extracts the ErrorCode from an error chain; unknown errors map to
// CodeInternal and nil maps to the empty code
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.code
	}
	return CodeInternal
}

// IsConflict reports whether the error is a rotation-in-progress conflict
func IsConflict(err error) bool {
	return CodeOf(err) == CodeRotationInProgress
}

// IsTransient reports whether the error should be retried with backoff
func IsTransient(err error) bool {
	return CodeOf(err) == CodeTransientStore
}

// IsNotFound reports whether the error is a key lookup miss
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeKeyNotFound
}

// IsNoActiveKey reports whether the error is the no-active-key invariant
// violation that the self-healing path remediates
func IsNoActiveKey(err error) bool {
	return CodeOf(err) == CodeNoActiveKey
}

// IsValidation reports whether the error was a synchronous rejection
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// ================================================================================
// HTTP Response Shape
// ================================================================================

// ErrorResponse is the JSON body the admin surface returns for failures
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts any error into an ErrorResponse
func ToErrorResponse(err error) *ErrorResponse {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &ErrorResponse{
			Error:            string(appErr.code),
			ErrorDescription: appErr.Error(),
			Metadata:         appErr.metadata,
		}
	}
	return &ErrorResponse{
		Error:            string(CodeInternal),
		ErrorDescription: "an unexpected error occurred",
	}
}

// HTTPStatusOf returns the response status for any error
func HTTPStatusOf(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.httpStatus
	}
	return http.StatusInternalServerError
}
