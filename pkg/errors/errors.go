package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Standard error types
var (
	ErrNotFound             = errors.New("resource not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrBadRequest           = errors.New("bad request")
	ErrConflict             = errors.New("resource conflict")
	ErrInternal             = errors.New("internal server error")
	ErrValidation           = errors.New("validation error")
	ErrStaleAllocation      = errors.New("allocation snapshot is stale")
	ErrConfirmationRequired = errors.New("explicit confirmation required")
	ErrTransactionFailed    = errors.New("transaction failed")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// InvalidQuantity reports a quantity outside the acceptable range for a field.
func InvalidQuantity(field, reason string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "INVALID_QUANTITY",
		Message:    fmt.Sprintf("invalid quantity for %s: %s", field, reason),
		StatusCode: http.StatusBadRequest,
		Details:    map[string]string{field: reason},
	}
}

// InsufficientPermissions reports a role gate failure together with the roles
// that would have been accepted. Never downgraded to a generic forbidden.
func InsufficientPermissions(action string, required []string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "INSUFFICIENT_PERMISSIONS",
		Message:    fmt.Sprintf("%s requires one of roles: %s", action, strings.Join(required, ", ")),
		StatusCode: http.StatusForbidden,
		Details:    map[string]string{"required_roles": strings.Join(required, ",")},
	}
}

// ConfirmationRequired reports a policy gate: the caller must resubmit with
// explicit confirmation input. Not a failure.
func ConfirmationRequired(message string) *AppError {
	return &AppError{
		Err:        ErrConfirmationRequired,
		Code:       "CONFIRMATION_REQUIRED",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// TransactionFailed reports a storage-layer failure during a multi-row commit.
// Nothing is partially applied; the caller may retry the whole operation.
func TransactionFailed(err error) *AppError {
	cause := ErrTransactionFailed
	if err != nil {
		cause = fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	return &AppError{
		Err:        cause,
		Code:       "TRANSACTION_FAILED",
		Message:    "transaction failed, no changes were applied",
		StatusCode: http.StatusConflict,
	}
}

// Is checks if the error matches the target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
