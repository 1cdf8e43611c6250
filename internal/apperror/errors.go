package apperror

import (
	"errors"
	"fmt"
)

// Error codes shared by every inventory operation.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeInvalidState        = "INVALID_STATE"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeValidation          = "VALIDATION_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. Matching is by code, so any AppError carrying the
// same code satisfies errors.Is(err, ErrNotFound) and friends.
var (
	ErrNotFound            = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrInsufficientStock   = &AppError{Code: CodeInsufficientStock, Message: "insufficient stock"}
	ErrInvalidState        = &AppError{Code: CodeInvalidState, Message: "invalid state"}
	ErrConcurrencyConflict = &AppError{Code: CodeConcurrencyConflict, Message: "concurrent update conflict"}
	ErrValidation          = &AppError{Code: CodeValidation, Message: "validation failed"}
	ErrInternal            = &AppError{Code: CodeInternal, Message: "internal error"}
)

// AppError is a typed failure with a stable code and optional details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap wraps an existing error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func NotFound(resource, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource)).WithDetail("id", id)
}

func InsufficientStock(productID string, requested, available int) *AppError {
	return New(CodeInsufficientStock, fmt.Sprintf("requested %d but only %d available", requested, available)).
		WithDetail("product_id", productID).
		WithDetail("requested", fmt.Sprint(requested)).
		WithDetail("available", fmt.Sprint(available))
}

func InvalidState(message string) *AppError {
	return New(CodeInvalidState, message)
}

func ConcurrencyConflict(resource string) *AppError {
	return New(CodeConcurrencyConflict, fmt.Sprintf("%s was modified concurrently", resource))
}

func Validation(message string) *AppError {
	return New(CodeValidation, message)
}

// Internal wraps a store or transport failure.
func Internal(message string, err error) *AppError {
	return New(CodeInternal, message).Wrap(err)
}

// As converts err to an AppError if possible
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of err, CodeInternal for foreign errors and "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}
