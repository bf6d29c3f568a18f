package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a core error for transport mapping
type ErrorKind string

const (
	ErrorKindValidation         ErrorKind = "validation"
	ErrorKindSeatConflict       ErrorKind = "seat_conflict"
	ErrorKindScheduleIneligible ErrorKind = "schedule_ineligible"
	ErrorKindAmountMismatch     ErrorKind = "amount_mismatch"
	ErrorKindGatewayFailure     ErrorKind = "gateway_failure"
	ErrorKindNotFound           ErrorKind = "not_found"
	ErrorKindInvalidState       ErrorKind = "invalid_state"
	ErrorKindInternal           ErrorKind = "internal"
)

// Error codes returned to API clients
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeSeatConflict       = "SEAT_CONFLICT"
	CodeScheduleIneligible = "SCHEDULE_INELIGIBLE"
	CodeAmountMismatch     = "PAYMENT_AMOUNT_MISMATCH"
	CodePaymentFailed      = "PAYMENT_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidState       = "INVALID_STATE"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError is the typed error returned by every core operation
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string

	// ConflictingSeats is set for seat conflicts
	ConflictingSeats []int

	Err error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a 400-class input error
func NewValidationError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrorKindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewSeatConflictError reports seats that are held or occupied by another booking
func NewSeatConflictError(seats []int) *AppError {
	return &AppError{
		Kind:             ErrorKindSeatConflict,
		Code:             CodeSeatConflict,
		Message:          "One or more selected seats are no longer available",
		ConflictingSeats: seats,
	}
}

func NewScheduleIneligibleError(reason string) *AppError {
	return &AppError{Kind: ErrorKindScheduleIneligible, Code: CodeScheduleIneligible, Message: reason}
}

func NewAmountMismatchError(expected, received float64) *AppError {
	return &AppError{
		Kind:    ErrorKindAmountMismatch,
		Code:    CodeAmountMismatch,
		Message: fmt.Sprintf("Payment amount %.2f does not match booking total %.2f", received, expected),
	}
}

// NewGatewayFailureError carries the gateway's reason verbatim
func NewGatewayFailureError(reason string) *AppError {
	return &AppError{Kind: ErrorKindGatewayFailure, Code: CodePaymentFailed, Message: reason}
}

func NewNotFoundError(entity string) *AppError {
	return &AppError{Kind: ErrorKindNotFound, Code: CodeNotFound, Message: entity + " not found"}
}

func NewInvalidStateError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: ErrorKindInvalidState, Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// NewInternalError wraps a storage or unexpected failure. The message is safe for clients.
func NewInternalError(op string, err error) *AppError {
	return &AppError{Kind: ErrorKindInternal, Code: CodeInternal, Message: op, Err: err}
}

// AsAppError extracts an *AppError from an error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err is an *AppError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Kind == kind
}
