package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is through BotError.Unwrap
var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidInput        = errors.New("invalid input")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrAlreadyProcessed    = errors.New("already processed")
	ErrPanelError          = errors.New("panel error")
	ErrDatabaseError       = errors.New("database error")
	ErrInternalError       = errors.New("internal error")
)

// Error codes
const (
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeRateLimit           = "RATE_LIMIT"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeInsufficientPoints  = "INSUFFICIENT_POINTS"
	CodeAlreadyProcessed    = "ALREADY_PROCESSED"
	CodePanel               = "PANEL"
	CodeDatabase            = "DATABASE"
	CodeInternal            = "INTERNAL"
)

// BotError represents a structured bot error. Message is user-facing text.
type BotError struct {
	Code    string
	Message string
	Err     error
}

func (e *BotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BotError) Unwrap() error {
	return e.Err
}

// New creates a new BotError
func New(code, message string) *BotError {
	return &BotError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code, message string) *BotError {
	return &BotError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *BotError {
	return Wrap(ErrUnauthorized, CodeUnauthorized, message)
}

// RateLimitExceeded creates a rate limit exceeded error
func RateLimitExceeded(message string) *BotError {
	return Wrap(ErrRateLimitExceeded, CodeRateLimit, message)
}

// NotFound creates a not found error
func NotFound(message string) *BotError {
	return Wrap(ErrNotFound, CodeNotFound, message)
}

// InvalidInput creates a validation error
func InvalidInput(message string) *BotError {
	return Wrap(ErrInvalidInput, CodeInvalidInput, message)
}

// InvalidAmount creates a non-positive amount error
func InvalidAmount(message string) *BotError {
	return Wrap(ErrInvalidAmount, CodeInvalidAmount, message)
}

// InsufficientBalance reports the missing amount
func InsufficientBalance(balance, amount int64) *BotError {
	return Wrap(ErrInsufficientBalance, CodeInsufficientBalance, fmt.Sprintf(
		"موجودی کافی نیست. موجودی فعلی: %d تومان، مبلغ مورد نیاز: %d تومان، کسری: %d تومان",
		balance, amount, amount-balance,
	))
}

// InsufficientPoints reports the missing points
func InsufficientPoints(current, requested int) *BotError {
	return Wrap(ErrInsufficientPoints, CodeInsufficientPoints, fmt.Sprintf(
		"امتیاز کافی نیست. امتیاز فعلی: %d، امتیاز مورد نیاز: %d", current, requested,
	))
}

// AlreadyProcessed creates an error for a resolved transaction
func AlreadyProcessed(message string) *BotError {
	return Wrap(ErrAlreadyProcessed, CodeAlreadyProcessed, message)
}

// Panel wraps a panel adapter failure
func Panel(err error, message string) *BotError {
	return &BotError{Code: CodePanel, Message: message, Err: fmt.Errorf("%w: %w", ErrPanelError, err)}
}

// Database wraps a storage failure
func Database(err error) *BotError {
	return &BotError{Code: CodeDatabase, Message: "خطای پایگاه داده، لطفا دوباره تلاش کنید", Err: fmt.Errorf("%w: %w", ErrDatabaseError, err)}
}

// Internal wraps an unexpected failure
func Internal(err error) *BotError {
	return &BotError{Code: CodeInternal, Message: "خطای داخلی، لطفا دوباره تلاش کنید", Err: fmt.Errorf("%w: %w", ErrInternalError, err)}
}

// UserMessage returns the text to show a user for err
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BotError
	if errors.As(err, &be) {
		return be.Message
	}
	return "خطای غیرمنتظره رخ داد"
}

// Is, As re-exported so callers importing this package as errors keep the std helpers
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// HasCode reports whether err is a BotError with the given code
func HasCode(err error, code string) bool {
	var be *BotError
	return errors.As(err, &be) && be.Code == code
}
