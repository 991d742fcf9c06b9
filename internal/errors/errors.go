// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Standard sentinel errors
var (
	ErrNoData               = errors.New("no data available")
	ErrInsufficientData     = errors.New("insufficient data")
	ErrSymbolNotFound       = errors.New("symbol not found")
	ErrMarketClosed         = errors.New("market is closed")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidOrder         = errors.New("invalid order")
	ErrOrderRejected        = errors.New("order rejected")
	ErrFillTimeout          = errors.New("fill confirmation timed out")
	ErrPositionNotFound     = errors.New("position not found")
	ErrRateLimited          = errors.New("rate limited")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrBrokerDisconnected   = errors.New("broker not connected")
	ErrTimeout              = errors.New("operation timed out")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrMissingCredentials   = errors.New("missing required credentials")
	ErrPortfolioUnavailable = errors.New("portfolio value unavailable")
	ErrDatabaseError        = errors.New("database error")
	ErrShutdown             = errors.New("shutdown in progress")
)

// BrokerError represents an error from the broker API.
type BrokerError struct {
	Code    string
	Message string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("broker error [%s]: %s", e.Code, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(code, message string, err error) *BrokerError {
	return &BrokerError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// OrderError represents an error related to order operations.
type OrderError struct {
	OrderID string
	Symbol  string
	Action  string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.OrderID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.OrderID, e.Action, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, symbol, action, reason string, err error) *OrderError {
	return &OrderError{
		OrderID: orderID,
		Symbol:  symbol,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets every validation failure match ErrConfigInvalid.
func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	Source  string
	Symbol  string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.Source, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.Source, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(source, symbol, message string, err error) *DataError {
	return &DataError{
		Source:  source,
		Symbol:  symbol,
		Message: message,
		Err:     err,
	}
}

// IsNoData reports whether err means "nothing to work with" rather than a
// failure worth alerting on.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData) ||
		errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrSymbolNotFound)
}

// IsRejection reports whether err is a broker-side rejection. Rejections are
// never retried.
func IsRejection(err error) bool {
	return errors.Is(err, ErrOrderRejected) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidOrder) ||
		errors.Is(err, ErrMarketClosed)
}

// IsRetryable reports whether err looks like transient I/O.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || IsRejection(err) || IsNoData(err) ||
		errors.Is(err, ErrConfigInvalid) || errors.Is(err, ErrMissingCredentials) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrBrokerDisconnected) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"timeout", "connection reset", "connection refused", "eof", "rate limit", "429", "502", "503", "504"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
