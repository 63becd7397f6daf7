package apperr

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable error category exposed to HTTP
// callers in the response envelope.
type ErrorCode string

// Error codes surfaced by the HTTP boundary.
const (
	// CodeUnexpected wraps errors with no more specific classification.
	// Retryable by default: assume transient unless proven otherwise.
	CodeUnexpected ErrorCode = "UNEXPECTED_ERROR"
	// CodeInsufficientCredits signals a consume against too small a balance.
	CodeInsufficientCredits ErrorCode = "CREDITS_INSUFFICIENT_BALANCE"
	// CodePlanPolicyMissing signals a grant attempt with no applicable rule.
	CodePlanPolicyMissing ErrorCode = "CREDITS_PLAN_POLICY_MISSING"
	// CodePlanNotFound signals checkout against an unknown or disabled plan.
	CodePlanNotFound ErrorCode = "BILLING_PLAN_NOT_FOUND"
	// CodePriceNotFound signals checkout against an unknown or disabled price.
	CodePriceNotFound ErrorCode = "BILLING_PRICE_NOT_FOUND"
	// CodeSecurityViolation signals a missing or invalid webhook signature.
	CodeSecurityViolation ErrorCode = "PAYMENT_SECURITY_VIOLATION"
	// CodeCreemMisconfigured signals missing Creem credentials.
	CodeCreemMisconfigured ErrorCode = "CREEM_WEBHOOK_MISCONFIGURED"
	// CodeStripeMisconfigured signals missing Stripe credentials.
	CodeStripeMisconfigured ErrorCode = "STRIPE_WEBHOOK_MISCONFIGURED"
	// CodeProviderUnavailable signals a transient upstream provider failure.
	CodeProviderUnavailable ErrorCode = "PAYMENT_PROVIDER_UNAVAILABLE"
)

// Error is a domain error carrying an ErrorCode and a retryability hint for
// automated callers such as webhook redelivery.
type Error struct {
	Code      ErrorCode // Stable error category.
	Message   string    // Operator/user-facing message.
	Retryable bool      // Whether resubmission is expected to help.
	Err       error     // Wrapped cause, if any.
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds a non-retryable domain error.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a non-retryable domain error around a cause.
func Wrap(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Transient builds a retryable domain error around a cause.
func Transient(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Retryable: true, Err: err}
}

// From classifies any error as a domain error. Unclassified errors become
// retryable UNEXPECTED_ERROR.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Code: CodeUnexpected, Message: "unexpected error", Retryable: true, Err: err}
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
