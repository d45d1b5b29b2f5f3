package billing

import (
	"fmt"
	"net/http"

	billingdomain "github.com/backoffice/backend/internal/domain/billing"
)

// QuotaExceededError is returned when an operation would exceed the
// tenant's plan limit for an event type. It carries the full check result
// so API responses can show the tenant where they stand.
type QuotaExceededError struct {
	Result billingdomain.LimitCheckResult
}

// Error implements the error interface
func (e *QuotaExceededError) Error() string {
	if e.Result.Limit != nil {
		return fmt.Sprintf("usage limit exceeded for %s: %d of %d used",
			e.Result.Type, e.Result.CurrentUsage, *e.Result.Limit)
	}
	return fmt.Sprintf("usage limit exceeded for %s", e.Result.Type)
}

// HTTPStatusCode returns the HTTP status for this error. Limit violations
// are client errors, distinguished from validation failures by code.
func (e *QuotaExceededError) HTTPStatusCode() int {
	return http.StatusBadRequest
}

// PaymentError wraps a failure from the payment gateway
type PaymentError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying gateway error
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status for this error
func (e *PaymentError) HTTPStatusCode() int {
	return http.StatusBadGateway
}
