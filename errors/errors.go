// Package errors defines the error taxonomy shared by repositories,
// services and the delivery layer. Callers classify failures with
// errors.Is against the sentinels below.
package errors

import "fmt"

var (
	// ErrValidation marks malformed or missing input, rejected before any mutation.
	ErrValidation = fmt.Errorf("validation failed")
	// ErrNotFound marks a referenced user, room or message that does not exist.
	ErrNotFound = fmt.Errorf("not found")
	// ErrConflict marks a lost race on a uniqueness guarantee (direct room pair).
	ErrConflict = fmt.Errorf("conflict")
	// ErrDelivery marks a failed live push to a single recipient.
	// It is logged and reported to the sender, never fatal to the send itself.
	ErrDelivery = fmt.Errorf("delivery failed")

	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrSinkFull         = fmt.Errorf("sink buffer full")
	ErrInvalidToken     = fmt.Errorf("invalid or expired token")
	ErrNotAuthenticated = fmt.Errorf("connection not authenticated")
)
