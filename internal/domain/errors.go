package domain

import "errors"

// Failure taxonomy surfaced by the coordinator. Callers match with errors.Is;
// collaborator packages wrap these with context via fmt.Errorf and %w.
var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientCapacity = errors.New("not enough seats available")
	ErrAmountMismatch       = errors.New("paid amount does not match booking cost")
	ErrBookingExpired       = errors.New("booking is cancelled")
	ErrPaymentWindowExpired = errors.New("payment window has expired")
	ErrUnauthorized         = errors.New("booking belongs to another user")
	ErrAlreadyConfirmed     = errors.New("booking is already confirmed")
	ErrUpstreamUnavailable  = errors.New("upstream service unavailable")
	ErrInternal             = errors.New("internal error")
)
