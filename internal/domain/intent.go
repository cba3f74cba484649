package domain

import (
	"fmt"
	"time"
)

type IntentAction string

const (
	IntentReserve IntentAction = "RESERVE"
	IntentRelease IntentAction = "RELEASE"
)

type IntentState string

const (
	IntentPending IntentState = "PENDING"
	IntentDone    IntentState = "DONE"
	IntentAborted IntentState = "ABORTED"
)

// SeatIntent records a seat adjustment the coordinator is about to ask the
// inventory service for. The intent row is committed before the remote call
// so a crash between the call and the local commit leaves a pending intent
// that the recovery sweep can replay or compensate.
type SeatIntent struct {
	ID        int64
	BookingID string
	FlightID  int64
	Seats     int
	Action    IntentAction
	State     IntentState
	Ref       string
	CreatedAt time.Time
}

// AdjustmentRef builds the idempotency reference the inventory service
// deduplicates seat adjustments by. One ref per booking transition.
func AdjustmentRef(action IntentAction, bookingID string) string {
	return fmt.Sprintf("%s:%s", action, bookingID)
}
