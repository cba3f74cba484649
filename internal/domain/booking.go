package domain

import "time"

type BookingStatus string

const (
	// BookingStatusPending marks a row whose inventory reservation is still
	// in flight. Pending rows are never returned to callers as created
	// bookings.
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusInitiated BookingStatus = "INITIATED"
	BookingStatusBooked    BookingStatus = "BOOKED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

type Booking struct {
	ID             string
	FlightID       int64
	UserID         int64
	NoOfSeats      int
	TotalCostCents int64
	Status         BookingStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Flight is the coordinator's read-only view of an inventory-owned flight.
type Flight struct {
	ID         int64
	TotalSeats int
	PriceCents int64
}

// PaymentResult is returned by a successful or deduplicated payment
// confirmation. It is the value cached under the caller's idempotency key.
type PaymentResult struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// User is the coordinator's view of a user-directory record.
type User struct {
	ID    int64
	Email string
}
