package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skylane/booking/internal/clients"
	"github.com/skylane/booking/internal/domain"
	"github.com/skylane/booking/internal/kafka"
	"github.com/skylane/booking/internal/repository"
	"go.uber.org/zap"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*domain.PaymentResult, error)
	CancelBooking(ctx context.Context, bookingID string) error
	GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error)
	ExpireStaleBookings(ctx context.Context) ([]domain.Booking, error)
	RecoverIntents(ctx context.Context) (int, error)
}

// IdempotencyStore caches payment results keyed by the caller's idempotency
// key. A miss is (nil, nil).
type IdempotencyStore interface {
	GetResult(ctx context.Context, key string) (*domain.PaymentResult, error)
	PutResult(ctx context.Context, key string, result *domain.PaymentResult) error
}

type Notifier interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

type CreateBookingInput struct {
	FlightID  int64
	UserID    int64
	NoOfSeats int
	Status    domain.BookingStatus
}

type ConfirmPaymentInput struct {
	BookingID      string
	UserID         int64
	TotalCostCents int64
	IdempotencyKey string
}

// Coordinator orchestrates the booking saga across the ledger store and the
// inventory service. Each operation is a short-lived saga: local transactions
// plus reference-idempotent seat adjustments, with cancellation as the
// compensating action.
type Coordinator struct {
	bookings           repository.BookingRepository
	inventory          clients.InventoryClient
	users              clients.UserClient
	idem               IdempotencyStore
	notifier           Notifier
	notificationsTopic string
	paymentWindow      time.Duration
	intentGrace        time.Duration
	log                *zap.Logger
	now                func() time.Time
}

type CoordinatorOption func(*Coordinator)

func WithNotificationsTopic(topic string) CoordinatorOption {
	return func(c *Coordinator) {
		c.notificationsTopic = topic
	}
}

// WithClock overrides the coordinator's time source.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.now = now
	}
}

func WithIntentGrace(grace time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.intentGrace = grace
	}
}

func NewCoordinator(
	bookings repository.BookingRepository,
	inventory clients.InventoryClient,
	users clients.UserClient,
	idem IdempotencyStore,
	notifier Notifier,
	paymentWindow time.Duration,
	log *zap.Logger,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		bookings:      bookings,
		inventory:     inventory,
		users:         users,
		idem:          idem,
		notifier:      notifier,
		paymentWindow: paymentWindow,
		intentGrace:   time.Minute,
		log:           log,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateBooking reserves seats for a flight and persists the booking.
//
// The booking row and its reserve intent are committed first (status PENDING),
// then the inventory decrement runs, then a second transaction finalizes the
// booking to INITIATED. A crash between the remote call and the finalize
// leaves a committed pending intent for RecoverIntents to settle.
func (c *Coordinator) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if input.NoOfSeats <= 0 {
		return nil, errors.New("number of seats must be positive")
	}
	if input.Status == "" {
		input.Status = domain.BookingStatusInitiated
	}
	if input.Status != domain.BookingStatusInitiated {
		return nil, fmt.Errorf("unsupported initial status %q", input.Status)
	}

	flight, err := c.inventory.GetFlight(ctx, input.FlightID)
	if err != nil {
		return nil, err
	}
	// Advisory guard; the inventory service's conditional decrement is the
	// hard limit under concurrent bookings.
	if input.NoOfSeats > flight.TotalSeats {
		return nil, fmt.Errorf("flight %d: %w", input.FlightID, domain.ErrInsufficientCapacity)
	}

	booking := &domain.Booking{
		ID:             uuid.NewString(),
		FlightID:       input.FlightID,
		UserID:         input.UserID,
		NoOfSeats:      input.NoOfSeats,
		TotalCostCents: int64(input.NoOfSeats) * flight.PriceCents,
		Status:         domain.BookingStatusPending,
	}
	intent := &domain.SeatIntent{
		BookingID: booking.ID,
		FlightID:  input.FlightID,
		Seats:     input.NoOfSeats,
		Action:    domain.IntentReserve,
		State:     domain.IntentPending,
		Ref:       domain.AdjustmentRef(domain.IntentReserve, booking.ID),
	}

	err = c.bookings.WithinTx(ctx, func(tx repository.BookingTx) error {
		return tx.CreateWithIntent(ctx, booking, intent)
	})
	if err != nil {
		return nil, fmt.Errorf("persist booking: %w", err)
	}

	if err := c.inventory.AdjustSeats(ctx, input.FlightID, input.NoOfSeats, true, intent.Ref); err != nil {
		if rbErr := c.bookings.WithinTx(ctx, func(tx repository.BookingTx) error {
			return tx.DeleteWithIntent(ctx, booking.ID)
		}); rbErr != nil {
			c.log.Error("failed to remove booking after reserve failure",
				zap.String("booking_id", booking.ID), zap.Error(rbErr))
		}
		return nil, err
	}

	var created *domain.Booking
	err = c.bookings.WithinTx(ctx, func(tx repository.BookingTx) error {
		b, err := tx.PromotePending(ctx, booking.ID)
		if err != nil {
			return err
		}
		if err := tx.FinalizeIntent(ctx, booking.ID, domain.IntentReserve, domain.IntentDone); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		// Seats are held and the intent is still pending; the recovery sweep
		// replays the (idempotent) reserve and finalizes.
		return nil, fmt.Errorf("finalize booking %s: %w", booking.ID, err)
	}

	c.log.Info("booking created",
		zap.String("booking_id", created.ID),
		zap.Int64("flight_id", created.FlightID),
		zap.Int("seats", created.NoOfSeats),
		zap.Int64("total_cost_cents", created.TotalCostCents),
	)
	return created, nil
}

// ConfirmPayment validates the payment and transitions the booking to BOOKED.
// Retried submissions with the same idempotency key return the cached result
// without a second transition or notification.
func (c *Coordinator) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*domain.PaymentResult, error) {
	if input.IdempotencyKey != "" {
		cached, err := c.idem.GetResult(ctx, input.IdempotencyKey)
		if err != nil {
			// Deduplication is best effort; the row lock below still keeps
			// the transition single-shot.
			c.log.Warn("idempotency lookup failed", zap.Error(err))
		}
		if cached != nil {
			return cached, nil
		}
	}

	var result *domain.PaymentResult
	err := c.bookings.WithinTx(ctx, func(tx repository.BookingTx) error {
		b, err := tx.GetForUpdate(ctx, input.BookingID)
		if err != nil {
			return err
		}
		// A pending row has no settled inventory hold yet; it must never be
		// confirmed. It is invisible to callers, same as in GetBooking.
		if b.Status == domain.BookingStatusPending {
			return fmt.Errorf("booking %s: %w", b.ID, domain.ErrNotFound)
		}
		if b.TotalCostCents != input.TotalCostCents {
			return fmt.Errorf("booking %s: %w", b.ID, domain.ErrAmountMismatch)
		}
		if b.Status == domain.BookingStatusCancelled {
			return fmt.Errorf("booking %s: %w", b.ID, domain.ErrBookingExpired)
		}
		// A confirmed booking stays confirmed; a retry must not fall through
		// to the window check and trigger compensation.
		if b.Status == domain.BookingStatusBooked {
			if b.UserID != input.UserID {
				return fmt.Errorf("booking %s: %w", b.ID, domain.ErrUnauthorized)
			}
			result = &domain.PaymentResult{
				BookingID: b.ID,
				Status:    string(domain.BookingStatusBooked),
				Message:   "booking already confirmed",
			}
			return nil
		}
		if c.now().Sub(b.CreatedAt) > c.paymentWindow {
			return fmt.Errorf("booking %s: %w", b.ID, domain.ErrPaymentWindowExpired)
		}
		if b.UserID != input.UserID {
			return fmt.Errorf("booking %s: %w", b.ID, domain.ErrUnauthorized)
		}

		if _, err := tx.UpdateStatus(ctx, b.ID, domain.BookingStatusBooked); err != nil {
			return err
		}
		c.notifyConfirmed(ctx, b)

		result = &domain.PaymentResult{
			BookingID: b.ID,
			Status:    string(domain.BookingStatusBooked),
			Message:   "payment successful, booking confirmed",
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrPaymentWindowExpired) {
			// Compensate: the expired reservation must not keep its seats.
			if cancelErr := c.CancelBooking(ctx, input.BookingID); cancelErr != nil {
				return nil, fmt.Errorf("cancel expired booking %s: %w", input.BookingID, cancelErr)
			}
		}
		return nil, err
	}

	if input.IdempotencyKey != "" {
		if err := c.idem.PutResult(ctx, input.IdempotencyKey, result); err != nil {
			c.log.Warn("failed to store idempotency result", zap.Error(err))
		}
	}
	return result, nil
}

// notifyConfirmed enqueues the confirmation email. Best effort: lookup or
// enqueue failures are logged, never surfaced, and never roll the payment back.
func (c *Coordinator) notifyConfirmed(ctx context.Context, b *domain.Booking) {
	if c.notifier == nil || c.notificationsTopic == "" {
		return
	}

	user, err := c.users.GetUser(ctx, b.UserID)
	if err != nil {
		c.log.Warn("user lookup for notification failed",
			zap.String("booking_id", b.ID), zap.Int64("user_id", b.UserID), zap.Error(err))
		return
	}
	if user.Email == "" {
		return
	}

	event := kafka.NotificationEvent{
		RecipientEmail: user.Email,
		Subject:        "Flight booked",
		Text:           fmt.Sprintf("Congratulations, your booking %s is confirmed.", b.ID),
		BookingID:      b.ID,
	}
	if err := c.notifier.Publish(ctx, c.notificationsTopic, b.ID, event); err != nil {
		c.log.Warn("failed to enqueue confirmation notification",
			zap.String("booking_id", b.ID), zap.Error(err))
	}
}

// GetBooking returns the booking by ID. Pending rows are not visible to
// callers; they belong to an unsettled create saga.
func (c *Coordinator) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	b, err := c.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BookingStatusPending {
		return nil, fmt.Errorf("booking %s: %w", bookingID, domain.ErrNotFound)
	}
	return b, nil
}

// CancelBooking releases the booking's inventory hold and marks it CANCELLED.
// Idempotent: a missing or already cancelled booking is a no-op success, so
// the operation is safe to call from any trigger any number of times.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID string) error {
	err := c.bookings.WithinTx(ctx, func(tx repository.BookingTx) error {
		b, err := tx.GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		switch b.Status {
		case domain.BookingStatusCancelled:
			return nil
		case domain.BookingStatusBooked:
			return fmt.Errorf("booking %s: %w", b.ID, domain.ErrAlreadyConfirmed)
		case domain.BookingStatusPending:
			// The reserve intent is unsettled; releasing now could undo a
			// reservation that never happened. RecoverIntents owns this row.
			return nil
		}

		ref := domain.AdjustmentRef(domain.IntentRelease, b.ID)
		if err := c.inventory.AdjustSeats(ctx, b.FlightID, b.NoOfSeats, false, ref); err != nil {
			return err
		}
		if _, err := tx.UpdateStatus(ctx, b.ID, domain.BookingStatusCancelled); err != nil {
			return err
		}

		c.log.Info("booking cancelled", zap.String("booking_id", b.ID), zap.Int("seats_released", b.NoOfSeats))
		return nil
	})
	return err
}

// ExpireStaleBookings cancels every INITIATED booking older than the payment
// window. The lazy check in ConfirmPayment remains as a fallback; this sweep
// keeps seats from being held forever when the client never retries payment.
func (c *Coordinator) ExpireStaleBookings(ctx context.Context) ([]domain.Booking, error) {
	cutoff := c.now().Add(-c.paymentWindow)
	stale, err := c.bookings.ListExpiredInitiated(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var expired []domain.Booking
	for _, b := range stale {
		if err := c.CancelBooking(ctx, b.ID); err != nil {
			c.log.Error("failed to expire booking", zap.String("booking_id", b.ID), zap.Error(err))
			continue
		}
		expired = append(expired, b)
	}
	return expired, nil
}

// RecoverIntents settles reserve intents left PENDING by a crash between the
// inventory call and the local finalize. The adjustment reference makes the
// replayed decrement idempotent, so replaying is safe whether or not the
// original call went through.
func (c *Coordinator) RecoverIntents(ctx context.Context) (int, error) {
	cutoff := c.now().Add(-c.intentGrace)
	stale, err := c.bookings.ListStalePendingIntents(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, intent := range stale {
		if intent.Action != domain.IntentReserve {
			c.log.Warn("unexpected stale intent action",
				zap.Int64("intent_id", intent.ID), zap.String("action", string(intent.Action)))
			continue
		}

		err := c.inventory.AdjustSeats(ctx, intent.FlightID, intent.Seats, true, intent.Ref)
		switch {
		case err == nil:
			finErr := c.bookings.WithinTx(ctx, func(tx repository.BookingTx) error {
				// Guarded promotion: only a still-PENDING row is touched, so a
				// concurrent settle can never be overwritten.
				if _, err := tx.PromotePending(ctx, intent.BookingID); err != nil {
					return err
				}
				return tx.FinalizeIntent(ctx, intent.BookingID, domain.IntentReserve, domain.IntentDone)
			})
			if finErr != nil {
				c.log.Error("failed to finalize recovered intent",
					zap.String("booking_id", intent.BookingID), zap.Error(finErr))
				continue
			}
			recovered++
			c.log.Info("recovered reserve intent", zap.String("booking_id", intent.BookingID))
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInsufficientCapacity):
			// The reservation cannot stand; compensate by dropping the
			// pending row with its intent.
			if abortErr := c.bookings.WithinTx(ctx, func(tx repository.BookingTx) error {
				return tx.DeleteWithIntent(ctx, intent.BookingID)
			}); abortErr != nil {
				c.log.Error("failed to abort unrecoverable intent",
					zap.String("booking_id", intent.BookingID), zap.Error(abortErr))
				continue
			}
			recovered++
			c.log.Info("aborted unrecoverable reserve intent", zap.String("booking_id", intent.BookingID))
		default:
			// Upstream still unavailable; retry on the next sweep.
			c.log.Warn("intent recovery deferred",
				zap.String("booking_id", intent.BookingID), zap.Error(err))
		}
	}
	return recovered, nil
}

var _ BookingUseCase = (*Coordinator)(nil)
