package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skylane/booking/internal/domain"
)

// BookingTx is the view of the ledger store available inside a transaction.
type BookingTx interface {
	CreateWithIntent(ctx context.Context, booking *domain.Booking, intent *domain.SeatIntent) error
	GetForUpdate(ctx context.Context, id string) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error)
	PromotePending(ctx context.Context, id string) (*domain.Booking, error)
	FinalizeIntent(ctx context.Context, bookingID string, action domain.IntentAction, state domain.IntentState) error
	DeleteWithIntent(ctx context.Context, bookingID string) error
}

type BookingRepository interface {
	// WithinTx runs fn inside one transaction. Any error from fn rolls the
	// transaction back before it is returned.
	WithinTx(ctx context.Context, fn func(tx BookingTx) error) error
	Get(ctx context.Context, id string) (*domain.Booking, error)
	ListExpiredInitiated(ctx context.Context, before time.Time) ([]domain.Booking, error)
	ListStalePendingIntents(ctx context.Context, before time.Time) ([]domain.SeatIntent, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) WithinTx(ctx context.Context, fn func(tx BookingTx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgBookingTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const bookingColumns = `id, flight_id, user_id, no_of_seats, total_cost_cents, status, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.FlightID, &b.UserID, &b.NoOfSeats, &b.TotalCostCents, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *PGBookingRepository) Get(ctx context.Context, id string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	return scanBooking(row)
}

func (r *PGBookingRepository) ListExpiredInitiated(ctx context.Context, before time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE status=$1 AND created_at <= $2`, domain.BookingStatusInitiated, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.FlightID, &b.UserID, &b.NoOfSeats, &b.TotalCostCents, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		expired = append(expired, b)
	}
	return expired, rows.Err()
}

func (r *PGBookingRepository) ListStalePendingIntents(ctx context.Context, before time.Time) ([]domain.SeatIntent, error) {
	rows, err := r.db.Query(ctx, `SELECT id, booking_id, flight_id, seats, action, state, ref, created_at FROM seat_intents WHERE state=$1 AND created_at <= $2`, domain.IntentPending, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []domain.SeatIntent
	for rows.Next() {
		var in domain.SeatIntent
		if err := rows.Scan(&in.ID, &in.BookingID, &in.FlightID, &in.Seats, &in.Action, &in.State, &in.Ref, &in.CreatedAt); err != nil {
			return nil, err
		}
		stale = append(stale, in)
	}
	return stale, rows.Err()
}

type pgBookingTx struct {
	tx pgx.Tx
}

func (t *pgBookingTx) CreateWithIntent(ctx context.Context, booking *domain.Booking, intent *domain.SeatIntent) error {
	if err := t.tx.QueryRow(ctx, `INSERT INTO bookings (id, flight_id, user_id, no_of_seats, total_cost_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		booking.ID, booking.FlightID, booking.UserID, booking.NoOfSeats, booking.TotalCostCents, booking.Status).
		Scan(&booking.CreatedAt, &booking.UpdatedAt); err != nil {
		return err
	}

	return t.tx.QueryRow(ctx, `INSERT INTO seat_intents (booking_id, flight_id, seats, action, state, ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		intent.BookingID, intent.FlightID, intent.Seats, intent.Action, intent.State, intent.Ref).
		Scan(&intent.ID, &intent.CreatedAt)
}

func (t *pgBookingTx) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1 FOR UPDATE`, id)
	return scanBooking(row)
}

func (t *pgBookingTx) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error) {
	row := t.tx.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2 AND status <> $3 RETURNING `+bookingColumns,
		status, id, domain.BookingStatusCancelled)
	return scanBooking(row)
}

// PromotePending moves a booking from PENDING to INITIATED. The status guard
// means a row already settled to any other state is never touched, so a
// replayed recovery can never demote a booked or cancelled booking.
func (t *pgBookingTx) PromotePending(ctx context.Context, id string) (*domain.Booking, error) {
	row := t.tx.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2 AND status=$3 RETURNING `+bookingColumns,
		domain.BookingStatusInitiated, id, domain.BookingStatusPending)
	return scanBooking(row)
}

func (t *pgBookingTx) FinalizeIntent(ctx context.Context, bookingID string, action domain.IntentAction, state domain.IntentState) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE seat_intents SET state=$1 WHERE booking_id=$2 AND action=$3 AND state=$4`,
		state, bookingID, action, domain.IntentPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *pgBookingTx) DeleteWithIntent(ctx context.Context, bookingID string) error {
	if _, err := t.tx.Exec(ctx, `UPDATE seat_intents SET state=$1 WHERE booking_id=$2 AND state=$3`,
		domain.IntentAborted, bookingID, domain.IntentPending); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM bookings WHERE id=$1`, bookingID)
	return err
}

var _ BookingRepository = (*PGBookingRepository)(nil)
var _ BookingTx = (*pgBookingTx)(nil)
