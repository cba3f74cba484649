package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/skylane/booking/internal/domain"
)

// InventoryClient talks to the flight service, which owns flight records and
// seat counts.
type InventoryClient interface {
	GetFlight(ctx context.Context, flightID int64) (*domain.Flight, error)
	// AdjustSeats moves available seats by seats in the given direction.
	// ref deduplicates the adjustment on the inventory side, so replaying
	// the same transition is safe.
	AdjustSeats(ctx context.Context, flightID int64, seats int, decrease bool, ref string) error
}

type HTTPInventoryClient struct {
	baseURL string
	client  *http.Client
}

func NewInventoryClient(baseURL string, timeout time.Duration) *HTTPInventoryClient {
	return &HTTPInventoryClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type flightPayload struct {
	ID         int64 `json:"id"`
	TotalSeats int   `json:"totalSeats"`
	PriceCents int64 `json:"price"`
}

type flightEnvelope struct {
	Data flightPayload `json:"data"`
}

func (c *HTTPInventoryClient) GetFlight(ctx context.Context, flightID int64) (*domain.Flight, error) {
	url := fmt.Sprintf("%s/api/v1/flights/%d", c.baseURL, flightID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get flight %d: %w: %v", flightID, domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("flight %d: %w", flightID, domain.ErrNotFound)
	default:
		return nil, fmt.Errorf("get flight %d: status %d: %w", flightID, resp.StatusCode, domain.ErrUpstreamUnavailable)
	}

	var envelope flightEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode flight %d: %w", flightID, err)
	}
	return &domain.Flight{
		ID:         envelope.Data.ID,
		TotalSeats: envelope.Data.TotalSeats,
		PriceCents: envelope.Data.PriceCents,
	}, nil
}

type adjustSeatsRequest struct {
	Seats int    `json:"seats"`
	Dec   bool   `json:"dec"`
	Ref   string `json:"ref"`
}

func (c *HTTPInventoryClient) AdjustSeats(ctx context.Context, flightID int64, seats int, decrease bool, ref string) error {
	body, err := json.Marshal(adjustSeatsRequest{Seats: seats, Dec: decrease, Ref: ref})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/flights/%d/seats", c.baseURL, flightID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("adjust seats for flight %d: %w: %v", flightID, domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("flight %d: %w", flightID, domain.ErrNotFound)
	case http.StatusBadRequest:
		// The inventory service refuses a decrement that would go negative.
		return fmt.Errorf("flight %d: %w", flightID, domain.ErrInsufficientCapacity)
	default:
		return fmt.Errorf("adjust seats for flight %d: status %d: %w", flightID, resp.StatusCode, domain.ErrUpstreamUnavailable)
	}
}

var _ InventoryClient = (*HTTPInventoryClient)(nil)
