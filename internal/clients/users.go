package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/skylane/booking/internal/domain"
)

// UserClient resolves user records from the user directory service.
type UserClient interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
}

type HTTPUserClient struct {
	baseURL string
	client  *http.Client
}

func NewUserClient(baseURL string, timeout time.Duration) *HTTPUserClient {
	return &HTTPUserClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type userEnvelope struct {
	Data struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	} `json:"data"`
}

func (c *HTTPUserClient) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	url := fmt.Sprintf("%s/api/v1/user/%d", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w: %v", userID, domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	default:
		return nil, fmt.Errorf("get user %d: status %d: %w", userID, resp.StatusCode, domain.ErrUpstreamUnavailable)
	}

	var envelope userEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode user %d: %w", userID, err)
	}
	return &domain.User{ID: envelope.Data.ID, Email: envelope.Data.Email}, nil
}

var _ UserClient = (*HTTPUserClient)(nil)
