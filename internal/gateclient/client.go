// Package gateclient calls the eventgate HTTP API from a door station.
package gateclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"eventgate/internal/checkin"
	"eventgate/internal/directory"
	"eventgate/internal/ticket"
)

// ErrUnavailable means the server could not be reached or does not serve
// the route. Callers may fall back to redeeming against the store directly.
var ErrUnavailable = errors.New("gateway unavailable")

// APIError is a structured error answer from the server.
type APIError struct {
	Status  int              `json:"-"`
	Tag     string           `json:"error"`
	Details string           `json:"details"`
	Person  directory.Person `json:"person"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway %d %s: %s", e.Status, e.Tag, e.Details)
}

// Is lets callers test API errors against the workflow sentinels.
func (e *APIError) Is(target error) bool {
	switch e.Tag {
	case "validation_error":
		return target == ticket.ErrValidation
	case "ticket_not_found":
		return target == ticket.ErrTicketNotFound
	case "already_used":
		return target == ticket.ErrAlreadyUsed
	case "store_write_error":
		return target == ticket.ErrStoreWrite
	case "not_authorized":
		return target == ticket.ErrNotAuthorized
	case "duplicate_registration":
		return target == ticket.ErrDuplicateRegistration
	case "invalid_class":
		return target == ticket.ErrInvalidClass
	}
	return false
}

// Client calls the check-in API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client with a short timeout; door stations should fail over
// quickly.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

// CheckIn redeems a barcode through POST /checkin.
func (c *Client) CheckIn(ctx context.Context, barcode string, method checkin.Method) (*checkin.Outcome, error) {
	body, _ := json.Marshal(map[string]string{"barcode": barcode, "method": string(method)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/checkin", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jerr := json.Unmarshal(raw, apiErr); jerr != nil || apiErr.Tag == "" {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
		}
		switch apiErr.Tag {
		case "not_found", "method_not_allowed", "service_unavailable":
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, apiErr)
		}
		return nil, apiErr
	}

	var out checkin.Outcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Health checks if the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
	}
	return nil
}
