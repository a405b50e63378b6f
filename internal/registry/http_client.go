package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agoratix/ticketpay/internal/retry"
)

// HTTPClient talks to the registry service over its JSON API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a registry client for the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *HTTPClient) GetEvent(ctx context.Context, eventID string) (*EventInfo, error) {
	var info EventInfo
	if err := c.get(ctx, "/v1/events/"+url.PathEscape(eventID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *HTTPClient) GetEventPaymentInfo(ctx context.Context, eventID string) (*PaymentInfo, error) {
	var info PaymentInfo
	if err := c.get(ctx, "/v1/events/"+url.PathEscape(eventID)+"/payment-info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *HTTPClient) ListByOrganizer(ctx context.Context, organizerAddr string) ([]*EventInfo, error) {
	var events []*EventInfo
	err := c.get(ctx, "/v1/organizers/"+url.PathEscape(strings.ToLower(organizerAddr))+"/events", &events)
	switch {
	case errors.Is(err, ErrEventNotFound):
		// The registry 404s organizers with no events; that's an empty
		// list, not a failure.
		return nil, nil
	case err != nil:
		return nil, err
	}
	return events, nil
}

func (c *HTTPClient) IncrementInventory(ctx context.Context, eventID, tierID string, quantity uint32) error {
	body := map[string]any{"tierId": tierID, "quantity": quantity}
	return c.post(ctx, "/v1/events/"+url.PathEscape(eventID)+"/inventory/increment", body)
}

func (c *HTTPClient) DecrementInventory(ctx context.Context, eventID, tierID string) error {
	body := map[string]any{"tierId": tierID}
	return c.post(ctx, "/v1/events/"+url.PathEscape(eventID)+"/inventory/decrement", body)
}

// get retries transient failures. Reads are idempotent; posts are not,
// so only this path retries.
func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, 3, 250*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("registry: build request: %w", err))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(ErrEventNotFound)
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("registry: decode response: %w", err))
		}
		return nil
	})
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("registry: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrEventNotFound
	default:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}
