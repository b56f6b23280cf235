package oddsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/rewired-gh/arbscout/internal/logger"
	"github.com/rewired-gh/arbscout/internal/models"
)

// Client fetches quote snapshots from an HTTP odds feed
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new feed client. rps limits outgoing requests,
// retries included.
func NewClient(baseURL, apiKey string, timeout time.Duration, maxRetries int, retryDelayBase time.Duration, rps float64) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:        rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// GetLatestQuotes retrieves the current snapshot. Quotes the adapter cannot
// read are dropped; a feed with nothing in it yields ErrEmptyFeed.
func (c *Client) GetLatestQuotes(ctx context.Context) ([]models.Quote, error) {
	resp, err := c.doRequest(ctx, c.baseURL+"/odds")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch odds: %w", err)
	}
	defer resp.Body.Close()

	var wire []WireQuote
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode odds: %w", err)
	}
	if len(wire) == 0 {
		return nil, ErrEmptyFeed
	}

	quotes, dropped := ConvertAll(wire)
	if dropped > 0 {
		logger.Info("Dropped %d of %d feed quotes", dropped, len(wire))
	}
	return quotes, nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.retryDelayBase):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger.Debug("Odds feed request failed (attempt %d): %v", i+1, err)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("client error: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
