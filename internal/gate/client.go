// Package gate is a client for the GATE Cloud TwitIE named-entity
// recognizer. The service receives raw text and returns the processed
// text plus entity spans; everything beyond that request/response shape
// is the service's own business.
package gate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultURL is the TwitIE named-entity recognizer endpoint on GATE Cloud.
const DefaultURL = "https://cloud-api.gate.ac.uk/process-document/twitie-named-entity-recognizer-for-tweets"

// AuthenticationError reports rejected credentials. It is never retried.
type AuthenticationError struct {
	Status int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("gate: authentication rejected (HTTP %d)", e.Status)
}

// Config holds the connection settings for one client.
type Config struct {
	URL      string
	Username string
	Password string
	// Timeout bounds a single HTTP request. Zero means 2 minutes.
	Timeout time.Duration
	// MaxAttempts bounds retries on transient failures. Zero means 3.
	MaxAttempts int
}

// Client submits documents to the annotation service.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Process submits one text payload and returns the parsed response.
// Transient failures (transport errors, 429, 5xx) are retried with
// exponential backoff up to MaxAttempts; 401/403 surface as
// AuthenticationError immediately.
func (c *Client) Process(ctx context.Context, text string) (*Result, error) {
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, retry, err := c.processOnce(ctx, text)
		if err == nil {
			return result, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("gate: giving up after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

func (c *Client) processOnce(ctx context.Context, text string) (*Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(text))
	if err != nil {
		return nil, false, fmt.Errorf("gate: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("gate: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		result, err := decodeResult(resp.Body)
		if err != nil {
			return nil, false, err
		}
		return result, false, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, false, &AuthenticationError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, true, fmt.Errorf("gate: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("gate: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
