// Package httpx provides the signed HTTP transport shared by all REST calls
// against the brokerage, with bounded exponential-backoff retry on transient
// failures.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "httpx")

// Config tunes the transport.
type Config struct {
	BaseURL     string
	KeyID       string
	SecretKey   string
	Timeout     time.Duration // per-attempt timeout
	MaxRetries  int           // retries after the first attempt
	BackoffBase time.Duration // doubled on every attempt
}

// Client executes signed REST calls over one pooled connection set.
// Safe for concurrent use; closed explicitly by its owner.
type Client struct {
	rc          *resty.Client
	maxRetries  int
	backoffBase time.Duration
}

// NewClient builds the transport. Authentication is two static headers
// set once on the pooled client; resty's own retry is disabled so the
// attempt accounting here stays exact.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := cfg.BackoffBase
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetHeader("APCA-API-KEY-ID", cfg.KeyID).
		SetHeader("APCA-API-SECRET-KEY", cfg.SecretKey)

	return &Client{
		rc:          rc,
		maxRetries:  cfg.MaxRetries,
		backoffBase: backoff,
	}
}

// Execute runs one REST call and returns the parsed response body.
// A no-content response yields an empty JSON object.
//
// Retry policy: rate-limit responses, server errors, and network-level
// failures are retried up to MaxRetries with exponential backoff; any other
// client error is surfaced immediately. After exhausting retries the last
// failure is returned.
func (c *Client) Execute(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoffBase << (attempt - 1)
			if ra := retryAfterHint(lastErr); ra > wait {
				wait = ra
			}
			log.Debugf("retrying %s %s in %s (attempt %d/%d): %v", method, path, wait, attempt+1, c.maxRetries+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		req := c.rc.R().SetContext(ctx)
		if query != nil {
			req.SetQueryParamsFromValues(query)
		}
		if body != nil {
			req.SetBody(body)
		}

		resp, err := req.Execute(strings.ToUpper(method), path)
		if err != nil {
			lastErr = &TransientError{Err: err}
			continue
		}

		status := resp.StatusCode()
		switch {
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = &TransientError{
				StatusCode: status,
				Message:    strings.TrimSpace(string(resp.Body())),
				Err:        retryAfterError(resp),
			}
			continue
		case status >= 400:
			return nil, parseAPIError(status, resp.Body())
		}

		raw := resp.Body()
		if len(raw) == 0 || status == http.StatusNoContent {
			return json.RawMessage("{}"), nil
		}
		return json.RawMessage(raw), nil
	}

	return nil, errors.Wrapf(lastErr, "%s %s failed after %d attempts", method, path, c.maxRetries+1)
}

// Close releases the pooled connections. The transport owns them for its
// lifetime and must be closed by its owner, not left to implicit cleanup.
func (c *Client) Close() {
	if t, ok := c.rc.GetClient().Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// retryAfterErr carries the server's Retry-After hint through the retry loop.
type retryAfterErr struct {
	wait time.Duration
}

func (e *retryAfterErr) Error() string {
	return "rate limited, retry after " + e.wait.String()
}

func retryAfterError(resp *resty.Response) error {
	if resp.StatusCode() != http.StatusTooManyRequests {
		return nil
	}
	if ra := resp.Header().Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return &retryAfterErr{wait: time.Duration(secs) * time.Second}
		}
	}
	return nil
}

func retryAfterHint(err error) time.Duration {
	var ra *retryAfterErr
	if errors.As(err, &ra) {
		return ra.wait
	}
	return 0
}

func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	var parsed struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
	}
	return apiErr
}
