// Package client talks to the dashboard backend over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "alertdash/internal/errors"
	"alertdash/internal/logging"
	"alertdash/internal/models"
	"alertdash/internal/resilience"
	"alertdash/pkg/utils"
)

// maxErrorBody caps how much of a failed response body is kept in an APIError.
const maxErrorBody = 4096

// Option configures a Client.
type Option func(*Client)

// Client is the dashboard backend client. It serves both the alert store
// and the snapshot provider.
type Client struct {
	baseURL *url.URL
	timeout time.Duration
	retry   utils.RetryConfig
	http    *http.Client
	logger  zerolog.Logger
	breaker *resilience.Breaker
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		timeout: 15 * time.Second,
		retry:   utils.DefaultRetryConfig(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.retry.Retryable == nil {
		c.retry.Retryable = IsTransient
	}
	return c, nil
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRetryAttempts sets how many times a read request is attempted.
func WithRetryAttempts(attempts int) Option {
	return func(c *Client) {
		c.retry.MaxAttempts = attempts
	}
}

// WithRetryConfig replaces the retry configuration for read requests.
func WithRetryConfig(cfg utils.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithHTTPClient uses hc instead of a default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBreaker guards read requests with a circuit breaker. While it is
// open, reads fail fast with resilience.ErrCircuitOpen.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// ListAlerts fetches every alert.
func (c *Client) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	var alerts []models.Alert
	if err := c.get(ctx, "/alerts", &alerts); err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return alerts, nil
}

// CreateAlert creates an alert and returns it as the backend stored it.
func (c *Client) CreateAlert(ctx context.Context, in models.CreateAlertInput) (models.Alert, error) {
	var created models.Alert
	if err := c.do(ctx, http.MethodPost, "/alerts", in, &created); err != nil {
		return models.Alert{}, err
	}
	return created, nil
}

// UpdateAlert applies a partial update to one alert.
func (c *Client) UpdateAlert(ctx context.Context, id string, patch models.AlertPatch) (models.Alert, error) {
	var updated models.Alert
	if err := c.do(ctx, http.MethodPut, "/alerts/"+url.PathEscape(id), patch, &updated); err != nil {
		return models.Alert{}, err
	}
	return updated, nil
}

// DeleteAlert deletes one alert.
func (c *Client) DeleteAlert(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/alerts/"+url.PathEscape(id), nil, nil)
}

// DeleteAllAlerts deletes every alert.
func (c *Client) DeleteAllAlerts(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/alerts", nil, nil)
}

// Holdings fetches the held positions.
func (c *Client) Holdings(ctx context.Context) ([]models.HoldingRecord, error) {
	var holdings []models.HoldingRecord
	if err := c.get(ctx, "/holdings", &holdings); err != nil {
		return nil, err
	}
	return holdings, nil
}

// Watchlist fetches the watchlist entries.
func (c *Client) Watchlist(ctx context.Context) ([]models.WatchlistRecord, error) {
	var watchlist []models.WatchlistRecord
	if err := c.get(ctx, "/watchlist", &watchlist); err != nil {
		return nil, err
	}
	return watchlist, nil
}

// Health reports whether the backend answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// get performs an idempotent request with retries.
func (c *Client) get(ctx context.Context, path string, dest interface{}) error {
	fetch := func() error {
		return utils.Retry(ctx, c.retry, func() error {
			return c.do(ctx, http.MethodGet, path, nil, dest)
		})
	}
	if c.breaker == nil {
		return fetch()
	}
	return c.breaker.Execute(fetch)
}

func (c *Client) do(ctx context.Context, method, path string, body, dest interface{}) error {
	start := time.Now()
	status, err := c.send(ctx, method, path, body, dest)
	logging.LogAPICall(c.logger, method, path, status, time.Since(start), err)
	return err
}

func (c *Client) send(ctx context.Context, method, path string, body, dest interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal json: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, apperrors.NewAPIError(method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if dest == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return resp.StatusCode, nil
}

// IsTransient reports whether err is a transport failure or server error
// worth retrying. Client errors and cancellations are final.
func IsTransient(err error) bool {
	if apperrors.Is(err, context.Canceled) || apperrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *apperrors.APIError
	if apperrors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
