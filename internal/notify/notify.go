// Package notify delivers alert notifications to the terminal and webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"alertdash/internal/models"
)

// Notifier receives notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Channel is one notification destination.
type Channel interface {
	Notifier
	Name() string
	IsEnabled() bool
}

// Notification describes an alert that started triggering.
type Notification struct {
	AlertID   string           `json:"alert_id"`
	Ticker    string           `json:"ticker"`
	AlertType models.AlertType `json:"alert_type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// Triggered builds the notification for an alert entering the triggered
// state.
func Triggered(alert models.Alert, metrics *models.MarketMetrics, at time.Time) Notification {
	n := Notification{
		AlertID:   alert.ID,
		Ticker:    alert.Ticker,
		AlertType: alert.AlertType,
		Title:     fmt.Sprintf("%s %s", alert.Ticker, describe(alert)),
		Timestamp: at,
	}
	if alert.Message != nil {
		n.Message = *alert.Message
	} else if metrics != nil && metrics.Price != nil {
		n.Message = fmt.Sprintf("last price %.2f", *metrics.Price)
	}
	return n
}

func describe(a models.Alert) string {
	switch a.AlertType {
	case models.AlertPriceAbove:
		return fmt.Sprintf("above %.2f", a.ThresholdValue)
	case models.AlertPriceBelow:
		return fmt.Sprintf("below %.2f", a.ThresholdValue)
	case models.AlertSMA50AboveSMA200:
		return "SMA50 crossed above SMA200"
	case models.AlertSMA50BelowSMA200:
		return "SMA50 crossed below SMA200"
	case models.AlertSMA50ApproachingSMA200:
		return fmt.Sprintf("SMA50 within %g%% of SMA200", a.ThresholdValue)
	default:
		return strings.ToLower(string(a.AlertType))
	}
}

// Multi fans a notification out to every enabled channel.
type Multi struct {
	mu       sync.RWMutex
	channels []Channel
}

// NewMulti creates a Multi over channels.
func NewMulti(channels ...Channel) *Multi {
	return &Multi{channels: channels}
}

// AddChannel adds a notification channel.
func (m *Multi) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Len returns the number of enabled channels.
func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, ch := range m.channels {
		if ch.IsEnabled() {
			n++
		}
	}
	return n
}

// Send delivers n to every enabled channel. One failing channel does not
// stop the others.
func (m *Multi) Send(ctx context.Context, n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	m.mu.RLock()
	channels := m.channels
	m.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Webhook posts notifications as JSON.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook channel; an empty url disables it.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the channel name.
func (w *Webhook) Name() string {
	return "webhook"
}

// IsEnabled returns whether a URL is configured.
func (w *Webhook) IsEnabled() bool {
	return w.url != ""
}

// Send posts the notification.
func (w *Webhook) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "alertdash/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
