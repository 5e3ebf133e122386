package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Terminal writes notifications as single lines, optionally ringing the
// bell.
type Terminal struct {
	mu         sync.Mutex
	w          io.Writer
	bell       bool
	color      bool
	timeFormat string
}

// NewTerminal creates a terminal channel writing to w.
func NewTerminal(w io.Writer, bell, color bool, timeFormat string) *Terminal {
	if timeFormat == "" {
		timeFormat = "15:04:05"
	}
	return &Terminal{w: w, bell: bell, color: color, timeFormat: timeFormat}
}

// Name returns the channel name.
func (t *Terminal) Name() string {
	return "terminal"
}

// IsEnabled always reports true.
func (t *Terminal) IsEnabled() bool {
	return true
}

// Send writes the notification line.
func (t *Terminal) Send(ctx context.Context, n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	title := n.Title
	if t.color {
		title = "\033[1;31m" + title + "\033[0m"
	}
	line := fmt.Sprintf("%s  ▲ %s", n.Timestamp.Local().Format(t.timeFormat), title)
	if n.Message != "" {
		line += "  " + n.Message
	}
	if t.bell {
		line = "\a" + line
	}

	_, err := fmt.Fprintln(t.w, line)
	return err
}
