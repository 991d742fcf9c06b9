package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// TerminalNotifier prints notifications to a writer, for interactive runs.
type TerminalNotifier struct {
	mu           sync.Mutex
	out          io.Writer
	colorEnabled bool
	now          func() time.Time
}

// NewTerminalNotifier creates a TerminalNotifier writing to out.
func NewTerminalNotifier(out io.Writer, colorEnabled bool) *TerminalNotifier {
	return &TerminalNotifier{out: out, colorEnabled: colorEnabled, now: time.Now}
}

// Send writes the subject line and indented body.
func (t *TerminalNotifier) Send(_ context.Context, subject, body string, _ []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.out, FormatNotification(t.now(), subject, body, t.colorEnabled))
	return err == nil
}

// FormatNotification renders a notification for a terminal.
func FormatNotification(at time.Time, subject, body string, colorEnabled bool) string {
	var color, reset string
	if colorEnabled {
		reset = "\033[0m"
		switch {
		case strings.Contains(subject, "SELL"):
			color = "\033[31m"
		case strings.Contains(subject, "BUY"):
			color = "\033[32m"
		default:
			color = "\033[36m"
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[%s] %s%s\n", color, at.Format("15:04:05"), subject, reset)
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		sb.WriteString("    ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
