// Package notify is the channel through which transient user-facing messages
// surface. The API client publishes at most one notification per failing
// request; the CLI renders them on stderr.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Severity classifies a notification for rendering purposes.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a single transient user-facing message.
type Notification struct {
	Message  string
	Severity Severity
}

// Sink accepts notifications for display.
type Sink interface {
	Publish(n Notification)
}

// ConsoleSink writes notifications to a writer, one per line.
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleSink creates a sink writing to the given writer.
// A nil writer defaults to stderr.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	if out == nil {
		out = os.Stderr
	}
	return &ConsoleSink{out: out}
}

// Publish writes the notification with a severity marker.
func (s *ConsoleSink) Publish(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch n.Severity {
	case SeverityError:
		fmt.Fprintf(s.out, "error: %s\n", n.Message)
	case SeverityWarning:
		fmt.Fprintf(s.out, "warning: %s\n", n.Message)
	default:
		fmt.Fprintf(s.out, "%s\n", n.Message)
	}
}

// Recorder captures notifications for inspection in tests.
type Recorder struct {
	mu   sync.Mutex
	seen []Notification
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish records the notification.
func (r *Recorder) Publish(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

// All returns a copy of every notification published so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.seen))
	copy(out, r.seen)
	return out
}

// Reset clears recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = nil
}
