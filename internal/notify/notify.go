package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is user-visible feedback about one operation.
type Notification struct {
	Op           string        `json:"op,omitempty"`
	Message      string        `json:"message"`
	Severity     Severity      `json:"severity"`
	DurationHint time.Duration `json:"durationHint"`
}

// Sink receives notifications. Delivery is fire-and-forget.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// DefaultDuration returns how long a notification of the given severity
// should stay visible.
func DefaultDuration(s Severity) time.Duration {
	switch s {
	case SeverityError:
		return 6 * time.Second
	case SeverityWarning:
		return 5 * time.Second
	default:
		return 3 * time.Second
	}
}

// LogSink writes notifications to a structured logger.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, n Notification) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Severity {
	case SeverityError:
		level = slog.LevelError
	case SeverityWarning:
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "notification", "message", n.Message, "severity", string(n.Severity), "duration", n.DurationHint)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	list []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.list...)
}

// Reset drops recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = nil
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, Notification) {}

// Multi fans a notification out to several sinks.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, n)
		}
	}
}
