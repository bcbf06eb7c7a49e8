package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"techcomm/internal/config"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	defaultWebhookQueue   = 256
)

// WebhookSink posts notifications to the configured webhooks from a
// background worker. Notify never blocks; when the queue is full the
// notification is dropped and logged.
type WebhookSink struct {
	hooks  []config.WebhookConfig
	client *http.Client
	log    *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Notification
	wg     sync.WaitGroup
}

func NewWebhookSink(hooks []config.WebhookConfig, log *slog.Logger) *WebhookSink {
	if log == nil {
		log = slog.Default()
	}
	active := make([]config.WebhookConfig, 0, len(hooks))
	for _, h := range hooks {
		if h.Active() {
			active = append(active, h)
		}
	}
	s := &WebhookSink{
		hooks:  active,
		client: &http.Client{Timeout: defaultWebhookTimeout},
		log:    log,
		now:    time.Now,
		queue:  make(chan Notification, defaultWebhookQueue),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *WebhookSink) Notify(_ context.Context, n Notification) {
	if len(s.hooks) == 0 {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Warn("webhook sink closed, notification dropped", "op", n.Op, "severity", string(n.Severity))
		return
	}
	select {
	case s.queue <- n:
	default:
		s.log.Warn("webhook queue full, notification dropped", "op", n.Op, "severity", string(n.Severity))
	}
}

// Close stops accepting notifications and waits for queued deliveries.
// Notifications sent after Close are dropped.
func (s *WebhookSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *WebhookSink) run() {
	defer s.wg.Done()
	for n := range s.queue {
		for _, hook := range s.hooks {
			if !severityFilter(hook.Severities).match(string(n.Severity)) {
				continue
			}
			if err := s.post(hook, n); err != nil {
				s.log.Error("webhook delivery failed", "url", hook.URL, "err", err)
			}
		}
	}
}

type webhookNotification struct {
	Op         string `json:"op,omitempty"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	DurationMS int64  `json:"durationMs"`
	TS         string `json:"ts"`
}

func (s *WebhookSink) post(hook config.WebhookConfig, n Notification) error {
	data, err := json.Marshal(webhookNotification{
		Op:         n.Op,
		Message:    n.Message,
		Severity:   string(n.Severity),
		DurationMS: n.DurationHint.Milliseconds(),
		TS:         s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Techcomm-Severity", string(n.Severity))
	req.Header.Set("X-Techcomm-Delivery", uuid.NewString())
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Techcomm-Secret", hook.Secret)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type severitySet struct {
	all bool
	set map[string]struct{}
}

func severityFilter(severities []string) severitySet {
	set := make(map[string]struct{}, len(severities))
	for _, s := range severities {
		if key := strings.TrimSpace(s); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return severitySet{all: true}
	}
	return severitySet{set: set}
}

func (f severitySet) match(sev string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[sev]
	return ok
}
