package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"techcomm/internal/config"
)

func TestRecorderCopies(t *testing.T) {
	var r Recorder
	r.Notify(context.Background(), Notification{Message: "a", Severity: SeveritySuccess})
	got := r.All()
	got[0].Message = "changed"
	if r.All()[0].Message != "a" {
		t.Fatalf("recorder exposed internal slice")
	}
	r.Reset()
	if len(r.All()) != 0 {
		t.Fatalf("expected reset")
	}
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Log: slog.New(slog.NewTextHandler(&buf, nil))}
	sink.Notify(context.Background(), Notification{Message: "boom", Severity: SeverityError, DurationHint: DefaultDuration(SeverityError)})
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "message=boom") {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestMultiFansOut(t *testing.T) {
	var a, b Recorder
	Multi{&a, nil, &b}.Notify(context.Background(), Notification{Message: "x"})
	if len(a.All()) != 1 || len(b.All()) != 1 {
		t.Fatalf("expected both sinks to receive the notification")
	}
}

func TestWebhookSinkFiltersBySeverity(t *testing.T) {
	var mu sync.Mutex
	var got []webhookNotification
	var secrets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n webhookNotification
		_ = json.NewDecoder(r.Body).Decode(&n)
		mu.Lock()
		got = append(got, n)
		secrets = append(secrets, r.Header.Get("X-Techcomm-Secret"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	off := false
	sink := NewWebhookSink([]config.WebhookConfig{
		{URL: srv.URL, Secret: "s3cret", Severities: []string{"error"}},
		{URL: srv.URL, Enabled: &off},
	}, nil)
	ctx := context.Background()
	sink.Notify(ctx, Notification{Op: "join", Message: "You joined the event.", Severity: SeveritySuccess})
	sink.Notify(ctx, Notification{Op: "close", Message: "You do not have access to this event.", Severity: SeverityError})
	sink.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Op != "close" || got[0].Severity != "error" {
		t.Fatalf("unexpected deliveries %+v", got)
	}
	if secrets[0] != "s3cret" {
		t.Fatalf("expected secret header, got %q", secrets[0])
	}
}

func TestWebhookSinkDropsAfterClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWebhookSink([]config.WebhookConfig{{URL: "http://127.0.0.1:1/hook"}}, slog.New(slog.NewTextHandler(&buf, nil)))
	sink.Close()
	sink.Close()
	sink.Notify(context.Background(), Notification{Op: "leave", Message: "late", Severity: SeverityError})
	if !strings.Contains(buf.String(), "webhook sink closed") {
		t.Fatalf("expected dropped notification to be logged, got %q", buf.String())
	}
}
