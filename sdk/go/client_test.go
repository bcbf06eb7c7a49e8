package techcommsdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"techcomm/internal/config"
	"techcomm/internal/domain"
	"techcomm/internal/engine"
	"techcomm/internal/engine/auth"
	"techcomm/internal/profile"
	"techcomm/internal/server"
	"techcomm/internal/store/snapshot"
)

const secret = "sdk-secret"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := snapshot.New(t.TempDir(), "")
	students := []domain.Student{{UID: "u1", Name: "Asha"}, {UID: "u2", Name: "Bruno"}, {UID: "mod", Name: "Mo"}}
	if err := st.Seed(context.Background(), nil, students); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cfg := config.Default()
	cfg.Roles = config.Roles{Organizers: []string{"mod"}}
	e := engine.New(st, cfg, nil, nil)
	names := profile.NewNameCache(profile.StoreFetcher{Students: st.Students()}, cfg.Profile)
	handler, err := server.New(server.Config{
		Engine:   e,
		Profiles: profile.Service{Students: st.Students(), Names: names},
		Names:    names,
		Auth:     server.AuthConfig{JWTSecret: secret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func clientFor(t *testing.T, baseURL, uid string) *Client {
	t.Helper()
	token, err := server.IssueToken(secret, auth.Actor{UID: uid}, "", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return New(baseURL, token)
}

func TestClientEventFlow(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	asha := clientFor(t, srv.URL, "u1")
	mod := clientFor(t, srv.URL, "mod")
	bruno := clientFor(t, srv.URL, "u2")

	ev, err := asha.RequestEvent(ctx, EventRequest{EventName: "Lightning Talks", Description: "five minutes each", Format: "Individual"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if ev.Status != "Pending" {
		t.Fatalf("expected Pending, got %s", ev.Status)
	}

	_, err = bruno.Approve(ctx, ev.ID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "not_found" {
		t.Fatalf("expected approve by a member to read as not found, got %v", err)
	}

	if _, err := mod.Approve(ctx, ev.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	joined, err := bruno.Join(ctx, ev.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(joined.Participants) != 1 || joined.Participants[0] != "u2" {
		t.Fatalf("unexpected participants %v", joined.Participants)
	}
	if _, err := asha.Close(ctx, ev.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	awarded, err := asha.AwardXP(ctx, ev.ID)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if awarded.XPAwardingStatus != "completed" {
		t.Fatalf("expected completed, got %s", awarded.XPAwardingStatus)
	}
	xp, err := bruno.StudentXP(ctx, "u2")
	if err != nil {
		t.Fatalf("student xp: %v", err)
	}
	if xp.TotalXP == 0 {
		t.Fatalf("expected participation xp, got %+v", xp)
	}

	public, err := New(srv.URL, "").PublicEvents(ctx)
	if err != nil || len(public) != 1 {
		t.Fatalf("public events: %v %v", public, err)
	}
}

func TestClientNames(t *testing.T) {
	srv := newServer(t)
	names, err := New(srv.URL, "").Names(context.Background(), "u1", "nobody-here")
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if names["u1"] != "Asha" || names["nobody-here"] != "User (nobod)" {
		t.Fatalf("unexpected names %v", names)
	}
}
