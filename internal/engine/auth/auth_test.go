package auth

import (
	"errors"
	"testing"

	"techcomm/internal/apperr"
	"techcomm/internal/config"
	"techcomm/internal/domain"
)

func TestCapabilities(t *testing.T) {
	c := Checker{Roles: config.Roles{Admins: []string{"root"}, Organizers: []string{"mod"}}}
	ev := domain.Event{Details: domain.EventDetails{Organizers: []string{"org"}}}

	if !c.IsAdmin(System) || !c.IsAdmin(Actor{UID: "root"}) || c.IsAdmin(Actor{UID: "mod"}) {
		t.Fatalf("unexpected admin resolution")
	}
	if !c.CanModerate(Actor{UID: "mod"}) || c.CanModerate(Actor{UID: "org"}) {
		t.Fatalf("unexpected moderator resolution")
	}
	if !c.CanManage(Actor{UID: "org"}, ev) || c.CanManage(Actor{UID: "someone"}, ev) {
		t.Fatalf("unexpected manager resolution")
	}
}

func TestDenyIsForbidden(t *testing.T) {
	c := Checker{}
	err := c.Authenticated("join", Actor{})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	var fe ForbiddenError
	if !errors.As(err, &fe) || fe.Capability != CapAuthenticated {
		t.Fatalf("expected capability detail, got %v", err)
	}
	if err := c.RequireModerator("approve", Actor{UID: "u1"}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSystemCannotBeImpersonated(t *testing.T) {
	c := Checker{}
	forged := Actor{UID: SystemUID, DisplayName: "System"}
	if c.IsAdmin(forged) || c.CanModerate(forged) {
		t.Fatalf("actor built from input must not inherit system capability")
	}
	if !c.IsAdmin(System) {
		t.Fatalf("system actor lost admin capability")
	}
	for _, uid := range []string{"system", " System "} {
		if !Reserved(uid) {
			t.Fatalf("expected %q to be reserved", uid)
		}
	}
	if Reserved("u1") {
		t.Fatalf("u1 is not reserved")
	}
}
