package domain

import (
	"reflect"
	"testing"
)

func TestFlattenTeamMembersSortedUnion(t *testing.T) {
	teams := []Team{
		{ID: "t1", Members: []string{"u3", "u1"}},
		{ID: "t2", Members: []string{"u2"}},
	}
	got := FlattenTeamMembers(teams)
	want := []string{"u1", "u2", "u3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if got := FlattenTeamMembers(nil); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestCheckInvariants(t *testing.T) {
	base := Event{
		Status:             StatusApproved,
		Details:            EventDetails{Format: FormatTeam},
		Teams:              []Team{{ID: "t1", Members: []string{"a", "b"}}},
		TeamMemberFlatList: []string{"a", "b"},
	}
	if err := base.CheckInvariants(); err != nil {
		t.Fatalf("expected valid event: %v", err)
	}

	stale := base
	stale.TeamMemberFlatList = []string{"a"}
	if err := stale.CheckInvariants(); err == nil {
		t.Fatalf("expected flat list mismatch")
	}

	dup := base
	dup.Teams = []Team{{ID: "t1", Members: []string{"a"}}, {ID: "t2", Members: []string{"a"}}}
	dup.TeamMemberFlatList = []string{"a"}
	if err := dup.CheckInvariants(); err == nil {
		t.Fatalf("expected duplicate membership violation")
	}

	voting := base
	voting.Status = StatusClosed
	voting.VotingOpen = true
	if err := voting.CheckInvariants(); err == nil {
		t.Fatalf("expected voting violation on closed event")
	}

	multi := Event{
		Status:       StatusApproved,
		Participants: []string{"a"},
		Details: EventDetails{Format: FormatMultiEvent, Phases: []EventPhase{
			{ID: "p1", Format: FormatIndividual, Participants: []string{"a", "z"}},
		}},
	}
	if err := multi.CheckInvariants(); err == nil {
		t.Fatalf("expected phase subset violation")
	}
}

func TestValidXPTransition(t *testing.T) {
	cases := []struct {
		from, to XPAwardingStatus
		ok       bool
	}{
		{"", XPInProgress, true},
		{XPPending, XPInProgress, true},
		{XPFailed, XPInProgress, true},
		{XPInProgress, XPCompleted, true},
		{XPInProgress, XPFailed, true},
		{XPCompleted, XPInProgress, false},
		{XPInProgress, XPPending, false},
		{XPPending, XPCompleted, false},
	}
	for _, c := range cases {
		if got := ValidXPTransition(c.from, c.to); got != c.ok {
			t.Errorf("%s -> %s: got %v want %v", c.from, c.to, got, c.ok)
		}
	}
}
