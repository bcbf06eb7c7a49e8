package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FlattenTeamMembers returns the sorted, de-duplicated union of all team
// members. Events store it as teamMemberFlatList.
func FlattenTeamMembers(teams []Team) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, t := range teams {
		for _, m := range t.Members {
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// CheckInvariants verifies the structural invariants of an event. It returns
// the first violation found.
func (e Event) CheckInvariants() error {
	flat := FlattenTeamMembers(e.Teams)
	if !equalStrings(flat, normalized(e.TeamMemberFlatList)) {
		return fmt.Errorf("teamMemberFlatList %v does not match team members %v", e.TeamMemberFlatList, flat)
	}
	if err := checkTeamMembership(e.Teams); err != nil {
		return err
	}
	if e.VotingOpen && e.Status != StatusApproved {
		return fmt.Errorf("voting open while event is %s", e.Status)
	}
	if len(e.Winners) > 0 && e.VotingOpen {
		return errors.New("winners set while voting is open")
	}
	if e.Details.Format == FormatMultiEvent {
		all := map[string]bool{}
		for _, p := range e.Participants {
			all[p] = true
		}
		for _, p := range e.TeamMemberFlatList {
			all[p] = true
		}
		for _, ph := range e.Details.Phases {
			for _, p := range ph.Participants {
				if !all[p] {
					return fmt.Errorf("phase %s participant %s is not an event participant", ph.ID, p)
				}
			}
			if err := checkTeamMembership(ph.Teams); err != nil {
				return fmt.Errorf("phase %s: %w", ph.ID, err)
			}
		}
	} else if len(e.Details.Phases) > 0 {
		return fmt.Errorf("phases are only allowed for %s events", FormatMultiEvent)
	}
	return nil
}

func checkTeamMembership(teams []Team) error {
	owner := map[string]string{}
	ids := map[string]bool{}
	for _, t := range teams {
		if t.ID != "" {
			if ids[t.ID] {
				return fmt.Errorf("duplicate team id %s", t.ID)
			}
			ids[t.ID] = true
		}
		for _, m := range t.Members {
			if prev, ok := owner[m]; ok && prev != t.ID {
				return fmt.Errorf("member %s is in teams %s and %s", m, prev, t.ID)
			}
			owner[m] = t.ID
		}
	}
	return nil
}

// ValidXPTransition reports whether the XP awarding status may move from
// one value to another. An empty status counts as pending.
func ValidXPTransition(from, to XPAwardingStatus) bool {
	if from == "" {
		from = XPPending
	}
	switch from {
	case XPPending, XPFailed:
		return to == XPInProgress
	case XPInProgress:
		return to == XPCompleted || to == XPFailed
	}
	return false
}

// MissingRequired lists required fields absent from a new event document.
func (e Event) MissingRequired() []string {
	var missing []string
	if strings.TrimSpace(e.Details.EventName) == "" {
		missing = append(missing, "details.eventName")
	}
	if e.RequestedBy == "" {
		missing = append(missing, "requestedBy")
	}
	if e.Status == "" {
		missing = append(missing, "status")
	}
	return missing
}

// MissingRequired lists required fields absent from a new student document.
func (s Student) MissingRequired() []string {
	var missing []string
	if strings.TrimSpace(s.Name) == "" {
		missing = append(missing, "name")
	}
	return missing
}

func normalized(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
