package auth

import (
	"fmt"
	"strings"

	"techcomm/internal/apperr"
	"techcomm/internal/config"
	"techcomm/internal/domain"
)

// Actor is the caller of an engine operation as reported by the identity
// provider.
type Actor struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`

	system bool
}

// SystemUID is reserved for System; callers may not claim it.
const SystemUID = "system"

// System acts for scheduled jobs and holds admin capability. Actors built
// from caller input never carry it, whatever their uid.
var System = Actor{UID: SystemUID, DisplayName: "System", system: true}

// Reserved reports whether uid may not be used by a caller.
func Reserved(uid string) bool {
	return strings.EqualFold(strings.TrimSpace(uid), SystemUID)
}

// Anonymous reports whether no identity was supplied.
func (a Actor) Anonymous() bool { return a.UID == "" }

// ForbiddenError indicates a missing capability.
type ForbiddenError struct {
	Capability string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("capability %s required", e.Capability)
}

const (
	CapAuthenticated = "authenticated"
	CapAdmin         = "admin"
	CapModerator     = "admin or organizer role"
	CapManager       = "event organizer"
	CapRequester     = "requester"
	CapOwner         = "profile owner"
	CapParticipant   = "participant"
)

// Deny builds the classified error for a missing capability.
func Deny(op, capability string) error {
	return &apperr.Error{Kind: apperr.KindForbidden, Op: op, Err: ForbiddenError{Capability: capability}}
}

// Checker answers capability questions from configured roles and event
// data.
type Checker struct {
	Roles config.Roles
}

func (c Checker) IsAdmin(a Actor) bool {
	return a.system || c.Roles.IsAdmin(a.UID)
}

// CanModerate covers approving, rejecting and closing any event.
func (c Checker) CanModerate(a Actor) bool {
	return c.IsAdmin(a) || c.Roles.IsOrganizer(a.UID)
}

// CanManage reports whether a may run an event: teams, voting, closing
// and XP.
func (c Checker) CanManage(a Actor, e domain.Event) bool {
	return c.CanModerate(a) || e.IsOrganizer(a.UID)
}

// Authenticated rejects anonymous callers.
func (c Checker) Authenticated(op string, a Actor) error {
	if a.Anonymous() {
		return Deny(op, CapAuthenticated)
	}
	return nil
}

func (c Checker) RequireModerator(op string, a Actor) error {
	if !c.CanModerate(a) {
		return Deny(op, CapModerator)
	}
	return nil
}

func (c Checker) RequireManager(op string, a Actor, e domain.Event) error {
	if !c.CanManage(a, e) {
		return Deny(op, CapManager)
	}
	return nil
}
