package domain

import "strconv"

type EventStatus string

const (
	StatusPending  EventStatus = "Pending"
	StatusApproved EventStatus = "Approved"
	StatusRejected EventStatus = "Rejected"
	StatusClosed   EventStatus = "Closed"
)

type EventFormat string

const (
	FormatIndividual EventFormat = "Individual"
	FormatTeam       EventFormat = "Team"
	FormatMultiEvent EventFormat = "MultiEvent"
)

type XPAwardingStatus string

const (
	XPPending    XPAwardingStatus = "pending"
	XPInProgress XPAwardingStatus = "in_progress"
	XPCompleted  XPAwardingStatus = "completed"
	XPFailed     XPAwardingStatus = "failed"
)

// BestPerformerKey is the winners key holding the tallied best performer.
const BestPerformerKey = "bestPerformer"

type EventDate struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type Criterion struct {
	ConstraintIndex int    `json:"constraintIndex"`
	ConstraintKey   string `json:"constraintKey,omitempty"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Points          int    `json:"points"`
	Role            string `json:"role"`
	TargetRole      string `json:"targetRole,omitempty"`
}

// Key identifies the criterion in votes and winners.
func (c Criterion) Key() string {
	if c.ConstraintKey != "" {
		return c.ConstraintKey
	}
	return strconv.Itoa(c.ConstraintIndex)
}

type Team struct {
	ID       string   `json:"id"`
	TeamName string   `json:"teamName"`
	Members  []string `json:"members"`
	TeamLead string   `json:"teamLead,omitempty"`
}

type EventPhase struct {
	ID                     string              `json:"id"`
	PhaseName              string              `json:"phaseName"`
	Description            string              `json:"description,omitempty"`
	Format                 EventFormat         `json:"format"`
	Type                   string              `json:"type,omitempty"`
	Participants           []string            `json:"participants"`
	CoreParticipants       []string            `json:"coreParticipants"`
	Criteria               []Criterion         `json:"criteria"`
	Teams                  []Team              `json:"teams"`
	Rules                  *string             `json:"rules"`
	Prize                  *string             `json:"prize"`
	AllowProjectSubmission bool                `json:"allowProjectSubmission"`
	Winners                map[string][]string `json:"winners,omitempty"`
}

type EventDetails struct {
	EventName              string       `json:"eventName"`
	Description            string       `json:"description"`
	Format                 EventFormat  `json:"format"`
	IsCompetition          bool         `json:"isCompetition,omitempty"`
	Organizers             []string     `json:"organizers"`
	CoreParticipants       []string     `json:"coreParticipants"`
	Type                   string       `json:"type,omitempty"`
	Date                   EventDate    `json:"date"`
	Rules                  *string      `json:"rules"`
	Prize                  *string      `json:"prize"`
	AllowProjectSubmission bool         `json:"allowProjectSubmission"`
	Phases                 []EventPhase `json:"phases,omitempty"`
}

type Submission struct {
	ProjectName   string `json:"projectName"`
	Link          string `json:"link"`
	Description   string `json:"description,omitempty"`
	SubmittedBy   string `json:"submittedBy"`
	SubmittedAt   string `json:"submittedAt"`
	ParticipantID string `json:"participantId,omitempty"`
	TeamName      string `json:"teamName,omitempty"`
	PhaseID       string `json:"phaseId,omitempty"`
}

type OrganizerRating struct {
	UserID   string `json:"userId"`
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
	RatedAt  string `json:"ratedAt"`
}

type LifecycleTimestamps struct {
	CreatedAt   string `json:"createdAt,omitempty"`
	ApprovedAt  string `json:"approvedAt,omitempty"`
	StartedAt   string `json:"startedAt,omitempty"`
	RejectedAt  string `json:"rejectedAt,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
	CancelledAt string `json:"cancelledAt,omitempty"`
	ClosedAt    string `json:"closedAt,omitempty"`
}

// Event is the central aggregate persisted in the events collection.
type Event struct {
	ID                      string                       `json:"id"`
	Details                 EventDetails                 `json:"details"`
	Status                  EventStatus                  `json:"status"`
	RequestedBy             string                       `json:"requestedBy"`
	VotingOpen              bool                         `json:"votingOpen"`
	LastUpdatedAt           string                       `json:"lastUpdatedAt,omitempty"`
	Participants            []string                     `json:"participants"`
	Teams                   []Team                       `json:"teams"`
	TeamMemberFlatList      []string                     `json:"teamMemberFlatList"`
	Criteria                []Criterion                  `json:"criteria"`
	Submissions             []Submission                 `json:"submissions"`
	CriteriaVotes           map[string]map[string]string `json:"criteriaVotes,omitempty"`
	BestPerformerSelections map[string]string            `json:"bestPerformerSelections,omitempty"`
	Winners                 map[string][]string          `json:"winners,omitempty"`
	ManuallySelectedBy      string                       `json:"manuallySelectedBy,omitempty"`
	OrganizerRatings        map[string]OrganizerRating   `json:"organizerRatings,omitempty"`
	LifecycleTimestamps     LifecycleTimestamps          `json:"lifecycleTimestamps"`
	RejectionReason         string                       `json:"rejectionReason,omitempty"`
	XPAwardingStatus        XPAwardingStatus             `json:"xpAwardingStatus,omitempty"`
	XPAwardStartedAt        string                       `json:"xpAwardStartedAt,omitempty"`
	XPAwardedAt             string                       `json:"xpAwardedAt,omitempty"`
	XPAwardError            string                       `json:"xpAwardError,omitempty"`
	XPAwards                map[string]map[string]int    `json:"xpAwards,omitempty"`
}

// IsOrganizer reports whether uid is listed as an organizer.
func (e Event) IsOrganizer(uid string) bool {
	return contains(e.Details.Organizers, uid)
}

// IsParticipant reports whether uid joined directly or through a team.
func (e Event) IsParticipant(uid string) bool {
	return contains(e.Participants, uid) || contains(e.TeamMemberFlatList, uid)
}

// TeamOf returns the team holding uid.
func (e Event) TeamOf(uid string) (Team, bool) {
	for _, t := range e.Teams {
		if contains(t.Members, uid) {
			return t, true
		}
	}
	return Team{}, false
}

// Phase looks up a phase by id.
func (e Event) Phase(id string) (EventPhase, bool) {
	for _, p := range e.Details.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return EventPhase{}, false
}

// CriterionByKey looks up an event-level criterion.
func (e Event) CriterionByKey(key string) (Criterion, bool) {
	for _, c := range e.Criteria {
		if c.Key() == key {
			return c, true
		}
	}
	return Criterion{}, false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
