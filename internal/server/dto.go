package server

import (
	"techcomm/internal/domain"
	"techcomm/internal/engine"
	"techcomm/internal/profile"
)

// Request payloads

type CriterionRequest struct {
	ConstraintIndex int    `json:"constraintIndex,omitempty"`
	ConstraintKey   string `json:"constraintKey,omitempty"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Points          int    `json:"points"`
	Role            string `json:"role"`
	TargetRole      string `json:"targetRole,omitempty"`
}

type TeamRequest struct {
	ID       string   `json:"id,omitempty"`
	TeamName string   `json:"teamName"`
	Members  []string `json:"members"`
	TeamLead string   `json:"teamLead,omitempty"`
}

type PhaseRequest struct {
	ID                     string             `json:"id,omitempty"`
	PhaseName              string             `json:"phaseName"`
	Description            string             `json:"description,omitempty"`
	Format                 string             `json:"format" example:"Individual"`
	Type                   string             `json:"type,omitempty"`
	Participants           []string           `json:"participants,omitempty"`
	CoreParticipants       []string           `json:"coreParticipants,omitempty"`
	Criteria               []CriterionRequest `json:"criteria,omitempty"`
	Teams                  []TeamRequest      `json:"teams,omitempty"`
	Rules                  *string            `json:"rules,omitempty"`
	Prize                  *string            `json:"prize,omitempty"`
	AllowProjectSubmission bool               `json:"allowProjectSubmission,omitempty"`
}

type EventDetailsRequest struct {
	EventName              string         `json:"eventName" example:"Hack Day"`
	Description            string         `json:"description,omitempty"`
	Format                 string         `json:"format" example:"Team"`
	IsCompetition          bool           `json:"isCompetition,omitempty"`
	Organizers             []string       `json:"organizers,omitempty"`
	CoreParticipants       []string       `json:"coreParticipants,omitempty"`
	Type                   string         `json:"type,omitempty"`
	Start                  *string        `json:"start,omitempty" example:"2026-03-01"`
	End                    *string        `json:"end,omitempty" example:"2026-03-02"`
	Rules                  *string        `json:"rules,omitempty"`
	Prize                  *string        `json:"prize,omitempty"`
	AllowProjectSubmission bool           `json:"allowProjectSubmission,omitempty"`
	Phases                 []PhaseRequest `json:"phases,omitempty"`
}

type EventRequestBody struct {
	Details  EventDetailsRequest `json:"details"`
	Criteria []CriterionRequest  `json:"criteria,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason" example:"Overlaps with exam week"`
}

type AutoTeamsRequest struct {
	StudentIDs []string `json:"studentIds"`
	Min        int      `json:"min" minimum:"1"`
	Max        int      `json:"max" minimum:"1"`
}

type SetTeamsRequest struct {
	Teams []TeamRequest `json:"teams"`
}

type SubmissionRequest struct {
	ProjectName string `json:"projectName"`
	Link        string `json:"link" example:"https://github.com/example/project"`
	Description string `json:"description,omitempty"`
	PhaseID     string `json:"phaseId,omitempty"`
}

type CriteriaVoteRequest struct {
	Votes         map[string]string `json:"votes,omitempty"`
	BestPerformer string            `json:"bestPerformer,omitempty"`
}

type WinnerVoteRequest struct {
	Votes map[string]string `json:"votes"`
}

type WinnerSelectionRequest struct {
	Winners map[string][]string            `json:"winners,omitempty"`
	Phases  map[string]map[string][]string `json:"phases,omitempty"`
}

type RatingRequest struct {
	Score    int    `json:"score" minimum:"1" maximum:"5"`
	Feedback string `json:"feedback,omitempty"`
}

type SignInRequest struct {
	Email string `json:"email,omitempty"`
}

type ProfileUpdateRequest struct {
	Name        *string             `json:"name,omitempty"`
	Bio         *string             `json:"bio,omitempty"`
	PhotoURL    *string             `json:"photoURL,omitempty"`
	Batch       *string             `json:"batch,omitempty"`
	StudentID   *string             `json:"studentId,omitempty"`
	Skills      []string            `json:"skills,omitempty"`
	HasLaptop   *bool               `json:"hasLaptop,omitempty"`
	SocialLinks *domain.SocialLinks `json:"socialLinks,omitempty"`
}

// Responses

type PendingResponse struct {
	Pending bool `json:"pending"`
}

type NamesResponse struct {
	Names map[string]string `json:"names"`
}

// Mappers

func (r CriterionRequest) domain() domain.Criterion {
	return domain.Criterion{
		ConstraintIndex: r.ConstraintIndex,
		ConstraintKey:   r.ConstraintKey,
		Title:           r.Title,
		Description:     r.Description,
		Points:          r.Points,
		Role:            r.Role,
		TargetRole:      r.TargetRole,
	}
}

func mapCriteria(in []CriterionRequest) []domain.Criterion {
	if in == nil {
		return nil
	}
	out := make([]domain.Criterion, len(in))
	for i, c := range in {
		out[i] = c.domain()
	}
	return out
}

func mapTeams(in []TeamRequest) []domain.Team {
	out := make([]domain.Team, len(in))
	for i, t := range in {
		out[i] = domain.Team{ID: t.ID, TeamName: t.TeamName, Members: t.Members, TeamLead: t.TeamLead}
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func (r EventRequestBody) request() engine.EventRequest {
	d := r.Details
	details := domain.EventDetails{
		EventName:              d.EventName,
		Description:            d.Description,
		Format:                 domain.EventFormat(d.Format),
		IsCompetition:          d.IsCompetition,
		Organizers:             d.Organizers,
		CoreParticipants:       nonNil(d.CoreParticipants),
		Type:                   d.Type,
		Date:                   domain.EventDate{Start: d.Start, End: d.End},
		Rules:                  d.Rules,
		Prize:                  d.Prize,
		AllowProjectSubmission: d.AllowProjectSubmission,
	}
	for _, p := range d.Phases {
		criteria := mapCriteria(p.Criteria)
		if criteria == nil {
			criteria = []domain.Criterion{}
		}
		details.Phases = append(details.Phases, domain.EventPhase{
			ID:                     p.ID,
			PhaseName:              p.PhaseName,
			Description:            p.Description,
			Format:                 domain.EventFormat(p.Format),
			Type:                   p.Type,
			Participants:           nonNil(p.Participants),
			CoreParticipants:       nonNil(p.CoreParticipants),
			Criteria:               criteria,
			Teams:                  mapTeams(p.Teams),
			Rules:                  p.Rules,
			Prize:                  p.Prize,
			AllowProjectSubmission: p.AllowProjectSubmission,
		})
	}
	return engine.EventRequest{Details: details, Criteria: mapCriteria(r.Criteria)}
}

func (r ProfileUpdateRequest) update() profile.ProfileUpdate {
	return profile.ProfileUpdate{
		Name:        r.Name,
		Bio:         r.Bio,
		PhotoURL:    r.PhotoURL,
		Batch:       r.Batch,
		StudentID:   r.StudentID,
		Skills:      r.Skills,
		HasLaptop:   r.HasLaptop,
		SocialLinks: r.SocialLinks,
	}
}
