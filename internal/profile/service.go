package profile

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/engine/auth"
	"techcomm/internal/store"
)

// ProfileUpdate lists the fields a member may change. Nil fields are left
// alone; uid, email, batch year and createdAt cannot be changed.
type ProfileUpdate struct {
	Name        *string             `json:"name,omitempty"`
	Bio         *string             `json:"bio,omitempty"`
	PhotoURL    *string             `json:"photoURL,omitempty"`
	Batch       *string             `json:"batch,omitempty"`
	StudentID   *string             `json:"studentId,omitempty"`
	Skills      []string            `json:"skills,omitempty"`
	HasLaptop   *bool               `json:"hasLaptop,omitempty"`
	SocialLinks *domain.SocialLinks `json:"socialLinks,omitempty"`
}

type Service struct {
	Students store.StudentStore
	Names    *NameCache
	Now      func() time.Time
}

func (s Service) timestamp() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// EnsureProfile returns the actor's profile, creating it on first sign-in
// and recording the login time otherwise.
func (s Service) EnsureProfile(ctx context.Context, actor auth.Actor, email string) (domain.Student, error) {
	const op = "ensureProfile"
	if actor.Anonymous() {
		return domain.Student{}, auth.Deny(op, auth.CapAuthenticated)
	}
	if auth.Reserved(actor.UID) {
		return domain.Student{}, apperr.Validation(op, "uid %s is reserved", actor.UID)
	}
	ts := s.timestamp()
	st, err := s.Students.GetByID(ctx, actor.UID)
	if errors.Is(err, apperr.ErrNotFound) {
		name := strings.TrimSpace(actor.DisplayName)
		if name == "" {
			name = Placeholder(actor.UID)
		}
		return s.Students.Create(ctx, domain.Student{
			UID:           actor.UID,
			Name:          name,
			Email:         strings.TrimSpace(email),
			CreatedAt:     ts,
			LastLogin:     ts,
			LastUpdatedAt: ts,
		})
	}
	if err != nil {
		return domain.Student{}, err
	}
	if err := s.Students.Update(ctx, actor.UID, store.Patch{"lastLogin": ts}); err != nil {
		return domain.Student{}, err
	}
	st.LastLogin = ts
	return st, nil
}

// UpdateProfile applies u to the profile of uid. Only the owner may update.
func (s Service) UpdateProfile(ctx context.Context, actor auth.Actor, uid string, u ProfileUpdate) (domain.Student, error) {
	const op = "updateProfile"
	if actor.Anonymous() || actor.UID != uid {
		return domain.Student{}, auth.Deny(op, auth.CapOwner)
	}
	st, err := s.Students.GetByID(ctx, uid)
	if err != nil {
		return domain.Student{}, err
	}
	patch := store.Patch{}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return st, apperr.Validation(op, "name must not be empty")
		}
		st.Name = name
		patch["name"] = name
	}
	if u.Bio != nil {
		st.Bio = strings.TrimSpace(*u.Bio)
		patch["bio"] = st.Bio
	}
	if u.PhotoURL != nil {
		if err := checkLink(op, "photo URL", *u.PhotoURL); err != nil {
			return st, err
		}
		st.PhotoURL = strings.TrimSpace(*u.PhotoURL)
		patch["photoURL"] = st.PhotoURL
	}
	if u.Batch != nil {
		st.Batch = strings.TrimSpace(*u.Batch)
		patch["batch"] = st.Batch
	}
	if u.StudentID != nil {
		st.StudentID = strings.TrimSpace(*u.StudentID)
		patch["studentId"] = st.StudentID
	}
	if u.Skills != nil {
		st.Skills = cleanSkills(u.Skills)
		patch["skills"] = st.Skills
	}
	if u.HasLaptop != nil {
		st.HasLaptop = *u.HasLaptop
		patch["hasLaptop"] = st.HasLaptop
	}
	if u.SocialLinks != nil {
		l := *u.SocialLinks
		for label, v := range map[string]string{"primary": l.Primary, "linkedin": l.LinkedIn, "github": l.GitHub, "portfolio": l.Portfolio, "instagram": l.Instagram} {
			if err := checkLink(op, label+" link", v); err != nil {
				return st, err
			}
		}
		st.SocialLinks = &l
		patch["socialLinks"] = st.SocialLinks
	}
	if len(patch) == 0 {
		return st, nil
	}
	ts := s.timestamp()
	st.ProfileUpdatedAt, st.LastUpdatedAt = ts, ts
	patch["profileUpdatedAt"] = ts
	patch["lastUpdatedAt"] = ts
	if err := s.Students.Update(ctx, uid, patch); err != nil {
		return domain.Student{}, err
	}
	if s.Names != nil {
		s.Names.Invalidate(uid)
	}
	return st, nil
}

func checkLink(op, label, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Validation(op, "%s must be an http(s) URL", label)
	}
	return nil
}

func cleanSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
