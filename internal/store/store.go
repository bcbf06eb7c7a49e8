// Package store defines the data adapter contract shared by every storage
// backend: the events and students collections, filter predicates and
// top-level field patches.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
)

const (
	CollectionEvents   = "events"
	CollectionStudents = "students"

	EventIDField   = "id"
	StudentIDField = "uid"
)

// EventStore is the events collection.
type EventStore interface {
	GetAll(ctx context.Context) ([]domain.Event, error)
	GetByID(ctx context.Context, id string) (domain.Event, error)
	Create(ctx context.Context, e domain.Event) (domain.Event, error)
	Update(ctx context.Context, id string, patch Patch) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, filters ...Filter) ([]domain.Event, error)
}

// StudentStore is the students collection. Students are never deleted.
type StudentStore interface {
	GetAll(ctx context.Context) ([]domain.Student, error)
	GetByID(ctx context.Context, uid string) (domain.Student, error)
	Create(ctx context.Context, s domain.Student) (domain.Student, error)
	Update(ctx context.Context, uid string, patch Patch) error
	Query(ctx context.Context, filters ...Filter) ([]domain.Student, error)
}

// Adapter gives access to both collections of one backend.
type Adapter interface {
	Events() EventStore
	Students() StudentStore
	Backend() string
	Close() error
}

// Seeder loads documents with their existing ids. Used by tooling and tests
// to put identical data into different backends.
type Seeder interface {
	Seed(ctx context.Context, events []domain.Event, students []domain.Student) error
}

// Patch maps top-level field names to replacement values. Each key replaces
// the whole field; nested fields are never merged.
type Patch map[string]any

// Set records a field replacement and returns the patch.
func (p Patch) Set(field string, value any) Patch {
	p[field] = value
	return p
}

// Fields returns the patched field names in sorted order.
func (p Patch) Fields() []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var topLevelField = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidatePatch rejects patches touching the id field or using names that
// are not top-level fields.
func ValidatePatch(op string, patch Patch, idField string) error {
	if len(patch) == 0 {
		return apperr.Validation(op, "patch is empty")
	}
	for k, v := range patch {
		if k == idField {
			return apperr.Validation(op, "field %s cannot be updated", idField)
		}
		if !topLevelField.MatchString(k) {
			return apperr.Validation(op, "invalid patch field %q", k)
		}
		if _, err := json.Marshal(v); err != nil {
			return apperr.Validation(op, "patch field %s is not serializable: %v", k, err)
		}
	}
	return nil
}

// ToDocument converts a value to its JSON document form.
func ToDocument(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromDocument decodes a JSON document into out.
func FromDocument(doc map[string]any, out any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// ApplyPatch returns a copy of doc with every patched field replaced.
func ApplyPatch(doc map[string]any, patch Patch) (map[string]any, error) {
	out := make(map[string]any, len(doc)+len(patch))
	for k, v := range doc {
		out[k] = v
	}
	for k, v := range patch {
		norm, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("patch field %s: %w", k, err)
		}
		out[k] = norm
	}
	return out, nil
}

// MissingEventFields validates a new event document.
func MissingEventFields(op string, e domain.Event) error {
	if missing := e.MissingRequired(); len(missing) > 0 {
		return apperr.Validation(op, "missing required fields: %v", missing)
	}
	return nil
}

// MissingStudentFields validates a new student document.
func MissingStudentFields(op string, s domain.Student) error {
	if missing := s.MissingRequired(); len(missing) > 0 {
		return apperr.Validation(op, "missing required fields: %v", missing)
	}
	return nil
}

// SortEvents orders events by id ascending.
func SortEvents(events []domain.Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
}

// SortStudents orders students by uid ascending.
func SortStudents(students []domain.Student) {
	sort.Slice(students, func(i, j int) bool { return students[i].UID < students[j].UID })
}
