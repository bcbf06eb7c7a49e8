package snapshot

import (
	"context"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/store"
)

type eventStore struct{ c *collection }

func (s eventStore) GetAll(ctx context.Context) ([]domain.Event, error) {
	return s.Query(ctx)
}

func (s eventStore) GetByID(ctx context.Context, id string) (domain.Event, error) {
	doc, err := s.c.get(ctx, "events.getById", id)
	if err != nil {
		return domain.Event{}, err
	}
	return decodeEvent(doc)
}

func (s eventStore) Create(ctx context.Context, e domain.Event) (domain.Event, error) {
	const op = "events.create"
	if err := store.MissingEventFields(op, e); err != nil {
		return domain.Event{}, err
	}
	e.ID = s.c.a.newID()
	doc, err := store.ToDocument(e)
	if err != nil {
		return domain.Event{}, apperr.Validation(op, "%v", err)
	}
	if err := s.c.insert(ctx, op, e.ID, doc); err != nil {
		return domain.Event{}, err
	}
	return e, nil
}

func (s eventStore) Update(ctx context.Context, id string, patch store.Patch) error {
	return s.c.update(ctx, "events.update", id, patch)
}

func (s eventStore) Delete(ctx context.Context, id string) error {
	return s.c.remove(ctx, "events.delete", id)
}

func (s eventStore) Query(ctx context.Context, filters ...store.Filter) ([]domain.Event, error) {
	docs, err := s.c.find(ctx, "events.query", filters)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(docs))
	for _, doc := range docs {
		e, err := decodeEvent(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

type studentStore struct{ c *collection }

func (s studentStore) GetAll(ctx context.Context) ([]domain.Student, error) {
	return s.Query(ctx)
}

func (s studentStore) GetByID(ctx context.Context, uid string) (domain.Student, error) {
	doc, err := s.c.get(ctx, "students.getById", uid)
	if err != nil {
		return domain.Student{}, err
	}
	return decodeStudent(doc)
}

func (s studentStore) Create(ctx context.Context, st domain.Student) (domain.Student, error) {
	const op = "students.create"
	if err := store.MissingStudentFields(op, st); err != nil {
		return domain.Student{}, err
	}
	if st.UID == "" {
		st.UID = s.c.a.newID()
	}
	doc, err := store.ToDocument(st)
	if err != nil {
		return domain.Student{}, apperr.Validation(op, "%v", err)
	}
	if err := s.c.insert(ctx, op, st.UID, doc); err != nil {
		return domain.Student{}, err
	}
	return st, nil
}

func (s studentStore) Update(ctx context.Context, uid string, patch store.Patch) error {
	return s.c.update(ctx, "students.update", uid, patch)
}

func (s studentStore) Query(ctx context.Context, filters ...store.Filter) ([]domain.Student, error) {
	docs, err := s.c.find(ctx, "students.query", filters)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Student, 0, len(docs))
	for _, doc := range docs {
		st, err := decodeStudent(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func decodeEvent(doc map[string]any) (domain.Event, error) {
	var e domain.Event
	if err := store.FromDocument(doc, &e); err != nil {
		return e, apperr.Wrap(apperr.KindStorageUnavailable, "events.decode", err)
	}
	return e, nil
}

func decodeStudent(doc map[string]any) (domain.Student, error) {
	var s domain.Student
	if err := store.FromDocument(doc, &s); err != nil {
		return s, apperr.Wrap(apperr.KindStorageUnavailable, "students.decode", err)
	}
	return s, nil
}
