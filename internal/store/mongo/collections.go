package mongo

import (
	"context"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/store"
)

type eventStore struct{ c collection }

func (s eventStore) GetAll(ctx context.Context) ([]domain.Event, error) {
	return s.Query(ctx)
}

func (s eventStore) GetByID(ctx context.Context, id string) (domain.Event, error) {
	var e domain.Event
	doc, err := s.c.get(ctx, "events.getById", id)
	if err != nil {
		return e, err
	}
	return e, decode("events.getById", doc, &e)
}

func (s eventStore) Create(ctx context.Context, e domain.Event) (domain.Event, error) {
	const op = "events.create"
	if err := store.MissingEventFields(op, e); err != nil {
		return domain.Event{}, err
	}
	e.ID = newID()
	if err := s.c.insert(ctx, op, e.ID, e); err != nil {
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
	const op = "events.query"
	docs, err := s.c.find(ctx, op, filters)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(docs))
	for _, doc := range docs {
		var e domain.Event
		if err := decode(op, doc, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

type studentStore struct{ c collection }

func (s studentStore) GetAll(ctx context.Context) ([]domain.Student, error) {
	return s.Query(ctx)
}

func (s studentStore) GetByID(ctx context.Context, uid string) (domain.Student, error) {
	var st domain.Student
	doc, err := s.c.get(ctx, "students.getById", uid)
	if err != nil {
		return st, err
	}
	return st, decode("students.getById", doc, &st)
}

func (s studentStore) Create(ctx context.Context, st domain.Student) (domain.Student, error) {
	const op = "students.create"
	if err := store.MissingStudentFields(op, st); err != nil {
		return domain.Student{}, err
	}
	if st.UID == "" {
		st.UID = newID()
	}
	if err := s.c.insert(ctx, op, st.UID, st); err != nil {
		return domain.Student{}, err
	}
	return st, nil
}

func (s studentStore) Update(ctx context.Context, uid string, patch store.Patch) error {
	return s.c.update(ctx, "students.update", uid, patch)
}

func (s studentStore) Query(ctx context.Context, filters ...store.Filter) ([]domain.Student, error) {
	const op = "students.query"
	docs, err := s.c.find(ctx, op, filters)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Student, 0, len(docs))
	for _, doc := range docs {
		var st domain.Student
		if err := decode(op, doc, &st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func decode(op string, doc map[string]any, out any) error {
	if err := store.FromDocument(doc, out); err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	return nil
}
