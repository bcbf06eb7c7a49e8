package store

import (
	"context"
	"errors"
	"time"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/metrics"
)

// Guard bounds every adapter call by timeout and classifies unclassified
// failures as StorageUnavailable. It never retries.
func Guard(a Adapter, timeout time.Duration) Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	g := &guarded{inner: a, timeout: timeout}
	g.events = guardedEvents{g: g, inner: a.Events()}
	g.students = guardedStudents{g: g, inner: a.Students()}
	return g
}

type guarded struct {
	inner    Adapter
	timeout  time.Duration
	events   guardedEvents
	students guardedStudents
}

func (g *guarded) Events() EventStore     { return g.events }
func (g *guarded) Students() StudentStore { return g.students }
func (g *guarded) Backend() string        { return g.inner.Backend() }
func (g *guarded) Close() error           { return g.inner.Close() }

// Seed forwards to the wrapped adapter when it supports seeding.
func (g *guarded) Seed(ctx context.Context, events []domain.Event, students []domain.Student) error {
	s, ok := g.inner.(Seeder)
	if !ok {
		return apperr.New(apperr.KindValidation, "seed", "backend %s does not support seeding", g.inner.Backend())
	}
	return g.call(ctx, "seed", func(ctx context.Context) error { return s.Seed(ctx, events, students) })
}

func (g *guarded) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	err := fn(ctx)
	if err != nil {
		err = classify(op, err, ctx.Err())
	}
	metrics.StoreCalls.WithLabelValues(g.inner.Backend(), op, metrics.Outcome(err, kindLabel)).Inc()
	return err
}

func classify(op string, err, ctxErr error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctxErr != nil {
		if apperr.KindOf(err) == apperr.KindUnknown || apperr.KindOf(err) == apperr.KindStorageUnavailable {
			return &apperr.Error{Kind: apperr.KindStorageUnavailable, Op: op, Message: "data store did not respond in time", Err: err}
		}
	}
	return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
}

func kindLabel(err error) string { return string(apperr.KindOf(err)) }

type guardedEvents struct {
	g     *guarded
	inner EventStore
}

func (s guardedEvents) GetAll(ctx context.Context) (out []domain.Event, err error) {
	err = s.g.call(ctx, "events.getAll", func(ctx context.Context) error {
		out, err = s.inner.GetAll(ctx)
		return err
	})
	return out, err
}

func (s guardedEvents) GetByID(ctx context.Context, id string) (out domain.Event, err error) {
	err = s.g.call(ctx, "events.getById", func(ctx context.Context) error {
		out, err = s.inner.GetByID(ctx, id)
		return err
	})
	return out, err
}

func (s guardedEvents) Create(ctx context.Context, e domain.Event) (out domain.Event, err error) {
	err = s.g.call(ctx, "events.create", func(ctx context.Context) error {
		out, err = s.inner.Create(ctx, e)
		return err
	})
	return out, err
}

func (s guardedEvents) Update(ctx context.Context, id string, patch Patch) error {
	return s.g.call(ctx, "events.update", func(ctx context.Context) error {
		return s.inner.Update(ctx, id, patch)
	})
}

func (s guardedEvents) Delete(ctx context.Context, id string) error {
	return s.g.call(ctx, "events.delete", func(ctx context.Context) error {
		return s.inner.Delete(ctx, id)
	})
}

func (s guardedEvents) Query(ctx context.Context, filters ...Filter) (out []domain.Event, err error) {
	err = s.g.call(ctx, "events.query", func(ctx context.Context) error {
		out, err = s.inner.Query(ctx, filters...)
		return err
	})
	return out, err
}

type guardedStudents struct {
	g     *guarded
	inner StudentStore
}

func (s guardedStudents) GetAll(ctx context.Context) (out []domain.Student, err error) {
	err = s.g.call(ctx, "students.getAll", func(ctx context.Context) error {
		out, err = s.inner.GetAll(ctx)
		return err
	})
	return out, err
}

func (s guardedStudents) GetByID(ctx context.Context, uid string) (out domain.Student, err error) {
	err = s.g.call(ctx, "students.getById", func(ctx context.Context) error {
		out, err = s.inner.GetByID(ctx, uid)
		return err
	})
	return out, err
}

func (s guardedStudents) Create(ctx context.Context, st domain.Student) (out domain.Student, err error) {
	err = s.g.call(ctx, "students.create", func(ctx context.Context) error {
		out, err = s.inner.Create(ctx, st)
		return err
	})
	return out, err
}

func (s guardedStudents) Update(ctx context.Context, uid string, patch Patch) error {
	return s.g.call(ctx, "students.update", func(ctx context.Context) error {
		return s.inner.Update(ctx, uid, patch)
	})
}

func (s guardedStudents) Query(ctx context.Context, filters ...Filter) (out []domain.Student, err error) {
	err = s.g.call(ctx, "students.query", func(ctx context.Context) error {
		out, err = s.inner.Query(ctx, filters...)
		return err
	})
	return out, err
}
