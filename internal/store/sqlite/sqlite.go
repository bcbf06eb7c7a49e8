// Package sqlite implements the remote data adapter on a SQLite database of
// JSON documents. Filters and patches run server-side through the JSON1
// functions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"techcomm/internal/apperr"
	"techcomm/internal/db"
	"techcomm/internal/domain"
	"techcomm/internal/migrate"
	"techcomm/internal/store"
)

const Backend = "remote:sqlite"

type Adapter struct {
	DB  *sql.DB
	Now func() time.Time
}

// Open connects to dsn and applies migrations. An empty dsn means the
// remote backend was never configured.
func Open(ctx context.Context, dsn string) (*Adapter, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, apperr.New(apperr.KindNotInitialized, "sqlite.open", "data.remote.dsn is not configured")
	}
	conn, err := db.Open(db.Config{DSN: dsn})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, "sqlite.open", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, "sqlite.migrate", err)
	}
	return &Adapter{DB: conn}, nil
}

func (a *Adapter) Events() store.EventStore {
	return eventStore{c: a.collection(store.CollectionEvents, store.EventIDField)}
}

func (a *Adapter) Students() store.StudentStore {
	return studentStore{c: a.collection(store.CollectionStudents, store.StudentIDField)}
}

func (a *Adapter) Backend() string { return Backend }
func (a *Adapter) Close() error    { return a.DB.Close() }

func (a *Adapter) collection(name, idField string) collection {
	return collection{a: a, name: name, idField: idField}
}

func (a *Adapter) now() string {
	if a.Now != nil {
		return a.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// Seed replaces both collections with the given documents, keeping ids.
func (a *Adapter) Seed(ctx context.Context, events []domain.Event, students []domain.Student) error {
	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, "seed", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection IN (?,?)`, store.CollectionEvents, store.CollectionStudents); err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, "seed", err)
	}
	ts := a.now()
	insert := func(collection, id string, v any) error {
		if id == "" {
			return apperr.Validation("seed", "%s document without id", collection)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return apperr.Validation("seed", "%s %s: %v", collection, id, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO documents(collection,id,doc,created_at,updated_at) VALUES (?,?,?,?,?)`,
			collection, id, string(data), ts, ts)
		return apperr.Wrap(apperr.KindStorageUnavailable, "seed", err)
	}
	for _, e := range events {
		if err := insert(store.CollectionEvents, e.ID, e); err != nil {
			return err
		}
	}
	for _, s := range students {
		if err := insert(store.CollectionStudents, s.UID, s); err != nil {
			return err
		}
	}
	return apperr.Wrap(apperr.KindStorageUnavailable, "seed", tx.Commit())
}

type collection struct {
	a       *Adapter
	name    string
	idField string
}

func (c collection) find(ctx context.Context, op string, filters []store.Filter) ([][]byte, error) {
	if err := store.ValidateFilters(op, filters); err != nil {
		return nil, err
	}
	if store.Unsatisfiable(filters) {
		return nil, nil
	}
	where, args, err := whereClause(filters)
	if err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	q := `SELECT doc FROM documents WHERE collection=?` + where + ` ORDER BY id`
	rows, err := c.a.DB.QueryContext(ctx, q, append([]any{c.name}, args...)...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageUnavailable, op, err)
		}
		out = append(out, []byte(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	return out, nil
}

// whereClause renders AND-combined filters. Each value is compared together
// with its JSON type so that true never equals 1 and arrays never match.
func whereClause(filters []store.Filter) (string, []any, error) {
	var b strings.Builder
	var args []any
	for _, f := range filters {
		path := "$." + f.Field
		var alts []string
		for _, v := range f.Values {
			norm, err := store.Normalize(v)
			if err != nil {
				return "", nil, err
			}
			switch store.ScalarKind(v) {
			case "string":
				alts = append(alts, `(json_type(doc, ?) = 'text' AND json_extract(doc, ?) = ?)`)
				args = append(args, path, path, norm)
			case "number":
				alts = append(alts, `(json_type(doc, ?) IN ('integer','real') AND json_extract(doc, ?) = ?)`)
				args = append(args, path, path, norm)
			case "bool":
				alts = append(alts, `json_type(doc, ?) = ?`)
				args = append(args, path, fmt.Sprint(norm))
			default:
				return "", nil, fmt.Errorf("filter %s: unsupported value %v", f.Field, v)
			}
		}
		b.WriteString(" AND (" + strings.Join(alts, " OR ") + ")")
	}
	return b.String(), args, nil
}

func (c collection) get(ctx context.Context, op, id string) ([]byte, error) {
	var doc string
	err := c.a.DB.QueryRowContext(ctx, `SELECT doc FROM documents WHERE collection=? AND id=?`, c.name, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound(op, "%s %s not found", c.name, id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	return []byte(doc), nil
}

func (c collection) insert(ctx context.Context, op, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperr.Validation(op, "%v", err)
	}
	ts := c.a.now()
	res, err := c.a.DB.ExecContext(ctx, `INSERT INTO documents(collection,id,doc,created_at,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(collection,id) DO NOTHING`, c.name, id, string(data), ts, ts)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Validation(op, "%s %s already exists", c.name, id)
	}
	return nil
}

func (c collection) update(ctx context.Context, op, id string, patch store.Patch) error {
	if err := store.ValidatePatch(op, patch, c.idField); err != nil {
		return err
	}
	var sets []string
	var args []any
	for _, field := range patch.Fields() {
		data, err := json.Marshal(patch[field])
		if err != nil {
			return apperr.Validation(op, "patch field %s: %v", field, err)
		}
		sets = append(sets, "?, json(?)")
		args = append(args, "$."+field, string(data))
	}
	q := `UPDATE documents SET doc = json_set(doc, ` + strings.Join(sets, ", ") + `), updated_at=? WHERE collection=? AND id=?`
	args = append(args, c.a.now(), c.name, id)
	res, err := c.a.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound(op, "%s %s not found", c.name, id)
	}
	return nil
}

func (c collection) remove(ctx context.Context, op, id string) error {
	res, err := c.a.DB.ExecContext(ctx, `DELETE FROM documents WHERE collection=? AND id=?`, c.name, id)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound(op, "%s %s not found", c.name, id)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}
