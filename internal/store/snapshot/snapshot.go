// Package snapshot implements the static data adapter: collections are read
// once from JSON seed files and kept in memory, and every write is persisted
// to a scratch copy that later sessions load in preference to the seed.
package snapshot

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/store"
)

const Backend = "static"

// Adapter is the snapshot-backed store.Adapter.
type Adapter struct {
	SeedDir    string
	ScratchDir string
	Now        func() time.Time

	mu       sync.Mutex
	events   *collection
	students *collection
}

// New returns an adapter reading seed files from seedDir. An empty
// scratchDir keeps writes in memory only.
func New(seedDir, scratchDir string) *Adapter {
	a := &Adapter{SeedDir: seedDir, ScratchDir: scratchDir}
	a.events = &collection{a: a, name: store.CollectionEvents, idField: store.EventIDField}
	a.students = &collection{a: a, name: store.CollectionStudents, idField: store.StudentIDField}
	return a
}

func (a *Adapter) Events() store.EventStore     { return eventStore{c: a.events} }
func (a *Adapter) Students() store.StudentStore { return studentStore{c: a.students} }
func (a *Adapter) Backend() string              { return Backend }
func (a *Adapter) Close() error                 { return nil }

// Seed replaces both collections with the given documents, keeping their ids.
func (a *Adapter) Seed(ctx context.Context, events []domain.Event, students []domain.Student) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	eventDocs := map[string]map[string]any{}
	for _, e := range events {
		if e.ID == "" {
			return apperr.Validation("seed", "event without id")
		}
		doc, err := store.ToDocument(e)
		if err != nil {
			return apperr.Validation("seed", "event %s: %v", e.ID, err)
		}
		eventDocs[e.ID] = doc
	}
	studentDocs := map[string]map[string]any{}
	for _, s := range students {
		if s.UID == "" {
			return apperr.Validation("seed", "student without uid")
		}
		doc, err := store.ToDocument(s)
		if err != nil {
			return apperr.Validation("seed", "student %s: %v", s.UID, err)
		}
		studentDocs[s.UID] = doc
	}
	a.events.docs, a.events.loaded = eventDocs, true
	a.students.docs, a.students.loaded = studentDocs, true
	if err := a.events.persist(); err != nil {
		return err
	}
	return a.students.persist()
}

func (a *Adapter) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// newID returns <unix-millis>-<9 base36 chars>.
func (a *Adapter) newID() string {
	u := uuid.New()
	suffix := strconv.FormatUint(binary.BigEndian.Uint64(u[:8]), 36)
	if len(suffix) < 9 {
		suffix = strings.Repeat("0", 9-len(suffix)) + suffix
	}
	return fmt.Sprintf("%d-%s", a.now().UnixMilli(), suffix[:9])
}

type collection struct {
	a       *Adapter
	name    string
	idField string
	loaded  bool
	docs    map[string]map[string]any
}

// load reads the scratch copy if present, otherwise the seed file. Callers
// hold a.mu.
func (c *collection) load() error {
	if c.loaded {
		return nil
	}
	docs := map[string]map[string]any{}
	path := c.seedPath()
	if c.a.ScratchDir != "" {
		if _, err := os.Stat(c.scratchPath()); err == nil {
			path = c.scratchPath()
		}
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return apperr.Wrap(apperr.KindStorageUnavailable, c.name+".load", err)
	default:
		var list []map[string]any
		if err := json.Unmarshal(data, &list); err != nil {
			return apperr.New(apperr.KindStorageUnavailable, c.name+".load", "parse %s: %v", path, err)
		}
		for _, doc := range list {
			id, _ := doc[c.idField].(string)
			if id == "" {
				continue
			}
			docs[id] = doc
		}
	}
	c.docs = docs
	c.loaded = true
	return nil
}

func (c *collection) seedPath() string {
	return filepath.Join(c.a.SeedDir, c.name+".json")
}

func (c *collection) scratchPath() string {
	return filepath.Join(c.a.ScratchDir, c.name+".json")
}

// persist rewrites the scratch copy atomically.
func (c *collection) persist() error {
	if c.a.ScratchDir == "" {
		return nil
	}
	op := c.name + ".persist"
	if err := os.MkdirAll(c.a.ScratchDir, 0o755); err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	list := make([]map[string]any, 0, len(c.docs))
	for _, id := range c.sortedIDs() {
		list = append(list, c.docs[id])
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	tmp, err := os.CreateTemp(c.a.ScratchDir, c.name+"-*.json")
	if err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	if err := os.Rename(tmp.Name(), c.scratchPath()); err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	return nil
}

func (c *collection) sortedIDs() []string {
	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// find returns copies of matching documents ordered by id.
func (c *collection) find(ctx context.Context, op string, filters []store.Filter) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.ValidateFilters(op, filters); err != nil {
		return nil, err
	}
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	if err := c.load(); err != nil {
		return nil, err
	}
	if store.Unsatisfiable(filters) {
		return nil, nil
	}
	var out []map[string]any
	for _, id := range c.sortedIDs() {
		doc := c.docs[id]
		if store.Match(doc, filters) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (c *collection) get(ctx context.Context, op, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	if err := c.load(); err != nil {
		return nil, err
	}
	doc, ok := c.docs[id]
	if !ok || id == "" {
		return nil, apperr.NotFound(op, "%s %s not found", c.name, id)
	}
	return doc, nil
}

func (c *collection) insert(ctx context.Context, op, id string, doc map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	if err := c.load(); err != nil {
		return err
	}
	if _, exists := c.docs[id]; exists {
		return apperr.Validation(op, "%s %s already exists", c.name, id)
	}
	doc[c.idField] = id
	c.docs[id] = doc
	if err := c.persist(); err != nil {
		delete(c.docs, id)
		return err
	}
	return nil
}

func (c *collection) update(ctx context.Context, op, id string, patch store.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidatePatch(op, patch, c.idField); err != nil {
		return err
	}
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	if err := c.load(); err != nil {
		return err
	}
	prev, ok := c.docs[id]
	if !ok {
		return apperr.NotFound(op, "%s %s not found", c.name, id)
	}
	next, err := store.ApplyPatch(prev, patch)
	if err != nil {
		return apperr.Validation(op, "%v", err)
	}
	c.docs[id] = next
	if err := c.persist(); err != nil {
		c.docs[id] = prev
		return err
	}
	return nil
}

func (c *collection) remove(ctx context.Context, op, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	if err := c.load(); err != nil {
		return err
	}
	prev, ok := c.docs[id]
	if !ok {
		return apperr.NotFound(op, "%s %s not found", c.name, id)
	}
	delete(c.docs, id)
	if err := c.persist(); err != nil {
		c.docs[id] = prev
		return err
	}
	return nil
}
