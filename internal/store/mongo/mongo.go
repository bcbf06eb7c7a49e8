// Package mongo implements the remote data adapter on MongoDB. Documents
// keep the JSON field names of the domain types and use the record id as
// _id.
package mongo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"techcomm/internal/apperr"
	"techcomm/internal/domain"
	"techcomm/internal/store"
)

const Backend = "remote:mongo"

type Adapter struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// Open connects to uri and pings the server. An empty uri means the remote
// backend was never configured.
func Open(ctx context.Context, uri, database string) (*Adapter, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, apperr.New(apperr.KindNotInitialized, "mongo.open", "data.remote.uri is not configured")
	}
	if database == "" {
		return nil, apperr.Validation("mongo.open", "database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, "mongo.open", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, "mongo.ping", err)
	}
	return &Adapter{Client: client, DB: client.Database(database)}, nil
}

func (a *Adapter) Events() store.EventStore {
	return eventStore{c: a.collection(store.CollectionEvents, store.EventIDField)}
}

func (a *Adapter) Students() store.StudentStore {
	return studentStore{c: a.collection(store.CollectionStudents, store.StudentIDField)}
}

func (a *Adapter) Backend() string { return Backend }

func (a *Adapter) Close() error {
	return a.Client.Disconnect(context.Background())
}

func (a *Adapter) collection(name, idField string) collection {
	return collection{coll: a.DB.Collection(name), name: name, idField: idField}
}

// Seed replaces both collections with the given documents, keeping ids.
func (a *Adapter) Seed(ctx context.Context, events []domain.Event, students []domain.Student) error {
	evs := a.collection(store.CollectionEvents, store.EventIDField)
	sts := a.collection(store.CollectionStudents, store.StudentIDField)
	for _, c := range []collection{evs, sts} {
		if _, err := c.coll.DeleteMany(ctx, bson.M{}); err != nil {
			return apperr.Wrap(apperr.KindStorageUnavailable, "seed", err)
		}
	}
	var eventDocs, studentDocs []any
	for _, e := range events {
		doc, err := toBSON(e, e.ID)
		if err != nil {
			return apperr.Validation("seed", "event %s: %v", e.ID, err)
		}
		eventDocs = append(eventDocs, doc)
	}
	for _, s := range students {
		doc, err := toBSON(s, s.UID)
		if err != nil {
			return apperr.Validation("seed", "student %s: %v", s.UID, err)
		}
		studentDocs = append(studentDocs, doc)
	}
	if len(eventDocs) > 0 {
		if _, err := evs.coll.InsertMany(ctx, eventDocs); err != nil {
			return apperr.Wrap(apperr.KindStorageUnavailable, "seed", err)
		}
	}
	if len(studentDocs) > 0 {
		if _, err := sts.coll.InsertMany(ctx, studentDocs); err != nil {
			return apperr.Wrap(apperr.KindStorageUnavailable, "seed", err)
		}
	}
	return nil
}

type collection struct {
	coll    *mongo.Collection
	name    string
	idField string
}

// find runs the filters server-side and re-checks each document with
// store.Match, which keeps array fields from matching by membership.
func (c collection) find(ctx context.Context, op string, filters []store.Filter) ([]map[string]any, error) {
	if err := store.ValidateFilters(op, filters); err != nil {
		return nil, err
	}
	if store.Unsatisfiable(filters) {
		return nil, nil
	}
	query, err := translate(filters)
	if err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	cur, err := c.coll.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	defer cur.Close(ctx)
	var out []map[string]any
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageUnavailable, op, err)
		}
		doc, err := fromBSON(raw)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorageUnavailable, op, err)
		}
		if store.Match(doc, filters) {
			out = append(out, doc)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	return out, nil
}

func translate(filters []store.Filter) (bson.M, error) {
	if len(filters) == 0 {
		return bson.M{}, nil
	}
	var and bson.A
	for _, f := range filters {
		values := make(bson.A, 0, len(f.Values))
		for _, v := range f.Values {
			norm, err := store.Normalize(v)
			if err != nil {
				return nil, err
			}
			values = append(values, norm)
		}
		if f.Op == store.OpEquals {
			and = append(and, bson.M{f.Field: values[0]})
			continue
		}
		and = append(and, bson.M{f.Field: bson.M{"$in": values}})
	}
	return bson.M{"$and": and}, nil
}

func (c collection) get(ctx context.Context, op, id string) (map[string]any, error) {
	var raw bson.M
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound(op, "%s %s not found", c.name, id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	doc, err := fromBSON(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	return doc, nil
}

func (c collection) insert(ctx context.Context, op, id string, v any) error {
	doc, err := toBSON(v, id)
	if err != nil {
		return apperr.Validation(op, "%v", err)
	}
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Validation(op, "%s %s already exists", c.name, id)
		}
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	return nil
}

func (c collection) update(ctx context.Context, op, id string, patch store.Patch) error {
	if err := store.ValidatePatch(op, patch, c.idField); err != nil {
		return err
	}
	set := bson.M{}
	for field, v := range patch {
		val, err := jsonValue(v)
		if err != nil {
			return apperr.Validation(op, "patch field %s: %v", field, err)
		}
		set[field] = val
	}
	res, err := c.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound(op, "%s %s not found", c.name, id)
	}
	return nil
}

func (c collection) remove(ctx context.Context, op, id string) error {
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, op, err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound(op, "%s %s not found", c.name, id)
	}
	return nil
}

// jsonValue converts v to the shape its JSON encoding has, keeping integer
// precision through json.Number.
func jsonValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func toBSON(v any, id string) (bson.M, error) {
	val, err := jsonValue(v)
	if err != nil {
		return nil, err
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document must encode as an object, got %T", val)
	}
	doc := bson.M(m)
	doc["_id"] = id
	return doc, nil
}

func fromBSON(raw bson.M) (map[string]any, error) {
	delete(raw, "_id")
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func newID() string {
	return uuid.NewString()
}
