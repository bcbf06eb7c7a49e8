package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"techcomm/internal/apperr"
	"techcomm/internal/store"
	"techcomm/internal/store/storetest"
)

// Set TECHCOMM_TEST_MONGO_URI to run the adapter against a live server.
func testURI(t *testing.T) string {
	uri := os.Getenv("TECHCOMM_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TECHCOMM_TEST_MONGO_URI not set")
	}
	return uri
}

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	name := fmt.Sprintf("techcomm_test_%d", time.Now().UnixNano())
	a, err := Open(ctx, testURI(t), name)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.DB.Drop(context.Background())
		_ = a.Close()
	})
	return a
}

func TestAdapterContract(t *testing.T) {
	testURI(t)
	storetest.Run(t, func(t *testing.T) store.Adapter { return newTestAdapter(t) })
}

func TestOpenWithoutURIIsNotInitialized(t *testing.T) {
	_, err := Open(context.Background(), "", "techcomm")
	assert.ErrorIs(t, err, apperr.ErrNotInitialized)
}

func TestTranslateFilters(t *testing.T) {
	q, err := translate([]store.Filter{
		store.Equals("status", "Approved"),
		store.OneOf("details.format", "Team", "Individual"),
	})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"status": "Approved"},
		bson.M{"details.format": bson.M{"$in": bson.A{"Team", "Individual"}}},
	}}, q)

	empty, err := translate(nil)
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, empty)
}

func TestDocumentShapeUsesJSONNames(t *testing.T) {
	events, _ := storetest.Fixtures()
	doc, err := toBSON(events[0], events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "e1", doc["_id"])
	assert.Equal(t, "e1", doc["id"])
	details, ok := doc["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Hack Day", details["eventName"])

	back, err := fromBSON(bson.M{"_id": "e1", "id": "e1", "votingOpen": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "e1", "votingOpen": true}, back)
}
