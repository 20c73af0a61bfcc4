package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fitcheckr/fitcheckr/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

type fakeObjects struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{data: make(map[string][]byte)}
}

const fakeBase = "https://bucket.example/"

func (f *fakeObjects) Put(_ context.Context, name string, content []byte, _ string) (models.StoredObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[name] = append([]byte(nil), content...)
	return models.StoredObject{Key: name, URL: fakeBase + name, Size: int64(len(content))}, nil
}

func (f *fakeObjects) List(_ context.Context, prefix string) ([]models.StoredObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.StoredObject
	for k, v := range f.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, models.StoredObject{Key: k, URL: fakeBase + k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out, nil
}

func (f *fakeObjects) Get(_ context.Context, keyOrURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[strings.TrimPrefix(keyOrURL, fakeBase)], nil
}

func (f *fakeObjects) Delete(_ context.Context, keyOrURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(keyOrURL, fakeBase)
	delete(f.data, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	values := []string{"a@example.com"}
	require.NoError(t, s.Set(ctx, "k", values))
	values[0] = "mutated"

	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a@example.com"}, got)

	_, ok, err = s.LastUpdated(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "memory", s.Kind())
}

func TestBlobStore_ReplaceOnWrite(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	s := NewBlobStore(objects)
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	_, ok, err := s.Get(ctx, "fitcheckr:subscribers")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "fitcheckr:subscribers", []string{"a@example.com"}))
	require.NoError(t, s.Set(ctx, "fitcheckr:subscribers", []string{"a@example.com", "b@example.com"}))

	got, ok, err := s.Get(ctx, "fitcheckr:subscribers")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got)

	remaining, err := objects.List(ctx, "fitcheckr-subscribers/")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Len(t, objects.deleted, 1)

	var file models.SubscriberFile
	require.NoError(t, json.Unmarshal(objects.data[remaining[0].Key], &file))
	assert.Equal(t, 2, file.Count)
	assert.Equal(t, clock, file.LastUpdated)

	updated, ok, err := s.LastUpdated(ctx, "fitcheckr:subscribers")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, clock, updated)
}

func TestBlobStore_KeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewBlobStore(newFakeObjects())

	require.NoError(t, s.Set(ctx, "one", []string{"x"}))
	require.NoError(t, s.Set(ctx, "two", nil))

	got, ok, err := s.Get(ctx, "two")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)

	got, _, err = s.Get(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got)
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("missing key", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "fitcheckr.kv", mtest.FirstBatch))

		_, ok, err := NewMongoStore(mt.Coll).Get(context.Background(), "fitcheckr:subscribers")
		require.NoError(mt, err)
		assert.False(mt, ok)
	})

	mt.Run("existing key", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "fitcheckr.kv", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "fitcheckr:subscribers"},
			{Key: "emails", Value: bson.A{"a@example.com", "b@example.com"}},
			{Key: "updated_at", Value: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		}))

		got, ok, err := NewMongoStore(mt.Coll).Get(context.Background(), "fitcheckr:subscribers")
		require.NoError(mt, err)
		assert.True(mt, ok)
		assert.Equal(mt, []string{"a@example.com", "b@example.com"}, got)
	})

	mt.Run("set upserts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		err := NewMongoStore(mt.Coll).Set(context.Background(), "fitcheckr:subscribers", []string{"a@example.com"})
		require.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "update", started.CommandName)
	})
}
