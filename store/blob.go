package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fitcheckr/fitcheckr/models"
	"github.com/google/uuid"
)

// ObjectStore is the object-store flavor of persistence.
type ObjectStore interface {
	Put(ctx context.Context, name string, content []byte, contentType string) (models.StoredObject, error)
	List(ctx context.Context, prefix string) ([]models.StoredObject, error)
	Get(ctx context.Context, keyOrURL string) ([]byte, error)
	Delete(ctx context.Context, keyOrURL string) error
}

// BlobStore keeps each list as a JSON file in an ObjectStore. Every Set writes a new
// object and then deletes the older ones, so the newest object is the current list.
type BlobStore struct {
	objects ObjectStore
	now     func() time.Time
}

func NewBlobStore(objects ObjectStore) *BlobStore {
	return &BlobStore{objects: objects, now: time.Now}
}

func blobPrefix(key string) string {
	r := strings.NewReplacer(":", "-", "/", "-", " ", "-")
	return r.Replace(key) + "/"
}

// newest returns the current object for key, or nil.
func (b *BlobStore) newest(ctx context.Context, key string) (*models.StoredObject, error) {
	objects, err := b.objects.List(ctx, blobPrefix(key))
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, nil
	}
	// Object names embed a fixed-width timestamp, so the greatest name is the newest.
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	latest := objects[len(objects)-1]
	return &latest, nil
}

func (b *BlobStore) read(ctx context.Context, key string) (*models.SubscriberFile, error) {
	latest, err := b.newest(ctx, key)
	if err != nil || latest == nil {
		return nil, err
	}
	raw, err := b.objects.Get(ctx, latest.URL)
	if err != nil {
		return nil, err
	}
	var file models.SubscriberFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", latest.Key, err)
	}
	return &file, nil
}

func (b *BlobStore) Get(ctx context.Context, key string) ([]string, bool, error) {
	file, err := b.read(ctx, key)
	if err != nil || file == nil {
		return nil, false, err
	}
	return file.Emails, true, nil
}

func (b *BlobStore) Set(ctx context.Context, key string, values []string) error {
	if values == nil {
		values = []string{}
	}
	now := b.now().UTC()
	content, err := json.Marshal(models.SubscriberFile{Emails: values, Count: len(values), LastUpdated: now})
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s%020d-%s.json", blobPrefix(key), now.UnixNano(), uuid.NewString()[:8])
	written, err := b.objects.Put(ctx, name, content, "application/json")
	if err != nil {
		return err
	}

	objects, err := b.objects.List(ctx, blobPrefix(key))
	if err != nil {
		// The new object is already the newest; stale ones are removed on the next write.
		return nil
	}
	for _, obj := range objects {
		if obj.Key >= written.Key {
			continue
		}
		_ = b.objects.Delete(ctx, obj.URL)
	}
	return nil
}

func (b *BlobStore) LastUpdated(ctx context.Context, key string) (time.Time, bool, error) {
	file, err := b.read(ctx, key)
	if err != nil || file == nil {
		return time.Time{}, false, err
	}
	return file.LastUpdated, true, nil
}

func (b *BlobStore) Kind() string { return "s3-blob" }
