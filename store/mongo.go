package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitcheckr/fitcheckr/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the key-value flavor: one document per key in a collection.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(collection *mongo.Collection) *MongoStore {
	return &MongoStore{collection: collection}
}

func (s *MongoStore) find(ctx context.Context, key string) (*models.SubscriberList, error) {
	var doc models.SubscriberList
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q from mongodb: %w", key, err)
	}
	return &doc, nil
}

func (s *MongoStore) Get(ctx context.Context, key string) ([]string, bool, error) {
	doc, err := s.find(ctx, key)
	if err != nil || doc == nil {
		return nil, false, err
	}
	return doc.Emails, true, nil
}

func (s *MongoStore) Set(ctx context.Context, key string, values []string) error {
	if values == nil {
		values = []string{}
	}
	doc := models.SubscriberList{Key: key, Emails: values, UpdatedAt: time.Now().UTC()}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write %q to mongodb: %w", key, err)
	}
	return nil
}

func (s *MongoStore) LastUpdated(ctx context.Context, key string) (time.Time, bool, error) {
	doc, err := s.find(ctx, key)
	if err != nil || doc == nil {
		return time.Time{}, false, err
	}
	return doc.UpdatedAt, true, nil
}

func (s *MongoStore) Kind() string { return "mongo-kv" }
