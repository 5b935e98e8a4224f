package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/ghdependents/internal/types"
)

// MongoStorage upserts dependents into a MongoDB collection keyed by
// owner and repository, so re-running a traversal does not duplicate rows.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoStorage creates a new MongoDB storage backend.
func NewMongoStorage(uri, database, collection string, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStorage{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

func (s *MongoStorage) Store(deps []*types.Dependent) error {
	if len(deps) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.collection.BulkWrite(ctx, upsertModels(deps, time.Now()), options.BulkWrite().SetOrdered(false))
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("mongodb bulk write: %w", err)}
	}

	s.count += len(deps)
	s.logger.Debug("dependents stored in mongodb", "count", len(deps), "total", s.count)
	return nil
}

// upsertModels builds one replace-or-insert per dependent.
func upsertModels(deps []*types.Dependent, seen time.Time) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(deps))
	for _, d := range deps {
		filter := bson.D{{Key: "owner", Value: d.Owner}, {Key: "repository", Value: d.Repository}}
		doc := bson.D{
			{Key: "owner", Value: d.Owner},
			{Key: "repository", Value: d.Repository},
			{Key: "avatar_url", Value: d.AvatarURL},
			{Key: "stars", Value: d.Stars},
			{Key: "forks", Value: d.Forks},
			{Key: "_seen_at", Value: seen},
		}
		models = append(models, mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(doc).SetUpsert(true))
	}
	return models
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_dependents", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes dependents to multiple backends.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

func (s *MultiStorage) Store(deps []*types.Dependent) error {
	var errs []error
	for _, backend := range s.backends {
		if err := backend.Store(deps); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *MultiStorage) Close() error {
	var errs []error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
