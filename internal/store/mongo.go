package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/polystore/polystore/internal/domain"
)

// MongoStore implements domain.Store using MongoDB.
// All entity types share one collection; the canonical JSON document is
// stored verbatim as a string field so canonical comparison stays a byte
// comparison even after a round trip through BSON.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoRecord struct {
	Key        string    `bson:"_id"`
	EntityType string    `bson:"entity_type"`
	EntityID   string    `bson:"entity_id"`
	Doc        string    `bson:"doc"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// NewMongoStore creates a document store based on configuration.
func NewMongoStore(cfg domain.StoreConfig) (*MongoStore, error) {
	uri := cfg.MongoURI
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	dbName := cfg.MongoDatabase
	if dbName == "" {
		dbName = "polystore"
	}
	collName := cfg.MongoCollection
	if collName == "" {
		collName = "entities"
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(dbName).Collection(collName),
	}, nil
}

// Get retrieves a document by id.
func (s *MongoStore) Get(ctx context.Context, entityType, id string) ([]byte, error) {
	if err := validateKey(entityType, id); err != nil {
		return nil, err
	}

	var rec mongoRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": makeMongoKey(entityType, id)}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(rec.Doc), nil
}

// Insert stores a new document.
func (s *MongoStore) Insert(ctx context.Context, entityType, id string, doc []byte) error {
	if err := validateKey(entityType, id); err != nil {
		return err
	}

	_, err := s.collection.InsertOne(ctx, s.record(entityType, id, doc))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s/%s", ErrAlreadyExists, entityType, id)
	}
	return err
}

// Update replaces an existing document.
func (s *MongoStore) Update(ctx context.Context, entityType, id string, doc []byte) error {
	if err := validateKey(entityType, id); err != nil {
		return err
	}

	result, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": makeMongoKey(entityType, id)},
		s.record(entityType, id, doc),
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert stores the document regardless of prior existence.
func (s *MongoStore) Upsert(ctx context.Context, entityType, id string, doc []byte) error {
	if err := validateKey(entityType, id); err != nil {
		return err
	}

	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": makeMongoKey(entityType, id)},
		s.record(entityType, id, doc),
		options.Replace().SetUpsert(true),
	)
	return err
}

// Delete removes a document. Absent documents are not an error.
func (s *MongoStore) Delete(ctx context.Context, entityType, id string) (bool, error) {
	if err := validateKey(entityType, id); err != nil {
		return false, err
	}

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": makeMongoKey(entityType, id)})
	if err != nil {
		return false, err
	}
	return result.DeletedCount > 0, nil
}

// Exists reports whether a document is present.
func (s *MongoStore) Exists(ctx context.Context, entityType, id string) (bool, error) {
	if err := validateKey(entityType, id); err != nil {
		return false, err
	}

	count, err := s.collection.CountDocuments(ctx,
		bson.M{"_id": makeMongoKey(entityType, id)},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns a page of documents ordered by entity id.
func (s *MongoStore) List(ctx context.Context, entityType string, offset, limit int) ([]domain.Document, error) {
	if entityType == "" {
		return nil, fmt.Errorf("%w: entityType is required", ErrInvalidInput)
	}
	offset, limit = normalizePage(offset, limit)

	cursor, err := s.collection.Find(ctx,
		bson.M{"entity_type": entityType},
		options.Find().
			SetSort(bson.D{{Key: "entity_id", Value: 1}}).
			SetSkip(int64(offset)).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []domain.Document
	for cursor.Next(ctx) {
		var rec mongoRecord
		if err := cursor.Decode(&rec); err != nil {
			return nil, err
		}
		docs = append(docs, domain.Document{ID: rec.EntityID, Data: []byte(rec.Doc)})
	}
	return docs, cursor.Err()
}

// IDs returns a page of ids ordered by entity id.
func (s *MongoStore) IDs(ctx context.Context, entityType string, offset, limit int) ([]string, error) {
	docs, err := s.List(ctx, entityType, offset, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return ids, nil
}

// Count returns the number of documents for an entity type.
func (s *MongoStore) Count(ctx context.Context, entityType string) (int64, error) {
	if entityType == "" {
		return 0, fmt.Errorf("%w: entityType is required", ErrInvalidInput)
	}
	return s.collection.CountDocuments(ctx, bson.M{"entity_type": entityType})
}

// Ping checks MongoDB connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *MongoStore) record(entityType, id string, doc []byte) mongoRecord {
	return mongoRecord{
		Key:        makeMongoKey(entityType, id),
		EntityType: entityType,
		EntityID:   id,
		Doc:        string(doc),
		UpdatedAt:  time.Now().UTC(),
	}
}

func makeMongoKey(entityType, id string) string {
	return entityType + ":" + id
}
