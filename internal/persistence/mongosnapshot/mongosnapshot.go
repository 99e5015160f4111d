// Package mongosnapshot is an optional MongoDB-backed SnapshotStore,
// used in place of internal/persistence.FileStore when a durable,
// shared backing store is available. It satisfies the same interface
// so the device store never knows which one it is talking to.
package mongosnapshot

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/asgard/telemetry-core/internal/telemetry"
)

const snapshotDocID = "latest"

type snapshotDoc struct {
	ID          string                  `bson:"_id"`
	GeneratedAt int64                   `bson:"generatedAt"`
	Devices     []telemetry.DeviceState `bson:"devices"`
}

// Store wraps a single MongoDB collection holding one document: the
// most recent device-store snapshot, upserted in place.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// New connects to uri and binds to database/collection, pinging once
// to fail fast on a bad connection string rather than on first Save.
func New(uri, database, collection string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongosnapshot: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongosnapshot: ping: %w", err)
	}

	return &Store{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Save upserts the current snapshot document.
func (s *Store) Save(generatedAt int64, devices []telemetry.DeviceState) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := snapshotDoc{ID: snapshotDocID, GeneratedAt: generatedAt, Devices: devices}
	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctx, map[string]string{"_id": snapshotDocID}, doc, opts)
	if err != nil {
		return fmt.Errorf("mongosnapshot: save: %w", err)
	}
	return nil
}

// Load fetches the snapshot document. A missing document is not an
// error; it means the store has never been persisted.
func (s *Store) Load() (int64, []telemetry.DeviceState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var doc snapshotDoc
	err := s.collection.FindOne(ctx, map[string]string{"_id": snapshotDocID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("mongosnapshot: load: %w", err)
	}
	return doc.GeneratedAt, doc.Devices, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongosnapshot: close: %w", err)
	}
	return nil
}
