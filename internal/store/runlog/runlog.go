// Package runlog persists every run's reconciliation log to MongoDB,
// keyed by run ID, for operator review after the fact. Connection and
// collection bootstrap go through foundation/mongodb.
package runlog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/novelseg/novelseg/foundation/mongodb"
	"github.com/novelseg/novelseg/internal/chapter"
)

const collectionName = "reconciliation_logs"

// Store persists reconciliation logs.
type Store struct {
	col *mongo.Collection
}

// Open connects to host/dbName and ensures the run-log collection
// exists.
func Open(ctx context.Context, host, user, password, dbName string) (*Store, error) {
	client, err := mongodb.Connect(ctx, host, user, password)
	if err != nil {
		return nil, fmt.Errorf("runlog: connect: %w", err)
	}

	col, err := mongodb.CreateCollection(ctx, client.Database(dbName), collectionName)
	if err != nil {
		return nil, fmt.Errorf("runlog: create collection: %w", err)
	}

	return &Store{col: col}, nil
}

// Record is one persisted run: its ID, the file it segmented, the
// outcome, and the full reconciliation log.
type Record struct {
	RunID     string                       `bson:"run_id"`
	FilePath  string                       `bson:"file_path"`
	Succeeded bool                         `bson:"succeeded"`
	FailKind  string                       `bson:"fail_kind,omitempty"`
	StartedAt time.Time                    `bson:"started_at"`
	Events    []chapter.ReconciliationEvent `bson:"events"`
}

// Save inserts rec. Reconciliation logs are append-only audit records,
// so this is always an insert, never an upsert.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if _, err := s.col.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("runlog: insert: %w", err)
	}
	return nil
}

// ByFile returns every persisted run for a given file path, most
// recent first, for an operator diagnosing repeated failures.
func (s *Store) ByFile(ctx context.Context, filePath string, limit int64) ([]Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(limit)

	cur, err := s.col.Find(ctx, bson.D{{Key: "file_path", Value: filePath}}, opts)
	if err != nil {
		return nil, fmt.Errorf("runlog: find: %w", err)
	}
	defer cur.Close(ctx)

	var recs []Record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("runlog: decode: %w", err)
	}

	return recs, nil
}
