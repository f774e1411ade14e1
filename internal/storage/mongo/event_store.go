package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eventidx/eventidx/internal/storage"
	"github.com/eventidx/eventidx/pkg/model"
)

// EventStore stores events of one table in one collection, keyed by UUID.
type EventStore struct {
	table string
	coll  *mongo.Collection
}

var _ storage.EventStore = (*EventStore)(nil)

// NewEventStore returns a store over db.collection.
func NewEventStore(db *mongo.Database, table, collection string) *EventStore {
	return &EventStore{table: table, coll: db.Collection(collection)}
}

func (s *EventStore) Table() string { return s.table }

func (s *EventStore) FindByUUIDs(ctx context.Context, uuids []string) ([]*model.EventSummary, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	cursor, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": uuids}})
	if err != nil {
		return nil, wrapErr(err, "find events in %s", s.table)
	}
	defer cursor.Close(ctx)

	var events []*model.EventSummary
	if err := cursor.All(ctx, &events); err != nil {
		return nil, wrapErr(err, "decode events from %s", s.table)
	}
	return events, nil
}

func (s *EventStore) ListBatch(ctx context.Context, afterUUID string, asOf int64, limit int) ([]*model.EventSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	filter := bson.M{
		"_id":         bson.M{"$gt": afterUUID},
		"update_time": bson.M{"$lte": asOf},
	}
	findOptions := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, wrapErr(err, "list events in %s", s.table)
	}
	defer cursor.Close(ctx)

	var events []*model.EventSummary
	if err := cursor.All(ctx, &events); err != nil {
		return nil, wrapErr(err, "decode events from %s", s.table)
	}
	return events, nil
}

func (s *EventStore) ImportEvent(ctx context.Context, event *model.EventSummary) error {
	if err := event.Validate(); err != nil {
		return err
	}
	_, err := s.coll.InsertOne(ctx, event)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, event.UUID)
	}
	if err != nil {
		return wrapErr(err, "import event %s", event.UUID)
	}
	return nil
}

func (s *EventStore) SaveEvent(ctx context.Context, event *model.EventSummary) error {
	if err := event.Validate(); err != nil {
		return err
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": event.UUID}, event, options.Replace().SetUpsert(true))
	if err != nil {
		return wrapErr(err, "save event %s", event.UUID)
	}
	return nil
}

func (s *EventStore) DeleteEvents(ctx context.Context, uuids []string) error {
	if len(uuids) == 0 {
		return nil
	}
	if _, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": uuids}}); err != nil {
		return wrapErr(err, "delete events from %s", s.table)
	}
	return nil
}

// EnsureIndexes creates the index backing the as-of filter of ListBatch.
func (s *EventStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "update_time", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create update_time index on %s: %w", s.table, err)
	}
	return nil
}

// wrapErr marks network and timeout failures as transient.
func wrapErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if model.IsCanceled(err) {
		return fmt.Errorf("%s: %w: %w", msg, model.ErrCanceled, err)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%s: %w: %w", msg, storage.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
