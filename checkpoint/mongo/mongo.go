// Package mongo implements core.CheckpointStore on a MongoDB collection.
//
// Each conversation is one document keyed by its id. Saves are upserts, so
// the newest write always wins, and an optional TTL index on updated_at lets
// the server expire abandoned conversations.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hupe1980/agentloop/checkpoint"
	"github.com/hupe1980/agentloop/core"
)

// DefaultCollection is used when Options.Collection is empty.
const DefaultCollection = "checkpoints"

// Options configure New.
type Options struct {
	// Collection name, defaults to DefaultCollection.
	Collection string
	// TTL applied by EnsureIndexes. Zero creates no TTL index.
	TTL time.Duration
}

// document is the stored shape of a checkpoint. Nested values decode as bson
// primitives (primitive.D, primitive.A) rather than Go maps and slices.
type document struct {
	ID        string               `bson:"_id"`
	Messages  []core.MessageRecord `bson:"messages"`
	Values    map[string]any       `bson:"values,omitempty"`
	NextStep  core.NextStep        `bson:"next_step"`
	CreatedAt time.Time            `bson:"created_at"`
	UpdatedAt time.Time            `bson:"updated_at"`
}

// Store implements core.CheckpointStore using MongoDB.
type Store struct {
	collection *mongo.Collection
	opts       Options
}

// New creates a store on db.
func New(db *mongo.Database, optFns ...func(o *Options)) *Store {
	opts := Options{Collection: DefaultCollection, TTL: checkpoint.DefaultTTL}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}

	return &Store{collection: db.Collection(opts.Collection), opts: opts}
}

// NewFromCollection creates a store on an existing collection.
func NewFromCollection(coll *mongo.Collection, optFns ...func(o *Options)) *Store {
	opts := Options{Collection: coll.Name(), TTL: checkpoint.DefaultTTL}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store{collection: coll, opts: opts}
}

// Connect dials uri and returns a store on database together with a
// function that disconnects the client.
func Connect(ctx context.Context, uri, database string, optFns ...func(o *Options)) (*Store, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("checkpoint: connect mongodb: %w", err)
	}

	return New(client.Database(database), optFns...), client.Disconnect, nil
}

// EnsureIndexes creates the TTL index on updated_at when a TTL is configured.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s.opts.TTL <= 0 {
		return nil
	}

	model := mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetName("updated_at_ttl").SetExpireAfterSeconds(int32(s.opts.TTL.Seconds())),
	}

	if _, err := s.collection.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("checkpoint: create ttl index: %w", err)
	}

	return nil
}

// Load returns the checkpoint for conversationID, or nil if none is stored.
func (s *Store) Load(ctx context.Context, conversationID string) (*core.Checkpoint, error) {
	filter := bson.M{"_id": conversationID}

	var doc document

	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("checkpoint: find %q: %w", conversationID, err)
	}

	msgs, err := core.MessagesOf(doc.Messages)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: decode %q: %w", conversationID, err)
	}

	values := doc.Values
	if values == nil {
		values = map[string]any{}
	}

	return &core.Checkpoint{
		ConversationID: doc.ID,
		State:          core.State{Messages: msgs, Values: values},
		NextStep:       doc.NextStep,
		CreatedAt:      doc.CreatedAt.UTC(),
		UpdatedAt:      doc.UpdatedAt.UTC(),
	}, nil
}

// Save upserts cp. created_at is only written on insert.
func (s *Store) Save(ctx context.Context, cp *core.Checkpoint) error {
	if err := checkpoint.Validate(cp); err != nil {
		return err
	}

	updatedAt := cp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	createdAt := cp.CreatedAt
	if createdAt.IsZero() {
		createdAt = updatedAt
	}

	filter := bson.M{"_id": cp.ConversationID}
	update := bson.M{
		"$set": bson.M{
			"messages":   core.RecordsOf(cp.State.Messages),
			"values":     cp.State.Values,
			"next_step":  cp.NextStep,
			"updated_at": updatedAt,
		},
		"$setOnInsert": bson.M{"created_at": createdAt},
	}

	if _, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("checkpoint: upsert %q: %w", cp.ConversationID, err)
	}

	return nil
}

// Delete removes the checkpoint for conversationID.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": conversationID}); err != nil {
		return fmt.Errorf("checkpoint: delete %q: %w", conversationID, err)
	}

	return nil
}

var _ core.CheckpointStore = (*Store)(nil)
