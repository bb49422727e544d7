// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversation

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"maestro/platform/shared/logger"
)

// MongoMirror is the document-store alternative to JSONLMirror: each
// Message's variant payload shape (persona-work, discussion, system,
// answer) maps naturally onto a schemaless document, so a doc store is
// a fitting alternative to a flat append-only file.
type MongoMirror struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *logger.Logger
}

// NewMongoMirror connects to uri and mirrors into db.collection.
func NewMongoMirror(ctx context.Context, uri, db, collection string) (*MongoMirror, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoMirror{
		client:     client,
		collection: client.Database(db).Collection(collection),
		log:        logger.New("conversation.mongo"),
	}, nil
}

// Append implements Mirror.
func (m *MongoMirror) Append(msg Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc, err := bson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message to bson: %w", err)
	}

	var raw bson.M
	if err := bson.Unmarshal(doc, &raw); err != nil {
		return fmt.Errorf("failed to re-decode message document: %w", err)
	}
	raw["_id"] = msg.ID

	if _, err := m.collection.InsertOne(ctx, raw); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// Close disconnects the underlying Mongo client.
func (m *MongoMirror) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
