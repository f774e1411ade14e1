// Package mongo implements storage.EventStore on MongoDB, one collection per
// event table.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Provider owns the mongo client and hands out per-table stores.
type Provider struct {
	client *mongo.Client
	dbName string
}

// NewProvider connects to MongoDB and verifies the connection.
func NewProvider(ctx context.Context, uri string, dbName string) (*Provider, error) {
	clientOpts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Provider{client: client, dbName: dbName}, nil
}

// Client returns the underlying client.
func (p *Provider) Client() *mongo.Client {
	return p.client
}

// DatabaseName returns the configured database name.
func (p *Provider) DatabaseName() string {
	return p.dbName
}

// EventStore returns the store for table backed by collection, creating its
// indexes.
func (p *Provider) EventStore(ctx context.Context, table, collection string) (*EventStore, error) {
	s := NewEventStore(p.client.Database(p.dbName), table, collection)
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close disconnects the client.
func (p *Provider) Close(ctx context.Context) error {
	if p.client != nil {
		return p.client.Disconnect(ctx)
	}
	return nil
}
