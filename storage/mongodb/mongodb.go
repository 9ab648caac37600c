// Package mongodb provides read-model access to a MongoDB database.
package mongodb

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultConnectTimeout = 10 * time.Second

type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Context holds the client and the database used by repositories.
type Context struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a client, verifies the connection and selects cfg.Database.
func Connect(ctx context.Context, cfg Config) (*Context, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, fmt.Errorf("mongodb: uri and database are required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	c := &Context{client: client, db: client.Database(cfg.Database)}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	return c, nil
}

// NewContext wraps an existing database handle.
func NewContext(db *mongo.Database) *Context {
	return &Context{client: db.Client(), db: db}
}

func (c *Context) Database() *mongo.Database {
	return c.db
}

func (c *Context) Ping(ctx context.Context) error {
	return c.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

func (c *Context) Disconnect(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}

// CollectionName returns the collection used for documents of type T: the Go
// type name of T.
func CollectionName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

func collection[T any](c *Context) *mongo.Collection {
	return c.db.Collection(CollectionName[T]())
}

func orAll(filter any) any {
	if filter == nil {
		return bson.D{}
	}
	return filter
}

// EnsureIndex creates an ascending index over fields on the collection of T
// and returns its name. Creating an existing index is a no-op.
func EnsureIndex[T any](ctx context.Context, c *Context, fields ...string) (string, error) {
	keys := make(bson.D, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	return collection[T](c).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys})
}
