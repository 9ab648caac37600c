package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jpirok/cleanarchitecture/domain"
)

// QueryRepository reads documents of type T. A nil filter matches every
// document.
type QueryRepository[T any] struct {
	coll *mongo.Collection
}

func NewQueryRepository[T any](c *Context) *QueryRepository[T] {
	return &QueryRepository[T]{coll: collection[T](c)}
}

func (r *QueryRepository[T]) Any(ctx context.Context, filter any) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, orAll(filter), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *QueryRepository[T]) Count(ctx context.Context, filter any) (int64, error) {
	return r.coll.CountDocuments(ctx, orAll(filter))
}

// Get returns the document with _id or domain.ErrNotFound.
func (r *QueryRepository[T]) Get(ctx context.Context, id any) (*T, error) {
	var out T
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *QueryRepository[T]) List(ctx context.Context, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := r.coll.Find(ctx, orAll(filter), opts...)
	if err != nil {
		return nil, err
	}
	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Writer maintains documents of type T.
type Writer[T any] struct {
	coll *mongo.Collection
}

func NewWriter[T any](c *Context) *Writer[T] {
	return &Writer[T]{coll: collection[T](c)}
}

// Upsert replaces the document with _id, inserting it when missing.
func (w *Writer[T]) Upsert(ctx context.Context, id any, doc *T) error {
	_, err := w.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

// Delete removes the document with _id. Missing documents are ignored.
func (w *Writer[T]) Delete(ctx context.Context, id any) error {
	_, err := w.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
