package catalog

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// FindQuery describes a find command. Zero Skip or Limit means unset.
type FindQuery struct {
	Filter     bson.D
	Projection bson.D
	Sort       bson.D
	Skip       int64
	Limit      int64
}

// IndexSpec describes an index by name and ordered keys.
type IndexSpec struct {
	Name string
	Keys bson.D
}

// Cursor is a forward-only result stream. *mongo.Cursor satisfies it.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

// Collection executes descriptors against a books collection.
//
// CreateIndex must return an error matching ErrIndexConflict when the engine
// reports that the index already exists or clashes with an existing one, and
// ErrIndexCreation for any other failure.
type Collection interface {
	Name() string
	Find(ctx context.Context, query FindQuery) (Cursor, error)
	Aggregate(ctx context.Context, pipeline mongo.Pipeline) (Cursor, error)
	CreateIndex(ctx context.Context, index IndexSpec) (string, error)
	Explain(ctx context.Context, query FindQuery, verbosity string) (bson.M, error)
}
