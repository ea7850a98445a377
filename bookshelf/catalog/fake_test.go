//go:build unit

package catalog

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// fakeCursor iterates over pre-encoded documents.
type fakeCursor struct {
	docs    []bson.Raw
	pos     int
	err     error
	closed  bool
	current bson.Raw
}

func newFakeCursor(docs ...bson.M) *fakeCursor {
	raws := make([]bson.Raw, 0, len(docs))

	for _, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			panic(err)
		}

		raws = append(raws, raw)
	}

	return &fakeCursor{docs: raws}
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		c.err = ctx.Err()

		return false
	}

	if c.pos >= len(c.docs) {
		return false
	}

	c.current = c.docs[c.pos]
	c.pos++

	return true
}

func (c *fakeCursor) Decode(val any) error { return bson.Unmarshal(c.current, val) }
func (c *fakeCursor) Err() error           { return c.err }

func (c *fakeCursor) Close(context.Context) error {
	c.closed = true

	return nil
}

// fakeCollection records every descriptor it receives.
type fakeCollection struct {
	mu sync.Mutex

	finds     []FindQuery
	pipelines []mongo.Pipeline
	indexes   []IndexSpec
	explains  []FindQuery
	verbosity []string

	findCursor  *fakeCursor
	findErr     error
	aggregate   func(pipeline mongo.Pipeline) (Cursor, error)
	createIndex func(spec IndexSpec) (string, error)
	explainDoc  bson.M
	explainErr  error
}

func (f *fakeCollection) Name() string { return "books" }

func (f *fakeCollection) Find(_ context.Context, query FindQuery) (Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.finds = append(f.finds, query)

	if f.findErr != nil {
		return nil, f.findErr
	}

	if f.findCursor == nil {
		return newFakeCursor(), nil
	}

	return f.findCursor, nil
}

func (f *fakeCollection) Aggregate(_ context.Context, pipeline mongo.Pipeline) (Cursor, error) {
	f.mu.Lock()
	f.pipelines = append(f.pipelines, pipeline)
	fn := f.aggregate
	f.mu.Unlock()

	if fn == nil {
		return newFakeCursor(), nil
	}

	return fn(pipeline)
}

func (f *fakeCollection) CreateIndex(_ context.Context, spec IndexSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.indexes = append(f.indexes, spec)

	if f.createIndex == nil {
		return spec.Name, nil
	}

	return f.createIndex(spec)
}

func (f *fakeCollection) Explain(_ context.Context, query FindQuery, verbosity string) (bson.M, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.explains = append(f.explains, query)
	f.verbosity = append(f.verbosity, verbosity)

	return f.explainDoc, f.explainErr
}

// stageName returns the operator name of a pipeline stage.
func stageName(stage bson.D) string {
	if len(stage) == 0 {
		return ""
	}

	return stage[0].Key
}

func pipelineIs(pipeline mongo.Pipeline, first, second string) bool {
	return len(pipeline) > 1 && stageName(pipeline[0]) == first && stageName(pipeline[1]) == second
}

var errEngine = errors.New("engine unavailable")
