package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/LerianStudio/lib-bookshelf/bookshelf/catalog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Server error codes reported when an index clashes with an existing one.
const (
	codeIndexAlreadyExists    = 68
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
)

const (
	opCreateIndex = "create_index"
	opFind        = "find"
	opExplain     = "explain"
)

var _ catalog.Collection = (*Collection)(nil)

// Collection adapts a driver collection to catalog.Collection.
type Collection struct {
	collection *mongo.Collection
}

// NewCollection wraps coll.
func NewCollection(coll *mongo.Collection) *Collection {
	return &Collection{collection: coll}
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.collection.Name()
}

// Find runs a find command built from query.
func (c *Collection) Find(ctx context.Context, query catalog.FindQuery) (catalog.Cursor, error) {
	opts, err := findOptions(query)
	if err != nil {
		return nil, catalog.NewError(catalog.KindValidation, opFind, err)
	}

	cursor, err := c.collection.Find(ctx, filterOrEmpty(query.Filter), opts)
	if err != nil {
		return nil, err
	}

	return cursor, nil
}

// Aggregate runs pipeline.
func (c *Collection) Aggregate(ctx context.Context, pipeline mongo.Pipeline) (catalog.Cursor, error) {
	cursor, err := c.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	return cursor, nil
}

// CreateIndex creates index and returns its name. Conflicts with an existing
// index are reported as catalog.ErrIndexConflict, other failures as
// catalog.ErrIndexCreation.
func (c *Collection) CreateIndex(ctx context.Context, index catalog.IndexSpec) (string, error) {
	model := mongo.IndexModel{Keys: index.Keys}
	if index.Name != "" {
		model.Options = options.Index().SetName(index.Name)
	}

	name, err := c.collection.Indexes().CreateOne(ctx, model)
	if err != nil {
		return "", classifyIndexError(err)
	}

	return name, nil
}

// Explain runs the explain command for a find built from query.
func (c *Collection) Explain(ctx context.Context, query catalog.FindQuery, verbosity string) (bson.M, error) {
	find, err := findCommand(c.collection.Name(), query)
	if err != nil {
		return nil, catalog.NewError(catalog.KindValidation, opExplain, err)
	}

	command := bson.D{
		{Key: "explain", Value: find},
		{Key: "verbosity", Value: verbosity},
	}

	var out bson.M
	if err := c.collection.Database().RunCommand(ctx, command).Decode(&out); err != nil {
		return nil, err
	}

	return out, nil
}

// IndexInfo describes an index present on the collection.
type IndexInfo struct {
	Name string `json:"name"`
	Keys string `json:"keys"`
}

// ListIndexes returns every index on the collection, including _id_.
func (c *Collection) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	cursor, err := c.collection.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}

	var specs []struct {
		Name string `bson:"name"`
		Key  bson.D `bson:"key"`
	}

	if err := cursor.All(ctx, &specs); err != nil {
		return nil, err
	}

	out := make([]IndexInfo, 0, len(specs))
	for _, spec := range specs {
		out = append(out, IndexInfo{Name: spec.Name, Keys: indexKeysString(spec.Key)})
	}

	return out, nil
}

func classifyIndexError(err error) error {
	if isIndexConflict(err) {
		return catalog.NewError(catalog.KindIndexConflict, opCreateIndex, err)
	}

	return catalog.NewError(catalog.KindIndexCreation, opCreateIndex, err)
}

func isIndexConflict(err error) bool {
	var serverErr mongo.ServerError
	if !errors.As(err, &serverErr) {
		return false
	}

	return serverErr.HasErrorCode(codeIndexAlreadyExists) ||
		serverErr.HasErrorCode(codeIndexOptionsConflict) ||
		serverErr.HasErrorCode(codeIndexKeySpecsConflict)
}

// checkWindow rejects a negative skip or limit. Zero means unset for both.
func checkWindow(query catalog.FindQuery) error {
	if query.Skip < 0 || query.Limit < 0 {
		return fmt.Errorf("%w: skip=%d limit=%d", catalog.ErrInvalidPagination, query.Skip, query.Limit)
	}

	return nil
}

func findOptions(query catalog.FindQuery) (*options.FindOptions, error) {
	if err := checkWindow(query); err != nil {
		return nil, err
	}

	opts := options.Find()

	if len(query.Projection) > 0 {
		opts.SetProjection(query.Projection)
	}

	if len(query.Sort) > 0 {
		opts.SetSort(query.Sort)
	}

	if query.Skip > 0 {
		opts.SetSkip(query.Skip)
	}

	if query.Limit > 0 {
		opts.SetLimit(query.Limit)
	}

	return opts, nil
}

func findCommand(collection string, query catalog.FindQuery) (bson.D, error) {
	if err := checkWindow(query); err != nil {
		return nil, err
	}

	command := bson.D{
		{Key: "find", Value: collection},
		{Key: "filter", Value: filterOrEmpty(query.Filter)},
	}

	if len(query.Projection) > 0 {
		command = append(command, bson.E{Key: "projection", Value: query.Projection})
	}

	if len(query.Sort) > 0 {
		command = append(command, bson.E{Key: "sort", Value: query.Sort})
	}

	if query.Skip > 0 {
		command = append(command, bson.E{Key: "skip", Value: query.Skip})
	}

	if query.Limit > 0 {
		command = append(command, bson.E{Key: "limit", Value: query.Limit})
	}

	return command, nil
}

func filterOrEmpty(filter bson.D) bson.D {
	if filter == nil {
		return bson.D{}
	}

	return filter
}

// indexKeysString returns the comma separated key names of an index.
func indexKeysString(keys any) string {
	switch k := keys.(type) {
	case bson.D:
		parts := make([]string, 0, len(k))
		for _, e := range k {
			parts = append(parts, e.Key)
		}

		return strings.Join(parts, ",")
	case bson.M:
		parts := make([]string, 0, len(k))
		for key := range k {
			parts = append(parts, key)
		}

		sort.Strings(parts)

		return strings.Join(parts, ",")
	default:
		return "<unknown>"
	}
}
