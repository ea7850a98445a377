package catalog

import (
	"fmt"
	"math"

	constant "github.com/LerianStudio/lib-bookshelf/bookshelf/constants"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Page selects a window of results. Number starts at 1.
type Page struct {
	Number int64
	Size   int64
}

// DefaultPage is the first page with the default page size.
func DefaultPage() Page {
	return Page{Number: constant.DefaultPage, Size: constant.DefaultPageSize}
}

// Validate rejects page numbers below 1, non-positive sizes and pages whose
// skip would overflow int64.
func (p Page) Validate() error {
	if p.Number < constant.MinPage || p.Size < constant.MinPageSize {
		return fmt.Errorf("%w: page=%d size=%d", ErrInvalidPagination, p.Number, p.Size)
	}

	if p.Number-1 > math.MaxInt64/p.Size {
		return fmt.Errorf("%w: page=%d size=%d overflows skip", ErrInvalidPagination, p.Number, p.Size)
	}

	return nil
}

// Skip is the number of documents before this page.
func (p Page) Skip() int64 {
	return (p.Number - 1) * p.Size
}

// Limit is the maximum number of documents on this page.
func (p Page) Limit() int64 {
	return p.Size
}

// Index names as the engine derives them from the keys.
const (
	TitleIndexName      = "title_1"
	AuthorYearIndexName = "author_1_publishedYear_1"
)

const (
	ascending   = 1
	descending  = -1
	decadeWidth = 10

	groupKey          = constant.FieldID
	averagePriceField = "averagePrice"
	bookCountField    = "bookCount"
	decadeField       = "decade"
	countField        = "count"
)

// AvailableQuery is the find descriptor for FindAvailable.
func AvailableQuery(publishedAfter int, page Page) FindQuery {
	return FindQuery{
		Filter: bson.D{
			{Key: constant.FieldInStock, Value: true},
			{Key: constant.FieldPublishedYear, Value: bson.D{{Key: "$gt", Value: publishedAfter}}},
		},
		Projection: bson.D{
			{Key: constant.FieldID, Value: 0},
			{Key: constant.FieldTitle, Value: 1},
			{Key: constant.FieldAuthor, Value: 1},
			{Key: constant.FieldPrice, Value: 1},
		},
		Sort:  bson.D{{Key: constant.FieldPrice, Value: ascending}},
		Skip:  page.Skip(),
		Limit: page.Limit(),
	}
}

// TitleLookupQuery is the point lookup used by the plan diagnostic.
func TitleLookupQuery(title string) FindQuery {
	return FindQuery{
		Filter: bson.D{{Key: constant.FieldTitle, Value: title}},
	}
}

// AveragePriceByGenrePipeline groups by genre and averages price. Books with
// no genre fall into a single null group.
func AveragePriceByGenrePipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: groupKey, Value: "$" + constant.FieldGenre},
			{Key: averagePriceField, Value: bson.D{{Key: "$avg", Value: "$" + constant.FieldPrice}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: groupKey, Value: 0},
			{Key: constant.FieldGenre, Value: "$" + groupKey},
			{Key: averagePriceField, Value: 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: constant.FieldGenre, Value: ascending}}}},
	}
}

// TopAuthorPipeline counts books per author and keeps the largest count.
// Ties go to the lexicographically smallest author.
func TopAuthorPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: groupKey, Value: "$" + constant.FieldAuthor},
			{Key: bookCountField, Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: bookCountField, Value: descending},
			{Key: groupKey, Value: ascending},
		}}},
		{{Key: "$limit", Value: 1}},
		{{Key: "$project", Value: bson.D{
			{Key: groupKey, Value: 0},
			{Key: constant.FieldAuthor, Value: "$" + groupKey},
			{Key: bookCountField, Value: 1},
		}}},
	}
}

// BooksByDecadePipeline buckets books by floor(publishedYear/10)*10. Books
// whose publishedYear is missing or not numeric are dropped first, so they
// appear in no decade and are not counted.
func BooksByDecadePipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: constant.FieldPublishedYear, Value: bson.D{{Key: "$type", Value: "number"}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: groupKey, Value: bson.D{{Key: "$multiply", Value: bson.A{
				bson.D{{Key: "$floor", Value: bson.D{{Key: "$divide", Value: bson.A{"$" + constant.FieldPublishedYear, decadeWidth}}}}},
				decadeWidth,
			}}}},
			{Key: countField, Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: groupKey, Value: 0},
			{Key: decadeField, Value: "$" + groupKey},
			{Key: countField, Value: 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: decadeField, Value: ascending}}}},
	}
}

// TitleIndex is the ascending index on title.
func TitleIndex() IndexSpec {
	return IndexSpec{
		Name: TitleIndexName,
		Keys: bson.D{{Key: constant.FieldTitle, Value: ascending}},
	}
}

// AuthorYearIndex is the compound ascending index on author then publishedYear.
func AuthorYearIndex() IndexSpec {
	return IndexSpec{
		Name: AuthorYearIndexName,
		Keys: bson.D{
			{Key: constant.FieldAuthor, Value: ascending},
			{Key: constant.FieldPublishedYear, Value: ascending},
		},
	}
}
