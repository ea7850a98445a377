//go:build unit

package catalog

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LerianStudio/lib-bookshelf/bookshelf/log"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/opentelemetry/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordingLogger captures messages by level.
type recordingLogger struct {
	entries []logEntry
}

type logEntry struct {
	level log.Level
	msg   string
}

func (l *recordingLogger) Log(_ context.Context, level log.Level, msg string, _ ...log.Field) {
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) With(...log.Field) log.Logger { return l }
func (l *recordingLogger) WithGroup(string) log.Logger  { return l }
func (l *recordingLogger) Enabled(log.Level) bool       { return true }
func (l *recordingLogger) Sync(context.Context) error   { return nil }

func (l *recordingLogger) has(level log.Level, msg string) bool {
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}

	return false
}

func newTestCatalog(t *testing.T, coll *fakeCollection, opts ...Option) *Catalog {
	t.Helper()

	c, err := New(coll, opts...)
	require.NoError(t, err)

	return c
}

func TestNewRejectsNilCollection(t *testing.T) {
	t.Parallel()

	c, err := New(nil)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrNilCollection)
}

func TestFindAvailable(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{findCursor: newFakeCursor(
		bson.M{"title": "Cheap", "author": "A", "price": 9.5},
		bson.M{"title": "Dear", "author": "B", "price": 20.0},
	)}
	c := newTestCatalog(t, coll)

	results, err := c.FindAvailable(context.Background(), Page{Number: 2, Size: 5})
	require.NoError(t, err)

	books, err := results.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []BookSummary{
		{Title: "Cheap", Author: "A", Price: 9.5},
		{Title: "Dear", Author: "B", Price: 20},
	}, books)
	assert.True(t, coll.findCursor.closed)

	require.Len(t, coll.finds, 1)
	assert.Equal(t, AvailableQuery(2010, Page{Number: 2, Size: 5}), coll.finds[0])
}

func TestFindAvailablePublishedAfter(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{}
	c := newTestCatalog(t, coll, WithPublishedAfter(1999))

	_, err := c.FindAvailable(context.Background(), DefaultPage())
	require.NoError(t, err)

	require.Len(t, coll.finds, 1)
	assert.Equal(t, bson.D{{Key: "$gt", Value: 1999}}, coll.finds[0].Filter[1].Value)
}

func TestFindAvailableEmptyIsNotAnError(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t, &fakeCollection{})

	results, err := c.FindAvailable(context.Background(), DefaultPage())
	require.NoError(t, err)

	books, err := results.All(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)
}

func TestFindAvailableRejectsBadPagination(t *testing.T) {
	t.Parallel()

	for _, page := range []Page{{Number: 0, Size: 5}, {Number: 1, Size: 0}, {Number: -2, Size: -2}, {Number: math.MaxInt64/2 + 2, Size: 2}} {
		coll := &fakeCollection{}
		logger := &recordingLogger{}
		c := newTestCatalog(t, coll, WithLogger(logger))

		results, err := c.FindAvailable(context.Background(), page)
		assert.Nil(t, results)
		assert.ErrorIs(t, err, ErrInvalidPagination)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Empty(t, coll.finds, "no query may be issued for %+v", page)
		assert.True(t, logger.has(log.LevelWarn, "rejected pagination"))
	}
}

func TestFindAvailableEngineFailure(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}
	c := newTestCatalog(t, &fakeCollection{findErr: errEngine}, WithLogger(logger))

	results, err := c.FindAvailable(context.Background(), DefaultPage())
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrQueryExecution)
	assert.ErrorIs(t, err, errEngine)
	assert.True(t, logger.has(log.LevelError, "catalog operation failed"))
}

func TestFindAvailableIsIdempotent(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{}
	c := newTestCatalog(t, coll)

	for range 2 {
		_, err := c.FindAvailable(context.Background(), Page{Number: 3, Size: 4})
		require.NoError(t, err)
	}

	require.Len(t, coll.finds, 2)
	assert.Equal(t, coll.finds[0], coll.finds[1])
}

func reportCollection() *fakeCollection {
	return &fakeCollection{aggregate: func(pipeline mongo.Pipeline) (Cursor, error) {
		switch {
		case pipelineIs(pipeline, "$group", "$project"):
			return newFakeCursor(
				bson.M{"genre": nil, "averagePrice": 7.0},
				bson.M{"genre": "fantasy", "averagePrice": 12.5},
			), nil
		case pipelineIs(pipeline, "$group", "$sort"):
			return newFakeCursor(bson.M{"author": "B", "bookCount": int32(5)}), nil
		default:
			return newFakeCursor(
				bson.M{"decade": 1990.0, "count": int32(2)},
				bson.M{"decade": 2010.0, "count": int32(1)},
			), nil
		}
	}}
}

func TestReports(t *testing.T) {
	t.Parallel()

	for _, concurrent := range []bool{false, true} {
		coll := reportCollection()
		c := newTestCatalog(t, coll)

		var opts []ReportOption
		if concurrent {
			opts = append(opts, WithConcurrentReports())
		}

		report, err := c.Reports(context.Background(), opts...)
		require.NoError(t, err)

		assert.Equal(t, []GenrePrice{{Genre: "", AveragePrice: 7}, {Genre: "fantasy", AveragePrice: 12.5}}, report.AveragePriceByGenre)
		require.NotNil(t, report.TopAuthor)
		assert.Equal(t, AuthorBookCount{Author: "B", BookCount: 5}, *report.TopAuthor)
		assert.Equal(t, []DecadeCount{{Decade: 1990, Count: 2}, {Decade: 2010, Count: 1}}, report.BooksByDecade)
		assert.Len(t, coll.pipelines, 3)
	}
}

func TestTopAuthorWithoutAuthorIsEmptyGroup(t *testing.T) {
	t.Parallel()

	// Books with no author share the null group, which the engine returns
	// first when it ties or beats the named authors.
	coll := &fakeCollection{aggregate: func(mongo.Pipeline) (Cursor, error) {
		return newFakeCursor(
			bson.M{"author": nil, "bookCount": int32(6)},
			bson.M{"author": "B", "bookCount": int32(5)},
		), nil
	}}
	c := newTestCatalog(t, coll)

	results, err := c.TopAuthor(context.Background())
	require.NoError(t, err)

	top, err := results.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []AuthorBookCount{{Author: "", BookCount: 6}, {Author: "B", BookCount: 5}}, top)

	report, err := newTestCatalog(t, coll).Reports(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.TopAuthor)
	assert.Equal(t, AuthorBookCount{Author: "", BookCount: 6}, *report.TopAuthor)
}

func TestReportsEmptyCollection(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t, &fakeCollection{})

	report, err := c.Reports(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report.TopAuthor)
	assert.Empty(t, report.AveragePriceByGenre)
	assert.Empty(t, report.BooksByDecade)
}

func TestReportsStopsOnFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	coll := &fakeCollection{aggregate: func(mongo.Pipeline) (Cursor, error) {
		calls.Add(1)

		return nil, errEngine
	}}
	c := newTestCatalog(t, coll)

	report, err := c.Reports(context.Background())
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrQueryExecution)
	assert.EqualValues(t, 1, calls.Load())

	report, err = c.Reports(context.Background(), WithConcurrentReports())
	assert.Nil(t, report)
	assert.ErrorIs(t, err, errEngine)
}

func TestEnsureIndexesCreatesInOrder(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{}
	c := newTestCatalog(t, coll)

	outcomes, err := c.EnsureIndexes(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []IndexSpec{TitleIndex(), AuthorYearIndex()}, coll.indexes)
	assert.Equal(t, []IndexOutcome{
		{Name: TitleIndexName, Created: true},
		{Name: AuthorYearIndexName, Created: true},
	}, outcomes)
}

func TestEnsureIndexesToleratesConflict(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	factory, err := metrics.NewMetricsFactory(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"), log.NewNop())
	require.NoError(t, err)

	logger := &recordingLogger{}
	coll := &fakeCollection{createIndex: func(spec IndexSpec) (string, error) {
		return "", NewError(KindIndexConflict, "create_index", errors.New("IndexOptionsConflict"))
	}}
	c := newTestCatalog(t, coll, WithLogger(logger), WithMetricsFactory(factory))

	outcomes, err := c.EnsureIndexes(context.Background())
	require.NoError(t, err)
	assert.Len(t, coll.indexes, 2, "a conflict on the first index must not skip the second")
	assert.Equal(t, []IndexOutcome{
		{Name: TitleIndexName, Existed: true},
		{Name: AuthorYearIndexName, Existed: true},
	}, outcomes)
	assert.True(t, logger.has(log.LevelWarn, "index already exists"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.EqualValues(t, 2, counterTotal(rm, metrics.MetricCatalogIndexConflicts.Name))
}

func TestEnsureIndexesAbortsOnCreationFailure(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}
	coll := &fakeCollection{createIndex: func(IndexSpec) (string, error) {
		return "", errEngine
	}}
	c := newTestCatalog(t, coll, WithLogger(logger))

	outcomes, err := c.EnsureIndexes(context.Background())
	assert.ErrorIs(t, err, ErrIndexCreation)
	assert.ErrorIs(t, err, errEngine)
	assert.Empty(t, outcomes)
	assert.Len(t, coll.indexes, 1, "the compound index must not be attempted")
	assert.True(t, logger.has(log.LevelError, "index creation failed"))
}

func explainDocument() bson.M {
	return bson.M{
		"queryPlanner": bson.M{
			"winningPlan": bson.M{
				"stage": "FETCH",
				"inputStage": bson.M{
					"stage":     "IXSCAN",
					"indexName": "title_1",
				},
			},
		},
		"executionStats": bson.M{
			"nReturned":           int32(1),
			"executionTimeMillis": int32(0),
			"totalKeysExamined":   int32(1),
			"totalDocsExamined":   int32(1),
		},
	}
}

func TestExplainTitleLookup(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{explainDoc: explainDocument()}
	c := newTestCatalog(t, coll)

	stats, err := c.ExplainTitleLookup(context.Background(), "Some Book Title")
	require.NoError(t, err)

	assert.Equal(t, "FETCH", stats.WinningStage)
	assert.Equal(t, "title_1", stats.IndexName)
	assert.True(t, stats.UsedIndex())
	assert.EqualValues(t, 1, stats.NReturned)
	assert.NotNil(t, stats.Raw)

	require.Len(t, coll.explains, 1)
	assert.Equal(t, TitleLookupQuery("Some Book Title"), coll.explains[0])
	assert.Equal(t, []string{"executionStats"}, coll.verbosity)
}

func TestExplainTitleLookupPropagatesFailure(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t, &fakeCollection{explainErr: errEngine})

	stats, err := c.ExplainTitleLookup(context.Background(), "x")
	assert.Nil(t, stats)
	assert.ErrorIs(t, err, ErrQueryExecution)
	assert.ErrorIs(t, err, errEngine)
}

func TestProvisionAndExplain(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{explainDoc: explainDocument()}
	c := newTestCatalog(t, coll, WithExplainTitle("Dune"))

	diagnostic, err := c.ProvisionAndExplain(context.Background())
	require.NoError(t, err)
	assert.Len(t, diagnostic.Indexes, 2)
	assert.Equal(t, "title_1", diagnostic.Explain.IndexName)
	assert.Equal(t, TitleLookupQuery("Dune"), coll.explains[0])
}

func TestProvisionAndExplainSkipsExplainAfterFatalIndexError(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{
		createIndex: func(IndexSpec) (string, error) { return "", errEngine },
		explainDoc:  explainDocument(),
	}
	c := newTestCatalog(t, coll)

	diagnostic, err := c.ProvisionAndExplain(context.Background())
	assert.Nil(t, diagnostic)
	assert.ErrorIs(t, err, ErrIndexCreation)
	assert.Empty(t, coll.explains)
}

func TestOperationTimeoutReachesCollection(t *testing.T) {
	t.Parallel()

	var hasDeadline bool

	coll := &deadlineCollection{fakeCollection: &fakeCollection{}, seen: &hasDeadline}
	c, err := New(coll, WithOperationTimeout(time.Second))
	require.NoError(t, err)

	_, err = c.FindAvailable(context.Background(), DefaultPage())
	require.NoError(t, err)
	assert.True(t, hasDeadline)
}

type deadlineCollection struct {
	*fakeCollection
	seen *bool
}

func (d *deadlineCollection) Find(ctx context.Context, query FindQuery) (Cursor, error) {
	_, *d.seen = ctx.Deadline()

	return d.fakeCollection.Find(ctx, query)
}

func TestSpansCarryOperationAttributes(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")
	c := newTestCatalog(t, &fakeCollection{findErr: errEngine}, WithTracer(tracer))

	_, err := c.FindAvailable(context.Background(), DefaultPage())
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "catalog.find_available", spans[0].Name())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}

	assert.Equal(t, "mongodb", attrs["db.system"])
	assert.Equal(t, "books", attrs["db.mongodb.collection"])
	assert.Equal(t, "find_available", attrs["db.operation"])
	assert.Equal(t, "1", attrs["catalog.page"])
}

func TestOperationMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	factory, err := metrics.NewMetricsFactory(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"), log.NewNop())
	require.NoError(t, err)

	c := newTestCatalog(t, &fakeCollection{findErr: errEngine}, WithMetricsFactory(factory))

	_, err = c.FindAvailable(context.Background(), DefaultPage())
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.EqualValues(t, 1, counterTotal(rm, metrics.MetricCatalogOperationErrors.Name))
	assert.True(t, hasMetric(rm, metrics.MetricCatalogOperationDuration.Name))
}

func counterTotal(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}

			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}

	return total
}

func hasMetric(rm metricdata.ResourceMetrics, name string) bool {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return true
			}
		}
	}

	return false
}
