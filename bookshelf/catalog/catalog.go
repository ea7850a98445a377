package catalog

import (
	"context"
	"errors"
	"time"

	constant "github.com/LerianStudio/lib-bookshelf/bookshelf/constants"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/errgroup"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/log"
	libOpentelemetry "github.com/LerianStudio/lib-bookshelf/bookshelf/opentelemetry"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/opentelemetry/metrics"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Operation names used in errors, spans and metric labels.
const (
	OpFindAvailable       = "find_available"
	OpAveragePriceByGenre = "average_price_by_genre"
	OpTopAuthor           = "top_author"
	OpBooksByDecade       = "books_by_decade"
	OpReports             = "reports"
	OpEnsureIndexes       = "ensure_indexes"
	OpExplainTitleLookup  = "explain_title_lookup"
)

const tracerName = "catalog"

// Catalog runs the book queries against a Collection.
type Catalog struct {
	collection     Collection
	logger         log.Logger
	metrics        *metrics.MetricsFactory
	tracer         trace.Tracer
	timeout        time.Duration
	publishedAfter int
	explainTitle   string
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger log.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetricsFactory enables operation metrics.
func WithMetricsFactory(factory *metrics.MetricsFactory) Option {
	return func(c *Catalog) {
		c.metrics = factory
	}
}

// WithTracer overrides the global "catalog" tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Catalog) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithOperationTimeout bounds every call that reaches the collection, including
// reading a Results. Zero disables it.
func WithOperationTimeout(timeout time.Duration) Option {
	return func(c *Catalog) {
		if timeout >= 0 {
			c.timeout = timeout
		}
	}
}

// WithPublishedAfter sets the exclusive publishedYear threshold of FindAvailable.
func WithPublishedAfter(year int) Option {
	return func(c *Catalog) {
		c.publishedAfter = year
	}
}

// WithExplainTitle sets the title looked up by ProvisionAndExplain.
func WithExplainTitle(title string) Option {
	return func(c *Catalog) {
		c.explainTitle = title
	}
}

// New returns a Catalog over collection.
func New(collection Collection, opts ...Option) (*Catalog, error) {
	if collection == nil {
		return nil, ErrNilCollection
	}

	c := &Catalog{
		collection:     collection,
		logger:         log.NewNop(),
		tracer:         otel.Tracer(tracerName),
		publishedAfter: constant.DefaultPublishedAfter,
		explainTitle:   constant.DefaultExplainTitle,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// FindAvailable returns in-stock books published after the threshold year,
// cheapest first, for the given page.
func (c *Catalog) FindAvailable(ctx context.Context, page Page) (*Results[BookSummary], error) {
	ctx, span := c.start(ctx, OpFindAvailable,
		attribute.Int64(constant.AttrCatalogPage, page.Number),
		attribute.Int64(constant.AttrCatalogPageSize, page.Size),
	)
	defer span.End()

	if err := page.Validate(); err != nil {
		err = NewError(KindValidation, OpFindAvailable, err)
		libOpentelemetry.HandleSpanError(span, "Invalid pagination", err)
		c.logger.Log(ctx, log.LevelWarn, "rejected pagination",
			log.Int64("page", page.Number), log.Int64("size", page.Size))
		c.observe(ctx, OpFindAvailable, time.Now(), err)

		return nil, err
	}

	query := AvailableQuery(c.publishedAfter, page)

	return runQuery[BookSummary](ctx, c, span, OpFindAvailable, func(ctx context.Context) (Cursor, error) {
		return c.collection.Find(ctx, query)
	})
}

// AveragePriceByGenre returns the mean price per genre, ordered by genre.
func (c *Catalog) AveragePriceByGenre(ctx context.Context) (*Results[GenrePrice], error) {
	return aggregate[GenrePrice](ctx, c, OpAveragePriceByGenre, AveragePriceByGenrePipeline())
}

// TopAuthor returns a single row with the author owning the most books.
func (c *Catalog) TopAuthor(ctx context.Context) (*Results[AuthorBookCount], error) {
	return aggregate[AuthorBookCount](ctx, c, OpTopAuthor, TopAuthorPipeline())
}

// BooksByDecade returns book counts per publication decade, oldest first.
func (c *Catalog) BooksByDecade(ctx context.Context) (*Results[DecadeCount], error) {
	return aggregate[DecadeCount](ctx, c, OpBooksByDecade, BooksByDecadePipeline())
}

type reportOptions struct {
	concurrent bool
}

// ReportOption configures Reports.
type ReportOption func(*reportOptions)

// WithConcurrentReports runs the three pipelines in parallel.
func WithConcurrentReports() ReportOption {
	return func(o *reportOptions) {
		o.concurrent = true
	}
}

// Reports runs the three aggregation reports and materializes them. The
// first failure aborts the rest.
func (c *Catalog) Reports(ctx context.Context, opts ...ReportOption) (*Report, error) {
	var options reportOptions

	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	ctx, span := c.start(ctx, OpReports, attribute.Bool("catalog.concurrent", options.concurrent))
	defer span.End()

	report := &Report{}

	tasks := []func(context.Context) error{
		func(ctx context.Context) error {
			rows, err := collect(ctx, c.AveragePriceByGenre)
			report.AveragePriceByGenre = rows

			return err
		},
		func(ctx context.Context) error {
			results, err := c.TopAuthor(ctx)
			if err != nil {
				return err
			}

			top, found, err := results.First(ctx)
			if err != nil {
				return err
			}

			if found {
				report.TopAuthor = &top
			}

			return nil
		},
		func(ctx context.Context) error {
			rows, err := collect(ctx, c.BooksByDecade)
			report.BooksByDecade = rows

			return err
		},
	}

	var err error

	if options.concurrent {
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLogger(c.logger)

		for _, task := range tasks {
			group.Go(func() error { return task(groupCtx) })
		}

		err = group.Wait()
	} else {
		for _, task := range tasks {
			if err = task(ctx); err != nil {
				break
			}
		}
	}

	if err != nil {
		libOpentelemetry.HandleSpanError(span, "Failed to build reports", err)

		return nil, err
	}

	return report, nil
}

// EnsureIndexes creates the title index and the author, publishedYear index
// in that order. An index that already exists is logged and counted but not
// treated as a failure; any other failure stops provisioning.
func (c *Catalog) EnsureIndexes(ctx context.Context) ([]IndexOutcome, error) {
	ctx, span := c.start(ctx, OpEnsureIndexes)
	defer span.End()

	started := time.Now()
	specs := []IndexSpec{TitleIndex(), AuthorYearIndex()}
	outcomes := make([]IndexOutcome, 0, len(specs))

	for _, spec := range specs {
		outcome, err := c.ensureIndex(ctx, span, spec)
		if err != nil {
			libOpentelemetry.HandleSpanError(span, "Failed to create index", err)
			c.observe(ctx, OpEnsureIndexes, started, err)

			return outcomes, err
		}

		outcomes = append(outcomes, outcome)
	}

	c.observe(ctx, OpEnsureIndexes, started, nil)

	return outcomes, nil
}

func (c *Catalog) ensureIndex(ctx context.Context, span trace.Span, spec IndexSpec) (IndexOutcome, error) {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	name, err := c.collection.CreateIndex(callCtx, spec)
	if err == nil {
		if name == "" {
			name = spec.Name
		}

		c.logger.Log(ctx, log.LevelDebug, "index ensured", log.String("index", name))
		libOpentelemetry.HandleSpanEvent(span, "index.ensured", attribute.String(constant.AttrCatalogIndex, name))

		return IndexOutcome{Name: name, Created: true}, nil
	}

	if errors.Is(err, ErrIndexConflict) {
		c.logger.Log(ctx, log.LevelWarn, "index already exists",
			log.String("index", spec.Name), log.String("collection", c.collection.Name()), log.Err(err))
		libOpentelemetry.HandleSpanEvent(span, "index.conflict",
			attribute.String(constant.AttrCatalogIndex, spec.Name),
			attribute.String(constant.AttrCatalogIndexState, "exists"),
		)
		c.count(ctx, metrics.MetricCatalogIndexConflicts, map[string]string{"index": spec.Name})

		return IndexOutcome{Name: spec.Name, Existed: true}, nil
	}

	c.logger.Log(ctx, log.LevelError, "index creation failed",
		log.String("index", spec.Name), log.String("collection", c.collection.Name()), log.Err(err))

	return IndexOutcome{}, wrap(KindIndexCreation, OpEnsureIndexes, err)
}

// ExplainTitleLookup explains a point lookup on title with executionStats
// verbosity.
func (c *Catalog) ExplainTitleLookup(ctx context.Context, title string) (*ExecutionStats, error) {
	ctx, span := c.start(ctx, OpExplainTitleLookup)
	defer span.End()

	started := time.Now()

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, err := c.collection.Explain(callCtx, TitleLookupQuery(title), constant.ExplainVerbosityExecutionStats)
	if err != nil {
		err = wrap(KindQueryExecution, OpExplainTitleLookup, err)
		c.fail(ctx, span, OpExplainTitleLookup, started, err)

		return nil, err
	}

	stats := ParseExecutionStats(raw)

	span.SetAttributes(
		attribute.String("catalog.winning_stage", stats.WinningStage),
		attribute.String(constant.AttrCatalogIndex, stats.IndexName),
	)
	c.logger.Log(ctx, log.LevelDebug, "title lookup explained",
		log.String("winning_stage", stats.WinningStage),
		log.String("index", stats.IndexName),
		log.Int64("docs_examined", stats.TotalDocsExamined),
	)
	c.observe(ctx, OpExplainTitleLookup, started, nil)

	return stats, nil
}

// ProvisionAndExplain runs EnsureIndexes then explains the configured title
// lookup. The plan is not retrieved when provisioning fails.
func (c *Catalog) ProvisionAndExplain(ctx context.Context) (*Diagnostic, error) {
	outcomes, err := c.EnsureIndexes(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := c.ExplainTitleLookup(ctx, c.explainTitle)
	if err != nil {
		return nil, err
	}

	return &Diagnostic{Indexes: outcomes, Explain: stats}, nil
}

func aggregate[T any](ctx context.Context, c *Catalog, op string, pipeline mongo.Pipeline) (*Results[T], error) {
	ctx, span := c.start(ctx, op)
	defer span.End()

	return runQuery[T](ctx, c, span, op, func(ctx context.Context) (Cursor, error) {
		return c.collection.Aggregate(ctx, pipeline)
	})
}

func runQuery[T any](ctx context.Context, c *Catalog, span trace.Span, op string, open func(context.Context) (Cursor, error)) (*Results[T], error) {
	started := time.Now()

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	cursor, err := open(callCtx)
	if err != nil {
		err = wrap(KindQueryExecution, op, err)
		c.fail(ctx, span, op, started, err)

		return nil, err
	}

	c.observe(ctx, op, started, nil)
	c.logger.Log(ctx, log.LevelDebug, "catalog query opened", log.String("operation", op))

	return newResults[T](cursor, op, c.timeout), nil
}

func collect[T any](ctx context.Context, open func(context.Context) (*Results[T], error)) ([]T, error) {
	results, err := open(ctx)
	if err != nil {
		return nil, err
	}

	return results.All(ctx)
}

func (c *Catalog) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "catalog."+op)

	span.SetAttributes(append([]attribute.KeyValue{
		attribute.String(constant.AttrDBSystem, constant.DBSystemMongoDB),
		attribute.String(constant.AttrDBMongoDBCollection, c.collection.Name()),
		attribute.String(constant.AttrDBOperation, op),
	}, attrs...)...)

	return ctx, span
}

func (c *Catalog) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.timeout)
}

func (c *Catalog) fail(ctx context.Context, span trace.Span, op string, started time.Time, err error) {
	libOpentelemetry.HandleSpanError(span, "Catalog operation failed", err)
	c.logger.Log(ctx, log.LevelError, "catalog operation failed", log.String("operation", op), log.Err(err))
	c.observe(ctx, op, started, err)
}

func (c *Catalog) observe(ctx context.Context, op string, started time.Time, err error) {
	if c.metrics == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = KindOf(err).String()

		c.count(ctx, metrics.MetricCatalogOperationErrors, map[string]string{"operation": op, "kind": status})
	}

	histogram, histErr := c.metrics.Histogram(metrics.MetricCatalogOperationDuration)
	if histErr != nil {
		c.logger.Log(ctx, log.LevelWarn, "failed to create catalog histogram", log.Err(histErr))

		return
	}

	if recErr := histogram.
		WithLabels(map[string]string{"operation": op, "status": status}).
		Record(ctx, time.Since(started).Milliseconds()); recErr != nil {
		c.logger.Log(ctx, log.LevelWarn, "failed to record catalog metric", log.Err(recErr))
	}
}

func (c *Catalog) count(ctx context.Context, m metrics.Metric, labels map[string]string) {
	if c.metrics == nil {
		return
	}

	counter, err := c.metrics.Counter(m)
	if err != nil {
		c.logger.Log(ctx, log.LevelWarn, "failed to create catalog counter", log.Err(err))

		return
	}

	if err := counter.WithLabels(labels).AddOne(ctx); err != nil {
		c.logger.Log(ctx, log.LevelWarn, "failed to record catalog metric", log.Err(err))
	}
}
