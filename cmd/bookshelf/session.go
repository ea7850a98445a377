package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-bookshelf/bookshelf/catalog"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/config"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/log"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/mongo"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/opentelemetry"
	bzap "github.com/LerianStudio/lib-bookshelf/bookshelf/zap"
	"github.com/google/uuid"
)

// indexLister reports the indexes present on the books collection.
type indexLister interface {
	ListIndexes(ctx context.Context) ([]mongo.IndexInfo, error)
}

// session owns everything one CLI invocation opens.
type session struct {
	logger    log.Logger
	rawLogger *bzap.Logger
	telemetry *opentelemetry.Telemetry
	client    *mongo.Client
	indexes   indexLister
	catalog   *catalog.Catalog
}

func openSession(ctx context.Context, cfg *config.Config) (_ *session, err error) {
	s := &session{}

	defer func() {
		if err != nil {
			err = errors.Join(err, s.close(ctx))
		}
	}()

	s.rawLogger, err = bzap.New(bzap.Config{
		Environment:     bzap.Environment(cfg.EnvName),
		Level:           cfg.LogLevel,
		OTelLibraryName: cfg.Telemetry.LibraryName,
	})
	if err != nil {
		return nil, err
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	s.logger = s.rawLogger.With(log.String("run_id", runID.String()))

	s.telemetry, err = opentelemetry.InitializeTelemetry(ctx, opentelemetry.TelemetryConfig{
		LibraryName:               cfg.Telemetry.LibraryName,
		ServiceName:               cfg.Telemetry.ServiceName,
		ServiceVersion:            cfg.Telemetry.ServiceVersion,
		DeploymentEnv:             cfg.EnvName,
		CollectorExporterEndpoint: cfg.Telemetry.Endpoint,
		EnableTelemetry:           cfg.Telemetry.Enabled,
		Logger:                    s.logger,
	})
	if err != nil {
		return nil, err
	}

	uri, err := cfg.Mongo.ConnectionString()
	if err != nil {
		return nil, err
	}

	s.client, err = mongo.NewClient(ctx, mongo.Config{
		URI:                    uri,
		Database:               cfg.Mongo.Database,
		MaxPoolSize:            cfg.Mongo.MaxPoolSize,
		ServerSelectionTimeout: cfg.Mongo.ConnectTimeout,
		ConnectRetries:         cfg.Mongo.ConnectRetries,
		Logger:                 s.logger,
		MetricsFactory:         s.telemetry.MetricsFactory,
	})
	if err != nil {
		return nil, err
	}

	collection, err := s.client.Collection(ctx, cfg.Mongo.Collection)
	if err != nil {
		return nil, err
	}

	s.indexes = collection

	s.catalog, err = catalog.New(collection,
		catalog.WithLogger(s.logger),
		catalog.WithMetricsFactory(s.telemetry.MetricsFactory),
		catalog.WithTracer(s.telemetry.Tracer()),
		catalog.WithOperationTimeout(cfg.Catalog.OperationTimeout),
		catalog.WithPublishedAfter(cfg.Catalog.PublishedAfter),
		catalog.WithExplainTitle(cfg.Catalog.ExplainTitle),
	)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// close releases the client, flushes telemetry and syncs the logger. Every
// step runs even when an earlier one fails.
func (s *session) close(ctx context.Context) error {
	var errs []error

	if s.client != nil {
		errs = append(errs, s.client.Close(ctx))
	}

	if s.telemetry != nil {
		errs = append(errs, s.telemetry.Shutdown(ctx))
	}

	// Syncing stderr fails with EINVAL on most terminals.
	if s.rawLogger != nil {
		_ = s.rawLogger.Sync(ctx)
	}

	return errors.Join(errs...)
}
