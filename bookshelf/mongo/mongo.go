package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LerianStudio/lib-bookshelf/bookshelf/backoff"
	constant "github.com/LerianStudio/lib-bookshelf/bookshelf/constants"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/log"
	libOpentelemetry "github.com/LerianStudio/lib-bookshelf/bookshelf/opentelemetry"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/opentelemetry/metrics"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultServerSelectionTimeout = 5 * time.Second
	defaultHeartbeatInterval      = 10 * time.Second
	maxMaxPoolSize                = 1000
	maxConnectRetries             = 10
	defaultRetryBaseDelay         = 200 * time.Millisecond
	connectBackoffCap             = 5 * time.Second
)

var (
	// ErrNilContext is returned when a required context is nil.
	ErrNilContext = errors.New("context cannot be nil")
	// ErrNilClient is returned when a *Client receiver is nil.
	ErrNilClient = errors.New("mongo client is nil")
	// ErrClientClosed is returned when the client is not connected.
	ErrClientClosed = errors.New("mongo client is closed")
	// ErrNilDependency is returned when an Option sets a required dependency to nil.
	ErrNilDependency = errors.New("mongo option set a required dependency to nil")
	// ErrEmptyURI is returned when Mongo URI is empty.
	ErrEmptyURI = errors.New("mongo uri cannot be empty")
	// ErrEmptyDatabaseName is returned when database name is empty.
	ErrEmptyDatabaseName = errors.New("database name cannot be empty")
	// ErrEmptyCollectionName is returned when collection name is empty.
	ErrEmptyCollectionName = errors.New("collection name cannot be empty")
	// ErrConnect wraps connection establishment failures.
	ErrConnect = errors.New("mongo connect failed")
	// ErrPing wraps connectivity probe failures.
	ErrPing = errors.New("mongo ping failed")
	// ErrDisconnect wraps disconnection failures.
	ErrDisconnect = errors.New("mongo disconnect failed")
	// ErrNilMongoClient is returned when mongo driver returns a nil client.
	ErrNilMongoClient = errors.New("mongo driver returned nil client")
)

// Config defines MongoDB connection and pool behavior.
//
// ConnectRetries is the number of extra connect attempts after the first one
// fails. RetryBaseDelay seeds the jittered exponential delay between them.
type Config struct {
	URI                    string
	Database               string
	MaxPoolSize            uint64
	ServerSelectionTimeout time.Duration
	HeartbeatInterval      time.Duration
	ConnectRetries         int
	RetryBaseDelay         time.Duration
	Logger                 log.Logger
	MetricsFactory         *metrics.MetricsFactory
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.URI) == "" {
		return ErrEmptyURI
	}

	if strings.TrimSpace(cfg.Database) == "" {
		return ErrEmptyDatabaseName
	}

	return nil
}

// Option customizes internal client dependencies (primarily for tests).
type Option func(*clientDeps)

// connectionFailuresMetric defines the counter for mongo connection failures.
var connectionFailuresMetric = metrics.Metric{
	Name:        "mongo_connection_failures_total",
	Unit:        "1",
	Description: "Total number of mongo connection failures",
}

// Client wraps a MongoDB client with lifecycle helpers.
type Client struct {
	mu             sync.RWMutex
	client         *mongo.Client
	databaseName   string
	cfg            Config
	metricsFactory *metrics.MetricsFactory
	uri            string // private copy for reconnection; cfg.URI cleared after connect
	deps           clientDeps
}

type clientDeps struct {
	connect    func(context.Context, *options.ClientOptions) (*mongo.Client, error)
	ping       func(context.Context, *mongo.Client) error
	disconnect func(context.Context, *mongo.Client) error
	sleep      func(context.Context, time.Duration) error
}

func defaultDeps() clientDeps {
	return clientDeps{
		connect: func(ctx context.Context, clientOptions *options.ClientOptions) (*mongo.Client, error) {
			return mongo.Connect(ctx, clientOptions)
		},
		ping: func(ctx context.Context, client *mongo.Client) error {
			return client.Ping(ctx, nil)
		},
		disconnect: func(ctx context.Context, client *mongo.Client) error {
			return client.Disconnect(ctx)
		},
		sleep: backoff.SleepWithContext,
	}
}

// NewClient validates config, connects to MongoDB, and returns a ready client.
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	cfg = normalizeConfig(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	deps := defaultDeps()

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(&deps)
	}

	if deps.connect == nil || deps.ping == nil || deps.disconnect == nil || deps.sleep == nil {
		return nil, ErrNilDependency
	}

	client := &Client{
		databaseName:   cfg.Database,
		cfg:            cfg,
		metricsFactory: cfg.MetricsFactory,
		uri:            cfg.URI,
		deps:           deps,
	}

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

// Connect establishes a MongoDB connection if one is not already open,
// retrying up to Config.ConnectRetries times with jittered backoff.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	if ctx == nil {
		return ErrNilContext
	}

	tracer := otel.Tracer("mongo")

	ctx, span := tracer.Start(ctx, "mongo.connect")
	defer span.End()

	span.SetAttributes(
		attribute.String(constant.AttrDBSystem, constant.DBSystemMongoDB),
		attribute.String(constant.AttrDBName, c.databaseName),
	)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	var err error

	for attempt := 0; attempt <= c.cfg.ConnectRetries; attempt++ {
		if attempt > 0 {
			delay := backoff.Capped(c.cfg.RetryBaseDelay, connectBackoffCap, attempt-1)

			c.logAtLevel(ctx, log.LevelWarn, "retrying mongo connect",
				log.Int("attempt", attempt), log.Duration("delay", delay), log.Err(err))

			if sleepErr := c.deps.sleep(ctx, delay); sleepErr != nil {
				err = errors.Join(err, sleepErr)

				break
			}
		}

		if err = c.connectLocked(ctx); err == nil {
			return nil
		}

		c.recordConnectionFailure("connect")
	}

	libOpentelemetry.HandleSpanError(span, "Failed to connect to mongo", err)

	return err
}

// connectLocked performs the actual connection logic.
// The caller MUST hold c.mu (write lock) before calling this method.
func (c *Client) connectLocked(ctx context.Context) error {
	clientOptions := options.Client().ApplyURI(c.uri)

	serverSelectionTimeout := c.cfg.ServerSelectionTimeout
	if serverSelectionTimeout <= 0 {
		serverSelectionTimeout = defaultServerSelectionTimeout
	}

	heartbeatInterval := c.cfg.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	clientOptions.SetServerSelectionTimeout(serverSelectionTimeout)
	clientOptions.SetHeartbeatInterval(heartbeatInterval)

	if c.cfg.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(c.cfg.MaxPoolSize)
	}

	mongoClient, err := c.deps.connect(ctx, clientOptions)
	if err != nil {
		c.log(ctx, "mongo connect failed", log.Err(err))

		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	if mongoClient == nil {
		return ErrNilMongoClient
	}

	if err := c.deps.ping(ctx, mongoClient); err != nil {
		if disconnectErr := c.deps.disconnect(ctx, mongoClient); disconnectErr != nil {
			c.log(ctx, "failed to disconnect after ping failure", log.Err(disconnectErr))
		}

		c.log(ctx, "mongo ping failed", log.Err(err))

		return fmt.Errorf("%w: %w", ErrPing, err)
	}

	c.client = mongoClient
	c.cfg.URI = ""

	c.logAtLevel(ctx, log.LevelInfo, "mongo connected", log.String("database", c.databaseName))

	return nil
}

// Client returns the underlying mongo client if connected.
func (c *Client) Client(ctx context.Context) (*mongo.Client, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	if ctx == nil {
		return nil, ErrNilContext
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return nil, ErrClientClosed
	}

	return c.client, nil
}

// DatabaseName returns the configured database name.
func (c *Client) DatabaseName() (string, error) {
	if c == nil {
		return "", ErrNilClient
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.databaseName, nil
}

// Database returns the configured mongo database handle.
func (c *Client) Database(ctx context.Context) (*mongo.Database, error) {
	client, err := c.Client(ctx)
	if err != nil {
		return nil, err
	}

	databaseName, err := c.DatabaseName()
	if err != nil {
		return nil, err
	}

	return client.Database(databaseName), nil
}

// Collection returns a catalog-ready adapter for name in the configured database.
func (c *Client) Collection(ctx context.Context, name string) (*Collection, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyCollectionName
	}

	db, err := c.Database(ctx)
	if err != nil {
		return nil, err
	}

	return NewCollection(db.Collection(name)), nil
}

// Ping checks MongoDB availability using the active connection.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	if ctx == nil {
		return ErrNilContext
	}

	tracer := otel.Tracer("mongo")

	ctx, span := tracer.Start(ctx, "mongo.ping")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemMongoDB))

	client, err := c.Client(ctx)
	if err != nil {
		libOpentelemetry.HandleSpanError(span, "Failed to get mongo client for ping", err)

		return err
	}

	if err := c.deps.ping(ctx, client); err != nil {
		pingErr := fmt.Errorf("%w: %w", ErrPing, err)
		libOpentelemetry.HandleSpanError(span, "Mongo ping failed", pingErr)

		return pingErr
	}

	return nil
}

// Close releases the MongoDB connection.
// The client is marked as closed regardless of whether disconnect succeeds or fails.
func (c *Client) Close(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	if ctx == nil {
		return ErrNilContext
	}

	tracer := otel.Tracer("mongo")

	ctx, span := tracer.Start(ctx, "mongo.close")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemMongoDB))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	err := c.deps.disconnect(ctx, c.client)
	c.client = nil

	if err != nil {
		c.log(ctx, "mongo disconnect failed", log.Err(err))

		disconnectErr := fmt.Errorf("%w: %w", ErrDisconnect, err)
		libOpentelemetry.HandleSpanError(span, "Failed to disconnect from mongo", disconnectErr)

		return disconnectErr
	}

	return nil
}

func (c *Client) log(ctx context.Context, message string, fields ...log.Field) {
	c.logAtLevel(ctx, log.LevelDebug, message, fields...)
}

func (c *Client) logAtLevel(ctx context.Context, level log.Level, message string, fields ...log.Field) {
	if c == nil || c.cfg.Logger == nil {
		return
	}

	if !c.cfg.Logger.Enabled(level) {
		return
	}

	c.cfg.Logger.Log(ctx, level, message, fields...)
}

// normalizeConfig applies safe defaults and clamps to a Config.
func normalizeConfig(cfg Config) Config {
	if cfg.MaxPoolSize > maxMaxPoolSize {
		cfg.MaxPoolSize = maxMaxPoolSize
	}

	if cfg.ConnectRetries < 0 {
		cfg.ConnectRetries = 0
	}

	if cfg.ConnectRetries > maxConnectRetries {
		cfg.ConnectRetries = maxConnectRetries
	}

	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}

	return cfg
}

// recordConnectionFailure increments the mongo connection failure counter.
// No-op when metricsFactory is nil.
func (c *Client) recordConnectionFailure(operation string) {
	if c == nil || c.metricsFactory == nil {
		return
	}

	counter, err := c.metricsFactory.Counter(connectionFailuresMetric)
	if err != nil {
		c.logAtLevel(context.Background(), log.LevelWarn, "failed to create mongo metric counter", log.Err(err))
		return
	}

	err = counter.
		WithLabels(map[string]string{
			"operation": constant.SanitizeMetricLabel(operation),
		}).
		AddOne(context.Background())
	if err != nil {
		c.logAtLevel(context.Background(), log.LevelWarn, "failed to record mongo metric", log.Err(err))
	}
}
