package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/LerianStudio/lib-bookshelf/bookshelf/mongo"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var (
	// ErrParse wraps environment parsing failures.
	ErrParse = errors.New("config parse failed")
	// ErrInvalid wraps struct validation failures.
	ErrInvalid = errors.New("config invalid")
	// ErrDotEnv wraps failures reading a .env file that exists.
	ErrDotEnv = errors.New("config dotenv load failed")
)

// Mongo holds connection settings. URI wins over the individual parts.
type Mongo struct {
	URI            string        `env:"MONGO_URI"`
	Scheme         string        `env:"MONGO_SCHEME" envDefault:"mongodb" validate:"oneof=mongodb mongodb+srv"`
	Host           string        `env:"MONGO_HOST" envDefault:"localhost"`
	Port           string        `env:"MONGO_PORT" envDefault:"27017"`
	User           string        `env:"MONGO_USER"`
	Password       string        `env:"MONGO_PASSWORD"`
	Parameters     string        `env:"MONGO_PARAMETERS"`
	Database       string        `env:"MONGO_DATABASE" envDefault:"bookshelf" validate:"required"`
	Collection     string        `env:"MONGO_COLLECTION" envDefault:"books" validate:"required"`
	MaxPoolSize    uint64        `env:"MONGO_MAX_POOL_SIZE" envDefault:"100" validate:"gte=1,lte=1000"`
	ConnectRetries int           `env:"MONGO_CONNECT_RETRIES" envDefault:"3" validate:"gte=0,lte=10"`
	ConnectTimeout time.Duration `env:"MONGO_SERVER_SELECTION_TIMEOUT" envDefault:"5s"`
}

// Catalog holds query settings.
type Catalog struct {
	OperationTimeout time.Duration `env:"CATALOG_OPERATION_TIMEOUT" envDefault:"30s" validate:"gte=0"`
	PublishedAfter   int           `env:"CATALOG_PUBLISHED_AFTER" envDefault:"2010"`
	ExplainTitle     string        `env:"CATALOG_EXPLAIN_TITLE" envDefault:"Some Book Title" validate:"required"`
}

// Telemetry holds OpenTelemetry settings.
type Telemetry struct {
	Enabled        bool   `env:"ENABLE_TELEMETRY" envDefault:"false"`
	LibraryName    string `env:"OTEL_LIBRARY_NAME" envDefault:"github.com/LerianStudio/lib-bookshelf"`
	ServiceName    string `env:"OTEL_RESOURCE_SERVICE_NAME" envDefault:"bookshelf"`
	ServiceVersion string `env:"OTEL_RESOURCE_SERVICE_VERSION" envDefault:"dev"`
	Endpoint       string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" validate:"required_if=Enabled true"`
}

// Config is the full bookshelf configuration.
type Config struct {
	EnvName   string `env:"ENV_NAME" envDefault:"local" validate:"oneof=production staging development local"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	Mongo     Mongo
	Catalog   Catalog
	Telemetry Telemetry
}

// Options controls how Load reads the environment.
type Options struct {
	// DotEnvFiles are loaded in order when present. Defaults to ".env".
	DotEnvFiles []string
	// Environment replaces the process environment, mainly for tests.
	Environment map[string]string
}

// Load reads .env files, parses the environment and validates the result.
func Load(opts Options) (*Config, error) {
	if opts.Environment == nil {
		if err := loadDotEnv(opts.DotEnvFiles); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}

	if err := env.ParseWithOptions(cfg, env.Options{Environment: opts.Environment}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints and that a usable connection string can be
// produced.
func (cfg *Config) Validate() error {
	vld := validator.New(validator.WithRequiredStructEnabled())

	if err := vld.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if _, err := cfg.Mongo.ConnectionString(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return nil
}

// ConnectionString returns URI when set, otherwise assembles one from the parts.
func (m Mongo) ConnectionString() (string, error) {
	if uri := strings.TrimSpace(m.URI); uri != "" {
		return uri, nil
	}

	query, err := mongo.ParseParameters(m.Parameters)
	if err != nil {
		return "", err
	}

	port := m.Port
	if strings.TrimSpace(m.Scheme) == "mongodb+srv" {
		port = ""
	}

	return mongo.BuildURI(mongo.URIConfig{
		Scheme:   m.Scheme,
		Username: m.User,
		Password: m.Password,
		Host:     m.Host,
		Port:     port,
		Query:    query,
	})
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return fmt.Errorf("%w: %s: %w", ErrDotEnv, file, err)
		}
	}

	return nil
}
