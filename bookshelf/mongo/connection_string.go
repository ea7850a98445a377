package mongo

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	schemeStandard = "mongodb"
	schemeSRV      = "mongodb+srv"
)

var (
	// ErrInvalidScheme is returned when URI scheme is not mongodb or mongodb+srv.
	ErrInvalidScheme = errors.New("invalid mongo uri scheme")
	// ErrEmptyHost is returned when URI host is empty.
	ErrEmptyHost = errors.New("mongo uri host cannot be empty")
	// ErrInvalidPort is returned when URI port is outside the valid TCP range.
	ErrInvalidPort = errors.New("mongo uri port is invalid")
	// ErrPortNotAllowedForSRV is returned when a port is provided for mongodb+srv.
	ErrPortNotAllowedForSRV = errors.New("port cannot be set for mongodb+srv")
	// ErrPasswordWithoutUser is returned when password is set without username.
	ErrPasswordWithoutUser = errors.New("password requires username")
	// ErrInvalidParameters is returned when the raw query string cannot be parsed.
	ErrInvalidParameters = errors.New("mongo uri parameters are invalid")
)

// URIConfig holds the parts of a MongoDB connection string.
type URIConfig struct {
	Scheme   string
	Username string
	Password string
	Host     string
	Port     string
	Database string
	Query    url.Values
}

// BuildURI validates cfg and returns a canonical MongoDB connection URI.
// Credentials and the database name are escaped.
func BuildURI(cfg URIConfig) (string, error) {
	scheme := strings.TrimSpace(cfg.Scheme)
	host := strings.TrimSpace(cfg.Host)
	port := strings.TrimSpace(cfg.Port)
	username := strings.TrimSpace(cfg.Username)

	if err := validateURIParts(scheme, host, port, username, cfg.Password); err != nil {
		return "", err
	}

	uri := &url.URL{Scheme: scheme, Host: host, Path: "/"}

	if port != "" {
		uri.Host = host + ":" + port
	}

	// An empty password still yields "user:@", which RFC 3986 allows.
	if username != "" {
		uri.User = url.UserPassword(username, cfg.Password)
	}

	if database := strings.TrimSpace(cfg.Database); database != "" {
		uri.Path = "/" + url.PathEscape(database)
	}

	if len(cfg.Query) > 0 {
		uri.RawQuery = cfg.Query.Encode()
	}

	return uri.String(), nil
}

// ParseParameters parses a raw "k=v&k2=v2" option string, as found in
// environment configuration, into url.Values. A blank string yields nil.
func ParseParameters(raw string) (url.Values, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "?")
	if raw == "" {
		return nil, nil
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}

	return values, nil
}

func validateURIParts(scheme, host, port, username, password string) error {
	switch scheme {
	case schemeStandard:
		if port == "" {
			break
		}

		parsed, err := strconv.Atoi(port)
		if err != nil || parsed < 1 || parsed > 65535 {
			return ErrInvalidPort
		}
	case schemeSRV:
		if port != "" {
			return ErrPortNotAllowedForSRV
		}
	default:
		return ErrInvalidScheme
	}

	if host == "" {
		return ErrEmptyHost
	}

	if username == "" && password != "" {
		return ErrPasswordWithoutUser
	}

	return nil
}
