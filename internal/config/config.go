// Package config loads and validates runtime settings from the environment.
// Values in an optional .env file are applied first; variables already set in
// the process environment win. Loaders report every invalid value at once so
// a misconfigured deployment fails before any I/O.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Search backends for top-N ranking.
const (
	SearchBackendREST    = "rest"
	SearchBackendGraphQL = "graphql"
)

// GitHub configures the remote API client.
type GitHub struct {
	APIBaseURL            string
	Token                 string
	Timeout               time.Duration
	MaxConcurrentRequests int
	RequestsPerSecond     int
	CommitsPageSize       int
	SearchBackend         string
	SecondaryLimitSleep   time.Duration
}

// ClickHouse configures the analytical store the snapshot is written to.
type ClickHouse struct {
	URL                string
	User               string
	Password           string
	Database           string
	RepositoriesTable  string
	RankingsTable      string
	AuthorCommitsTable string
	BatchSize          int
}

// Postgres configures the database behind the version endpoint.
type Postgres struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	MinPoolSize    int
	MaxPoolSize    int
	CommandTimeout time.Duration
	ServerAddr     string
}

// DSN returns the connection URL for the gorm postgres driver. Credentials
// and the database name are escaped, so they may contain any character.
func (p Postgres) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// LoadDotEnv applies a .env file from the working directory if one exists.
func LoadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// LoadGitHub reads the GITHUB_* variables.
func LoadGitHub() (GitHub, error) {
	e := &env{}
	cfg := GitHub{
		APIBaseURL:            strings.TrimRight(e.str("GITHUB_API_BASE_URL", "https://api.github.com"), "/"),
		Token:                 e.str("GITHUB_TOKEN", ""),
		Timeout:               e.seconds("GITHUB_TIMEOUT_SECONDS", 10),
		MaxConcurrentRequests: e.integer("GITHUB_MAX_CONCURRENT_REQUESTS", 5),
		RequestsPerSecond:     e.integer("GITHUB_REQUESTS_PER_SECOND", 10),
		CommitsPageSize:       e.integer("GITHUB_COMMITS_PAGE_SIZE", 100),
		SearchBackend:         strings.ToLower(e.str("GITHUB_SEARCH_BACKEND", SearchBackendREST)),
		SecondaryLimitSleep:   e.seconds("GITHUB_SECONDARY_LIMIT_SLEEP_SECONDS", 0),
	}

	e.check(isHTTPURL(cfg.APIBaseURL), "GITHUB_API_BASE_URL must be an absolute http(s) URL")
	e.check(cfg.Timeout > 0, "GITHUB_TIMEOUT_SECONDS must be greater than 0")
	e.check(cfg.MaxConcurrentRequests >= 1, "GITHUB_MAX_CONCURRENT_REQUESTS must be at least 1")
	e.check(cfg.RequestsPerSecond >= 1, "GITHUB_REQUESTS_PER_SECOND must be at least 1")
	e.check(cfg.CommitsPageSize >= 1 && cfg.CommitsPageSize <= 100, "GITHUB_COMMITS_PAGE_SIZE must be between 1 and 100")
	e.check(cfg.SearchBackend == SearchBackendREST || cfg.SearchBackend == SearchBackendGraphQL,
		"GITHUB_SEARCH_BACKEND must be rest or graphql")
	e.check(cfg.SecondaryLimitSleep >= 0, "GITHUB_SECONDARY_LIMIT_SLEEP_SECONDS must not be negative")
	return cfg, e.err("github")
}

// LoadClickHouse reads the CLICKHOUSE_* variables.
func LoadClickHouse() (ClickHouse, error) {
	e := &env{}
	cfg := ClickHouse{
		URL:                e.required("CLICKHOUSE_URL"),
		User:               e.required("CLICKHOUSE_USER"),
		Password:           e.str("CLICKHOUSE_PASSWORD", ""),
		Database:           e.required("CLICKHOUSE_DATABASE"),
		RepositoriesTable:  e.required("CLICKHOUSE_REPOSITORIES_TABLE"),
		RankingsTable:      e.required("CLICKHOUSE_REPOSITORY_RANKINGS_TABLE"),
		AuthorCommitsTable: e.required("CLICKHOUSE_REPOSITORY_AUTHORS_TABLE"),
		BatchSize:          e.integer("CLICKHOUSE_INSERT_BATCH_SIZE", 500),
	}

	if cfg.URL != "" {
		u, err := url.Parse(cfg.URL)
		e.check(err == nil && u.Scheme != "" && u.Host != "", "CLICKHOUSE_URL must be an absolute URL")
	}
	e.check(cfg.BatchSize >= 1, "CLICKHOUSE_INSERT_BATCH_SIZE must be at least 1")
	return cfg, e.err("clickhouse")
}

// LoadPostgres reads the DB_* variables and the server listen address.
func LoadPostgres() (Postgres, error) {
	e := &env{}
	cfg := Postgres{
		Host:           e.required("DB_HOST"),
		Port:           e.integer("DB_PORT", 5432),
		User:           e.required("DB_USER"),
		Password:       e.required("DB_PASSWORD"),
		Database:       e.required("DB_NAME"),
		MinPoolSize:    e.integer("DB_POOL_MIN_SIZE", 1),
		MaxPoolSize:    e.integer("DB_POOL_MAX_SIZE", 10),
		CommandTimeout: e.seconds("DB_COMMAND_TIMEOUT", 30),
		ServerAddr:     e.str("SERVER_ADDR", ":8000"),
	}

	e.check(cfg.Port >= 0 && cfg.Port <= 65535, "DB_PORT must be between 0 and 65535")
	e.check(cfg.MinPoolSize >= 1, "DB_POOL_MIN_SIZE must be at least 1")
	e.check(cfg.MaxPoolSize >= 1, "DB_POOL_MAX_SIZE must be at least 1")
	e.check(cfg.MinPoolSize <= cfg.MaxPoolSize, "DB_POOL_MIN_SIZE cannot exceed DB_POOL_MAX_SIZE")
	e.check(cfg.CommandTimeout > 0, "DB_COMMAND_TIMEOUT must be greater than 0")
	return cfg, e.err("postgres")
}

// env reads variables and collects every problem it finds.
type env struct {
	problems []error
}

func (e *env) str(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (e *env) required(key string) string {
	v := e.str(key, "")
	if v == "" {
		e.problems = append(e.problems, fmt.Errorf("%s is required", key))
	}
	return v
}

func (e *env) integer(key string, fallback int) int {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.problems = append(e.problems, fmt.Errorf("%s: %q is not an integer", key, v))
		return fallback
	}
	return n
}

func (e *env) seconds(key string, fallback float64) time.Duration {
	sec := fallback
	if v := e.str(key, ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.problems = append(e.problems, fmt.Errorf("%s: %q is not a number", key, v))
		} else {
			sec = f
		}
	}
	return time.Duration(sec * float64(time.Second))
}

func (e *env) check(ok bool, msg string) {
	if !ok {
		e.problems = append(e.problems, errors.New(msg))
	}
}

func (e *env) err(section string) error {
	if len(e.problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid %s configuration: %w", section, errors.Join(e.problems...))
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
