package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	ErrMissingAPIKey = errors.New("llm api key is missing")
	ErrInvalidAPIKey = errors.New("llm api key is invalid")
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	AI            AIConfig
	Archive       ArchiveConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver       string
	Name         string
	User         string
	Password     string
	Host         string
	Port         int
	Schema       string
	SSLMode      string
	QueryTimeout time.Duration
}

type AIConfig struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type ArchiveConfig struct {
	Enabled bool
	Prefix  string
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ASKDB_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ASKDB_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	steps := []func() error{
		func() error { return applyString(lookup, "ASKDB_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "ASKDB_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "ASKDB_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "ASKDB_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "ASKDB_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyList(lookup, "ASKDB_HTTP_ALLOWED_ORIGINS", &cfg.HTTP.AllowedOrigins) },
		func() error { return applyString(lookup, "ASKDB_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "ASKDB_DB_NAME", &cfg.Database.Name) },
		func() error { return applyString(lookup, "ASKDB_DB_USER", &cfg.Database.User) },
		func() error { return applyRawString(lookup, "ASKDB_DB_PASSWORD", &cfg.Database.Password) },
		func() error { return applyString(lookup, "ASKDB_DB_HOST", &cfg.Database.Host) },
		func() error { return applyInt(lookup, "ASKDB_DB_PORT", &cfg.Database.Port) },
		func() error { return applyString(lookup, "ASKDB_DB_SCHEMA", &cfg.Database.Schema) },
		func() error { return applyString(lookup, "ASKDB_DB_SSLMODE", &cfg.Database.SSLMode) },
		func() error { return applyDuration(lookup, "ASKDB_DB_QUERY_TIMEOUT", &cfg.Database.QueryTimeout) },
		func() error { return applyString(lookup, "ASKDB_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "ASKDB_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyRawString(lookup, "ASKDB_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "ASKDB_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyInt(lookup, "ASKDB_AI_MAX_TOKENS", &cfg.AI.MaxTokens) },
		func() error { return applyDuration(lookup, "ASKDB_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyBool(lookup, "ASKDB_ARCHIVE_ENABLED", &cfg.Archive.Enabled) },
		func() error { return applyString(lookup, "ASKDB_ARCHIVE_PREFIX", &cfg.Archive.Prefix) },
		func() error { return applyString(lookup, "ASKDB_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "ASKDB_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "ASKDB_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "ASKDB_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "ASKDB_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "ASKDB_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "ASKDB_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "ASKDB_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "ASKDB_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "ASKDB_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if err := validateAIConfig(cfg.AI); err != nil {
		return Config{}, err
	}
	if err := validateDatabaseConfig(cfg.Database); err != nil {
		return Config{}, err
	}
	if cfg.Archive.Enabled && cfg.ObjectStore.Bucket == "" {
		return Config{}, fmt.Errorf("archive requires ASKDB_OBJECTSTORE_BUCKET")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "askdb-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  "postgres",
			Name:    "postgres",
			User:    "postgres",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		AI: AIConfig{
			Provider:  "gemini",
			Model:     "gemini-2.5-flash",
			MaxTokens: 1024,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Prefix:  "sessions",
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "askdb",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Database.SSLMode = "require"
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func validateAIConfig(cfg AIConfig) error {
	switch cfg.Provider {
	case "gemini", "openai", "anthropic":
	default:
		return fmt.Errorf("invalid ASKDB_AI_PROVIDER: %q", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return ErrMissingAPIKey
	}
	if strings.TrimSpace(cfg.APIKey) == "" || strings.IndexFunc(cfg.APIKey, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return ErrInvalidAPIKey
	}
	if cfg.MaxTokens <= 0 {
		return fmt.Errorf("ASKDB_AI_MAX_TOKENS must be > 0")
	}
	return nil
}

func validateDatabaseConfig(cfg DatabaseConfig) error {
	switch cfg.Driver {
	case "postgres":
		if cfg.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if cfg.Port <= 0 || cfg.Port > 65535 {
			return fmt.Errorf("invalid ASKDB_DB_PORT: %d", cfg.Port)
		}
		if cfg.Name == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite":
		// Each stage opens its own connection, and every new :memory: connection
		// starts empty, so SQLite needs a file.
		if strings.TrimSpace(cfg.Name) == "" {
			return fmt.Errorf("ASKDB_DB_NAME is required for sqlite")
		}
	case "duckdb":
	default:
		return fmt.Errorf("invalid ASKDB_DB_DRIVER: %q", cfg.Driver)
	}
	return nil
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyRawString keeps the value as-is so credential validation sees stray whitespace.
func applyRawString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = raw
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < 0 {
		return fmt.Errorf("invalid %s: must not be negative", key)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
