// Package secrets resolves configuration values from the external secret stores
// askdb supports: the process environment, a dotenv file, a YAML secrets file
// and the OS keyring. The first source holding a key wins.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/askdb/askdb/internal/config"
)

// ServiceName is the keyring namespace askdb secrets live under.
const ServiceName = "askdb"

// Source is a single secret store.
type Source interface {
	Name() string
	Lookup(key string) (string, bool)
}

// Chain queries sources in order.
type Chain struct {
	sources []Source
}

func NewChain(sources ...Source) *Chain {
	filtered := make([]Source, 0, len(sources))
	for _, source := range sources {
		if source != nil {
			filtered = append(filtered, source)
		}
	}
	return &Chain{sources: filtered}
}

func (c *Chain) Lookup(key string) (string, bool) {
	for _, source := range c.sources {
		if value, ok := source.Lookup(key); ok {
			return value, true
		}
	}
	return "", false
}

// LookupFunc adapts the chain to config.Load.
func (c *Chain) LookupFunc() config.LookupFunc {
	return c.Lookup
}

// Sources lists the names of the configured sources, in priority order.
func (c *Chain) Sources() []string {
	names := make([]string, 0, len(c.sources))
	for _, source := range c.sources {
		names = append(names, source.Name())
	}
	return names
}

type envSource struct {
	lookup func(string) (string, bool)
}

// Env reads from the process environment.
func Env() Source {
	return envSource{lookup: os.LookupEnv}
}

func (s envSource) Name() string { return "env" }

func (s envSource) Lookup(key string) (string, bool) {
	return s.lookup(key)
}

// MapSource is a static source, mostly useful in tests.
type MapSource struct {
	Label  string
	Values map[string]string
}

func (s MapSource) Name() string {
	if s.Label == "" {
		return "map"
	}
	return s.Label
}

func (s MapSource) Lookup(key string) (string, bool) {
	value, ok := s.Values[key]
	return value, ok
}

// DotEnv reads a dotenv file without mutating the process environment.
// A missing file yields an empty source.
func DotEnv(path string) (Source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return MapSource{Label: "dotenv", Values: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("read dotenv file %q: %w", path, err)
	}
	return MapSource{Label: "dotenv", Values: values}, nil
}

// legacyKeys maps the secret names used by the hosted deployment onto askdb keys.
var legacyKeys = map[string]string{
	"GEMINI_API_KEY":       "ASKDB_AI_API_KEY",
	"OPENAI_API_KEY":       "ASKDB_AI_API_KEY",
	"ANTHROPIC_API_KEY":    "ASKDB_AI_API_KEY",
	"POSTGRES_DB_DBNAME":   "ASKDB_DB_NAME",
	"POSTGRES_DB_USER":     "ASKDB_DB_USER",
	"POSTGRES_DB_PASSWORD": "ASKDB_DB_PASSWORD",
	"POSTGRES_DB_HOST":     "ASKDB_DB_HOST",
	"POSTGRES_DB_PORT":     "ASKDB_DB_PORT",
}

// YAMLFile reads a nested YAML secrets document. Nested keys are flattened with
// underscores and upper-cased, so `db: {password: x}` answers ASKDB_DB_PASSWORD
// and `POSTGRES_DB: {host: y}` answers ASKDB_DB_HOST.
func YAMLFile(path string) (Source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return MapSource{Label: "yaml", Values: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("read secrets file %q: %w", path, err)
	}
	return ParseYAML(raw)
}

func ParseYAML(raw []byte) (Source, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode secrets yaml: %w", err)
	}
	flat := map[string]string{}
	flatten("", doc, flat)

	values := make(map[string]string, len(flat))
	for key, value := range flat {
		switch {
		case strings.HasPrefix(key, "ASKDB_"):
			values[key] = value
		case legacyKeys[key] != "":
			if _, exists := values[legacyKeys[key]]; !exists {
				values[legacyKeys[key]] = value
			}
		default:
			values["ASKDB_"+key] = value
		}
	}
	return MapSource{Label: "yaml", Values: values}, nil
}

func flatten(prefix string, node any, out map[string]string) {
	switch typed := node.(type) {
	case map[string]any:
		for key, child := range typed {
			name := strings.ToUpper(strings.TrimSpace(key))
			if prefix != "" {
				name = prefix + "_" + name
			}
			flatten(name, child, out)
		}
	case nil:
	default:
		if prefix != "" {
			out[prefix] = fmt.Sprint(typed)
		}
	}
}

// Keyring exposes the subset of keyring.Keyring askdb needs.
type Keyring interface {
	Get(key string) (keyring.Item, error)
	Set(item keyring.Item) error
}

type keyringSource struct {
	ring Keyring
}

// OpenKeyring opens the OS credential store using native backends only.
func OpenKeyring() (Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: ServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
		},
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

func FromKeyring(ring Keyring) Source {
	if ring == nil {
		return nil
	}
	return keyringSource{ring: ring}
}

func (s keyringSource) Name() string { return "keyring" }

func (s keyringSource) Lookup(key string) (string, bool) {
	item, err := s.ring.Get(key)
	if err != nil {
		return "", false
	}
	return string(item.Data), true
}

// Store writes a secret into the keyring under key.
func Store(ring Keyring, key, value string) error {
	if ring == nil {
		return fmt.Errorf("keyring is not available")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("secret key is required")
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key}); err != nil {
		return fmt.Errorf("store secret %q: %w", key, err)
	}
	return nil
}

// Options selects which secret stores DefaultChain consults.
type Options struct {
	DotEnvPath  string
	YAMLPath    string
	UseKeyring  bool
	OpenKeyring func() (Keyring, error)
}

// OptionsFromEnv reads the bootstrap settings that locate the secret stores.
func OptionsFromEnv(lookup config.LookupFunc) Options {
	opts := Options{DotEnvPath: ".env", OpenKeyring: OpenKeyring}
	if value, ok := lookup("ASKDB_ENV_FILE"); ok {
		opts.DotEnvPath = strings.TrimSpace(value)
	}
	if value, ok := lookup("ASKDB_SECRETS_FILE"); ok {
		opts.YAMLPath = strings.TrimSpace(value)
	}
	if value, ok := lookup("ASKDB_KEYRING"); ok {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "on":
			opts.UseKeyring = true
		}
	}
	return opts
}

// DefaultChain builds env > dotenv > yaml > keyring. An unavailable keyring is
// skipped; unreadable files are reported.
func DefaultChain(opts Options) (*Chain, error) {
	sources := []Source{Env()}

	dotenv, err := DotEnv(opts.DotEnvPath)
	if err != nil {
		return nil, err
	}
	sources = append(sources, dotenv)

	yamlSource, err := YAMLFile(opts.YAMLPath)
	if err != nil {
		return nil, err
	}
	sources = append(sources, yamlSource)

	if opts.UseKeyring && opts.OpenKeyring != nil {
		if ring, err := opts.OpenKeyring(); err == nil {
			sources = append(sources, FromKeyring(ring))
		}
	}
	return NewChain(sources...), nil
}
