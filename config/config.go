// Package config loads the agentloop CLI configuration from a YAML file,
// an optional .env file and the process environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/tracing"
)

// Supported providers and checkpoint stores.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"

	StoreMemory = "memory"
	StoreFile   = "file"
	StoreMongo  = "mongo"
)

// Config is the top-level structure of agentloop.yaml.
type Config struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	Instructions string `yaml:"instructions"`

	Log     LogConfig      `yaml:"log"`
	Engine  EngineConfig   `yaml:"engine"`
	Store   StoreConfig    `yaml:"store"`
	Tools   ToolsConfig    `yaml:"tools"`
	Tracing tracing.Config `yaml:"tracing"`

	// Secrets are only read from the environment.
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

// LogConfig selects level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// EngineConfig mirrors the tunables of engine.Options.
type EngineConfig struct {
	MaxModelCalls      int           `yaml:"max_model_calls"`
	MaxParallelTools   int           `yaml:"max_parallel_tools"`
	ToolTimeout        time.Duration `yaml:"tool_timeout"`
	MaxHistoryMessages int           `yaml:"max_history_messages"`

	// Approve lists tools whose calls pause for approval; "*" gates all tools.
	Approve []string `yaml:"approve"`

	// MixedTurn is "skip" or "execute".
	MixedTurn string `yaml:"mixed_turn"`
}

// StoreConfig selects the checkpoint backend.
type StoreConfig struct {
	Type       string        `yaml:"type"`
	Dir        string        `yaml:"dir"`
	MongoURI   string        `yaml:"mongo_uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	TTL        time.Duration `yaml:"ttl"`
}

// ToolsConfig enables the built-in tools.
type ToolsConfig struct {
	Clock          bool   `yaml:"clock"`
	Timezone       string `yaml:"timezone"`
	Search         bool   `yaml:"search"`
	SearchEndpoint string `yaml:"search_endpoint"`
	SearchAPIKey   string `yaml:"-"`
}

// Default returns a configuration that runs entirely in-process.
func Default() Config {
	return Config{
		Provider: ProviderOpenAI,
		Log:      LogConfig{Level: "info", Format: "text"},
		Engine: EngineConfig{
			MaxModelCalls: 10,
			ToolTimeout:   30 * time.Second,
			MixedTurn:     "skip",
		},
		Store: StoreConfig{
			Type:     StoreFile,
			Dir:      ".agentloop/checkpoints",
			Database: "agentloop",
			TTL:      24 * time.Hour,
		},
		Tools: ToolsConfig{Clock: true},
	}
}

// Load reads path (when non-empty) over the defaults, merges variables from
// .env files and applies environment overrides. Missing .env files are
// ignored; a missing config file is an error.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}

		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := loadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

// loadDotEnv populates unset variables from the given files, or from .env
// in the working directory when none are given.
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	setString(lookup, &c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(lookup, &c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(lookup, &c.GeminiAPIKey, "GEMINI_API_KEY")
	setString(lookup, &c.Tools.SearchAPIKey, "TAVILY_API_KEY")
	setString(lookup, &c.Store.MongoURI, "AGENTLOOP_MONGO_URI")
	setString(lookup, &c.Provider, "AGENTLOOP_PROVIDER")
	setString(lookup, &c.Model, "AGENTLOOP_MODEL")
	setString(lookup, &c.Store.Type, "AGENTLOOP_STORE")
	setString(lookup, &c.Store.Dir, "AGENTLOOP_STORE_DIR")
	setString(lookup, &c.Log.Level, "AGENTLOOP_LOG_LEVEL")
	setString(lookup, &c.Tracing.Endpoint, "AGENTLOOP_OTLP_ENDPOINT")

	if c.GeminiAPIKey == "" {
		setString(lookup, &c.GeminiAPIKey, "GOOGLE_API_KEY")
	}

	if err := parseEnv(lookup, &c.Engine.MaxModelCalls, "AGENTLOOP_MAX_MODEL_CALLS", strconv.Atoi); err != nil {
		return err
	}

	if err := parseEnv(lookup, &c.Engine.ToolTimeout, "AGENTLOOP_TOOL_TIMEOUT", time.ParseDuration); err != nil {
		return err
	}

	return parseEnv(lookup, &c.Tracing.Enabled, "AGENTLOOP_TRACING", strconv.ParseBool)
}

func setString(lookup lookupFunc, dest *string, key string) {
	if v, ok := lookup(key); ok && v != "" {
		*dest = v
	}
}

func parseEnv[T any](lookup lookupFunc, dest *T, key string, parseFn func(string) (T, error)) error {
	str, ok := lookup(key)
	if !ok || str == "" {
		return nil
	}

	v, err := parseFn(str)
	if err != nil {
		return fmt.Errorf("failed to parse environment variable %s value %q as %T: %w", key, str, *dest, err)
	}

	*dest = v

	return nil
}

// APIKey returns the key of the configured provider.
func (c Config) APIKey() string {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	default:
		return ""
	}
}

// LogLevel parses Log.Level.
func (c Config) LogLevel() (logging.LogLevel, error) {
	return logging.ParseLevel(c.Log.Level)
}

// Validate checks that the selected provider, store and tools are usable.
func (c Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		if c.APIKey() == "" {
			errs = append(errs, fmt.Errorf("missing API key for provider %q", c.Provider))
		}
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}

	switch c.Store.Type {
	case StoreMemory:
	case StoreFile:
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir is required for the file store"))
		}
	case StoreMongo:
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("missing required environment variable: AGENTLOOP_MONGO_URI"))
		}

		if c.Store.Database == "" {
			errs = append(errs, errors.New("store.database is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store type %q", c.Store.Type))
	}

	switch c.Engine.MixedTurn {
	case "", "skip", "execute":
	default:
		errs = append(errs, fmt.Errorf("unknown engine.mixed_turn %q", c.Engine.MixedTurn))
	}

	if c.Tools.Search && c.Tools.SearchAPIKey == "" {
		errs = append(errs, errors.New("missing required environment variable: TAVILY_API_KEY"))
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
