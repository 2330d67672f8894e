package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Engine        EngineConfig        `yaml:"engine"`
	Search        SearchConfig        `yaml:"search"`
	Fetch         FetchConfig         `yaml:"fetch"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LLMConfig contains chat-completion endpoint configuration. The
// controller and reader may use different models on the same endpoint.
type LLMConfig struct {
	BaseURL         string  `yaml:"base_url"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	ControllerModel string  `yaml:"controller_model"`
	ReaderModel     string  `yaml:"reader_model"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens,omitempty"`
	Timeout         string  `yaml:"timeout"`
}

// EngineConfig contains round-loop configuration
type EngineConfig struct {
	MaxRounds        int    `yaml:"max_rounds"`
	DecisionTimeout  string `yaml:"decision_timeout"`
	TransportRetries int    `yaml:"transport_retries"`
}

// SearchConfig contains search collaborator configuration
type SearchConfig struct {
	BaseURL       string `yaml:"base_url"`
	Country       string `yaml:"country"`
	PerQueryLimit int    `yaml:"per_query_limit"`
	QueryTimeout  string `yaml:"query_timeout"`
	MaxRetries    int    `yaml:"max_retries"`
}

// FetchConfig contains page fetching and reading configuration
type FetchConfig struct {
	Concurrency     int    `yaml:"concurrency"`
	ExcerptMaxChars int    `yaml:"excerpt_max_chars"`
	ReadTimeout     string `yaml:"read_timeout"`
	FetchTimeout    string `yaml:"fetch_timeout"`
	MaxRetries      int    `yaml:"max_retries"`
}

// AuditConfig contains audit log configuration
type AuditConfig struct {
	Path       string `yaml:"path"`
	QueueSize  int    `yaml:"queue_size"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// ObservabilityConfig contains observability configuration
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	config.overrideFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadOrDefault loads configuration from a file or returns default config
func LoadOrDefault(path string) *Config {
	config, err := Load(path)
	if err != nil {
		config = Default()
	}
	return config
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:         "http://localhost:8000/v1",
			APIKeyEnv:       "DEEPSEEKER_API_KEY",
			ControllerModel: "deepseek-chat",
			ReaderModel:     "deepseek-chat",
			Temperature:     0.2,
			Timeout:         "2m",
		},
		Engine: EngineConfig{
			MaxRounds:        6,
			DecisionTimeout:  "3m",
			TransportRetries: 2,
		},
		Search: SearchConfig{
			BaseURL:       "http://localhost:8080",
			Country:       "en-US",
			PerQueryLimit: 8,
			QueryTimeout:  "30s",
			MaxRetries:    2,
		},
		Fetch: FetchConfig{
			Concurrency:     4,
			ExcerptMaxChars: 6000,
			ReadTimeout:     "60s",
			FetchTimeout:    "20s",
			MaxRetries:      1,
		},
		Audit: AuditConfig{
			Path:       "./audit/session.jsonl",
			QueueSize:  256,
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      true,
				Endpoint:     "localhost:4318",
				SamplingRate: 1.0,
				Insecure:     true,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Port:    2224,
			},
			Logging: LoggingConfig{
				Level: "info",
			},
		},
	}
}

// applyDefaults applies default values to missing fields
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaults.LLM.BaseURL
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = defaults.LLM.APIKeyEnv
	}
	if c.LLM.ControllerModel == "" {
		c.LLM.ControllerModel = defaults.LLM.ControllerModel
	}
	if c.LLM.ReaderModel == "" {
		c.LLM.ReaderModel = c.LLM.ControllerModel
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = defaults.LLM.Temperature
	}
	if c.LLM.Timeout == "" {
		c.LLM.Timeout = defaults.LLM.Timeout
	}

	if c.Engine.MaxRounds == 0 {
		c.Engine.MaxRounds = defaults.Engine.MaxRounds
	}
	if c.Engine.DecisionTimeout == "" {
		c.Engine.DecisionTimeout = defaults.Engine.DecisionTimeout
	}
	if c.Engine.TransportRetries == 0 {
		c.Engine.TransportRetries = defaults.Engine.TransportRetries
	}

	if c.Search.BaseURL == "" {
		c.Search.BaseURL = defaults.Search.BaseURL
	}
	if c.Search.Country == "" {
		c.Search.Country = defaults.Search.Country
	}
	if c.Search.PerQueryLimit == 0 {
		c.Search.PerQueryLimit = defaults.Search.PerQueryLimit
	}
	if c.Search.QueryTimeout == "" {
		c.Search.QueryTimeout = defaults.Search.QueryTimeout
	}

	if c.Fetch.Concurrency == 0 {
		c.Fetch.Concurrency = defaults.Fetch.Concurrency
	}
	if c.Fetch.ExcerptMaxChars == 0 {
		c.Fetch.ExcerptMaxChars = defaults.Fetch.ExcerptMaxChars
	}
	if c.Fetch.ReadTimeout == "" {
		c.Fetch.ReadTimeout = defaults.Fetch.ReadTimeout
	}
	if c.Fetch.FetchTimeout == "" {
		c.Fetch.FetchTimeout = defaults.Fetch.FetchTimeout
	}

	if c.Audit.Path == "" {
		c.Audit.Path = defaults.Audit.Path
	}
	if c.Audit.QueueSize == 0 {
		c.Audit.QueueSize = defaults.Audit.QueueSize
	}
	if c.Audit.MaxSizeMB == 0 {
		c.Audit.MaxSizeMB = defaults.Audit.MaxSizeMB
	}

	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = defaults.Observability.Logging.Level
	}
	if c.Observability.Metrics.Port == 0 {
		c.Observability.Metrics.Port = defaults.Observability.Metrics.Port
	}
}

// overrideFromEnv overrides configuration from environment variables
func (c *Config) overrideFromEnv() {
	if url := os.Getenv("DEEPSEEKER_LLM_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if model := os.Getenv("DEEPSEEKER_CONTROLLER_MODEL"); model != "" {
		c.LLM.ControllerModel = model
	}
	if model := os.Getenv("DEEPSEEKER_READER_MODEL"); model != "" {
		c.LLM.ReaderModel = model
	}
	if url := os.Getenv("DEEPSEEKER_SEARCH_URL"); url != "" {
		c.Search.BaseURL = url
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Observability.Tracing.Endpoint = endpoint
	}
	if level := os.Getenv("DEEPSEEKER_LOG_LEVEL"); level != "" {
		c.Observability.Logging.Level = level
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm base_url is required")
	}
	if c.LLM.ControllerModel == "" {
		return fmt.Errorf("llm controller_model is required")
	}
	if c.Engine.MaxRounds < 1 {
		return fmt.Errorf("engine max_rounds must be at least 1")
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch concurrency must be at least 1")
	}
	if c.Search.BaseURL == "" {
		return fmt.Errorf("search base_url is required")
	}

	for name, value := range map[string]string{
		"llm timeout":             c.LLM.Timeout,
		"engine decision_timeout": c.Engine.DecisionTimeout,
		"search query_timeout":    c.Search.QueryTimeout,
		"fetch read_timeout":      c.Fetch.ReadTimeout,
		"fetch fetch_timeout":     c.Fetch.FetchTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// APIKey resolves the chat endpoint credential from the environment.
func (c *Config) APIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}

// GetDuration parses a duration string from config
func (c *Config) GetDuration(value string) (time.Duration, error) {
	return time.ParseDuration(value)
}
