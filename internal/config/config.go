package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Generation Generation `yaml:"generation"`
	Providers  Providers  `yaml:"providers"`
	Archive    Archive    `yaml:"archive"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

// Generation configures the narrative language model and its retry policy.
type Generation struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	BaseURL     string        `yaml:"base_url"`
	OllamaURL   string        `yaml:"ollama_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Providers struct {
	// RequestTimeout bounds the whole provider fan-out for one analysis.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	CatalogRefresh time.Duration `yaml:"catalog_refresh"`

	Statistics Endpoint `yaml:"statistics"`
	Climate    Endpoint `yaml:"climate"`
	Market     Endpoint `yaml:"market"`
	Imagery    Imagery  `yaml:"imagery"`
}

type Endpoint struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Imagery struct {
	ImageURL   string `yaml:"image_url"`
	Resolution string `yaml:"resolution"`
}

// Archive configures optional report upload to S3-compatible storage.
type Archive struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	UseSSL       bool   `yaml:"use_ssl"`
	PublicURL    string `yaml:"public_url"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	// RateLimit is requests per second per client on the API; zero disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConfigDir returns the XDG config directory for cropscope.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "cropscope")
}

// DataDir returns the XDG data directory for cropscope.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "cropscope")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/cropscope/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'cropscope init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Generation: Generation{
			Provider:    "anthropic",
			Model:       "claude-3-5-sonnet-20241022",
			APIKeyEnv:   "ANTHROPIC_API_KEY",
			OllamaURL:   "http://localhost:11434",
			MaxTokens:   1000,
			MaxAttempts: 4,
			BaseDelay:   time.Second,
			Timeout:     120 * time.Second,
		},
		Providers: Providers{
			RequestTimeout: 20 * time.Second,
			HTTPTimeout:    10 * time.Second,
			CatalogRefresh: 24 * time.Hour,
			Climate:        Endpoint{APIKeyEnv: "OPENWEATHER_API_KEY"},
			Market:         Endpoint{APIKeyEnv: "TRADING_ECONOMICS_API_KEY"},
		},
		Archive: Archive{
			Bucket:       "cropscope-reports",
			AccessKeyEnv: "ARCHIVE_ACCESS_KEY",
			SecretKeyEnv: "ARCHIVE_SECRET_KEY",
		},
		Server: Server{
			Port:        8000,
			CORSOrigins: []string{"*"},
			RateLimit:   2,
			RateBurst:   5,
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite database path inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "cropscope.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
