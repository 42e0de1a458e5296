// ABOUTME: Configuration loading and parsing for the loop-support client
// ABOUTME: Supports YAML or TOML files, ${VAR} expansion, .env files, env overrides and durations

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by the loader.
const (
	EnvConfigPath      = "LOOP_SUPPORT_CONFIG"
	EnvBaseURL         = "SUPPORT_API_BASE_URL"
	EnvDefaultCategory = "SUPPORT_DEFAULT_CATEGORY"
)

// Defaults applied when a value is not configured.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultCategory     = "General"
	DefaultDriver       = "file"
)

// Config represents the complete loop-support configuration
type Config struct {
	API     APIConfig     `yaml:"api" toml:"api"`
	Support SupportConfig `yaml:"support" toml:"support"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Client  ClientConfig  `yaml:"client" toml:"client"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// APIConfig holds the support backend connection settings
type APIConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// SupportConfig holds conversation behaviour settings
type SupportConfig struct {
	DefaultCategory string        `yaml:"default_category" toml:"default_category"`
	PollInterval    time.Duration `yaml:"-" toml:"-"`

	PollIntervalRaw string `yaml:"poll_interval" toml:"poll_interval"`
}

// StorageConfig selects where the session is persisted.
// Driver is one of "file", "sqlite" or "memory".
type StorageConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// ClientConfig is the metadata sent when a session is created
type ClientConfig struct {
	Locale    string `yaml:"locale" toml:"locale"`
	UserAgent string `yaml:"user_agent" toml:"user_agent"`
	Referer   string `yaml:"referer" toml:"referer"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// ErrMissingBaseURL is returned when no API base URL is configured anywhere.
var ErrMissingBaseURL = errors.New("api.base_url is required (or set " + EnvBaseURL + ")")

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then
// SUPPORT_* environment overrides and defaults are applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv builds a Config from environment variables and defaults alone.
func LoadEnv() (*Config, error) {
	var cfg Config
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve loads .env files and then the config file chosen by precedence:
// explicit path, LOOP_SUPPORT_CONFIG, then DefaultPath. A missing default
// file is fine (environment only); a missing explicit file is an error.
func Resolve(explicit string) (*Config, error) {
	LoadDotEnv()

	path := explicit
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		return Load(path)
	}

	path = DefaultPath()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return LoadEnv()
		}
		return nil, fmt.Errorf("checking config file: %w", err)
	}
	return Load(path)
}

// LoadDotEnv loads .env from the working directory and its parent. Existing
// environment variables win; missing files are ignored.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("..", ".env"))
}

// DefaultPath returns $XDG_CONFIG_HOME/loop-support/config.yaml.
func DefaultPath() string {
	return filepath.Join(configHome(), "loop-support", "config.yaml")
}

// DefaultDataDir returns $XDG_DATA_HOME/loop-support.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "loop-support")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "loop-support")
	}
	return filepath.Join(home, ".local", "share", "loop-support")
}

func configHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(home, ".config")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) finish() error {
	c.applyEnv()
	c.applyDefaults()

	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvDefaultCategory); v != "" {
		c.Support.DefaultCategory = v
	}
}

func (c *Config) applyDefaults() {
	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if c.Support.DefaultCategory == "" {
		c.Support.DefaultCategory = DefaultCategory
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
	c.Storage.Path = expandHome(c.Storage.Path)
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case "file":
			c.Storage.Path = filepath.Join(DefaultDataDir(), "session.json")
		case "sqlite":
			c.Storage.Path = filepath.Join(DefaultDataDir(), "support.db")
		}
	}
	if c.Client.Locale == "" {
		c.Client.Locale = localeFromEnv()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// localeFromEnv turns LANG=en_US.UTF-8 into "en-US".
func localeFromEnv() string {
	lang := os.Getenv("LANG")
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(lang, "_", "-")
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("api.base_url must include a host")
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Support.PollInterval <= 0 {
		return fmt.Errorf("support.poll_interval must be positive")
	}

	switch c.Storage.Driver {
	case "memory":
	case "file", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver must be file, sqlite or memory, got %q", c.Storage.Driver)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	cfg.API.Timeout = DefaultTimeout
	if cfg.API.TimeoutRaw != "" {
		cfg.API.Timeout, err = time.ParseDuration(cfg.API.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing api.timeout %q: %w", cfg.API.TimeoutRaw, err)
		}
	}

	cfg.Support.PollInterval = DefaultPollInterval
	if cfg.Support.PollIntervalRaw != "" {
		cfg.Support.PollInterval, err = time.ParseDuration(cfg.Support.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing support.poll_interval %q: %w", cfg.Support.PollIntervalRaw, err)
		}
	}

	return nil
}
