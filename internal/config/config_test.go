// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, overrides, defaults and validation

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv isolates a test from the developer's environment.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvDefaultCategory, "")
	t.Setenv(EnvConfigPath, "")
	t.Setenv("LANG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "config.yaml", `
api:
  base_url: "https://support.example.com/api"
  timeout: "5s"

support:
  default_category: "Billing"
  poll_interval: "2s"

storage:
  driver: "sqlite"
  path: "/tmp/loop-support/support.db"

client:
  locale: "fr-FR"
  user_agent: "widget-test"
  referer: "https://example.com/help"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://support.example.com/api" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("API.Timeout = %v, want 5s", cfg.API.Timeout)
	}
	if cfg.Support.DefaultCategory != "Billing" {
		t.Errorf("Support.DefaultCategory = %q, want Billing", cfg.Support.DefaultCategory)
	}
	if cfg.Support.PollInterval != 2*time.Second {
		t.Errorf("Support.PollInterval = %v, want 2s", cfg.Support.PollInterval)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "/tmp/loop-support/support.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Client.Locale != "fr-FR" || cfg.Client.UserAgent != "widget-test" || cfg.Client.Referer != "https://example.com/help" {
		t.Errorf("Client = %+v", cfg.Client)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "config.toml", `
[api]
base_url = "http://localhost:8000/api"
timeout = "3s"

[support]
poll_interval = "750ms"

[storage]
driver = "memory"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8000/api" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 3*time.Second {
		t.Errorf("API.Timeout = %v", cfg.API.Timeout)
	}
	if cfg.Support.PollInterval != 750*time.Millisecond {
		t.Errorf("Support.PollInterval = %v", cfg.Support.PollInterval)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q", cfg.Storage.Driver)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dataHome := os.Getenv("XDG_DATA_HOME")
	t.Setenv("LANG", "en_GB.UTF-8")

	path := writeConfig(t, "config.yaml", `
api:
  base_url: "http://localhost:8000/api"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Timeout != DefaultTimeout {
		t.Errorf("API.Timeout = %v, want %v", cfg.API.Timeout, DefaultTimeout)
	}
	if cfg.Support.PollInterval != DefaultPollInterval {
		t.Errorf("Support.PollInterval = %v, want %v", cfg.Support.PollInterval, DefaultPollInterval)
	}
	if cfg.Support.DefaultCategory != "General" {
		t.Errorf("Support.DefaultCategory = %q, want General", cfg.Support.DefaultCategory)
	}
	if cfg.Storage.Driver != "file" {
		t.Errorf("Storage.Driver = %q, want file", cfg.Storage.Driver)
	}
	if want := filepath.Join(dataHome, "loop-support", "session.json"); cfg.Storage.Path != want {
		t.Errorf("Storage.Path = %q, want %q", cfg.Storage.Path, want)
	}
	if cfg.Client.Locale != "en-GB" {
		t.Errorf("Client.Locale = %q, want en-GB", cfg.Client.Locale)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_SUPPORT_HOST", "support.internal")

	path := writeConfig(t, "config.yaml", `
api:
  base_url: "https://${TEST_SUPPORT_HOST}/api"
support:
  default_category: "${TEST_UNSET_CATEGORY}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "https://support.internal/api" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	// unset variables expand to empty, so the default applies
	if cfg.Support.DefaultCategory != "General" {
		t.Errorf("Support.DefaultCategory = %q, want General", cfg.Support.DefaultCategory)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBaseURL, "https://override.example.com/api")
	t.Setenv(EnvDefaultCategory, "Sales")

	path := writeConfig(t, "config.yaml", `
api:
  base_url: "https://file.example.com/api"
support:
  default_category: "Billing"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "https://override.example.com/api" {
		t.Errorf("API.BaseURL = %q, want env override", cfg.API.BaseURL)
	}
	if cfg.Support.DefaultCategory != "Sales" {
		t.Errorf("Support.DefaultCategory = %q, want Sales", cfg.Support.DefaultCategory)
	}
}

func TestLoad_StoragePathTilde(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, "config.yaml", `
api:
  base_url: "http://localhost/api"
storage:
  path: "~/support/session.json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(home, "support", "session.json"); cfg.Storage.Path != want {
		t.Errorf("Storage.Path = %q, want %q", cfg.Storage.Path, want)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad timeout",
			content: "api:\n  base_url: \"http://localhost/api\"\n  timeout: \"soon\"\n",
			wantErr: "api.timeout",
		},
		{
			name:    "bad poll interval",
			content: "api:\n  base_url: \"http://localhost/api\"\nsupport:\n  poll_interval: \"fast\"\n",
			wantErr: "support.poll_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "config.yaml", "api: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Fatalf("Load() error = %v, want parse error", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			API:     APIConfig{BaseURL: "https://support.example.com/api", Timeout: time.Second},
			Support: SupportConfig{DefaultCategory: "General", PollInterval: time.Second},
			Storage: StorageConfig{Driver: "file", Path: "/tmp/session.json"},
			Logging: LoggingConfig{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"memory needs no path", func(c *Config) { c.Storage = StorageConfig{Driver: "memory"} }, ""},
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }, "api.base_url is required"},
		{"bad scheme", func(c *Config) { c.API.BaseURL = "ftp://example.com" }, "http or https"},
		{"no host", func(c *Config) { c.API.BaseURL = "http://" }, "must include a host"},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }, "api.timeout"},
		{"zero poll", func(c *Config) { c.Support.PollInterval = 0 }, "support.poll_interval"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"sqlite without path", func(c *Config) { c.Storage = StorageConfig{Driver: "sqlite"} }, "storage.path"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)

	if _, err := LoadEnv(); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("LoadEnv() error = %v, want ErrMissingBaseURL", err)
	}

	t.Setenv(EnvBaseURL, "http://localhost:8000/api")
	cfg, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8000/api" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
}

func TestResolve_Precedence(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	explicit := writeConfig(t, "explicit.yaml", "api:\n  base_url: \"http://explicit/api\"\n")
	fromEnv := writeConfig(t, "env.yaml", "api:\n  base_url: \"http://from-env/api\"\n")

	defaultDir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "loop-support")
	if err := os.MkdirAll(defaultDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(defaultDir, "config.yaml"), []byte("api:\n  base_url: \"http://default/api\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.API.BaseURL != "http://default/api" {
		t.Errorf("default path: BaseURL = %q", cfg.API.BaseURL)
	}

	t.Setenv(EnvConfigPath, fromEnv)
	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.API.BaseURL != "http://from-env/api" {
		t.Errorf("env path: BaseURL = %q", cfg.API.BaseURL)
	}

	cfg, err = Resolve(explicit)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.API.BaseURL != "http://explicit/api" {
		t.Errorf("explicit path: BaseURL = %q", cfg.API.BaseURL)
	}
}

func TestResolve_MissingFiles(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	// no default file: environment alone must carry the base URL
	if _, err := Resolve(""); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("Resolve() error = %v, want ErrMissingBaseURL", err)
	}

	t.Setenv(EnvBaseURL, "http://localhost/api")
	if _, err := Resolve(""); err != nil {
		t.Fatalf("Resolve() with env only error = %v", err)
	}

	if _, err := Resolve(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Resolve() expected error for missing explicit file")
	}
}

func TestResolve_LoadsDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	os.Unsetenv(EnvBaseURL)
	t.Cleanup(func() { os.Unsetenv(EnvBaseURL) })

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvBaseURL+"=http://dotenv/api\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.API.BaseURL != "http://dotenv/api" {
		t.Errorf("API.BaseURL = %q, want value from .env", cfg.API.BaseURL)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_A", "alpha")
	got := expandEnvVars("x=${TEST_A} y=${TEST_UNSET_VAR_XYZ}")
	if got != "x=alpha y=" {
		t.Errorf("expandEnvVars() = %q", got)
	}
}
