// Package config loads the tickit-sync TOML configuration file, applies
// environment overrides, and writes it back for the token commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfigPath names the environment variable that points at the config file.
const EnvConfigPath = "TICKIT_SYNC_CONFIG"

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Config holds the server configuration.
type Config struct {
	App      AppConfig      `toml:"app"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Sync     SyncConfig     `toml:"sync"`
	Tokens   []TokenConfig  `toml:"tokens"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `toml:"environment"`
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Bind         string   `toml:"bind"`
	Port         int      `toml:"port"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	IdleTimeout  Duration `toml:"idle_timeout"`
	// CORSOrigins lists browser origins allowed to call the API; empty allows any.
	CORSOrigins  []string `toml:"cors_origins"`
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Path   string `toml:"path"`
	Driver string `toml:"driver"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // "json" or "pretty"; empty picks by environment
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// SyncConfig tunes the sync endpoint.
type SyncConfig struct {
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
	RateLimitBurst     int `toml:"rate_limit_burst"`
}

// TokenConfig is one device token. TokenHash is an argon2id PHC string,
// or the token itself for files written by older versions.
type TokenConfig struct {
	Name      string `toml:"name"`
	TokenHash string `toml:"token_hash"`
}

// Duration lets TOML files spell timeouts as "15s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		App: AppConfig{Environment: "development"},
		Server: ServerConfig{
			Bind:         "0.0.0.0",
			Port:         3030,
			ReadTimeout:  Duration{15 * time.Second},
			WriteTimeout: Duration{30 * time.Second},
			IdleTimeout:  Duration{60 * time.Second},
		},
		Database: DatabaseConfig{
			Path:   "tickit-sync.sqlite",
			Driver: DriverSQLite,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Sync: SyncConfig{
			RateLimitPerMinute: 120,
			RateLimitBurst:     20,
		},
	}
}

// DefaultPath resolves the config file location:
// $TICKIT_SYNC_CONFIG, ./config.toml, /data/config.toml, then the user config dir.
// The returned path may not exist.
func DefaultPath() (string, error) {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath, nil
	}

	for _, candidate := range []string{"config.toml", "/data/config.toml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine config directory: %w", err)
	}
	return filepath.Join(dir, "tickit-sync", "config.toml"), nil
}

// ResolvePath returns explicit when set, otherwise DefaultPath.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return DefaultPath()
}

// Load reads the config at path (resolved with ResolvePath), applies
// environment overrides, expands paths, and validates the result.
// A missing file yields the defaults. The resolved path is returned so
// callers can watch or rewrite the same file.
func Load(path string) (*Config, string, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return nil, "", err
	}

	cfg, err := LoadFrom(resolved)
	if err != nil {
		return nil, resolved, err
	}

	cfg.applyEnv()

	if err := cfg.expandDatabasePath(resolved); err != nil {
		return nil, resolved, fmt.Errorf("invalid database path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, resolved, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, resolved, nil
}

// LoadFrom decodes the file at path over the defaults. No environment
// overrides are applied; the token commands use this to round-trip the file.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //#nosec G304 -- config path is operator supplied
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

const fileHeader = `# tickit-sync configuration
# Add tokens with: tickit-sync token --name <device-name>

`

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	// Tokens are credentials.
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// AddToken appends a token entry, replacing any entry with the same name.
func (c *Config) AddToken(name, hash string) {
	c.RemoveToken(name)
	c.Tokens = append(c.Tokens, TokenConfig{Name: name, TokenHash: hash})
}

// RemoveToken drops the entry with the given name and reports whether one existed.
func (c *Config) RemoveToken(name string) bool {
	kept := make([]TokenConfig, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Name != name {
			kept = append(kept, t)
		}
	}
	removed := len(kept) != len(c.Tokens)
	c.Tokens = kept
	return removed
}

// Validate checks that all config values are usable.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverBadger:
	default:
		return fmt.Errorf("invalid database driver: %s (must be sqlite or badger)", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	switch c.Log.Format {
	case "", "json", "pretty":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or pretty)", c.Log.Format)
	}

	if c.Sync.RateLimitPerMinute < 0 || c.Sync.RateLimitBurst < 0 {
		return errors.New("sync rate limits cannot be negative")
	}

	seen := make(map[string]bool, len(c.Tokens))
	for i, t := range c.Tokens {
		if t.Name == "" {
			return fmt.Errorf("tokens[%d]: name is required", i)
		}
		if t.TokenHash == "" {
			return fmt.Errorf("token %q: token_hash is required", t.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate token name: %s", t.Name)
		}
		seen[t.Name] = true
	}

	return nil
}

// applyEnv overlays environment variables on values read from the file.
func (c *Config) applyEnv() {
	c.App.Environment = getConfigValue("ENV", c.App.Environment)
	c.Server.Bind = getConfigValue("TICKIT_SYNC_BIND", c.Server.Bind)
	c.Server.Port = getIntConfigValue("TICKIT_SYNC_PORT", c.Server.Port)
	c.Database.Path = getConfigValue("TICKIT_SYNC_DB_PATH", c.Database.Path)
	c.Database.Driver = getConfigValue("TICKIT_SYNC_DB_DRIVER", c.Database.Driver)
	c.Log.Level = getConfigValue("TICKIT_SYNC_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getConfigValue("TICKIT_SYNC_LOG_FORMAT", c.Log.Format)
	c.Log.File = getConfigValue("TICKIT_SYNC_LOG_FILE", c.Log.File)
}

// expandDatabasePath resolves a relative database path against the directory
// of an existing config file, or the working directory when there is none.
func (c *Config) expandDatabasePath(configPath string) error {
	path := c.Database.Path
	if path != "" && !filepath.IsAbs(path) && !strings.HasPrefix(path, "~/") {
		if _, err := os.Stat(configPath); err == nil {
			path = filepath.Join(filepath.Dir(configPath), path)
		}
	}

	expanded, err := expandPath(path, "")
	if err != nil {
		return err
	}
	c.Database.Path = expanded
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the environment value for envKey, or current when unset.
func getConfigValue(envKey, current string) string {
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return current
}

// getIntConfigValue is getConfigValue for integers; unparsable values are ignored.
func getIntConfigValue(envKey string, current int) int {
	strValue := os.Getenv(envKey)
	if strValue == "" {
		return current
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return current
	}
	return result
}
