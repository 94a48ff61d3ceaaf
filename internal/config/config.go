// Package config provides configuration loading and defaults for the steamidle
// daemon.
//
// Configuration is loaded from a TOML file in the data directory, then
// overridden from the environment (optionally seeded from a .env file). The
// package covers the Telegram gateway, Steam timings, the app name catalog,
// the heartbeat server, the chat access policy and logging.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/steamidle/internal/atomicfile"
	"tools.zach/dev/steamidle/internal/paths"
)

// CurrentVersion is the config schema version written by this build.
const CurrentVersion = 1

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version.
	Version int `toml:"version"`
	// Telegram holds Bot API settings.
	Telegram TelegramConfig `toml:"telegram"`
	// Steam holds account connection settings.
	Steam SteamConfig `toml:"steam"`
	// Catalog holds app name lookup settings.
	Catalog CatalogConfig `toml:"catalog"`
	// Heartbeat holds the keep-alive HTTP server settings.
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	// Access restricts which chats may use the bot.
	Access AccessConfig `toml:"access"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// TelegramConfig holds Bot API settings.
type TelegramConfig struct {
	// Token is the bot token. Usually supplied through BOT_TOKEN instead.
	Token string `toml:"token"`
	// APIURL is the Bot API base URL.
	APIURL string `toml:"api_url"`
	// PollTimeoutSeconds is the getUpdates long-poll window.
	PollTimeoutSeconds int `toml:"poll_timeout_seconds"`
}

// SteamConfig holds account connection settings.
type SteamConfig struct {
	// APIKey is the Web API key used for level lookups. Optional.
	APIKey string `toml:"api_key"`
	// LoginTimeoutSeconds bounds the wait for a log on result.
	LoginTimeoutSeconds int `toml:"login_timeout_seconds"`
	// GuardTimeoutSeconds bounds the wait for a Steam Guard code.
	GuardTimeoutSeconds int `toml:"guard_timeout_seconds"`
	// WebReassertMinutes is the spacing between web session refreshes.
	WebReassertMinutes int `toml:"web_reassert_minutes"`
}

// CatalogConfig holds app name lookup settings.
type CatalogConfig struct {
	// Backend selects the cache store: "json" or "sqlite".
	Backend string `toml:"backend"`
	// AppListURL is the bulk app list endpoint.
	AppListURL string `toml:"app_list_url"`
	// AppDetailsURL is the single-app store endpoint; must contain %d.
	AppDetailsURL string `toml:"app_details_url"`
}

// HeartbeatConfig holds the keep-alive HTTP server settings.
type HeartbeatConfig struct {
	// Enabled starts the HTTP server.
	Enabled bool `toml:"enabled"`
	// Port is the listen port.
	Port int `toml:"port"`
	// SelfURL, when set, is pinged periodically so hosted instances stay awake.
	SelfURL string `toml:"self_url"`
	// PingIntervalSeconds is the self-ping period.
	PingIntervalSeconds int `toml:"ping_interval_seconds"`
}

// AccessConfig restricts which chats may use the bot. Both lists empty means
// everyone is allowed.
type AccessConfig struct {
	// AllowedChats lists chat ids.
	AllowedChats []int64 `toml:"allowed_chats"`
	// AllowedUsernames lists glob patterns matched against the sender's
	// username, without the leading @.
	AllowedUsernames []string `toml:"allowed_usernames"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// Console also writes log lines to stderr.
	Console bool `toml:"console"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Telegram: TelegramConfig{
			APIURL:             "https://api.telegram.org",
			PollTimeoutSeconds: 30,
		},
		Steam: SteamConfig{
			LoginTimeoutSeconds: 60,
			GuardTimeoutSeconds: 30,
			WebReassertMinutes:  30,
		},
		Catalog: CatalogConfig{
			Backend:       "json",
			AppListURL:    "https://api.steampowered.com/ISteamApps/GetAppList/v2/",
			AppDetailsURL: "https://store.steampowered.com/api/appdetails?appids=%d",
		},
		Heartbeat: HeartbeatConfig{
			Enabled:             true,
			Port:                3000,
			PingIntervalSeconds: 30,
		},
		Access: AccessConfig{
			AllowedChats:     []int64{},
			AllowedUsernames: []string{},
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
			Console:   true,
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// Durations
// ///////////////////////////////////////////////

// LoginTimeout returns the log on wait as a duration.
func (s SteamConfig) LoginTimeout() time.Duration {
	return time.Duration(s.LoginTimeoutSeconds) * time.Second
}

// GuardTimeout returns the Steam Guard wait as a duration.
func (s SteamConfig) GuardTimeout() time.Duration {
	return time.Duration(s.GuardTimeoutSeconds) * time.Second
}

// ReassertInterval returns the web refresh spacing as a duration.
func (s SteamConfig) ReassertInterval() time.Duration {
	return time.Duration(s.WebReassertMinutes) * time.Minute
}

// PollTimeout returns the long-poll window as a duration.
func (t TelegramConfig) PollTimeout() time.Duration {
	return time.Duration(t.PollTimeoutSeconds) * time.Second
}

// PingInterval returns the self-ping period as a duration.
func (h HeartbeatConfig) PingInterval() time.Duration {
	return time.Duration(h.PingIntervalSeconds) * time.Second
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads dataDir/config.toml, applies environment overrides from lookup
// and validates the result. A missing file yields the defaults. A nil lookup
// skips the environment.
func Load(dataDir string, lookup LookupFunc) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if version := PeekVersion(data); version > CurrentVersion {
			return nil, fmt.Errorf("config version %d is newer than supported version %d", version, CurrentVersion)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		cfg.Version = CurrentVersion
	}

	if lookup != nil {
		if err := cfg.ApplyEnv(lookup); err != nil {
			return nil, fmt.Errorf("apply environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	if c.Telegram.PollTimeoutSeconds <= 0 {
		return fmt.Errorf("telegram.poll_timeout_seconds must be > 0, got %d", c.Telegram.PollTimeoutSeconds)
	}

	if c.Steam.LoginTimeoutSeconds <= 0 {
		return fmt.Errorf("steam.login_timeout_seconds must be > 0, got %d", c.Steam.LoginTimeoutSeconds)
	}

	if c.Steam.GuardTimeoutSeconds <= 0 {
		return fmt.Errorf("steam.guard_timeout_seconds must be > 0, got %d", c.Steam.GuardTimeoutSeconds)
	}

	if c.Steam.WebReassertMinutes <= 0 {
		return fmt.Errorf("steam.web_reassert_minutes must be > 0, got %d", c.Steam.WebReassertMinutes)
	}

	switch c.Catalog.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("invalid catalog.backend %q: must be json or sqlite", c.Catalog.Backend)
	}

	if strings.Count(c.Catalog.AppDetailsURL, "%d") != 1 {
		return fmt.Errorf("invalid catalog.app_details_url %q: must contain exactly one %%d", c.Catalog.AppDetailsURL)
	}

	if c.Heartbeat.Enabled && (c.Heartbeat.Port <= 0 || c.Heartbeat.Port > 65535) {
		return fmt.Errorf("heartbeat.port must be 1-65535, got %d", c.Heartbeat.Port)
	}

	if c.Heartbeat.SelfURL != "" && c.Heartbeat.PingIntervalSeconds <= 0 {
		return fmt.Errorf("heartbeat.ping_interval_seconds must be > 0, got %d", c.Heartbeat.PingIntervalSeconds)
	}

	for _, pattern := range c.Access.AllowedUsernames {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid access.allowed_usernames pattern %q", pattern)
		}
	}

	return nil
}

// ///////////////////////////////////////////////
// Access Helpers
// ///////////////////////////////////////////////

// Open reports whether the policy allows everyone.
func (a AccessConfig) Open() bool {
	return len(a.AllowedChats) == 0 && len(a.AllowedUsernames) == 0
}

// Allows reports whether a message from chatID sent by username may be
// handled. Username patterns match case-insensitively.
func (a *AccessConfig) Allows(chatID int64, username string) bool {
	if a == nil || a.Open() {
		return true
	}
	for _, id := range a.AllowedChats {
		if id == chatID {
			return true
		}
	}
	if username == "" {
		return false
	}
	name := strings.ToLower(strings.TrimPrefix(username, "@"))
	for _, pattern := range a.AllowedUsernames {
		matched, err := doublestar.Match(strings.ToLower(strings.TrimPrefix(pattern, "@")), name)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
