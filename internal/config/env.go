package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ///////////////////////////////////////////////
// Environment Overrides
// ///////////////////////////////////////////////

// Environment variable names read by [Config.ApplyEnv].
const (
	EnvBotToken    = "BOT_TOKEN"
	EnvSteamAPIKey = "STEAM_API_KEY"
	EnvPort        = "PORT"
	EnvSelfURL     = "SELF_URL"
	EnvLogLevel    = "LOG_LEVEL"
)

// LookupFunc resolves an environment variable. [os.LookupEnv] satisfies it.
type LookupFunc func(key string) (string, bool)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides config values from the environment. Empty values are
// ignored.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvBotToken); ok {
		c.Telegram.Token = v
	}
	if v, ok := get(EnvSteamAPIKey); ok {
		c.Steam.APIKey = v
	}
	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		c.Heartbeat.Port = port
	}
	if v, ok := get(EnvSelfURL); ok {
		c.Heartbeat.SelfURL = v
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

// Environ is the process environment as a [LookupFunc].
var Environ LookupFunc = os.LookupEnv
