// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile       = "steamidle.pid"
	ConfigFile    = "config.toml"
	EnvFile       = ".env"
	LogFile       = "steamidle.log"
	AppCacheFile  = "app_cache.json"
	AppCacheDB    = "app_cache.db"
	DataDirRel    = ".steamidle" // relative to $HOME
	configBackups = ".bak"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// ConfigBackup returns the path the previous config is moved to on reset.
func (d DataDir) ConfigBackup() string { return d.Config() + configBackups }

// Env returns the full path to the optional .env file.
func (d DataDir) Env() string { return filepath.Join(d.Root, EnvFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// AppCache returns the full path to the JSON application name cache.
func (d DataDir) AppCache() string { return filepath.Join(d.Root, AppCacheFile) }

// AppCacheDB returns the full path to the SQLite application name cache.
func (d DataDir) AppCacheDB() string { return filepath.Join(d.Root, AppCacheDB) }
