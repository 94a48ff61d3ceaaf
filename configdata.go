// Package steamidle provides embedded assets for the steamidle daemon.
//
// The root package exists solely to embed config.default.toml via
// [DefaultConfigTOML], which seeds the data directory on first run.
package steamidle

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
