package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "steam.api_key") to
// their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// Telegram
	"telegram": {
		Comment: "Bot API connection. The token is normally read from BOT_TOKEN.",
	},
	"telegram.token": {
		Comment: "Bot token from @BotFather. BOT_TOKEN overrides this value.",
	},
	"telegram.api_url": {
		Comment: "Bot API base URL. Change only when running a local Bot API server.",
	},
	"telegram.poll_timeout_seconds": {
		Comment: "Long-poll window for getUpdates.",
	},

	// Steam
	"steam.api_key": {
		Comment: "Web API key used for the account level in /status.\nLeave empty to report the level as unknown. STEAM_API_KEY overrides this value.",
	},
	"steam.login_timeout_seconds": {
		Comment: "How long a log on may take before it is abandoned.",
	},
	"steam.guard_timeout_seconds": {
		Comment: "How long to wait for a Steam Guard code once asked.",
	},
	"steam.web_reassert_minutes": {
		Comment: "Minutes between web session refreshes for logged in accounts.",
	},

	// Catalog
	"catalog.backend": {
		Comment:      "App name cache store.",
		Alternatives: []string{`backend = "sqlite"`},
	},
	"catalog.app_list_url": {
		Comment: "Bulk app list endpoint.",
	},
	"catalog.app_details_url": {
		Comment: "Single app store endpoint. %d is replaced with the app id.",
	},

	// Heartbeat
	"heartbeat": {
		Comment: "Keep-alive HTTP server for hosted deployments.",
	},
	"heartbeat.enabled": {
		Comment: "Serve GET / and GET /healthz.",
	},
	"heartbeat.port": {
		Comment: "Listen port. PORT overrides this value.",
	},
	"heartbeat.self_url": {
		Comment:      "Public URL pinged periodically so the host does not idle the process.\nSELF_URL overrides this value.",
		Alternatives: []string{`self_url = "https://my-bot.example.com/"`},
	},
	"heartbeat.ping_interval_seconds": {
		Comment: "Seconds between self pings.",
	},

	// Access
	"access": {
		Comment: "Who may talk to the bot. Both lists empty allows everyone.\nChanges are applied without a restart.",
	},
	"access.allowed_chats": {
		Comment:      "Chat ids.",
		Alternatives: []string{"allowed_chats = [123456789]"},
	},
	"access.allowed_usernames": {
		Comment:      "Username glob patterns, without the leading @.",
		Alternatives: []string{`allowed_usernames = ["alice", "team_*"]`},
	},

	// Log
	"log.level": {
		Comment:      "Minimum log level. LOG_LEVEL overrides this value.",
		Alternatives: []string{`level = "debug"`, `level = "trace"`},
	},
	"log.max_size_mb": {
		Comment: "Log file size in megabytes before rotation.",
	},
	"log.console": {
		Comment: "Also write logs to stderr.",
	},
}
