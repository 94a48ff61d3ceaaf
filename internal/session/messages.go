package session

import (
	"fmt"
	"html"

	"tools.zach/dev/steamidle/internal/account"
)

// Keyboard labels. The chat front end maps these to commands, and replies
// refer to them by name.
const (
	LabelLogin  = "🔑 Log in"
	LabelStatus = "📊 Status"
	LabelStart  = "🚀 Start"
	LabelStop   = "🛑 Stop"
	LabelLogout = "🚪 Log out"
)

// Replies are Telegram HTML; dynamic parts are escaped where they are built.
const (
	MsgWelcome       = "👋 Hi! I log in to Steam and idle game hours for you."
	MsgHelp          = "❓ Please use a command, for example \"" + LabelLogin + "\"."
	MsgAlreadyIn     = "✅ You are already logged in to Steam. Use \"" + LabelStatus + "\", \"" + LabelStart + "\" or \"" + LabelLogout + "\"."
	MsgAskLogin      = "Enter your Steam login:"
	MsgAskPassword   = "Enter your Steam password:"
	MsgLoggingIn     = "⏳ Logging in..."
	MsgLoggedIn      = "✅ You are logged in to Steam!"
	MsgLoginTimeout  = "❌ Login timed out. " + retryHint
	MsgGuardTimeout  = "❌ Steam Guard code entry timed out. " + retryHint
	MsgGuardSent     = "✅ Steam Guard code sent, continuing login..."
	MsgGuardMissing  = "❌ Error: no Steam Guard request is pending. " + retryHint
	MsgInProgress    = "⏳ Login in progress. Wait for it to finish or send \"" + LabelLogin + "\" to start over."
	MsgLoginFirst    = "❌ Log in to Steam first with \"" + LabelLogin + "\"."
	MsgNotLoggedIn   = "❌ You are not logged in to Steam."
	MsgInactive      = "❌ Session is not active. Use \"" + LabelLogin + "\"."
	MsgAskAppID      = "Enter the AppID to idle (for example 730 for CS2):"
	MsgInvalidAppID  = "❌ Invalid AppID. Enter a positive number (for example 730 for CS2)."
	MsgClientMissing = "❌ Steam client not found. Log in first."
	MsgFarmStopped   = "🛑 Idling stopped."
	MsgLoggedOut     = "👋 You are logged out of Steam."

	retryHint = "Try again with \"" + LabelLogin + "\"."
)

func guardPrompt(domain string, ch account.CodeChannel) string {
	switch {
	case domain != "":
		return fmt.Sprintf("📩 Enter the Steam Guard code sent to your email at %s:", html.EscapeString(domain))
	case ch == account.ChannelEmail:
		return "📩 Enter the Steam Guard code sent to your email:"
	default:
		return "📩 Enter the Steam Guard code from the mobile app:"
	}
}

func loginFailed(reason error) string {
	msg := "unknown error"
	if reason != nil {
		msg = reason.Error()
	}
	return fmt.Sprintf("❌ Login error: %s. %s", html.EscapeString(msg), retryHint)
}

func connectionLost(reason string) string {
	if reason == "" {
		reason = "unknown error"
	}
	return fmt.Sprintf("❌ Connection to Steam lost: %s. %s", html.EscapeString(reason), retryHint)
}

func farmStarted(appID uint32) string {
	return fmt.Sprintf("🎮 Now idling AppID %d.", appID)
}

func farmFailed(err error) string {
	return fmt.Sprintf("❌ Could not set the running game: %s", html.EscapeString(err.Error()))
}
