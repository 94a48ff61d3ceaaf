package bot

import (
	"strings"

	"tools.zach/dev/steamidle/internal/session"
)

// Intent is a recognized command.
type Intent int

const (
	// IntentText is free text, consumed by the chat's current step.
	IntentText Intent = iota
	IntentWelcome
	IntentLogin
	IntentStatus
	IntentStart
	IntentStop
	IntentLogout
)

func (i Intent) String() string {
	switch i {
	case IntentWelcome:
		return "welcome"
	case IntentLogin:
		return "login"
	case IntentStatus:
		return "status"
	case IntentStart:
		return "start"
	case IntentStop:
		return "stop"
	case IntentLogout:
		return "logout"
	default:
		return "text"
	}
}

var labelIntents = map[string]Intent{
	session.LabelLogin:  IntentLogin,
	session.LabelStatus: IntentStatus,
	session.LabelStart:  IntentStart,
	session.LabelStop:   IntentStop,
	session.LabelLogout: IntentLogout,
}

var commandIntents = map[string]Intent{
	"/start":  IntentWelcome,
	"/login":  IntentLogin,
	"/status": IntentStatus,
	"/farm":   IntentStart,
	"/stop":   IntentStop,
	"/logout": IntentLogout,
}

// ParseIntent maps a message to an intent. Keyboard labels must match
// exactly; slash commands may carry a @botname suffix.
func ParseIntent(text string) Intent {
	trimmed := strings.TrimSpace(text)
	if i, ok := labelIntents[trimmed]; ok {
		return i
	}
	if !strings.HasPrefix(trimmed, "/") {
		return IntentText
	}
	cmd, _, _ := strings.Cut(trimmed, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	if i, ok := commandIntents[strings.ToLower(cmd)]; ok {
		return i
	}
	return IntentText
}

// mainKeyboardRows lists the reply keyboard labels, row by row.
func mainKeyboardRows() [][]string {
	return [][]string{
		{session.LabelLogin, session.LabelStatus},
		{session.LabelStart, session.LabelStop},
		{session.LabelLogout},
	}
}
