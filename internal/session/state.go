// Package session is the per-chat login state machine together with the
// registry of live account connections it drives.
//
// The package provides three core pieces:
//
//   - [Machine]: the handshake for one chat (credentials, optional second
//     factor, ready) plus the farming and status commands.
//   - [Registry]: chat id to [Handle], where a Handle owns one account
//     connection, its web session, and every timer scheduled for it.
//   - [Scheduler]: the periodic web re-assertion that keeps a Handle's
//     cookies valid while it is logged in.
//
// Every teardown path (logout, failure, disconnect, timeout, replacement)
// goes through [Handle.Teardown], which cancels the Handle's timers and logs
// off exactly once. Events and timer callbacks carry the Handle that
// produced them and are dropped once that Handle is no longer current.
package session

import "tools.zach/dev/steamidle/internal/account"

// ///////////////////////////////////////////////
// Chat State
// ///////////////////////////////////////////////

// Step says which input the next free-text message satisfies.
type Step int

const (
	StepIdle Step = iota
	StepAwaitingLogin
	StepAwaitingPassword
	StepAwaitingGuardCode
	StepAwaitingAppID
)

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepAwaitingLogin:
		return "awaiting_login"
	case StepAwaitingPassword:
		return "awaiting_password"
	case StepAwaitingGuardCode:
		return "awaiting_guard_code"
	case StepAwaitingAppID:
		return "awaiting_app_id"
	default:
		return "unknown"
	}
}

// ChatSession is the state of one chat. It is only mutated under the owning
// [Machine]'s lock.
type ChatSession struct {
	Step Step
	// LoggedIn is set once the account client reports authentication.
	LoggedIn bool
	// PendingLogin holds the login name between the login and password steps.
	PendingLogin string
	// CurrentAppID is the asserted presence, zero when none.
	CurrentAppID uint32

	secondFactor *account.SecondFactor
}

// AwaitingSecondFactor reports whether a one-shot code handle is stored.
func (s ChatSession) AwaitingSecondFactor() bool {
	return s.secondFactor != nil
}
