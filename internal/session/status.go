package session

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"

	"tools.zach/dev/steamidle/internal/account"
)

// maxStatusFriends caps the persona query made for the status report.
const maxStatusFriends = 25

// Status replies with the account's level, friends and current activity.
// The report is built outside the chat's lock so account events and timeouts
// are not held up by the level and catalog lookups.
func (c *Machine) Status(ctx context.Context) {
	h, id, appID, reply := c.statusTarget()
	if reply != "" {
		c.send(ctx, reply)
		return
	}
	c.send(ctx, c.statusReport(ctx, h, id, appID))
}

// statusTarget snapshots what the report needs, or returns the reply to send
// instead of one.
func (c *Machine) statusTarget() (*Handle, account.SteamID, uint32, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight() {
		return nil, 0, 0, MsgInProgress
	}
	h := c.handle()
	if !c.s.LoggedIn || h == nil {
		return nil, 0, 0, MsgInactive
	}
	id, ok := h.Account.Identity()
	if !ok {
		return nil, 0, 0, MsgInactive
	}
	return h, id, c.s.CurrentAppID, ""
}

func (c *Machine) statusReport(ctx context.Context, h *Handle, id account.SteamID, appID uint32) string {
	var b strings.Builder
	b.WriteString("📊 <b>Account status:</b>\n")
	fmt.Fprintf(&b, "⭐️ Level: %s\n", c.m.level(ctx, h.Account, id, c.log))

	friends, err := h.Account.Friends()
	if err != nil {
		c.log.Warn("friends list unavailable", "error", err)
		b.WriteString("👥 Friends: unknown\n")
		b.WriteString("🟢 Friends online: no data\n")
	} else {
		ids := friendIDs(friends)
		fmt.Fprintf(&b, "👥 Friends: %d\n", len(ids))
		fmt.Fprintf(&b, "🟢 Friends online: %s\n", c.onlineFriends(h.Account, ids))
	}

	activity := "Online"
	if appID != 0 {
		activity = html.EscapeString(c.m.resolver.Resolve(ctx, h.Web, appID))
	}
	fmt.Fprintf(&b, "🎮 Status: %s", activity)
	return b.String()
}

// friendIDs returns the ids with a friend relationship in ascending order.
func friendIDs(friends []account.Friend) []account.SteamID {
	var ids []account.SteamID
	for _, f := range friends {
		if f.Relationship == account.RelationshipFriend {
			ids = append(ids, f.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Machine) onlineFriends(client account.Client, ids []account.SteamID) string {
	if len(ids) == 0 {
		return "none"
	}
	if len(ids) > maxStatusFriends {
		ids = ids[:maxStatusFriends]
	}
	personas, err := client.Personas(ids)
	if err != nil {
		c.log.Warn("personas unavailable", "error", err)
		return "no data"
	}

	var names []string
	online := 0
	for _, id := range ids {
		p, ok := personas[id]
		if !ok || p.State != account.PersonaOnline {
			continue
		}
		online++
		if p.DisplayName != "" {
			names = append(names, html.EscapeString(p.DisplayName))
		}
	}
	if online == 0 {
		return "none"
	}
	if len(names) == 0 {
		return fmt.Sprint(online)
	}
	return fmt.Sprintf("%d (%s)", online, strings.Join(names, ", "))
}

// level returns the account level, cached per identity after the first
// successful lookup.
func (m *Manager) level(ctx context.Context, client account.Client, id account.SteamID, log *slog.Logger) string {
	m.levelMu.Lock()
	cached, ok := m.levels[id]
	m.levelMu.Unlock()
	if ok {
		return fmt.Sprint(cached)
	}

	lvl, err := client.Level(ctx, id)
	if err != nil {
		if errors.Is(err, account.ErrNoAPIKey) {
			log.Warn("level lookup skipped, no web api key")
		} else {
			log.Warn("level lookup failed", "error", err)
		}
		return "unknown"
	}

	m.levelMu.Lock()
	m.levels[id] = lvl
	m.levelMu.Unlock()
	return fmt.Sprint(lvl)
}
