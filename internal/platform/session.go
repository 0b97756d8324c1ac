// Package platform adapts a discordgo session to the handful of calls slot
// reconciliation needs: reading and renaming a channel, managing a
// member's permission overwrite on it, and adding or removing a guild
// role.  Rate limits are handled by the session's per-route limiter.
package platform

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// SlotPermissions is what a slot holder is allowed on their channel.
const SlotPermissions int64 = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionMentionEveryone

// NewSession returns a REST-only bot session.  The gateway is never
// opened.
func NewSession(token string, timeout time.Duration) (*discordgo.Session, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Client = &http.Client{Timeout: timeout}
	s.StateEnabled = false
	s.UserAgent = "slotwatcher (https://github.com/Facats/slotwatcherss, 1.0)"
	return s, nil
}

// SetAPIBase repoints the REST endpoints the authorizer uses at base,
// e.g. a proxy or a local stand-in.  An empty base keeps the default.
// It must be called before any session is used.
func SetAPIBase(base string) {
	if base == "" {
		return
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	discordgo.EndpointAPI = base
	discordgo.EndpointGuilds = base + "guilds/"
	discordgo.EndpointChannels = base + "channels/"
}
