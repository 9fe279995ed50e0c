package transcription

import (
	"net/url"
	"strings"
)

// Session identifies the room this client has joined.
type Session struct {
	BaseURL string
	Room    string
	Role    Role
	Token   string
}

// SessionURL builds the websocket endpoint for a session, or "" when the
// room or role is missing. http(s) base URLs are mapped to ws(s).
func SessionURL(base, room string, role Role, provider Provider, token string) string {
	if room == "" || role == "" {
		return ""
	}

	base = strings.TrimRight(strings.TrimSpace(base), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "ws://"), strings.HasPrefix(base, "wss://"):
	default:
		base = "ws://" + base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("/ws/connect?room=")
	b.WriteString(url.QueryEscape(room))
	b.WriteString("&role=")
	b.WriteString(url.QueryEscape(string(role)))
	b.WriteString("&provider=")
	b.WriteString(url.QueryEscape(string(provider)))
	b.WriteString("&token=")
	b.WriteString(url.QueryEscape(token))
	return b.String()
}

// URL returns the endpoint of s for provider.
func (s Session) URL(provider Provider) string {
	return SessionURL(s.BaseURL, s.Room, s.Role, provider, s.Token)
}
