// Package utils provides identifier and token counting helpers.
package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh opaque identifier for turns, escalations, and vouch
// sessions.
func NewID() string {
	return uuid.NewString()
}

// SanitizeChannelName makes a username safe for use in a channel name.
// Channel names must be lowercase and limited to [a-z0-9-].
func SanitizeChannelName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '.', r == '-':
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "member"
	}
	return out
}

// ProcessingChannelName returns the private processing channel name for a user.
func ProcessingChannelName(username string) string {
	return "processing-" + SanitizeChannelName(username)
}

// TicketChannelName returns the application ticket channel name for a user.
func TicketChannelName(username string) string {
	return "ticket-" + SanitizeChannelName(username)
}
