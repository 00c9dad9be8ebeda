package wa

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"github.com/rickgao/attendance-notify/internal/connection"
)

const (
	legacyUserServer  = "c.us"
	legacyGroupServer = "g.us"
)

// ParseChatID converts a chat id such as "15551234567@c.us" into a JID.
// The legacy "c.us" server maps to whatsmeow's user server.
func ParseChatID(chatID string) (types.JID, error) {
	user, server, ok := strings.Cut(chatID, "@")
	if !ok || user == "" {
		return types.JID{}, fmt.Errorf("invalid chat id %q", chatID)
	}
	switch server {
	case legacyUserServer, types.DefaultUserServer:
		return types.NewJID(user, types.DefaultUserServer), nil
	case legacyGroupServer:
		return types.NewJID(user, types.GroupServer), nil
	}
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return types.JID{}, fmt.Errorf("parse chat id %q: %w", chatID, err)
	}
	return jid, nil
}

// FormatChatID is the inverse of ParseChatID for user and group chats.
func FormatChatID(jid types.JID) string {
	switch jid.Server {
	case types.DefaultUserServer:
		return jid.User + "@" + legacyUserServer
	case types.GroupServer:
		return jid.User + "@" + legacyGroupServer
	}
	return jid.String()
}

// connState maps whatsmeow's connection flags onto a ConnState.
func connState(connected, loggedIn, paired bool) connection.ConnState {
	switch {
	case connected && loggedIn:
		return connection.ConnConnected
	case connected && !paired:
		return connection.ConnPairing
	case connected:
		return connection.ConnOpening
	case !paired:
		return connection.ConnUnpaired
	default:
		return connection.ConnDisconnected
	}
}
