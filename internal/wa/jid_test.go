package wa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"

	"github.com/rickgao/attendance-notify/internal/connection"
)

func TestParseChatID(t *testing.T) {
	tests := []struct {
		in   string
		want types.JID
	}{
		{"15551234567@c.us", types.NewJID("15551234567", types.DefaultUserServer)},
		{"15551234567@s.whatsapp.net", types.NewJID("15551234567", types.DefaultUserServer)},
		{"120363025246125486@g.us", types.NewJID("120363025246125486", types.GroupServer)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChatID(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseChatID_Invalid(t *testing.T) {
	for _, in := range []string{"", "15551234567", "@c.us"} {
		_, err := ParseChatID(in)
		assert.Error(t, err, in)
	}
}

func TestFormatChatID_RoundTrip(t *testing.T) {
	for _, id := range []string{"15551234567@c.us", "120363025246125486@g.us"} {
		jid, err := ParseChatID(id)
		require.NoError(t, err)
		assert.Equal(t, id, FormatChatID(jid))
	}
}

func TestConnState(t *testing.T) {
	tests := []struct {
		name                        string
		connected, loggedIn, paired bool
		want                        connection.ConnState
	}{
		{"logged in", true, true, true, connection.ConnConnected},
		{"awaiting scan", true, false, false, connection.ConnPairing},
		{"handshake", true, false, true, connection.ConnOpening},
		{"never paired", false, false, false, connection.ConnUnpaired},
		{"dropped", false, false, true, connection.ConnDisconnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, connState(tt.connected, tt.loggedIn, tt.paired))
		})
	}
}
