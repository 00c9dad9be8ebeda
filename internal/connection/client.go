package connection

import (
	"context"
	"log/slog"
)

// ChatClient is the chat library the manager wraps. A ChatClient is used for
// exactly one session; the manager builds a new one through a ClientFactory
// on every restart.
type ChatClient interface {
	// Connect opens the session. Lifecycle is reported on Events.
	Connect(ctx context.Context) error

	// Events returns the lifecycle event stream. It is closed by Destroy.
	Events() <-chan Event

	// SendMessage delivers text to a fully qualified chat id.
	SendMessage(ctx context.Context, chatID, text string) error

	// GetChat looks up a single chat by id.
	GetChat(ctx context.Context, chatID string) (Chat, error)

	// ListChats returns every chat the account knows about.
	ListChats(ctx context.Context) ([]Chat, error)

	// GetConnectionState reports the library's own view of the session.
	GetConnectionState(ctx context.Context) (ConnState, error)

	// GetIdentity returns the logged in account.
	GetIdentity(ctx context.Context) (Identity, error)

	// Logout invalidates the stored session so a new QR scan is required.
	Logout(ctx context.Context) error

	// Destroy releases every resource held by the client.
	Destroy(ctx context.Context) error
}

// Chat is a conversation handle returned by lookups.
type Chat interface {
	ID() string
	Send(ctx context.Context, text string) error
}

// ClientFactory builds a fresh ChatClient.
type ClientFactory func(logger *slog.Logger) (ChatClient, error)

// EventKind identifies a lifecycle event.
type EventKind string

const (
	EventQRCode        EventKind = "qr-code"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventAuthFailure   EventKind = "auth-failure"
	EventDisconnected  EventKind = "disconnected"
	EventError         EventKind = "error"
)

// Event is a lifecycle notification from a ChatClient.
type Event struct {
	Kind    EventKind
	Payload string // QR payload, auth failure reason or disconnect reason
	Err     error  // Set for EventError
}

// ConnState is the session state reported by the chat library.
type ConnState string

const (
	ConnConnected    ConnState = "CONNECTED"
	ConnOpening      ConnState = "OPENING"
	ConnPairing      ConnState = "PAIRING"
	ConnUnpaired     ConnState = "UNPAIRED"
	ConnDisconnected ConnState = "DISCONNECTED"
	ConnConflict     ConnState = "CONFLICT"
)

// Disconnect reasons that mean the stored session is gone. No automatic
// restart follows them.
const (
	ReasonLogout       = "LOGOUT"
	ReasonConflict     = "CONFLICT"
	ReasonUnpaired     = "UNPAIRED"
	ReasonUnpairedIdle = "UNPAIRED_IDLE"
)

func sessionInvalidated(reason string) bool {
	switch reason {
	case ReasonLogout, ReasonConflict, ReasonUnpaired, ReasonUnpairedIdle:
		return true
	}
	return false
}
