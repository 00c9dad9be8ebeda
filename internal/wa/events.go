package wa

import (
	"errors"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/rickgao/attendance-notify/internal/connection"
)

// ReasonConnectionLost is reported for plain socket drops. It does not
// invalidate the stored session.
const ReasonConnectionLost = "CONNECTION_LOST"

// ReasonQRTimeout is reported when every QR code expired without a scan.
const ReasonQRTimeout = "QR_TIMEOUT"

// translate maps a whatsmeow event onto zero or more lifecycle events.
func translate(evt interface{}) []connection.Event {
	switch v := evt.(type) {
	case *events.PairSuccess:
		return []connection.Event{{Kind: connection.EventAuthenticated}}
	case *events.Connected:
		return []connection.Event{
			{Kind: connection.EventAuthenticated},
			{Kind: connection.EventReady},
		}
	case *events.LoggedOut:
		return []connection.Event{{Kind: connection.EventDisconnected, Payload: connection.ReasonLogout}}
	case *events.StreamReplaced:
		return []connection.Event{{Kind: connection.EventDisconnected, Payload: connection.ReasonConflict}}
	case *events.Disconnected:
		return []connection.Event{{Kind: connection.EventDisconnected, Payload: ReasonConnectionLost}}
	case *events.ConnectFailure:
		if v.Reason.IsLoggedOut() {
			return []connection.Event{{Kind: connection.EventDisconnected, Payload: connection.ReasonUnpaired}}
		}
		return []connection.Event{{
			Kind: connection.EventError,
			Err:  fmt.Errorf("connect failure: %s %s", v.Reason, v.Message),
		}}
	case *events.ClientOutdated:
		return []connection.Event{{Kind: connection.EventAuthFailure, Payload: "client outdated"}}
	case *events.TemporaryBan:
		return []connection.Event{{Kind: connection.EventAuthFailure, Payload: v.String()}}
	case *events.KeepAliveTimeout:
		return []connection.Event{{
			Kind: connection.EventError,
			Err:  fmt.Errorf("keepalive timeout after %d failures", v.ErrorCount),
		}}
	case *events.StreamError:
		return []connection.Event{{
			Kind: connection.EventError,
			Err:  &connection.CriticalError{Cause: fmt.Errorf("stream error %s", v.Code)},
		}}
	}
	return nil
}

// translateQR maps a pairing channel item onto a lifecycle event.
func translateQR(item whatsmeow.QRChannelItem) (connection.Event, bool) {
	switch item.Event {
	case whatsmeow.QRChannelEventCode:
		return connection.Event{Kind: connection.EventQRCode, Payload: item.Code}, true
	case whatsmeow.QRChannelSuccess.Event:
		// PairSuccess arrives on the event handler as well.
		return connection.Event{}, false
	case whatsmeow.QRChannelTimeout.Event:
		return connection.Event{Kind: connection.EventDisconnected, Payload: ReasonQRTimeout}, true
	case whatsmeow.QRChannelEventError:
		err := item.Error
		if err == nil {
			err = errors.New("pairing failed")
		}
		return connection.Event{Kind: connection.EventAuthFailure, Payload: err.Error()}, true
	}
	return connection.Event{Kind: connection.EventAuthFailure, Payload: item.Event}, true
}
