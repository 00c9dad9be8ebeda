package adminclient

import (
	"context"

	"github.com/rickgao/attendance-notify/internal/connection"
	"github.com/rickgao/attendance-notify/internal/notify"
)

// RecoverResult is the response of Recover.
type RecoverResult struct {
	Result connection.Recovery `json:"result"`
	Status connection.Status   `json:"status"`
}

// Status fetches the manager snapshot.
func (c *Client) Status(ctx context.Context) (connection.Status, error) {
	var st connection.Status
	err := c.get(ctx, "/whatsapp/status", &st)
	return st, err
}

// QRCode fetches the pending QR payload.
func (c *Client) QRCode(ctx context.Context) (string, error) {
	var resp struct {
		QR string `json:"qr"`
	}
	if err := c.get(ctx, "/whatsapp/qr", &resp); err != nil {
		return "", err
	}
	return resp.QR, nil
}

// Start asks the manager to initialize a client.
func (c *Client) Start(ctx context.Context) (connection.Status, error) {
	return c.lifecycle(ctx, "start")
}

// Stop destroys the client and disables automatic restarts.
func (c *Client) Stop(ctx context.Context) (connection.Status, error) {
	return c.lifecycle(ctx, "stop")
}

// Restart tears the client down and starts over.
func (c *Client) Restart(ctx context.Context) (connection.Status, error) {
	return c.lifecycle(ctx, "restart")
}

// LogoutResult is the response of Logout. Warning is set when the server
// side unlink failed but the local session was still torn down.
type LogoutResult struct {
	Status  connection.Status `json:"status"`
	Warning string            `json:"warning,omitempty"`
}

// Logout unlinks the device.
func (c *Client) Logout(ctx context.Context) (LogoutResult, error) {
	var res LogoutResult
	err := c.post(ctx, "/whatsapp/logout", nil, &res)
	return res, err
}

// Recover re-syncs with the client's view of the session.
func (c *Client) Recover(ctx context.Context) (RecoverResult, error) {
	var res RecoverResult
	err := c.post(ctx, "/whatsapp/recover", nil, &res)
	return res, err
}

// Send delivers text to target. An empty target uses the server default.
func (c *Client) Send(ctx context.Context, target, text string) (connection.SendResult, error) {
	var res connection.SendResult
	req := struct {
		Target string `json:"target,omitempty"`
		Text   string `json:"text"`
	}{target, text}
	err := c.post(ctx, "/whatsapp/send", req, &res)
	return res, err
}

// Attendance queues an attendance notification.
func (c *Client) Attendance(ctx context.Context, ev notify.AttendanceEvent) error {
	return c.post(ctx, "/attendance/events", ev, nil)
}

func (c *Client) lifecycle(ctx context.Context, op string) (connection.Status, error) {
	var st connection.Status
	err := c.post(ctx, "/whatsapp/"+op, nil, &st)
	return st, err
}
