package wa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/rickgao/attendance-notify/internal/connection"
)

const eventBuffer = 64

// ErrNotOnWhatsApp is returned by GetChat when a phone number has no account.
var ErrNotOnWhatsApp = errors.New("number is not on whatsapp")

// Client wraps a single whatsmeow session.
type Client struct {
	cli    *whatsmeow.Client
	logger *slog.Logger

	events chan connection.Event

	mu        sync.Mutex
	closed    bool
	handlerID uint32
	qrCancel  context.CancelFunc
}

var _ connection.ChatClient = (*Client)(nil)

func newClient(cli *whatsmeow.Client, logger *slog.Logger) *Client {
	c := &Client{
		cli:    cli,
		logger: logger,
		events: make(chan connection.Event, eventBuffer),
	}
	c.handlerID = cli.AddEventHandler(c.handleEvent)
	return c
}

// Connect opens the websocket. A device without a stored session is paired
// through QR codes delivered as qr-code events.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.cli.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		qrChan, err := c.cli.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("get qr channel: %w", err)
		}
		c.mu.Lock()
		c.qrCancel = cancel
		c.mu.Unlock()
		go c.forwardQR(qrChan)
	}
	if err := c.cli.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *Client) Events() <-chan connection.Event { return c.events }

func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	jid, err := ParseChatID(chatID)
	if err != nil {
		return err
	}
	return c.send(ctx, jid, text)
}

func (c *Client) send(ctx context.Context, jid types.JID, text string) error {
	resp, err := c.cli.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	c.logger.Debug("message sent", "chat", jid.String(), "id", resp.ID)
	return nil
}

// GetChat resolves a group through its metadata and a user through the
// account directory.
func (c *Client) GetChat(ctx context.Context, chatID string) (connection.Chat, error) {
	jid, err := ParseChatID(chatID)
	if err != nil {
		return nil, err
	}
	if jid.Server == types.GroupServer {
		info, err := c.cli.GetGroupInfo(ctx, jid)
		if err != nil {
			return nil, fmt.Errorf("get group info: %w", err)
		}
		return &chat{client: c, jid: info.JID}, nil
	}
	resp, err := c.cli.IsOnWhatsApp(ctx, []string{"+" + jid.User})
	if err != nil {
		return nil, fmt.Errorf("check number: %w", err)
	}
	for _, r := range resp {
		if r.IsIn {
			return &chat{client: c, jid: r.JID}, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", chatID, ErrNotOnWhatsApp)
}

// ListChats returns joined groups followed by stored contacts.
func (c *Client) ListChats(ctx context.Context) ([]connection.Chat, error) {
	groups, err := c.cli.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get joined groups: %w", err)
	}
	chats := make([]connection.Chat, 0, len(groups))
	for _, g := range groups {
		chats = append(chats, &chat{client: c, jid: g.JID})
	}
	contacts, err := c.cli.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		c.logger.Warn("list contacts failed", "error", err)
		return chats, nil
	}
	for jid := range contacts {
		chats = append(chats, &chat{client: c, jid: jid})
	}
	return chats, nil
}

func (c *Client) GetConnectionState(ctx context.Context) (connection.ConnState, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return connState(c.cli.IsConnected(), c.cli.IsLoggedIn(), c.cli.Store.ID != nil), nil
}

func (c *Client) GetIdentity(ctx context.Context) (connection.Identity, error) {
	if err := ctx.Err(); err != nil {
		return connection.Identity{}, err
	}
	id := c.cli.Store.ID
	if id == nil {
		return connection.Identity{}, whatsmeow.ErrNotLoggedIn
	}
	name := c.cli.Store.PushName
	if name == "" {
		name = id.User
	}
	return connection.Identity{DisplayName: name, Handle: id.User}, nil
}

// Logout unlinks the device. When the server call fails the local device
// record is still removed so the next start pairs from scratch.
func (c *Client) Logout(ctx context.Context) error {
	err := c.cli.Logout(ctx)
	if err == nil {
		return nil
	}
	if c.cli.Store.ID != nil {
		if delErr := c.cli.Store.Delete(ctx); delErr != nil {
			c.logger.Warn("delete local device failed", "error", delErr)
		} else {
			c.logger.Info("removed local device after failed logout")
		}
	}
	return err
}

// Destroy disconnects and closes the event stream. Safe to call twice.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.events)
	qrCancel := c.qrCancel
	c.mu.Unlock()

	// whatsmeow may be inside handleEvent waiting on mu; disconnect unlocked.
	if qrCancel != nil {
		qrCancel()
	}
	c.cli.RemoveEventHandler(c.handlerID)
	c.cli.Disconnect()
	return nil
}

func (c *Client) handleEvent(evt interface{}) {
	for _, ev := range translate(evt) {
		c.emit(ev)
	}
}

func (c *Client) forwardQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		if ev, ok := translateQR(item); ok {
			c.emit(ev)
		}
	}
}

// emit never blocks: whatsmeow runs handlers on its receive loop.
func (c *Client) emit(ev connection.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event dropped, buffer full", "kind", ev.Kind)
	}
}

type chat struct {
	client *Client
	jid    types.JID
}

func (ch *chat) ID() string { return FormatChatID(ch.jid) }

func (ch *chat) Send(ctx context.Context, text string) error {
	return ch.client.send(ctx, ch.jid, text)
}
