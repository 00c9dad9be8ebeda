package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

var testIdentity = Identity{DisplayName: "Front Desk", Handle: "15550001111"}

// fakeClient is a scriptable ChatClient. Every method except Events and
// Destroy counts as a client interaction.
type fakeClient struct {
	events chan Event

	mu        sync.Mutex
	destroyed bool
	calls     int

	connectErr  error
	state       ConnState
	stateErr    error
	identity    Identity
	identityErr error

	sendErrs   []error // consumed by direct sends; exhausted means success
	sent       []string
	lookupErr  error
	lookupChat Chat
	chats      []Chat
	listErr    error
	logoutErr  error
	logouts    int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		events:   make(chan Event, 32),
		state:    ConnConnected,
		identity: testIdentity,
	}
}

func (f *fakeClient) emit(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return
	}
	f.events <- ev
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.connectErr
}

func (f *fakeClient) Events() <-chan Event { return f.events }

func (f *fakeClient) SendMessage(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, chatID+": "+text)
	return nil
}

func (f *fakeClient) GetChat(ctx context.Context, chatID string) (Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.lookupChat, f.lookupErr
}

func (f *fakeClient) ListChats(ctx context.Context) ([]Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.chats, f.listErr
}

func (f *fakeClient) GetConnectionState(ctx context.Context) (ConnState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.state, f.stateErr
}

func (f *fakeClient) GetIdentity(ctx context.Context) (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.identity, f.identityErr
}

func (f *fakeClient) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.logouts++
	return f.logoutErr
}

func (f *fakeClient) Destroy(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.destroyed {
		f.destroyed = true
		close(f.events)
	}
	return nil
}

func (f *fakeClient) set(fn func(f *fakeClient)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeClient) isDestroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeClient) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeChat struct {
	id string

	mu   sync.Mutex
	err  error
	sent []string
}

func (c *fakeChat) ID() string { return c.id }

func (c *fakeChat) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeChat) sentMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// fakeFactory records every client it builds.
type fakeFactory struct {
	mu        sync.Mutex
	clients   []*fakeClient
	err       error
	configure func(*fakeClient)
}

func (ff *fakeFactory) New(_ *slog.Logger) (ChatClient, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.err != nil {
		return nil, ff.err
	}
	c := newFakeClient()
	if ff.configure != nil {
		ff.configure(c)
	}
	ff.clients = append(ff.clients, c)
	return c, nil
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.clients)
}

func (ff *fakeFactory) client(i int) *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.clients[i]
}

func (ff *fakeFactory) last() *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.clients[len(ff.clients)-1]
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	delays      []time.Duration
	sends       []error
}

func (o *recordingObserver) StateChanged(from, to State, _ Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, from.String()+">"+to.String())
}

func (o *recordingObserver) RestartScheduled(_ int, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delays = append(o.delays, delay)
}

func (o *recordingObserver) SendCompleted(_ string, _ SendResult, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sends = append(o.sends, err)
}

func (o *recordingObserver) restartDelays() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.delays...)
}

type harness struct {
	m       *manager
	clock   *clock.Mock
	factory *fakeFactory
	obs     *recordingObserver
}

func testConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.SendRetryDelay = 0
	return cfg
}

func newHarness(t *testing.T, cfg ManagerConfig) *harness {
	t.Helper()
	h := &harness{
		clock:   clock.NewMock(),
		factory: &fakeFactory{},
		obs:     &recordingObserver{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.m = NewManager(cfg, h.factory.New,
		WithLogger(logger),
		WithClock(h.clock),
		WithObserver(h.obs),
	).(*manager)
	t.Cleanup(func() {
		_ = h.m.Stop(context.Background())
	})
	return h
}

func (h *harness) start(t *testing.T) *fakeClient {
	t.Helper()
	require.NoError(t, h.m.Start(context.Background()))
	return h.factory.last()
}

// ready starts the manager and drives it to READY with the identity attached.
func (h *harness) ready(t *testing.T) *fakeClient {
	t.Helper()
	c := h.start(t)
	c.emit(Event{Kind: EventAuthenticated})
	c.emit(Event{Kind: EventReady})
	h.waitFor(t, func(st Status) bool {
		return st.Ready && st.ConnectedIdentity != nil && *st.ConnectedIdentity == testIdentity
	})
	return c
}

func (h *harness) pendingTimers() int {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.m.timers.len()
}

func (h *harness) waitFor(t *testing.T, cond func(Status) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.m.Status()) }, 2*time.Second, 2*time.Millisecond)
}

func (h *harness) waitState(t *testing.T, s State) {
	t.Helper()
	h.waitFor(t, func(st Status) bool { return st.State == s })
}

func (h *harness) waitClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.factory.count() == n }, 2*time.Second, 2*time.Millisecond)
}

var errBoom = errors.New("boom")
