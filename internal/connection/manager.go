package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Manager owns the WhatsApp client and keeps it alive.
type Manager interface {
	// Start begins initialization. Returns ErrAlreadyRunning if the client is
	// already initializing or ready.
	Start(ctx context.Context) error

	// Stop destroys the client and suppresses automatic restarts. Always succeeds.
	Stop(ctx context.Context) error

	// ForceRestart tears down the current client unconditionally and starts over.
	ForceRestart(ctx context.Context) error

	// SoftRecover re-syncs with the client's own view of the session and only
	// restarts when that view is unusable.
	SoftRecover(ctx context.Context) (Recovery, error)

	// Logout invalidates the stored session and destroys the client.
	Logout(ctx context.Context) error

	// SendMessage delivers text to target. See ResolveTarget for addressing.
	SendMessage(ctx context.Context, target, text string) (SendResult, error)

	// Status returns a snapshot without touching the client.
	Status() Status

	// QRCode returns the pending QR payload, or "" if none.
	QRCode() string

	// Subscribe streams a snapshot after every status change. Slow readers
	// only see the latest snapshot. Call the returned func to unsubscribe.
	Subscribe() (<-chan Status, func())
}

// Option configures a manager.
type Option func(*manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(m *manager) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(m *manager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

type eventHandler func(s *session, ev Event) (after func())

// session binds one ChatClient to the dispatch table built for it. Events and
// async completions carrying a session that is no longer current are dropped.
type session struct {
	gen      uint64
	client   ChatClient
	done     chan struct{}
	handlers map[EventKind]eventHandler
}

// manager implements the Manager interface.
type manager struct {
	cfg       ManagerConfig
	factory   ClientFactory
	logger    *slog.Logger
	clock     clock.Clock
	observers []Observer

	mu              sync.Mutex
	state           State
	sess            *session
	gen             uint64 // bumped by every init, stop and logout
	qrCode          string
	identity        *Identity
	stopReason      StopReason
	restartAttempts int
	lastError       string
	lastSendAt      time.Time
	timers          *timerSet

	watchers    map[uint64]chan Status
	nextWatcher uint64
}

// NewManager creates a dormant manager. Nothing happens until Start.
func NewManager(cfg ManagerConfig, factory ClientFactory, opts ...Option) Manager {
	m := &manager{
		cfg:      cfg,
		factory:  factory,
		logger:   slog.Default(),
		clock:    clock.New(),
		watchers: make(map[uint64]chan Status),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "whatsapp")
	m.timers = newTimerSet(m.clock)
	return m
}

// Start begins initialization.
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state.active() {
		state := m.state
		m.mu.Unlock()
		m.logger.Debug("start ignored", "state", state)
		return ErrAlreadyRunning
	}
	m.stopReason = StopNone
	m.lastError = ""
	m.restartAttempts = 0
	old := m.detachLocked()
	gen := m.beginInitLocked()
	m.mu.Unlock()

	m.logger.Info("starting whatsapp client")
	m.destroyClient(old)
	return m.initialize(ctx, gen)
}

// Stop shuts the client down and suppresses automatic restarts.
func (m *manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopReason = StopOperator
	m.gen++
	m.timers.cancelAll()
	old := m.detachLocked()
	m.lastError = ""
	m.transitionLocked(StateDisconnected)
	m.mu.Unlock()

	m.logger.Info("whatsapp client stopped")
	m.destroyClient(old)
	return nil
}

// ForceRestart tears down the client and starts over with a fresh budget.
func (m *manager) ForceRestart(ctx context.Context) error {
	m.mu.Lock()
	m.stopReason = StopNone
	m.lastError = ""
	m.restartAttempts = 0
	old := m.detachLocked()
	gen := m.beginInitLocked()
	m.mu.Unlock()

	m.logger.Warn("force restarting whatsapp client")
	m.destroyClient(old)
	return m.initialize(ctx, gen)
}

// SoftRecover asks the client where it stands before resorting to a restart.
func (m *manager) SoftRecover(ctx context.Context) (Recovery, error) {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()

	if s == nil {
		return RecoveryRestarted, m.ForceRestart(ctx)
	}

	qctx, cancel := m.clock.WithTimeout(ctx, m.cfg.StateQueryTimeout)
	cs, err := s.client.GetConnectionState(qctx)
	cancel()
	if err != nil {
		m.logger.Warn("connection state query failed", "error", err)
		return RecoveryRestarted, m.ForceRestart(ctx)
	}

	switch cs {
	case ConnConnected:
		m.mu.Lock()
		if m.sess != s {
			m.mu.Unlock()
			return RecoveryRestarted, m.ForceRestart(ctx)
		}
		if m.state != StateReady {
			m.markReadyLocked()
			go m.fetchIdentity(s)
		}
		m.mu.Unlock()
		m.logger.Info("soft recovery found session connected")
		return RecoveryConnected, nil

	case ConnOpening, ConnPairing:
		m.mu.Lock()
		if m.sess != s {
			m.mu.Unlock()
			return RecoveryRestarted, m.ForceRestart(ctx)
		}
		if m.state != StateInitializing {
			m.transitionLocked(StateInitializing)
			m.timers.set(timerInitTimeout, m.cfg.InitTimeout, m.onInitTimeout)
		}
		m.mu.Unlock()
		m.logger.Info("soft recovery found session reconnecting", "conn_state", cs)
		return RecoveryReconnecting, nil

	default:
		m.logger.Warn("soft recovery falling back to restart", "conn_state", cs)
		return RecoveryRestarted, m.ForceRestart(ctx)
	}
}

// Logout ends the stored session. The client is destroyed whether or not
// the logout call succeeds. With no client attached a detached one is built
// to revoke the stored device.
func (m *manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.stopReason = StopOperator
	m.gen++
	m.timers.cancelAll()
	old := m.detachLocked()
	m.transitionLocked(StateDisconnected)
	m.mu.Unlock()

	if old == nil {
		// A stopped manager still holds a stored device; open a detached
		// client just to revoke it.
		c, err := m.factory(m.logger)
		if err != nil {
			return fmt.Errorf("logout: create client: %w", err)
		}
		old = c
	}

	lctx, cancel := m.clock.WithTimeout(context.WithoutCancel(ctx), m.cfg.LogoutTimeout)
	err := old.Logout(lctx)
	cancel()
	if err != nil {
		m.logger.Warn("logout failed, destroying client", "error", err)
	} else {
		m.logger.Info("whatsapp session logged out")
	}
	m.destroyClient(old)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Status returns the current snapshot.
func (m *manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// QRCode returns the pending QR payload.
func (m *manager) QRCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.qrCode
}

// Subscribe registers a status watcher.
func (m *manager) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)

	m.mu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	ch <- m.statusLocked()
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// initialize creates and connects a client for init generation gen. A newer
// init, stop or logout makes gen stale, in which case the client is discarded.
func (m *manager) initialize(ctx context.Context, gen uint64) error {
	client, err := m.factory(m.logger)

	m.mu.Lock()
	if gen != m.gen || m.stopReason != StopNone {
		m.mu.Unlock()
		m.logger.Debug("discarding client from superseded initialization")
		m.destroyClient(client)
		return nil
	}
	if err != nil {
		err = fmt.Errorf("create client: %w", err)
		m.failLocked(err)
		m.mu.Unlock()
		m.logger.Error("failed to create whatsapp client", "error", err)
		return err
	}
	s := m.attachLocked(client)
	m.mu.Unlock()

	cctx, cancel := m.clock.WithTimeout(context.WithoutCancel(ctx), m.cfg.InitTimeout)
	err = client.Connect(cctx)
	cancel()
	if err == nil {
		return nil
	}

	err = fmt.Errorf("connect client: %w", err)
	m.logger.Error("failed to connect whatsapp client", "error", err)
	var old ChatClient
	m.mu.Lock()
	if m.sess == s {
		old = m.failLocked(err)
	}
	m.mu.Unlock()
	m.destroyClient(old)
	return err
}

// beginInitLocked enters INITIALIZING and arms the init timeout. A QR code
// belongs to the client that produced it, so it never outlives a restart.
func (m *manager) beginInitLocked() uint64 {
	m.gen++
	m.qrCode = ""
	m.timers.cancel(timerQRExpiry)
	m.transitionLocked(StateInitializing)
	m.timers.set(timerInitTimeout, m.cfg.InitTimeout, m.onInitTimeout)
	return m.gen
}

func (m *manager) attachLocked(client ChatClient) *session {
	s := &session{
		gen:    m.gen,
		client: client,
		done:   make(chan struct{}),
	}
	s.handlers = map[EventKind]eventHandler{
		EventQRCode:        m.onQRCode,
		EventAuthenticated: m.onAuthenticated,
		EventReady:         m.onReady,
		EventAuthFailure:   m.onAuthFailure,
		EventDisconnected:  m.onDisconnected,
		EventError:         m.onError,
	}
	m.sess = s
	go m.pump(s)
	m.notifyLocked()
	return s
}

// detachLocked unbinds the current session and hands its client to the
// caller, who must destroy it outside the lock.
func (m *manager) detachLocked() ChatClient {
	s := m.sess
	if s == nil {
		return nil
	}
	close(s.done)
	m.sess = nil
	m.notifyLocked()
	return s.client
}

func (m *manager) destroyClient(c ChatClient) {
	if c == nil {
		return
	}
	ctx, cancel := m.clock.WithTimeout(context.Background(), m.cfg.DestroyTimeout)
	defer cancel()
	if err := c.Destroy(ctx); err != nil {
		m.logger.Warn("destroy client failed", "error", err)
	}
}

// failLocked records err, enters ERROR, drops the client and schedules a
// restart. The returned client must be destroyed outside the lock.
func (m *manager) failLocked(err error) ChatClient {
	m.lastError = err.Error()
	m.transitionLocked(StateError)
	old := m.detachLocked()
	m.scheduleRestartLocked(m.cfg.ErrorRestartDelay)
	return old
}

// transitionLocked is the only place the state changes. Timers that make no
// sense in the new state are cancelled and stale fields cleared.
func (m *manager) transitionLocked(to State) {
	from := m.state
	m.state = to
	m.timers.prune(to)
	if to != StateInitializing {
		m.qrCode = ""
	}
	if to != StateReady {
		m.identity = nil
	}

	st := m.statusLocked()
	if from != to {
		m.logger.Info("state changed", "from", from, "to", to)
		for _, o := range m.observers {
			o.StateChanged(from, to, st)
		}
	}
	m.broadcastLocked(st)
}

func (m *manager) markReadyLocked() {
	m.restartAttempts = 0
	m.lastError = ""
	m.identity = &Identity{DisplayName: "unknown"}
	m.transitionLocked(StateReady)
}

func (m *manager) statusLocked() Status {
	st := Status{
		State:              m.state,
		Ready:              m.state == StateReady && m.sess != nil,
		Initializing:       m.state == StateInitializing || m.state == StateAuthenticated,
		HasClient:          m.sess != nil,
		ManualStop:         m.stopReason != StopNone,
		StopReason:         m.stopReason,
		LastError:          m.lastError,
		RestartAttempts:    m.restartAttempts,
		MaxRestartAttempts: m.cfg.MaxRestartAttempts,
		RestartPending:     m.timers.pending(timerRestart),
	}
	if m.qrCode != "" {
		qr := m.qrCode
		st.QRCode = &qr
	}
	if m.identity != nil {
		id := *m.identity
		st.ConnectedIdentity = &id
	}
	if !m.lastSendAt.IsZero() {
		at := m.lastSendAt
		st.LastSuccessfulSendAt = &at
	}
	return st
}

func (m *manager) notifyLocked() {
	m.broadcastLocked(m.statusLocked())
}

// broadcastLocked hands st to every watcher, replacing any unread snapshot.
func (m *manager) broadcastLocked(st Status) {
	for _, ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
