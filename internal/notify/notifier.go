package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rickgao/attendance-notify/internal/connection"
	"github.com/rickgao/attendance-notify/internal/journal"
)

// ErrStopped is returned by Notify after Stop.
var ErrStopped = errors.New("notifier stopped")

// ErrQueueFull is returned by Notify when the queue has no room.
var ErrQueueFull = errors.New("notify queue full")

// Sender delivers a message. connection.Manager satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, target, text string) (connection.SendResult, error)
}

// Journal records notification outcomes. *journal.Writer satisfies it.
type Journal interface {
	Record(e journal.Entry) bool
}

// Config holds notifier configuration.
type Config struct {
	Target         string         // Group or phone number messages go to
	Workers        int            // Concurrent senders (default: 2)
	QueueSize      int            // Pending events (default: 256)
	Location       *time.Location // Zone for {time} (default: Local)
	LoginTemplate  string
	LogoutTemplate string
	SendTimeout    time.Duration // Per message, covers every retry (default: 2m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        2,
		QueueSize:      256,
		Location:       time.Local,
		LoginTemplate:  "✅ {name} logged in at {time}",
		LogoutTemplate: "👋 {name} logged out at {time}",
		SendTimeout:    2 * time.Minute,
	}
}

// Stats counts notifier outcomes.
type Stats struct {
	Queued  int64
	Sent    int64
	Failed  int64
	Dropped int64
}

// Notifier queues attendance events and sends them on a worker pool.
type Notifier struct {
	cfg     Config
	sender  Sender
	journal Journal
	clock   clock.Clock
	logger  *slog.Logger

	queue chan AttendanceEvent

	mu      sync.RWMutex
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	queued, sent, failed, dropped atomic.Int64
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithJournal records every outcome in j.
func WithJournal(j Journal) Option {
	return func(n *Notifier) { n.journal = j }
}

// WithClock overrides the clock used to stamp events.
func WithClock(c clock.Clock) Option {
	return func(n *Notifier) { n.clock = c }
}

// New creates a Notifier. Zero config fields take defaults.
func New(cfg Config, sender Sender, logger *slog.Logger, opts ...Option) *Notifier {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.LoginTemplate == "" {
		cfg.LoginTemplate = def.LoginTemplate
	}
	if cfg.LogoutTemplate == "" {
		cfg.LogoutTemplate = def.LogoutTemplate
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		cfg:    cfg,
		sender: sender,
		clock:  clock.New(),
		logger: logger.With("component", "notify"),
		queue:  make(chan AttendanceEvent, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start launches the workers.
func (n *Notifier) Start(ctx context.Context) error {
	n.ctx, n.cancel = context.WithCancel(ctx)

	for i := 0; i < n.cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}

	n.logger.Info("notifier started",
		"workers", n.cfg.Workers,
		"queue_size", n.cfg.QueueSize,
		"target", n.cfg.Target,
	)
	return nil
}

// Stop stops accepting events and waits for the queue to drain. Pending
// sends are cancelled if ctx expires first.
func (n *Notifier) Stop(ctx context.Context) error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil
	}
	n.stopped = true
	close(n.queue)
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if n.cancel != nil {
			n.cancel()
		}
		n.logger.Info("notifier stopped", "sent", n.sent.Load(), "failed", n.failed.Load())
		return nil
	case <-ctx.Done():
		if n.cancel != nil {
			n.cancel()
		}
		<-done
		return ctx.Err()
	}
}

// Notify queues ev. It never blocks; a missing timestamp is filled in.
func (n *Notifier) Notify(ev AttendanceEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.At.IsZero() {
		ev.At = n.clock.Now()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.stopped {
		return ErrStopped
	}
	select {
	case n.queue <- ev:
		n.queued.Add(1)
		return nil
	default:
		n.dropped.Add(1)
		n.logger.Warn("notify queue full, event dropped",
			"employee", ev.Employee,
			"action", ev.Action,
		)
		return ErrQueueFull
	}
}

// Stats returns a snapshot of the counters.
func (n *Notifier) Stats() Stats {
	return Stats{
		Queued:  n.queued.Load(),
		Sent:    n.sent.Load(),
		Failed:  n.failed.Load(),
		Dropped: n.dropped.Load(),
	}
}

// Pending returns the number of queued events.
func (n *Notifier) Pending() int { return len(n.queue) }

func (n *Notifier) worker() {
	defer n.wg.Done()
	for ev := range n.queue {
		n.deliver(ev)
	}
}

func (n *Notifier) deliver(ev AttendanceEvent) {
	tmpl := n.cfg.LoginTemplate
	if ev.Action == ActionLogout {
		tmpl = n.cfg.LogoutTemplate
	}
	text := Render(tmpl, ev, n.cfg.Location)

	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.SendTimeout)
	defer cancel()

	start := n.clock.Now()
	res, err := n.sender.SendMessage(ctx, n.cfg.Target, text)
	elapsed := n.clock.Since(start)

	entry := journal.Entry{
		OccurredAt: n.clock.Now(),
		Kind:       journal.KindNotify,
		Detail:     string(ev.Action) + " " + ev.Employee,
		Target:     res.ChatID,
		Strategy:   res.Strategy,
		Duration:   elapsed,
	}
	if entry.Target == "" {
		entry.Target = n.cfg.Target
	}

	if err != nil {
		n.failed.Add(1)
		entry.Error = err.Error()
		n.logger.Error("attendance notification failed",
			"employee", ev.Employee,
			"action", ev.Action,
			"error", err,
		)
	} else {
		n.sent.Add(1)
		n.logger.Info("attendance notification sent",
			"employee", ev.Employee,
			"action", ev.Action,
			"chat", res.ChatID,
			"strategy", res.Strategy,
			"attempts", res.Attempts,
		)
	}

	if n.journal != nil {
		n.journal.Record(entry)
	}
}
