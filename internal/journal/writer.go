package journal

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/attendance-notify/internal/connection"
)

// Entry kinds.
const (
	KindState   = "state"
	KindRestart = "restart"
	KindSend    = "send"
	KindNotify  = "notify"
)

// Entry is one journal row.
type Entry struct {
	ID         uuid.UUID
	OccurredAt time.Time
	Kind       string
	State      string
	Detail     string
	Target     string
	Strategy   string
	Error      string
	Duration   time.Duration
}

// DB is the subset of *pgxpool.Pool the writer needs.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config holds writer settings.
type Config struct {
	Instance      string
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// Metrics tracks writer statistics.
type Metrics struct {
	Inserts int64
	Dropped int64
	Errors  int64
	Flushes int64
}

// Writer batches entries into the whatsapp_events table.
type Writer struct {
	cfg    Config
	db     DB
	logger *slog.Logger

	input chan Entry

	batch   []Entry
	batchMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

var _ connection.Observer = (*Writer)(nil)

// NewWriter creates a new journal writer.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger.With("component", "journal"),
		input:  make(chan Entry, cfg.BufferSize),
		batch:  make([]Entry, 0, cfg.BatchSize),
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS whatsapp_events (
	id          UUID PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	instance    TEXT NOT NULL,
	kind        TEXT NOT NULL,
	state       TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	target      TEXT NOT NULL DEFAULT '',
	strategy    TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS whatsapp_events_occurred_at_idx ON whatsapp_events (occurred_at);
`

// EnsureSchema creates the journal table if it does not exist.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	_, err := w.db.Exec(ctx, schema)
	return err
}

// Start begins consuming entries.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains buffered entries and writes a final batch using ctx.
func (w *Writer) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
		return ctx.Err()
	}

	for {
		select {
		case e := <-w.input:
			w.append(e)
		default:
			w.flush(ctx)
			w.logger.Info("journal writer stopped")
			return nil
		}
	}
}

// Record queues an entry. Returns false if the buffer was full.
func (w *Writer) Record(e Entry) bool {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	select {
	case w.input <- e:
		return true
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		return false
	}
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// Pending returns the number of entries waiting to be batched.
func (w *Writer) Pending() int { return len(w.input) }

// StateChanged implements connection.Observer.
func (w *Writer) StateChanged(from, to connection.State, st connection.Status) {
	w.Record(Entry{
		Kind:   KindState,
		State:  to.String(),
		Detail: from.String() + " -> " + to.String(),
		Error:  st.LastError,
	})
}

// RestartScheduled implements connection.Observer.
func (w *Writer) RestartScheduled(attempt int, delay time.Duration) {
	w.Record(Entry{
		Kind:     KindRestart,
		Detail:   "attempt " + strconv.Itoa(attempt),
		Duration: delay,
	})
}

// SendCompleted implements connection.Observer.
func (w *Writer) SendCompleted(target string, res connection.SendResult, err error, elapsed time.Duration) {
	e := Entry{
		Kind:     KindSend,
		Target:   target,
		Strategy: res.Strategy,
		Duration: elapsed,
	}
	if err != nil {
		e.Error = err.Error()
	}
	w.Record(e)
}

func (w *Writer) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case e := <-w.input:
			if w.append(e) {
				w.flush(w.ctx)
			}
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// append adds e to the pending batch and reports whether it is full.
func (w *Writer) append(e Entry) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, e)
	return len(w.batch) >= w.cfg.BatchSize
}

func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of batch
	batch := w.batch
	w.batch = make([]Entry, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("journal insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed journal entries",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

func (w *Writer) batchInsert(ctx context.Context, rows []Entry) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO whatsapp_events (id, occurred_at, instance, kind, state, detail, target, strategy, error, duration_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.OccurredAt, w.cfg.Instance, r.Kind, r.State, r.Detail, r.Target, r.Strategy, r.Error, r.Duration.Milliseconds())
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
