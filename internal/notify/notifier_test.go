package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/attendance-notify/internal/connection"
	"github.com/rickgao/attendance-notify/internal/journal"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	targets []string
	err     error
	block   chan struct{}
}

func (s *fakeSender) SendMessage(ctx context.Context, target, text string) (connection.SendResult, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return connection.SendResult{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return connection.SendResult{}, s.err
	}
	s.sent = append(s.sent, text)
	s.targets = append(s.targets, target)
	return connection.SendResult{ChatID: "team@g.us", Strategy: "direct", Attempts: 1}, nil
}

func (s *fakeSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *fakeJournal) Record(e journal.Entry) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return true
}

func (j *fakeJournal) all() []journal.Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journal.Entry(nil), j.entries...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Target = "team"
	cfg.Location = time.UTC
	return cfg
}

func TestRender(t *testing.T) {
	ev := AttendanceEvent{
		Employee: " Alice ",
		Action:   ActionLogin,
		At:       time.Date(2024, 3, 1, 14, 5, 0, 0, time.UTC),
	}
	assert.Equal(t, "Alice in at 2:05 PM", Render("{name} in at {time}", ev, time.UTC))

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "11:05 PM", Render("{time}", ev, tokyo))
}

func TestAttendanceEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ev      AttendanceEvent
		wantErr bool
	}{
		{"login", AttendanceEvent{Employee: "Alice", Action: ActionLogin}, false},
		{"logout", AttendanceEvent{Employee: "Bob", Action: ActionLogout}, false},
		{"blank employee", AttendanceEvent{Employee: "  ", Action: ActionLogin}, true},
		{"bad action", AttendanceEvent{Employee: "Alice", Action: "lunch"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNotifier_SendsRenderedMessages(t *testing.T) {
	sender := &fakeSender{}
	j := &fakeJournal{}
	n := New(testConfig(), sender, discardLogger(), WithJournal(j))
	require.NoError(t, n.Start(context.Background()))

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, n.Notify(AttendanceEvent{Employee: "Alice", Action: ActionLogin, At: at}))
	require.NoError(t, n.Stop(context.Background()))

	assert.Equal(t, []string{"✅ Alice logged in at 9:00 AM"}, sender.messages())
	assert.Equal(t, []string{"team"}, sender.targets)

	entries := j.all()
	require.Len(t, entries, 1)
	assert.Equal(t, journal.KindNotify, entries[0].Kind)
	assert.Equal(t, "team@g.us", entries[0].Target)
	assert.Equal(t, "login Alice", entries[0].Detail)
	assert.Empty(t, entries[0].Error)

	stats := n.Stats()
	assert.Equal(t, int64(1), stats.Queued)
	assert.Equal(t, int64(1), stats.Sent)
}

func TestNotifier_FillsMissingTimestamp(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 1, 17, 30, 0, 0, time.UTC))
	sender := &fakeSender{}
	n := New(testConfig(), sender, discardLogger(), WithClock(mock))
	require.NoError(t, n.Start(context.Background()))

	require.NoError(t, n.Notify(AttendanceEvent{Employee: "Bob", Action: ActionLogout}))
	require.NoError(t, n.Stop(context.Background()))

	assert.Equal(t, []string{"👋 Bob logged out at 5:30 PM"}, sender.messages())
}

func TestNotifier_SendFailureIsJournaled(t *testing.T) {
	sender := &fakeSender{err: connection.ErrNotReady}
	j := &fakeJournal{}
	n := New(testConfig(), sender, discardLogger(), WithJournal(j))
	require.NoError(t, n.Start(context.Background()))

	require.NoError(t, n.Notify(AttendanceEvent{Employee: "Alice", Action: ActionLogin, At: time.Now()}))
	require.NoError(t, n.Stop(context.Background()))

	entries := j.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "team", entries[0].Target)
	assert.Contains(t, entries[0].Error, "not ready")
	assert.Equal(t, int64(1), n.Stats().Failed)
}

func TestNotifier_QueueFullDropsWithoutBlocking(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	n := New(cfg, sender, discardLogger())
	require.NoError(t, n.Start(context.Background()))

	ev := AttendanceEvent{Employee: "Alice", Action: ActionLogin, At: time.Now()}

	// one event held by the worker, one in the queue, the rest dropped
	require.NoError(t, n.Notify(ev))
	require.Eventually(t, func() bool { return len(n.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, n.Notify(ev))

	done := make(chan error, 1)
	go func() { done <- n.Notify(ev) }()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrQueueFull))
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	assert.Equal(t, int64(1), n.Stats().Dropped)

	close(sender.block)
	require.NoError(t, n.Stop(context.Background()))
	assert.Len(t, sender.messages(), 2)
}

func TestNotifier_RejectsAfterStop(t *testing.T) {
	n := New(testConfig(), &fakeSender{}, discardLogger())
	require.NoError(t, n.Start(context.Background()))
	require.NoError(t, n.Stop(context.Background()))
	require.NoError(t, n.Stop(context.Background()))

	err := n.Notify(AttendanceEvent{Employee: "Alice", Action: ActionLogin})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestNotifier_StopTimeoutCancelsSends(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	n := New(testConfig(), sender, discardLogger())
	require.NoError(t, n.Start(context.Background()))
	require.NoError(t, n.Notify(AttendanceEvent{Employee: "Alice", Action: ActionLogin}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, n.Stop(ctx), context.DeadlineExceeded)
	assert.Empty(t, sender.messages())
}

func TestNotifier_InvalidEvent(t *testing.T) {
	n := New(testConfig(), &fakeSender{}, discardLogger())
	require.NoError(t, n.Start(context.Background()))
	defer n.Stop(context.Background())

	assert.Error(t, n.Notify(AttendanceEvent{Action: ActionLogin}))
	assert.Equal(t, int64(0), n.Stats().Queued)
}
