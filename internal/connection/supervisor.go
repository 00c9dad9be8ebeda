package connection

import (
	"context"
	"errors"
	"time"
)

// pump feeds one client's events into the dispatch table until the client
// is detached or its stream closes.
func (m *manager) pump(s *session) {
	events := s.client.Events()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.dispatch(s, ev)
		}
	}
}

func (m *manager) dispatch(s *session, ev Event) {
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		m.logger.Debug("dropping event from replaced client", "event", ev.Kind, "generation", s.gen)
		return
	}
	h, ok := s.handlers[ev.Kind]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("unhandled client event", "event", ev.Kind)
		return
	}
	after := h(s, ev)
	m.mu.Unlock()

	if after != nil {
		after()
	}
}

func (m *manager) onQRCode(_ *session, ev Event) func() {
	if m.state != StateInitializing {
		return nil
	}
	m.qrCode = ev.Payload
	m.timers.set(timerQRExpiry, m.cfg.QRExpiry, m.onQRExpiry)
	m.notifyLocked()
	m.logger.Info("qr code received, waiting for scan")
	return nil
}

func (m *manager) onAuthenticated(_ *session, _ Event) func() {
	if m.state != StateInitializing {
		return nil
	}
	m.transitionLocked(StateAuthenticated)
	return nil
}

func (m *manager) onReady(s *session, _ Event) func() {
	if m.state != StateInitializing && m.state != StateAuthenticated {
		return nil
	}
	m.markReadyLocked()
	return func() { go m.fetchIdentity(s) }
}

func (m *manager) onAuthFailure(_ *session, ev Event) func() {
	if !m.state.active() {
		return nil
	}
	m.lastError = "authentication failed: " + ev.Payload
	m.logger.Error("whatsapp authentication failed", "reason", ev.Payload)
	m.transitionLocked(StateAuthFailed)
	orphan := m.scheduleRestartLocked(m.cfg.AuthFailureRestartDelay)
	return m.destroyLater(orphan)
}

func (m *manager) onDisconnected(_ *session, ev Event) func() {
	if !m.state.active() {
		return nil
	}
	reason := ev.Payload
	if sessionInvalidated(reason) {
		m.stopReason = StopSessionInvalidated
		m.lastError = "session ended: " + reason
		m.logger.Warn("whatsapp session invalidated, manual start required", "reason", reason)
		m.transitionLocked(StateDisconnected)
		return m.destroyLater(m.detachLocked())
	}

	m.lastError = "disconnected: " + reason
	m.logger.Warn("whatsapp client disconnected", "reason", reason)
	m.transitionLocked(StateDisconnected)
	orphan := m.scheduleRestartLocked(m.cfg.DisconnectRestartDelay)
	return m.destroyLater(orphan)
}

func (m *manager) onError(_ *session, ev Event) func() {
	err := ev.Err
	if err == nil {
		err = errors.New(ev.Payload)
	}
	if ClassifyError(err) == ErrorTransient {
		m.logger.Warn("whatsapp client error", "error", err)
		m.lastError = err.Error()
		m.notifyLocked()
		return nil
	}
	if !m.state.active() {
		m.logger.Warn("critical client error while inactive", "error", err, "state", m.state)
		return nil
	}
	m.logger.Error("critical whatsapp client error, replacing client", "error", err)
	return m.destroyLater(m.failLocked(&CriticalError{Cause: err}))
}

func (m *manager) destroyLater(c ChatClient) func() {
	if c == nil {
		return nil
	}
	return func() { m.destroyClient(c) }
}

// fetchIdentity replaces the placeholder identity set on ready.
func (m *manager) fetchIdentity(s *session) {
	ctx, cancel := m.clock.WithTimeout(context.Background(), m.cfg.IdentityTimeout)
	id, err := s.client.GetIdentity(ctx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != s || m.state != StateReady {
		return
	}
	if err != nil {
		m.logger.Warn("identity fetch failed, keeping placeholder", "error", err)
		return
	}
	m.identity = &id
	m.notifyLocked()
	m.logger.Info("whatsapp client ready", "name", id.DisplayName, "handle", id.Handle)
}

// scheduleRestartLocked arms the restart timer with exponential backoff, or
// gives up once the budget is spent. When it gives up it detaches the client
// and returns it for destruction.
func (m *manager) scheduleRestartLocked(base time.Duration) ChatClient {
	if m.stopReason != StopNone {
		return nil
	}
	if m.restartAttempts >= m.cfg.MaxRestartAttempts {
		m.stopReason = StopBudgetExhausted
		m.timers.cancel(timerRestart)
		m.logger.Error("restart budget exhausted, manual start required",
			"attempts", m.restartAttempts,
		)
		old := m.detachLocked()
		m.notifyLocked()
		return old
	}

	m.restartAttempts++
	delay := base << (m.restartAttempts - 1)
	m.timers.set(timerRestart, delay, m.onRestartTimer)
	m.logger.Warn("restart scheduled",
		"attempt", m.restartAttempts,
		"max_attempts", m.cfg.MaxRestartAttempts,
		"delay", delay,
	)
	for _, o := range m.observers {
		o.RestartScheduled(m.restartAttempts, delay)
	}
	m.notifyLocked()
	return nil
}

func (m *manager) onRestartTimer(id uint64) {
	m.mu.Lock()
	if !m.timers.claim(timerRestart, id) || m.stopReason != StopNone {
		m.mu.Unlock()
		return
	}
	old := m.detachLocked()
	gen := m.beginInitLocked()
	attempt := m.restartAttempts
	m.mu.Unlock()

	m.logger.Info("restarting whatsapp client", "attempt", attempt)
	m.destroyClient(old)
	if err := m.initialize(context.Background(), gen); err != nil {
		m.logger.Error("restart failed", "attempt", attempt, "error", err)
	}
}

func (m *manager) onInitTimeout(id uint64) {
	m.mu.Lock()
	if !m.timers.claim(timerInitTimeout, id) {
		m.mu.Unlock()
		return
	}
	m.lastError = ErrInitializationTimeout.Error()
	m.logger.Error("whatsapp initialization timed out", "timeout", m.cfg.InitTimeout)
	m.transitionLocked(StateError)
	orphan := m.scheduleRestartLocked(m.cfg.InitTimeoutRestartDelay)
	m.mu.Unlock()

	m.destroyClient(orphan)
}

func (m *manager) onQRExpiry(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.timers.claim(timerQRExpiry, id) {
		return
	}
	m.qrCode = ""
	m.notifyLocked()
	m.logger.Info("qr code expired")
}
