package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	strategyDirect     = "direct"
	strategyChatLookup = "chat-lookup"
	strategyChatScan   = "chat-scan"
)

// SendMessage delivers text to target, retrying transient failures.
func (m *manager) SendMessage(ctx context.Context, target, text string) (SendResult, error) {
	start := m.clock.Now()
	res, err := m.sendMessage(ctx, target, text)
	elapsed := m.clock.Since(start)
	for _, o := range m.observers {
		o.SendCompleted(target, res, err, elapsed)
	}
	return res, err
}

func (m *manager) sendMessage(ctx context.Context, target, text string) (SendResult, error) {
	chatID := ResolveTarget(target, m.cfg.IndividualSuffix, m.cfg.GroupSuffix)

	var (
		lastErr  error
		attempts int
	)
	for attempt := 0; attempt <= m.cfg.SendRetries; attempt++ {
		if attempt > 0 && m.cfg.SendRetryDelay > 0 {
			if err := m.sleep(ctx, m.cfg.SendRetryDelay); err != nil {
				lastErr = errors.Join(lastErr, err)
				break
			}
		}

		s, err := m.readySession()
		if err != nil {
			if attempt == 0 {
				return SendResult{}, err
			}
			lastErr = err
			break
		}
		if attempt == 0 {
			if err := m.probe(ctx, s); err != nil {
				return SendResult{}, err
			}
		}

		attempts++
		strategy, err := m.deliver(ctx, s, chatID, text)
		if err == nil {
			now := m.clock.Now()
			m.mu.Lock()
			m.lastSendAt = now
			m.notifyLocked()
			m.mu.Unlock()
			m.logger.Info("message sent", "chat_id", chatID, "strategy", strategy, "attempts", attempts)
			return SendResult{ChatID: chatID, Strategy: strategy, Attempts: attempts, SentAt: now}, nil
		}
		lastErr = err

		if ClassifyError(err) == ErrorCritical {
			m.logger.Error("critical send failure, replacing client", "chat_id", chatID, "error", err)
			m.abandonSession(s, &CriticalError{Cause: err})
			return SendResult{}, &SendError{Target: chatID, Attempts: attempts, Cause: &CriticalError{Cause: err}}
		}
		if ctx.Err() != nil {
			break
		}
		m.logger.Warn("send attempt failed",
			"chat_id", chatID,
			"attempt", attempts,
			"max_attempts", m.cfg.SendRetries+1,
			"error", err,
		)
	}
	return SendResult{}, &SendError{Target: chatID, Attempts: attempts, Cause: lastErr}
}

// readySession returns the live session if the manager is READY.
func (m *manager) readySession() (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady || m.sess == nil {
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, m.state)
	}
	return m.sess, nil
}

// probe checks state and identity in parallel. On failure the manager
// leaves READY and schedules a restart before the error is returned.
func (m *manager) probe(ctx context.Context, s *session) error {
	pctx, cancel := m.clock.WithTimeout(ctx, m.cfg.HealthProbeTimeout)
	defer cancel()

	var state ConnState
	g, gctx := errgroup.WithContext(pctx)
	g.Go(func() error {
		cs, err := s.client.GetConnectionState(gctx)
		if err != nil {
			return fmt.Errorf("query connection state: %w", err)
		}
		state = cs
		return nil
	})
	g.Go(func() error {
		if _, err := s.client.GetIdentity(gctx); err != nil {
			return fmt.Errorf("query identity: %w", err)
		}
		return nil
	})
	err := g.Wait()
	if err == nil && state != ConnConnected {
		err = fmt.Errorf("connection state is %s", state)
	}
	if err == nil {
		return nil
	}

	m.logger.Warn("health probe failed", "error", err)
	var orphan ChatClient
	m.mu.Lock()
	if m.sess == s && m.state == StateReady {
		m.lastError = "health check failed: " + err.Error()
		m.transitionLocked(StateDisconnected)
		orphan = m.scheduleRestartLocked(m.cfg.DisconnectRestartDelay)
	}
	m.mu.Unlock()
	m.destroyClient(orphan)
	return fmt.Errorf("%w: %v", ErrUnhealthySession, err)
}

type deliveryStrategy struct {
	name string
	send func(ctx context.Context) error
}

// deliver tries each strategy in order and stops at the first success. The
// joined error is classified by the caller once every strategy has failed.
func (m *manager) deliver(ctx context.Context, s *session, chatID, text string) (string, error) {
	strategies := []deliveryStrategy{
		{strategyDirect, func(ctx context.Context) error {
			return s.client.SendMessage(ctx, chatID, text)
		}},
		{strategyChatLookup, func(ctx context.Context) error {
			chat, err := s.client.GetChat(ctx, chatID)
			if err != nil {
				return err
			}
			if chat == nil {
				return fmt.Errorf("chat %s not found", chatID)
			}
			return chat.Send(ctx, text)
		}},
		{strategyChatScan, func(ctx context.Context) error {
			chats, err := s.client.ListChats(ctx)
			if err != nil {
				return err
			}
			for _, c := range chats {
				if c.ID() == chatID {
					return c.Send(ctx, text)
				}
			}
			return fmt.Errorf("chat %s not among %d known chats", chatID, len(chats))
		}},
	}

	var errs []error
	for _, st := range strategies {
		sctx, cancel := m.clock.WithTimeout(ctx, m.cfg.StrategyTimeout)
		err := st.send(sctx)
		cancel()
		if err == nil {
			return st.name, nil
		}
		m.logger.Debug("delivery strategy failed", "strategy", st.name, "chat_id", chatID, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.Join(errs...)
}

// abandonSession replaces the client after a critical failure seen outside
// the event stream.
func (m *manager) abandonSession(s *session, cause error) {
	var old ChatClient
	m.mu.Lock()
	if m.sess == s && m.state.active() {
		old = m.failLocked(cause)
	}
	m.mu.Unlock()
	m.destroyClient(old)
}

func (m *manager) sleep(ctx context.Context, d time.Duration) error {
	t := m.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
