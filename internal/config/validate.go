package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *NotifierConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.WhatsApp.StoreDialect {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("whatsapp.store_dialect must be sqlite3 or postgres, got %q", c.WhatsApp.StoreDialect)
	}
	if c.WhatsApp.StoreDSN == "" {
		return errors.New("whatsapp.store_dsn is required")
	}
	if c.WhatsApp.GroupTarget == "" {
		return errors.New("whatsapp.group_target is required")
	}
	if !strings.HasPrefix(c.WhatsApp.IndividualSuffix, "@") || !strings.HasPrefix(c.WhatsApp.GroupSuffix, "@") {
		return errors.New("whatsapp suffixes must start with @")
	}

	if err := c.Manager.validate(); err != nil {
		return err
	}

	if c.Notifier.Workers < 1 {
		return errors.New("notifier.workers must be >= 1")
	}
	if c.Notifier.QueueSize < 1 {
		return errors.New("notifier.queue_size must be >= 1")
	}
	if c.Notifier.SendTimeout <= 0 {
		return errors.New("notifier.send_timeout must be > 0")
	}
	if _, err := time.LoadLocation(c.Notifier.Timezone); err != nil {
		return fmt.Errorf("notifier.timezone: %w", err)
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (m *ManagerConfig) validate() error {
	if m.MaxRestartAttempts < 1 {
		return errors.New("manager.max_restart_attempts must be >= 1")
	}
	if m.SendRetries < 0 {
		return errors.New("manager.send_retries must be >= 0")
	}
	durations := []struct {
		name string
		v    time.Duration
	}{
		{"init_timeout", m.InitTimeout},
		{"qr_expiry", m.QRExpiry},
		{"identity_timeout", m.IdentityTimeout},
		{"health_probe_timeout", m.HealthProbeTimeout},
		{"state_query_timeout", m.StateQueryTimeout},
		{"strategy_timeout", m.StrategyTimeout},
		{"logout_timeout", m.LogoutTimeout},
		{"destroy_timeout", m.DestroyTimeout},
		{"init_timeout_restart_delay", m.InitTimeoutRestartDelay},
		{"auth_failure_restart_delay", m.AuthFailureRestartDelay},
		{"disconnect_restart_delay", m.DisconnectRestartDelay},
		{"error_restart_delay", m.ErrorRestartDelay},
	}
	for _, d := range durations {
		if d.v <= 0 {
			return fmt.Errorf("manager.%s must be > 0", d.name)
		}
	}
	if m.SendRetryDelay < 0 {
		return errors.New("manager.send_retry_delay must be >= 0")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
