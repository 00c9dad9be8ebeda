package config

import (
	"time"

	"github.com/rickgao/attendance-notify/internal/connection"
)

// Default values for optional configuration fields.
const (
	DefaultStoreDialect        = "sqlite3"
	DefaultStoreDSN            = "file:whatsapp.db?_foreign_keys=on"
	DefaultDeviceName          = "Attendance Notifier"
	DefaultNotifyWorkers       = 2
	DefaultNotifyQueueSize     = 256
	DefaultTimezone            = "Local"
	DefaultLoginTemplate       = "✅ {name} logged in at {time}"
	DefaultLogoutTemplate      = "👋 {name} logged out at {time}"
	DefaultNotifySendTimeout   = 2 * time.Minute
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 4
	DefaultMinConns            = 1
	DefaultJournalBatchSize    = 100
	DefaultJournalFlush        = 2 * time.Second
	DefaultJournalBufferSize   = 1000
	DefaultHTTPPort            = 8085
	DefaultHTTPShutdownTimeout = 10 * time.Second
	DefaultMetricsPath         = "/metrics"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

func (c *NotifierConfig) applyDefaults() {
	// WhatsApp defaults
	if c.WhatsApp.StoreDialect == "" {
		c.WhatsApp.StoreDialect = DefaultStoreDialect
	}
	if c.WhatsApp.StoreDSN == "" && c.WhatsApp.StoreDialect == DefaultStoreDialect {
		c.WhatsApp.StoreDSN = DefaultStoreDSN
	}
	if c.WhatsApp.DeviceName == "" {
		c.WhatsApp.DeviceName = DefaultDeviceName
	}

	// Manager defaults come from the connection package
	applyManagerDefaults(&c.Manager, &c.WhatsApp)

	// Notifier defaults
	if c.Notifier.Workers == 0 {
		c.Notifier.Workers = DefaultNotifyWorkers
	}
	if c.Notifier.QueueSize == 0 {
		c.Notifier.QueueSize = DefaultNotifyQueueSize
	}
	if c.Notifier.Timezone == "" {
		c.Notifier.Timezone = DefaultTimezone
	}
	if c.Notifier.LoginTemplate == "" {
		c.Notifier.LoginTemplate = DefaultLoginTemplate
	}
	if c.Notifier.LogoutTemplate == "" {
		c.Notifier.LogoutTemplate = DefaultLogoutTemplate
	}
	if c.Notifier.SendTimeout == 0 {
		c.Notifier.SendTimeout = DefaultNotifySendTimeout
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultJournalBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultJournalFlush
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultJournalBufferSize
	}

	// HTTP defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = DefaultHTTPShutdownTimeout
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyManagerDefaults(m *ManagerConfig, wa *WhatsAppConfig) {
	d := connection.DefaultManagerConfig()
	setInt := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	setDur := func(v *time.Duration, def time.Duration) {
		if *v == 0 {
			*v = def
		}
	}

	setInt(&m.MaxRestartAttempts, d.MaxRestartAttempts)
	setInt(&m.SendRetries, d.SendRetries)
	setDur(&m.InitTimeout, d.InitTimeout)
	setDur(&m.QRExpiry, d.QRExpiry)
	setDur(&m.IdentityTimeout, d.IdentityTimeout)
	setDur(&m.HealthProbeTimeout, d.HealthProbeTimeout)
	setDur(&m.StateQueryTimeout, d.StateQueryTimeout)
	setDur(&m.StrategyTimeout, d.StrategyTimeout)
	setDur(&m.LogoutTimeout, d.LogoutTimeout)
	setDur(&m.DestroyTimeout, d.DestroyTimeout)
	setDur(&m.SendRetryDelay, d.SendRetryDelay)
	setDur(&m.InitTimeoutRestartDelay, d.InitTimeoutRestartDelay)
	setDur(&m.AuthFailureRestartDelay, d.AuthFailureRestartDelay)
	setDur(&m.DisconnectRestartDelay, d.DisconnectRestartDelay)
	setDur(&m.ErrorRestartDelay, d.ErrorRestartDelay)

	if wa.IndividualSuffix == "" {
		wa.IndividualSuffix = d.IndividualSuffix
	}
	if wa.GroupSuffix == "" {
		wa.GroupSuffix = d.GroupSuffix
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
