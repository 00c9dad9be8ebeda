package config

import (
	"time"

	"github.com/rickgao/attendance-notify/internal/connection"
)

// NotifierConfig is the root configuration for a notifier instance.
type NotifierConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Manager  ManagerConfig  `yaml:"manager"`
	Notifier NotifyConfig   `yaml:"notifier"`
	Journal  JournalConfig  `yaml:"journal"`
	HTTP     HTTPConfig     `yaml:"http"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this notifier.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// WhatsAppConfig holds the chat client and session store settings.
type WhatsAppConfig struct {
	StoreDialect     string `yaml:"store_dialect"` // "sqlite3" or "postgres"
	StoreDSN         string `yaml:"store_dsn"`     // e.g. file:whatsapp.db?_foreign_keys=on
	DeviceName       string `yaml:"device_name"`   // Shown under linked devices on the phone
	GroupTarget      string `yaml:"group_target"`  // Chat that receives attendance notifications
	IndividualSuffix string `yaml:"individual_suffix"`
	GroupSuffix      string `yaml:"group_suffix"`
	AutoStart        bool   `yaml:"auto_start"` // Start the client when the service boots
}

// ManagerConfig holds connection manager timeouts and restart policy.
type ManagerConfig struct {
	MaxRestartAttempts      int           `yaml:"max_restart_attempts"`
	InitTimeout             time.Duration `yaml:"init_timeout"`
	QRExpiry                time.Duration `yaml:"qr_expiry"`
	IdentityTimeout         time.Duration `yaml:"identity_timeout"`
	HealthProbeTimeout      time.Duration `yaml:"health_probe_timeout"`
	StateQueryTimeout       time.Duration `yaml:"state_query_timeout"`
	StrategyTimeout         time.Duration `yaml:"strategy_timeout"`
	LogoutTimeout           time.Duration `yaml:"logout_timeout"`
	DestroyTimeout          time.Duration `yaml:"destroy_timeout"`
	SendRetries             int           `yaml:"send_retries"`
	SendRetryDelay          time.Duration `yaml:"send_retry_delay"`
	InitTimeoutRestartDelay time.Duration `yaml:"init_timeout_restart_delay"`
	AuthFailureRestartDelay time.Duration `yaml:"auth_failure_restart_delay"`
	DisconnectRestartDelay  time.Duration `yaml:"disconnect_restart_delay"`
	ErrorRestartDelay       time.Duration `yaml:"error_restart_delay"`
}

// NotifyConfig holds attendance notification settings.
type NotifyConfig struct {
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	Timezone       string `yaml:"timezone"`
	LoginTemplate  string `yaml:"login_template"`  // {name} and {time} are substituted
	LogoutTemplate string `yaml:"logout_template"` // {name} and {time} are substituted

	// SendTimeout bounds one notification including every send retry.
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// JournalConfig holds the Postgres event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HTTPConfig holds the admin API server settings.
type HTTPConfig struct {
	Port            int           `yaml:"port"`
	AdminToken      string        `yaml:"admin_token"` // Bearer token for /api; empty disables auth
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ConnectionConfig converts the manager and addressing sections.
func (c *NotifierConfig) ConnectionConfig() connection.ManagerConfig {
	m := c.Manager
	return connection.ManagerConfig{
		MaxRestartAttempts:      m.MaxRestartAttempts,
		InitTimeout:             m.InitTimeout,
		QRExpiry:                m.QRExpiry,
		IdentityTimeout:         m.IdentityTimeout,
		HealthProbeTimeout:      m.HealthProbeTimeout,
		StateQueryTimeout:       m.StateQueryTimeout,
		StrategyTimeout:         m.StrategyTimeout,
		LogoutTimeout:           m.LogoutTimeout,
		DestroyTimeout:          m.DestroyTimeout,
		SendRetries:             m.SendRetries,
		SendRetryDelay:          m.SendRetryDelay,
		InitTimeoutRestartDelay: m.InitTimeoutRestartDelay,
		AuthFailureRestartDelay: m.AuthFailureRestartDelay,
		DisconnectRestartDelay:  m.DisconnectRestartDelay,
		ErrorRestartDelay:       m.ErrorRestartDelay,
		IndividualSuffix:        c.WhatsApp.IndividualSuffix,
		GroupSuffix:             c.WhatsApp.GroupSuffix,
	}
}
