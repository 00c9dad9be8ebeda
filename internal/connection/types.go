package connection

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotReady              = errors.New("whatsapp client is not ready")
	ErrUnhealthySession      = errors.New("whatsapp session failed health check")
	ErrSendFailed            = errors.New("message send failed")
	ErrCriticalSession       = errors.New("critical session failure")
	ErrInitializationTimeout = errors.New("initialization timed out")
	ErrAlreadyRunning        = errors.New("whatsapp client already initializing or ready")
)

// SendError is returned by SendMessage once every delivery strategy and
// retry has been exhausted. It matches ErrSendFailed and unwraps to the
// last underlying cause.
type SendError struct {
	Target   string
	Attempts int
	Cause    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed after %d attempt(s): %v", e.Target, e.Attempts, e.Cause)
}

func (e *SendError) Unwrap() error { return e.Cause }

// Is reports ErrSendFailed so callers can use errors.Is without a type switch.
func (e *SendError) Is(target error) bool { return target == ErrSendFailed }

// CriticalError marks a failure whose message matched a fatal session
// signature. It matches ErrCriticalSession.
type CriticalError struct {
	Cause error
}

func (e *CriticalError) Error() string { return "critical session failure: " + e.Cause.Error() }

func (e *CriticalError) Unwrap() error { return e.Cause }

func (e *CriticalError) Is(target error) bool { return target == ErrCriticalSession }

// State is the lifecycle state of the connection manager.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateAuthenticated
	StateReady
	StateDisconnected
	StateAuthFailed
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitializing:
		return "INITIALIZING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateReady:
		return "READY"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateAuthFailed:
		return "AUTH_FAILED"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText lets State render by name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateUninitialized; st <= StateError; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// active reports whether the state belongs to a live client session.
func (s State) active() bool {
	return s == StateInitializing || s == StateAuthenticated || s == StateReady
}

// StopReason records why automatic restarts are suppressed.
type StopReason string

const (
	StopNone               StopReason = ""
	StopOperator           StopReason = "operator"
	StopSessionInvalidated StopReason = "session_invalidated"
	StopBudgetExhausted    StopReason = "restart_budget_exhausted"
)

// Identity is the account the client is logged in as.
type Identity struct {
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle"`
}

// Status is a point-in-time snapshot of the manager. Building one never
// touches the client.
type Status struct {
	State                State      `json:"state"`
	Ready                bool       `json:"ready"`
	Initializing         bool       `json:"initializing"`
	HasClient            bool       `json:"hasClient"`
	QRCode               *string    `json:"qrCode"`
	ConnectedIdentity    *Identity  `json:"connectedIdentity"`
	ManualStop           bool       `json:"manualStopFlag"`
	StopReason           StopReason `json:"stopReason,omitempty"`
	LastError            string     `json:"lastError,omitempty"`
	RestartAttempts      int        `json:"restartAttempts"`
	MaxRestartAttempts   int        `json:"maxRestartAttempts"`
	RestartPending       bool       `json:"restartPending"`
	LastSuccessfulSendAt *time.Time `json:"lastSuccessfulSendAt"`
}

// SendResult describes a delivered message.
type SendResult struct {
	ChatID   string    `json:"chatId"`
	Strategy string    `json:"strategy"`
	Attempts int       `json:"attempts"`
	SentAt   time.Time `json:"sentAt"`
}

// Recovery is the outcome of SoftRecover.
type Recovery string

const (
	RecoveryConnected    Recovery = "connected"
	RecoveryReconnecting Recovery = "reconnecting"
	RecoveryRestarted    Recovery = "restarted"
)

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	MaxRestartAttempts int // Automatic restarts allowed before manual intervention

	InitTimeout        time.Duration // Max time from start to ready
	QRExpiry           time.Duration // Lifetime of a pending QR code
	IdentityTimeout    time.Duration // Identity fetch after ready
	HealthProbeTimeout time.Duration // Pre-send state+identity probe
	StateQueryTimeout  time.Duration // Connection state query during soft recovery
	StrategyTimeout    time.Duration // Per delivery strategy
	LogoutTimeout      time.Duration // Client logout call
	DestroyTimeout     time.Duration // Client teardown

	SendRetries    int           // Additional attempts after the first
	SendRetryDelay time.Duration // Pause between send attempts

	// Base delays for the restart supervisor, doubled per attempt
	InitTimeoutRestartDelay time.Duration
	AuthFailureRestartDelay time.Duration
	DisconnectRestartDelay  time.Duration
	ErrorRestartDelay       time.Duration

	IndividualSuffix string // e.g. "@c.us"
	GroupSuffix      string // e.g. "@g.us"
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxRestartAttempts:      3,
		InitTimeout:             3 * time.Minute,
		QRExpiry:                60 * time.Second,
		IdentityTimeout:         10 * time.Second,
		HealthProbeTimeout:      8 * time.Second,
		StateQueryTimeout:       10 * time.Second,
		StrategyTimeout:         15 * time.Second,
		LogoutTimeout:           10 * time.Second,
		DestroyTimeout:          10 * time.Second,
		SendRetries:             2,
		SendRetryDelay:          3 * time.Second,
		InitTimeoutRestartDelay: 30 * time.Second,
		AuthFailureRestartDelay: 15 * time.Second,
		DisconnectRestartDelay:  10 * time.Second,
		ErrorRestartDelay:       10 * time.Second,
		IndividualSuffix:        "@c.us",
		GroupSuffix:             "@g.us",
	}
}
