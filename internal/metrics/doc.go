// Package metrics exports connection manager activity to Prometheus.
//
// Key metrics:
//   - Current connection state and restart attempts
//   - State transitions and scheduled restarts
//   - Messages sent by delivery strategy and outcome
//   - Send latency
package metrics
