package connection

import "time"

// Observer receives lifecycle notifications. Callbacks run while the manager
// holds its lock and must return quickly without calling back into it.
type Observer interface {
	StateChanged(from, to State, status Status)
	RestartScheduled(attempt int, delay time.Duration)
	SendCompleted(target string, result SendResult, err error, elapsed time.Duration)
}
