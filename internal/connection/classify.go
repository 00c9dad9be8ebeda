package connection

import (
	"errors"
	"strings"
)

// ErrorClass tells the supervisor whether a failure can be retried in place
// or requires replacing the client.
type ErrorClass int

const (
	ErrorTransient ErrorClass = iota
	ErrorCritical
)

func (c ErrorClass) String() string {
	if c == ErrorCritical {
		return "critical"
	}
	return "transient"
}

// criticalSignatures are message fragments the chat library produces once its
// underlying session is beyond repair. Matched case-insensitively.
var criticalSignatures = []string{
	"session closed",
	"protocol error",
	"target closed",
	"execution context was destroyed",
	"evaluation failed",
	"serialize",
	"navigation",
	"browser has disconnected",
	"websocket not connected",
	"not logged in",
	"stream replaced",
	"connection closed",
}

// ClassifyError sorts err into transient or critical.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	if errors.Is(err, ErrCriticalSession) {
		return ErrorCritical
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range criticalSignatures {
		if strings.Contains(msg, sig) {
			return ErrorCritical
		}
	}
	return ErrorTransient
}
