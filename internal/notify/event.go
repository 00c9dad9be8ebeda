package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action is what an employee did.
type Action string

const (
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
)

// AttendanceEvent is a single check-in or check-out.
type AttendanceEvent struct {
	Employee string    `json:"employee"`
	Action   Action    `json:"action"`
	At       time.Time `json:"at"`
}

// Validate checks the event is complete.
func (e AttendanceEvent) Validate() error {
	if strings.TrimSpace(e.Employee) == "" {
		return errors.New("employee is required")
	}
	switch e.Action {
	case ActionLogin, ActionLogout:
	default:
		return fmt.Errorf("unknown action %q", e.Action)
	}
	return nil
}

// TimeLayout is used for the {time} placeholder.
const TimeLayout = "3:04 PM"

// Render fills {name} and {time} in tmpl.
func Render(tmpl string, ev AttendanceEvent, loc *time.Location) string {
	at := ev.At
	if loc != nil {
		at = at.In(loc)
	}
	r := strings.NewReplacer(
		"{name}", strings.TrimSpace(ev.Employee),
		"{time}", at.Format(TimeLayout),
	)
	return r.Replace(tmpl)
}
