package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of state transition an event log entry records.
type Action string

const (
	ActionEnter      Action = "enter"
	ActionExit       Action = "exit"
	ActionRegister   Action = "register"
	ActionUnregister Action = "unregister"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionEnter, ActionExit, ActionRegister, ActionUnregister:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// ActionFor maps the status a person moved into to the log action.
func ActionFor(s Status) Action {
	if s == StatusEntered {
		return ActionEnter
	}
	return ActionExit
}

// EventLogEntry is one append-only row of the event log.
type EventLogEntry struct {
	ID               string    `json:"id"`
	PersonExternalID string    `json:"person_external_id"`
	Timestamp        time.Time `json:"timestamp"`
	Action           Action    `json:"action"`
}

// NewEventLogEntry stamps an entry with a UUIDv7 id, which sorts by
// creation time.
func NewEventLogEntry(externalID string, action Action, at time.Time) EventLogEntry {
	return EventLogEntry{
		ID:               uuid.Must(uuid.NewV7()).String(),
		PersonExternalID: externalID,
		Timestamp:        at,
		Action:           action,
	}
}
