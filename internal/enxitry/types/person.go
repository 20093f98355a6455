package types

import (
	"fmt"
	"strings"
)

// Status is a person's presence in the room.
type Status string

const (
	StatusEntered Status = "entered"
	StatusExited  Status = "exited"
)

// ParseStatus accepts the persisted cell value in any letter case.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusEntered:
		return StatusEntered, nil
	case StatusExited:
		return StatusExited, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Toggled returns the status a tap moves the person into.
func (s Status) Toggled() Status {
	if s == StatusEntered {
		return StatusExited
	}
	return StatusEntered
}

// Person is a card holder known to the room.
type Person struct {
	ExternalID string `json:"external_id"`
	CardID     string `json:"card_id"`
	Name       string `json:"name"`
	Status     Status `json:"status"`
}

// RecognizedCredential is what the recognizer read off one camera frame.
type RecognizedCredential struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}
