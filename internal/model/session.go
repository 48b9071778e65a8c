package model

import (
	"fmt"
	"time"
)

// SessionStatus describes the lifecycle state of a session.
type SessionStatus string

const (
	// SessionActive is a session currently collecting finds.
	// At most one session may be active at a time per device.
	SessionActive SessionStatus = "active"
	// SessionComplete is an ended session.
	SessionComplete SessionStatus = "complete"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	return s == SessionActive || s == SessionComplete
}

// Session is a named temporal grouping of finds, typically one outing.
type Session struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// StartTime and EndTime are millisecond epoch timestamps.
	// EndTime is nil while the session is active.
	StartTime int64  `json:"start_time"`
	EndTime   *int64 `json:"end_time,omitempty"`

	Status SessionStatus `json:"status"`

	LocationName *string `json:"location_name,omitempty"`

	// Finds is the authoritative, insertion-ordered membership list.
	// Find.SessionID mirrors it on the other side; the session manager
	// keeps both in agreement.
	Finds []string `json:"finds"`
}

// Validate checks that the session can be stored.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if s.StartTime == 0 {
		return fmt.Errorf("%w: start_time is required", ErrValidation)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: unknown session status %q", ErrValidation, s.Status)
	}
	return nil
}

// Contains reports whether findID is in the membership list.
func (s *Session) Contains(findID string) bool {
	for _, id := range s.Finds {
		if id == findID {
			return true
		}
	}
	return false
}

// DefaultSessionName generates a display name from the time of day,
// e.g. "Morning Session".
func DefaultSessionName(t time.Time) string {
	switch h := t.Hour(); {
	case h < 5:
		return "Night Session"
	case h < 12:
		return "Morning Session"
	case h < 17:
		return "Afternoon Session"
	case h < 21:
		return "Evening Session"
	default:
		return "Night Session"
	}
}
