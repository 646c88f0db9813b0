package models

import (
	"fmt"
	"time"
)

// AccessAction is the closed set of auditable events.
type AccessAction string

const (
	ActionGranted      AccessAction = "granted"
	ActionRevoked      AccessAction = "revoked"
	ActionAccessed     AccessAction = "accessed"
	ActionAccessDenied AccessAction = "access-denied"
	ActionVerified     AccessAction = "verified"
)

// ParseAccessAction converts a stored string into an AccessAction, rejecting
// anything outside the closed set.
func ParseAccessAction(s string) (AccessAction, error) {
	switch a := AccessAction(s); a {
	case ActionGranted, ActionRevoked, ActionAccessed, ActionAccessDenied, ActionVerified:
		return a, nil
	default:
		return "", fmt.Errorf("unknown access action %q", s)
	}
}

// Valid reports whether a is one of the defined actions.
func (a AccessAction) Valid() bool {
	_, err := ParseAccessAction(string(a))
	return err == nil
}

func (a AccessAction) String() string { return string(a) }

// AccessLogEntry is one append-only audit record. Entries are never mutated
// and survive credential deletion (compliance retention).
type AccessLogEntry struct {
	ID           string
	CredentialID string
	AccessorID   string
	Action       AccessAction
	Success      bool
	SourceAddr   string
	UserAgent    string
	Timestamp    time.Time
	Metadata     map[string]string
}

// AccessStats aggregates a credential's audit trail, computed from the log
// at query time rather than kept as separate counters.
type AccessStats struct {
	TotalAccesses      int64
	SuccessfulAccesses int64
	ByAction           map[AccessAction]int64
}
