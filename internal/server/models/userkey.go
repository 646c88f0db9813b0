package models

import "time"

// UserKey is a per-user symmetric encryption key as stored at rest. The raw
// key material is wrapped under the custodian KEK; Wrapped/Nonce/Tag have the
// cryptox.Encrypt layout. Exactly one live key exists per user; deleting it
// makes every credential encrypted under it permanently unreadable.
type UserKey struct {
	UserID    string
	Wrapped   []byte
	Nonce     []byte
	Tag       []byte
	CreatedAt time.Time
}
