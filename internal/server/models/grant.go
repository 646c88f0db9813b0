package models

import "time"

// AccessGrant authorizes one named third party to read one credential's
// decrypted payload within a time window, via an opaque bearer token.
//
// Lifecycle: issued -> expired (derived from ExpiresAt, never stored as a
// transition) or issued -> revoked (explicit, terminal). Grants are never
// re-scoped; a new grant is issued instead.
type AccessGrant struct {
	ID           string
	CredentialID string
	GrantedBy    string
	GrantedTo    string
	Token        string
	Purpose      string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Revoked      bool
	RevokedAt    *time.Time
}

// Usable reports whether the grant authorizes access at the given instant.
// A revoked grant is never usable regardless of remaining time-to-expiry.
func (g *AccessGrant) Usable(now time.Time) bool {
	return !g.Revoked && !now.After(g.ExpiresAt)
}
