package model

import "time"

// AccessToken is an OAuth bearer token with its absolute expiry.
type AccessToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be used at the given instant.
// There is no early refresh margin.
func (t *AccessToken) Valid(now time.Time) bool {
	return t != nil && t.Token != "" && now.Before(t.ExpiresAt)
}
