package domain

import "time"

// TokenRecord holds one issued access token and its refresh credential.
// A record is immutable once handed to a caller; refresh produces a new
// record rather than mutating one in place.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Valid reports whether the access token is usable at now, leaving skew
// headroom before the absolute expiry.
func (t TokenRecord) Valid(now time.Time, skew time.Duration) bool {
	if t.AccessToken == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-skew))
}

// CanRefresh reports whether the record carries a refresh credential.
func (t TokenRecord) CanRefresh() bool {
	return t.RefreshToken != ""
}
