package domain

import "time"

// Session is the server-held authentication state for one browser.
// It owns exactly one TokenRecord and is only ever resolved server-side;
// clients receive the token-free ClientSession projection.
type Session struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	AvatarURL string      `json:"avatar_url,omitempty"`
	Token     TokenRecord `json:"token"`
	CreatedAt time.Time   `json:"created_at"`
}

// ClientSession is the public-safe projection mirrored to the browser.
// It must never carry access or refresh tokens.
type ClientSession struct {
	Username        string `json:"username,omitempty"`
	AvatarURL       string `json:"avatarUrl,omitempty"`
	ExpiresAt       int64  `json:"expiresAt,omitempty"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// Project derives the client-visible view of the session.
func (s *Session) Project() ClientSession {
	if s == nil || s.Token.AccessToken == "" {
		return ClientSession{}
	}
	return ClientSession{
		Username:        s.Username,
		AvatarURL:       s.AvatarURL,
		ExpiresAt:       s.Token.ExpiresAt.Unix(),
		IsAuthenticated: true,
	}
}
