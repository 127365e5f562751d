package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRecordValid(t *testing.T) {
	now := time.Now()
	skew := time.Minute

	record := TokenRecord{AccessToken: "tok", ExpiresAt: now.Add(time.Hour)}
	require.True(t, record.Valid(now, skew))

	// Inside the skew window the token counts as expiring.
	record.ExpiresAt = now.Add(30 * time.Second)
	require.False(t, record.Valid(now, skew))

	record.ExpiresAt = now.Add(-time.Hour)
	require.False(t, record.Valid(now, skew))

	empty := TokenRecord{ExpiresAt: now.Add(time.Hour)}
	require.False(t, empty.Valid(now, skew))
}

func TestSessionProject(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	s := &Session{
		ID:        "sess-1",
		Username:  "spez",
		AvatarURL: "https://img/avatar.png",
		Token: TokenRecord{
			AccessToken:  "secret-access",
			RefreshToken: "secret-refresh",
			ExpiresAt:    expires,
		},
	}

	view := s.Project()
	require.True(t, view.IsAuthenticated)
	require.Equal(t, "spez", view.Username)
	require.Equal(t, expires.Unix(), view.ExpiresAt)

	var nilSession *Session
	require.False(t, nilSession.Project().IsAuthenticated)

	anonymous := &Session{ID: "sess-2"}
	require.False(t, anonymous.Project().IsAuthenticated)
}
