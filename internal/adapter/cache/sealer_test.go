package cache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	plaintext := []byte(`{"id":"sess-1","token":{"access_token":"secret"}}`)

	sealed, err := seal(key, plaintext)
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "secret")

	opened, err := open(key, sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestOpenRejectsTamperedPayload(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	sealed, err := seal(key, []byte("payload"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = open(key, sealed)
	require.ErrorIs(t, err, ErrSealedPayload)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	sealed, err := seal(bytes.Repeat([]byte{0x42}, 32), []byte("payload"))
	require.NoError(t, err)

	_, err = open(bytes.Repeat([]byte{0x43}, 32), sealed)
	require.ErrorIs(t, err, ErrSealedPayload)
}

func TestOpenRejectsShortPayload(t *testing.T) {
	_, err := open(bytes.Repeat([]byte{0x42}, 32), []byte{0x01, 0x02})
	require.ErrorIs(t, err, ErrSealedPayload)
}
