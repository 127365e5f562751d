package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated signals that no session or token is present.
	ErrUnauthenticated = errors.New("session: unauthenticated")
	// ErrSessionExpired signals that the session's token could not be
	// renewed and the session has been destroyed.
	ErrSessionExpired = errors.New("session: expired")
	// ErrMissingCredentials signals a refresh attempt without a refresh token.
	ErrMissingCredentials = errors.New("token: refresh credentials missing")
	// ErrTransport wraps network-level failures talking to the provider.
	// Transport errors are retryable by the caller on the next request.
	ErrTransport = errors.New("token: transport failure")
)

// UpstreamError carries a non-2xx status returned by the provider.
// A 400 or 401 on a refresh grant is terminal for the session.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream rejected: status=%d", e.Status)
}

// Terminal reports whether the rejection invalidates the refresh credential.
func (e *UpstreamError) Terminal() bool {
	return e.Status == 400 || e.Status == 401
}
