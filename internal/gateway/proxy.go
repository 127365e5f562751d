// Package gateway is the single choke point between browser-facing handlers
// and Reddit's API. Every outbound call passes its path allow-list check,
// obtains a server-held token, and has its status mirrored back; tokens are
// redacted from every log line the gateway emits.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/lurkd/lurkd/internal/adapter/reddit"
	"github.com/lurkd/lurkd/internal/domain"
	"github.com/lurkd/lurkd/internal/redact"
	"github.com/lurkd/lurkd/internal/service/session"
)

// ErrUnsafePath signals a path that failed the upstream allow-list check.
// The caller responds with a generic 400; the detail stays in server logs.
var ErrUnsafePath = errors.New("gateway: unsafe upstream path")

// maxUpstreamBody caps relayed response bodies.
const maxUpstreamBody = 4 << 20

// Result is one relayed upstream response. Status is mirrored 1:1 from the
// provider, including 5xx, so callers can decide whether to retry.
type Result struct {
	Status      int
	Body        []byte
	ContentType string
}

// Proxy relays validated requests upstream with the service's own token.
type Proxy struct {
	client   reddit.Client
	sessions *session.Service
	logger   *zap.Logger
}

// NewProxy wires the gateway proxy.
func NewProxy(client reddit.Client, sessions *session.Service, logger *zap.Logger) *Proxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{client: client, sessions: sessions, logger: logger}
}

// Forward relays one request. The caller's own Authorization header is never
// forwarded; the session's server-held token is substituted, or the shared
// application-only token when no session is present. Validation and auth
// failures return before any network call.
func (p *Proxy) Forward(ctx context.Context, sess *domain.Session, method, path string, query url.Values, form url.Values) (*Result, error) {
	if !SafeUpstreamPath(path) {
		p.logger.Warn("rejected unsafe upstream path",
			zap.String("method", method),
			zap.String("path", redact.Value(path)))
		return nil, ErrUnsafePath
	}

	var token domain.TokenRecord
	var err error
	if sess != nil {
		token, err = p.sessions.GetValidToken(ctx, sess)
	} else {
		token, err = p.sessions.AppToken(ctx)
	}
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	resp, err := p.client.Do(ctx, method, path, query, body, token.AccessToken)
	if err != nil {
		p.logger.Error("upstream call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("error", redact.Error(err)))
		return nil, fmt.Errorf("forward %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w: %w", domain.ErrTransport, err)
	}

	if resp.StatusCode >= 400 {
		p.logger.Warn("upstream rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
	}

	return &Result{
		Status:      resp.StatusCode,
		Body:        payload,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
