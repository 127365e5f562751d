package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lurkd/lurkd/internal/domain"
	"github.com/lurkd/lurkd/internal/domain/listing"
	"github.com/lurkd/lurkd/internal/gateway"
)

const pageSize = 25

// GatewayClient adapts the proxy into the cache's Fetcher and the voter's
// VoteSender. A nil session browses anonymously; votes then fail with
// ErrUnauthenticated before any network call.
type GatewayClient struct {
	proxy *gateway.Proxy
	sess  *domain.Session
}

// NewGatewayClient binds a proxy and an optional session.
func NewGatewayClient(proxy *gateway.Proxy, sess *domain.Session) *GatewayClient {
	return &GatewayClient{proxy: proxy, sess: sess}
}

var (
	_ Fetcher    = (*GatewayClient)(nil)
	_ VoteSender = (*GatewayClient)(nil)
)

// Authenticated reports whether a session with a usable token is bound.
func (g *GatewayClient) Authenticated() bool {
	return g.sess != nil && g.sess.Token.AccessToken != ""
}

// FetchPage loads one listing page for key.
func (g *GatewayClient) FetchPage(ctx context.Context, key Key, after string) (*listing.Page, error) {
	query := url.Values{"limit": {strconv.Itoa(pageSize)}}
	if after != "" {
		query.Set("after", after)
	}
	if key.TimeFilter != "" {
		query.Set("t", key.TimeFilter)
	}

	path := fmt.Sprintf("/r/%s/%s.json", key.Resource, key.Sort)
	res, err := g.proxy.Forward(ctx, g.sess, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	if res.Status != http.StatusOK {
		return nil, &domain.UpstreamError{Status: res.Status}
	}
	return listing.Decode(res.Body)
}

// SendVote issues the upstream vote call.
func (g *GatewayClient) SendVote(ctx context.Context, id string, direction int) error {
	if g.sess == nil {
		return domain.ErrUnauthenticated
	}
	form := url.Values{
		"id":  {id},
		"dir": {strconv.Itoa(direction)},
	}
	res, err := g.proxy.Forward(ctx, g.sess, http.MethodPost, "/api/vote", nil, form)
	if err != nil {
		return err
	}
	if res.Status != http.StatusOK {
		return &domain.UpstreamError{Status: res.Status}
	}
	return nil
}
