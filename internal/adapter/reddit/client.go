// Package reddit encapsulates outbound HTTP calls to Reddit's OAuth2 and
// API endpoints. The gateway and session service never build upstream
// requests themselves; everything goes through this client.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lurkd/lurkd/internal/config"
	"github.com/lurkd/lurkd/internal/domain"
)

// Identity is the normalized profile returned by /api/v1/me.
type Identity struct {
	Username  string
	AvatarURL string
}

// Client performs OAuth grants and authenticated API calls against Reddit.
type Client interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (domain.TokenRecord, error)
	RefreshToken(ctx context.Context, record domain.TokenRecord) (domain.TokenRecord, error)
	AppToken(ctx context.Context) (domain.TokenRecord, error)
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)
	Do(ctx context.Context, method, path string, query url.Values, body io.Reader, accessToken string) (*http.Response, error)
}

// HTTPClient is the default implementation.
type HTTPClient struct {
	cfg        config.Config
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs the default Client. A nil http.Client gets a
// bounded-timeout default.
func NewHTTPClient(cfg config.Config, client *http.Client) *HTTPClient {
	if client == nil {
		timeout := cfg.UpstreamTimeout
		if timeout <= 0 {
			timeout = 12 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{cfg: cfg, httpClient: client}
}

// AuthorizeURL builds the provider's authorization redirect for the given
// state value.
func (c *HTTPClient) AuthorizeURL(state string) string {
	authURL, err := url.Parse(c.cfg.RedditAuthURL)
	if err != nil {
		return ""
	}
	params := authURL.Query()
	params.Set("client_id", c.cfg.RedditClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", c.cfg.RedditRedirectURI)
	params.Set("scope", strings.Join(c.cfg.RedditScopes, " "))
	params.Set("state", state)
	params.Set("duration", "permanent")
	authURL.RawQuery = params.Encode()
	return authURL.String()
}

// ExchangeCode performs the one-time authorization_code grant.
func (c *HTTPClient) ExchangeCode(ctx context.Context, code string) (domain.TokenRecord, error) {
	if strings.TrimSpace(code) == "" {
		return domain.TokenRecord{}, fmt.Errorf("authorization code missing")
	}
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.cfg.RedditRedirectURI)
	return c.tokenGrant(ctx, data, "")
}

// RefreshToken exchanges the record's refresh credential for a fresh access
// token. Providers may rotate the refresh token or omit it; when omitted the
// prior credential is carried forward into the new record.
func (c *HTTPClient) RefreshToken(ctx context.Context, record domain.TokenRecord) (domain.TokenRecord, error) {
	if !record.CanRefresh() {
		return domain.TokenRecord{}, domain.ErrMissingCredentials
	}
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", record.RefreshToken)
	return c.tokenGrant(ctx, data, record.RefreshToken)
}

// AppToken obtains an application-only token for anonymous reads. App-only
// tokens carry no refresh credential; they are simply re-requested on expiry.
func (c *HTTPClient) AppToken(ctx context.Context) (domain.TokenRecord, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	return c.tokenGrant(ctx, data, "")
}

// tokenGrant posts a client-authenticated grant to the token endpoint and
// builds a new TokenRecord from the response.
func (c *HTTPClient) tokenGrant(ctx context.Context, data url.Values, priorRefresh string) (domain.TokenRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RedditTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.RedditClientID, c.cfg.RedditClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("token request: %w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("read token response: %w: %w", domain.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.TokenRecord{}, &domain.UpstreamError{Status: resp.StatusCode}
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope"`
		Error        string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.TokenRecord{}, fmt.Errorf("decode token response: %w", err)
	}
	if payload.Error != "" || payload.AccessToken == "" {
		// Reddit reports grant errors with a 200 and an error field.
		return domain.TokenRecord{}, &domain.UpstreamError{Status: http.StatusBadRequest}
	}

	refresh := payload.RefreshToken
	if refresh == "" {
		refresh = priorRefresh
	}
	return domain.TokenRecord{
		AccessToken:  payload.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
		Scope:        payload.Scope,
	}, nil
}

// FetchIdentity loads the authenticated user's profile.
func (c *HTTPClient) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/api/v1/me", nil, nil, accessToken)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read identity: %w: %w", domain.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.UpstreamError{Status: resp.StatusCode}
	}

	var raw struct {
		Name    string `json:"name"`
		IconImg string `json:"icon_img"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("identity missing username")
	}
	return &Identity{Username: raw.Name, AvatarURL: stripQueryEscapes(raw.IconImg)}, nil
}

// Do issues one authenticated API call. The path must already have passed
// gateway validation; Do only concatenates it onto the configured base URL.
func (c *HTTPClient) Do(ctx context.Context, method, path string, query url.Values, body io.Reader, accessToken string) (*http.Response, error) {
	target := c.cfg.RedditAPIBaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build api request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api request: %w: %w", domain.ErrTransport, err)
	}
	return resp, nil
}

// stripQueryEscapes undoes Reddit's HTML-escaped avatar URLs (&amp; in query
// strings).
func stripQueryEscapes(s string) string {
	return strings.ReplaceAll(s, "&amp;", "&")
}
