package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lurkd/lurkd/internal/adapter/reddit"
	"github.com/lurkd/lurkd/internal/config"
	"github.com/lurkd/lurkd/internal/domain"
	"github.com/lurkd/lurkd/internal/gateway"
	httptransport "github.com/lurkd/lurkd/internal/http"
	"github.com/lurkd/lurkd/internal/http/handler"
	"github.com/lurkd/lurkd/internal/middleware"
	"github.com/lurkd/lurkd/internal/service/session"
)

const testOrigin = "http://localhost:8080"

const emptyListing = `{"kind":"Listing","data":{"after":null,"children":[]}}`

type harness struct {
	router   *gin.Engine
	store    *memoryStore
	states   *memoryStates
	upstream *httptest.Server
}

// newHarness wires the full router against an httptest upstream that plays
// Reddit: token endpoint, identity endpoint, and whatever extra the test
// registers.
func newHarness(t *testing.T, upstream http.HandlerFunc) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		Environment:        "development",
		PublicOrigin:       testOrigin,
		RedditClientID:     "client",
		RedditClientSecret: "secret",
		RedditAuthURL:      "https://www.reddit.com/api/v1/authorize",
		RedditTokenURL:     srv.URL + "/token",
		RedditAPIBaseURL:   srv.URL,
		RedditRedirectURI:  testOrigin + "/auth/callback",
		RedditScopes:       []string{"identity", "read", "vote"},
		UserAgent:          "web:lurkd:test",
		SessionTTL:         time.Hour,
		RefreshSkew:        time.Minute,
		UpstreamTimeout:    5 * time.Second,
	}

	store := newMemoryStore()
	states := newMemoryStates()
	client := reddit.NewHTTPClient(cfg, nil)
	sessions := session.NewService(store, states, client, cfg, zap.NewNop())
	proxy := gateway.NewProxy(client, sessions, zap.NewNop())

	router := httptransport.NewRouter(httptransport.RouterParams{
		Config:   cfg,
		Logger:   zap.NewNop(),
		Sessions: sessions,
		Auth:     handler.NewAuthHandler(sessions, cfg, zap.NewNop()),
		Reddit:   handler.NewRedditHandler(proxy, zap.NewNop()),
	})

	return &harness{router: router, store: store, states: states, upstream: srv}
}

func (h *harness) seedSession(t *testing.T) *domain.Session {
	t.Helper()
	sess := &domain.Session{
		ID:       "sess-1",
		Username: "lurker",
		Token: domain.TokenRecord{
			AccessToken:  "user-token",
			RefreshToken: "refresh",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, h.store.Save(context.Background(), sess))
	return sess
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(id string) *http.Cookie {
	return &http.Cookie{Name: middleware.SessionCookieName, Value: id}
}

func TestLoginRedirectsToAuthorize(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	location := rec.Header().Get("Location")
	require.Contains(t, location, "https://www.reddit.com/api/v1/authorize")
	require.Contains(t, location, "state=")
	require.Contains(t, location, "duration=permanent")
	require.NotEmpty(t, h.states.last)
}

func TestCallbackCreatesSessionAndSetsCookie(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Write([]byte(`{"access_token":"fresh","refresh_token":"rt","expires_in":3600}`))
		case "/api/v1/me":
			w.Write([]byte(`{"name":"lurker","icon_img":"https://img/a.png"}`))
		}
	})

	// Establish a state first, as the login leg would.
	rec := h.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	state := h.states.last

	rec = h.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+state, nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)
	require.NotEmpty(t, cookie.Value)
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=forged", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionInfoProjectsWithoutTokens(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := h.seedSession(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(sessionCookie(sess.ID))
	rec := h.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.NotContains(t, body, "user-token")
	require.NotContains(t, body, "refresh")

	var view struct {
		Username        string `json:"username"`
		IsAuthenticated bool   `json:"isAuthenticated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.True(t, view.IsAuthenticated)
	require.Equal(t, "lurker", view.Username)
}

func TestSessionInfoAnonymous(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		IsAuthenticated bool `json:"isAuthenticated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.False(t, view.IsAuthenticated)
}

func TestLogoutDestroysSession(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {})
	sess := h.seedSession(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Origin", testOrigin)
	req.AddCookie(sessionCookie(sess.ID))
	rec := h.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "private, no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	require.Contains(t, rec.Body.String(), `"success":true`)

	stored, err := h.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Nil(t, stored)

	// Logging out again still succeeds.
	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Origin", testOrigin)
	rec = h.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutCrossOriginForbidden(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := h.do(req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPopularServedAnonymously(t *testing.T) {
	var sawAuth string
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Write([]byte(`{"access_token":"app-token","expires_in":3600}`))
			return
		}
		sawAuth = r.Header.Get("Authorization")
		w.Write([]byte(emptyListing))
	})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/reddit/popular", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Bearer app-token", sawAuth)
	require.Contains(t, rec.Body.String(), "Listing")
}

func TestSubredditRejectsInvalidName(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no upstream call expected")
	})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/reddit/subreddit?subreddit=../etc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubredditMirrorsUpstreamStatus(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Write([]byte(`{"access_token":"app-token","expires_in":3600}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found","error":404}`))
	})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/reddit/subreddit?subreddit=nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListingShapeValidated(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Write([]byte(`{"access_token":"app-token","expires_in":3600}`))
			return
		}
		w.Write([]byte(`{"kind":"WrongKind","data":{}}`))
	})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/reddit/popular", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSavedRequiresSession(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/reddit/saved", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSavedUsesSessionUsername(t *testing.T) {
	var sawPath string
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		sawPath = r.URL.Path
		w.Write([]byte(emptyListing))
	})
	sess := h.seedSession(t)

	req := httptest.NewRequest(http.MethodGet, "/reddit/saved", nil)
	req.AddCookie(sessionCookie(sess.ID))
	rec := h.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "/user/lurker/saved.json", sawPath)
}

func TestVoteValidationAndAuth(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no upstream call expected")
	})
	sess := h.seedSession(t)

	post := func(body string, cookie bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/reddit/vote", strings.NewReader(body))
		req.Header.Set("Origin", testOrigin)
		req.Header.Set("Content-Type", "application/json")
		if cookie {
			req.AddCookie(sessionCookie(sess.ID))
		}
		return h.do(req)
	}

	require.Equal(t, http.StatusBadRequest, post(`{"id":"bad_id","dir":1}`, true).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"id":"t3_abc123","dir":2}`, true).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"id":"t3_abc123"}`, true).Code)
	require.Equal(t, http.StatusUnauthorized, post(`{"id":"t3_abc123","dir":1}`, false).Code)
}

func TestVoteForwardsFormUpstream(t *testing.T) {
	var sawForm string
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/vote", r.URL.Path)
		require.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		sawForm = r.PostForm.Encode()
		w.Write([]byte(`{}`))
	})
	sess := h.seedSession(t)

	req := httptest.NewRequest(http.MethodPost, "/reddit/vote", strings.NewReader(`{"id":"t3_abc123","dir":-1}`))
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(sessionCookie(sess.ID))
	rec := h.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":true`)
	require.Equal(t, "dir=-1&id=t3_abc123", sawForm)
}

func TestAboutValidatesShape(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Write([]byte(`{"access_token":"app-token","expires_in":3600}`))
			return
		}
		w.Write([]byte(`{"kind":"t5","data":{"display_name":"golang","subscribers":200000}}`))
	})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/reddit/about?subreddit=golang", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "golang")
}

// ---- in-memory stores ----

type memoryStore struct {
	mu   sync.Mutex
	data map[string]domain.Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]domain.Session{}}
}

func (m *memoryStore) Save(_ context.Context, sess *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[sess.ID] = *sess
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.data[id]; ok {
		copied := sess
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

type memoryStates struct {
	mu   sync.Mutex
	data map[string]bool
	last string
}

func newMemoryStates() *memoryStates {
	return &memoryStates{data: map[string]bool{}}
}

func (m *memoryStates) SaveState(_ context.Context, state string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[state] = true
	m.last = state
	return nil
}

func (m *memoryStates) TakeState(_ context.Context, state string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[state] {
		delete(m.data, state)
		return true, nil
	}
	return false, nil
}
