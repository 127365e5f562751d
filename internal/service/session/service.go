// Package session owns the authenticated session lifecycle: creation from an
// OAuth authorization code, transparent single-flighted token refresh, and
// destruction. Tokens never leave the server; callers that need the
// client-visible view use domain.Session.Project.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lurkd/lurkd/internal/adapter/reddit"
	"github.com/lurkd/lurkd/internal/config"
	"github.com/lurkd/lurkd/internal/domain"
	"github.com/lurkd/lurkd/internal/redact"
)

const stateTTL = 5 * time.Minute

// Store persists sessions server-side.
type Store interface {
	Save(ctx context.Context, sess *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) error
}

// StateStore holds one-shot login state tokens for the OAuth handshake.
type StateStore interface {
	SaveState(ctx context.Context, state string, ttl time.Duration) error
	TakeState(ctx context.Context, state string) (bool, error)
}

// ErrInvalidState signals an unknown or already-consumed login state token.
var ErrInvalidState = errors.New("session: invalid login state")

// Service manages session state transitions.
type Service struct {
	store  Store
	states StateStore
	client reddit.Client
	cfg    config.Config
	logger *zap.Logger
	group  singleflight.Group

	appMu    sync.Mutex
	appToken domain.TokenRecord
}

// NewService wires the session service.
func NewService(store Store, states StateStore, client reddit.Client, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, states: states, client: client, cfg: cfg, logger: logger}
}

// BeginLogin stores a fresh state token and returns the provider's
// authorization URL for the browser redirect.
func (s *Service) BeginLogin(ctx context.Context) (string, error) {
	state, err := secureRandomString(32)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	if err := s.states.SaveState(ctx, state, stateTTL); err != nil {
		return "", fmt.Errorf("persist state: %w", err)
	}
	return s.client.AuthorizeURL(state), nil
}

// CreateFromAuthorization redeems the callback code for an initial token,
// loads the user's identity, and persists a new session.
func (s *Service) CreateFromAuthorization(ctx context.Context, code, state string) (*domain.Session, error) {
	ok, err := s.states.TakeState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("consume state: %w", err)
	}
	if !ok {
		return nil, ErrInvalidState
	}

	record, err := s.client.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	identity, err := s.client.FetchIdentity(ctx, record.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch identity: %w", err)
	}

	sess := &domain.Session{
		ID:        uuid.NewString(),
		Username:  identity.Username,
		AvatarURL: identity.AvatarURL,
		Token:     record,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	s.logger.Info("session created", zap.String("session_id", sess.ID), zap.String("username", sess.Username))
	return sess, nil
}

// Resolve loads a session by id. Unknown ids return (nil, nil).
func (s *Service) Resolve(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, nil
	}
	return s.store.Get(ctx, id)
}

// GetValidToken returns a usable access token for the session, refreshing it
// when it is inside the skew window. Concurrent callers during a refresh
// share a single upstream call; a terminal refresh failure destroys the
// session.
func (s *Service) GetValidToken(ctx context.Context, sess *domain.Session) (domain.TokenRecord, error) {
	if sess == nil || sess.Token.AccessToken == "" {
		return domain.TokenRecord{}, domain.ErrUnauthenticated
	}

	now := time.Now()
	if sess.Token.Valid(now, s.cfg.RefreshSkew) {
		return sess.Token, nil
	}

	v, err, _ := s.group.Do(sess.ID, func() (any, error) {
		return s.refreshLocked(ctx, sess)
	})
	if err != nil {
		return domain.TokenRecord{}, err
	}
	record := v.(domain.TokenRecord)
	sess.Token = record
	return record, nil
}

// refreshLocked runs inside the per-session single-flight group.
func (s *Service) refreshLocked(ctx context.Context, sess *domain.Session) (domain.TokenRecord, error) {
	// A concurrent flight may already have refreshed and persisted; re-read
	// before hitting the provider.
	if stored, err := s.store.Get(ctx, sess.ID); err == nil && stored != nil {
		if stored.Token.Valid(time.Now(), s.cfg.RefreshSkew) {
			return stored.Token, nil
		}
		sess = stored
	}

	record, err := s.client.RefreshToken(ctx, sess.Token)
	if err != nil {
		if isTerminalRefresh(err) {
			s.logger.Warn("refresh failed terminally, destroying session",
				zap.String("session_id", sess.ID),
				zap.String("reason", redact.Error(err)))
			if derr := s.Destroy(ctx, sess.ID); derr != nil {
				s.logger.Error("destroy after failed refresh", zap.String("error", redact.Error(derr)))
			}
			return domain.TokenRecord{}, domain.ErrSessionExpired
		}
		return domain.TokenRecord{}, fmt.Errorf("refresh token: %w", err)
	}

	next := *sess
	next.Token = record
	if err := s.store.Save(ctx, &next); err != nil {
		return domain.TokenRecord{}, fmt.Errorf("persist refreshed session: %w", err)
	}
	return record, nil
}

// AppToken returns a valid application-only token for anonymous reads,
// requesting a fresh one when the cached token is inside the skew window.
// Concurrent callers share one upstream request.
func (s *Service) AppToken(ctx context.Context) (domain.TokenRecord, error) {
	s.appMu.Lock()
	cached := s.appToken
	s.appMu.Unlock()
	if cached.Valid(time.Now(), s.cfg.RefreshSkew) {
		return cached, nil
	}

	v, err, _ := s.group.Do("app-token", func() (any, error) {
		s.appMu.Lock()
		cached := s.appToken
		s.appMu.Unlock()
		if cached.Valid(time.Now(), s.cfg.RefreshSkew) {
			return cached, nil
		}
		record, err := s.client.AppToken(ctx)
		if err != nil {
			return domain.TokenRecord{}, fmt.Errorf("app token: %w", err)
		}
		s.appMu.Lock()
		s.appToken = record
		s.appMu.Unlock()
		return record, nil
	})
	if err != nil {
		return domain.TokenRecord{}, err
	}
	return v.(domain.TokenRecord), nil
}

// Destroy removes the session; destroying an absent session succeeds.
func (s *Service) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.store.Delete(ctx, id)
}

// isTerminalRefresh reports whether the refresh failure invalidates the
// session rather than being retryable on the next request.
func isTerminalRefresh(err error) bool {
	if errors.Is(err, domain.ErrMissingCredentials) {
		return true
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Terminal()
	}
	return false
}

func secureRandomString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
