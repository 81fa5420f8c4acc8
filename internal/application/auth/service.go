// Package auth is the access gateway: it drives the OAuth handshake with an
// identity provider, applies the whitelist, and issues signed session tokens.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"filedrop/internal/logging"
	"filedrop/internal/metrics"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotWhitelisted = errors.New("user is not whitelisted")
	ErrInvalidState   = errors.New("invalid oauth state")
)

// Options configures a Service.
type Options struct {
	Provider   IdentityProvider
	Whitelist  Whitelist
	Hosts      CallbackHosts
	Port       int
	Secret     string
	SessionTTL time.Duration
}

// Service coordinates login, callback and session validation.
type Service struct {
	provider   IdentityProvider
	whitelist  Whitelist
	hosts      CallbackHosts
	port       int
	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time
}

// NewService creates an auth service.
func NewService(opts Options) (*Service, error) {
	if opts.Provider == nil {
		return nil, errors.New("identity provider required")
	}
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, errors.New("session secret required")
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 72 * time.Hour
	}
	return &Service{
		provider:   opts.Provider,
		whitelist:  opts.Whitelist,
		hosts:      opts.Hosts,
		port:       opts.Port,
		secret:     []byte(opts.Secret),
		sessionTTL: opts.SessionTTL,
		now:        time.Now,
	}, nil
}

// ProviderName returns the identity provider route segment.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// SessionTTL returns the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// StateTTL returns the lifetime of a login state token.
func (s *Service) StateTTL() time.Duration {
	return stateTokenTTL
}

// BeginLogin picks the callback URL for the client and returns the provider
// authorization URL together with a signed state token for the state cookie.
func (s *Service) BeginLogin(remoteAddr string) (string, string, error) {
	callbackURL := s.hosts.CallbackURL(remoteAddr, s.port, s.provider.Name())
	nonce := uuid.NewString()

	now := s.now()
	stateToken, err := sign(stateClaims{
		Nonce:            nonce,
		CallbackURL:      callbackURL,
		RegisteredClaims: registered(stateAud, "", now, stateTokenTTL),
	}, s.secret)
	if err != nil {
		return "", "", err
	}

	logging.Info("redirecting to identity provider",
		zap.String("provider", s.provider.Name()),
		zap.String("remote_addr", remoteAddr),
		zap.String("callback_url", callbackURL))
	return s.provider.AuthCodeURL(nonce, callbackURL), stateToken, nil
}

// CompleteLogin validates the state, exchanges the code, and applies the
// whitelist. On success it returns the principal and a session token.
func (s *Service) CompleteLogin(ctx context.Context, code, stateParam, stateToken string) (Principal, string, error) {
	var state stateClaims
	if err := parse(stateToken, &state, stateAud, s.secret); err != nil {
		metrics.RecordAuthAttempt("error")
		return Principal{}, "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if stateParam == "" || subtle.ConstantTimeCompare([]byte(stateParam), []byte(state.Nonce)) != 1 {
		metrics.RecordAuthAttempt("error")
		return Principal{}, "", ErrInvalidState
	}
	if strings.TrimSpace(code) == "" {
		metrics.RecordAuthAttempt("error")
		return Principal{}, "", fmt.Errorf("%w: missing authorization code", ErrUnauthorized)
	}

	principal, err := s.provider.Authenticate(ctx, Credentials{Code: code, RedirectURL: state.CallbackURL})
	if err != nil {
		metrics.RecordAuthAttempt("error")
		return Principal{}, "", fmt.Errorf("authenticate with %s: %w", s.provider.Name(), err)
	}
	logging.WithContext(ctx).Info("user authenticated", zap.String("username", principal.Username))

	if !s.whitelist.Allows(principal.Username) {
		metrics.RecordAuthAttempt("rejected")
		logging.WithContext(ctx).Warn("user not whitelisted", zap.String("username", principal.Username))
		return principal, "", ErrNotWhitelisted
	}

	now := s.now()
	session, err := sign(sessionClaims{
		UserID:           principal.ID,
		Username:         principal.Username,
		RegisteredClaims: registered(sessionAud, principal.Username, now, s.sessionTTL),
	}, s.secret)
	if err != nil {
		metrics.RecordAuthAttempt("error")
		return Principal{}, "", err
	}

	metrics.RecordAuthAttempt("ok")
	return principal, session, nil
}

// Authenticate resolves a session token into a principal. Tokens for users
// removed from the whitelist are rejected.
func (s *Service) Authenticate(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrUnauthorized
	}
	var claims sessionClaims
	if err := parse(token, &claims, sessionAud, s.secret); err != nil {
		return Principal{}, ErrUnauthorized
	}
	if !s.whitelist.Allows(claims.Username) {
		return Principal{}, ErrUnauthorized
	}
	return Principal{ID: claims.UserID, Username: claims.Username}, nil
}
