package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/idilsaglam/recipebox/internal/model"
)

var (
	ErrPendingLoginNotFound = errors.New("pending login not found")
	ErrPendingLoginExpired  = errors.New("pending login expired")
	ErrInvalidCode          = errors.New("invalid login code")
	ErrCodeExpired          = errors.New("login code expired")
	ErrTokenNotFound        = errors.New("access token not found")
	ErrTokenExpired         = errors.New("access token expired")
)

type PendingLogin struct {
	State       string
	CallbackURL string
	ExpiresAt   time.Time
}

type LoginCode struct {
	Code      string
	State     string
	User      model.User
	ExpiresAt time.Time
	UsedAt    *time.Time
}

type AccessToken struct {
	Token     string
	User      model.User
	ExpiresAt time.Time
}

// TokenStore holds in-flight logins and issued access tokens. Restarting
// recipesd signs everyone out.
type TokenStore struct {
	mu      sync.Mutex
	pending map[string]PendingLogin
	codes   map[string]LoginCode
	tokens  map[string]AccessToken
}

func NewTokenStore() *TokenStore {
	return &TokenStore{
		pending: map[string]PendingLogin{},
		codes:   map[string]LoginCode{},
		tokens:  map[string]AccessToken{},
	}
}

func (s *TokenStore) StartLogin(callbackURL string, ttl time.Duration, now time.Time) (PendingLogin, error) {
	if ttl <= 0 {
		return PendingLogin{}, fmt.Errorf("ttl must be > 0")
	}
	state, err := randomHex(16)
	if err != nil {
		return PendingLogin{}, err
	}
	p := PendingLogin{State: state, CallbackURL: callbackURL, ExpiresAt: now.Add(ttl)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)
	s.pending[state] = p
	return p, nil
}

func (s *TokenStore) PendingLogin(state string, now time.Time) (PendingLogin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)
	p, ok := s.pending[state]
	if !ok {
		return PendingLogin{}, ErrPendingLoginNotFound
	}
	if now.After(p.ExpiresAt) {
		delete(s.pending, state)
		return PendingLogin{}, ErrPendingLoginExpired
	}
	return p, nil
}

// IssueCode approves a pending login for user and returns the one-time code.
func (s *TokenStore) IssueCode(state string, user model.User, ttl time.Duration, now time.Time) (LoginCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)
	p, ok := s.pending[state]
	if !ok {
		return LoginCode{}, ErrPendingLoginNotFound
	}
	if now.After(p.ExpiresAt) {
		delete(s.pending, state)
		return LoginCode{}, ErrPendingLoginExpired
	}
	raw, err := randomHex(8)
	if err != nil {
		return LoginCode{}, err
	}
	c := LoginCode{Code: "rbx-code-" + raw, State: state, User: user, ExpiresAt: now.Add(ttl)}
	s.codes[c.Code] = c
	return c, nil
}

// Exchange trades a code for an access token. Codes are single use.
func (s *TokenStore) Exchange(code, state string, accessTTL time.Duration, now time.Time) (AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)

	c, ok := s.codes[code]
	if !ok || c.UsedAt != nil {
		return AccessToken{}, ErrInvalidCode
	}
	if state != "" && c.State != state {
		return AccessToken{}, ErrInvalidCode
	}
	if now.After(c.ExpiresAt) {
		delete(s.codes, code)
		return AccessToken{}, ErrCodeExpired
	}
	raw, err := randomHex(24)
	if err != nil {
		return AccessToken{}, err
	}
	tok := AccessToken{Token: "rbx_" + raw, User: c.User, ExpiresAt: now.Add(accessTTL)}
	s.tokens[tok.Token] = tok
	used := now
	c.UsedAt = &used
	s.codes[code] = c
	delete(s.pending, c.State)
	return tok, nil
}

func (s *TokenStore) Validate(token string, now time.Time) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return model.User{}, ErrTokenNotFound
	}
	if now.After(t.ExpiresAt) {
		delete(s.tokens, token)
		return model.User{}, ErrTokenExpired
	}
	return t.User, nil
}

// Revoke forgets token. Unknown tokens are ignored.
func (s *TokenStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

func (s *TokenStore) cleanupLocked(now time.Time) {
	for k, v := range s.pending {
		if now.After(v.ExpiresAt) {
			delete(s.pending, k)
		}
	}
	for k, v := range s.codes {
		if now.After(v.ExpiresAt.Add(5 * time.Minute)) {
			delete(s.codes, k)
		}
	}
	for k, v := range s.tokens {
		if now.After(v.ExpiresAt) {
			delete(s.tokens, k)
		}
	}
}

func randomHex(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
