package auth

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrBadCredentials = errors.New("bad credentials")

// Credential is one operator login, loaded from configuration.
type Credential struct {
	Username string
	Password string
}

type tokenEntry struct {
	username  string
	expiresAt time.Time
}

// TokenStore issues opaque bearer tokens for operator logins and
// validates them until expiry. Tokens live in memory only; a restart
// logs everyone out.
type TokenStore struct {
	mu          sync.Mutex
	tokens      map[string]tokenEntry
	credentials []Credential
	ttl         time.Duration
	now         func() time.Time
}

func NewTokenStore(credentials []Credential, ttl time.Duration) *TokenStore {
	return &TokenStore{
		tokens:      make(map[string]tokenEntry),
		credentials: credentials,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Login checks the credential list and issues a fresh token.
func (s *TokenStore) Login(username, password string) (token string, expiresAt time.Time, err error) {
	ok := false
	for _, c := range s.credentials {
		userMatch := subtle.ConstantTimeCompare([]byte(c.Username), []byte(username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) == 1
		if userMatch && passMatch {
			ok = true
		}
	}
	if !ok {
		return "", time.Time{}, ErrBadCredentials
	}

	token = uuid.NewString()
	expiresAt = s.now().Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.tokens[token] = tokenEntry{username: username, expiresAt: expiresAt}
	return token, expiresAt, nil
}

// Validate reports whether token is live and, if so, its owner.
func (s *TokenStore) Validate(token string) (username string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.tokens[token]
	if !found {
		return "", false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.tokens, token)
		return "", false
	}
	return entry.username, true
}

// Revoke drops a token immediately.
func (s *TokenStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

func (s *TokenStore) sweepLocked() {
	now := s.now()
	for t, e := range s.tokens {
		if now.After(e.expiresAt) {
			delete(s.tokens, t)
		}
	}
}
