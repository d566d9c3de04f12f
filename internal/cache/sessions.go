package cache

import (
	"context"
	"fmt"
	"tvatt-backend/internal/components/assert"
	"tvatt-backend/internal/components/telemetry"
)

const (
	report_sessions_refresh = "sessions.refresh"
	report_sessions_size    = "sessions.size"
)

// Authenticator performs a login handshake and returns the session cookie.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// SessionStore caches portal session cookies per username.
type SessionStore struct {
	auth         Authenticator
	fingerprints Fingerprinter
	store        *ttlStore[string]
	tel          telemetry.API
}

func NewSessionStore(auth Authenticator, fingerprints Fingerprinter, opts Options) (*SessionStore, error) {
	assert.NotNil(auth, "authenticator")

	opts = opts.withDefaults(DefaultSessionTTL)
	store, err := newTTLStore[string]("session", opts.Capacity, opts.TTL, opts.Clock)
	if err != nil {
		return nil, err
	}
	return &SessionStore{
		auth:         auth,
		fingerprints: fingerprints,
		store:        store,
		tel:          telemetry.NewScopedAPI("cache", opts.Tel),
	}, nil
}

// GetOrRefresh returns the cached cookie for username if it is still fresh and was obtained with
// the same password, otherwise it logs in and caches the new cookie. Login errors are returned
// unchanged and nothing is cached.
func (s *SessionStore) GetOrRefresh(ctx context.Context, username, password string) (string, error) {
	fingerprint := s.fingerprints.Of(username, password)

	cookie, result := s.store.get(username, fingerprint)
	if result == lookupHit {
		return cookie, nil
	}
	s.tel.ReportDebug(report_sessions_refresh, username, string(result))

	cookie, err := s.auth.Login(ctx, username, password)
	if err != nil {
		return "", fmt.Errorf("refresh session: %w", err)
	}
	s.store.put(username, fingerprint, cookie)
	s.tel.ReportCount(report_sessions_size, int64(s.store.len()))
	return cookie, nil
}

// Invalidate drops the cached cookie for username, the next GetOrRefresh logs in again.
func (s *SessionStore) Invalidate(username string) {
	s.store.remove(username)
}

// InvalidateCookie drops the cached cookie for username only if it is still cookie, a session
// stored since then (for example by a login with another password) is kept.
func (s *SessionStore) InvalidateCookie(username, cookie string) {
	s.store.removeIf(username, func(cached, _ string) bool {
		return cached == cookie
	})
}

// Len returns the number of stored sessions, expired ones included until they are read.
func (s *SessionStore) Len() int {
	return s.store.len()
}
