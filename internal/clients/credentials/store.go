// Package credentials keeps a pool of metadata API keys fresh.
//
// Keys come from an Issuer and are refreshed wholesale once they are older
// than the freshness window, or on demand when the API rejects one. If the
// issuer cannot be reached and nothing is pooled yet, a statically configured
// fallback key is used instead.
package credentials

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"cineplex/internal/utils"
)

var (
	// ErrNoCredentialAvailable means neither the issuer nor the fallback produced a key.
	ErrNoCredentialAvailable = errors.New("credentials: no credential available")

	// ErrIssuerUnavailable wraps every issuer failure. Store never returns it.
	ErrIssuerUnavailable = errors.New("credentials: issuer unavailable")
)

const DefaultFreshFor = time.Hour

// FallbackNotifier is told when the store had to fall back to the static key.
type FallbackNotifier interface {
	NotifyCredentialFallback(reason string)
}

type Store struct {
	pool     *Pool
	issuer   Issuer
	fallback string
	freshFor time.Duration
	now      func() time.Time
	index    func(n int) int
	logger   *utils.Logger
	notifier FallbackNotifier
}

type Option func(*Store)

func WithFallback(key string) Option {
	return func(s *Store) { s.fallback = key }
}

func WithFreshFor(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.freshFor = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIndexFunc replaces the uniform random key selection.
func WithIndexFunc(index func(n int) int) Option {
	return func(s *Store) { s.index = index }
}

func WithLogger(logger *utils.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithNotifier(n FallbackNotifier) Option {
	return func(s *Store) { s.notifier = n }
}

func NewStore(pool *Pool, issuer Issuer, opts ...Option) *Store {
	s := &Store{
		pool:     pool,
		issuer:   issuer,
		freshFor: DefaultFreshFor,
		now:      time.Now,
		index:    rand.Intn,
		logger:   utils.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = NewPool()
	}
	return s
}

// Refresh asks the issuer for a new key list. It never fails: issuer errors
// are logged and the existing pool, or the fallback key, stays in place.
func (s *Store) Refresh(ctx context.Context) {
	var (
		keys []string
		err  error
	)
	if s.issuer == nil {
		err = errors.New("no issuer configured")
	} else {
		keys, err = s.issuer.Keys(ctx)
	}
	if err == nil && len(keys) > 0 {
		s.pool.Replace(keys, s.now())
		s.logger.Debug("Credential pool refreshed with", len(keys), "keys")
		return
	}
	if err == nil {
		err = errors.New("issuer returned no keys")
	}

	s.logger.Warn("Credential issuer unavailable:", err)
	if s.fallback == "" {
		return
	}
	if s.pool.SeedIfEmpty(s.fallback) {
		s.logger.Warn("Using fallback API key")
		if s.notifier != nil {
			s.notifier.NotifyCredentialFallback(err.Error())
		}
	}
}

// Credential returns one pooled key chosen uniformly at random, refreshing
// first when the pool is empty or stale.
func (s *Store) Credential(ctx context.Context) (string, error) {
	keys, refreshedAt := s.pool.Snapshot()
	if len(keys) == 0 || s.now().Sub(refreshedAt) > s.freshFor {
		s.Refresh(ctx)
	}

	key, ok := s.pool.pick(s.index)
	if !ok {
		return "", ErrNoCredentialAvailable
	}
	return key, nil
}

// Stats reports the pool size and the time of the last successful refresh.
func (s *Store) Stats() (size int, refreshedAt time.Time) {
	keys, at := s.pool.Snapshot()
	return len(keys), at
}
