package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BinPull/internal/domain/errs"
	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/pkg/cache"
	applogger "BinPull/pkg/logger"
)

const (
	sessionPrefix = "session"
	lockPrefix    = "session-lock"
)

// CacheSessionStore keeps session snapshots as JSON in a cache.Service.
type CacheSessionStore struct {
	c      cache.Service
	prefix string
	ttl    time.Duration
	maxAge time.Duration
	now    func() time.Time
	l      *applogger.Logger
}

type SessionStoreOption func(*CacheSessionStore)

func WithSnapshotTTL(d time.Duration) SessionStoreOption {
	return func(s *CacheSessionStore) { s.ttl = d }
}

func WithSnapshotMaxAge(d time.Duration) SessionStoreOption {
	return func(s *CacheSessionStore) { s.maxAge = d }
}

func WithKeyPrefix(p string) SessionStoreOption {
	return func(s *CacheSessionStore) { s.prefix = p }
}

func WithStoreClock(now func() time.Time) SessionStoreOption {
	return func(s *CacheSessionStore) { s.now = now }
}

func WithStoreLogger(l *applogger.Logger) SessionStoreOption {
	return func(s *CacheSessionStore) { s.l = l }
}

var _ domrepo.SessionStore = (*CacheSessionStore)(nil)

func NewCacheSessionStore(c cache.Service, opts ...SessionStoreOption) *CacheSessionStore {
	s := &CacheSessionStore{
		c:      c,
		prefix: "binpull",
		ttl:    24 * time.Hour,
		maxAge: 30 * time.Minute,
		now:    time.Now,
		l:      applogger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *CacheSessionStore) key(id string) string {
	return cache.Key(s.prefix+":"+sessionPrefix, id)
}

// Save stamps SavedAt and writes the snapshot.
func (s *CacheSessionStore) Save(ctx context.Context, st models.SessionState) error {
	if st.SessionID == "" {
		return fmt.Errorf("session store: empty session id")
	}
	st.SavedAt = s.now()
	if err := s.c.Set(ctx, s.key(st.SessionID), st, s.ttl); err != nil {
		return fmt.Errorf("session store: save %s: %w", st.SessionID, err)
	}
	return nil
}

// Load returns the snapshot if it is fresh and consistent. Anything else is
// deleted and reported as ErrSessionStateCorrupt.
func (s *CacheSessionStore) Load(ctx context.Context, id string) (models.SessionState, error) {
	var st models.SessionState
	err := s.c.Get(ctx, s.key(id), &st)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		return models.SessionState{}, fmt.Errorf("session store: load %s: %w", id, err)
	case err != nil:
		s.discard(ctx, id, err)
		return models.SessionState{}, errs.New(errs.ErrSessionStateCorrupt, "session_store.load", err)
	}
	if err := st.Validate(s.now(), s.maxAge); err != nil {
		s.discard(ctx, id, err)
		return models.SessionState{}, errs.New(errs.ErrSessionStateCorrupt, "session_store.load", err)
	}
	return st, nil
}

func (s *CacheSessionStore) discard(ctx context.Context, id string, cause error) {
	s.l.Warn("session store: discarding snapshot", applogger.String("session_id", id), applogger.Error(cause))
	if err := s.c.Delete(ctx, s.key(id)); err != nil {
		s.l.Error("session store: delete failed", applogger.String("session_id", id), applogger.Error(err))
	}
}

func (s *CacheSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.c.Delete(ctx, s.key(id)); err != nil {
		return fmt.Errorf("session store: delete %s: %w", id, err)
	}
	return nil
}

// CacheSessionLock is a TTL lock per user held in the cache.
type CacheSessionLock struct {
	c      cache.Service
	prefix string
	ttl    time.Duration
}

var _ domrepo.SessionLock = (*CacheSessionLock)(nil)

func NewCacheSessionLock(c cache.Service, prefix string, ttl time.Duration) *CacheSessionLock {
	if prefix == "" {
		prefix = "binpull"
	}
	return &CacheSessionLock{c: c, prefix: prefix, ttl: ttl}
}

func (l *CacheSessionLock) key(userID string) string {
	return cache.Key(l.prefix+":"+lockPrefix, userID)
}

func (l *CacheSessionLock) Acquire(ctx context.Context, userID string) (bool, error) {
	ok, err := l.c.TryLock(ctx, l.key(userID), l.ttl)
	if err != nil {
		return false, fmt.Errorf("session lock: acquire %s: %w", userID, err)
	}
	return ok, nil
}

func (l *CacheSessionLock) Release(ctx context.Context, userID string) error {
	if err := l.c.Unlock(ctx, l.key(userID)); err != nil {
		return fmt.Errorf("session lock: release %s: %w", userID, err)
	}
	return nil
}
