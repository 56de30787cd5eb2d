package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ai-interview-be/internal/entity"
	"ai-interview-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// SessionRepository is the in-memory counterpart of the Redis store.
// Used by unit tests and Redis-less local runs. Semantics (TTL, version
// check-and-set) mirror the Redis implementation.
type SessionRepository struct {
	mu      sync.Mutex
	cache   *cache.Cache
	callers map[string]map[string]struct{}
}

func NewSessionRepository(defaultTTL time.Duration) *SessionRepository {
	// Purge interval only affects memory pressure; expiry itself is checked
	// on read by go-cache.
	c := cache.New(defaultTTL, 10*time.Minute)
	return &SessionRepository{
		cache:   c,
		callers: make(map[string]map[string]struct{}),
	}
}

func clone(session *entity.Session) *entity.Session {
	data, _ := json.Marshal(session)
	var copied entity.Session
	_ = json.Unmarshal(data, &copied)
	return &copied
}

func (r *SessionRepository) Create(ctx context.Context, session *entity.Session, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.cache.Get(session.Id); found {
		return contract.ErrVersionConflict
	}
	r.cache.Set(session.Id, clone(session), ttl)
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionId string) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(sessionId)
	if !found {
		return nil, contract.ErrSessionNotFound
	}
	return clone(x.(*entity.Session)), nil
}

func (r *SessionRepository) Update(ctx context.Context, session *entity.Session, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(session.Id)
	if !found {
		return contract.ErrSessionNotFound
	}
	if x.(*entity.Session).Version != session.Version {
		return contract.ErrVersionConflict
	}

	session.Version++
	r.cache.Set(session.Id, clone(session), ttl)
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Delete(sessionId)
	return nil
}

func (r *SessionRepository) CallerSessionCount(ctx context.Context, callerId string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(len(r.callers[callerId])), nil
}

func (r *SessionRepository) AddCallerSession(ctx context.Context, callerId, sessionId string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.callers[callerId] == nil {
		r.callers[callerId] = make(map[string]struct{})
	}
	r.callers[callerId][sessionId] = struct{}{}
	return nil
}

func (r *SessionRepository) RemoveCallerSession(ctx context.Context, callerId, sessionId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.callers[callerId], sessionId)
	return nil
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return nil
}
