package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ai-interview-be/internal/entity"
	"ai-interview-be/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "interview:session:"
	callerKeyPrefix  = "interview:caller:"
)

type SessionRepository struct {
	rdb *redis.Client
}

func NewSessionRepository(rdb *redis.Client) *SessionRepository {
	return &SessionRepository{rdb: rdb}
}

func sessionKey(sessionId string) string {
	return sessionKeyPrefix + sessionId
}

func callerKey(callerId string) string {
	return callerKeyPrefix + callerId + ":sessions"
}

func (r *SessionRepository) Create(ctx context.Context, session *entity.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	// NX so a duplicate id never silently overwrites a live session.
	ok, err := r.rdb.SetNX(ctx, sessionKey(session.Id), data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return contract.ErrVersionConflict
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionId string) (*entity.Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(sessionId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, contract.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session entity.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) Update(ctx context.Context, session *entity.Session, ttl time.Duration) error {
	key := sessionKey(session.Id)
	expected := session.Version

	next := *session
	next.Version = expected + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return err
	}

	// Optimistic check-and-set: WATCH the key, verify the stored version
	// still matches the one we loaded, then write inside a transaction.
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return contract.ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		var current entity.Session
		if err := json.Unmarshal(raw, &current); err != nil {
			return err
		}
		if current.Version != expected {
			return contract.ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return contract.ErrVersionConflict
	}
	if err != nil {
		return err
	}

	session.Version = next.Version
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionId string) error {
	return r.rdb.Del(ctx, sessionKey(sessionId)).Err()
}

func (r *SessionRepository) CallerSessionCount(ctx context.Context, callerId string) (int64, error) {
	return r.rdb.SCard(ctx, callerKey(callerId)).Result()
}

func (r *SessionRepository) AddCallerSession(ctx context.Context, callerId, sessionId string, ttl time.Duration) error {
	key := callerKey(callerId)
	if err := r.rdb.SAdd(ctx, key, sessionId).Err(); err != nil {
		return err
	}
	// The index expires with the longest-lived session it can point at.
	return r.rdb.Expire(ctx, key, ttl).Err()
}

func (r *SessionRepository) RemoveCallerSession(ctx context.Context, callerId, sessionId string) error {
	return r.rdb.SRem(ctx, callerKey(callerId), sessionId).Err()
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
