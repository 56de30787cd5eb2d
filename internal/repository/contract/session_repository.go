package contract

import (
	"context"
	"errors"
	"time"

	"ai-interview-be/internal/entity"
)

var (
	ErrSessionNotFound = errors.New("session not found")

	// ErrVersionConflict is returned when a racing writer persisted the
	// session between our load and our save. The operation is retryable.
	ErrVersionConflict = errors.New("session version conflict")
)

type SessionRepository interface {
	// Create persists a new session with the given store-native expiration.
	Create(ctx context.Context, session *entity.Session, ttl time.Duration) error

	Get(ctx context.Context, sessionId string) (*entity.Session, error)

	// Update persists the session only if no other writer bumped its Version
	// since it was loaded. On success the stored and in-memory Version are
	// incremented; the TTL deadline is reset.
	Update(ctx context.Context, session *entity.Session, ttl time.Duration) error

	Delete(ctx context.Context, sessionId string) error

	// Caller index, used for the per-caller session cap.
	CallerSessionCount(ctx context.Context, callerId string) (int64, error)
	AddCallerSession(ctx context.Context, callerId, sessionId string, ttl time.Duration) error
	RemoveCallerSession(ctx context.Context, callerId, sessionId string) error

	Ping(ctx context.Context) error
}
