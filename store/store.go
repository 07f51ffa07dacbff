package store

import (
	"context"
	"errors"
	"time"

	"github.com/qianlnk/onenight/models"
)

// ErrSessionNotFound is returned when no snapshot exists for a session id.
var ErrSessionNotFound = errors.New("session not found")

// SnapshotStore persists session snapshots between externally observable steps.
type SnapshotStore interface {
	// Save persists the snapshot. A zero ttl means no expiry.
	Save(ctx context.Context, sessionID string, snap *models.Snapshot, ttl time.Duration) error

	// Get returns ErrSessionNotFound if the session does not exist or has expired.
	Get(ctx context.Context, sessionID string) (*models.Snapshot, error)

	Delete(ctx context.Context, sessionID string) error
}

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// Locker coordinates access to a session across server replicas.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
