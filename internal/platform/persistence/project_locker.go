package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

const projectLockPrefix = "progress-ledger:audit:"

// ErrLockNotObtained is returned when another process holds the project's lock.
var ErrLockNotObtained = errors.New("project lock is held by another auditor")

// ReleaseFunc gives a lock back.
type ReleaseFunc func(ctx context.Context) error

// ProjectLocker takes short-lived per-project locks in Redis.
type ProjectLocker struct {
	client *redislock.Client
}

func NewProjectLocker(client *redislock.Client) *ProjectLocker {
	return &ProjectLocker{client: client}
}

// Lock obtains the project's lock for ttl without retrying.
func (l *ProjectLocker) Lock(ctx context.Context, projectID string, ttl time.Duration) (ReleaseFunc, error) {
	lock, err := l.client.Obtain(ctx, ProjectLockKey(projectID), ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock for project %s: %w", projectID, err)
	}

	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("failed to release lock for project %s: %w", projectID, err)
		}
		return nil
	}, nil
}

func ProjectLockKey(projectID string) string {
	return projectLockPrefix + projectID
}
