package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/z0w13/dmserv/internal/errors"
	"github.com/z0w13/dmserv/internal/store"
	"go.uber.org/zap"
)

// PassLockService serializes passes of the same task for the same guild
type PassLockService struct {
	leases store.LeaseStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewPassLockService creates a new pass lock service
func NewPassLockService(leases store.LeaseStore, ttl time.Duration, logger *zap.Logger) *PassLockService {
	return &PassLockService{
		leases: leases,
		ttl:    ttl,
		logger: logger,
	}
}

// Acquire takes the (task, guild) lock. It returns a lock-held error when
// another pass owns it. The returned release func must be called once.
func (s *PassLockService) Acquire(ctx context.Context, task, guildID string) (func(), error) {
	key := task + ":" + guildID
	token := uuid.NewString()

	ok, err := s.leases.Acquire(ctx, key, token, s.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.LockHeld(guildID, task)
	}

	release := func() {
		// The pass context may already be cancelled at shutdown
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.leases.Release(releaseCtx, key, token); err != nil {
			s.logger.Warn("Failed to release pass lock",
				zap.String("task", task),
				zap.String("guild_id", guildID),
				zap.Error(err))
		}
	}
	return release, nil
}
