// Package scheduler runs the background timers of the key service: the
// automatic rotation timer and the daily retention cleanup. Both are
// best-effort background work and never block process shutdown.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/crewbill/keysvc/internal/application"
	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/errors"
	"github.com/crewbill/keysvc/pkg/logger"
)

// Scheduler owns the two long-lived timers. Start launches them; Stop waits
// for any in-progress tick to finish.
type Scheduler struct {
	rotator *application.RotationService
	logger  logger.Logger

	rotationInterval time.Duration
	cleanupInterval  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     sync.WaitGroup
}

// New builds a scheduler. minInterval is the deployment-configured floor for
// the rotation cadence; when unset it falls back to the built-in minimum. A
// configured rotation interval below the floor is clamped with a warning
// rather than rejected: a running service with a conservative cadence beats a
// dead one.
func New(rotator *application.RotationService, rotationInterval, minInterval time.Duration, log logger.Logger) *Scheduler {
	l := log.WithComponent("scheduler")
	if minInterval <= 0 {
		minInterval = constants.MinRotationInterval
	}
	if rotationInterval <= 0 {
		rotationInterval = constants.DefaultRotationInterval
	}
	if rotationInterval < minInterval {
		l.Warn(context.Background(), "configured rotation interval below minimum, clamping",
			logger.Duration("configured", rotationInterval),
			logger.Duration("minimum", minInterval))
		rotationInterval = minInterval
	}
	return &Scheduler{
		rotator:          rotator,
		logger:           l,
		rotationInterval: rotationInterval,
		cleanupInterval:  constants.CleanupInterval,
		stop:             make(chan struct{}),
	}
}

// Start launches the rotation and cleanup timers.
func (s *Scheduler) Start(ctx context.Context) {
	s.done.Add(2)
	go s.runRotationTimer(ctx)
	go s.runCleanupTimer(ctx)
	s.logger.Info(ctx, "scheduler started",
		logger.Duration("rotation_interval", s.rotationInterval),
		logger.Duration("cleanup_interval", s.cleanupInterval))
}

// Stop halts both timers and waits for any in-progress tick.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.done.Wait()
}

func (s *Scheduler) runRotationTimer(ctx context.Context) {
	defer s.done.Done()
	ticker := time.NewTicker(s.rotationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.rotateTick(ctx)
		}
	}
}

// rotateTick runs one scheduled rotation. A rotation already in flight means
// the tick is skipped outright, not queued.
func (s *Scheduler) rotateTick(ctx context.Context) {
	result, err := s.rotator.RotateKeys(ctx, models.RotationOptions{
		RotationType: constants.RotationTypeAutomatic,
		CreatedBy:    constants.ActorSystem,
	})
	switch {
	case err == nil:
		s.logger.Info(ctx, "scheduled rotation completed",
			logger.String("new_key_id", result.NewKey.KeyID))
	case errors.IsConflict(err):
		s.logger.Info(ctx, "scheduled rotation skipped, another rotation in progress")
	default:
		s.logger.Error(ctx, "scheduled rotation failed", err)
	}
}

func (s *Scheduler) runCleanupTimer(ctx context.Context) {
	defer s.done.Done()
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.cleanupTick(ctx)
		}
	}
}

func (s *Scheduler) cleanupTick(ctx context.Context) {
	deleted, err := s.rotator.CleanupRevoked(ctx)
	if err != nil {
		s.logger.Error(ctx, "retention cleanup failed", err)
		return
	}
	if deleted > 0 {
		s.logger.Info(ctx, "retention cleanup completed",
			logger.Int64("deleted", deleted))
	}
}
