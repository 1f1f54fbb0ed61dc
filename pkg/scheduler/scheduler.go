package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/shearline/booking-core/internal/repository"
	"github.com/shearline/booking-core/pkg/logger"
)

// auditRetryBatchSize bounds how many rows one drain pass re-attempts, so a
// long-stuck backlog can't monopolize the cron tick.
const auditRetryBatchSize = 200

// Scheduler runs §7's background audit-retry drain on a fixed interval.
type Scheduler struct {
	cron   *cron.Cron
	repo   *repository.Facade
	redis  *redis.Client
	logger *logger.Logger
}

// New creates a scheduler bound to the repository facade and the redis
// client backing the audit retry queue (redisClient may be nil, in which
// case the drain is a no-op each tick).
func New(repo *repository.Facade, redisClient *redis.Client, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		repo:   repo,
		redis:  redisClient,
		logger: log,
	}
}

// Start registers and starts the background jobs.
func (s *Scheduler) Start() {
	s.logger.Info("starting background scheduler")

	if _, err := s.cron.AddFunc("@every 1m", s.drainAuditRetryQueue); err != nil {
		s.logger.Error("failed to register audit retry drain job", "error", err)
	}

	s.cron.Start()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping background scheduler")
	s.cron.Stop()
}

func (s *Scheduler) drainAuditRetryQueue() {
	if s.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	succeeded, failed, err := s.repo.DrainAuditRetryQueue(ctx, s.redis, auditRetryBatchSize)
	if err != nil {
		s.logger.Error("audit retry drain failed", "error", err)
		return
	}
	if succeeded > 0 || failed > 0 {
		s.logger.Info("drained audit retry queue", "succeeded", succeeded, "failed", failed)
	}
}
