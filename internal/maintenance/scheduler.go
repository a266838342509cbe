package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"verifytx_gateway/internal/repository"
)

const sweepTimeout = 5 * time.Minute

// Sweeper purges history past retention and expired cache rows.
type Sweeper interface {
	Sweep(ctx context.Context) (*repository.SweepResult, error)
}

// Scheduler runs the sweep on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
}

func NewScheduler(sweeper Sweeper, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		logger:  logger,
	}
}

// Start registers the sweep with a standard five-field expression or a descriptor like @hourly.
func (s *Scheduler) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("maintenance scheduler already running")
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Starting maintenance scheduler", zap.String("schedule", schedule))
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.logger.Info("Stopping maintenance scheduler")
	<-s.cron.Stop().Done()
	s.running = false
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := RunOnce(ctx, s.sweeper, s.logger); err != nil {
		s.logger.Error("scheduled sweep failed", zap.Error(err))
	}
}

// RunOnce performs a single sweep and logs what it removed.
func RunOnce(ctx context.Context, sweeper Sweeper, logger *zap.Logger) (*repository.SweepResult, error) {
	res, err := sweeper.Sweep(ctx)
	if res != nil {
		logger.Info("maintenance sweep finished",
			zap.Int64("history_purged", res.HistoryPurged),
			zap.Int64("cache_purged", res.CachePurged))
	}
	if err != nil {
		return res, fmt.Errorf("failed to sweep: %w", err)
	}
	return res, nil
}
