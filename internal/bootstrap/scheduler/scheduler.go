package scheduler

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap"
	"github.com/fekuna/omnipos-catalog-sync/internal/logger"
	"go.uber.org/zap"
)

// Scheduler runs a bootstrap cycle at startup and then every interval. An
// interval of zero means the startup run is the only one.
type Scheduler struct {
	uc       bootstrap.UseCase
	interval time.Duration
	logger   logger.ZapLogger
}

func NewScheduler(uc bootstrap.UseCase, interval time.Duration, log logger.ZapLogger) *Scheduler {
	return &Scheduler{uc: uc, interval: interval, logger: log}
}

// Start blocks until ctx is done or, without an interval, until the startup
// run returns. Call it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting bootstrap scheduler", zap.Duration("interval", s.interval))
	s.uc.RunOnce(ctx)

	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping bootstrap scheduler")
			return
		case <-ticker.C:
			s.uc.RunOnce(ctx)
		}
	}
}
