package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jktan/assetfolio/internal/common"
	"github.com/jktan/assetfolio/internal/interfaces"
)

// scheduler runs periodic maintenance: snapshot caches are keyed by calendar
// day, so the nightly purge keeps yesterday's entries from accumulating.
type scheduler struct {
	cron      *cron.Cron
	portfolio interfaces.PortfolioService
	logger    *common.Logger
}

func newScheduler(portfolio interfaces.PortfolioService, logger *common.Logger) *scheduler {
	return &scheduler{
		cron:      cron.New(),
		portfolio: portfolio,
		logger:    logger,
	}
}

func (s *scheduler) start() {
	// Just after midnight, local time
	if _, err := s.cron.AddFunc("5 0 * * *", s.purgeCaches); err != nil {
		s.logger.Error().Err(err).Msg("Failed to schedule cache purge")
		return
	}
	s.cron.Start()
	s.logger.Info().Msg("Maintenance scheduler started")
}

func (s *scheduler) stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.logger.Warn().Msg("Scheduler stop timed out")
	}
}

func (s *scheduler) purgeCaches() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.portfolio.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Nightly cache purge failed")
		return
	}
	s.logger.Info().Msg("Nightly cache purge complete")
}
