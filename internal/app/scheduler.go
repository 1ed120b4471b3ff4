/**
 * @description
 * Cron scheduler setup for the settlement jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/kustodia/settlement-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	s.schedule(s.config.DepositSyncSchedule, "deposit sync", s.jobs.SyncDepositsAndFund)
	s.schedule(s.config.CustodyReleaseSchedule, "custody release", s.jobs.ReleaseExpiredCustodies)
	s.schedule(s.config.PayoutSchedule, "payout", s.jobs.ProcessPayouts)
	s.schedule(s.config.FundingRetrySchedule, "funding retry", s.jobs.RetryFailedFunding)
	s.schedule(s.config.SafetyCheckSchedule, "safety check", s.jobs.RunSafetyCheck)
	s.schedule(s.config.MultiSigExpirySchedule, "multisig expiry", s.jobs.ExpireApprovals)

	s.cron.Start()
}

func (s *Scheduler) schedule(spec, name string, job func()) {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		s.logger.Error("failed to schedule job", "job", name, "schedule", spec, "error", err)
		return
	}
	s.logger.Info("scheduled job", "job", name, "schedule", spec)
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
