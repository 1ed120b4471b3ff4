/**
 * @description
 * Scheduled job implementations wrapping the lifecycle engine, safety service
 * and multi-sig gate for the cron scheduler.
 */
package app

import (
	"context"
	"log/slog"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	engine *Engine
	safety *SafetyService
	gate   *MultiSigGate
	logger *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(engine *Engine, safety *SafetyService, gate *MultiSigGate, logger *slog.Logger) *Jobs {
	return &Jobs{
		engine: engine,
		safety: safety,
		gate:   gate,
		logger: logger,
	}
}

// SyncDepositsAndFund matches new SPEI deposits and funds the resulting
// escrows in the same tick so custody starts as soon as money arrives.
func (j *Jobs) SyncDepositsAndFund() {
	j.logger.Info("starting deposit sync job")
	ctx := context.Background()

	if err := j.engine.SyncDeposits(ctx); err != nil {
		j.logger.Error("deposit sync failed", "error", err)
		return
	}
	if err := j.engine.FundEscrows(ctx); err != nil {
		j.logger.Error("escrow funding pass failed", "error", err)
		return
	}
	j.logger.Info("deposit sync job finished")
}

// ReleaseExpiredCustodies releases escrows whose custody period ended.
func (j *Jobs) ReleaseExpiredCustodies() {
	j.logger.Info("starting custody release job")
	ctx := context.Background()

	if err := j.engine.ReleaseExpiredCustodies(ctx); err != nil {
		j.logger.Error("custody release failed", "error", err)
		return
	}
	j.logger.Info("custody release job finished")
}

// ProcessPayouts redeems released custody amounts and confirms in-flight payouts.
func (j *Jobs) ProcessPayouts() {
	j.logger.Info("starting payout job")
	ctx := context.Background()

	if err := j.engine.RedeemAndPayout(ctx); err != nil {
		j.logger.Error("redeem and payout failed", "error", err)
	}
	if err := j.engine.ConfirmPayouts(ctx); err != nil {
		j.logger.Error("payout confirmation failed", "error", err)
		return
	}
	j.logger.Info("payout job finished")
}

// RetryFailedFunding retries failed escrow funding attempts with backoff.
func (j *Jobs) RetryFailedFunding() {
	j.logger.Info("starting funding retry job")
	ctx := context.Background()

	if err := j.engine.RetryFailedEscrowCreations(ctx); err != nil {
		j.logger.Error("funding retry failed", "error", err)
		return
	}
	j.logger.Info("funding retry job finished")
}

// RunSafetyCheck sweeps for stuck escrows and recovers what it can.
func (j *Jobs) RunSafetyCheck() {
	j.logger.Info("starting safety check job")
	ctx := context.Background()

	report, err := j.safety.RunSafetyCheck(ctx)
	if err != nil {
		j.logger.Error("safety check failed", "error", err)
		return
	}
	j.logger.Info("safety check job finished",
		"detected", report.Detected, "recovered", report.Recovered, "escalated", report.Escalated)
}

// ExpireApprovals expires pending multi-sig requests past their deadline.
func (j *Jobs) ExpireApprovals() {
	j.logger.Info("starting multisig expiry job")
	ctx := context.Background()

	expired, err := j.gate.ExpireStaleRequests(ctx)
	if err != nil {
		j.logger.Error("multisig expiry failed", "error", err)
		return
	}
	j.logger.Info("multisig expiry job finished", "expired", expired)
}
