/**
 * @description
 * Escrow safety service: detects escrows whose ledger state has diverged from
 * the contract, validates preconditions before money moves, and recovers
 * stuck escrows by re-reading the chain. Recovery never signs a new funding
 * transaction; a divergence that cannot be closed from existing chain state
 * is escalated for manual intervention.
 *
 * @dependencies
 * - context, log/slog, time: Standard Go libraries.
 * - internal/config, internal/domain, internal/store, pkg/rabbitmq.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kustodia/settlement-service/internal/config"
	"github.com/kustodia/settlement-service/internal/domain"
	"github.com/kustodia/settlement-service/internal/store"
	"github.com/kustodia/settlement-service/pkg/rabbitmq"
)

// DivergenceKind classifies how a stuck escrow's ledger state diverged.
type DivergenceKind string

const (
	// DivergenceMissingContractID: a funding tx was submitted but no contract
	// escrow id was ever persisted.
	DivergenceMissingContractID DivergenceKind = "missing_contract_id"
	// DivergenceReleaseOverdue: custody ended past the grace window with no
	// release transaction.
	DivergenceReleaseOverdue DivergenceKind = "release_overdue"
	// DivergenceLegacyFundedStatus: the row carries the historical 'funded'
	// status literal that current code never writes.
	DivergenceLegacyFundedStatus DivergenceKind = "legacy_funded_status"
)

// StuckEscrow is one detected divergence.
type StuckEscrow struct {
	Escrow domain.Escrow
	Kind   DivergenceKind
	Detail string
}

// PrereqReport is the result of validating an escrow before money moves.
type PrereqReport struct {
	Safe   bool
	Issues []string
}

// RecoveryResult reports the outcome of one recovery attempt.
type RecoveryResult struct {
	Success         bool
	EscrowID        string
	TransactionHash string
	Action          string
	Err             error
}

// SafetyReport summarizes one safety sweep.
type SafetyReport struct {
	Detected  int
	Recovered int
	Escalated int
}

// SafetyService owns divergence detection and recovery.
type SafetyService struct {
	repo     store.Repository
	chain    ChainGateway
	producer rabbitmq.Publisher
	logger   *slog.Logger
	cfg      config.Config
	now      func() time.Time
}

// NewSafetyService creates a new safety service instance.
func NewSafetyService(repo store.Repository, chain ChainGateway, producer rabbitmq.Publisher, logger *slog.Logger, cfg config.Config) *SafetyService {
	return &SafetyService{
		repo:     repo,
		chain:    chain,
		producer: producer,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// DetectStuckEscrows sweeps the ledger for the three divergence kinds. Grace
// windows keep ordinary in-flight work out of the report.
func (s *SafetyService) DetectStuckEscrows(ctx context.Context) ([]StuckEscrow, error) {
	now := s.now()
	var stuck []StuckEscrow

	missing, err := s.repo.FindEscrowsMissingContractID(ctx, now.Add(-time.Duration(s.cfg.FundingGraceMinutes)*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("failed to query escrows missing contract id: %w", err)
	}
	for _, e := range missing {
		stuck = append(stuck, StuckEscrow{
			Escrow: e,
			Kind:   DivergenceMissingContractID,
			Detail: "funding tx submitted but no contract escrow id recorded",
		})
	}

	overdue, err := s.repo.FindOverdueActiveEscrows(ctx, now.Add(-time.Duration(s.cfg.ReleaseGraceMinutes)*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue escrows: %w", err)
	}
	for _, e := range overdue {
		stuck = append(stuck, StuckEscrow{
			Escrow: e,
			Kind:   DivergenceReleaseOverdue,
			Detail: fmt.Sprintf("custody ended %s, no release tx", e.CustodyEnd.Format(time.RFC3339)),
		})
	}

	legacy, err := s.repo.FindLegacyStatusEscrows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query legacy status escrows: %w", err)
	}
	for _, e := range legacy {
		stuck = append(stuck, StuckEscrow{
			Escrow: e,
			Kind:   DivergenceLegacyFundedStatus,
			Detail: "row carries historical 'funded' status",
		})
	}
	return stuck, nil
}

// ValidateEscrowPrerequisites checks everything that must hold before the
// engine moves money for this escrow.
func (s *SafetyService) ValidateEscrowPrerequisites(ctx context.Context, escrow *domain.Escrow) (*PrereqReport, error) {
	report := &PrereqReport{}

	payment, err := s.repo.FindPaymentByID(ctx, escrow.PaymentID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			report.Issues = append(report.Issues, "payment record missing")
			return report, nil
		}
		return nil, err
	}
	if payment.Status != domain.PaymentStatusFunded && payment.Status != domain.PaymentStatusEscrowed {
		report.Issues = append(report.Issues, fmt.Sprintf("payment status is %s", payment.Status))
	}
	if escrow.CustodyAmount.GreaterThan(payment.Amount) {
		report.Issues = append(report.Issues, "custody amount exceeds payment amount")
	}
	if _, err := domain.ToTokenBaseUnits(escrow.CustodyAmount); err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("custody amount not representable: %v", err))
	}
	if !escrow.FundedOnChain() && !escrow.CustodyEnd.After(s.now()) {
		report.Issues = append(report.Issues, "custody end already passed before funding")
	}
	if escrow.SmartContractEscrowID != nil && *escrow.SmartContractEscrowID != "" {
		report.Issues = append(report.Issues, "escrow already has a contract id")
	}
	payee, err := s.repo.FindUserByID(ctx, payment.PayeeID)
	if errors.Is(err, store.ErrUserNotFound) {
		report.Issues = append(report.Issues, "payee user missing")
	} else if err != nil {
		return nil, err
	} else if !payoutDestinationAvailable(payment, payee) {
		report.Issues = append(report.Issues, "no resolvable payout destination")
	}

	report.Safe = len(report.Issues) == 0
	return report, nil
}

// payoutDestinationAvailable reports whether the payout step would be able to
// resolve a provider bank account for this payment.
func payoutDestinationAvailable(payment *domain.Payment, payee *domain.User) bool {
	if payment.PayoutBankAccountID != nil && *payment.PayoutBankAccountID != "" {
		return true
	}
	if payee.JunoBankAccountID != nil && *payee.JunoBankAccountID != "" {
		return true
	}
	return payee.PayoutCLABE != nil && *payee.PayoutCLABE != ""
}

// RecoverStuckEscrow attempts to close one divergence from existing chain
// state. It never submits a new funding transaction.
func (s *SafetyService) RecoverStuckEscrow(ctx context.Context, stuck StuckEscrow) *RecoveryResult {
	switch stuck.Kind {
	case DivergenceMissingContractID:
		return s.recoverMissingContractID(ctx, stuck)
	case DivergenceReleaseOverdue:
		return s.recoverFromContractState(ctx, stuck, "release_overdue")
	case DivergenceLegacyFundedStatus:
		return s.recoverFromContractState(ctx, stuck, "legacy_status")
	default:
		return &RecoveryResult{Err: fmt.Errorf("unknown divergence kind %q", stuck.Kind)}
	}
}

// recoverMissingContractID resolves the submitted funding transaction to the
// escrow it created, if it confirmed. A transaction older than the funding
// timeout that cannot be resolved is escalated.
func (s *SafetyService) recoverMissingContractID(ctx context.Context, stuck StuckEscrow) *RecoveryResult {
	escrow := stuck.Escrow
	if escrow.FundingTxHash == nil || *escrow.FundingTxHash == "" {
		return s.escalate(ctx, stuck, fmt.Errorf("no funding tx hash to resolve"))
	}

	state, err := s.chain.GetEscrowByTx(ctx, *escrow.FundingTxHash)
	if err != nil {
		timedOut := s.now().Sub(escrow.UpdatedAt) > time.Duration(s.cfg.FundingTimeoutMinutes)*time.Minute
		if timedOut {
			return s.escalate(ctx, stuck, fmt.Errorf("funding tx unresolvable past timeout: %w", err))
		}
		return &RecoveryResult{EscrowID: escrow.ID.String(), Action: "waiting_for_confirmation", Err: err}
	}

	attached, err := s.repo.AttachEscrowContract(ctx, escrow.ID, state.EscrowID, *escrow.FundingTxHash)
	if err != nil {
		return &RecoveryResult{EscrowID: escrow.ID.String(), Err: err}
	}
	if attached {
		if _, err := s.repo.UpdatePaymentStatus(ctx, escrow.PaymentID, domain.PaymentStatusFunded, domain.PaymentStatusEscrowed); err != nil {
			s.logger.Error("failed to advance payment after recovery", "payment_id", escrow.PaymentID, "error", err)
		}
	}
	s.recordRecovery(ctx, &escrow, "attached_contract_id", *escrow.FundingTxHash)
	return &RecoveryResult{
		Success:         true,
		EscrowID:        escrow.ID.String(),
		TransactionHash: *escrow.FundingTxHash,
		Action:          "attached_contract_id",
	}
}

// recoverFromContractState re-reads the contract and normalizes the ledger to
// the state the chain reports.
func (s *SafetyService) recoverFromContractState(ctx context.Context, stuck StuckEscrow, label string) *RecoveryResult {
	escrow := stuck.Escrow
	if !escrow.FundedOnChain() {
		return s.escalate(ctx, stuck, fmt.Errorf("%s divergence with no contract id", label))
	}

	state, err := s.chain.GetEscrow(ctx, *escrow.SmartContractEscrowID)
	if err != nil {
		return &RecoveryResult{EscrowID: escrow.ID.String(), Err: fmt.Errorf("failed to read contract state: %w", err)}
	}

	switch {
	case state.IsDisputed:
		if _, err := s.repo.UpdateEscrowStatus(ctx, escrow.ID, escrow.Status, domain.EscrowStatusInDispute); err != nil {
			return &RecoveryResult{EscrowID: escrow.ID.String(), Err: err}
		}
		s.recordRecovery(ctx, &escrow, "moved_to_dispute", "")
		return &RecoveryResult{Success: true, EscrowID: escrow.ID.String(), Action: "moved_to_dispute"}

	case state.IsReleased:
		if _, err := s.repo.UpdateEscrowStatus(ctx, escrow.ID, escrow.Status, domain.EscrowStatusReleased); err != nil {
			return &RecoveryResult{EscrowID: escrow.ID.String(), Err: err}
		}
		s.recordRecovery(ctx, &escrow, "reconciled_release", "")
		return &RecoveryResult{Success: true, EscrowID: escrow.ID.String(), Action: "reconciled_release"}

	case state.IsFunded:
		if escrow.Status == domain.EscrowStatusLegacyFunded {
			if _, err := s.repo.UpdateEscrowStatus(ctx, escrow.ID, domain.EscrowStatusLegacyFunded, domain.EscrowStatusActive); err != nil {
				return &RecoveryResult{EscrowID: escrow.ID.String(), Err: err}
			}
			s.recordRecovery(ctx, &escrow, "normalized_status", "")
			return &RecoveryResult{Success: true, EscrowID: escrow.ID.String(), Action: "normalized_status"}
		}
		// Funded and past custody with no release: the release job should
		// handle it; persisting this long past grace means it keeps failing.
		return s.escalate(ctx, stuck, fmt.Errorf("release overdue with contract still funded"))

	default:
		return s.escalate(ctx, stuck, fmt.Errorf("contract escrow %s reports unfunded state", *escrow.SmartContractEscrowID))
	}
}

func (s *SafetyService) recordRecovery(ctx context.Context, escrow *domain.Escrow, action, txHash string) {
	payload := map[string]any{"escrow_id": escrow.ID.String(), "action": action}
	if txHash != "" {
		payload["tx_hash"] = txHash
	}
	if err := s.repo.AppendEvent(ctx, &domain.PaymentEvent{
		PaymentID:   escrow.PaymentID,
		Type:        domain.EventEscrowRecoverySuccess,
		Description: "Stuck escrow recovered: " + action,
		Payload:     payload,
	}); err != nil {
		s.logger.Error("failed to append recovery event", "escrow_id", escrow.ID, "error", err)
	}
	s.logger.Info("stuck escrow recovered", "escrow_id", escrow.ID, "action", action)
}

func (s *SafetyService) escalate(ctx context.Context, stuck StuckEscrow, cause error) *RecoveryResult {
	escrow := stuck.Escrow
	if err := s.repo.AppendEvent(ctx, &domain.PaymentEvent{
		PaymentID:   escrow.PaymentID,
		Type:        domain.EventEscrowRecoveryFailed,
		Description: fmt.Sprintf("Recovery failed (%s): %v", stuck.Kind, cause),
		Payload:     map[string]any{"escrow_id": escrow.ID.String(), "kind": string(stuck.Kind)},
	}); err != nil {
		s.logger.Error("failed to append recovery failure event", "escrow_id", escrow.ID, "error", err)
	}
	if err := s.producer.Publish(ctx, s.cfg.EventExchange, rabbitmq.RouteManualIntervention, rabbitmq.SettlementEvent{
		PaymentID: escrow.PaymentID,
		EscrowID:  escrow.ID,
		Type:      domain.EventEscrowRecoveryFailed,
		Detail:    map[string]any{"kind": string(stuck.Kind), "detail": stuck.Detail, "cause": cause.Error()},
		Timestamp: s.now(),
	}); err != nil {
		s.logger.Warn("failed to publish manual intervention event", "escrow_id", escrow.ID, "error", err)
	}
	s.logger.Error("stuck escrow escalated for manual intervention",
		"escrow_id", escrow.ID, "kind", stuck.Kind, "cause", cause)
	return &RecoveryResult{EscrowID: escrow.ID.String(), Action: "manual_intervention", Err: cause}
}

// RunSafetyCheck performs a full sweep: detect every divergence and attempt
// recovery on each.
func (s *SafetyService) RunSafetyCheck(ctx context.Context) (*SafetyReport, error) {
	stuck, err := s.DetectStuckEscrows(ctx)
	if err != nil {
		return nil, err
	}
	report := &SafetyReport{Detected: len(stuck)}
	for _, item := range stuck {
		result := s.RecoverStuckEscrow(ctx, item)
		if result.Success {
			report.Recovered++
		} else if result.Action == "manual_intervention" {
			report.Escalated++
		}
	}
	if report.Detected > 0 {
		s.logger.Info("safety sweep finished",
			"detected", report.Detected, "recovered", report.Recovered, "escalated", report.Escalated)
	}
	return report, nil
}
