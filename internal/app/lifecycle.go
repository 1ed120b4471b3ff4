/**
 * @description
 * This file contains the settlement lifecycle engine. The `Engine` struct
 * drives every payment from matched SPEI deposit to confirmed payout:
 *
 *   1. SyncDeposits        - match incoming SPEI deposits to pending payments
 *   2. FundEscrows         - move MXNB to the bridge and lock custody on-chain
 *   3. ReleaseExpiredCustodies - release escrows past custody end (multi-sig gated)
 *   4. RedeemAndPayout     - redeem MXNB to MXN, pay out by SPEI
 *   5. ConfirmPayouts      - poll the fiat rail for payout outcomes
 *   6. RetryFailedEscrowCreations - back off and retry failed funding attempts
 *
 * Every step is idempotent. Conditional repository writes (compare-and-set
 * status, IS NULL guards, at-most-once events) are the only concurrency
 * control; a second scheduler tick observing `false` from any of them must
 * drop its work. Provider calls that move money carry idempotency keys
 * derived from stable ledger identifiers.
 *
 * @dependencies
 * - context, errors, fmt, log/slog, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal.
 * - internal/config, internal/domain, internal/store: Domain and data access.
 * - pkg/chainclient, pkg/junoclient, pkg/rabbitmq: External gateways.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kustodia/settlement-service/internal/config"
	"github.com/kustodia/settlement-service/internal/domain"
	"github.com/kustodia/settlement-service/internal/store"
	"github.com/kustodia/settlement-service/pkg/chainclient"
	"github.com/kustodia/settlement-service/pkg/rabbitmq"
)

// depositStatusComplete is the provider status of a settled SPEI deposit.
const depositStatusComplete = "complete"

// Engine drives the settlement lifecycle.
type Engine struct {
	repo     store.Repository
	chain    ChainGateway
	fiat     FiatGateway
	producer rabbitmq.Publisher
	gate     *MultiSigGate
	logger   *slog.Logger
	cfg      config.Config
	now      func() time.Time
}

// NewEngine creates a new settlement engine instance.
func NewEngine(repo store.Repository, chain ChainGateway, fiat FiatGateway, producer rabbitmq.Publisher, gate *MultiSigGate, logger *slog.Logger, cfg config.Config) *Engine {
	return &Engine{
		repo:     repo,
		chain:    chain,
		fiat:     fiat,
		producer: producer,
		gate:     gate,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SyncDeposits matches settled SPEI deposits to pending payments by deposit
// CLABE and exact amount. Only deposits the provider reports as complete are
// considered. Matching a deposit funds the payment and records the
// deposit_matched event exactly once.
func (e *Engine) SyncDeposits(ctx context.Context) error {
	payments, err := e.repo.FindPendingDepositPayments(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending payments: %w", err)
	}
	if len(payments) == 0 {
		return nil
	}

	deposits, err := e.fiat.ListSpeiDeposits(ctx)
	if err != nil {
		return fmt.Errorf("failed to list spei deposits: %w", err)
	}

	byCLABE := make(map[string][]int, len(deposits))
	for i, d := range deposits {
		// Pending or failed deposits are not money in the account.
		if d.Status != depositStatusComplete {
			continue
		}
		byCLABE[d.ReceiverCLABE] = append(byCLABE[d.ReceiverCLABE], i)
	}

	for _, payment := range payments {
		for _, i := range byCLABE[payment.DepositCLABE] {
			d := deposits[i]
			if !d.Amount.Equal(payment.Amount) {
				continue
			}
			funded, err := e.repo.MarkPaymentFunded(ctx, payment.ID, d.FID, d.DepositID)
			if err != nil {
				e.logger.Error("failed to mark payment funded", "payment_id", payment.ID, "error", err)
				continue
			}
			if !funded {
				// Another tick already matched this payment.
				break
			}
			if _, err := e.repo.AppendEventOnce(ctx, &domain.PaymentEvent{
				PaymentID:   payment.ID,
				Type:        domain.EventDepositMatched,
				Description: fmt.Sprintf("SPEI deposit %s matched for %s %s", d.FID, payment.Amount, payment.Currency),
				Payload:     map[string]any{"fid": d.FID, "deposit_id": d.DepositID, "sender_clabe": d.SenderCLABE},
			}); err != nil {
				e.logger.Error("failed to append deposit matched event", "payment_id", payment.ID, "error", err)
			}
			e.logger.Info("deposit matched", "payment_id", payment.ID, "fid", d.FID, "amount", payment.Amount)
			break
		}
	}
	return nil
}

// FundEscrows locks custody on-chain for every escrow whose payment is
// funded. Escrows with a prior funding failure are left to the retry job so
// its backoff schedule is respected.
func (e *Engine) FundEscrows(ctx context.Context) error {
	escrows, err := e.repo.FindFundableEscrows(ctx)
	if err != nil {
		return fmt.Errorf("failed to load fundable escrows: %w", err)
	}
	for i := range escrows {
		escrow := &escrows[i]
		failed, err := e.repo.HasEvent(ctx, escrow.PaymentID, domain.EventEscrowFundingFailed)
		if err != nil {
			e.logger.Error("failed to check funding history", "escrow_id", escrow.ID, "error", err)
			continue
		}
		if failed {
			continue
		}
		if err := e.fundEscrowOnChain(ctx, escrow); err != nil {
			e.logger.Error("escrow funding failed", "escrow_id", escrow.ID, "payment_id", escrow.PaymentID, "error", err)
		}
	}
	return nil
}

// fundEscrowOnChain performs one funding attempt: withdraw MXNB to the bridge
// wallet (once per payment), create the contract escrow, fund it, and attach
// the confirmed identifiers to the ledger.
func (e *Engine) fundEscrowOnChain(ctx context.Context, escrow *domain.Escrow) error {
	payment, err := e.repo.FindPaymentByID(ctx, escrow.PaymentID)
	if err != nil {
		return err
	}
	if payment.Status != domain.PaymentStatusFunded {
		return fmt.Errorf("payment %s is %s, expected funded", payment.ID, payment.Status)
	}

	units, err := domain.ToTokenBaseUnits(escrow.CustodyAmount)
	if err != nil {
		return e.recordFundingFailure(ctx, escrow, fmt.Errorf("custody amount not representable: %w", err))
	}

	// Move MXNB from the platform balance to the bridge wallet. The event is
	// recorded only after the call succeeds, so a failed attempt is re-run on
	// the next pass; the stable idempotency key lets the provider dedupe a
	// withdrawal that did go through but whose outcome was lost.
	withdrawn, err := e.repo.HasEvent(ctx, payment.ID, domain.EventBridgeWithdrawalInitiated)
	if err != nil {
		return err
	}
	if !withdrawn {
		if _, err := e.fiat.WithdrawToBridge(ctx, escrow.CustodyAmount, e.cfg.BridgeWallet, "bridge-"+escrow.ID.String()); err != nil {
			return e.recordFundingFailure(ctx, escrow, fmt.Errorf("bridge withdrawal failed: %w", err))
		}
		if _, err := e.repo.AppendEventOnce(ctx, &domain.PaymentEvent{
			PaymentID:   payment.ID,
			Type:        domain.EventBridgeWithdrawalInitiated,
			Description: fmt.Sprintf("MXNB withdrawal of %s to bridge wallet", escrow.CustodyAmount),
			Payload:     map[string]any{"escrow_id": escrow.ID.String(), "bridge_wallet": e.cfg.BridgeWallet},
		}); err != nil {
			e.logger.Error("failed to append bridge withdrawal event", "payment_id", payment.ID, "error", err)
		}
	}

	created, err := e.chain.CreateEscrow(ctx, chainclient.CreateEscrowParams{
		Payer:      e.cfg.BridgeWallet,
		Payee:      e.cfg.BridgeWallet,
		Token:      e.cfg.TokenAddress,
		Amount:     units,
		Deadline:   escrow.CustodyEnd.Unix(),
		Vertical:   payment.VerticalType,
		CLABE:      payment.DepositCLABE,
		Conditions: "custody",
	})
	if err != nil {
		return e.recordFundingFailure(ctx, escrow, fmt.Errorf("createEscrow failed: %w", err))
	}
	if err := e.repo.RecordFundingTxSubmitted(ctx, escrow.ID, created.TxHash); err != nil {
		e.logger.Error("failed to record funding tx hash", "escrow_id", escrow.ID, "tx_hash", created.TxHash, "error", err)
	}

	if _, err := e.chain.FundEscrow(ctx, created.EscrowID, units); err != nil {
		return e.recordFundingFailure(ctx, escrow, fmt.Errorf("fundEscrow failed: %w", err))
	}

	attached, err := e.repo.AttachEscrowContract(ctx, escrow.ID, created.EscrowID, created.TxHash)
	if err != nil {
		return err
	}
	if !attached {
		e.logger.Warn("escrow contract already attached by another tick", "escrow_id", escrow.ID)
		return nil
	}

	if _, err := e.repo.UpdatePaymentStatus(ctx, payment.ID, domain.PaymentStatusFunded, domain.PaymentStatusEscrowed); err != nil {
		return err
	}
	if _, err := e.repo.AppendEventOnce(ctx, &domain.PaymentEvent{
		PaymentID:   payment.ID,
		Type:        domain.EventEscrowFundedOnChain,
		Description: fmt.Sprintf("Escrow %s funded on-chain (contract id %s)", escrow.ID, created.EscrowID),
		Payload:     map[string]any{"contract_escrow_id": created.EscrowID, "tx_hash": created.TxHash, "amount_base_units": units},
	}); err != nil {
		e.logger.Error("failed to append escrow funded event", "payment_id", payment.ID, "error", err)
	}
	e.publish(ctx, rabbitmq.RouteEscrowFunded, payment.ID, escrow.ID, domain.EventEscrowFundedOnChain,
		map[string]any{"contract_escrow_id": created.EscrowID, "tx_hash": created.TxHash})

	e.logger.Info("escrow funded on-chain",
		"escrow_id", escrow.ID, "payment_id", payment.ID, "contract_escrow_id", created.EscrowID, "tx_hash", created.TxHash)
	return nil
}

// recordFundingFailure appends the failure to the event history that the
// retry job reads for attempt counting and backoff.
func (e *Engine) recordFundingFailure(ctx context.Context, escrow *domain.Escrow, cause error) error {
	if err := e.repo.AppendEvent(ctx, &domain.PaymentEvent{
		PaymentID:   escrow.PaymentID,
		Type:        domain.EventEscrowFundingFailed,
		Description: cause.Error(),
		Payload:     map[string]any{"escrow_id": escrow.ID.String()},
	}); err != nil {
		e.logger.Error("failed to append funding failure event", "escrow_id", escrow.ID, "error", err)
	}
	return cause
}

// ReleaseExpiredCustodies releases every escrow past custody end, re-reading
// contract state before submitting and honoring the multi-sig gate.
func (e *Engine) ReleaseExpiredCustodies(ctx context.Context) error {
	escrows, err := e.repo.FindReleasableEscrows(ctx, e.now())
	if err != nil {
		return fmt.Errorf("failed to load releasable escrows: %w", err)
	}
	for i := range escrows {
		escrow := &escrows[i]
		if err := e.releaseEscrow(ctx, escrow); err != nil {
			e.logger.Error("escrow release failed", "escrow_id", escrow.ID, "payment_id", escrow.PaymentID, "error", err)
			if appendErr := e.repo.AppendEvent(ctx, &domain.PaymentEvent{
				PaymentID:   escrow.PaymentID,
				Type:        domain.EventEscrowReleaseFailed,
				Description: err.Error(),
				Payload:     map[string]any{"escrow_id": escrow.ID.String()},
			}); appendErr != nil {
				e.logger.Error("failed to append release failure event", "escrow_id", escrow.ID, "error", appendErr)
			}
		}
	}
	return nil
}

func (e *Engine) releaseEscrow(ctx context.Context, escrow *domain.Escrow) error {
	if !escrow.FundedOnChain() {
		return fmt.Errorf("escrow %s has no contract id", escrow.ID)
	}
	payment, err := e.repo.FindPaymentByID(ctx, escrow.PaymentID)
	if err != nil {
		return err
	}

	allowed, err := e.gate.CheckRelease(ctx, payment, escrow)
	if err != nil {
		return fmt.Errorf("multisig gate check failed: %w", err)
	}
	if !allowed {
		return nil
	}

	// Re-read contract state: the ledger alone is not proof the escrow is
	// still releasable.
	state, err := e.chain.GetEscrow(ctx, *escrow.SmartContractEscrowID)
	if err != nil {
		return fmt.Errorf("failed to read contract state: %w", err)
	}
	switch {
	case state.IsDisputed:
		return e.moveToDispute(ctx, payment, escrow)
	case state.IsReleased:
		// Already released on-chain; reconcile the ledger without a new tx.
		if _, err := e.repo.UpdateEscrowStatus(ctx, escrow.ID, escrow.Status, domain.EscrowStatusReleased); err != nil {
			return err
		}
		e.appendReleasedEvent(ctx, payment.ID, escrow.ID, "", "reconciled from contract state")
		return nil
	case !state.IsFunded:
		return fmt.Errorf("contract escrow %s is not funded", *escrow.SmartContractEscrowID)
	case state.Deadline > e.now().Unix():
		// The ledger clock ran ahead of the contract deadline. Defer to a
		// later tick; releasing now would be rejected or, worse, accepted
		// early.
		e.logger.Info("on-chain deadline not reached, deferring release",
			"escrow_id", escrow.ID, "deadline", state.Deadline)
		return nil
	}

	result, err := e.chain.ReleaseEscrow(ctx, *escrow.SmartContractEscrowID)
	if err != nil {
		return fmt.Errorf("release transaction failed: %w", err)
	}

	marked, err := e.repo.MarkEscrowReleased(ctx, escrow.ID, result.TxHash)
	if err != nil {
		return err
	}
	if !marked {
		e.logger.Warn("escrow already marked released by another tick", "escrow_id", escrow.ID)
		return nil
	}
	e.appendReleasedEvent(ctx, payment.ID, escrow.ID, result.TxHash, "custody period ended")
	e.publish(ctx, rabbitmq.RouteEscrowReleased, payment.ID, escrow.ID, domain.EventEscrowReleased,
		map[string]any{"tx_hash": result.TxHash})
	e.logger.Info("escrow released", "escrow_id", escrow.ID, "payment_id", payment.ID, "tx_hash", result.TxHash)
	return nil
}

func (e *Engine) appendReleasedEvent(ctx context.Context, paymentID, escrowID uuid.UUID, txHash, note string) {
	payload := map[string]any{"escrow_id": escrowID.String(), "note": note}
	if txHash != "" {
		payload["tx_hash"] = txHash
	}
	if _, err := e.repo.AppendEventOnce(ctx, &domain.PaymentEvent{
		PaymentID:   paymentID,
		Type:        domain.EventEscrowReleased,
		Description: "Escrow released: " + note,
		Payload:     payload,
	}); err != nil {
		e.logger.Error("failed to append escrow released event", "payment_id", paymentID, "error", err)
	}
}

func (e *Engine) moveToDispute(ctx context.Context, payment *domain.Payment, escrow *domain.Escrow) error {
	if _, err := e.repo.UpdateEscrowStatus(ctx, escrow.ID, escrow.Status, domain.EscrowStatusInDispute); err != nil {
		return err
	}
	if _, err := e.repo.UpdatePaymentStatus(ctx, payment.ID, payment.Status, domain.PaymentStatusInDispute); err != nil {
		return err
	}
	if err := e.repo.AppendEvent(ctx, &domain.PaymentEvent{
		PaymentID:   payment.ID,
		Type:        domain.EventEscrowDisputed,
		Description: "Release halted: contract reports an open dispute",
		Payload:     map[string]any{"escrow_id": escrow.ID.String()},
	}); err != nil {
		e.logger.Error("failed to append dispute event", "payment_id", payment.ID, "error", err)
	}
	e.logger.Warn("escrow moved to dispute", "escrow_id", escrow.ID, "payment_id", payment.ID)
	return nil
}

// RedeemAndPayout redeems released custody amounts MXNB -> MXN and initiates
// the SPEI payout to the seller's registered bank account.
func (e *Engine) RedeemAndPayout(ctx context.Context) error {
	escrows, err := e.repo.FindReleasedEscrows(ctx)
	if err != nil {
		return fmt.Errorf("failed to load released escrows: %w", err)
	}
	for i := range escrows {
		escrow := &escrows[i]
		if err := e.redeemAndPayout(ctx, escrow); err != nil {
			e.logger.Error("payout processing failed", "escrow_id", escrow.ID, "payment_id", escrow.PaymentID, "error", err)
		}
	}
	return nil
}

func (e *Engine) redeemAndPayout(ctx context.Context, escrow *domain.Escrow) error {
	payment, err := e.repo.FindPaymentByID(ctx, escrow.PaymentID)
	if err != nil {
		return err
	}

	switch payment.Status {
	case domain.PaymentStatusEscrowed:
		claimed, err := e.repo.UpdatePaymentStatus(ctx, payment.ID, domain.PaymentStatusEscrowed, domain.PaymentStatusProcessing)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
	case domain.PaymentStatusProcessing:
		// Resume an interrupted payout.
	default:
		return nil
	}

	bankAccountID, err := e.resolvePayoutDestination(ctx, payment)
	if err != nil {
		return err
	}
	if bankAccountID == "" {
		return e.blockPayout(ctx, payment, "no registered payout bank account for payee")
	}

	redeemed, err := e.repo.HasEvent(ctx, payment.ID, domain.EventMXNBRedeemed)
	if err != nil {
		return err
	}
	if !redeemed {
		redemption, err := e.fiat.RedeemMXNB(ctx, escrow.CustodyAmount, bankAccountID, "redeem-"+payment.ID.String())
		if err != nil {
			if appendErr := e.repo.AppendEvent(ctx, &domain.PaymentEvent{
				PaymentID:   payment.ID,
				Type:        domain.EventPayoutError,
				Description: fmt.Sprintf("MXNB redemption failed: %v", err),
				Payload:     map[string]any{"escrow_id": escrow.ID.String()},
			}); appendErr != nil {
				e.logger.Error("failed to append payout error event", "payment_id", payment.ID, "error", appendErr)
			}
			return fmt.Errorf("redemption failed: %w", err)
		}
		if _, err := e.repo.AppendEventOnce(ctx, &domain.PaymentEvent{
			PaymentID:   payment.ID,
			Type:        domain.EventMXNBRedeemed,
			Description: fmt.Sprintf("Redeemed %s MXNB to MXN (redemption %s)", escrow.CustodyAmount, redemption.ID),
			Payload:     map[string]any{"redemption_id": redemption.ID, "bank_account_id": bankAccountID},
		}); err != nil {
			return err
		}
		if _, err := e.repo.UpdateEscrowStatus(ctx, escrow.ID, domain.EscrowStatusReleased, domain.EscrowStatusRedeemed); err != nil {
			return err
		}
		if _, err := e.repo.AppendEventOnce(ctx, &domain.PaymentEvent{
			PaymentID:   payment.ID,
			Type:        domain.EventSPEIPayoutInitiated,
			Description: fmt.Sprintf("SPEI payout of %s %s initiated to account %s", payment.Amount, payment.Currency, bankAccountID),
			Payload:     map[string]any{"redemption_id": redemption.ID, "bank_account_id": bankAccountID},
		}); err != nil {
			return err
		}
		e.publish(ctx, rabbitmq.RoutePayoutInitiated, payment.ID, escrow.ID, domain.EventSPEIPayoutInitiated,
			map[string]any{"redemption_id": redemption.ID})
		e.logger.Info("payout initiated", "payment_id", payment.ID, "redemption_id", redemption.ID, "bank_account_id", bankAccountID)
	}
	return nil
}

// resolvePayoutDestination returns the provider bank account id to pay into:
// the payment's own destination when set, falling back to the payee's
// registered account, registering the payee's CLABE when needed.
func (e *Engine) resolvePayoutDestination(ctx context.Context, payment *domain.Payment) (string, error) {
	if payment.PayoutBankAccountID != nil && *payment.PayoutBankAccountID != "" {
		return *payment.PayoutBankAccountID, nil
	}
	payee, err := e.repo.FindUserByID(ctx, payment.PayeeID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}
	if payee.JunoBankAccountID != nil && *payee.JunoBankAccountID != "" {
		return *payee.JunoBankAccountID, nil
	}
	if payee.PayoutCLABE == nil || *payee.PayoutCLABE == "" {
		return "", nil
	}
	// The CLABE may already be registered from an earlier payout attempt.
	registered, err := e.fiat.GetRegisteredBankAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list registered bank accounts: %w", err)
	}
	for _, account := range registered {
		if account.CLABE == *payee.PayoutCLABE {
			return account.ID, nil
		}
	}
	account, err := e.fiat.RegisterBankAccount(ctx, *payee.PayoutCLABE, payee.Email, "payee-"+payee.ID.String(), "bankreg-"+payee.ID.String())
	if err != nil {
		return "", fmt.Errorf("failed to register payout clabe: %w", err)
	}
	return account.ID, nil
}

// blockPayout records that a payout cannot proceed until its preconditions
// are fixed. The block event is written once per payment.
func (e *Engine) blockPayout(ctx context.Context, payment *domain.Payment, reason string) error {
	blocked, err := e.repo.HasEvent(ctx, payment.ID, domain.EventPayoutBlocked)
	if err != nil {
		return err
	}
	if !blocked {
		if err := e.repo.AppendEvent(ctx, &domain.PaymentEvent{
			PaymentID:   payment.ID,
			Type:        domain.EventPayoutBlocked,
			Description: "Payout blocked: " + reason,
		}); err != nil {
			return err
		}
		e.publish(ctx, rabbitmq.RouteManualIntervention, payment.ID, uuid.Nil, domain.EventPayoutBlocked,
			map[string]any{"reason": reason})
	}
	e.logger.Warn("payout blocked", "payment_id", payment.ID, "reason", reason)
	return nil
}

// ConfirmPayouts polls the fiat rail for the outcome of in-flight payouts and
// completes payments whose SPEI transfer succeeded.
func (e *Engine) ConfirmPayouts(ctx context.Context) error {
	payments, err := e.repo.FindProcessingPayments(ctx)
	if err != nil {
		return fmt.Errorf("failed to load processing payments: %w", err)
	}
	if len(payments) == 0 {
		return nil
	}

	transactions, err := e.fiat.GetTransactionStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch transaction statuses: %w", err)
	}
	byID := make(map[string]string, len(transactions))
	for _, tx := range transactions {
		byID[tx.ID] = tx.Status
	}

	for i := range payments {
		payment := &payments[i]
		if err := e.confirmPayout(ctx, payment, byID); err != nil {
			e.logger.Error("payout confirmation failed", "payment_id", payment.ID, "error", err)
		}
	}
	return nil
}

func (e *Engine) confirmPayout(ctx context.Context, payment *domain.Payment, statusByID map[string]string) error {
	initiated, err := e.repo.FindLatestEvent(ctx, payment.ID, domain.EventSPEIPayoutInitiated)
	if err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			return nil
		}
		return err
	}
	redemptionID, _ := initiated.Payload["redemption_id"].(string)
	if redemptionID == "" {
		return nil
	}
	status, found := statusByID[redemptionID]
	if !found {
		return nil
	}

	switch status {
	case "SUCCEEDED", "COMPLETED", "complete":
		done, err := e.repo.UpdatePaymentStatus(ctx, payment.ID, domain.PaymentStatusProcessing, domain.PaymentStatusCompleted)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
		escrow, err := e.repo.FindEscrowByPaymentID(ctx, payment.ID)
		if err == nil {
			if _, err := e.repo.UpdateEscrowStatus(ctx, escrow.ID, domain.EscrowStatusRedeemed, domain.EscrowStatusCompleted); err != nil {
				e.logger.Error("failed to complete escrow", "escrow_id", escrow.ID, "error", err)
			}
		}
		if _, err := e.repo.AppendEventOnce(ctx, &domain.PaymentEvent{
			PaymentID:   payment.ID,
			Type:        domain.EventPayoutCompleted,
			Description: fmt.Sprintf("SPEI payout confirmed (redemption %s)", redemptionID),
			Payload:     map[string]any{"redemption_id": redemptionID},
		}); err != nil {
			e.logger.Error("failed to append payout completed event", "payment_id", payment.ID, "error", err)
		}
		e.publish(ctx, rabbitmq.RoutePayoutCompleted, payment.ID, uuid.Nil, domain.EventPayoutCompleted,
			map[string]any{"redemption_id": redemptionID})
		e.logger.Info("payout completed", "payment_id", payment.ID, "redemption_id", redemptionID)

	case "FAILED", "failed":
		if err := e.repo.AppendEvent(ctx, &domain.PaymentEvent{
			PaymentID:   payment.ID,
			Type:        domain.EventPayoutError,
			Description: fmt.Sprintf("SPEI payout failed (redemption %s)", redemptionID),
			Payload:     map[string]any{"redemption_id": redemptionID},
		}); err != nil {
			return err
		}
		e.publish(ctx, rabbitmq.RouteManualIntervention, payment.ID, uuid.Nil, domain.EventPayoutError,
			map[string]any{"redemption_id": redemptionID})
		e.logger.Error("payout failed at fiat rail", "payment_id", payment.ID, "redemption_id", redemptionID)
	}
	return nil
}

// RetryFailedEscrowCreations retries escrows with a failed funding attempt on
// an exponential backoff schedule derived from the failure event history, and
// abandons escrows past the attempt budget.
func (e *Engine) RetryFailedEscrowCreations(ctx context.Context) error {
	escrows, err := e.repo.FindFundableEscrows(ctx)
	if err != nil {
		return fmt.Errorf("failed to load fundable escrows: %w", err)
	}
	for i := range escrows {
		escrow := &escrows[i]
		attempts, err := e.repo.CountEventsSince(ctx, escrow.PaymentID, domain.EventEscrowFundingFailed, time.Time{})
		if err != nil {
			e.logger.Error("failed to count funding failures", "escrow_id", escrow.ID, "error", err)
			continue
		}
		if attempts == 0 {
			// No failures yet; the regular funding job owns this escrow.
			continue
		}
		if attempts >= e.cfg.MaxFundingAttempts {
			if err := e.abandonFunding(ctx, escrow, attempts); err != nil {
				e.logger.Error("failed to abandon escrow funding", "escrow_id", escrow.ID, "error", err)
			}
			continue
		}

		latest, err := e.repo.FindLatestEvent(ctx, escrow.PaymentID, domain.EventEscrowFundingFailed)
		if err != nil {
			e.logger.Error("failed to load latest funding failure", "escrow_id", escrow.ID, "error", err)
			continue
		}
		backoff := time.Duration(e.cfg.BackoffBaseMinutes) * time.Minute << (attempts - 1)
		nextAttempt := latest.CreatedAt.Add(backoff)
		if e.now().Before(nextAttempt) {
			continue
		}

		e.logger.Info("retrying escrow funding", "escrow_id", escrow.ID, "attempt", attempts+1, "backoff", backoff)
		if err := e.fundEscrowOnChain(ctx, escrow); err != nil {
			e.logger.Error("escrow funding retry failed", "escrow_id", escrow.ID, "attempt", attempts+1, "error", err)
		}
	}
	return nil
}

func (e *Engine) abandonFunding(ctx context.Context, escrow *domain.Escrow, attempts int) error {
	abandoned, err := e.repo.HasEvent(ctx, escrow.PaymentID, domain.EventEscrowFundingAbandoned)
	if err != nil {
		return err
	}
	if abandoned {
		return nil
	}
	if _, err := e.repo.UpdateEscrowStatus(ctx, escrow.ID, domain.EscrowStatusPending, domain.EscrowStatusFailed); err != nil {
		return err
	}
	if _, err := e.repo.UpdatePaymentStatus(ctx, escrow.PaymentID, domain.PaymentStatusFunded, domain.PaymentStatusFailed); err != nil {
		return err
	}
	if err := e.repo.AppendEvent(ctx, &domain.PaymentEvent{
		PaymentID:   escrow.PaymentID,
		Type:        domain.EventEscrowFundingAbandoned,
		Description: fmt.Sprintf("Escrow funding abandoned after %d attempts", attempts),
		Payload:     map[string]any{"escrow_id": escrow.ID.String(), "attempts": attempts},
	}); err != nil {
		return err
	}
	e.publish(ctx, rabbitmq.RouteManualIntervention, escrow.PaymentID, escrow.ID, domain.EventEscrowFundingAbandoned,
		map[string]any{"attempts": attempts})
	e.logger.Error("escrow funding abandoned", "escrow_id", escrow.ID, "payment_id", escrow.PaymentID, "attempts", attempts)
	return nil
}

func (e *Engine) publish(ctx context.Context, routingKey string, paymentID, escrowID uuid.UUID, eventType string, detail map[string]any) {
	if err := e.producer.Publish(ctx, e.cfg.EventExchange, routingKey, rabbitmq.SettlementEvent{
		PaymentID: paymentID,
		EscrowID:  escrowID,
		Type:      eventType,
		Detail:    detail,
		Timestamp: e.now(),
	}); err != nil {
		e.logger.Warn("failed to publish settlement event", "routing_key", routingKey, "payment_id", paymentID, "error", err)
	}
}
