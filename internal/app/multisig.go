/**
 * @description
 * Multi-signature approval gate for high-value releases. Payments whose USD
 * equivalent crosses the configured thresholds may not be released until a
 * quorum of distinct wallet owners approves. The gate owns request creation,
 * signature intake, quorum evaluation and expiry of stale requests.
 *
 * @dependencies
 * - context, log/slog, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal.
 * - internal/config, internal/domain, internal/store, pkg/rabbitmq.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kustodia/settlement-service/internal/config"
	"github.com/kustodia/settlement-service/internal/domain"
	"github.com/kustodia/settlement-service/internal/store"
	"github.com/kustodia/settlement-service/pkg/rabbitmq"
)

// MultiSigGate decides whether a release needs human approval and tracks the
// approval requests it creates.
type MultiSigGate struct {
	repo      store.Repository
	producer  rabbitmq.Publisher
	logger    *slog.Logger
	exchange  string
	policies  []domain.ApprovalPolicy
	mxnPerUSD decimal.Decimal
	now       func() time.Time
}

// NewMultiSigGate creates the gate with policies derived from configuration.
func NewMultiSigGate(repo store.Repository, producer rabbitmq.Publisher, logger *slog.Logger, cfg config.Config) *MultiSigGate {
	highMax := decimal.NewFromFloat(cfg.EnterpriseThresholdUSD).Sub(decimal.New(1, -2))
	policies := []domain.ApprovalPolicy{
		{
			WalletType:         domain.WalletTypeHighValue,
			MinUSD:             decimal.NewFromFloat(cfg.HighValueThresholdUSD),
			MaxUSD:             &highMax,
			RequiredSignatures: cfg.HighValueRequiredSignatures,
			ExpiryWindow:       time.Duration(cfg.ApprovalExpiryHours) * time.Hour,
		},
		{
			WalletType:         domain.WalletTypeEnterprise,
			MinUSD:             decimal.NewFromFloat(cfg.EnterpriseThresholdUSD),
			RequiredSignatures: cfg.EnterpriseRequiredSignatures,
			ExpiryWindow:       time.Duration(cfg.ApprovalExpiryHours) * time.Hour,
		},
	}
	return &MultiSigGate{
		repo:      repo,
		producer:  producer,
		logger:    logger,
		exchange:  cfg.EventExchange,
		policies:  policies,
		mxnPerUSD: cfg.MXNPerUSD(),
		now:       time.Now,
	}
}

// RequiredPolicy returns the policy matching the USD amount, or nil when the
// amount is below every threshold and no approval is needed.
func (g *MultiSigGate) RequiredPolicy(amountUSD decimal.Decimal) *domain.ApprovalPolicy {
	// Policies are ordered low to high; the last match wins so the
	// enterprise band takes precedence over the open-ended check.
	var matched *domain.ApprovalPolicy
	for i := range g.policies {
		if g.policies[i].Matches(amountUSD) {
			matched = &g.policies[i]
		}
	}
	return matched
}

// CheckRelease reports whether the payment's escrow may be released now.
// When approval is required and no terminal decision exists yet, the gate
// ensures a pending request and blocks the release.
func (g *MultiSigGate) CheckRelease(ctx context.Context, payment *domain.Payment, escrow *domain.Escrow) (bool, error) {
	amountUSD, err := domain.USDEquivalent(payment.Amount, g.mxnPerUSD)
	if err != nil {
		return false, err
	}
	policy := g.RequiredPolicy(amountUSD)
	if policy == nil {
		return true, nil
	}

	req, err := g.repo.FindApprovalRequestForPayment(ctx, payment.ID)
	if err != nil {
		if !errors.Is(err, store.ErrApprovalRequestNotFound) {
			return false, err
		}
		req, err = g.createRequest(ctx, payment, escrow, policy, amountUSD)
		if err != nil {
			return false, err
		}
	}

	switch req.Status {
	case domain.ApprovalStatusApproved:
		return true, nil
	case domain.ApprovalStatusPending:
		g.logger.Info("release blocked pending multisig approval",
			"payment_id", payment.ID, "request_id", req.ID, "wallet_type", req.WalletType,
			"signatures_required", req.RequiredSignatures)
		return false, nil
	default:
		// Rejected and expired are terminal until an operator re-queues.
		g.logger.Warn("release blocked by terminal approval state",
			"payment_id", payment.ID, "request_id", req.ID, "status", req.Status)
		return false, nil
	}
}

func (g *MultiSigGate) createRequest(ctx context.Context, payment *domain.Payment, escrow *domain.Escrow, policy *domain.ApprovalPolicy, amountUSD decimal.Decimal) (*domain.ApprovalRequest, error) {
	req := &domain.ApprovalRequest{
		PaymentID:          payment.ID,
		EscrowID:           escrow.ID,
		WalletType:         policy.WalletType,
		Amount:             payment.Amount,
		AmountUSD:          amountUSD,
		RequiredSignatures: policy.RequiredSignatures,
		ExpiresAt:          g.now().Add(policy.ExpiryWindow),
	}
	req, created, err := g.repo.CreatePendingApprovalRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval request: %w", err)
	}
	if !created {
		return req, nil
	}

	if _, err := g.repo.AppendEventOnce(ctx, &domain.PaymentEvent{
		PaymentID:   payment.ID,
		Type:        domain.EventMultiSigRequested,
		Description: fmt.Sprintf("Multi-sig approval required: %s wallet, %d signatures", policy.WalletType, policy.RequiredSignatures),
		Payload: map[string]any{
			"request_id":  req.ID.String(),
			"wallet_type": policy.WalletType,
			"amount_usd":  amountUSD.String(),
		},
	}); err != nil {
		return nil, err
	}

	if err := g.producer.Publish(ctx, g.exchange, rabbitmq.RouteApprovalRequested, rabbitmq.SettlementEvent{
		PaymentID: payment.ID,
		EscrowID:  escrow.ID,
		Type:      domain.EventMultiSigRequested,
		Detail:    map[string]any{"request_id": req.ID.String(), "wallet_type": policy.WalletType},
		Timestamp: g.now(),
	}); err != nil {
		g.logger.Warn("failed to publish approval requested event", "payment_id", payment.ID, "error", err)
	}

	g.logger.Info("created multisig approval request",
		"payment_id", payment.ID, "request_id", req.ID, "wallet_type", policy.WalletType, "amount_usd", amountUSD)
	return req, nil
}

// SubmitSignature records one signer's decision and flips the request when a
// quorum is reached or a rejection arrives.
func (g *MultiSigGate) SubmitSignature(ctx context.Context, requestID uuid.UUID, signerAddress string, kind domain.SignatureKind) (*domain.ApprovalRequest, error) {
	req, err := g.repo.FindApprovalRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.ApprovalStatusPending {
		return req, ErrApprovalNotPending
	}
	if g.now().After(req.ExpiresAt) {
		return req, ErrApprovalNotPending
	}

	isOwner, err := g.repo.IsWalletOwner(ctx, req.WalletType, signerAddress)
	if err != nil {
		return nil, err
	}
	if !isOwner {
		return req, ErrNotWalletOwner
	}

	added, err := g.repo.AddApprovalSignature(ctx, &domain.ApprovalSignature{
		RequestID:     req.ID,
		SignerAddress: signerAddress,
		Kind:          kind,
	})
	if err != nil {
		return nil, err
	}
	if !added {
		return req, ErrAlreadySigned
	}

	if kind == domain.SignatureRejection {
		flipped, err := g.repo.UpdateApprovalStatus(ctx, req.ID, domain.ApprovalStatusPending, domain.ApprovalStatusRejected)
		if err != nil {
			return nil, err
		}
		if flipped {
			g.appendDecisionEvent(ctx, req, domain.EventMultiSigRejected, signerAddress)
		}
		return g.repo.FindApprovalRequestByID(ctx, req.ID)
	}

	count, err := g.repo.CountApprovalSignatures(ctx, req.ID, domain.SignatureApproval)
	if err != nil {
		return nil, err
	}
	if count >= req.RequiredSignatures {
		flipped, err := g.repo.UpdateApprovalStatus(ctx, req.ID, domain.ApprovalStatusPending, domain.ApprovalStatusApproved)
		if err != nil {
			return nil, err
		}
		if flipped {
			g.appendDecisionEvent(ctx, req, domain.EventMultiSigApproved, signerAddress)
			g.logger.Info("multisig quorum reached", "request_id", req.ID, "payment_id", req.PaymentID, "signatures", count)
		}
	}
	return g.repo.FindApprovalRequestByID(ctx, req.ID)
}

func (g *MultiSigGate) appendDecisionEvent(ctx context.Context, req *domain.ApprovalRequest, eventType, signerAddress string) {
	if err := g.repo.AppendEvent(ctx, &domain.PaymentEvent{
		PaymentID:   req.PaymentID,
		Type:        eventType,
		Description: fmt.Sprintf("Multi-sig request %s: %s", req.ID, eventType),
		Payload:     map[string]any{"request_id": req.ID.String(), "signer": signerAddress},
	}); err != nil {
		g.logger.Error("failed to append multisig decision event", "request_id", req.ID, "error", err)
	}
}

// IsApproved reports whether the payment currently holds an approved request.
func (g *MultiSigGate) IsApproved(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	req, err := g.repo.FindApprovalRequestForPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, store.ErrApprovalRequestNotFound) {
			return false, nil
		}
		return false, err
	}
	return req.Status == domain.ApprovalStatusApproved, nil
}

// ExpireStaleRequests transitions pending requests past their deadline to
// expired. Expired requests stay terminal until an operator re-queues them.
func (g *MultiSigGate) ExpireStaleRequests(ctx context.Context) (int, error) {
	expired, err := g.repo.ExpirePendingApprovals(ctx, g.now())
	if err != nil {
		return 0, err
	}
	for _, req := range expired {
		if err := g.repo.AppendEvent(ctx, &domain.PaymentEvent{
			PaymentID:   req.PaymentID,
			Type:        domain.EventMultiSigExpired,
			Description: fmt.Sprintf("Multi-sig request %s expired without quorum", req.ID),
			Payload:     map[string]any{"request_id": req.ID.String()},
		}); err != nil {
			g.logger.Error("failed to append multisig expiry event", "request_id", req.ID, "error", err)
		}
		g.logger.Warn("multisig approval request expired", "request_id", req.ID, "payment_id", req.PaymentID)
	}
	return len(expired), nil
}

// RequeueExpired returns an expired request to pending with a fresh deadline.
func (g *MultiSigGate) RequeueExpired(ctx context.Context, requestID uuid.UUID) (*domain.ApprovalRequest, error) {
	req, err := g.repo.FindApprovalRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	window := time.Duration(72) * time.Hour
	for _, p := range g.policies {
		if p.WalletType == req.WalletType {
			window = p.ExpiryWindow
		}
	}
	requeued, err := g.repo.RequeueExpiredApproval(ctx, requestID, g.now().Add(window))
	if err != nil {
		return nil, err
	}
	if !requeued {
		return req, fmt.Errorf("approval request %s is not expired", requestID)
	}
	g.logger.Info("re-queued expired multisig request", "request_id", requestID)
	return g.repo.FindApprovalRequestByID(ctx, requestID)
}
