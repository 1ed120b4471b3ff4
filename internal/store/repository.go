/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the settlement orchestrator needs. The interface decouples the
 * lifecycle engine, safety service and multi-sig gate from the PostgreSQL
 * implementation, which keeps the state machine testable against an
 * in-memory fake.
 *
 * Conditional mutations return a bool reporting whether the row was actually
 * updated. These conditional writes (status preconditions, `IS NULL` guards,
 * `ON CONFLICT DO NOTHING`) are the orchestrator's only concurrency control:
 * a `false` return means another scheduler tick already performed the work
 * and the caller must discard its result.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kustodia/settlement-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Payment methods
	FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	FindPendingDepositPayments(ctx context.Context) ([]domain.Payment, error)
	FindProcessingPayments(ctx context.Context) ([]domain.Payment, error)
	// MarkPaymentFunded records the matched deposit and moves the payment
	// pending -> funded. Returns false if the payment was already funded.
	MarkPaymentFunded(ctx context.Context, paymentID uuid.UUID, reference, transactionID string) (bool, error)
	// UpdatePaymentStatus performs a compare-and-set status transition.
	UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, from, to domain.PaymentStatus) (bool, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// Escrow methods
	FindEscrowByID(ctx context.Context, escrowID uuid.UUID) (*domain.Escrow, error)
	FindEscrowByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Escrow, error)
	FindFundableEscrows(ctx context.Context) ([]domain.Escrow, error)
	FindReleasableEscrows(ctx context.Context, now time.Time) ([]domain.Escrow, error)
	FindReleasedEscrows(ctx context.Context) ([]domain.Escrow, error)
	// RecordFundingTxSubmitted stores the funding transaction hash as soon as
	// it is known, before on-chain confirmation.
	RecordFundingTxSubmitted(ctx context.Context, escrowID uuid.UUID, txHash string) error
	// AttachEscrowContract persists the confirmed contract escrow id and
	// funding tx hash, guarded by `smart_contract_escrow_id IS NULL`.
	AttachEscrowContract(ctx context.Context, escrowID uuid.UUID, contractEscrowID, fundingTxHash string) (bool, error)
	// MarkEscrowReleased persists the release tx hash, guarded by
	// `release_tx_hash IS NULL`.
	MarkEscrowReleased(ctx context.Context, escrowID uuid.UUID, releaseTxHash string) (bool, error)
	// UpdateEscrowStatus performs a compare-and-set status transition.
	UpdateEscrowStatus(ctx context.Context, escrowID uuid.UUID, from, to domain.EscrowStatus) (bool, error)

	// Stuck-escrow queries for the safety service
	FindEscrowsMissingContractID(ctx context.Context, submittedBefore time.Time) ([]domain.Escrow, error)
	FindOverdueActiveEscrows(ctx context.Context, custodyEndBefore time.Time) ([]domain.Escrow, error)
	FindLegacyStatusEscrows(ctx context.Context) ([]domain.Escrow, error)

	// Payment event methods
	AppendEvent(ctx context.Context, event *domain.PaymentEvent) error
	// AppendEventOnce inserts an at-most-once event; returns false without
	// error when the (payment_id, type) pair already exists.
	AppendEventOnce(ctx context.Context, event *domain.PaymentEvent) (bool, error)
	HasEvent(ctx context.Context, paymentID uuid.UUID, eventType string) (bool, error)
	FindLatestEvent(ctx context.Context, paymentID uuid.UUID, eventType string) (*domain.PaymentEvent, error)
	CountEventsSince(ctx context.Context, paymentID uuid.UUID, eventType string, since time.Time) (int, error)

	// Multi-sig methods
	// CreatePendingApprovalRequest inserts the single pending request for a
	// payment; returns the existing request and false when one already exists.
	CreatePendingApprovalRequest(ctx context.Context, req *domain.ApprovalRequest) (*domain.ApprovalRequest, bool, error)
	FindApprovalRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.ApprovalRequest, error)
	FindApprovalRequestForPayment(ctx context.Context, paymentID uuid.UUID) (*domain.ApprovalRequest, error)
	ListApprovalRequests(ctx context.Context, status domain.ApprovalStatus) ([]domain.ApprovalRequest, error)
	// AddApprovalSignature records a signer decision; returns false when this
	// signer already signed the request.
	AddApprovalSignature(ctx context.Context, sig *domain.ApprovalSignature) (bool, error)
	CountApprovalSignatures(ctx context.Context, requestID uuid.UUID, kind domain.SignatureKind) (int, error)
	// UpdateApprovalStatus performs a compare-and-set status transition.
	UpdateApprovalStatus(ctx context.Context, requestID uuid.UUID, from, to domain.ApprovalStatus) (bool, error)
	ExpirePendingApprovals(ctx context.Context, now time.Time) ([]domain.ApprovalRequest, error)
	// RequeueExpiredApproval is the explicit administrative path that returns
	// an expired request to pending with a fresh deadline.
	RequeueExpiredApproval(ctx context.Context, requestID uuid.UUID, expiresAt time.Time) (bool, error)
	IsWalletOwner(ctx context.Context, walletType, signerAddress string) (bool, error)
}
