/**
 * @description
 * This file defines PaymentEvent, the append-only audit record for every
 * settlement side effect, together with the stable event-type names consumed
 * by downstream reporting. Event types are an open string enum: new types may
 * be added but existing names must never be reused with a different meaning.
 *
 * At-most-once event types double as idempotency keys: the store enforces a
 * unique (payment_id, type) constraint for them, so "insert the event" and
 * "claim the side effect" are the same operation.
 */

package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrIllegalTransition is returned by the status state machines when a caller
// requests a transition not present in the transition table.
var ErrIllegalTransition = errors.New("illegal status transition")

// Event types written by the orchestrator.
const (
	EventDepositMatched            = "deposit_matched"
	EventBridgeWithdrawalInitiated = "bridge_withdrawal_initiated"
	EventEscrowFundedOnChain       = "escrow_funded_onchain"
	EventEscrowFundingFailed       = "escrow_funding_failed"
	EventEscrowFundingAbandoned    = "escrow_funding_abandoned"
	EventEscrowReleased            = "escrow_released"
	EventEscrowReleaseFailed       = "escrow_release_failed"
	EventEscrowDisputed            = "escrow_disputed"
	EventMXNBRedeemed              = "mxnb_redeemed"
	EventSPEIPayoutInitiated       = "spei_payout_initiated"
	EventPayoutCompleted           = "payout_completed"
	EventPayoutError               = "payout_error"
	EventPayoutBlocked             = "payout_blocked"
	EventMultiSigRequested         = "multisig_approval_requested"
	EventMultiSigApproved          = "multisig_approved"
	EventMultiSigRejected          = "multisig_rejected"
	EventMultiSigExpired           = "multisig_expired"
	EventEscrowRecoverySuccess     = "escrow_recovery_success"
	EventEscrowRecoveryFailed      = "escrow_recovery_failed"
)

// atMostOnceEvents lists the event types that carry an at-most-once guarantee
// per payment. The store refuses duplicate inserts for these.
var atMostOnceEvents = map[string]bool{
	EventDepositMatched:            true,
	EventBridgeWithdrawalInitiated: true,
	EventEscrowFundedOnChain:       true,
	EventEscrowReleased:            true,
	EventMXNBRedeemed:              true,
	EventSPEIPayoutInitiated:       true,
	EventPayoutCompleted:           true,
	EventMultiSigRequested:         true,
}

// EventAtMostOnce reports whether eventType must occur at most once per payment.
func EventAtMostOnce(eventType string) bool {
	return atMostOnceEvents[eventType]
}

// PaymentEvent is one immutable row of the settlement audit trail. Maps to the
// `payment_events` table. Rows are never mutated or deleted by the core.
type PaymentEvent struct {
	ID          uuid.UUID      `json:"id"`
	PaymentID   uuid.UUID      `json:"payment_id"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
