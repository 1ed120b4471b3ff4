/**
 * @description
 * This file defines the Escrow domain model: the ledger mirror of the on-chain
 * custody record, together with its status state machine.
 *
 * @notes
 * - SmartContractEscrowID is nil until the funding transaction is confirmed
 *   on-chain; FundingTxHash may be set earlier (submitted, outcome unknown).
 * - ReleaseTxHash is set only when the status is released or later.
 */

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EscrowStatus is the lifecycle state of an escrow.
type EscrowStatus string

const (
	EscrowStatusPending   EscrowStatus = "pending"  // not yet on-chain
	EscrowStatusActive    EscrowStatus = "active"   // funded on-chain, custody running
	EscrowStatusReleased  EscrowStatus = "released" // release tx confirmed
	EscrowStatusRedeemed  EscrowStatus = "redeemed" // custody token redeemed to fiat
	EscrowStatusCompleted EscrowStatus = "completed"
	EscrowStatusInDispute EscrowStatus = "in_dispute"
	EscrowStatusFailed    EscrowStatus = "failed"

	// EscrowStatusLegacyFunded is an incorrect historical value still present
	// in old rows. It is never written by this code; the safety service
	// corrects it to active once on-chain funding is confirmed.
	EscrowStatusLegacyFunded EscrowStatus = "funded"
)

var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowStatusPending:   {EscrowStatusActive, EscrowStatusFailed},
	EscrowStatusActive:    {EscrowStatusReleased, EscrowStatusInDispute, EscrowStatusFailed},
	EscrowStatusReleased:  {EscrowStatusRedeemed, EscrowStatusCompleted, EscrowStatusInDispute, EscrowStatusFailed},
	EscrowStatusRedeemed:  {EscrowStatusCompleted, EscrowStatusFailed},
	EscrowStatusInDispute: {EscrowStatusActive, EscrowStatusReleased, EscrowStatusFailed},
	EscrowStatusCompleted: {},
	EscrowStatusFailed:    {},

	// Legacy rows may only be normalized to the state implied by the chain.
	EscrowStatusLegacyFunded: {EscrowStatusActive, EscrowStatusReleased, EscrowStatusFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s EscrowStatus) CanTransition(next EscrowStatus) bool {
	for _, allowed := range escrowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates and returns the next status.
func (s EscrowStatus) Transition(next EscrowStatus) (EscrowStatus, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: escrow %s -> %s", ErrIllegalTransition, s, next)
	}
	return next, nil
}

// Terminal reports whether the status admits no further transitions.
func (s EscrowStatus) Terminal() bool {
	return len(escrowTransitions[s]) == 0
}

// Escrow mirrors the on-chain custody record. Maps to the `escrows` table.
type Escrow struct {
	ID                    uuid.UUID       `json:"id"`
	PaymentID             uuid.UUID       `json:"payment_id"`
	CustodyAmount         decimal.Decimal `json:"custody_amount"` // fiat-denominated custody amount
	CustodyEnd            time.Time       `json:"custody_end"`
	Status                EscrowStatus    `json:"status"`
	FundingTxHash         *string         `json:"blockchain_tx_hash,omitempty"`
	ReleaseTxHash         *string         `json:"release_tx_hash,omitempty"`
	SmartContractEscrowID *string         `json:"smart_contract_escrow_id,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// FundedOnChain reports whether the contract has confirmed this escrow.
func (e *Escrow) FundedOnChain() bool {
	return e.SmartContractEscrowID != nil && *e.SmartContractEscrowID != ""
}

// ReleaseEligible reports whether the ledger state alone makes the escrow a
// release candidate at the given instant. On-chain state must still be
// re-confirmed before submitting a release transaction.
func (e *Escrow) ReleaseEligible(now time.Time) bool {
	return e.Status == EscrowStatusActive && !e.CustodyEnd.After(now) && e.ReleaseTxHash == nil
}
