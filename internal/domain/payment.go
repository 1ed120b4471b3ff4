/**
 * @description
 * This file defines the Payment domain model and its status state machine.
 * A Payment is the fiat-side record of a conditional transfer: a buyer's SPEI
 * deposit matched to this record funds an on-chain escrow for the custody
 * period, and after release the custody amount is redeemed and paid out to
 * the seller by bank transfer.
 *
 * @notes
 * - Statuses are a closed enum with an explicit transition table. Callers must
 *   go through CanTransition/Transition; writing raw strings to the status
 *   column is not supported.
 * - Fiat amounts use shopspring/decimal to avoid float rounding on MXN values.
 */

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"    // awaiting SPEI deposit
	PaymentStatusFunded     PaymentStatus = "funded"     // deposit matched, escrow not yet on-chain
	PaymentStatusEscrowed   PaymentStatus = "escrowed"   // custody locked on-chain
	PaymentStatusProcessing PaymentStatus = "processing" // redemption/payout in flight
	PaymentStatusCompleted  PaymentStatus = "completed"  // payout confirmed
	PaymentStatusInDispute  PaymentStatus = "in_dispute"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// paymentTransitions is the authoritative transition table. Transitions are
// monotonic except for the dispute branch and the processing->escrowed retry
// edge used when a payout attempt fails with a known-negative outcome.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusFunded, PaymentStatusFailed},
	PaymentStatusFunded:     {PaymentStatusEscrowed, PaymentStatusFailed},
	PaymentStatusEscrowed:   {PaymentStatusProcessing, PaymentStatusInDispute, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusEscrowed, PaymentStatusInDispute, PaymentStatusFailed},
	PaymentStatusInDispute:  {PaymentStatusEscrowed, PaymentStatusProcessing, PaymentStatusFailed},
	PaymentStatusCompleted:  {},
	PaymentStatusFailed:     {},
}

// CanTransition reports whether moving from s to next is legal.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates and returns the next status.
func (s PaymentStatus) Transition(next PaymentStatus) (PaymentStatus, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: payment %s -> %s", ErrIllegalTransition, s, next)
	}
	return next, nil
}

// Terminal reports whether the status admits no further transitions.
func (s PaymentStatus) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

// Payment is the central fiat-side ledger record. Maps to the `payments` table.
type Payment struct {
	ID                  uuid.UUID       `json:"id"`
	Amount              decimal.Decimal `json:"amount"` // fiat amount, 2 decimal places
	Currency            string          `json:"currency"`
	Status              PaymentStatus   `json:"status"`
	PayerID             uuid.UUID       `json:"payer_id"`
	PayeeID             uuid.UUID       `json:"payee_id"`
	DepositCLABE        string          `json:"deposit_clabe"`
	PayoutBankAccountID *string         `json:"payout_bank_account_id,omitempty"` // provider-assigned account id
	DepositReference    *string         `json:"deposit_reference,omitempty"`      // FID of the matched deposit
	DepositTransaction  *string         `json:"deposit_transaction_id,omitempty"`
	VerticalType        string          `json:"vertical_type"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// User is the minimal read-only view of a platform user needed by the
// orchestrator: the payee's wallet for escrow creation and the registered
// bank account used as the payout-destination fallback.
type User struct {
	ID                uuid.UUID `json:"id"`
	Email             string    `json:"email"`
	WalletAddress     *string   `json:"wallet_address,omitempty"`
	PayoutCLABE       *string   `json:"payout_clabe,omitempty"`
	JunoBankAccountID *string   `json:"juno_bank_account_id,omitempty"`
}
