/**
 * @description
 * Domain models for the multi-signature approval gate: the approval request
 * created for a high-value release, the signatures collected against it, and
 * the per-wallet-type policy that decides when a request is needed and how
 * many distinct signers constitute a quorum.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)

// Terminal reports whether the request can no longer change by signing.
// Expired requests block the gated release until manually re-queued.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected || s == ApprovalStatusExpired
}

// Wallet types with distinct approval policies.
const (
	WalletTypeHighValue  = "high_value"
	WalletTypeEnterprise = "enterprise"
)

// SignatureKind distinguishes approvals from rejections.
type SignatureKind string

const (
	SignatureApproval  SignatureKind = "approval"
	SignatureRejection SignatureKind = "rejection"
)

// ApprovalPolicy is the configured threshold band and quorum for one wallet
// type. MaxUSD nil means the band is open-ended.
type ApprovalPolicy struct {
	WalletType         string
	MinUSD             decimal.Decimal
	MaxUSD             *decimal.Decimal
	RequiredSignatures int
	ExpiryWindow       time.Duration
}

// Matches reports whether amountUSD falls inside the policy's band.
func (p ApprovalPolicy) Matches(amountUSD decimal.Decimal) bool {
	if amountUSD.LessThan(p.MinUSD) {
		return false
	}
	return p.MaxUSD == nil || !amountUSD.GreaterThan(*p.MaxUSD)
}

// ApprovalRequest gates a single high-value release. Maps to the
// `multisig_approval_requests` table. At most one pending request exists per
// payment.
type ApprovalRequest struct {
	ID                 uuid.UUID       `json:"id"`
	PaymentID          uuid.UUID       `json:"payment_id"`
	EscrowID           uuid.UUID       `json:"escrow_id"`
	WalletType         string          `json:"wallet_type"`
	Amount             decimal.Decimal `json:"amount"`     // fiat amount
	AmountUSD          decimal.Decimal `json:"amount_usd"` // USD equivalent at creation time
	RequiredSignatures int             `json:"required_signatures"`
	Status             ApprovalStatus  `json:"status"`
	ExpiresAt          time.Time       `json:"expires_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ApprovalSignature is one signer's decision on a request. Unique per
// (request, signer). Maps to the `multisig_signatures` table.
type ApprovalSignature struct {
	RequestID     uuid.UUID     `json:"request_id"`
	SignerAddress string        `json:"signer_address"`
	Kind          SignatureKind `json:"type"`
	SignedAt      time.Time     `json:"signed_at"`
}

// WalletOwner is an authorized signer for one wallet type. Maps to the
// `multisig_wallet_owners` table.
type WalletOwner struct {
	WalletType    string `json:"wallet_type"`
	SignerAddress string `json:"signer_address"`
	Active        bool   `json:"active"`
}
