/**
 * @description
 * This file defines the gateway interfaces the settlement engine depends on.
 * The concrete clients live in pkg/chainclient and pkg/junoclient; the
 * interfaces exist so the lifecycle engine, safety service and multi-sig gate
 * can be tested against stubs.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/shopspring/decimal: Exact fiat amounts.
 * - pkg/chainclient, pkg/junoclient: Request and response types.
 */

package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/kustodia/settlement-service/pkg/chainclient"
	"github.com/kustodia/settlement-service/pkg/junoclient"
)

// ChainGateway is the escrow contract surface, served by the bridge signer.
type ChainGateway interface {
	CreateEscrow(ctx context.Context, params chainclient.CreateEscrowParams) (*chainclient.EscrowCreated, error)
	FundEscrow(ctx context.Context, escrowID string, amount int64) (*chainclient.TxResult, error)
	ReleaseEscrow(ctx context.Context, escrowID string) (*chainclient.TxResult, error)
	GetEscrow(ctx context.Context, escrowID string) (*chainclient.EscrowState, error)
	GetEscrowByTx(ctx context.Context, txHash string) (*chainclient.EscrowState, error)
}

// FiatGateway is the Juno platform surface: SPEI deposits in, MXNB
// withdrawals and redemptions out.
type FiatGateway interface {
	ListSpeiDeposits(ctx context.Context) ([]junoclient.SpeiDeposit, error)
	RegisterBankAccount(ctx context.Context, clabe, recipientName, tag, idempotencyKey string) (*junoclient.BankAccount, error)
	GetRegisteredBankAccounts(ctx context.Context) ([]junoclient.BankAccount, error)
	RedeemMXNB(ctx context.Context, amount decimal.Decimal, bankAccountID, idempotencyKey string) (*junoclient.Redemption, error)
	WithdrawToBridge(ctx context.Context, amount decimal.Decimal, bridgeAddress, idempotencyKey string) (*junoclient.Withdrawal, error)
	GetTransactionStatus(ctx context.Context) ([]junoclient.Transaction, error)
}

// Sentinel errors surfaced to the API layer.
var (
	ErrNotWalletOwner     = errors.New("signer is not an owner of the multisig wallet")
	ErrApprovalNotPending = errors.New("approval request is not pending")
	ErrAlreadySigned      = errors.New("signer already signed this request")
)
