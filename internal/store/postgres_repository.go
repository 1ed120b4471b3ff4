/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. Contains all SQL
 * for the payments, escrows, payment_events and multisig tables.
 *
 * Numeric money columns travel as text between Postgres and Go and are parsed
 * into shopspring decimals to avoid any float conversion.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kustodia/settlement-service/internal/domain"
)

var (
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrEscrowNotFound          = errors.New("escrow not found")
	ErrUserNotFound            = errors.New("user not found")
	ErrEventNotFound           = errors.New("payment event not found")
	ErrApprovalRequestNotFound = errors.New("approval request not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const paymentColumns = `id, amount::text, currency, status, payer_id, payee_id, deposit_clabe,
	payout_bank_account_id, deposit_reference, deposit_transaction_id, vertical_type, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var amount string
	var status string
	err := row.Scan(&p.ID, &amount, &p.Currency, &status, &p.PayerID, &p.PayeeID, &p.DepositCLABE,
		&p.PayoutBankAccountID, &p.DepositReference, &p.DepositTransaction, &p.VerticalType, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PaymentStatus(status)
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid payment amount %q: %w", amount, err)
	}
	return &p, nil
}

// FindPaymentByID retrieves a payment by its ID.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// FindPendingDepositPayments returns payments still awaiting their SPEI deposit.
func (r *PostgresRepository) FindPendingDepositPayments(ctx context.Context) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status = 'pending' AND deposit_clabe <> '' ORDER BY created_at`
	return r.queryPayments(ctx, query)
}

// FindProcessingPayments returns payments with a redemption/payout in flight.
func (r *PostgresRepository) FindProcessingPayments(ctx context.Context) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status = 'processing' ORDER BY updated_at`
	return r.queryPayments(ctx, query)
}

func (r *PostgresRepository) queryPayments(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// MarkPaymentFunded records the matched deposit and moves pending -> funded.
func (r *PostgresRepository) MarkPaymentFunded(ctx context.Context, paymentID uuid.UUID, reference, transactionID string) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'funded', deposit_reference = $2, deposit_transaction_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, paymentID, reference, transactionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePaymentStatus performs a compare-and-set status transition. The
// transition table is enforced here so no caller can persist an illegal move.
func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, from, to domain.PaymentStatus) (bool, error) {
	if _, err := from.Transition(to); err != nil {
		return false, err
	}
	query := `UPDATE payments SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	tag, err := r.db.Exec(ctx, query, paymentID, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FindUserByID retrieves the minimal user view used for payout fallback.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var u domain.User
	query := `SELECT id, email, wallet_address, payout_clabe, juno_bank_account_id FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&u.ID, &u.Email, &u.WalletAddress, &u.PayoutCLABE, &u.JunoBankAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

const escrowColumns = `id, payment_id, custody_amount::text, custody_end, status,
	funding_tx_hash, release_tx_hash, smart_contract_escrow_id, created_at, updated_at`

func scanEscrow(row pgx.Row) (*domain.Escrow, error) {
	var e domain.Escrow
	var amount string
	var status string
	err := row.Scan(&e.ID, &e.PaymentID, &amount, &e.CustodyEnd, &status,
		&e.FundingTxHash, &e.ReleaseTxHash, &e.SmartContractEscrowID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = domain.EscrowStatus(status)
	e.CustodyAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid custody amount %q: %w", amount, err)
	}
	return &e, nil
}

// FindEscrowByID retrieves an escrow by its ID.
func (r *PostgresRepository) FindEscrowByID(ctx context.Context, escrowID uuid.UUID) (*domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`
	e, err := scanEscrow(r.db.QueryRow(ctx, query, escrowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, err
	}
	return e, nil
}

// FindEscrowByPaymentID retrieves the (at most one) escrow for a payment.
func (r *PostgresRepository) FindEscrowByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE payment_id = $1`
	e, err := scanEscrow(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, err
	}
	return e, nil
}

// FindFundableEscrows returns pending escrows whose payment is funded and
// which have not been put on-chain yet.
func (r *PostgresRepository) FindFundableEscrows(ctx context.Context) ([]domain.Escrow, error) {
	query := `
		SELECT ` + prefixedEscrowColumns("e") + `
		FROM escrows e
		JOIN payments p ON p.id = e.payment_id
		WHERE e.status = 'pending' AND e.smart_contract_escrow_id IS NULL AND p.status = 'funded'
		ORDER BY e.created_at
	`
	return r.queryEscrows(ctx, query)
}

// FindReleasableEscrows returns active escrows past custody end with no
// release transaction recorded.
func (r *PostgresRepository) FindReleasableEscrows(ctx context.Context, now time.Time) ([]domain.Escrow, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrows
		WHERE status = 'active' AND custody_end <= $1 AND release_tx_hash IS NULL
		ORDER BY custody_end
	`
	return r.queryEscrows(ctx, query, now)
}

// FindReleasedEscrows returns escrows awaiting redemption and payout.
func (r *PostgresRepository) FindReleasedEscrows(ctx context.Context) ([]domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE status = 'released' ORDER BY updated_at`
	return r.queryEscrows(ctx, query)
}

func (r *PostgresRepository) queryEscrows(ctx context.Context, query string, args ...any) ([]domain.Escrow, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var escrows []domain.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, *e)
	}
	return escrows, rows.Err()
}

func prefixedEscrowColumns(alias string) string {
	return alias + `.id, ` + alias + `.payment_id, ` + alias + `.custody_amount::text, ` + alias + `.custody_end, ` +
		alias + `.status, ` + alias + `.funding_tx_hash, ` + alias + `.release_tx_hash, ` +
		alias + `.smart_contract_escrow_id, ` + alias + `.created_at, ` + alias + `.updated_at`
}

// RecordFundingTxSubmitted stores the funding tx hash before confirmation so
// a crash between submit and confirm leaves a recoverable trace.
func (r *PostgresRepository) RecordFundingTxSubmitted(ctx context.Context, escrowID uuid.UUID, txHash string) error {
	query := `UPDATE escrows SET funding_tx_hash = $2, updated_at = NOW() WHERE id = $1 AND funding_tx_hash IS NULL`
	_, err := r.db.Exec(ctx, query, escrowID, txHash)
	return err
}

// AttachEscrowContract persists the confirmed on-chain identifiers. The
// `smart_contract_escrow_id IS NULL` guard makes the funding step at-most-once
// even when two scheduler ticks race.
func (r *PostgresRepository) AttachEscrowContract(ctx context.Context, escrowID uuid.UUID, contractEscrowID, fundingTxHash string) (bool, error) {
	query := `
		UPDATE escrows
		SET smart_contract_escrow_id = $2, funding_tx_hash = $3, status = 'active', updated_at = NOW()
		WHERE id = $1 AND smart_contract_escrow_id IS NULL
	`
	tag, err := r.db.Exec(ctx, query, escrowID, contractEscrowID, fundingTxHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkEscrowReleased persists the release tx hash. Guarded by
// `release_tx_hash IS NULL` so release is at-most-once per escrow.
func (r *PostgresRepository) MarkEscrowReleased(ctx context.Context, escrowID uuid.UUID, releaseTxHash string) (bool, error) {
	query := `
		UPDATE escrows
		SET release_tx_hash = $2, status = 'released', updated_at = NOW()
		WHERE id = $1 AND release_tx_hash IS NULL
	`
	tag, err := r.db.Exec(ctx, query, escrowID, releaseTxHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateEscrowStatus performs a compare-and-set status transition.
func (r *PostgresRepository) UpdateEscrowStatus(ctx context.Context, escrowID uuid.UUID, from, to domain.EscrowStatus) (bool, error) {
	if _, err := from.Transition(to); err != nil {
		return false, err
	}
	query := `UPDATE escrows SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	tag, err := r.db.Exec(ctx, query, escrowID, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FindEscrowsMissingContractID returns escrows whose funding transaction was
// submitted before the cutoff but which never recorded a contract escrow id.
func (r *PostgresRepository) FindEscrowsMissingContractID(ctx context.Context, submittedBefore time.Time) ([]domain.Escrow, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrows
		WHERE funding_tx_hash IS NOT NULL AND smart_contract_escrow_id IS NULL AND updated_at <= $1
		ORDER BY updated_at
	`
	return r.queryEscrows(ctx, query, submittedBefore)
}

// FindOverdueActiveEscrows returns active escrows whose custody end passed
// the grace cutoff with no release transaction recorded.
func (r *PostgresRepository) FindOverdueActiveEscrows(ctx context.Context, custodyEndBefore time.Time) ([]domain.Escrow, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrows
		WHERE status = 'active' AND custody_end <= $1 AND release_tx_hash IS NULL
		ORDER BY custody_end
	`
	return r.queryEscrows(ctx, query, custodyEndBefore)
}

// FindLegacyStatusEscrows returns rows still carrying the historical 'funded'
// status literal.
func (r *PostgresRepository) FindLegacyStatusEscrows(ctx context.Context) ([]domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE status = 'funded' ORDER BY created_at`
	return r.queryEscrows(ctx, query)
}

// AppendEvent inserts an audit event unconditionally (repeatable types).
func (r *PostgresRepository) AppendEvent(ctx context.Context, event *domain.PaymentEvent) error {
	payload, err := marshalPayload(event.Payload)
	if err != nil {
		return err
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	query := `
		INSERT INTO payment_events (id, payment_id, type, description, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err = r.db.Exec(ctx, query, event.ID, event.PaymentID, event.Type, event.Description, payload)
	return err
}

// AppendEventOnce inserts an at-most-once event. The partial unique index on
// (payment_id, type) is the idempotency key; a conflict means the side effect
// was already recorded and the caller must not repeat it.
func (r *PostgresRepository) AppendEventOnce(ctx context.Context, event *domain.PaymentEvent) (bool, error) {
	if !domain.EventAtMostOnce(event.Type) {
		return false, fmt.Errorf("event type %q is not registered as at-most-once", event.Type)
	}
	payload, err := marshalPayload(event.Payload)
	if err != nil {
		return false, err
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	query := `
		INSERT INTO payment_events (id, payment_id, type, description, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, event.ID, event.PaymentID, event.Type, event.Description, payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// HasEvent reports whether at least one event of the given type exists.
func (r *PostgresRepository) HasEvent(ctx context.Context, paymentID uuid.UUID, eventType string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM payment_events WHERE payment_id = $1 AND type = $2)`
	if err := r.db.QueryRow(ctx, query, paymentID, eventType).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// FindLatestEvent returns the newest event of the given type for a payment.
func (r *PostgresRepository) FindLatestEvent(ctx context.Context, paymentID uuid.UUID, eventType string) (*domain.PaymentEvent, error) {
	var e domain.PaymentEvent
	var payload []byte
	query := `
		SELECT id, payment_id, type, description, payload, created_at
		FROM payment_events
		WHERE payment_id = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, paymentID, eventType).Scan(&e.ID, &e.PaymentID, &e.Type, &e.Description, &payload, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("invalid event payload: %w", err)
		}
	}
	return &e, nil
}

// CountEventsSince counts events of a type newer than the given instant.
func (r *PostgresRepository) CountEventsSince(ctx context.Context, paymentID uuid.UUID, eventType string, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM payment_events WHERE payment_id = $1 AND type = $2 AND created_at > $3`
	if err := r.db.QueryRow(ctx, query, paymentID, eventType, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return data, nil
}

const approvalColumns = `id, payment_id, escrow_id, wallet_type, amount::text, amount_usd::text,
	required_signatures, status, expires_at, created_at, updated_at`

func scanApproval(row pgx.Row) (*domain.ApprovalRequest, error) {
	var a domain.ApprovalRequest
	var amount, amountUSD, status string
	err := row.Scan(&a.ID, &a.PaymentID, &a.EscrowID, &a.WalletType, &amount, &amountUSD,
		&a.RequiredSignatures, &status, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = domain.ApprovalStatus(status)
	if a.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid approval amount %q: %w", amount, err)
	}
	if a.AmountUSD, err = decimal.NewFromString(amountUSD); err != nil {
		return nil, fmt.Errorf("invalid approval usd amount %q: %w", amountUSD, err)
	}
	return &a, nil
}

// CreatePendingApprovalRequest inserts the single pending request for a
// payment. The partial unique index on (payment_id) WHERE status = 'pending'
// makes creation idempotent; when a request already exists it is returned
// with created=false.
func (r *PostgresRepository) CreatePendingApprovalRequest(ctx context.Context, req *domain.ApprovalRequest) (*domain.ApprovalRequest, bool, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	query := `
		INSERT INTO multisig_approval_requests
			(id, payment_id, escrow_id, wallet_type, amount, amount_usd, required_signatures, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, NOW(), NOW())
		ON CONFLICT (payment_id) WHERE status = 'pending' DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, req.ID, req.PaymentID, req.EscrowID, req.WalletType,
		req.Amount.String(), req.AmountUSD.String(), req.RequiredSignatures, req.ExpiresAt)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 1 {
		req.Status = domain.ApprovalStatusPending
		return req, true, nil
	}
	existing, err := r.FindApprovalRequestForPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindApprovalRequestByID retrieves an approval request by its ID.
func (r *PostgresRepository) FindApprovalRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM multisig_approval_requests WHERE id = $1`
	a, err := scanApproval(r.db.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApprovalRequestNotFound
		}
		return nil, err
	}
	return a, nil
}

// FindApprovalRequestForPayment returns the newest request for a payment.
func (r *PostgresRepository) FindApprovalRequestForPayment(ctx context.Context, paymentID uuid.UUID) (*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM multisig_approval_requests WHERE payment_id = $1 ORDER BY created_at DESC LIMIT 1`
	a, err := scanApproval(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApprovalRequestNotFound
		}
		return nil, err
	}
	return a, nil
}

// ListApprovalRequests returns requests in the given status, oldest first.
func (r *PostgresRepository) ListApprovalRequests(ctx context.Context, status domain.ApprovalStatus) ([]domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM multisig_approval_requests WHERE status = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *a)
	}
	return requests, rows.Err()
}

// AddApprovalSignature records a signer decision. The primary key on
// (request_id, signer_address) guarantees distinct signers.
func (r *PostgresRepository) AddApprovalSignature(ctx context.Context, sig *domain.ApprovalSignature) (bool, error) {
	query := `
		INSERT INTO multisig_signatures (request_id, signer_address, type, signed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (request_id, signer_address) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, sig.RequestID, sig.SignerAddress, string(sig.Kind))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CountApprovalSignatures counts distinct signer decisions of one kind.
func (r *PostgresRepository) CountApprovalSignatures(ctx context.Context, requestID uuid.UUID, kind domain.SignatureKind) (int, error) {
	var count int
	query := `SELECT COUNT(DISTINCT signer_address) FROM multisig_signatures WHERE request_id = $1 AND type = $2`
	if err := r.db.QueryRow(ctx, query, requestID, string(kind)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateApprovalStatus performs a compare-and-set status transition.
func (r *PostgresRepository) UpdateApprovalStatus(ctx context.Context, requestID uuid.UUID, from, to domain.ApprovalStatus) (bool, error) {
	query := `UPDATE multisig_approval_requests SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	tag, err := r.db.Exec(ctx, query, requestID, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExpirePendingApprovals transitions pending requests past their deadline to
// expired and returns the affected rows.
func (r *PostgresRepository) ExpirePendingApprovals(ctx context.Context, now time.Time) ([]domain.ApprovalRequest, error) {
	query := `
		UPDATE multisig_approval_requests
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'pending' AND expires_at <= $1
		RETURNING ` + approvalColumns
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *a)
	}
	return expired, rows.Err()
}

// RequeueExpiredApproval returns an expired request to pending with a fresh
// deadline. Administrative path only.
func (r *PostgresRepository) RequeueExpiredApproval(ctx context.Context, requestID uuid.UUID, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE multisig_approval_requests
		SET status = 'pending', expires_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'expired'
	`
	tag, err := r.db.Exec(ctx, query, requestID, expiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// IsWalletOwner reports whether the signer is an active owner for the wallet type.
func (r *PostgresRepository) IsWalletOwner(ctx context.Context, walletType, signerAddress string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM multisig_wallet_owners
			WHERE wallet_type = $1 AND lower(signer_address) = lower($2) AND active
		)
	`
	if err := r.db.QueryRow(ctx, query, walletType, signerAddress).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
