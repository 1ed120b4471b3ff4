/**
 * @description
 * This package provides a client for the Juno fiat rail API (Bitso's MXN/MXNB
 * platform). It encapsulates the HMAC request signing scheme, request body
 * construction and response parsing for the endpoints the settlement
 * orchestrator uses: SPEI deposit listing, MXNB redemption, bank account
 * registration and payout status lookups.
 *
 * The signature covers nonce + HTTP method + request path + raw body with
 * HMAC-SHA256 over the API secret, hex encoded, and travels in the
 * Authorization header as `Bitso <key>:<nonce>:<signature>`.
 *
 * @dependencies
 * - bytes, context, crypto/hmac, crypto/sha256, encoding/hex, encoding/json,
 *   fmt, io, net/http, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Exact fiat amounts.
 */
package junoclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a client for the Juno API.
type Client struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client

	// nonce returns a strictly increasing value per request. Overridable in
	// tests to make signatures deterministic.
	nonce func() string
}

// NewClient creates a new Juno API client.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		APISecret: apiSecret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		nonce: func() string {
			return strconv.FormatInt(time.Now().UnixMilli(), 10)
		},
	}
}

// SpeiDeposit is one incoming SPEI transfer reported by Juno.
type SpeiDeposit struct {
	FID              string          `json:"fid"`
	DepositID        string          `json:"deposit_id"`
	ReceiverCLABE    string          `json:"receiver_clabe"`
	ReceiverName     string          `json:"receiver_name"`
	SenderName       string          `json:"sender_name"`
	SenderCLABE      string          `json:"sender_clabe"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	CreatedAt        string          `json:"created_at"`
	ConceptoBancario string          `json:"concepto_bancario"`
}

// BankAccount is a CLABE registered with Juno for redemptions.
type BankAccount struct {
	ID            string `json:"id"`
	Tag           string `json:"tag"`
	CLABE         string `json:"clabe"`
	RecipientName string `json:"recipient_legal_name"`
	Currency      string `json:"currency"`
	Ownership     string `json:"ownership"`
}

// Redemption is the result of an MXNB redemption request.
type Redemption struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"summary_status"`
	CreatedAt string          `json:"created_at"`
}

// Withdrawal is the result of an on-chain MXNB withdrawal request.
type Withdrawal struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"summary_status"`
	TxHash string          `json:"blockchain_tx_hash"`
}

// Transaction is one entry from the transaction status listing.
type Transaction struct {
	ID        string          `json:"id"`
	Category  string          `json:"transaction_type"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"summary_status"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// apiEnvelope is Juno's standard response wrapper.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse represents an error returned by the Juno API.
type ErrorResponse struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("juno api error (status %d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("juno api error (status %d)", e.StatusCode)
}

// sign computes the request signature: hex(hmac_sha256(secret, nonce + method + path + body)).
func (c *Client) sign(nonce, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.APISecret))
	mac.Write([]byte(nonce))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// do executes a signed request against the Juno API and unmarshals the
// payload into out. idempotencyKey, when non-empty, is sent in the
// X-Idempotency-Key header so retried mutations collapse server-side.
func (c *Client) do(ctx context.Context, method, path string, reqBody any, idempotencyKey string, out any) error {
	var body []byte
	var err error
	if reqBody != nil {
		body, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal juno request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create juno request: %w", err)
	}

	nonce := c.nonce()
	signature := c.sign(nonce, method, path, body)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bitso %s:%s:%s", c.APIKey, nonce, signature))
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute juno request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read juno response: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		log.Printf("level=warn component=juno_client method=%s path=%s status=%d msg=\"unparsable response body\"", method, path, resp.StatusCode)
		return fmt.Errorf("failed to decode juno response (status %d)", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Success {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if envelope.Error != nil {
			errResp.Code = envelope.Error.Code
			errResp.Message = envelope.Error.Message
		}
		log.Printf("level=warn component=juno_client method=%s path=%s status=%d code=%q msg=%q", method, path, resp.StatusCode, errResp.Code, errResp.Message)
		return errResp
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Payload, out); err != nil {
			return fmt.Errorf("failed to decode juno payload: %w", err)
		}
	}
	return nil
}

// ListSpeiDeposits returns recent incoming SPEI deposits.
func (c *Client) ListSpeiDeposits(ctx context.Context) ([]SpeiDeposit, error) {
	var payload struct {
		Response []SpeiDeposit `json:"response"`
	}
	if err := c.do(ctx, http.MethodGet, "/spei/v1/deposits/", nil, "", &payload); err != nil {
		return nil, err
	}
	return payload.Response, nil
}

// RegisterBankAccount registers a payout CLABE with Juno so redemptions can
// settle into it. Idempotent per account via the provided key.
func (c *Client) RegisterBankAccount(ctx context.Context, clabe, recipientName, tag, idempotencyKey string) (*BankAccount, error) {
	reqBody := map[string]string{
		"clabe":                clabe,
		"recipient_legal_name": recipientName,
		"tag":                  tag,
		"currency":             "MXN",
		"ownership":            "THIRD_PARTY",
	}
	var account BankAccount
	if err := c.do(ctx, http.MethodPost, "/mint_platform/v1/accounts/banks", reqBody, idempotencyKey, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetRegisteredBankAccounts lists CLABEs registered with Juno.
func (c *Client) GetRegisteredBankAccounts(ctx context.Context) ([]BankAccount, error) {
	var accounts []BankAccount
	if err := c.do(ctx, http.MethodGet, "/mint_platform/v1/accounts/banks", nil, "", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// RedeemMXNB burns MXNB and pays out MXN to the registered bank account via
// SPEI. Amount is in fiat units.
func (c *Client) RedeemMXNB(ctx context.Context, amount decimal.Decimal, bankAccountID, idempotencyKey string) (*Redemption, error) {
	reqBody := map[string]any{
		"amount":                      amount,
		"destination":                 "mxn",
		"asset":                       "mxnbj",
		"destination_bank_account_id": bankAccountID,
	}
	var redemption Redemption
	if err := c.do(ctx, http.MethodPost, "/mint_platform/v1/redemptions", reqBody, idempotencyKey, &redemption); err != nil {
		return nil, err
	}
	return &redemption, nil
}

// WithdrawToBridge sends MXNB from the Juno platform balance to the bridge
// wallet on-chain so the escrow contract can be funded.
func (c *Client) WithdrawToBridge(ctx context.Context, amount decimal.Decimal, bridgeAddress, idempotencyKey string) (*Withdrawal, error) {
	reqBody := map[string]any{
		"amount":     amount,
		"asset":      "MXNB",
		"blockchain": "ARBITRUM",
		"address":    bridgeAddress,
		"compliance": map[string]any{},
	}
	var withdrawal Withdrawal
	if err := c.do(ctx, http.MethodPost, "/mint_platform/v1/withdrawals", reqBody, idempotencyKey, &withdrawal); err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// GetTransactionStatus returns recent platform transactions (redemptions,
// issuances, withdrawals) with their current status.
func (c *Client) GetTransactionStatus(ctx context.Context) ([]Transaction, error) {
	var payload struct {
		Content []Transaction `json:"content"`
	}
	if err := c.do(ctx, http.MethodGet, "/mint_platform/v1/transactions", nil, "", &payload); err != nil {
		return nil, err
	}
	return payload.Content, nil
}
