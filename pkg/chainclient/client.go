/**
 * @description
 * This package provides a client for the bridge signer service that owns the
 * escrow signing key and the contract ABI. The settlement orchestrator never
 * touches key material; it asks this service to create, fund and release
 * escrows and to read contract state back for reconciliation.
 *
 * Token amounts cross this boundary as integer base units encoded as decimal
 * strings, never floats.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, net/http, time: Standard Go libraries.
 */
package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// Client is a client for the bridge signer service.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new bridge signer client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// CreateEscrowParams are the contract arguments for escrow creation.
type CreateEscrowParams struct {
	Payer      string `json:"payer"`
	Payee      string `json:"payee"`
	Token      string `json:"token"`
	Amount     int64  `json:"amount,string"` // token base units
	Deadline   int64  `json:"deadline"`      // unix seconds, custody end
	Vertical   string `json:"vertical"`
	CLABE      string `json:"clabe"`
	Conditions string `json:"conditions"`
}

// EscrowCreated is the confirmed result of createEscrow.
type EscrowCreated struct {
	EscrowID string `json:"escrow_id"` // contract-side numeric id
	TxHash   string `json:"tx_hash"`
}

// EscrowState mirrors the contract's stored escrow struct.
type EscrowState struct {
	EscrowID   string `json:"escrow_id"`
	Payer      string `json:"payer"`
	Payee      string `json:"payee"`
	Token      string `json:"token"`
	Amount     int64  `json:"amount,string"`
	Deadline   int64  `json:"deadline"`
	IsFunded   bool   `json:"is_funded"`
	IsReleased bool   `json:"is_released"`
	IsDisputed bool   `json:"is_disputed"`
}

// TxResult is the confirmed result of a state-changing contract call.
type TxResult struct {
	TxHash string `json:"tx_hash"`
}

// ErrorResponse represents an error from the bridge signer service.
type ErrorResponse struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("chain api error (status %d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chain api error (status %d)", e.StatusCode)
}

func (c *Client) do(ctx context.Context, method, path string, reqBody any, out any) error {
	var body []byte
	var err error
	if reqBody != nil {
		body, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal chain request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create chain request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute chain request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read chain response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=chain_client method=%s path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", method, path, resp.StatusCode)
			return fmt.Errorf("failed to decode chain error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=chain_client method=%s path=%s status=%d code=%q msg=%q", method, path, resp.StatusCode, errResp.Code, errResp.Message)
		return errResp
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode chain response: %w", err)
		}
	}
	return nil
}

// CreateEscrow submits createEscrow and waits for confirmation. Returns the
// contract-side escrow id and the transaction hash.
func (c *Client) CreateEscrow(ctx context.Context, params CreateEscrowParams) (*EscrowCreated, error) {
	var created EscrowCreated
	if err := c.do(ctx, http.MethodPost, "/v1/escrows", params, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// FundEscrow moves the token amount into an existing escrow.
func (c *Client) FundEscrow(ctx context.Context, escrowID string, amount int64) (*TxResult, error) {
	reqBody := map[string]string{"amount": strconv.FormatInt(amount, 10)}
	var result TxResult
	if err := c.do(ctx, http.MethodPost, "/v1/escrows/"+escrowID+"/fund", reqBody, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReleaseEscrow releases the escrowed amount to the payee.
func (c *Client) ReleaseEscrow(ctx context.Context, escrowID string) (*TxResult, error) {
	var result TxResult
	if err := c.do(ctx, http.MethodPost, "/v1/escrows/"+escrowID+"/release", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetEscrow reads the stored escrow state from the contract.
func (c *Client) GetEscrow(ctx context.Context, escrowID string) (*EscrowState, error) {
	var state EscrowState
	if err := c.do(ctx, http.MethodGet, "/v1/escrows/"+escrowID, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// GetEscrowByTx resolves a confirmed creation transaction hash to the escrow
// it created. Used for recovery when the orchestrator crashed between the
// transaction confirming and the contract id being persisted.
func (c *Client) GetEscrowByTx(ctx context.Context, txHash string) (*EscrowState, error) {
	var state EscrowState
	if err := c.do(ctx, http.MethodGet, "/v1/escrows/by-tx/"+txHash, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
