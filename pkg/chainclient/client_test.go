package chainclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateEscrowSendsBaseUnitsAsString(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"escrow_id": "42", "tx_hash": "0xabc"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	created, err := client.CreateEscrow(context.Background(), CreateEscrowParams{
		Payer:    "0xbridge",
		Payee:    "0xbridge",
		Token:    "0xmxnb",
		Amount:   1500000000, // 1500.00 MXNB at 6 decimals
		Deadline: 1767225600,
		Vertical: "general",
		CLABE:    "710969000000351083",
	})
	if err != nil {
		t.Fatalf("CreateEscrow returned error: %v", err)
	}

	if gotPath != "/v1/escrows" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "secret-key" {
		t.Errorf("unexpected api key header %q", gotKey)
	}
	if amount, ok := gotBody["amount"].(string); !ok || amount != "1500000000" {
		t.Errorf("expected amount as string \"1500000000\", got %v", gotBody["amount"])
	}
	if created.EscrowID != "42" || created.TxHash != "0xabc" {
		t.Errorf("unexpected result %+v", created)
	}
}

func TestGetEscrowByTx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/escrows/by-tx/0xdeadbeef" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"escrow_id": "7", "amount": "250000000", "is_funded": true, "is_released": false, "is_disputed": false}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	state, err := client.GetEscrowByTx(context.Background(), "0xdeadbeef")
	if err != nil {
		t.Fatalf("GetEscrowByTx returned error: %v", err)
	}
	if state.EscrowID != "7" || state.Amount != 250000000 || !state.IsFunded {
		t.Errorf("unexpected state %+v", state)
	}
}

func TestErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code": "already_released", "message": "escrow 7 already released"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	_, err := client.ReleaseEscrow(context.Background(), "7")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	apiErr, ok := err.(*ErrorResponse)
	if !ok {
		t.Fatalf("expected *ErrorResponse, got %T", err)
	}
	if apiErr.Code != "already_released" || apiErr.StatusCode != http.StatusConflict {
		t.Errorf("unexpected error %+v", apiErr)
	}
}
