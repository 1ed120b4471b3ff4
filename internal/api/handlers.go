/**
 * @description
 * This file contains the HTTP handlers for the settlement service's internal
 * API. Handlers parse incoming requests, call the multi-sig gate, and write
 * JSON responses. They act as the bridge between the web layer and the
 * approval logic.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For gate logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kustodia/settlement-service/internal/app"
	"github.com/kustodia/settlement-service/internal/domain"
	"github.com/kustodia/settlement-service/internal/store"
)

// SettlementHandlers holds the dependencies the handlers use.
type SettlementHandlers struct {
	gate *app.MultiSigGate
	repo store.Repository
}

// NewSettlementHandlers creates the handler set.
func NewSettlementHandlers(gate *app.MultiSigGate, repo store.Repository) *SettlementHandlers {
	return &SettlementHandlers{gate: gate, repo: repo}
}

type submitSignatureRequest struct {
	SignerAddress string `json:"signer_address"`
	Decision      string `json:"decision"` // "approve" or "reject"
}

type approvalResponse struct {
	Request    *domain.ApprovalRequest `json:"request"`
	Signatures int                     `json:"approval_signatures,omitempty"`
}

// ListApprovalsHandler returns approval requests filtered by status
// (default pending).
func (h *SettlementHandlers) ListApprovalsHandler(w http.ResponseWriter, r *http.Request) {
	status := domain.ApprovalStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.ApprovalStatusPending
	}
	switch status {
	case domain.ApprovalStatusPending, domain.ApprovalStatusApproved, domain.ApprovalStatusRejected, domain.ApprovalStatusExpired:
	default:
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	requests, err := h.repo.ListApprovalRequests(r.Context(), status)
	if err != nil {
		log.Printf("level=error component=api op=list_approvals err=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to list approval requests")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// GetApprovalHandler returns one approval request with its signature count.
func (h *SettlementHandlers) GetApprovalHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	req, err := h.repo.FindApprovalRequestByID(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, store.ErrApprovalRequestNotFound) {
			writeError(w, http.StatusNotFound, "approval request not found")
			return
		}
		log.Printf("level=error component=api op=get_approval request_id=%s err=%v", requestID, err)
		writeError(w, http.StatusInternalServerError, "failed to load approval request")
		return
	}
	count, err := h.repo.CountApprovalSignatures(r.Context(), requestID, domain.SignatureApproval)
	if err != nil {
		log.Printf("level=error component=api op=get_approval request_id=%s err=%v", requestID, err)
		writeError(w, http.StatusInternalServerError, "failed to count signatures")
		return
	}
	writeJSON(w, http.StatusOK, approvalResponse{Request: req, Signatures: count})
}

// SubmitSignatureHandler records a signer's approval or rejection.
func (h *SettlementHandlers) SubmitSignatureHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var body submitSignatureRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.SignerAddress == "" {
		writeError(w, http.StatusBadRequest, "signer_address is required")
		return
	}
	var kind domain.SignatureKind
	switch body.Decision {
	case "approve":
		kind = domain.SignatureApproval
	case "reject":
		kind = domain.SignatureRejection
	default:
		writeError(w, http.StatusBadRequest, "decision must be approve or reject")
		return
	}

	req, err := h.gate.SubmitSignature(r.Context(), requestID, body.SignerAddress, kind)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrApprovalRequestNotFound):
			writeError(w, http.StatusNotFound, "approval request not found")
		case errors.Is(err, app.ErrNotWalletOwner):
			writeError(w, http.StatusForbidden, "signer is not a wallet owner")
		case errors.Is(err, app.ErrApprovalNotPending):
			writeError(w, http.StatusConflict, "approval request is not pending")
		case errors.Is(err, app.ErrAlreadySigned):
			writeError(w, http.StatusConflict, "signer already signed this request")
		default:
			log.Printf("level=error component=api op=submit_signature request_id=%s err=%v", requestID, err)
			writeError(w, http.StatusInternalServerError, "failed to record signature")
		}
		return
	}
	writeJSON(w, http.StatusOK, approvalResponse{Request: req})
}

// RequeueApprovalHandler returns an expired request to pending with a fresh
// deadline.
func (h *SettlementHandlers) RequeueApprovalHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	req, err := h.gate.RequeueExpired(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, store.ErrApprovalRequestNotFound) {
			writeError(w, http.StatusNotFound, "approval request not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, approvalResponse{Request: req})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
