/**
 * @description
 * This file sets up the HTTP router for the settlement service's internal API.
 * The API is operational, not public: approval listing and signature intake
 * for multi-sig requests, re-queueing expired requests, and a health check.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SettlementRoutes creates and returns a new router for the settlement service.
func SettlementRoutes(h *SettlementHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require the internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Get("/approvals", h.ListApprovalsHandler)
		r.Get("/approvals/{requestID}", h.GetApprovalHandler)
		r.Post("/approvals/{requestID}/signatures", h.SubmitSignatureHandler)
		r.Post("/approvals/{requestID}/requeue", h.RequeueApprovalHandler)
	})

	return r
}
