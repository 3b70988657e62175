package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/stillmindhq/entitled/pkg/entitlement"
)

const (
	sourceStore     = "store"
	sourceProvider  = "provider"
	maxAccountIDLen = 255
)

// Handler provides HTTP endpoints for subscription state inspection
type Handler struct {
	config Config

	// Collapses concurrent refreshes for the same account into one
	// provider round-trip.
	refreshGroup singleflight.Group
}

// GetSubscription returns the account's current entitlement state. With
// ?refresh=1 and a configured provider, the state is reconciled against the
// billing provider first; if that reconciliation fails the stored state is
// served instead of an error.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID := h.config.GetUserID(r)
	if accountID == "" {
		h.handleError(w, r, fmt.Errorf("account ID not found"), http.StatusUnauthorized)
		return
	}
	if len(accountID) > maxAccountIDLen {
		h.handleError(w, r, fmt.Errorf("invalid account ID format"), http.StatusBadRequest)
		return
	}

	source := sourceStore
	if h.config.Provider != nil && r.URL.Query().Get("refresh") == "1" {
		_, err, _ := h.refreshGroup.Do(accountID, func() (interface{}, error) {
			_, syncErr := h.config.Provider.SyncAccount(ctx, accountID)
			return nil, syncErr
		})
		if err != nil {
			// Degrade to whatever the store holds
			h.config.Logger.Warn("provider refresh failed, serving stored state",
				entitlement.Field{Key: "account_id", Value: accountID},
				entitlement.Field{Key: "error", Value: err.Error()},
			)
		} else {
			source = sourceProvider
		}
	}

	account, err := h.config.Manager.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, entitlement.ErrAccountNotFound) {
			h.handleError(w, r, fmt.Errorf("account not found"), http.StatusNotFound)
			return
		}
		h.handleError(w, r, fmt.Errorf("failed to get account: %w", err), http.StatusInternalServerError)
		return
	}

	response := SubscriptionResponse{
		AccountID:      account.ID,
		Premium:        account.Premium,
		SubscriptionID: account.SubscriptionID,
		CustomerID:     account.CustomerID,
		Source:         source,
		UpdatedAt:      account.UpdatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		return
	}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorResponse := map[string]string{
		"error": err.Error(),
	}
	if encodeErr := json.NewEncoder(w).Encode(errorResponse); encodeErr != nil {
		_ = encodeErr
	}
}
