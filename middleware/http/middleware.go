// Package http provides HTTP middleware that gates routes on premium
// entitlement.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/stillmindhq/entitled/pkg/entitlement"
)

// UserIDExtractor extracts the account ID from an HTTP request.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Manager is the entitlement manager instance (required)
	Manager *entitlement.Manager

	// GetUserID extracts the account ID from the request (required)
	GetUserID UserIDExtractor

	// OnUnauthorized is called when the user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnDenied is called when the account is not premium
	// If nil, returns 403 Forbidden
	OnDenied func(w http.ResponseWriter, r *http.Request, account *entitlement.Account)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// RequirePremium creates an HTTP middleware that only passes requests from
// premium accounts. The resolved account is placed on the request context.
func RequirePremium(config Config) func(http.Handler) http.Handler {
	// Fail fast on wiring mistakes
	if config.Manager == nil {
		panic("entitled/http: Config.Manager is required")
	}
	if config.GetUserID == nil {
		panic("entitled/http: Config.GetUserID is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := config.GetUserID(r)
			if accountID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			account, err := config.Manager.GetAccount(r.Context(), accountID)
			if err != nil {
				if errors.Is(err, entitlement.ErrAccountNotFound) {
					// No account record means no entitlement
					if config.OnDenied != nil {
						config.OnDenied(w, r, nil)
					} else {
						http.Error(w, "Premium required", http.StatusForbidden)
					}
					return
				}
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			if !account.Premium {
				if config.OnDenied != nil {
					config.OnDenied(w, r, account)
				} else {
					http.Error(w, "Premium required", http.StatusForbidden)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}

// HandlerFunc creates the same middleware for http.HandlerFunc chains
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := RequirePremium(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for the account ID
	UserIDKey ContextKey = "entitled:userID"

	// AccountKey is the context key the middleware stores the resolved
	// account under
	AccountKey ContextKey = "entitled:account"
)

// FromContext returns an UserIDExtractor that gets the account ID from the
// request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if accountID, ok := r.Context().Value(key).(string); ok {
			return accountID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets the account ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// WithUserID adds the account ID to a request context
func WithUserID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, UserIDKey, accountID)
}

// WithAccount adds the resolved account to a request context
func WithAccount(ctx context.Context, account *entitlement.Account) context.Context {
	return context.WithValue(ctx, AccountKey, account)
}

// AccountFromContext returns the account placed on the context by
// RequirePremium, or nil
func AccountFromContext(ctx context.Context) *entitlement.Account {
	if account, ok := ctx.Value(AccountKey).(*entitlement.Account); ok {
		return account
	}
	return nil
}
