// Package gin provides Gin middleware that gates routes on premium
// entitlement.
package gin

import (
	"errors"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/stillmindhq/entitled/pkg/entitlement"
)

// UserIDExtractor extracts the account ID from a Gin context.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(c *gongin.Context) string

// accountContextKey is where the resolved account is stored on the context
const accountContextKey = "entitled:account"

// Config holds middleware configuration
type Config struct {
	// Manager is the entitlement manager instance (required)
	Manager *entitlement.Manager

	// GetUserID extracts the account ID from the context (required)
	GetUserID UserIDExtractor

	// OnUnauthorized is called when the user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnDenied is called when the account is not premium
	// If nil, returns 403 Forbidden
	OnDenied func(c *gongin.Context, account *entitlement.Account)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// RequirePremium creates a Gin middleware that only passes requests from
// premium accounts. The resolved account is stored with c.Set.
func RequirePremium(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("entitled/gin: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("entitled/gin: Config.GetUserID is required")
	}

	return func(c *gongin.Context) {
		accountID := cfg.GetUserID(c)
		if accountID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
			}
			return
		}

		account, err := cfg.Manager.GetAccount(c.Request.Context(), accountID)
		if err != nil {
			if errors.Is(err, entitlement.ErrAccountNotFound) {
				if cfg.OnDenied != nil {
					cfg.OnDenied(c, nil)
				} else {
					c.AbortWithStatusJSON(http.StatusForbidden, gongin.H{"error": "Premium required"})
				}
				return
			}
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
			}
			return
		}

		if !account.Premium {
			if cfg.OnDenied != nil {
				cfg.OnDenied(c, account)
			} else {
				c.AbortWithStatusJSON(http.StatusForbidden, gongin.H{"error": "Premium required"})
			}
			return
		}

		c.Set(accountContextKey, account)
		c.Next()
	}
}

// AccountFromContext returns the account stored by RequirePremium, or nil
func AccountFromContext(c *gongin.Context) *entitlement.Account {
	if v, ok := c.Get(accountContextKey); ok {
		if account, ok := v.(*entitlement.Account); ok {
			return account
		}
	}
	return nil
}

// FromHeader returns an UserIDExtractor that gets the account ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromContextValue returns an UserIDExtractor that gets the account ID from
// a value set earlier in the middleware chain
func FromContextValue(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if accountID, ok := c.Get(key); ok {
			if s, ok := accountID.(string); ok {
				return s
			}
		}
		return ""
	}
}
