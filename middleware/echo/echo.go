// Package echo provides Echo middleware that gates routes on premium
// entitlement.
package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stillmindhq/entitled/pkg/entitlement"
)

// UserIDExtractor extracts the account ID from an Echo context.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(c echo.Context) string

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
	OnUnauthorized func(c echo.Context) error

	// OnDenied is called when the account is not premium
	// If nil, returns 403 Forbidden
	OnDenied func(c echo.Context, account *entitlement.Account) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// RequirePremium creates an Echo middleware that only passes requests from
// premium accounts. The resolved account is stored with c.Set.
func RequirePremium(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("entitled/echo: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("entitled/echo: Config.GetUserID is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			accountID := cfg.GetUserID(c)
			if accountID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			account, err := cfg.Manager.GetAccount(c.Request().Context(), accountID)
			if err != nil {
				if errors.Is(err, entitlement.ErrAccountNotFound) {
					if cfg.OnDenied != nil {
						return cfg.OnDenied(c, nil)
					}
					return c.JSON(http.StatusForbidden, map[string]string{"error": "Premium required"})
				}
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			}

			if !account.Premium {
				if cfg.OnDenied != nil {
					return cfg.OnDenied(c, account)
				}
				return c.JSON(http.StatusForbidden, map[string]string{"error": "Premium required"})
			}

			c.Set(accountContextKey, account)
			return next(c)
		}
	}
}

// AccountFromContext returns the account stored by RequirePremium, or nil
func AccountFromContext(c echo.Context) *entitlement.Account {
	if account, ok := c.Get(accountContextKey).(*entitlement.Account); ok {
		return account
	}
	return nil
}

// FromHeader returns an UserIDExtractor that gets the account ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromContextValue returns an UserIDExtractor that gets the account ID from
// a value set earlier in the middleware chain
func FromContextValue(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if accountID, ok := c.Get(key).(string); ok {
			return accountID
		}
		return ""
	}
}
