// Package fiber provides Fiber middleware that gates routes on premium
// entitlement.
package fiber

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/stillmindhq/entitled/pkg/entitlement"
)

// UserIDExtractor extracts the account ID from a Fiber context.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(c *fiber.Ctx) string

// accountLocalKey is where the resolved account is stored on the context
const accountLocalKey = "entitled:account"

// Config holds middleware configuration
type Config struct {
	// Manager is the entitlement manager instance (required)
	Manager *entitlement.Manager

	// GetUserID extracts the account ID from the context (required)
	GetUserID UserIDExtractor

	// OnUnauthorized is called when the user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnDenied is called when the account is not premium
	// If nil, returns 403 Forbidden
	OnDenied func(c *fiber.Ctx, account *entitlement.Account) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// RequirePremium creates a Fiber middleware that only passes requests from
// premium accounts. The resolved account is stored in c.Locals.
func RequirePremium(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("entitled/fiber: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("entitled/fiber: Config.GetUserID is required")
	}

	return func(c *fiber.Ctx) error {
		accountID := cfg.GetUserID(c)
		if accountID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		// Fiber uses fasthttp, so c.UserContext() is the context.Context
		account, err := cfg.Manager.GetAccount(c.UserContext(), accountID)
		if err != nil {
			if errors.Is(err, entitlement.ErrAccountNotFound) {
				if cfg.OnDenied != nil {
					return cfg.OnDenied(c, nil)
				}
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Premium required"})
			}
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		}

		if !account.Premium {
			if cfg.OnDenied != nil {
				return cfg.OnDenied(c, account)
			}
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Premium required"})
		}

		c.Locals(accountLocalKey, account)
		return c.Next()
	}
}

// AccountFromCtx returns the account stored by RequirePremium, or nil
func AccountFromCtx(c *fiber.Ctx) *entitlement.Account {
	if account, ok := c.Locals(accountLocalKey).(*entitlement.Account); ok {
		return account
	}
	return nil
}

// FromHeader returns an UserIDExtractor that gets the account ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromLocals returns an UserIDExtractor that gets the account ID from c.Locals
func FromLocals(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if accountID, ok := c.Locals(key).(string); ok {
			return accountID
		}
		return ""
	}
}
