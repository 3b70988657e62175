package fiber

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/stillmindhq/entitled/pkg/entitlement"
	"github.com/stillmindhq/entitled/storage/memory"
)

func setupTestManager(t *testing.T) *entitlement.Manager {
	t.Helper()

	store := memory.New()
	accounts := []*entitlement.Account{
		{ID: "premium-user", Email: "p@example.com", Premium: true},
		{ID: "free-user", Email: "f@example.com"},
	}
	for _, a := range accounts {
		if err := store.Put(a); err != nil {
			t.Fatalf("Failed to seed account: %v", err)
		}
	}

	manager, err := entitlement.NewManager(store, nil)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	return manager
}

func setupApp(t *testing.T) *fiber.App {
	t.Helper()

	app := fiber.New()
	app.Use(RequirePremium(Config{
		Manager:   setupTestManager(t),
		GetUserID: FromHeader("X-User-ID"),
	}))
	app.Get("/premium", func(c *fiber.Ctx) error {
		if AccountFromCtx(c) == nil {
			t.Error("Expected account in locals")
		}
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, accountID string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/premium", http.NoBody)
	if accountID != "" {
		req.Header.Set("X-User-ID", accountID)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func TestRequirePremium_AllowsPremium(t *testing.T) {
	app := setupApp(t)

	resp := doRequest(t, app, "premium-user")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestRequirePremium_DeniesFree(t *testing.T) {
	app := setupApp(t)

	resp := doRequest(t, app, "free-user")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.StatusCode)
	}
}

func TestRequirePremium_Unauthorized(t *testing.T) {
	app := setupApp(t)

	resp := doRequest(t, app, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.StatusCode)
	}
}

func TestRequirePremium_CustomDenied(t *testing.T) {
	app := fiber.New()
	app.Use(RequirePremium(Config{
		Manager:   setupTestManager(t),
		GetUserID: FromHeader("X-User-ID"),
		OnDenied: func(c *fiber.Ctx, account *entitlement.Account) error {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "upgrade required"})
		},
	}))
	app.Get("/premium", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp := doRequest(t, app, "free-user")
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("Expected status 402, got %d", resp.StatusCode)
	}
}
