package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stillmindhq/entitled/pkg/entitlement"
	"github.com/stillmindhq/entitled/storage/memory"
)

func newTestManager(t *testing.T) *entitlement.Manager {
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

func gatedHandler(t *testing.T, manager *entitlement.Manager) http.Handler {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if AccountFromContext(r.Context()) == nil {
			t.Error("Expected account on request context")
		}
		w.WriteHeader(http.StatusOK)
	})
	return RequirePremium(Config{
		Manager:   manager,
		GetUserID: FromHeader("X-User-ID"),
	})(next)
}

func doRequest(handler http.Handler, accountID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/premium", http.NoBody)
	if accountID != "" {
		req.Header.Set("X-User-ID", accountID)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRequirePremium_AllowsPremium(t *testing.T) {
	handler := gatedHandler(t, newTestManager(t))

	if w := doRequest(handler, "premium-user"); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestRequirePremium_DeniesFree(t *testing.T) {
	handler := gatedHandler(t, newTestManager(t))

	if w := doRequest(handler, "free-user"); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestRequirePremium_DeniesUnknownAccount(t *testing.T) {
	handler := gatedHandler(t, newTestManager(t))

	if w := doRequest(handler, "nobody"); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestRequirePremium_Unauthorized(t *testing.T) {
	handler := gatedHandler(t, newTestManager(t))

	if w := doRequest(handler, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestRequirePremium_CustomCallbacks(t *testing.T) {
	manager := newTestManager(t)
	var deniedAccount *entitlement.Account

	handler := RequirePremium(Config{
		Manager:   manager,
		GetUserID: FromHeader("X-User-ID"),
		OnDenied: func(w http.ResponseWriter, r *http.Request, account *entitlement.Account) {
			deniedAccount = account
			w.WriteHeader(http.StatusPaymentRequired)
		},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := doRequest(handler, "free-user")
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected status 402, got %d", w.Code)
	}
	if deniedAccount == nil || deniedAccount.ID != "free-user" {
		t.Errorf("Expected denied account to be passed, got %+v", deniedAccount)
	}
}

func TestRequirePremium_PanicsOnMissingConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for missing Manager")
		}
	}()
	RequirePremium(Config{GetUserID: FromHeader("X-User-ID")})
}
