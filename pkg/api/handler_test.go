package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stillmindhq/entitled/pkg/entitlement"
	"github.com/stillmindhq/entitled/storage/memory"
)

const testAccountID = "acct-123"

// fakeProvider implements billing.Provider for refresh-path tests
type fakeProvider struct {
	manager   *entitlement.Manager
	syncCalls int
	failSync  bool
}

func (f *fakeProvider) Name() string                 { return "fake" }
func (f *fakeProvider) WebhookHandler() http.Handler { return http.NotFoundHandler() }

func (f *fakeProvider) SyncAccount(ctx context.Context, accountID string) (bool, error) {
	f.syncCalls++
	if f.failSync {
		return false, fmt.Errorf("provider unavailable")
	}
	_, err := f.manager.Apply(ctx, &entitlement.Update{
		AccountID:      accountID,
		Premium:        true,
		SubscriptionID: entitlement.String("sub_live"),
	})
	return true, err
}

func newTestHandler(t *testing.T, provider *fakeProvider) (*Handler, *entitlement.Manager) {
	t.Helper()
	store := memory.New()
	if err := store.Put(&entitlement.Account{ID: testAccountID, Email: "a@b.c"}); err != nil {
		t.Fatalf("Failed to seed account: %v", err)
	}
	manager, err := entitlement.NewManager(store, nil)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	config := Config{
		Manager:   manager,
		GetUserID: FromHeader("X-User-ID"),
	}
	if provider != nil {
		provider.manager = manager
		config.Provider = provider
	}

	handler, err := NewHandler(config)
	if err != nil {
		t.Fatalf("Failed to create handler: %v", err)
	}
	return handler, manager
}

func getSubscription(t *testing.T, handler *Handler, accountID, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	if accountID != "" {
		req.Header.Set("X-User-ID", accountID)
	}
	w := httptest.NewRecorder()
	handler.GetSubscription(w, req)
	return w
}

func TestNewHandler_InvalidConfig(t *testing.T) {
	if _, err := NewHandler(Config{}); err == nil {
		t.Error("Expected error for missing manager")
	}
}

func TestGetSubscription_StoredState(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	w := getSubscription(t, handler, testAccountID, "/subscription")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp SubscriptionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.AccountID != testAccountID || resp.Premium || resp.Source != sourceStore {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestGetSubscription_MissingAccountID(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	w := getSubscription(t, handler, "", "/subscription")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestGetSubscription_UnknownAccount(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	w := getSubscription(t, handler, "nobody", "/subscription")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestGetSubscription_Refresh(t *testing.T) {
	provider := &fakeProvider{}
	handler, _ := newTestHandler(t, provider)

	w := getSubscription(t, handler, testAccountID, "/subscription?refresh=1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp SubscriptionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Premium || resp.SubscriptionID != "sub_live" || resp.Source != sourceProvider {
		t.Errorf("Unexpected response after refresh: %+v", resp)
	}
	if provider.syncCalls != 1 {
		t.Errorf("Expected 1 sync call, got %d", provider.syncCalls)
	}
}

// A failed provider refresh must not fail the request: the stored state is
// still the best answer available.
func TestGetSubscription_RefreshFailureDegrades(t *testing.T) {
	provider := &fakeProvider{failSync: true}
	handler, _ := newTestHandler(t, provider)

	w := getSubscription(t, handler, testAccountID, "/subscription?refresh=1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp SubscriptionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Premium || resp.Source != sourceStore {
		t.Errorf("Expected degraded stored state, got %+v", resp)
	}
}

func TestGetSubscription_NoRefreshWithoutFlag(t *testing.T) {
	provider := &fakeProvider{}
	handler, _ := newTestHandler(t, provider)

	w := getSubscription(t, handler, testAccountID, "/subscription")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if provider.syncCalls != 0 {
		t.Errorf("Expected no sync calls without refresh flag, got %d", provider.syncCalls)
	}
}
