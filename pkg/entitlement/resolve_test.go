package entitlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stillmindhq/entitled/pkg/entitlement"
	"github.com/stillmindhq/entitled/storage/memory"
)

func newTestManager(t *testing.T) (*entitlement.Manager, *memory.Store) {
	t.Helper()
	store := memory.New()
	manager, err := entitlement.NewManager(store, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return manager, store
}

func TestResolve_FirstStrategyWins(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()

	_ = store.Put(&entitlement.Account{ID: "u1", Email: "a@b.com"})
	_ = store.Put(&entitlement.Account{ID: "u2", Email: "c@d.com"})

	account, err := entitlement.Resolve(ctx,
		entitlement.ByID(manager, "u1"),
		entitlement.ByEmail(manager, "c@d.com"),
	)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if account.ID != "u1" {
		t.Errorf("Expected id path to win, got %s", account.ID)
	}
}

func TestResolve_FallsBackToEmail(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()

	_ = store.Put(&entitlement.Account{ID: "u2", Email: "a@b.com"})

	// Internal id does not resolve; email does.
	account, err := entitlement.Resolve(ctx,
		entitlement.ByID(manager, "u1"),
		entitlement.ByEmail(manager, "a@b.com"),
	)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if account.ID != "u2" {
		t.Errorf("Expected email-resolved account u2, got %s", account.ID)
	}
}

func TestResolve_EmptyKeysAreSkipped(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()

	_ = store.Put(&entitlement.Account{ID: "u1", Email: "a@b.com"})

	account, err := entitlement.Resolve(ctx,
		entitlement.ByID(manager, ""),
		entitlement.ByEmail(manager, "a@b.com"),
	)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if account.ID != "u1" {
		t.Errorf("Expected u1, got %s", account.ID)
	}
}

func TestResolve_AllStrategiesFail(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := entitlement.Resolve(context.Background(),
		entitlement.ByID(manager, "u1"),
		entitlement.ByEmail(manager, "a@b.com"),
	)
	if !errors.Is(err, entitlement.ErrUnresolved) {
		t.Errorf("Expected ErrUnresolved, got %v", err)
	}
	if !errors.Is(err, entitlement.ErrAccountNotFound) {
		t.Errorf("Expected wrapped ErrAccountNotFound, got %v", err)
	}
}

func TestResolve_NoStrategies(t *testing.T) {
	_, err := entitlement.Resolve(context.Background())
	if !errors.Is(err, entitlement.ErrUnresolved) {
		t.Errorf("Expected ErrUnresolved, got %v", err)
	}
}
