package entitlement

import (
	"context"
	"fmt"
	"strings"
)

// Config holds manager configuration
type Config struct {
	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger
}

// Manager mediates all entitlement reads and writes against a Store.
// It is constructed once at startup and passed to collaborators explicitly;
// there is no process-global instance. The store connection pool behind it
// is the only shared mutable resource and is safe for concurrent use.
type Manager struct {
	store  Store
	logger Logger
}

// NewManager creates a new entitlement manager backed by the given store.
func NewManager(store Store, config *Config) (*Manager, error) {
	if store == nil {
		return nil, ErrStoreUnavailable
	}

	var logger Logger
	if config != nil && config.Logger != nil {
		logger = config.Logger
	} else {
		logger = &NoopLogger{}
	}

	return &Manager{
		store:  store,
		logger: logger,
	}, nil
}

// GetAccount retrieves an account by internal id.
func (m *Manager) GetAccount(ctx context.Context, id string) (*Account, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty account id", ErrAccountNotFound)
	}
	return m.store.FindByID(ctx, id)
}

// GetAccountByEmail retrieves an account by its unique email address.
func (m *Manager) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fmt.Errorf("%w: empty email", ErrAccountNotFound)
	}
	return m.store.FindByEmail(ctx, email)
}

// Apply validates and applies an entitlement update, returning the
// resulting account state. The update is a pure overwrite; applying it
// twice is indistinguishable from applying it once.
func (m *Manager) Apply(ctx context.Context, upd *Update) (*Account, error) {
	if upd == nil || strings.TrimSpace(upd.AccountID) == "" {
		return nil, ErrInvalidUpdate
	}

	account, err := m.store.ApplyUpdate(ctx, upd)
	if err != nil {
		return nil, err
	}

	m.logger.Info("entitlement updated",
		Field{Key: "account_id", Value: account.ID},
		Field{Key: "premium", Value: account.Premium},
		Field{Key: "subscription_id", Value: account.SubscriptionID},
	)
	return account, nil
}
