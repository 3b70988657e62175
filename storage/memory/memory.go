// Package memory provides an in-memory implementation of the
// entitlement.Store interface. This implementation is primarily intended
// for testing and development.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stillmindhq/entitled/pkg/entitlement"
)

// Store implements entitlement.Store using in-memory maps
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*entitlement.Account
	byEmail  map[string]string // email -> account id
}

// New creates a new in-memory store adapter
func New() *Store {
	return &Store{
		accounts: make(map[string]*entitlement.Account),
		byEmail:  make(map[string]string),
	}
}

// Put inserts or replaces an account. Entitlement state flows through
// ApplyUpdate; Put exists for the signup flow and for seeding tests.
func (s *Store) Put(account *entitlement.Account) error {
	if account == nil || account.ID == "" {
		return fmt.Errorf("invalid account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accountCopy := *account
	if prev, ok := s.accounts[accountCopy.ID]; ok {
		delete(s.byEmail, emailKey(prev.Email))
	}
	s.accounts[accountCopy.ID] = &accountCopy
	if accountCopy.Email != "" {
		s.byEmail[emailKey(accountCopy.Email)] = accountCopy.ID
	}
	return nil
}

// FindByID implements entitlement.Store
func (s *Store) FindByID(ctx context.Context, id string) (*entitlement.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, entitlement.ErrAccountNotFound
	}

	// Return a copy to prevent external mutations
	accountCopy := *account
	return &accountCopy, nil
}

// FindByEmail implements entitlement.Store
func (s *Store) FindByEmail(ctx context.Context, email string) (*entitlement.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, entitlement.ErrAccountNotFound
	}

	accountCopy := *s.accounts[id]
	return &accountCopy, nil
}

// ApplyUpdate implements entitlement.Store
func (s *Store) ApplyUpdate(ctx context.Context, upd *entitlement.Update) (*entitlement.Account, error) {
	if upd == nil || upd.AccountID == "" {
		return nil, entitlement.ErrInvalidUpdate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[upd.AccountID]
	if !ok {
		return nil, entitlement.ErrAccountNotFound
	}

	account.Premium = upd.Premium
	if upd.CustomerID != nil {
		account.CustomerID = *upd.CustomerID
	}
	if upd.SubscriptionID != nil {
		account.SubscriptionID = *upd.SubscriptionID
	}
	account.UpdatedAt = time.Now().UTC()

	accountCopy := *account
	return &accountCopy, nil
}

// Clear removes all data (useful for testing)
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]*entitlement.Account)
	s.byEmail = make(map[string]string)
}

func emailKey(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
