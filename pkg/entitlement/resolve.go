package entitlement

import (
	"context"
	"fmt"
)

// Strategy is a single account resolution attempt. It returns the resolved
// account, ErrAccountNotFound (or a wrapped store error) when the attempt
// fails, and may be skipped entirely by returning ErrAccountNotFound for an
// inapplicable input (e.g. an event without an internal id).
type Strategy func(ctx context.Context) (*Account, error)

// ByID returns a Strategy that resolves against the internal account id.
// An empty id makes the strategy inapplicable.
func ByID(m *Manager, id string) Strategy {
	return func(ctx context.Context) (*Account, error) {
		if id == "" {
			return nil, ErrAccountNotFound
		}
		return m.GetAccount(ctx, id)
	}
}

// ByEmail returns a Strategy that resolves against the unique email address.
// An empty email makes the strategy inapplicable.
func ByEmail(m *Manager, email string) Strategy {
	return func(ctx context.Context) (*Account, error) {
		if email == "" {
			return nil, ErrAccountNotFound
		}
		return m.GetAccountByEmail(ctx, email)
	}
}

// Resolve tries each strategy in order until one yields an account.
// Any failure, lookup error included, moves on to the next strategy; the
// event-level fallback from id to email resolution is exactly one pass
// through this list. When every strategy fails, ErrUnresolved is returned
// wrapping the last error so callers can distinguish "no such account"
// from a store outage.
func Resolve(ctx context.Context, strategies ...Strategy) (*Account, error) {
	var lastErr error
	for _, strategy := range strategies {
		account, err := strategy(ctx)
		if err == nil && account != nil {
			return account, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = ErrAccountNotFound
	}
	return nil, fmt.Errorf("%w: %w", ErrUnresolved, lastErr)
}
