package entitlement

import "context"

// Store defines the interface for account persistence.
// All methods use concrete types from this package to avoid import cycles.
//
// Implementations do not need to couple reads and writes transactionally:
// a lookup followed by an ApplyUpdate is two independent calls, and a
// concurrent write between them is allowed to win (last write wins).
type Store interface {
	// FindByID retrieves an account by its internal identifier.
	// Returns ErrAccountNotFound when no account exists.
	FindByID(ctx context.Context, id string) (*Account, error)

	// FindByEmail retrieves an account by its unique email address.
	// Returns ErrAccountNotFound when no account exists.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// ApplyUpdate overwrites the entitlement fields of an account and
	// returns the resulting account state. The write must honor the
	// pointer semantics documented on Update. Returns ErrAccountNotFound
	// when the target account does not exist.
	ApplyUpdate(ctx context.Context, upd *Update) (*Account, error)
}
