// Package firestore provides a Firestore implementation of the
// entitlement.Store interface backed by Google Cloud Firestore.
package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stillmindhq/entitled/pkg/entitlement"
)

// Store implements entitlement.Store using Google Cloud Firestore
type Store struct {
	client             *firestore.Client
	accountsCollection string
}

// Config holds Firestore store configuration
type Config struct {
	// AccountsCollection is the Firestore collection for accounts
	// Default: "accounts"
	AccountsCollection string
}

// New creates a new Firestore store
func New(client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.AccountsCollection == "" {
		config.AccountsCollection = "accounts"
	}

	return &Store{
		client:             client,
		accountsCollection: config.AccountsCollection,
	}, nil
}

func (s *Store) accountDoc(id string) *firestore.DocumentRef {
	return s.client.Collection(s.accountsCollection).Doc(id)
}

// Put stores an account document. Used at signup time; entitlement changes
// go through ApplyUpdate.
func (s *Store) Put(ctx context.Context, account *entitlement.Account) error {
	if account == nil || account.ID == "" {
		return fmt.Errorf("invalid account")
	}

	_, err := s.accountDoc(account.ID).Set(ctx, map[string]interface{}{
		"email":          account.Email,
		"emailLower":     strings.ToLower(strings.TrimSpace(account.Email)),
		"displayName":    account.DisplayName,
		"premium":        account.Premium,
		"customerId":     account.CustomerID,
		"subscriptionId": account.SubscriptionID,
		"updatedAt":      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", entitlement.ErrStoreUnavailable, err)
	}
	return nil
}

// FindByID implements entitlement.Store
func (s *Store) FindByID(ctx context.Context, id string) (*entitlement.Account, error) {
	snap, err := s.accountDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, entitlement.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", entitlement.ErrStoreUnavailable, err)
	}
	if !snap.Exists() {
		return nil, entitlement.ErrAccountNotFound
	}
	return accountFromSnap(snap), nil
}

// FindByEmail implements entitlement.Store. Lookups go against the
// lowercased shadow field so matching is case-insensitive.
func (s *Store) FindByEmail(ctx context.Context, email string) (*entitlement.Account, error) {
	query := s.client.Collection(s.accountsCollection).
		Where("emailLower", "==", strings.ToLower(strings.TrimSpace(email))).
		Limit(1)

	iter := query.Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, entitlement.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entitlement.ErrStoreUnavailable, err)
	}
	return accountFromSnap(snap), nil
}

// ApplyUpdate implements entitlement.Store. The update runs in a Firestore
// transaction so the read-modify-write is atomic; nil pointer fields keep
// the stored value, non-nil values overwrite.
func (s *Store) ApplyUpdate(ctx context.Context, upd *entitlement.Update) (*entitlement.Account, error) {
	var result *entitlement.Account

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc := s.accountDoc(upd.AccountID)
		snap, err := tx.Get(doc)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return entitlement.ErrAccountNotFound
			}
			return err
		}
		if !snap.Exists() {
			return entitlement.ErrAccountNotFound
		}

		account := accountFromSnap(snap)
		account.Premium = upd.Premium
		if upd.CustomerID != nil {
			account.CustomerID = *upd.CustomerID
		}
		if upd.SubscriptionID != nil {
			account.SubscriptionID = *upd.SubscriptionID
		}
		account.UpdatedAt = time.Now().UTC()

		if err := tx.Set(doc, map[string]interface{}{
			"premium":        account.Premium,
			"customerId":     account.CustomerID,
			"subscriptionId": account.SubscriptionID,
			"updatedAt":      account.UpdatedAt,
		}, firestore.MergeAll); err != nil {
			return err
		}

		result = account
		return nil
	})
	if err != nil {
		if err == entitlement.ErrAccountNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", entitlement.ErrStoreUnavailable, err)
	}

	return result, nil
}

func accountFromSnap(snap *firestore.DocumentSnapshot) *entitlement.Account {
	data := snap.Data()
	account := &entitlement.Account{
		ID:             snap.Ref.ID,
		Email:          getString(data, "email"),
		DisplayName:    getString(data, "displayName"),
		CustomerID:     getString(data, "customerId"),
		SubscriptionID: getString(data, "subscriptionId"),
	}
	if premium, ok := data["premium"].(bool); ok {
		account.Premium = premium
	}
	if updatedAt, ok := data["updatedAt"].(time.Time); ok {
		account.UpdatedAt = updatedAt
	}
	return account
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
