// Package redis provides a Redis implementation of the entitlement.Store
// interface. Updates run as Lua scripts so the read-modify-write of an
// account is atomic.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stillmindhq/entitled/pkg/entitlement"
)

// Store implements entitlement.Store using Redis
type Store struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis store configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "entitled:")
	KeyPrefix string

	// AccountTTL is the TTL for account keys (0 = no expiration)
	AccountTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "entitled:",
		AccountTTL: 0,
	}
}

// New creates a new Redis store.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "entitled:"
	}

	s := &Store{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}
	s.loadScripts()

	return s, nil
}

// loadScripts compiles the Lua scripts for atomic operations
func (s *Store) loadScripts() {
	// Apply an entitlement update to an account hash. A flag of "1" means
	// the corresponding id overwrites the stored value (empty clears), "0"
	// leaves it untouched. Returns 0 when the account does not exist.
	s.scripts["apply"] = redis.NewScript(`
		local key = KEYS[1]
		if redis.call('EXISTS', key) == 0 then
			return 0
		end

		redis.call('HSET', key, 'premium', ARGV[1])
		if ARGV[2] == "1" then
			redis.call('HSET', key, 'customer_id', ARGV[3])
		end
		if ARGV[4] == "1" then
			redis.call('HSET', key, 'subscription_id', ARGV[5])
		end
		redis.call('HSET', key, 'updated_at', ARGV[6])

		if tonumber(ARGV[7]) > 0 then
			redis.call('EXPIRE', key, tonumber(ARGV[7]))
		end

		return 1
	`)
}

func (s *Store) accountKey(id string) string {
	return s.config.KeyPrefix + "account:" + id
}

func (s *Store) emailKey(email string) string {
	return s.config.KeyPrefix + "email:" + strings.ToLower(strings.TrimSpace(email))
}

// Put stores an account and its email index. Used at signup time;
// entitlement changes go through ApplyUpdate.
func (s *Store) Put(ctx context.Context, account *entitlement.Account) error {
	if account == nil || account.ID == "" {
		return fmt.Errorf("invalid account")
	}

	key := s.accountKey(account.ID)

	// Drop a stale email index if the address changed
	if oldEmail, err := s.client.HGet(ctx, key, "email").Result(); err == nil && oldEmail != "" && !strings.EqualFold(oldEmail, account.Email) {
		s.client.Del(ctx, s.emailKey(oldEmail))
	}

	fields := map[string]interface{}{
		"id":              account.ID,
		"email":           account.Email,
		"display_name":    account.DisplayName,
		"premium":         premiumField(account.Premium),
		"customer_id":     account.CustomerID,
		"subscription_id": account.SubscriptionID,
		"updated_at":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("%w: %v", entitlement.ErrStoreUnavailable, err)
	}
	if s.config.AccountTTL > 0 {
		s.client.Expire(ctx, key, s.config.AccountTTL)
	}

	if account.Email != "" {
		if err := s.client.Set(ctx, s.emailKey(account.Email), account.ID, s.config.AccountTTL).Err(); err != nil {
			return fmt.Errorf("%w: %v", entitlement.ErrStoreUnavailable, err)
		}
	}

	return nil
}

// FindByID implements entitlement.Store
func (s *Store) FindByID(ctx context.Context, id string) (*entitlement.Account, error) {
	fields, err := s.client.HGetAll(ctx, s.accountKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entitlement.ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, entitlement.ErrAccountNotFound
	}
	return accountFromFields(fields), nil
}

// FindByEmail implements entitlement.Store via the email index key
func (s *Store) FindByEmail(ctx context.Context, email string) (*entitlement.Account, error) {
	id, err := s.client.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, entitlement.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entitlement.ErrStoreUnavailable, err)
	}
	return s.FindByID(ctx, id)
}

// ApplyUpdate implements entitlement.Store using the atomic apply script
func (s *Store) ApplyUpdate(ctx context.Context, upd *entitlement.Update) (*entitlement.Account, error) {
	setCustomer, customer := pointerArgs(upd.CustomerID)
	setSub, sub := pointerArgs(upd.SubscriptionID)

	res, err := s.scripts["apply"].Run(ctx, s.client,
		[]string{s.accountKey(upd.AccountID)},
		premiumField(upd.Premium),
		setCustomer, customer,
		setSub, sub,
		time.Now().UTC().Format(time.RFC3339Nano),
		int(s.config.AccountTTL.Seconds()),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entitlement.ErrStoreUnavailable, err)
	}
	if res == 0 {
		return nil, entitlement.ErrAccountNotFound
	}

	return s.FindByID(ctx, upd.AccountID)
}

func premiumField(premium bool) string {
	if premium {
		return "1"
	}
	return "0"
}

func pointerArgs(p *string) (flag, value string) {
	if p == nil {
		return "0", ""
	}
	return "1", *p
}

func accountFromFields(fields map[string]string) *entitlement.Account {
	account := &entitlement.Account{
		ID:             fields["id"],
		Email:          fields["email"],
		DisplayName:    fields["display_name"],
		Premium:        fields["premium"] == "1",
		CustomerID:     fields["customer_id"],
		SubscriptionID: fields["subscription_id"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		account.UpdatedAt = ts
	}
	return account
}
