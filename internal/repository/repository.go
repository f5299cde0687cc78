package repository

import (
	"context"
	"errors"

	"github.com/hookbridge-systems/hookbridge/internal/model"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrOwnerNotFound   = errors.New("account owner not found")
)

// AccountStore is the persistence contract for account configuration,
// destination subscriptions, and usage counters. Reads from the dispatch
// path are snapshot reads; ChargeMessage is the single point of mutation.
type AccountStore interface {
	// GetAccount loads lock and active state for one account.
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)

	// ListDestinations returns every destination row for the account,
	// regardless of per-event flags. Flag filtering happens at dispatch.
	ListDestinations(ctx context.Context, accountID string) ([]model.Destination, error)

	// GetOwner returns the owning user and its subscription plan.
	GetOwner(ctx context.Context, accountID string) (*model.User, error)

	// ChargeMessage increments the account's usage counter. When ceiling
	// is positive the same statement locks the account once the
	// post-increment count reaches the ceiling; increment and lock are one
	// atomic update so concurrent workers cannot lose either.
	ChargeMessage(ctx context.Context, accountID string, ceiling int) (*model.ChargeResult, error)

	// UpdateAccountStatus records a provider account_update event value.
	UpdateAccountStatus(ctx context.Context, accountID, status string) error

	// DeleteAccount removes the account row and its destinations.
	DeleteAccount(ctx context.Context, accountID string) error

	Close() error
}
