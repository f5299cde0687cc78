// Package resolver answers the one question the fan-out path asks about
// an account: may it receive delivery right now, and where.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/hookbridge-systems/hookbridge/internal/model"
	"github.com/hookbridge-systems/hookbridge/internal/repository"
)

// Resolution is the delivery decision for one account. Destinations are
// the full subscription set; per-event flag filtering happens at dispatch
// because one envelope can map to different event types.
type Resolution struct {
	Allowed      bool
	Reason       string
	Destinations []model.Destination
}

// Resolver loads account lock state and destination subscriptions.
type Resolver struct {
	store repository.AccountStore
}

// New creates a resolver backed by the given store.
func New(store repository.AccountStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve fails closed: an unknown, locked, or inactive account resolves
// to a skip with a nil error. A misconfigured or suspended account must
// never leak events. Store failures surface as errors so the caller can
// drop the envelope and keep its loop alive.
func (r *Resolver) Resolve(ctx context.Context, accountID string) (*Resolution, error) {
	if accountID == "" {
		return &Resolution{Reason: "missing account id"}, nil
	}

	account, err := r.store.GetAccount(ctx, accountID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return &Resolution{Reason: "account not found"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}

	if account.IsLocked {
		return &Resolution{Reason: "account locked"}, nil
	}
	if !account.IsActive {
		return &Resolution{Reason: "account inactive"}, nil
	}

	destinations, err := r.store.ListDestinations(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load destinations for %s: %w", accountID, err)
	}

	return &Resolution{Allowed: true, Destinations: destinations}, nil
}
