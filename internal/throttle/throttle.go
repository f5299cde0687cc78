// Package throttle enforces per-plan usage ceilings on billable outbound
// messages. Crossing a ceiling locks the account; unlocking is an
// administrative action outside this service.
package throttle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hookbridge-systems/hookbridge/internal/metrics"
	"github.com/hookbridge-systems/hookbridge/internal/repository"
)

// Throttle charges accounts for sent messages and trips the plan lock.
type Throttle struct {
	store       repository.AccountStore
	ceilings    map[string]int
	exemptUsers map[string]struct{}
	logger      *slog.Logger
}

// New creates a throttle. ceilings maps subscription plan IDs to their
// message ceilings; plans without an entry are unrestricted. Accounts
// owned by an exempt (staff) user are treated as unrestricted regardless
// of their stored plan.
func New(store repository.AccountStore, ceilings map[string]int, exemptUserIDs []string, logger *slog.Logger) *Throttle {
	exempt := make(map[string]struct{}, len(exemptUserIDs))
	for _, id := range exemptUserIDs {
		exempt[id] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Throttle{
		store:       store,
		ceilings:    ceilings,
		exemptUsers: exempt,
		logger:      logger,
	}
}

// ChargeSent records one billable sent message for the account. For a
// restricted plan the store performs the increment and the lock in a
// single atomic update; there is no window where two concurrent charges
// both observe "under ceiling".
func (t *Throttle) ChargeSent(ctx context.Context, accountID string) error {
	owner, err := t.store.GetOwner(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load owner of %s: %w", accountID, err)
	}

	ceiling := 0
	if _, exempt := t.exemptUsers[owner.UserID]; !exempt {
		ceiling = t.ceilings[owner.SubscriptionPlanID]
	}

	result, err := t.store.ChargeMessage(ctx, accountID, ceiling)
	if err != nil {
		return fmt.Errorf("charge account %s: %w", accountID, err)
	}

	// Count the transition once, on the charge that reached the ceiling.
	if result.Locked && ceiling > 0 && result.MessagesSent == int64(ceiling) {
		metrics.AccountsLocked.Inc()
		t.logger.Warn("account reached plan ceiling, locked",
			slog.String("account_id", accountID),
			slog.String("plan", owner.SubscriptionPlanID),
			slog.Int64("messages_sent", result.MessagesSent),
		)
	}

	return nil
}
