package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookbridge-systems/hookbridge/internal/model"
)

// PostgresStore implements AccountStore using PostgreSQL. The pool is
// shared read/write across all workers.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a pooled PostgreSQL store and verifies the
// connection.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// GetAccount loads one account's configuration row.
func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	query := `
		SELECT account_id, user_id, status, is_active, is_locked, messages_sent
		FROM accounts
		WHERE account_id = $1
	`

	a := &model.Account{}
	err := s.pool.QueryRow(ctx, query, accountID).Scan(
		&a.AccountID, &a.UserID, &a.Status, &a.IsActive, &a.IsLocked, &a.MessagesSent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return a, nil
}

// ListDestinations returns all destination subscriptions for an account.
func (s *PostgresStore) ListDestinations(ctx context.Context, accountID string) ([]model.Destination, error) {
	query := `
		SELECT url, message_received, message_sent, message_delivered, message_read
		FROM destinations
		WHERE account_id = $1
		ORDER BY url
	`

	rows, err := s.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list destinations: %w", err)
	}
	defer rows.Close()

	destinations := []model.Destination{}
	for rows.Next() {
		var d model.Destination
		if err := rows.Scan(&d.URL, &d.MessageReceived, &d.MessageSent, &d.MessageDelivered, &d.MessageRead); err != nil {
			return nil, fmt.Errorf("failed to scan destination: %w", err)
		}
		destinations = append(destinations, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return destinations, nil
}

// GetOwner resolves the account's owning user and subscription plan.
func (s *PostgresStore) GetOwner(ctx context.Context, accountID string) (*model.User, error) {
	query := `
		SELECT u.user_id, u.subscription_plan_id
		FROM users u
		JOIN accounts a ON a.user_id = u.user_id
		WHERE a.account_id = $1
	`

	u := &model.User{}
	err := s.pool.QueryRow(ctx, query, accountID).Scan(&u.UserID, &u.SubscriptionPlanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOwnerNotFound
		}
		return nil, fmt.Errorf("failed to get account owner: %w", err)
	}

	return u, nil
}

// ChargeMessage increments messages_sent and, for a positive ceiling,
// locks the account once the post-increment count reaches it. One
// conditional UPDATE, not read-then-write: two workers charging the same
// account concurrently must not both observe "under ceiling".
func (s *PostgresStore) ChargeMessage(ctx context.Context, accountID string, ceiling int) (*model.ChargeResult, error) {
	query := `
		UPDATE accounts
		SET messages_sent = messages_sent + 1,
		    is_locked = is_locked OR ($2 > 0 AND messages_sent + 1 >= $2),
		    updated_at = now()
		WHERE account_id = $1
		RETURNING messages_sent, is_locked
	`

	result := &model.ChargeResult{}
	err := s.pool.QueryRow(ctx, query, accountID, ceiling).Scan(&result.MessagesSent, &result.Locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to charge message: %w", err)
	}

	return result, nil
}

// UpdateAccountStatus stores the latest account_update event value.
func (s *PostgresStore) UpdateAccountStatus(ctx context.Context, accountID, status string) error {
	query := `
		UPDATE accounts
		SET status = $2, updated_at = now()
		WHERE account_id = $1
	`

	result, err := s.pool.Exec(ctx, query, accountID, status)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// DeleteAccount removes the account row; destinations cascade.
func (s *PostgresStore) DeleteAccount(ctx context.Context, accountID string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
