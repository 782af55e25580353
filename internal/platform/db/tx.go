package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxTxAttempts bounds how often a transaction runs when it keeps hitting
// serialization failures or deadlocks.
const MaxTxAttempts = 8

// defaultTxOptions keeps sale writers on ReadCommitted. Row locks taken with FOR UPDATE
// and the folio counter's INSERT ... ON CONFLICT DO UPDATE wait for concurrent writers
// and then read their committed rows.
var defaultTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

var (
	retryInitialInterval = 10 * time.Millisecond
	retryMaxInterval     = 500 * time.Millisecond
)

// WithTx executes fn within a ReadCommitted transaction. Serialization failures (40001)
// and deadlocks (40P01) replay fn from scratch after a jittered exponential backoff, so
// fn must not leak partial state outside the transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return retryConflicts(ctx, func() error {
		return runTx(ctx, pool, defaultTxOptions, fn)
	})
}

func retryConflicts(ctx context.Context, run func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := run()
		if err != nil && !IsSerializationFailure(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(MaxTxAttempts))
	return err
}

func runTx(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// IsSerializationFailure reports whether err is a retryable concurrency conflict.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation, optionally on a
// specific constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
