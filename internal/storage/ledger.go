package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"reward-farming/internal/custody"
)

const (
	selectBalanceSQL = `SELECT balance::text FROM custody_balances WHERE account = $1;`

	debitBalanceSQL = `UPDATE custody_balances
    SET balance = balance - $2::numeric
    WHERE account = $1
      AND balance >= $2::numeric;`

	creditBalanceSQL = `INSERT INTO custody_balances (account, balance)
    VALUES ($1, $2::numeric)
    ON CONFLICT (account) DO UPDATE
    SET balance = custody_balances.balance + EXCLUDED.balance;`
)

// pgCheckViolation is the SQLSTATE raised by custody_balance_range.
const pgCheckViolation = "23514"

// Balance implements custody.Ledger.
func (s *Store) Balance(ctx context.Context, account custody.Account) (uint64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	return balance(ctx, pool, account)
}

// Execute implements custody.Ledger in its own transaction.
func (s *Store) Execute(ctx context.Context, legs ...custody.Transfer) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := applyTransfers(ctx, tx, legs); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transfers: %w", err)
	}
	return nil
}

// Mint credits an account out of thin air. Used by operators to seed wallets.
func (s *Store) Mint(ctx context.Context, account custody.Account, amount uint64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, creditBalanceSQL, string(account), formatUint(amount)); err != nil {
		return classifyLedgerError(fmt.Sprintf("credit %s", account), err)
	}
	return nil
}

func balance(ctx context.Context, q querier, account custody.Account) (uint64, error) {
	var raw string
	err := q.QueryRow(ctx, selectBalanceSQL, string(account)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return parseUint("balance", raw)
}

func applyTransfers(ctx context.Context, q querier, legs []custody.Transfer) error {
	for _, leg := range custody.Compact(legs) {
		amount := formatUint(leg.Amount)
		tag, err := q.Exec(ctx, debitBalanceSQL, string(leg.From), amount)
		if err != nil {
			return classifyLedgerError(fmt.Sprintf("debit %s", leg.From), err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("debit %s: %w", leg.From, custody.ErrInsufficientFunds)
		}
		if _, err := q.Exec(ctx, creditBalanceSQL, string(leg.To), amount); err != nil {
			return classifyLedgerError(fmt.Sprintf("credit %s", leg.To), err)
		}
	}
	return nil
}

func classifyLedgerError(action string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
		return fmt.Errorf("%s: %w", action, custody.ErrBalanceOverflow)
	}
	return fmt.Errorf("%s: %w", action, err)
}

var _ custody.Ledger = (*Store)(nil)
