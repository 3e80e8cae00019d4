package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"WalletSentinel/internal/model"
)

const ledgerColumns = `signature, owner, amount, asset, amount_primary, amount_secondary,
	category, direction, description, goal_id, created_at`

func scanEntry(r rowScanner) (model.LedgerEntry, error) {
	var (
		e         model.LedgerEntry
		direction string
		goalID    sql.NullString
		createdAt int64
	)
	err := r.Scan(&e.Signature, &e.Owner, &e.Amount, &e.Asset, &e.Primary, &e.Secondary,
		&e.Category, &direction, &e.Description, &goalID, &createdAt)
	if err != nil {
		return e, err
	}
	e.Direction = model.Direction(direction)
	e.GoalID = goalID.String
	e.CreatedAt = fromUnix(createdAt)
	return e, nil
}

// dispositionCategory reports whether c was assigned by a confirmed disposition.
func dispositionCategory(c string) bool {
	return c == model.CategorySavings || c == model.CategoryStaking
}

// UpsertEntry records e keyed by its signature. A new signature creates a row;
// a known one updates category, description and converted amounts while
// leaving identity, owner, amount and creation time untouched. Null
// conversions never erase known values, and a disposition category is only
// replaced by another disposition category.
func (s *Store) UpsertEntry(ctx context.Context, e model.LedgerEntry) (model.LedgerEntry, bool, error) {
	if e.Signature == "" {
		return e, false, errors.New("upsert entry: empty signature")
	}
	if e.Amount.IsNegative() {
		e.Amount = e.Amount.Abs()
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return e, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanEntry(tx.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE signature = ?`, e.Signature))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.Category == "" {
			e.Category = model.CategoryOther
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO ledger_entries
			(signature, owner, amount, asset, amount_primary, amount_secondary,
			 category, direction, description, goal_id, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,NULL,?,?)`,
			e.Signature, e.Owner, e.Amount, e.Asset, e.Primary, e.Secondary,
			e.Category, string(e.Direction), e.Description, toUnix(e.CreatedAt), toUnix(now),
		)
		if err != nil {
			return e, false, fmt.Errorf("insert entry %s: %w", e.Signature, err)
		}
		if err := tx.Commit(); err != nil {
			return e, false, fmt.Errorf("commit: %w", err)
		}
		e.GoalID = ""
		return e, true, nil

	case err != nil:
		return e, false, fmt.Errorf("select entry %s: %w", e.Signature, err)
	}

	merged := existing
	if e.Category != "" && (!dispositionCategory(existing.Category) || dispositionCategory(e.Category)) {
		merged.Category = e.Category
	}
	if e.Description != "" {
		merged.Description = e.Description
	}
	if e.Primary.Valid {
		merged.Primary = e.Primary
	}
	if e.Secondary.Valid {
		merged.Secondary = e.Secondary
	}

	_, err = tx.ExecContext(ctx, `UPDATE ledger_entries
		SET category = ?, description = ?, amount_primary = ?, amount_secondary = ?, updated_at = ?
		WHERE signature = ?`,
		merged.Category, merged.Description, merged.Primary, merged.Secondary, toUnix(now), e.Signature,
	)
	if err != nil {
		return existing, false, fmt.Errorf("update entry %s: %w", e.Signature, err)
	}
	if err := tx.Commit(); err != nil {
		return existing, false, fmt.Errorf("commit: %w", err)
	}
	return merged, false, nil
}

// GetEntry returns the entry for signature or ErrNotFound.
func (s *Store) GetEntry(ctx context.Context, signature string) (model.LedgerEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE signature = ?`, signature))
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("entry %s: %w", signature, ErrNotFound)
	}
	return e, err
}

// ListEntries returns the owner's most recent entries, newest first.
func (s *Store) ListEntries(ctx context.Context, owner string, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE owner = ?
		 ORDER BY created_at DESC, signature LIMIT ?`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SumExpenses totals the owner's expenses created in [from, to), valued in
// currency. Entries whose value in currency is unknown count as zero.
func (s *Store) SumExpenses(ctx context.Context, owner, currency string, from, to time.Time) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		 WHERE owner = ? AND direction = ? AND created_at >= ? AND created_at < ?`,
		owner, string(model.DirectionExpense), toUnix(from), toUnix(to))
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return decimal.Zero, fmt.Errorf("scan entry: %w", err)
		}
		if v := e.AmountIn(currency, s.currencies); v.Valid {
			total = total.Add(v.Decimal)
		}
	}
	return total, rows.Err()
}
