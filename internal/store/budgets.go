package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"WalletSentinel/internal/model"
)

// ErrInvalidBudget is returned for budgets that cannot be stored as given.
var ErrInvalidBudget = errors.New("invalid budget")

const budgetColumns = `id, owner, amount, currency, period, start_date, end_date, recurring, status`

func scanBudget(r rowScanner) (model.Budget, error) {
	var (
		b          model.Budget
		period     string
		status     string
		start, end int64
	)
	if err := r.Scan(&b.ID, &b.Owner, &b.Amount, &b.Currency, &period, &start, &end, &b.Recurring, &status); err != nil {
		return b, err
	}
	b.Period = model.Period(period)
	b.Status = model.BudgetStatus(status)
	b.StartDate = fromUnix(start)
	b.EndDate = fromUnix(end)
	return b, nil
}

// checkBudget validates b and rewrites its currency to the tracked code.
func (s *Store) checkBudget(b *model.Budget) error {
	switch {
	case b.Owner == "":
		return fmt.Errorf("%w: missing owner", ErrInvalidBudget)
	case !b.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidBudget)
	case b.Currency == "":
		return fmt.Errorf("%w: missing currency", ErrInvalidBudget)
	case !b.Period.Valid():
		return fmt.Errorf("%w: unknown period %q", ErrInvalidBudget, b.Period)
	case !b.EndDate.After(b.StartDate):
		return fmt.Errorf("%w: end must be after start", ErrInvalidBudget)
	}
	code, ok := s.currencies.Resolve(b.Currency)
	if !ok {
		return fmt.Errorf("%w: untracked currency %q", ErrInvalidBudget, b.Currency)
	}
	b.Currency = code
	return nil
}

func insertBudget(ctx context.Context, tx *sql.Tx, b *model.Budget) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Status = model.BudgetActive
	_, err := tx.ExecContext(ctx, `INSERT INTO budgets (`+budgetColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		b.ID, b.Owner, b.Amount, b.Currency, string(b.Period),
		toUnix(b.StartDate), toUnix(b.EndDate), b.Recurring, string(b.Status))
	return err
}

// UpsertActiveBudget sets the owner's ACTIVE budget. If one exists it is
// updated in place and keeps its ID; otherwise a new ACTIVE budget is created.
func (s *Store) UpsertActiveBudget(ctx context.Context, b model.Budget) (model.Budget, error) {
	if err := s.checkBudget(&b); err != nil {
		return b, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return b, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanBudget(tx.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE owner = ? AND status = ?`, b.Owner, string(model.BudgetActive)))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		b.ID = ""
		if err := insertBudget(ctx, tx, &b); err != nil {
			return b, fmt.Errorf("insert budget: %w", err)
		}
	case err != nil:
		return b, fmt.Errorf("select active budget: %w", err)
	default:
		b.ID = existing.ID
		b.Status = model.BudgetActive
		_, err = tx.ExecContext(ctx, `UPDATE budgets
			SET amount = ?, currency = ?, period = ?, start_date = ?, end_date = ?, recurring = ?
			WHERE id = ? AND status = ?`,
			b.Amount, b.Currency, string(b.Period), toUnix(b.StartDate), toUnix(b.EndDate), b.Recurring,
			b.ID, string(model.BudgetActive))
		if err != nil {
			return b, fmt.Errorf("update budget %s: %w", b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return b, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

// ActiveBudget returns the owner's ACTIVE budget or ErrNotFound.
func (s *Store) ActiveBudget(ctx context.Context, owner string) (model.Budget, error) {
	b, err := scanBudget(s.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE owner = ? AND status = ?`, owner, string(model.BudgetActive)))
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("active budget for %s: %w", owner, ErrNotFound)
	}
	return b, err
}

// GetBudget returns a budget by ID or ErrNotFound.
func (s *Store) GetBudget(ctx context.Context, id string) (model.Budget, error) {
	b, err := scanBudget(s.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("budget %s: %w", id, ErrNotFound)
	}
	return b, err
}

// DueBudgets returns ACTIVE budgets whose end is at or before now, oldest first.
func (s *Store) DueBudgets(ctx context.Context, now time.Time) ([]model.Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE status = ? AND end_date <= ? ORDER BY end_date, id`,
		string(model.BudgetActive), toUnix(now))
	if err != nil {
		return nil, fmt.Errorf("due budgets: %w", err)
	}
	defer rows.Close()

	var out []model.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// EndBudget moves budget id from ACTIVE to ENDED and, when successor is
// non-nil, inserts it as the owner's new ACTIVE budget in the same
// transaction. claimed is false when the budget was no longer ACTIVE, in
// which case nothing is written.
func (s *Store) EndBudget(ctx context.Context, id string, successor *model.Budget) (bool, error) {
	if successor != nil {
		if err := s.checkBudget(successor); err != nil {
			return false, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE budgets SET status = ? WHERE id = ? AND status = ?`,
		string(model.BudgetEnded), id, string(model.BudgetActive))
	if err != nil {
		return false, fmt.Errorf("end budget %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("end budget %s: %w", id, err)
	}
	if n == 0 {
		return false, nil
	}

	if successor != nil {
		successor.ID = ""
		if err := insertBudget(ctx, tx, successor); err != nil {
			return false, fmt.Errorf("insert successor of %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
