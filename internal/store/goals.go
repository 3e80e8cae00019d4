package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"WalletSentinel/internal/model"
)

const goalColumns = `id, owner, name, target_amount, current_amount, currency, type`

func scanGoal(r rowScanner) (model.Goal, error) {
	var (
		g   model.Goal
		typ string
	)
	if err := r.Scan(&g.ID, &g.Owner, &g.Name, &g.TargetAmount, &g.CurrentAmount, &g.Currency, &typ); err != nil {
		return g, err
	}
	g.Type = model.GoalType(typ)
	return g, nil
}

// CreateGoal stores a new goal with a zero current amount.
func (s *Store) CreateGoal(ctx context.Context, g model.Goal) (model.Goal, error) {
	if g.Owner == "" || g.Name == "" || g.Currency == "" {
		return g, errors.New("create goal: owner, name and currency are required")
	}
	if g.Type != model.GoalSavings && g.Type != model.GoalInvestment {
		g.Type = model.GoalSavings
	}
	g.ID = uuid.NewString()
	g.CurrentAmount = decimal.Zero

	_, err := s.db.ExecContext(ctx, `INSERT INTO goals (`+goalColumns+`, created_at) VALUES (?,?,?,?,?,?,?,?)`,
		g.ID, g.Owner, g.Name, g.TargetAmount, g.CurrentAmount, g.Currency, string(g.Type), toUnix(s.now()))
	if err != nil {
		return g, fmt.Errorf("insert goal: %w", err)
	}
	return g, nil
}

// GetGoal returns a goal by ID or ErrNotFound.
func (s *Store) GetGoal(ctx context.Context, id string) (model.Goal, error) {
	g, err := scanGoal(s.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return g, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return g, err
}

// ListGoals returns the owner's goals in creation order.
func (s *Store) ListGoals(ctx context.Context, owner string) ([]model.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE owner = ? ORDER BY created_at, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// AttributeToGoal links the ledger entry for signature to goalID and adds
// delta to the goal's current amount. A signature is attributed at most
// once; later calls return applied=false and change nothing.
func (s *Store) AttributeToGoal(ctx context.Context, signature, goalID string, delta decimal.Decimal) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	g, err := scanGoal(tx.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, goalID))
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("goal %s: %w", goalID, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("select goal %s: %w", goalID, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE ledger_entries SET goal_id = ? WHERE signature = ? AND goal_id IS NULL`, goalID, signature)
	if err != nil {
		return false, fmt.Errorf("link entry %s: %w", signature, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM ledger_entries WHERE signature = ?`, signature).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("entry %s: %w", signature, ErrNotFound)
		}
		return false, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE goals SET current_amount = ? WHERE id = ?`,
		g.CurrentAmount.Add(delta), goalID)
	if err != nil {
		return false, fmt.Errorf("increment goal %s: %w", goalID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
