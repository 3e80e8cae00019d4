package advisory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

type disposition struct {
	category    string
	description string
}

var dispositions = map[string]disposition{
	model.TargetSave:  {model.CategorySavings, "Saved surplus (transfer)"},
	model.TargetStake: {model.CategoryStaking, "Staked surplus (native staking)"},
}

// ConfirmRequest claims that a disposition transaction was sent.
type ConfirmRequest struct {
	Owner     string          `json:"owner"`
	Signature string          `json:"signature"`
	Action    string          `json:"action"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	GoalID    string          `json:"goal_id,omitempty"`
}

// ConfirmResult reports a verified disposition.
type ConfirmResult struct {
	Entry       model.LedgerEntry `json:"entry"`
	Created     bool              `json:"created"`
	Slot        uint64            `json:"slot"`
	BlockTime   time.Time         `json:"block_time"`
	Fee         uint64            `json:"fee"`
	Attempts    int               `json:"attempts"`
	GoalApplied bool              `json:"goal_applied"`
}

// Confirm polls the chain for the claimed transaction. When it is visible
// and succeeded, the disposition is recorded under its signature and, if a
// goal is named, the goal grows by the amount in the goal's currency. It
// returns ErrNotVisible when polling runs out and ErrTxFailed when the
// transaction failed on chain; neither writes anything.
func (a *Advisor) Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	var res ConfirmResult
	d, ok := dispositions[req.Action]
	if !ok {
		return res, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
	if req.Signature == "" || req.Owner == "" {
		return res, errors.New("confirm: signature and owner are required")
	}

	tx, attempts, err := a.poll(ctx, req.Signature)
	res.Attempts = attempts
	if err != nil {
		return res, err
	}
	res.Slot, res.BlockTime, res.Fee = tx.Slot, tx.BlockTime, tx.Fee
	if tx.Failed {
		return res, fmt.Errorf("confirm %s: %w", req.Signature, ErrTxFailed)
	}

	entry := model.LedgerEntry{
		Signature:   req.Signature,
		Owner:       req.Owner,
		Asset:       a.Currencies.Native,
		Category:    d.category,
		Direction:   model.DirectionExpense,
		Description: d.description,
		CreatedAt:   tx.BlockTime,
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now()
	}

	values, err := a.Converter.FromFiat(ctx, req.Amount, req.Currency)
	if err != nil {
		logger.Warn("confirm %s: convert %s %s: %v", req.Signature, req.Amount, req.Currency, err)
	}
	entry.Primary, entry.Secondary = values.Primary, values.Secondary
	switch {
	case values.Native.Valid:
		entry.Amount = values.Native.Decimal
	default:
		delta, _ := tx.BalanceDelta(req.Owner)
		if delta < 0 {
			delta = -delta
		}
		entry.Amount = chain.ToNative(delta)
	}

	stored, created, err := a.Store.UpsertEntry(ctx, entry)
	if err != nil {
		return res, fmt.Errorf("record %s: %w", req.Signature, err)
	}
	res.Entry, res.Created = stored, created

	if req.GoalID == "" {
		return res, nil
	}
	goal, err := a.Store.GetGoal(ctx, req.GoalID)
	if err != nil {
		return res, fmt.Errorf("goal %s: %w", req.GoalID, err)
	}
	delta := req.Amount
	if goal.Currency != req.Currency {
		v := stored.AmountIn(goal.Currency, a.Currencies)
		if !v.Valid {
			logger.Warn("confirm %s: no %s value, goal %s not credited", req.Signature, goal.Currency, goal.ID)
			return res, nil
		}
		delta = v.Decimal
	}
	res.GoalApplied, err = a.Store.AttributeToGoal(ctx, req.Signature, goal.ID, delta)
	if err != nil {
		return res, fmt.Errorf("credit goal %s: %w", goal.ID, err)
	}
	return res, nil
}

// poll looks the signature up until it is visible or attempts run out. A
// signature the reader rejects as malformed ends polling at once.
func (a *Advisor) poll(ctx context.Context, signature string) (*model.ChainTx, int, error) {
	var lastErr error
	for attempt := 1; attempt <= a.Config.ConfirmAttempts; attempt++ {
		tx, err := a.Reader.GetTransaction(ctx, signature)
		if err == nil {
			return tx, attempt, nil
		}
		lastErr = err
		if errors.Is(err, chain.ErrInvalidSignature) {
			return nil, attempt, fmt.Errorf("confirm: %w", err)
		}
		if !errors.Is(err, chain.ErrTxNotFound) {
			logger.Warn("confirm %s: attempt %d: %v", signature, attempt, err)
		}
		if attempt == a.Config.ConfirmAttempts {
			break
		}
		if err := a.sleep(ctx, a.Config.ConfirmDelay); err != nil {
			return nil, attempt, err
		}
	}
	return nil, a.Config.ConfirmAttempts,
		fmt.Errorf("confirm %s after %d attempts: %w (last: %v)", signature, a.Config.ConfirmAttempts, ErrNotVisible, lastErr)
}
