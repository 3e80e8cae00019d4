package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"WalletSentinel/internal/model"
	"WalletSentinel/internal/store"
)

// Setter stores the owner's single active budget.
type Setter interface {
	UpsertActiveBudget(ctx context.Context, b model.Budget) (model.Budget, error)
}

// SetRequest creates or replaces an owner's active budget.
type SetRequest struct {
	Owner     string          `json:"owner"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Period    model.Period    `json:"period,omitempty"`
	Recurring bool            `json:"recurring"`
	Start     *time.Time      `json:"start,omitempty"`
}

// Set upserts the owner's active budget. The period defaults to weekly, the
// start to now, and the end is one period after the start.
func Set(ctx context.Context, st Setter, req SetRequest, now time.Time) (model.Budget, error) {
	period := req.Period
	if period == "" {
		period = model.PeriodWeekly
	}
	if !period.Valid() {
		return model.Budget{}, fmt.Errorf("%w: unknown period %q", store.ErrInvalidBudget, period)
	}
	start := now.UTC()
	if req.Start != nil {
		start = req.Start.UTC()
	}
	return st.UpsertActiveBudget(ctx, model.Budget{
		Owner:     req.Owner,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Period:    period,
		StartDate: start,
		EndDate:   period.Advance(start),
		Recurring: req.Recurring,
	})
}
