package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"WalletSentinel/internal/advisory"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

// maxCatchUpPasses bounds how many elapsed periods one tick closes per budget chain.
const maxCatchUpPasses = 64

// Store is the budget and ledger access reconciliation needs.
type Store interface {
	DueBudgets(ctx context.Context, now time.Time) ([]model.Budget, error)
	SumExpenses(ctx context.Context, owner, currency string, from, to time.Time) (decimal.Decimal, error)
	EndBudget(ctx context.Context, id string, successor *model.Budget) (bool, error)
}

// Advisor produces surplus advice.
type Advisor interface {
	Advise(ctx context.Context, req advisory.AdviseRequest) (model.Advisory, error)
}

// Publisher broadcasts on a wallet channel.
type Publisher interface {
	Publish(key string, msg model.Message) int
}

// NextPeriod returns the [start, end) window that follows a period ending at end.
func NextPeriod(kind model.Period, end time.Time) (time.Time, time.Time) {
	return end, kind.Advance(end)
}

// Outcome describes what happened to one due budget.
type Outcome struct {
	BudgetID  string          `json:"budget_id"`
	Owner     string          `json:"owner"`
	Currency  string          `json:"currency"`
	Spent     decimal.Decimal `json:"spent"`
	Surplus   decimal.Decimal `json:"surplus"`
	Advised   bool            `json:"advised"`
	Renewed   bool            `json:"renewed"`
	Prompted  bool            `json:"prompted"`
	Successor string          `json:"successor_id,omitempty"`
}

// TickReport summarises one reconciliation tick.
type TickReport struct {
	StartedAt time.Time `json:"started_at"`
	Due       int       `json:"due"`
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Outcomes  []Outcome `json:"outcomes"`
	Errors    []string  `json:"errors,omitempty"`
}

// Reconciler closes elapsed budgets, computes surplus and dispatches advice.
type Reconciler struct {
	Store   Store
	Advisor Advisor
	Hub     Publisher
	Now     func() time.Time
}

// NewReconciler wires a reconciler.
func NewReconciler(st Store, adv Advisor, hub Publisher) *Reconciler {
	return &Reconciler{Store: st, Advisor: adv, Hub: hub, Now: time.Now}
}

// Tick processes every ACTIVE budget whose end is at or before now. Each
// budget is claimed through its ACTIVE→ENDED transition, so overlapping ticks
// never process one twice. Recurring successors that are themselves already
// due are closed in the same tick.
func (r *Reconciler) Tick(ctx context.Context) (TickReport, error) {
	now := r.Now()
	report := TickReport{StartedAt: now}
	// Budgets that failed before being claimed stay ACTIVE; retry them next tick.
	failed := make(map[string]bool)

	for pass := 0; pass < maxCatchUpPasses; pass++ {
		due, err := r.Store.DueBudgets(ctx, now)
		if err != nil {
			return report, fmt.Errorf("due budgets: %w", err)
		}

		claimedAny := false
		for _, b := range due {
			if failed[b.ID] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Due++
			out, claimed, err := r.reconcile(ctx, b)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("budget %s: %v", b.ID, err))
			}
			if !claimed {
				if err != nil {
					failed[b.ID] = true
				} else {
					report.Skipped++
				}
				continue
			}
			claimedAny = true
			report.Processed++
			report.Outcomes = append(report.Outcomes, out)
		}
		if !claimedAny {
			break
		}
	}

	logger.Info("reconcile tick: %d due, %d processed, %d skipped, %d errors",
		report.Due, report.Processed, report.Skipped, len(report.Errors))
	return report, nil
}

func (r *Reconciler) reconcile(ctx context.Context, b model.Budget) (Outcome, bool, error) {
	log := logger.With("reconcile", "budget", b.ID, "owner", b.Owner)
	out := Outcome{BudgetID: b.ID, Owner: b.Owner, Currency: b.Currency}

	spent, err := r.Store.SumExpenses(ctx, b.Owner, b.Currency, b.StartDate, b.EndDate)
	if err != nil {
		return out, false, fmt.Errorf("sum expenses: %w", err)
	}
	out.Spent = spent
	out.Surplus = b.Amount.Sub(spent)

	var successor *model.Budget
	if b.Recurring {
		start, end := NextPeriod(b.Period, b.EndDate)
		successor = &model.Budget{
			Owner:     b.Owner,
			Amount:    b.Amount,
			Currency:  b.Currency,
			Period:    b.Period,
			StartDate: start,
			EndDate:   end,
			Recurring: true,
		}
	}

	claimed, err := r.Store.EndBudget(ctx, b.ID, successor)
	if err != nil {
		return out, false, fmt.Errorf("end budget: %w", err)
	}
	if !claimed {
		log.Debug().Msg("budget already ended elsewhere")
		return out, false, nil
	}
	if successor != nil {
		out.Renewed = true
		out.Successor = successor.ID
		log.Info().Str("successor", successor.ID).Time("until", successor.EndDate).Msg("recurring budget renewed")
	}

	var adviseErr error
	if out.Surplus.IsPositive() {
		log.Info().Str("surplus", out.Surplus.StringFixed(2)).Msg("surplus detected, consulting advisor")
		adv, err := r.Advisor.Advise(ctx, advisory.AdviseRequest{
			Owner:    b.Owner,
			Surplus:  out.Surplus,
			Currency: b.Currency,
			Text:     surplusPrompt(b, out.Surplus),
		})
		if err != nil {
			adviseErr = fmt.Errorf("advise: %w", err)
		} else {
			r.Hub.Publish(b.Owner, model.Message{Kind: model.KindAdvisory, Payload: adv})
			out.Advised = true
		}
	} else {
		log.Info().Str("surplus", out.Surplus.StringFixed(2)).Msg("no surplus for this period")
	}

	if !b.Recurring {
		r.Hub.Publish(b.Owner, model.Message{Kind: model.KindBudgetEnded, Payload: EndedPrompt(b)})
		out.Prompted = true
	}
	return out, true, adviseErr
}

func surplusPrompt(b model.Budget, surplus decimal.Decimal) string {
	return fmt.Sprintf("My %s budget of %s %s has ended. I have a surplus of %s %s. "+
		"Based on my goals and the market, please advise me on how to split and execute this.",
		b.Period, b.Amount, b.Currency, surplus.StringFixed(2), b.Currency)
}

// EndedPrompt asks the owner of a non-recurring budget whether to set another.
func EndedPrompt(b model.Budget) model.BudgetPrompt {
	return model.BudgetPrompt{
		Owner:       b.Owner,
		BudgetID:    b.ID,
		Reply:       fmt.Sprintf("Your %s budget of %s %s has ended. Would you like to set a new one?", b.Period, b.Amount, b.Currency),
		Suggestions: []string{fmt.Sprintf("Yes, set another %s budget", b.Period), "No thanks"},
	}
}
