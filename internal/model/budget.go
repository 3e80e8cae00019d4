package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetStatus is the lifecycle state of a budget.
type BudgetStatus string

const (
	BudgetActive BudgetStatus = "ACTIVE"
	BudgetEnded  BudgetStatus = "ENDED"
)

// Period is the length of one budget window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// Budget caps spending for one owner over [StartDate, EndDate).
type Budget struct {
	ID        string          `json:"id"`
	Owner     string          `json:"owner"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Period    Period          `json:"period"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	Recurring bool            `json:"recurring"`
	Status    BudgetStatus    `json:"status"`
}

// GoalType classifies what a goal accumulates toward.
type GoalType string

const (
	GoalSavings    GoalType = "SAVINGS"
	GoalInvestment GoalType = "INVESTMENT"
)

// Goal is a savings or investment target. CurrentAmount only grows through confirmed dispositions.
type Goal struct {
	ID            string          `json:"id"`
	Owner         string          `json:"owner"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Currency      string          `json:"currency"`
	Type          GoalType        `json:"type"`
}

// Advance returns the end of a period that starts at t. Unknown periods are
// treated as weekly.
func (p Period) Advance(t time.Time) time.Time {
	switch p {
	case PeriodDaily:
		return t.AddDate(0, 0, 1)
	case PeriodMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 7)
	}
}
