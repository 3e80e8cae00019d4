package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the sign of a ledger movement relative to the owning wallet.
type Direction string

const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
)

const (
	CategoryIncome  = "Income"
	CategoryOther   = "Other"
	CategorySavings = "Savings"
	CategoryStaking = "Staking"
)

// LedgerEntry is one recorded chain event. Signature is its identity.
type LedgerEntry struct {
	Signature   string              `json:"signature"`
	Owner       string              `json:"owner"`
	Amount      decimal.Decimal     `json:"amount"` // native units, always non-negative
	Asset       string              `json:"asset"`
	Primary     decimal.NullDecimal `json:"amount_primary"`
	Secondary   decimal.NullDecimal `json:"amount_secondary"`
	Category    string              `json:"category"`
	Direction   Direction           `json:"direction"`
	Description string              `json:"description"`
	GoalID      string              `json:"goal_id,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// AmountIn picks the converted amount matching a fiat currency code.
func (e LedgerEntry) AmountIn(currency string, cur Currencies) decimal.NullDecimal {
	code, ok := cur.Resolve(currency)
	if !ok {
		return decimal.NullDecimal{}
	}
	switch code {
	case cur.Primary:
		return e.Primary
	case cur.Secondary:
		return e.Secondary
	case cur.Native:
		return decimal.NewNullDecimal(e.Amount)
	}
	return decimal.NullDecimal{}
}

// Currencies names the native asset and the two tracked fiat denominations.
type Currencies struct {
	Native    string
	Primary   string
	Secondary string
}

// Resolve returns the tracked code matching currency, ignoring case.
func (c Currencies) Resolve(currency string) (string, bool) {
	currency = strings.TrimSpace(currency)
	for _, code := range []string{c.Primary, c.Secondary, c.Native} {
		if code != "" && strings.EqualFold(code, currency) {
			return code, true
		}
	}
	return "", false
}
