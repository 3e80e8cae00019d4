package classifier

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"WalletSentinel/internal/model"
)

// ErrTimeout is returned when a classification exceeds its deadline.
var ErrTimeout = errors.New("classifier timed out")

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("empty classifier response")

// Categories are the labels an outgoing movement may receive.
var Categories = []string{"Groceries", "Transport", "Bills", "Entertainment", "Transfers", model.CategoryOther}

// CategorizeRequest describes one movement to label.
type CategorizeRequest struct {
	Token        string
	Amount       decimal.Decimal
	Direction    model.Direction
	Memo         string
	Counterparty string
}

// Categorizer labels a chain movement.
type Categorizer interface {
	Categorize(ctx context.Context, req CategorizeRequest) (string, error)
}

// UserContext is the financial state handed to the intent classifier.
type UserContext struct {
	Owner       string
	Balance     decimal.NullDecimal // native units
	NativePrice decimal.NullDecimal // in primary fiat
	Budget      *model.Budget
	Goals       []model.Goal
	Recent      []model.LedgerEntry
	Currencies  model.Currencies
}

// IntentClassifier turns free text into a structured intent.
type IntentClassifier interface {
	Classify(ctx context.Context, text string, uc UserContext) (model.Intent, error)
}

// NormalizeCategory maps a raw model answer onto Categories, defaulting to Other.
func NormalizeCategory(raw string) string {
	s := strings.Trim(strings.TrimSpace(raw), `."'`)
	for _, c := range Categories {
		if strings.EqualFold(s, c) {
			return c
		}
	}
	return model.CategoryOther
}
