package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletSentinel/internal/model"
)

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Groceries", "Groceries"},
		{"  transport.\n", "Transport"},
		{`"Bills"`, "Bills"},
		{"Crypto degen stuff", model.CategoryOther},
		{"", model.CategoryOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCategory(tt.raw), "raw=%q", tt.raw)
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", "Sure! Here you go: {\"a\":1} Hope that helps.", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.raw))
		})
	}
}

func TestParseIntent(t *testing.T) {
	raw := "```json\n" + `{"type":"finance","action":"advise_on_surplus","amount":380,"currency":"USD",` +
		`"description":null,"suggestedSplit":{"savePercent":70,"stakePercent":30},"reply":"Save most of it."}` + "\n```"

	intent, err := parseIntent(raw)
	require.NoError(t, err)
	assert.Equal(t, model.ActionAdviseOnSurplus, intent.Action)
	assert.Equal(t, "380", intent.Amount)
	assert.Equal(t, "USD", intent.Currency)
	assert.Empty(t, intent.Description)
	require.NotNil(t, intent.SuggestedSplit)
	assert.Equal(t, 70, intent.SuggestedSplit.Percent(model.TargetSave))
	assert.Equal(t, 30, intent.SuggestedSplit.Percent(model.TargetStake))
	assert.NoError(t, intent.SuggestedSplit.Validate())
}

func TestParseIntent_NoSplit(t *testing.T) {
	intent, err := parseIntent(`{"type":"finance","action":"execute_split","amount":null,"suggestedSplit":null,"reply":"On it."}`)
	require.NoError(t, err)
	assert.Nil(t, intent.SuggestedSplit)
	assert.Empty(t, intent.Amount)
}

func TestParseIntent_Malformed(t *testing.T) {
	_, err := parseIntent("not json at all")
	assert.Error(t, err)
}

func TestIntentPrompt_CarriesContext(t *testing.T) {
	budget := &model.Budget{Amount: decimal.NewFromInt(500), Currency: "USD", Period: model.PeriodWeekly}
	p := intentPrompt("how should I use my surplus?", UserContext{
		Balance:     decimal.NewNullDecimal(decimal.RequireFromString("2.5")),
		NativePrice: decimal.NewNullDecimal(decimal.NewFromInt(150)),
		Budget:      budget,
		Goals:       []model.Goal{{Name: "Laptop", Type: model.GoalSavings, TargetAmount: decimal.NewFromInt(1000), Currency: "USD"}},
		Currencies:  model.Currencies{Native: "SOL", Primary: "USD", Secondary: "NGN"},
	})
	assert.Contains(t, p, "2.5000 SOL")
	assert.Contains(t, p, "SOL price: 150.00 USD")
	assert.Contains(t, p, "weekly budget: 500 USD")
	assert.Contains(t, p, "Goal Laptop (SAVINGS)")
	assert.Contains(t, p, "how should I use my surplus?")
}

func TestBounded_DefaultsOnTimeout(t *testing.T) {
	slow := &Static{Category: "Bills", Delay: time.Second}
	b := NewBounded(slow, 20*time.Millisecond)

	label, err := b.Categorize(context.Background(), CategorizeRequest{Token: "SOL"})
	assert.Equal(t, model.CategoryOther, label)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestBounded_DefaultsOnError(t *testing.T) {
	b := NewBounded(&Static{Err: errors.New("quota")}, time.Second)
	label, err := b.Categorize(context.Background(), CategorizeRequest{})
	assert.Equal(t, model.CategoryOther, label)
	assert.Error(t, err)
}

func TestBounded_PassesThrough(t *testing.T) {
	inner := &Static{Category: "Transport"}
	b := NewBounded(inner, time.Second)
	label, err := b.Categorize(context.Background(), CategorizeRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Transport", label)
	assert.Equal(t, 1, inner.Categorized())
}
