package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"WalletSentinel/internal/model"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// Gemini implements Categorizer and IntentClassifier on the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini classifier.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: modelName}, nil
}

func (g *Gemini) generate(ctx context.Context, prompt string, jsonOut bool) (string, error) {
	var cfg *genai.GenerateContentConfig
	if jsonOut {
		cfg = &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("generate content: %w", ErrTimeout)
		}
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *Gemini) Categorize(ctx context.Context, req CategorizeRequest) (string, error) {
	text, err := g.generate(ctx, categorizePrompt(req), false)
	if err != nil {
		return "", err
	}
	return NormalizeCategory(text), nil
}

func categorizePrompt(req CategorizeRequest) string {
	memo := req.Memo
	if memo == "" {
		memo = "None"
	}
	to := req.Counterparty
	if to == "" {
		to = "Unknown"
	}
	return "You are a financial assistant. Categorize this transaction.\n\n" +
		"Transaction:\n" +
		"- Token: " + req.Token + "\n" +
		"- Amount: " + req.Amount.String() + "\n" +
		"- Direction: " + string(req.Direction) + "\n" +
		"- To: " + to + "\n" +
		"- Memo: " + memo + "\n\n" +
		"Categories: [" + strings.Join(Categories, ", ") + "]\n\n" +
		"Respond with ONLY one category."
}

func (g *Gemini) Classify(ctx context.Context, text string, uc UserContext) (model.Intent, error) {
	raw, err := g.generate(ctx, intentPrompt(text, uc), true)
	if err != nil {
		return model.Intent{}, err
	}
	intent, err := parseIntent(raw)
	if err != nil {
		return model.Intent{}, fmt.Errorf("parse intent: %w\nraw response: %s", err, raw)
	}
	return intent, nil
}

func intentPrompt(input string, uc UserContext) string {
	var b strings.Builder
	b.WriteString("You are a prudent financial advisor for wallet owners on Solana.\n\n")
	b.WriteString("User context:\n")
	b.WriteString(describeUser(uc))
	b.WriteString("\nHandle the message as one of two types:\n")
	b.WriteString("1. \"finance\": extract action, amount, currency and description.\n")
	b.WriteString("   - Advice on a surplus: weigh the goals, prefer saving for short-term goals and staking for long-term growth,\n")
	b.WriteString("     set action \"" + model.ActionAdviseOnSurplus + "\" and give a split in suggestedSplit.\n")
	b.WriteString("   - A direct command (\"stake it all\", \"save what's left\") or a confirmation (\"yes, do it\"):\n")
	b.WriteString("     set action \"" + model.ActionExecuteSplit + "\". For a single-target command suggestedSplit MUST put 100 on that target.\n")
	b.WriteString("     For a confirmation leave suggestedSplit null.\n")
	b.WriteString("2. \"general\": small talk. Leave finance fields empty.\n\n")
	b.WriteString("Respond with STRICT JSON only, no code fences, in this shape:\n")
	b.WriteString(`{"type":"finance|general","action":"string","amount":number|null,"currency":"string|null",` +
		`"description":"string|null","suggestedSplit":{"savePercent":int,"stakePercent":int}|null,"reply":"string"}`)
	b.WriteString("\n\nMessage: \"" + input + "\"\n")
	return b.String()
}

func describeUser(uc UserContext) string {
	var lines []string
	if uc.Balance.Valid {
		lines = append(lines, fmt.Sprintf("- Wallet balance: %s %s.", uc.Balance.Decimal.StringFixed(4), uc.Currencies.Native))
	} else {
		lines = append(lines, "- Wallet balance is not available.")
	}
	if uc.NativePrice.Valid {
		lines = append(lines, fmt.Sprintf("- %s price: %s %s.", uc.Currencies.Native, uc.NativePrice.Decimal.StringFixed(2), uc.Currencies.Primary))
	}
	if uc.Budget != nil {
		lines = append(lines, fmt.Sprintf("- Active %s budget: %s %s.", uc.Budget.Period, uc.Budget.Amount, uc.Budget.Currency))
	} else {
		lines = append(lines, "- No budget set.")
	}
	if len(uc.Goals) == 0 {
		lines = append(lines, "- No goals set.")
	}
	for _, g := range uc.Goals {
		lines = append(lines, fmt.Sprintf("- Goal %s (%s): %s/%s %s.", g.Name, g.Type, g.CurrentAmount, g.TargetAmount, g.Currency))
	}
	spent := decimal.Zero
	n := 0
	for _, e := range uc.Recent {
		if e.Direction == model.DirectionExpense {
			spent = spent.Add(e.Amount)
			n++
		}
	}
	if n > 0 {
		lines = append(lines, fmt.Sprintf("- Recent spending: %s %s across %d transactions.", spent, uc.Currencies.Native, n))
	}
	return strings.Join(lines, "\n") + "\n"
}

// wireIntent is the JSON shape the model is asked to produce.
type wireIntent struct {
	Type           string              `json:"type"`
	Action         string              `json:"action"`
	Amount         decimal.NullDecimal `json:"amount"`
	Currency       *string             `json:"currency"`
	Description    *string             `json:"description"`
	SuggestedSplit *struct {
		SavePercent  int `json:"savePercent"`
		StakePercent int `json:"stakePercent"`
	} `json:"suggestedSplit"`
	Reply string `json:"reply"`
}

func parseIntent(raw string) (model.Intent, error) {
	var w wireIntent
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &w); err != nil {
		return model.Intent{}, err
	}
	out := model.Intent{Type: w.Type, Action: w.Action, Reply: w.Reply}
	if w.Amount.Valid {
		out.Amount = w.Amount.Decimal.String()
	}
	if w.Currency != nil {
		out.Currency = *w.Currency
	}
	if w.Description != nil {
		out.Description = *w.Description
	}
	if w.SuggestedSplit != nil {
		s := model.NewSaveStakeSplit(w.SuggestedSplit.SavePercent, w.SuggestedSplit.StakePercent)
		out.SuggestedSplit = &s
	}
	return out, nil
}

// cleanModelJSON strips Markdown fences and surrounding prose from a model answer.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the opening fence line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
