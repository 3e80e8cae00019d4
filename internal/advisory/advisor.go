package advisory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/classifier"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/rates"
)

var (
	// ErrNothingToExecute means neither an explicit nor a stored split exists.
	ErrNothingToExecute = errors.New("nothing to execute")
	// ErrInvalidSplit rejects an explicit split that is not a single 100% target.
	ErrInvalidSplit = errors.New("invalid split")
	// ErrNotVisible means the transaction never appeared within the polling budget.
	ErrNotVisible = errors.New("transaction not yet visible")
	// ErrTxFailed means the transaction was found but failed on chain.
	ErrTxFailed = errors.New("transaction failed on chain")
	// ErrUnknownAction rejects a confirmation for an unsupported action.
	ErrUnknownAction = errors.New("unknown action")
)

// Suggestions offered alongside an advisory reply.
var AdvisorySuggestions = []string{"Yes, execute this split.", "No, I'll decide later."}

// Store is the persistence the advisor reads and writes.
type Store interface {
	UpsertEntry(ctx context.Context, e model.LedgerEntry) (model.LedgerEntry, bool, error)
	ListEntries(ctx context.Context, owner string, limit int) ([]model.LedgerEntry, error)
	ActiveBudget(ctx context.Context, owner string) (model.Budget, error)
	GetGoal(ctx context.Context, id string) (model.Goal, error)
	ListGoals(ctx context.Context, owner string) ([]model.Goal, error)
	AttributeToGoal(ctx context.Context, signature, goalID string, delta decimal.Decimal) (bool, error)
}

// Converter expresses fiat amounts in every tracked unit.
type Converter interface {
	FromFiat(ctx context.Context, amount decimal.Decimal, currency string) (rates.FiatValues, error)
	NativePrice(ctx context.Context) (decimal.Decimal, error)
}

// TxBuilder receives a resolved plan and prepares the on-chain transfers.
type TxBuilder interface {
	Build(ctx context.Context, plan Plan) error
}

// Config tunes confirmation polling.
type Config struct {
	ConfirmAttempts int
	ConfirmDelay    time.Duration
}

// Advisor arbitrates advise, execute and confirm requests per user.
type Advisor struct {
	Slots      *Slots
	Classifier classifier.IntentClassifier
	Builder    TxBuilder
	Reader     chain.Reader
	Store      Store
	Converter  Converter
	Currencies model.Currencies
	Config     Config

	// Balance, when set, supplies the owner's native balance for advice context.
	Balance func(owner string) (decimal.Decimal, bool)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAdvisor wires an advisor with default polling (10 attempts, 2s apart).
func NewAdvisor(cls classifier.IntentClassifier, reader chain.Reader, st Store, conv Converter, cur model.Currencies, cfg Config) *Advisor {
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = 10
	}
	if cfg.ConfirmDelay <= 0 {
		cfg.ConfirmDelay = 2 * time.Second
	}
	return &Advisor{
		Slots:      NewSlots(),
		Classifier: cls,
		Reader:     reader,
		Store:      st,
		Converter:  conv,
		Currencies: cur,
		Config:     cfg,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AdviseRequest asks for advice on a surplus.
type AdviseRequest struct {
	Owner    string          `json:"owner"`
	Surplus  decimal.Decimal `json:"surplus"`
	Currency string          `json:"currency"`
	Text     string          `json:"text,omitempty"`
}

// Advise consults the classifier and stores its proposed split as the
// owner's pending split. A classifier failure yields a plain reply without a
// split and leaves the slot untouched.
func (a *Advisor) Advise(ctx context.Context, req AdviseRequest) (model.Advisory, error) {
	if req.Owner == "" {
		return model.Advisory{}, errors.New("advise: missing owner")
	}
	text := req.Text
	if text == "" {
		text = fmt.Sprintf("I have a surplus of %s %s. Based on my goals and the market, please advise me on how to split and execute this.",
			req.Surplus.StringFixed(2), req.Currency)
	}

	adv := model.Advisory{
		Owner:       req.Owner,
		Surplus:     req.Surplus.StringFixed(2),
		Currency:    req.Currency,
		Suggestions: AdvisorySuggestions,
	}

	intent, err := a.Classifier.Classify(ctx, text, a.userContext(ctx, req.Owner))
	if err != nil {
		logger.Warn("advise %s: classifier failed: %v", req.Owner, err)
		adv.Reply = fmt.Sprintf("You finished the period with %s %s to spare. Tell me whether to save or stake it.",
			adv.Surplus, req.Currency)
		return adv, nil
	}
	adv.Reply = intent.Reply

	if intent.SuggestedSplit != nil {
		if err := intent.SuggestedSplit.Validate(); err != nil {
			logger.Warn("advise %s: discarding proposed split: %v", req.Owner, err)
		} else {
			split := *intent.SuggestedSplit
			adv.Split = &split
		}
	}
	if adv.Split != nil {
		a.Slots.Put(req.Owner, *adv.Split, a.now())
	} else {
		a.Slots.Clear(req.Owner, a.now())
	}
	return adv, nil
}

func (a *Advisor) userContext(ctx context.Context, owner string) classifier.UserContext {
	uc := classifier.UserContext{Owner: owner, Currencies: a.Currencies}
	if a.Balance != nil {
		if bal, ok := a.Balance(owner); ok {
			uc.Balance = decimal.NewNullDecimal(bal)
		}
	}
	if price, err := a.Converter.NativePrice(ctx); err == nil {
		uc.NativePrice = decimal.NewNullDecimal(price)
	}
	if b, err := a.Store.ActiveBudget(ctx, owner); err == nil {
		uc.Budget = &b
	}
	if goals, err := a.Store.ListGoals(ctx, owner); err == nil {
		uc.Goals = goals
	} else {
		logger.Warn("advise %s: list goals: %v", owner, err)
	}
	if recent, err := a.Store.ListEntries(ctx, owner, 20); err == nil {
		uc.Recent = recent
	}
	return uc
}

// ExecuteRequest asks to carry out a split.
type ExecuteRequest struct {
	Owner    string              `json:"owner"`
	Split    *model.Split        `json:"split,omitempty"`
	Amount   decimal.NullDecimal `json:"amount"`
	Currency string              `json:"currency,omitempty"`
}

// Leg is one target's share of an executed surplus.
type Leg struct {
	Target  string              `json:"target"`
	Percent int                 `json:"percent"`
	Amount  decimal.NullDecimal `json:"amount"`
}

// Plan is a resolved, validated split ready for the transaction builder.
type Plan struct {
	Owner    string      `json:"owner"`
	Split    model.Split `json:"split"`
	Source   string      `json:"source"`
	Currency string      `json:"currency,omitempty"`
	Legs     []Leg       `json:"legs"`
}

// Plan sources.
const (
	SourceExplicit = "explicit"
	SourceStored   = "stored"
)

// Execute resolves the split to carry out: an explicit split wins and must
// put 100% on one target; otherwise the owner's pending split is used. With
// neither it fails with ErrNothingToExecute. After a successful hand-off the
// owner's slot is cleared.
func (a *Advisor) Execute(ctx context.Context, req ExecuteRequest) (Plan, error) {
	plan := Plan{Owner: req.Owner, Currency: req.Currency}

	switch slot := a.Slots.Get(req.Owner); {
	case req.Split != nil:
		if err := req.Split.Validate(); err != nil {
			return plan, fmt.Errorf("%w: %v", ErrInvalidSplit, err)
		}
		if _, ok := req.Split.SingleTarget(); !ok {
			return plan, fmt.Errorf("%w: explicit split must put 100%% on one target", ErrInvalidSplit)
		}
		plan.Split = *req.Split
		plan.Source = SourceExplicit
	case slot.State == PendingSplit:
		plan.Split = slot.Split
		plan.Source = SourceStored
	default:
		return plan, fmt.Errorf("execute for %s: %w", req.Owner, ErrNothingToExecute)
	}

	for _, al := range plan.Split.Allocations {
		leg := Leg{Target: al.Target, Percent: al.Percent}
		if req.Amount.Valid {
			leg.Amount = decimal.NewNullDecimal(req.Amount.Decimal.Mul(decimal.New(int64(al.Percent), -2)))
		}
		plan.Legs = append(plan.Legs, leg)
	}

	if a.Builder != nil {
		if err := a.Builder.Build(ctx, plan); err != nil {
			return plan, fmt.Errorf("build transfers: %w", err)
		}
	}
	a.Slots.Clear(req.Owner, a.now())
	logger.Info("execute %s: %s split handed off", req.Owner, plan.Source)
	return plan, nil
}
