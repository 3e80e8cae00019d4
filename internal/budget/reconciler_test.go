package budget

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletSentinel/internal/advisory"
	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/classifier"
	"WalletSentinel/internal/fanout"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/rates"
	"WalletSentinel/internal/store"
)

const owner = "wallet1"

var (
	d0             = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	testCurrencies = model.Currencies{Native: "SOL", Primary: "USD", Secondary: "NGN"}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingAdvisor struct {
	mu   sync.Mutex
	reqs []advisory.AdviseRequest
	err  error
}

func (a *recordingAdvisor) Advise(ctx context.Context, req advisory.AdviseRequest) (model.Advisory, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reqs = append(a.reqs, req)
	if a.err != nil {
		return model.Advisory{}, a.err
	}
	return model.Advisory{Owner: req.Owner, Surplus: req.Surplus.StringFixed(2), Currency: req.Currency}, nil
}

func (a *recordingAdvisor) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reqs)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "budget.db"),
		store.WithCurrencies(testCurrencies),
		store.WithClock(func() time.Time { return d0 }))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func spend(t *testing.T, st *store.Store, sig, usd string, at time.Time) {
	t.Helper()
	_, _, err := st.UpsertEntry(context.Background(), model.LedgerEntry{
		Signature: sig,
		Owner:     owner,
		Amount:    dec("1"),
		Asset:     "SOL",
		Primary:   decimal.NewNullDecimal(dec(usd)),
		Category:  "Groceries",
		Direction: model.DirectionExpense,
		CreatedAt: at,
	})
	require.NoError(t, err)
}

func setBudget(t *testing.T, st *store.Store, amount string, recurring bool) model.Budget {
	t.Helper()
	start := d0
	b, err := Set(context.Background(), st, SetRequest{
		Owner:     owner,
		Amount:    dec(amount),
		Currency:  "USD",
		Recurring: recurring,
		Start:     &start,
	}, d0)
	require.NoError(t, err)
	return b
}

func drain(sub *fanout.Subscription) []model.Message {
	var out []model.Message
	for {
		select {
		case m := <-sub.C:
			out = append(out, m)
		default:
			return out
		}
	}
}

func newReconciler(st Store, adv Advisor, hub *fanout.Hub, now time.Time) *Reconciler {
	r := NewReconciler(st, adv, hub)
	r.Now = func() time.Time { return now }
	return r
}

func TestNextPeriod(t *testing.T) {
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		kind model.Period
		want time.Time
	}{
		{model.PeriodDaily, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{model.PeriodWeekly, time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)},
		{model.PeriodMonthly, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			start, got := NextPeriod(tt.kind, end)
			assert.Equal(t, end, start)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSet_DefaultsToWeekly(t *testing.T) {
	st := openStore(t)
	b, err := Set(context.Background(), st, SetRequest{Owner: owner, Amount: dec("500"), Currency: "USD"}, d0)
	require.NoError(t, err)
	assert.Equal(t, model.PeriodWeekly, b.Period)
	assert.Equal(t, d0, b.StartDate)
	assert.Equal(t, d0.AddDate(0, 0, 7), b.EndDate)
	assert.Equal(t, model.BudgetActive, b.Status)

	_, err = Set(context.Background(), st, SetRequest{Owner: owner, Amount: dec("1"), Currency: "USD", Period: "yearly"}, d0)
	assert.ErrorIs(t, err, store.ErrInvalidBudget)
}

func TestTick_SurplusAdvisedAndRenewed(t *testing.T) {
	st := openStore(t)
	b := setBudget(t, st, "500", true)
	spend(t, st, "s1", "70", d0.Add(time.Hour))
	spend(t, st, "s2", "50", d0.Add(48*time.Hour))
	spend(t, st, "late", "999", d0.AddDate(0, 0, 7))

	cls := &classifier.Static{}
	split := model.NewSaveStakeSplit(70, 30)
	cls.Intent = model.Intent{Action: model.ActionAdviseOnSurplus, SuggestedSplit: &split, Reply: "Save most of it."}
	conv := rates.NewConverter(rates.NewCache(time.Minute),
		&rates.StaticFetcher{Label: "sol-usd", Rate: dec("150")},
		&rates.StaticFetcher{Label: "usd-ngn", Rate: dec("1500")},
		testCurrencies)
	adv := advisory.NewAdvisor(cls, chain.NewMockReader(), st, conv, testCurrencies, advisory.Config{})

	hub := fanout.NewHub(16)
	sub := hub.Subscribe(owner)
	defer hub.Unsubscribe(sub)

	r := newReconciler(st, adv, hub, d0.AddDate(0, 0, 7).Add(time.Minute))
	report, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Outcomes, 1)
	out := report.Outcomes[0]
	assert.True(t, dec("120").Equal(out.Spent), out.Spent.String())
	assert.True(t, dec("380").Equal(out.Surplus), out.Surplus.String())
	assert.True(t, out.Advised)
	assert.True(t, out.Renewed)
	assert.False(t, out.Prompted)
	assert.Contains(t, cls.LastText(), "My weekly budget of 500 USD has ended. I have a surplus of 380.00 USD.")

	msgs := drain(sub)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.KindAdvisory, msgs[0].Kind)
	advisoryMsg, ok := msgs[0].Payload.(model.Advisory)
	require.True(t, ok)
	assert.Equal(t, "380.00", advisoryMsg.Surplus)
	assert.Equal(t, advisory.PendingSplit, adv.Slots.Get(owner).State)

	ended, err := st.GetBudget(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BudgetEnded, ended.Status)

	next, err := st.ActiveBudget(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, out.Successor, next.ID)
	assert.Equal(t, d0.AddDate(0, 0, 7), next.StartDate)
	assert.Equal(t, d0.AddDate(0, 0, 14), next.EndDate)
	assert.True(t, dec("500").Equal(next.Amount))
	assert.True(t, next.Recurring)
}

func TestTick_NoSurplusNoAdvice(t *testing.T) {
	st := openStore(t)
	setBudget(t, st, "100", true)
	spend(t, st, "s1", "100", d0.Add(time.Hour))
	spend(t, st, "s2", "25", d0.Add(2*time.Hour))

	adv := &recordingAdvisor{}
	hub := fanout.NewHub(16)
	sub := hub.Subscribe(owner)
	defer hub.Unsubscribe(sub)

	report, err := newReconciler(st, adv, hub, d0.AddDate(0, 0, 7)).Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.True(t, dec("-25").Equal(report.Outcomes[0].Surplus))
	assert.False(t, report.Outcomes[0].Advised)
	assert.Equal(t, 0, adv.calls())
	assert.Empty(t, drain(sub))
}

func TestTick_NonRecurringPrompts(t *testing.T) {
	st := openStore(t)
	b := setBudget(t, st, "200", false)

	adv := &recordingAdvisor{}
	hub := fanout.NewHub(16)
	sub := hub.Subscribe(owner)
	defer hub.Unsubscribe(sub)

	report, err := newReconciler(st, adv, hub, d0.AddDate(0, 0, 8)).Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.False(t, report.Outcomes[0].Renewed)
	assert.True(t, report.Outcomes[0].Prompted)
	assert.Equal(t, 1, adv.calls())

	msgs := drain(sub)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.KindAdvisory, msgs[0].Kind)
	assert.Equal(t, model.KindBudgetEnded, msgs[1].Kind)
	prompt := msgs[1].Payload.(model.BudgetPrompt)
	assert.Equal(t, b.ID, prompt.BudgetID)
	assert.Equal(t, "Your weekly budget of 200 USD has ended. Would you like to set a new one?", prompt.Reply)
	assert.Equal(t, []string{"Yes, set another weekly budget", "No thanks"}, prompt.Suggestions)

	_, err = st.ActiveBudget(context.Background(), owner)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTick_NotDueIsUntouched(t *testing.T) {
	st := openStore(t)
	b := setBudget(t, st, "200", true)
	adv := &recordingAdvisor{}

	report, err := newReconciler(st, adv, fanout.NewHub(4), d0.AddDate(0, 0, 6)).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)
	assert.Equal(t, 0, adv.calls())

	active, err := st.ActiveBudget(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)
}

func TestTick_OverlappingTicksProcessOnce(t *testing.T) {
	st := openStore(t)
	setBudget(t, st, "500", false)
	spend(t, st, "s1", "120", d0.Add(time.Hour))

	adv := &recordingAdvisor{}
	hub := fanout.NewHub(16)
	now := d0.AddDate(0, 0, 7)

	var wg sync.WaitGroup
	reports := make([]TickReport, 4)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rep, err := newReconciler(st, adv, hub, now).Tick(context.Background())
			assert.NoError(t, err)
			reports[i] = rep
		}(i)
	}
	wg.Wait()

	processed := 0
	for _, rep := range reports {
		processed += rep.Processed
	}
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, adv.calls())

	again, err := newReconciler(st, adv, hub, now).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Due)
	assert.Equal(t, 1, adv.calls())
}

func TestTick_CatchesUpElapsedPeriods(t *testing.T) {
	st := openStore(t)
	setBudget(t, st, "300", true)
	spend(t, st, "week2", "100", d0.AddDate(0, 0, 8))

	adv := &recordingAdvisor{}
	report, err := newReconciler(st, adv, fanout.NewHub(4), d0.AddDate(0, 0, 15)).Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.True(t, dec("300").Equal(report.Outcomes[0].Surplus))
	assert.True(t, dec("200").Equal(report.Outcomes[1].Surplus))

	active, err := st.ActiveBudget(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, d0.AddDate(0, 0, 14), active.StartDate)
	assert.Equal(t, d0.AddDate(0, 0, 21), active.EndDate)
}

func TestTick_AdviseFailureStillEndsBudget(t *testing.T) {
	st := openStore(t)
	b := setBudget(t, st, "50", false)
	adv := &recordingAdvisor{err: errors.New("model offline")}
	hub := fanout.NewHub(4)
	sub := hub.Subscribe(owner)
	defer hub.Unsubscribe(sub)

	report, err := newReconciler(st, adv, hub, d0.AddDate(0, 0, 7)).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "model offline")

	ended, err := st.GetBudget(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BudgetEnded, ended.Status)

	msgs := drain(sub)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.KindBudgetEnded, msgs[0].Kind)
}

func TestTick_LowerCaseCurrencyStillSumsExpenses(t *testing.T) {
	st := openStore(t)
	start := d0
	_, err := Set(context.Background(), st, SetRequest{
		Owner: owner, Amount: dec("500"), Currency: "usd", Recurring: true, Start: &start,
	}, d0)
	require.NoError(t, err)
	spend(t, st, "groceries", "120", d0.AddDate(0, 0, 1))

	report, err := newReconciler(st, &recordingAdvisor{}, fanout.NewHub(4), d0.AddDate(0, 0, 7)).Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "USD", report.Outcomes[0].Currency)
	assert.True(t, dec("120").Equal(report.Outcomes[0].Spent))
	assert.True(t, dec("380").Equal(report.Outcomes[0].Surplus))
}

func TestSet_RejectsUntrackedCurrency(t *testing.T) {
	st := openStore(t)
	_, err := Set(context.Background(), st, SetRequest{Owner: owner, Amount: dec("500"), Currency: "EUR"}, d0)
	assert.ErrorIs(t, err, store.ErrInvalidBudget)

	report, err := newReconciler(st, &recordingAdvisor{}, fanout.NewHub(4), d0.AddDate(0, 0, 7)).Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Due)
}

type failingSumStore struct {
	*store.Store
	failOwner string
	sums      map[string]int
}

func (f *failingSumStore) SumExpenses(ctx context.Context, o, currency string, from, to time.Time) (decimal.Decimal, error) {
	f.sums[o]++
	if o == f.failOwner {
		return decimal.Zero, errors.New("disk I/O error")
	}
	return f.Store.SumExpenses(ctx, o, currency, from, to)
}

func TestTick_FailingBudgetReportedOnceDuringCatchUp(t *testing.T) {
	st := openStore(t)
	setBudget(t, st, "100", false)
	start := d0
	_, err := Set(context.Background(), st, SetRequest{
		Owner: "wallet2", Amount: dec("200"), Currency: "USD", Recurring: true, Start: &start,
	}, d0)
	require.NoError(t, err)

	fs := &failingSumStore{Store: st, failOwner: owner, sums: make(map[string]int)}
	report, err := newReconciler(fs, &recordingAdvisor{}, fanout.NewHub(4), d0.AddDate(0, 0, 15)).Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed, "both elapsed wallet2 periods are closed")
	assert.Equal(t, 3, report.Due)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "disk I/O error")
	assert.Equal(t, 1, fs.sums[owner])

	active, err := st.ActiveBudget(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, model.BudgetActive, active.Status)
}
