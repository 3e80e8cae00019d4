package monitor

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

	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/classifier"
	"WalletSentinel/internal/dedup"
	"WalletSentinel/internal/fanout"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/rates"
	"WalletSentinel/internal/store"
)

const wallet = "wallet1"

var testCurrencies = model.Currencies{Native: "SOL", Primary: "USD", Secondary: "NGN"}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingReporter struct {
	mu    sync.Mutex
	calls []int
	err   error
}

func (r *recordingReporter) MonitorFailed(ctx context.Context, address string, attempts int, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, attempts)
	r.err = cause
}

func (r *recordingReporter) Calls() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.calls...)
}

type harness struct {
	reader     *chain.MockReader
	store      *store.Store
	hub        *fanout.Hub
	classifier *classifier.Static
	clock      *fakeClock
	ingestor   *Ingestor
}

func newHarness(t *testing.T, fiat rates.Fetcher) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"), store.WithCurrencies(testCurrencies))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if fiat == nil {
		fiat = &rates.StaticFetcher{Label: "usd-ngn", Rate: decimal.NewFromInt(1500)}
	}
	clock := &fakeClock{now: time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)}
	cls := &classifier.Static{Category: "Groceries"}
	h := &harness{
		reader:     chain.NewMockReader(),
		store:      st,
		hub:        fanout.NewHub(16),
		classifier: cls,
		clock:      clock,
	}
	h.ingestor = &Ingestor{
		Reader:      h.reader,
		Guard:       dedup.NewGuard(30*time.Second, dedup.WithClock(clock.Now)),
		Categorizer: classifier.NewBounded(cls, time.Second),
		Converter: rates.NewConverter(rates.NewCache(time.Minute),
			&rates.StaticFetcher{Label: "sol-usd", Rate: decimal.NewFromInt(100)}, fiat, testCurrencies),
		Sink:       st,
		Hub:        h.hub,
		Currencies: testCurrencies,
		Now:        clock.Now,
	}
	return h
}

func spend(sig string) *model.ChainTx {
	return &model.ChainTx{
		Signature:    sig,
		Slot:         100,
		BlockTime:    time.Date(2025, 3, 3, 11, 59, 0, 0, time.UTC),
		Fee:          5000,
		AccountKeys:  []string{wallet, "shop"},
		PreBalances:  []uint64{2_000_000_000, 0},
		PostBalances: []uint64{1_499_995_000, 500_000_000},
	}
}

func receive(t *testing.T, h *harness, sig string) *model.ChainTx {
	tx := &model.ChainTx{
		Signature:    sig,
		AccountKeys:  []string{"payer", wallet},
		PreBalances:  []uint64{3_000_000_000, 1_000_000_000},
		PostBalances: []uint64{1_999_995_000, 2_000_000_000},
	}
	h.reader.AddTx(tx)
	return tx
}

func TestHandle_DuplicateWithinWindowRecordedOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.AddTx(spend("abc"))
	ctx := context.Background()

	res, err := h.ingestor.Handle(ctx, wallet, chain.Event{Signature: "abc"})
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	assert.True(t, res.Created)

	h.clock.Advance(2 * time.Second)
	res, err = h.ingestor.Handle(ctx, wallet, chain.Event{Signature: "abc"})
	require.NoError(t, err)
	assert.Equal(t, SkipDuplicate, res.Skipped)

	entries, err := h.store.ListEntries(ctx, wallet, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, h.classifier.Categorized())
	assert.Equal(t, 1, h.reader.TxCalls("abc"))

	e := entries[0]
	assert.Equal(t, model.DirectionExpense, e.Direction)
	assert.True(t, e.Amount.Equal(decimal.RequireFromString("0.500005")), "got %s", e.Amount)
	assert.Equal(t, "Groceries", e.Category)
	assert.True(t, e.Primary.Decimal.Equal(decimal.RequireFromString("50.0005")))
	assert.True(t, e.Secondary.Decimal.Equal(decimal.RequireFromString("75000.75")))
	assert.True(t, e.CreatedAt.Equal(spend("abc").BlockTime))
}

func TestHandle_AfterWindowUpsertsSameEntry(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.AddTx(spend("abc"))
	ctx := context.Background()

	_, err := h.ingestor.Handle(ctx, wallet, chain.Event{Signature: "abc"})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	res, err := h.ingestor.Handle(ctx, wallet, chain.Event{Signature: "abc"})
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	assert.False(t, res.Created)

	entries, err := h.store.ListEntries(ctx, wallet, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHandle_IncomeSkipsCategorizer(t *testing.T) {
	h := newHarness(t, nil)
	receive(t, h, "in1")

	res, err := h.ingestor.Handle(context.Background(), wallet, chain.Event{Signature: "in1"})
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	assert.Equal(t, model.DirectionIncome, res.Entry.Direction)
	assert.Equal(t, model.CategoryIncome, res.Entry.Category)
	assert.True(t, res.Entry.Amount.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 0, h.classifier.Categorized())
	assert.Equal(t, uint64(2_000_000_000), res.Balance)
}

func TestHandle_Discards(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	failed := spend("failed")
	failed.Failed = true
	h.reader.AddTx(failed)

	noop := spend("noop")
	noop.PostBalances = noop.PreBalances
	h.reader.AddTx(noop)

	other := spend("other")
	other.AccountKeys = []string{"x", "y"}
	h.reader.AddTx(other)

	tests := []struct {
		ev   chain.Event
		want string
	}{
		{chain.Event{Signature: "failed"}, SkipFailed},
		{chain.Event{Signature: "logfail", Failed: true}, SkipFailed},
		{chain.Event{Signature: "noop"}, SkipNoEffect},
		{chain.Event{Signature: "other"}, SkipNoEffect},
		{chain.Event{Signature: "missing"}, SkipNotFound},
		{chain.Event{}, SkipNotFound},
	}
	for _, tt := range tests {
		res, err := h.ingestor.Handle(ctx, wallet, tt.ev)
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Skipped, "signature %q", tt.ev.Signature)
		assert.Nil(t, res.Entry)
	}

	entries, err := h.store.ListEntries(ctx, wallet, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandle_DegradesWhenEnrichmentFails(t *testing.T) {
	h := newHarness(t, &rates.StaticFetcher{Label: "usd-ngn", Err: errors.New("rate api down")})
	h.classifier.Err = errors.New("model overloaded")
	h.reader.AddTx(spend("abc"))

	res, err := h.ingestor.Handle(context.Background(), wallet, chain.Event{Signature: "abc"})
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	assert.Equal(t, model.CategoryOther, res.Entry.Category)
	assert.True(t, res.Entry.Primary.Valid)
	assert.False(t, res.Entry.Secondary.Valid)
}

func TestHandle_ExistingConfirmedEntryKeepsDisposition(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.reader.AddTx(spend("abc"))

	_, _, err := h.store.UpsertEntry(ctx, model.LedgerEntry{
		Signature: "abc", Owner: wallet, Amount: decimal.RequireFromString("0.5"), Asset: "SOL",
		Category: model.CategorySavings, Direction: model.DirectionExpense, Description: "Saved surplus (transfer)",
	})
	require.NoError(t, err)

	res, err := h.ingestor.Handle(ctx, wallet, chain.Event{Signature: "abc"})
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	assert.False(t, res.Created)
	assert.Equal(t, model.CategorySavings, res.Entry.Category)
}

func TestHandle_PublishesEntry(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.hub.Subscribe(wallet, model.KindLedgerEntry)
	h.reader.AddTx(spend("abc"))

	_, err := h.ingestor.Handle(context.Background(), wallet, chain.Event{Signature: "abc"})
	require.NoError(t, err)

	select {
	case m := <-sub.C:
		entry, ok := m.Payload.(model.LedgerEntry)
		require.True(t, ok)
		assert.Equal(t, "abc", entry.Signature)
	default:
		t.Fatal("no new_tx published")
	}
}

func newRegistry(t *testing.T, h *harness, reporter FailureReporter, cfg Config) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRegistry(ctx, Deps{Reader: h.reader, Ingestor: h.ingestor, Hub: h.hub, Reporter: reporter, Config: cfg})
	t.Cleanup(func() {
		r.StopAll()
		cancel()
	})
	return r
}

func TestRegistry_RegisterOrGet(t *testing.T) {
	h := newHarness(t, nil)
	r := newRegistry(t, h, nil, Config{})

	m1, started := r.Register(wallet)
	assert.True(t, started)
	m2, started := r.Register(wallet)
	assert.False(t, started)
	assert.Same(t, m1, m2)

	require.Eventually(t, func() bool { return h.reader.Subscribes(wallet) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, r.Health(), 1)

	assert.True(t, r.Stop(wallet))
	assert.False(t, r.Stop(wallet))
	assert.Empty(t, r.Health())
}

func TestMonitor_DeliveredTwiceRecordsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.AddTx(spend("abc"))
	h.reader.SetBalance(wallet, 2_000_000_000)
	sub := h.hub.Subscribe(wallet, model.KindLedgerEntry)
	r := newRegistry(t, h, nil, Config{})

	m, _ := r.Register(wallet)
	require.Eventually(t, func() bool { return m.Status().Health == HealthLive }, time.Second, 5*time.Millisecond)
	assert.True(t, m.Status().Balance.Equal(decimal.NewFromInt(2)))

	h.reader.Push(wallet, "abc")
	h.clock.Advance(2 * time.Second)
	h.reader.Push(wallet, "abc")

	select {
	case <-sub.C:
	case <-time.After(2 * time.Second):
		t.Fatal("entry not published")
	}
	require.Eventually(t, func() bool { return h.reader.TxCalls("abc") >= 1 }, time.Second, 5*time.Millisecond)
	r.Stop(wallet)

	entries, err := h.store.ListEntries(context.Background(), wallet, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 1, h.classifier.Categorized())
	assert.Empty(t, sub.C, "second delivery must not publish")
	assert.True(t, m.Status().Balance.Equal(decimal.RequireFromString("1.499995")))
}

func TestMonitor_ReconnectsAfterBreak(t *testing.T) {
	h := newHarness(t, nil)
	r := newRegistry(t, h, nil, Config{ReconnectBaseDelay: time.Millisecond, MaxReconnectAttempts: 3})

	m, _ := r.Register(wallet)
	require.Eventually(t, func() bool { return m.Status().Health == HealthLive }, time.Second, 5*time.Millisecond)

	h.reader.Break(wallet, errors.New("socket reset"))
	require.Eventually(t, func() bool {
		return h.reader.Subscribes(wallet) == 2 && m.Status().Health == HealthLive
	}, time.Second, 5*time.Millisecond)

	h.reader.AddTx(spend("after"))
	h.reader.Push(wallet, "after")
	require.Eventually(t, func() bool {
		_, err := h.store.GetEntry(context.Background(), "after")
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

type recordingWait struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (w *recordingWait) wait(ctx context.Context, d time.Duration) bool {
	w.mu.Lock()
	w.delays = append(w.delays, d)
	w.mu.Unlock()
	return ctx.Err() == nil
}

func (w *recordingWait) Delays() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.delays...)
}

func TestMonitor_BackoffGrowsLinearlyWithAttempt(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.FailSubscribe(errors.New("connection refused"))
	w := &recordingWait{}
	base := 250 * time.Millisecond
	r := newRegistry(t, h, nil, Config{ReconnectBaseDelay: base, MaxReconnectAttempts: 4, Wait: w.wait})

	m, _ := r.Register(wallet)
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not give up")
	}

	assert.Equal(t, []time.Duration{base, 2 * base, 3 * base, 4 * base}, w.Delays())
	assert.Equal(t, 5, h.reader.Subscribes(wallet))
	assert.Equal(t, HealthFailed, m.Status().Health)
}

func TestMonitor_ReconnectCapIsTerminal(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.FailSubscribe(errors.New("connection refused"))
	status := h.hub.Subscribe(wallet, model.KindMonitorStatus)
	reporter := &recordingReporter{}
	r := newRegistry(t, h, reporter, Config{ReconnectBaseDelay: time.Millisecond, MaxReconnectAttempts: 3})

	m, _ := r.Register(wallet)
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not give up")
	}

	assert.Equal(t, 4, h.reader.Subscribes(wallet))
	assert.Equal(t, []int{3}, reporter.Calls())
	assert.ErrorIs(t, reporter.err, ErrReconnectExhausted)

	st := m.Status()
	assert.Equal(t, HealthFailed, st.Health)
	assert.Contains(t, st.LastError, "connection refused")

	var last model.MonitorStatus
	for len(status.C) > 0 {
		last = (<-status.C).Payload.(model.MonitorStatus)
	}
	assert.Equal(t, string(HealthFailed), last.Health)

	// A failed monitor is replaced on the next registration.
	h.reader.FailSubscribe(nil)
	m2, started := r.Register(wallet)
	assert.True(t, started)
	assert.NotSame(t, m, m2)
}
