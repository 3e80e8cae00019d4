package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/classifier"
	"WalletSentinel/internal/dedup"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/rates"
)

// LedgerSink stores ledger entries idempotently by signature.
type LedgerSink interface {
	UpsertEntry(ctx context.Context, e model.LedgerEntry) (model.LedgerEntry, bool, error)
}

// Converter values native amounts in fiat.
type Converter interface {
	Convert(ctx context.Context, native decimal.Decimal) rates.Conversion
}

// Publisher broadcasts messages on a wallet channel.
type Publisher interface {
	Publish(key string, msg model.Message) int
}

// Skip reasons reported in Result.
const (
	SkipDuplicate = "duplicate"
	SkipFailed    = "failed on chain"
	SkipNotFound  = "not resolvable"
	SkipNoEffect  = "no balance change"
)

// Result is the outcome of handling one event.
type Result struct {
	Entry        *model.LedgerEntry
	Created      bool
	Balance      uint64
	BalanceKnown bool
	Skipped      string
}

// Ingestor turns activity events into ledger entries.
type Ingestor struct {
	Reader      chain.Reader
	Guard       *dedup.Guard
	Categorizer classifier.Categorizer
	Converter   Converter
	Sink        LedgerSink
	Hub         Publisher
	Currencies  model.Currencies
	Now         func() time.Time
}

// Handle runs one event for owner through dedup, resolution, enrichment,
// persistence and fan-out. Enrichment failures degrade the entry instead of
// dropping it; only resolution and storage failures return an error.
func (in *Ingestor) Handle(ctx context.Context, owner string, ev chain.Event) (Result, error) {
	if ev.Signature == "" {
		return Result{Skipped: SkipNotFound}, nil
	}
	if !in.Guard.Claim(ev.Signature) {
		return Result{Skipped: SkipDuplicate}, nil
	}
	if ev.Failed {
		return Result{Skipped: SkipFailed}, nil
	}

	tx, err := in.Reader.GetTransaction(ctx, ev.Signature)
	if errors.Is(err, chain.ErrTxNotFound) {
		return Result{Skipped: SkipNotFound}, nil
	}
	if err != nil {
		return Result{Skipped: SkipNotFound}, fmt.Errorf("resolve %s: %w", ev.Signature, err)
	}
	if tx.Failed {
		return Result{Skipped: SkipFailed}, nil
	}

	res := Result{}
	res.Balance, res.BalanceKnown = tx.PostBalance(owner)

	delta, ok := tx.BalanceDelta(owner)
	if !ok || delta == 0 {
		res.Skipped = SkipNoEffect
		return res, nil
	}

	direction := model.DirectionIncome
	if delta < 0 {
		direction = model.DirectionExpense
		delta = -delta
	}
	amount := chain.ToNative(delta)

	category := model.CategoryIncome
	if direction == model.DirectionExpense {
		category, err = in.Categorizer.Categorize(ctx, classifier.CategorizeRequest{
			Token:        in.Currencies.Native,
			Amount:       amount,
			Direction:    direction,
			Memo:         tx.Memo,
			Counterparty: tx.Counterparty(owner),
		})
		if err != nil {
			logger.Warn("categorize %s: %v, using %q", ev.Signature, err, category)
		}
		if category == "" {
			category = model.CategoryOther
		}
	}

	conv := in.Converter.Convert(ctx, amount)

	createdAt := tx.BlockTime
	if createdAt.IsZero() {
		createdAt = in.now()
	}
	entry := model.LedgerEntry{
		Signature:   ev.Signature,
		Owner:       owner,
		Amount:      amount,
		Asset:       in.Currencies.Native,
		Primary:     conv.Primary,
		Secondary:   conv.Secondary,
		Category:    category,
		Direction:   direction,
		Description: describe(in.Currencies.Native, direction, tx.Memo),
		CreatedAt:   createdAt,
	}

	stored, created, err := in.Sink.UpsertEntry(ctx, entry)
	if err != nil {
		return res, fmt.Errorf("record %s: %w", ev.Signature, err)
	}
	res.Entry = &stored
	res.Created = created

	in.Hub.Publish(owner, model.Message{Kind: model.KindLedgerEntry, Payload: stored})
	return res, nil
}

func (in *Ingestor) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

func describe(asset string, d model.Direction, memo string) string {
	s := fmt.Sprintf("On-chain %s %s", asset, d)
	if memo != "" {
		s += ": " + memo
	}
	return s
}
