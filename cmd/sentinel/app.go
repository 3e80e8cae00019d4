package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"WalletSentinel/internal/advisory"
	"WalletSentinel/internal/alert"
	"WalletSentinel/internal/budget"
	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/classifier"
	"WalletSentinel/internal/config"
	"WalletSentinel/internal/dedup"
	"WalletSentinel/internal/fanout"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/monitor"
	"WalletSentinel/internal/rates"
	"WalletSentinel/internal/store"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg        *config.Config
	store      *store.Store
	reader     chain.Reader
	converter  *rates.Converter
	categorize classifier.Categorizer
	intents    classifier.IntentClassifier
	hub        *fanout.Hub
	advisor    *advisory.Advisor
	reconciler *budget.Reconciler
	alerter    alert.Alerter
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	cur := cfg.Currencies()

	if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := store.Open(cfg.Database.SQLitePath, store.WithCurrencies(cur))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{
		cfg:    cfg,
		store:  st,
		reader: chain.NewSolanaReader(cfg.Chain.RPCURL, cfg.Chain.WSURL, cfg.Chain.RPCRPS),
		hub:    fanout.NewHub(cfg.Fanout.SubscriberBuffer),
	}

	// Rates
	native := rates.NewPythFetcher(cfg.Rates.PythURL, cfg.Rates.PythFeedID, cfg.Proxy)
	var fiat rates.Fetcher
	if cfg.Rates.ExchangeKey != "" {
		fiat = rates.NewExchangeRateFetcher(cfg.Rates.ExchangeURL, cfg.Rates.ExchangeKey, cur.Primary, cur.Secondary, cfg.Proxy)
	} else {
		logger.Warn("rates.exchange_key not set, %s values will be unavailable", cur.Secondary)
		fiat = &rates.StaticFetcher{Label: "unconfigured", Err: rates.ErrRateUnavailable}
	}
	logger.Info("rate sources: %s, %s", native.Name(), fiat.Name())
	a.converter = rates.NewConverter(rates.NewCache(cfg.Rates.TTL), native, fiat, cur)

	// Classifier
	if cfg.Classifier.APIKey != "" {
		g, err := classifier.NewGemini(ctx, cfg.Classifier.APIKey, cfg.Classifier.Model)
		if err != nil {
			st.Close()
			return nil, err
		}
		a.categorize, a.intents = g, g
		logger.Info("classifier: gemini (%s)", cfg.Classifier.Model)
	} else {
		s := &classifier.Static{}
		a.categorize, a.intents = s, s
		logger.Warn("classifier.api_key not set, using static classifier")
	}

	// Alerts
	if cfg.TelegramEnabled() {
		a.alerter = alert.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
	} else {
		a.alerter = alert.Nop{}
	}

	a.advisor = advisory.NewAdvisor(a.intents, a.reader, st, a.converter, cur, advisory.Config{
		ConfirmAttempts: cfg.Confirm.MaxAttempts,
		ConfirmDelay:    cfg.Confirm.Delay,
	})
	a.reconciler = budget.NewReconciler(st, a.advisor, a.hub)
	return a, nil
}

func (a *app) ingestor() *monitor.Ingestor {
	return &monitor.Ingestor{
		Reader:      a.reader,
		Guard:       dedup.NewGuard(a.cfg.Monitor.DedupWindow),
		Categorizer: classifier.NewBounded(a.categorize, a.cfg.Classifier.Timeout),
		Converter:   a.converter,
		Sink:        a.store,
		Hub:         a.hub,
		Currencies:  a.cfg.Currencies(),
	}
}

func (a *app) registry(ctx context.Context) *monitor.Registry {
	reg := monitor.NewRegistry(ctx, monitor.Deps{
		Reader:   a.reader,
		Ingestor: a.ingestor(),
		Hub:      a.hub,
		Reporter: a.alerter,
		Config: monitor.Config{
			ReconnectBaseDelay:   a.cfg.Monitor.ReconnectBaseDelay,
			MaxReconnectAttempts: a.cfg.Monitor.MaxReconnectAttempts,
			InboundBuffer:        a.cfg.Monitor.InboundBuffer,
		},
	})
	a.advisor.Balance = func(owner string) (decimal.Decimal, bool) {
		m, ok := reg.Get(owner)
		if !ok {
			return decimal.Zero, false
		}
		st := m.Status()
		return st.Balance, st.Health == monitor.HealthLive
	}
	return reg
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("close store: %v", err)
	}
}
