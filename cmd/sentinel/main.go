package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"WalletSentinel/internal/advisory"
	"WalletSentinel/internal/alert"
	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/config"
	"WalletSentinel/internal/gateway"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/scheduler"
)

func main() {
	config.LoadEnv()
	logger.Init()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}

	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Wallet ingestion and budget reconciliation service",
		Long: `sentinel watches wallets on chain, records their activity in a ledger,
closes budgets when their period ends and advises on any surplus.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", cfgPath, "Path to the YAML config file")

	rootCmd.AddCommand(serveCmd(&cfgPath), reconcileCmd(&cfgPath), confirmCmd(&cfgPath))

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("%v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd(cfgPath *string) *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run monitors, the reconcile schedule and the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Info("WalletSentinel starting...")
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			reg := a.registry(ctx)
			defer reg.StopAll()
			for _, w := range cfg.Monitor.Wallets {
				if err := chain.ValidateAddress(w); err != nil {
					logger.Warn("skipping configured wallet: %v", err)
					continue
				}
				reg.Register(w)
			}

			sched := scheduler.NewScheduler(ctx, a.reconciler, reg, a.alerter)
			if err := sched.RegisterAll(cfg.Schedule.ReconcileCron); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			if tg, ok := a.alerter.(*alert.Telegram); ok {
				go tg.StartPolling(ctx, sched.HandleCommand)
				logger.Info("telegram polling started")
				if len(cfg.Telegram.RelayWallets) > 0 {
					relay := &alert.Relay{Hub: a.hub, Alerter: tg, Wallets: cfg.Telegram.RelayWallets}
					go relay.Run(ctx)
				}
			}

			if runOnStart || os.Getenv("RUN_ON_START") == "true" {
				logger.Info("RUN_ON_START enabled, reconciling now")
				go func() {
					if _, err := sched.RunReconcileNow(); err != nil {
						logger.Error("reconcile on start: %v", err)
					}
				}()
			}

			srv := gateway.NewServer(reg, a.hub, a.store, a.advisor, a.reconciler)
			logger.Info("WalletSentinel is running. Press Ctrl+C to stop.")
			if err := srv.ListenAndServe(ctx, cfg.Server.ListenAddr); err != nil {
				return err
			}
			logger.Info("shutdown signal received, stopping...")
			return nil
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Run one reconciliation tick at startup")
	return cmd
}

func reconcileCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one budget reconciliation tick and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.reconciler.Tick(ctx)
			if err != nil {
				return err
			}
			if report.Processed > 0 || len(report.Errors) > 0 {
				if err := a.alerter.SendWithRetry(ctx, alert.FormatTickReport(report), 3); err != nil {
					logger.Error("send tick report: %v", err)
				}
			}
			return printJSON(cmd, report)
		},
	}
}

func confirmCmd(cfgPath *string) *cobra.Command {
	var (
		req    advisory.ConfirmRequest
		amount string
	)
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Verify a save or stake transaction and record it",
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			req.Amount = amt

			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.advisor.Confirm(ctx, req)
			switch {
			case errors.Is(err, advisory.ErrNotVisible):
				return fmt.Errorf("transaction %s is not visible yet, try again later: %w", req.Signature, err)
			case err != nil:
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&req.Owner, "owner", "", "Wallet that sent the transaction")
	cmd.Flags().StringVar(&req.Signature, "signature", "", "Transaction signature")
	cmd.Flags().StringVar(&req.Action, "action", "", "save or stake")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount moved, in --currency")
	cmd.Flags().StringVar(&req.Currency, "currency", "USD", "Currency of --amount")
	cmd.Flags().StringVar(&req.GoalID, "goal", "", "Goal to credit")
	for _, f := range []string{"owner", "signature", "action", "amount"} {
		cmd.MarkFlagRequired(f)
	}
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
