package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"WalletSentinel/internal/alert"
	"WalletSentinel/internal/budget"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/monitor"
)

// Reconciler runs one budget reconciliation tick.
type Reconciler interface {
	Tick(ctx context.Context) (budget.TickReport, error)
}

// HealthSource reports monitor status.
type HealthSource interface {
	Health() []monitor.Status
}

// Scheduler manages the cron tasks and operator commands.
type Scheduler struct {
	Cron       *cron.Cron
	Reconciler Reconciler
	Monitors   HealthSource
	Alerter    alert.Alerter
	Ctx        context.Context
}

// NewScheduler creates a Scheduler. A tick still running when the next one is
// due causes that run to be skipped.
func NewScheduler(ctx context.Context, rec Reconciler, mon HealthSource, al alert.Alerter) *Scheduler {
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		Reconciler: rec,
		Monitors:   mon,
		Alerter:    al,
		Ctx:        ctx,
	}
}

// RegisterAll registers the reconciliation task.
func (s *Scheduler) RegisterAll(reconcileCron string) error {
	if _, err := s.Cron.AddFunc(reconcileCron, s.reconcileTask); err != nil {
		return fmt.Errorf("register reconcile task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	logger.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for a running task.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	logger.Info("scheduler stopped")
}

// RunReconcileNow executes one tick immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunReconcileNow() (budget.TickReport, error) {
	return s.Reconciler.Tick(s.Ctx)
}

func (s *Scheduler) reconcileTask() {
	logger.Info("running reconcile task")
	report, err := s.RunReconcileNow()
	if err != nil {
		logger.Error("reconcile tick: %v", err)
		s.trySend(fmt.Sprintf("❌ Budget reconciliation failed: %v", err))
		return
	}
	if report.Processed == 0 && len(report.Errors) == 0 {
		return
	}
	s.trySend(alert.FormatTickReport(report))
}

// HandleCommand processes an operator command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "/monitors", "monitors":
		return alert.FormatMonitors(s.Monitors.Health())
	case "/reconcile", "reconcile":
		report, err := s.Reconciler.Tick(ctx)
		if err != nil {
			return fmt.Sprintf("❌ Budget reconciliation failed: %v", err)
		}
		return alert.FormatTickReport(report)
	default:
		return "Available commands:\n• /monitors\n• /reconcile"
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Alerter.SendWithRetry(s.Ctx, text, 3); err != nil {
		logger.Error("send notification: %v", err)
	}
}
