package alert

import (
	"context"
	"sync"

	"WalletSentinel/internal/fanout"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

// Relay mirrors advisory and budget prompts of selected wallets to an alerter.
type Relay struct {
	Hub     *fanout.Hub
	Alerter Alerter
	Wallets []string
}

// Run subscribes to every wallet and forwards messages until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range r.Wallets {
		sub := r.Hub.Subscribe(w, model.KindAdvisory, model.KindBudgetEnded)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.forward(ctx, sub)
		}()
	}
	logger.Info("telegram relay watching %d wallets", len(r.Wallets))
	wg.Wait()
}

func (r *Relay) forward(ctx context.Context, sub *fanout.Subscription) {
	defer r.Hub.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			text := renderMessage(msg)
			if text == "" {
				continue
			}
			if err := r.Alerter.SendWithRetry(ctx, text, 2); err != nil {
				logger.Error("relay %s for %s: %v", msg.Kind, sub.Key(), err)
			}
		}
	}
}

func renderMessage(msg model.Message) string {
	switch p := msg.Payload.(type) {
	case model.Advisory:
		return FormatAdvisory(p)
	case model.BudgetPrompt:
		return FormatBudgetPrompt(p)
	}
	return ""
}
