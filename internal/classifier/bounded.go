package classifier

import (
	"context"
	"fmt"
	"time"

	"WalletSentinel/internal/model"
)

// DefaultCategorizeTimeout bounds one categorization.
const DefaultCategorizeTimeout = 5 * time.Second

// Bounded wraps a Categorizer with a deadline. On timeout or failure it
// returns Default together with the error, so callers can record the movement
// and log the cause.
type Bounded struct {
	Inner   Categorizer
	Timeout time.Duration
	Default string
}

// NewBounded wraps inner. A non-positive timeout uses DefaultCategorizeTimeout.
func NewBounded(inner Categorizer, timeout time.Duration) *Bounded {
	if timeout <= 0 {
		timeout = DefaultCategorizeTimeout
	}
	return &Bounded{Inner: inner, Timeout: timeout, Default: model.CategoryOther}
}

type categorizeResult struct {
	label string
	err   error
}

func (b *Bounded) Categorize(ctx context.Context, req CategorizeRequest) (string, error) {
	if b.Inner == nil {
		return b.Default, nil
	}
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	done := make(chan categorizeResult, 1)
	go func() {
		label, err := b.Inner.Categorize(ctx, req)
		done <- categorizeResult{label, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return b.Default, fmt.Errorf("categorize: %w", r.err)
		}
		if r.label == "" {
			return b.Default, nil
		}
		return r.label, nil
	case <-ctx.Done():
		return b.Default, fmt.Errorf("categorize after %s: %w", b.Timeout, ErrTimeout)
	}
}
