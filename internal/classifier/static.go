package classifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"WalletSentinel/internal/model"
)

// Static is a fixed-answer classifier used when no model is configured and in
// tests. It records how often each method was called.
type Static struct {
	Category  string
	Intent    model.Intent
	Err       error
	IntentErr error
	Delay     time.Duration

	mu          sync.Mutex
	categorized int
	classified  int
	lastText    string
	lastContext UserContext
}

func (s *Static) Categorize(ctx context.Context, req CategorizeRequest) (string, error) {
	s.mu.Lock()
	s.categorized++
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.Err != nil {
		return "", s.Err
	}
	if s.Category == "" {
		return model.CategoryOther, nil
	}
	return s.Category, nil
}

func (s *Static) Classify(ctx context.Context, text string, uc UserContext) (model.Intent, error) {
	s.mu.Lock()
	s.classified++
	s.lastText = text
	s.lastContext = uc
	s.mu.Unlock()

	if s.IntentErr != nil {
		return model.Intent{}, s.IntentErr
	}
	if s.Intent.Action != "" || s.Intent.Reply != "" {
		return s.Intent, nil
	}
	return model.Intent{
		Type:   "finance",
		Action: model.ActionAdviseOnSurplus,
		Reply:  fmt.Sprintf("You have money left over. Consider putting it toward your goals. (%s)", text),
	}, nil
}

// Categorized returns the number of Categorize calls.
func (s *Static) Categorized() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.categorized
}

// Classified returns the number of Classify calls.
func (s *Static) Classified() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classified
}

// LastText returns the text of the most recent Classify call.
func (s *Static) LastText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastText
}

// LastContext returns the user context of the most recent Classify call.
func (s *Static) LastContext() UserContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastContext
}
