package model

import (
	"errors"
	"fmt"
)

// Disposition targets for a surplus.
const (
	TargetSave  = "save"
	TargetStake = "stake"
)

// Allocation is one target's share of a split, in whole percent.
type Allocation struct {
	Target  string `json:"target"`
	Percent int    `json:"percent"`
}

// Split distributes a surplus across targets. Percentages must sum to 100.
type Split struct {
	Allocations []Allocation `json:"allocations"`
}

// NewSaveStakeSplit builds the common two-target split.
func NewSaveStakeSplit(save, stake int) Split {
	return Split{Allocations: []Allocation{
		{Target: TargetSave, Percent: save},
		{Target: TargetStake, Percent: stake},
	}}
}

// Percent returns the share assigned to target, or 0.
func (s Split) Percent(target string) int {
	for _, a := range s.Allocations {
		if a.Target == target {
			return a.Percent
		}
	}
	return 0
}

// Validate checks percentages are in range, targets are unique and the total is 100.
func (s Split) Validate() error {
	if len(s.Allocations) == 0 {
		return errors.New("split has no allocations")
	}
	seen := make(map[string]bool, len(s.Allocations))
	total := 0
	for _, a := range s.Allocations {
		if a.Target == "" {
			return errors.New("split allocation has empty target")
		}
		if seen[a.Target] {
			return fmt.Errorf("split target %q repeated", a.Target)
		}
		seen[a.Target] = true
		if a.Percent < 0 || a.Percent > 100 {
			return fmt.Errorf("split target %q has percent %d out of range", a.Target, a.Percent)
		}
		total += a.Percent
	}
	if total != 100 {
		return fmt.Errorf("split percentages sum to %d, want 100", total)
	}
	return nil
}

// SingleTarget returns the target holding 100%, if any.
func (s Split) SingleTarget() (string, bool) {
	for _, a := range s.Allocations {
		if a.Percent == 100 {
			return a.Target, true
		}
	}
	return "", false
}

// Intent is the structured output of the external intent classifier.
type Intent struct {
	Type           string `json:"type"`
	Action         string `json:"action"`
	Amount         string `json:"amount,omitempty"`
	Currency       string `json:"currency,omitempty"`
	Description    string `json:"description,omitempty"`
	SuggestedSplit *Split `json:"suggested_split,omitempty"`
	Reply          string `json:"reply"`
}

// Intent actions the core reacts to.
const (
	ActionAdviseOnSurplus = "advise_on_surplus"
	ActionExecuteSplit    = "execute_split"
)
