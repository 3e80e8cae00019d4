package advisory

import (
	"sync"
	"time"

	"WalletSentinel/internal/model"
)

// SlotState tags what a user's suggestion slot holds.
type SlotState int

const (
	NoSplit SlotState = iota
	PendingSplit
)

func (s SlotState) String() string {
	if s == PendingSplit {
		return "pending"
	}
	return "none"
}

// Slot is a user's most recent advised split. Split is meaningful only when
// State is PendingSplit.
type Slot struct {
	State     SlotState
	Split     model.Split
	UpdatedAt time.Time
}

// Slots holds one Slot per user. Writes are last-writer-wins.
type Slots struct {
	mu    sync.Mutex
	slots map[string]Slot
}

// NewSlots returns an empty slot table.
func NewSlots() *Slots {
	return &Slots{slots: make(map[string]Slot)}
}

// Get returns the owner's slot; a missing slot reads as NoSplit.
func (s *Slots) Get(owner string) Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[owner]
}

// Put stores split as the owner's pending split.
func (s *Slots) Put(owner string, split model.Split, at time.Time) {
	s.mu.Lock()
	s.slots[owner] = Slot{State: PendingSplit, Split: split, UpdatedAt: at}
	s.mu.Unlock()
}

// Clear resets the owner's slot to NoSplit.
func (s *Slots) Clear(owner string, at time.Time) {
	s.mu.Lock()
	s.slots[owner] = Slot{State: NoSplit, UpdatedAt: at}
	s.mu.Unlock()
}
