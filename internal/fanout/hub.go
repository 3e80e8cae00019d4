package fanout

import (
	"sync"
	"sync/atomic"

	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Subscription is one subscriber of a channel key.
type Subscription struct {
	C <-chan model.Message

	key     string
	ch      chan model.Message
	kinds   map[model.Kind]bool
	dropped atomic.Int64
	closed  bool
}

// Key returns the channel key the subscription listens on.
func (s *Subscription) Key() string { return s.key }

// Dropped returns how many messages were discarded because the subscriber was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

func (s *Subscription) wants(k model.Kind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

// Hub routes messages to every subscriber of a channel key. Publish never
// blocks: a full subscriber loses the message.
type Hub struct {
	buffer int

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates a hub. A non-positive buffer uses DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a subscriber for key. With no kinds it receives every message.
func (h *Hub) Subscribe(key string, kinds ...model.Kind) *Subscription {
	ch := make(chan model.Message, h.buffer)
	sub := &Subscription{C: ch, key: key, ch: ch}
	if len(kinds) > 0 {
		sub.kinds = make(map[model.Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	h.mu.Lock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[key] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is harmless.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	if set, ok := h.subs[sub.key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.key)
		}
	}
	close(sub.ch)
}

// Publish delivers msg to the current subscribers of key and returns how many accepted it.
func (h *Hub) Publish(key string, msg model.Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[key] {
		if !sub.wants(msg.Kind) {
			continue
		}
		select {
		case sub.ch <- msg:
			delivered++
		default:
			n := sub.dropped.Add(1)
			logger.Debug("fanout %s: subscriber full, dropped %s (total %d)", key, msg.Kind, n)
		}
	}
	return delivered
}

// Subscribers returns the number of subscribers on key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}
