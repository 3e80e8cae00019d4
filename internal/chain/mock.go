package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"WalletSentinel/internal/model"
)

// MockReader is an in-memory Reader for development and testing.
type MockReader struct {
	mu           sync.Mutex
	txs          map[string]*model.ChainTx
	balances     map[string]uint64
	subs         map[string][]*mockSubscription
	missesLeft   map[string]int
	txErrs       map[string]error
	subscribeErr error
	txCalls      map[string]int
	subscribeCnt map[string]int
}

// NewMockReader returns an empty MockReader.
func NewMockReader() *MockReader {
	return &MockReader{
		txs:          make(map[string]*model.ChainTx),
		balances:     make(map[string]uint64),
		subs:         make(map[string][]*mockSubscription),
		missesLeft:   make(map[string]int),
		txErrs:       make(map[string]error),
		txCalls:      make(map[string]int),
		subscribeCnt: make(map[string]int),
	}
}

// AddTx makes tx resolvable by its signature.
func (m *MockReader) AddTx(tx *model.ChainTx) {
	m.mu.Lock()
	m.txs[tx.Signature] = tx
	m.mu.Unlock()
}

// HideFor makes GetTransaction report not-found for signature for the next n calls.
func (m *MockReader) HideFor(signature string, n int) {
	m.mu.Lock()
	m.missesLeft[signature] = n
	m.mu.Unlock()
}

// FailTx makes GetTransaction return err for signature.
func (m *MockReader) FailTx(signature string, err error) {
	m.mu.Lock()
	m.txErrs[signature] = err
	m.mu.Unlock()
}

// SetBalance sets the balance reported for address.
func (m *MockReader) SetBalance(address string, units uint64) {
	m.mu.Lock()
	m.balances[address] = units
	m.mu.Unlock()
}

// FailSubscribe makes subsequent Subscribe calls fail with err (nil clears it).
func (m *MockReader) FailSubscribe(err error) {
	m.mu.Lock()
	m.subscribeErr = err
	m.mu.Unlock()
}

// TxCalls reports how many times signature was resolved.
func (m *MockReader) TxCalls(signature string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txCalls[signature]
}

// Subscribes reports how many subscriptions were opened for address.
func (m *MockReader) Subscribes(address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribeCnt[address]
}

// Push delivers signature to every open subscription on address.
func (m *MockReader) Push(address, signature string) {
	for _, s := range m.open(address) {
		s.events <- Event{Signature: signature, ReceivedAt: time.Now()}
	}
}

// Break fails every open subscription on address with err.
func (m *MockReader) Break(address string, err error) {
	for _, s := range m.open(address) {
		s.fail(err)
	}
}

func (m *MockReader) open(address string) []*mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	var live []*mockSubscription
	for _, s := range m.subs[address] {
		if !s.isClosed() {
			live = append(live, s)
		}
	}
	m.subs[address] = live
	return live
}

func (m *MockReader) GetTransaction(ctx context.Context, signature string) (*model.ChainTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls[signature]++
	if err := m.txErrs[signature]; err != nil {
		return nil, err
	}
	if n := m.missesLeft[signature]; n > 0 {
		m.missesLeft[signature] = n - 1
		return nil, fmt.Errorf("%s: %w", signature, ErrTxNotFound)
	}
	tx, ok := m.txs[signature]
	if !ok {
		return nil, fmt.Errorf("%s: %w", signature, ErrTxNotFound)
	}
	cp := *tx
	return &cp, nil
}

func (m *MockReader) GetBalance(ctx context.Context, address string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[address], nil
}

func (m *MockReader) Subscribe(ctx context.Context, address string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeCnt[address]++
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	s := &mockSubscription{events: make(chan Event, 16), done: make(chan struct{})}
	m.subs[address] = append(m.subs[address], s)
	return s, nil
}

type mockSubscription struct {
	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *mockSubscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.done)
}

func (s *mockSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *mockSubscription) Recv(ctx context.Context) (Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.err != nil {
			return Event{}, s.err
		}
		return Event{}, ErrSubscriptionClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (s *mockSubscription) Close() { s.fail(nil) }
