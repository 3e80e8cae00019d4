package monitor

import (
	"context"
	"sort"
	"sync"

	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/logger"
)

// Deps are shared by every monitor of a registry.
type Deps struct {
	Reader   chain.Reader
	Ingestor *Ingestor
	Hub      Publisher
	Reporter FailureReporter
	Config   Config
}

// Registry owns at most one running monitor per address.
type Registry struct {
	ctx  context.Context
	deps Deps

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewRegistry creates a registry whose monitors live until ctx is done or they are stopped.
func NewRegistry(ctx context.Context, deps Deps) *Registry {
	return &Registry{ctx: ctx, deps: deps, monitors: make(map[string]*Monitor)}
}

func alive(m *Monitor) bool {
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// Register starts a monitor for address unless a live one exists, in which
// case it returns that monitor and started=false. A failed or stopped monitor
// is replaced.
func (r *Registry) Register(address string) (*Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.monitors[address]; ok && alive(m) {
		return m, false
	}
	m := newMonitor(address, r.deps)
	r.monitors[address] = m
	m.Start(r.ctx)
	logger.Info("monitor registered for %s (%d active)", address, len(r.monitors))
	return m, true
}

// Get returns the monitor for address, if any.
func (r *Registry) Get(address string) (*Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[address]
	return m, ok
}

// Stop stops and forgets the monitor for address. It reports whether one existed.
func (r *Registry) Stop(address string) bool {
	r.mu.Lock()
	m, ok := r.monitors[address]
	delete(r.monitors, address)
	r.mu.Unlock()
	if !ok {
		return false
	}
	m.Stop()
	logger.Info("monitor for %s stopped", address)
	return true
}

// StopAll stops every monitor concurrently and waits for them.
func (r *Registry) StopAll() {
	r.mu.Lock()
	all := make([]*Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		all = append(all, m)
	}
	r.monitors = make(map[string]*Monitor)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, m := range all {
		wg.Add(1)
		go func(m *Monitor) {
			defer wg.Done()
			m.Stop()
		}(m)
	}
	wg.Wait()
	logger.Info("stopped %d monitors", len(all))
}

// Health returns the status of every known monitor, sorted by address.
func (r *Registry) Health() []Status {
	r.mu.Lock()
	all := make([]*Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		all = append(all, m)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(all))
	for _, m := range all {
		out = append(out, m.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
