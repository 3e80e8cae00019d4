package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

// ErrReconnectExhausted marks a monitor that gave up reconnecting.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// Health is the lifecycle state of a monitor.
type Health string

const (
	HealthStarting     Health = "starting"
	HealthLive         Health = "live"
	HealthReconnecting Health = "reconnecting"
	HealthFailed       Health = "failed"
	HealthStopped      Health = "stopped"
)

// FailureReporter is told when a monitor stops for good.
type FailureReporter interface {
	MonitorFailed(ctx context.Context, address string, attempts int, cause error)
}

// Config tunes monitors.
type Config struct {
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	InboundBuffer        int
	// A session that stayed up this long counts as recovered even without events.
	StableAfter time.Duration
	// Wait blocks for the reconnect backoff and reports false if ctx ended first.
	Wait func(ctx context.Context, d time.Duration) bool
}

func (c Config) withDefaults() Config {
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = 2 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = 64
	}
	if c.StableAfter <= 0 {
		c.StableAfter = time.Minute
	}
	if c.Wait == nil {
		c.Wait = sleep
	}
	return c
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Status is a point-in-time view of a monitor.
type Status struct {
	Address   string          `json:"address"`
	Health    Health          `json:"health"`
	Attempts  int             `json:"attempts"`
	Balance   decimal.Decimal `json:"balance"`
	LastError string          `json:"last_error,omitempty"`
}

// Monitor owns the live subscription for one address. A receiver goroutine
// pushes events onto the inbound channel; a processor goroutine handles them
// one at a time.
type Monitor struct {
	address  string
	reader   chain.Reader
	ingest   *Ingestor
	hub      Publisher
	reporter FailureReporter
	cfg      Config
	log      zerolog.Logger

	inbound chan chain.Event
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.Mutex
	health   Health
	attempts int
	balance  uint64
	lastErr  error
}

func newMonitor(address string, d Deps) *Monitor {
	cfg := d.Config.withDefaults()
	return &Monitor{
		address:  address,
		reader:   d.Reader,
		ingest:   d.Ingestor,
		hub:      d.Hub,
		reporter: d.Reporter,
		cfg:      cfg,
		log:      logger.With("monitor", "wallet", address),
		inbound:  make(chan chain.Event, cfg.InboundBuffer),
		done:     make(chan struct{}),
		health:   HealthStarting,
	}
}

// Address returns the monitored address.
func (m *Monitor) Address() string { return m.address }

// Start launches the monitor under ctx and returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.run(ctx)
}

// Stop cancels the subscription and waits for the monitor to wind down. An
// event already being processed is allowed to finish.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

// Done is closed once the monitor has stopped or failed.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Status returns the monitor's current state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		Address:  m.address,
		Health:   m.health,
		Attempts: m.attempts,
		Balance:  chain.ToNative(int64(m.balance)),
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

func (m *Monitor) setHealth(h Health) {
	m.mu.Lock()
	m.health = h
	m.mu.Unlock()
}

func (m *Monitor) setBalance(units uint64) {
	m.mu.Lock()
	m.balance = units
	m.mu.Unlock()
}

func (m *Monitor) resetAttempts() {
	m.mu.Lock()
	m.attempts = 0
	m.mu.Unlock()
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	pctx, stopProcessing := context.WithCancel(ctx)
	processed := make(chan struct{})
	go func() {
		defer close(processed)
		m.process(pctx)
	}()
	defer func() {
		stopProcessing()
		<-processed
	}()

	for {
		err := m.session(ctx)
		if ctx.Err() != nil {
			m.setHealth(HealthStopped)
			m.log.Info().Msg("monitor stopped")
			return
		}
		if !m.handleDisconnection(ctx, err) {
			return
		}
	}
}

// session syncs the balance, subscribes and forwards events until the feed breaks.
func (m *Monitor) session(ctx context.Context) error {
	if units, err := m.reader.GetBalance(ctx, m.address); err != nil {
		m.log.Warn().Err(err).Msg("balance sync failed")
	} else {
		m.setBalance(units)
	}

	sub, err := m.reader.Subscribe(ctx, m.address)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	m.setHealth(HealthLive)
	m.log.Info().Msg("listening for wallet activity")
	started := time.Now()
	recovered := false

	for {
		ev, err := sub.Recv(ctx)
		if err != nil {
			if !recovered && time.Since(started) >= m.cfg.StableAfter {
				m.resetAttempts()
			}
			return fmt.Errorf("recv: %w", err)
		}
		if !recovered {
			recovered = true
			m.resetAttempts()
		}
		select {
		case m.inbound <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleDisconnection waits base × attempt before the next session. It
// returns false once the attempt cap is exceeded or ctx is done.
func (m *Monitor) handleDisconnection(ctx context.Context, cause error) bool {
	m.mu.Lock()
	m.attempts++
	attempt := m.attempts
	m.lastErr = cause
	m.mu.Unlock()

	if attempt > m.cfg.MaxReconnectAttempts {
		m.fail(ctx, attempt-1, cause)
		return false
	}

	m.setHealth(HealthReconnecting)
	m.publishStatus()
	delay := m.cfg.ReconnectBaseDelay * time.Duration(attempt)
	m.log.Warn().Err(cause).Int("attempt", attempt).Dur("backoff", delay).Msg("subscription lost, reconnecting")

	if !m.cfg.Wait(ctx, delay) {
		m.setHealth(HealthStopped)
		return false
	}
	return true
}

func (m *Monitor) fail(ctx context.Context, attempts int, cause error) {
	err := fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, attempts, cause)
	m.mu.Lock()
	m.health = HealthFailed
	m.lastErr = err
	m.mu.Unlock()

	m.log.Error().Err(err).Msg("monitor failed")
	m.publishStatus()
	if m.reporter != nil {
		m.reporter.MonitorFailed(context.WithoutCancel(ctx), m.address, attempts, err)
	}
}

func (m *Monitor) publishStatus() {
	if m.hub == nil {
		return
	}
	st := m.Status()
	m.hub.Publish(m.address, model.Message{
		Kind: model.KindMonitorStatus,
		Payload: model.MonitorStatus{
			Address:  st.Address,
			Health:   string(st.Health),
			Attempts: st.Attempts,
			Error:    st.LastError,
		},
	})
}

// process handles inbound events sequentially. When ctx is done, events
// already queued are still handled before it returns.
func (m *Monitor) process(ctx context.Context) {
	work := context.WithoutCancel(ctx)
	for {
		select {
		case ev := <-m.inbound:
			m.handle(work, ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-m.inbound:
					m.handle(work, ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Monitor) handle(ctx context.Context, ev chain.Event) {
	res, err := m.ingest.Handle(ctx, m.address, ev)
	if err != nil {
		m.log.Error().Err(err).Str("signature", ev.Signature).Msg("event not recorded")
		return
	}
	if res.BalanceKnown {
		m.setBalance(res.Balance)
	}
	switch {
	case res.Entry != nil:
		m.log.Info().Str("signature", ev.Signature).
			Str("direction", string(res.Entry.Direction)).
			Str("amount", res.Entry.Amount.String()).
			Str("category", res.Entry.Category).
			Msg("ledger entry recorded")
	case res.Skipped != "":
		m.log.Debug().Str("signature", ev.Signature).Str("reason", res.Skipped).Msg("event skipped")
	}
}
