package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"WalletSentinel/internal/advisory"
	"WalletSentinel/internal/budget"
	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/fanout"
	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/monitor"
	"WalletSentinel/internal/store"
)

// Registrar starts wallet monitors and reports their health.
type Registrar interface {
	Register(address string) (*monitor.Monitor, bool)
	Health() []monitor.Status
}

// Advisor handles surplus advice, execution and confirmation.
type Advisor interface {
	Advise(ctx context.Context, req advisory.AdviseRequest) (model.Advisory, error)
	Execute(ctx context.Context, req advisory.ExecuteRequest) (advisory.Plan, error)
	Confirm(ctx context.Context, req advisory.ConfirmRequest) (advisory.ConfirmResult, error)
}

// Store is the persistence the gateway reads and writes directly.
type Store interface {
	budget.Setter
	ListEntries(ctx context.Context, owner string, limit int) ([]model.LedgerEntry, error)
	CreateGoal(ctx context.Context, g model.Goal) (model.Goal, error)
	ListGoals(ctx context.Context, owner string) ([]model.Goal, error)
}

// Reconciler runs a reconciliation tick on demand.
type Reconciler interface {
	Tick(ctx context.Context) (budget.TickReport, error)
}

// DefaultReplayLimit is how many recent ledger entries a new stream receives.
const DefaultReplayLimit = 20

// Server exposes the wallet stream and the action API over HTTP.
type Server struct {
	Registry   Registrar
	Hub        *fanout.Hub
	Store      Store
	Advisor    Advisor
	Reconciler Reconciler

	ReplayLimit     int
	ValidateAddress func(string) error
	Now             func() time.Time
}

// NewServer wires a server with default replay and address validation.
func NewServer(reg Registrar, hub *fanout.Hub, st Store, adv Advisor, rec Reconciler) *Server {
	return &Server{
		Registry:        reg,
		Hub:             hub,
		Store:           st,
		Advisor:         adv,
		Reconciler:      rec,
		ReplayLimit:     DefaultReplayLimit,
		ValidateAddress: chain.ValidateAddress,
		Now:             time.Now,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleStream)
	mux.HandleFunc("POST /api/wallets", s.handleRegister)
	mux.HandleFunc("GET /api/monitors", s.handleMonitors)
	mux.HandleFunc("GET /api/entries", s.handleEntries)
	mux.HandleFunc("POST /api/advise", s.handleAdvise)
	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("POST /api/confirm", s.handleConfirm)
	mux.HandleFunc("POST /api/reconcile", s.handleReconcile)
	mux.HandleFunc("POST /api/budget", s.handleBudget)
	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	logger.Info("gateway stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("write response: %v", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed: %v", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, advisory.ErrInvalidSplit),
		errors.Is(err, advisory.ErrUnknownAction),
		errors.Is(err, chain.ErrInvalidSignature),
		errors.Is(err, store.ErrInvalidBudget):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, advisory.ErrNotVisible):
		return http.StatusNotFound
	case errors.Is(err, advisory.ErrNothingToExecute):
		return http.StatusConflict
	case errors.Is(err, advisory.ErrTxFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}
