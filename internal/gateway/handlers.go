package gateway

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"WalletSentinel/internal/advisory"
	"WalletSentinel/internal/budget"
	"WalletSentinel/internal/model"
)

type registerRequest struct {
	Address string `json:"address"`
}

type registerResponse struct {
	Address string `json:"address"`
	Started bool   `json:"started"`
	Health  string `json:"health"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ValidateAddress(req.Address); err != nil {
		writeError(w, badRequest("%v", err))
		return
	}
	m, started := s.Registry.Register(req.Address)
	status := http.StatusOK
	if started {
		status = http.StatusCreated
	}
	writeJSON(w, status, registerResponse{Address: req.Address, Started: started, Health: string(m.Status().Health)})
}

func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.Health())
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, badRequest("owner is required"))
		return
	}
	limit := s.ReplayLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, badRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}
	entries, err := s.Store.ListEntries(r.Context(), owner, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAdvise(w http.ResponseWriter, r *http.Request) {
	var req advisory.AdviseRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Owner == "" {
		writeError(w, badRequest("owner is required"))
		return
	}
	adv, err := s.Advisor.Advise(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adv)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req advisory.ExecuteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Owner == "" {
		writeError(w, badRequest("owner is required"))
		return
	}
	plan, err := s.Advisor.Execute(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req advisory.ConfirmRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Owner == "" || req.Signature == "" {
		writeError(w, badRequest("owner and signature are required"))
		return
	}
	if !req.Amount.IsPositive() || req.Currency == "" {
		writeError(w, badRequest("a positive amount and its currency are required"))
		return
	}
	res, err := s.Advisor.Confirm(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.Reconciler.Tick(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	var req budget.SetRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	b, err := budget.Set(r.Context(), s.Store, req, s.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type goalRequest struct {
	Owner        string          `json:"owner"`
	Name         string          `json:"name"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	Currency     string          `json:"currency"`
	Type         model.GoalType  `json:"type,omitempty"`
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Owner == "" || req.Name == "" || req.Currency == "" || !req.TargetAmount.IsPositive() {
		writeError(w, badRequest("owner, name, currency and a positive target_amount are required"))
		return
	}
	switch req.Type {
	case "", model.GoalSavings, model.GoalInvestment:
	default:
		writeError(w, badRequest("unknown goal type %q", req.Type))
		return
	}
	g, err := s.Store.CreateGoal(r.Context(), model.Goal{
		Owner:        req.Owner,
		Name:         req.Name,
		TargetAmount: req.TargetAmount,
		Currency:     req.Currency,
		Type:         req.Type,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, badRequest("owner is required"))
		return
	}
	goals, err := s.Store.ListGoals(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	if goals == nil {
		goals = []model.Goal{}
	}
	writeJSON(w, http.StatusOK, goals)
}
