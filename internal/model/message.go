package model

// Kind identifies the payload carried by a fan-out message.
type Kind string

const (
	KindLedgerEntry   Kind = "new_tx"
	KindAdvisory      Kind = "surplus_detected"
	KindBudgetEnded   Kind = "budget_ended_prompt"
	KindMonitorStatus Kind = "monitor_status"
)

// Message is what subscribers of a wallet channel receive.
type Message struct {
	Kind    Kind        `json:"kind"`
	Payload interface{} `json:"payload"`
}

// Advisory is the outcome of a surplus consultation.
type Advisory struct {
	Owner       string   `json:"owner"`
	Surplus     string   `json:"surplus"`
	Currency    string   `json:"currency"`
	Reply       string   `json:"reply"`
	Suggestions []string `json:"suggestions"`
	Split       *Split   `json:"split,omitempty"`
}

// BudgetPrompt asks the owner whether to set a new budget.
type BudgetPrompt struct {
	Owner       string   `json:"owner"`
	BudgetID    string   `json:"budget_id"`
	Reply       string   `json:"reply"`
	Suggestions []string `json:"suggestions"`
}

// MonitorStatus reports a monitor health change.
type MonitorStatus struct {
	Address  string `json:"address"`
	Health   string `json:"health"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}
