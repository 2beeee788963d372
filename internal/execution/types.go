package execution

import "time"

type ExecutionStatus string

type StepStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusSubmitted StepStatus = "submitted"
	StepStatusConfirmed StepStatus = "confirmed"
	StepStatusSigned    StepStatus = "signed"
	StepStatusPosted    StepStatus = "posted"
	StepStatusChecked   StepStatus = "checked"
	StepStatusFailed    StepStatus = "failed"
)

type StepRecord struct {
	Index     int        `json:"index"`
	Kind      StepKind   `json:"kind"`
	StepID    string     `json:"step_id,omitempty"`
	RequestID string     `json:"request_id"`
	Status    StepStatus `json:"status"`
	ChainID   int64      `json:"chain_id,omitempty"`
	Target    string     `json:"target,omitempty"`
	TxHash    string     `json:"tx_hash,omitempty"`
	PostURL   string     `json:"post_url,omitempty"`
	CheckURL  string     `json:"check_url,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Execution is the persisted record of one quote run.
type Execution struct {
	ExecutionID     string          `json:"execution_id"`
	RequestID       string          `json:"request_id"`
	Account         string          `json:"account"`
	ChainID         int64           `json:"chain_id"`
	Status          ExecutionStatus `json:"status"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
	Steps           []StepRecord    `json:"steps"`
	Error           string          `json:"error,omitempty"`
}

func NewExecution(executionID string, quote Quote, account string, chainID int64) Execution {
	now := time.Now().UTC().Format(time.RFC3339)
	exec := Execution{
		ExecutionID: executionID,
		RequestID:   quote.RequestID,
		Account:     account,
		ChainID:     chainID,
		Status:      ExecutionStatusRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
		Steps:       make([]StepRecord, 0, len(quote.Steps)),
	}
	for i, step := range quote.Steps {
		rec := StepRecord{
			Index:     i,
			Kind:      step.Kind(),
			RequestID: step.Correlation(),
			Status:    StepStatusPending,
		}
		switch s := step.(type) {
		case TransactionStep:
			rec.StepID = s.ID
			rec.ChainID = s.ChainID
			rec.Target = s.To.Hex()
		case SignatureStep:
			rec.StepID = s.ID
		}
		if c := step.StatusCheck(); c != nil {
			rec.CheckURL = c.Endpoint
		}
		exec.Steps = append(exec.Steps, rec)
	}
	return exec
}

func (e *Execution) Touch() {
	e.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}
