package domain

import (
	"encoding/json"
	"time"
)

type ExecutionStatus string

const (
	StatusPending      ExecutionStatus = "pending"
	StatusInitializing ExecutionStatus = "initializing"
	StatusRunning      ExecutionStatus = "running"
	StatusCompleted    ExecutionStatus = "completed"
	StatusFailed       ExecutionStatus = "failed"
	StatusTimeout      ExecutionStatus = "timeout"
	StatusCancelled    ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal statuses never
// change again.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// Cancellable reports whether a cancel request is permitted from this status.
func (s ExecutionStatus) Cancellable() bool {
	return s == StatusPending || s == StatusRunning
}

type ExecutionMode string

const (
	ModeInline    ExecutionMode = "inline"
	ModeScheduled ExecutionMode = "scheduled"
)

// ChunkResult is one window's outcome in a chunked execution. Exactly one of
// Response or Error is set.
type ChunkResult struct {
	Index    int    `json:"index"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Execution is one run of an instance against input. Created at submission
// with the frozen configuration snapshot; mutated only by the engine; never
// deleted (cancellation is a status).
type Execution struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	InstanceID     string          `json:"instance_id"`
	TemplateID     string          `json:"template_id"`
	Input          map[string]any  `json:"input"`
	Output         map[string]any  `json:"output,omitempty"`
	Status         ExecutionStatus `json:"status"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ConfigSnapshot json.RawMessage `json:"configuration_snapshot,omitempty"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	DurationMS     *int64          `json:"duration_ms,omitempty"`
	TokensUsed     int             `json:"tokens_used,omitempty"`
	ToolCalls      int             `json:"tool_calls,omitempty"`
	CostEstimate   float64         `json:"cost_estimate,omitempty"`
	ModelUsed      string          `json:"model_used,omitempty"`
	CreatedBy      string          `json:"created_by,omitempty"`
}
