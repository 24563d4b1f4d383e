package domain

import "time"

// UsageRecord is the append-only token/cost breakdown written once per
// completed execution.
type UsageRecord struct {
	ID           string        `json:"id"`
	ExecutionID  string        `json:"execution_id"`
	TenantID     string        `json:"tenant_id"`
	InstanceID   string        `json:"instance_id"`
	Provider     ModelProvider `json:"provider"`
	ModelID      string        `json:"model_id"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	TotalTokens  int           `json:"total_tokens"`
	CostEstimate float64       `json:"cost_estimate"`
	CreatedAt    time.Time     `json:"created_at"`
}

// UsageTotals aggregates usage records for reporting.
type UsageTotals struct {
	Executions   int     `json:"executions"`
	TotalTokens  int64   `json:"total_tokens"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"`
}
