package domain

import (
	"context"
	"time"
)

// TenantStore is the master registry of tenants.
type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*Tenant, error)
	List(ctx context.Context, activeOnly bool) ([]Tenant, error)
}

// TemplateStore is the master registry of agent templates.
type TemplateStore interface {
	Create(ctx context.Context, t *AgentTemplate) error
	GetByID(ctx context.Context, id string) (*AgentTemplate, error)
	List(ctx context.Context, category string, activeOnly bool) ([]AgentTemplate, error)
	Update(ctx context.Context, t *AgentTemplate) error
	Deactivate(ctx context.Context, id string) error
}

// InstanceStore holds agent instances inside one tenant's namespace. Tenant
// isolation comes from the handle itself: a store resolved for tenant A can
// never observe tenant B's rows.
type InstanceStore interface {
	Create(ctx context.Context, a *AgentInstance) error
	GetByID(ctx context.Context, id string) (*AgentInstance, error)
	List(ctx context.Context, templateID string, activeOnly bool) ([]AgentInstance, error)
	Update(ctx context.Context, a *AgentInstance) error
	Deactivate(ctx context.Context, id string) error
}

type ExecutionFilter struct {
	InstanceID string
	TemplateID string
	Status     ExecutionStatus
	Limit      int
	Offset     int
}

// ExecutionFinish carries the terminal fields written exactly once when an
// execution leaves the running state.
type ExecutionFinish struct {
	Status       ExecutionStatus
	Output       map[string]any
	ErrorMessage string
	CompletedAt  time.Time
	DurationMS   int64
	TokensUsed   int
	ToolCalls    int
	CostEstimate float64
	ModelUsed    string
}

// ExecutionStore persists execution lifecycle records. Status writes are
// conditional: SetRunning succeeds only from pending/initializing and
// Finalize only from a non-terminal state; writes against a terminal row
// must be rejected so a terminal status never regresses.
type ExecutionStore interface {
	Create(ctx context.Context, e *Execution) error
	GetByID(ctx context.Context, id string) (*Execution, error)
	List(ctx context.Context, f ExecutionFilter) ([]Execution, error)
	Count(ctx context.Context, f ExecutionFilter) (int, error)
	SetRunning(ctx context.Context, id string, startedAt time.Time) error
	Finalize(ctx context.Context, id string, fin ExecutionFinish) error
}

type UsageFilter struct {
	InstanceID string
	Since      time.Time
}

// UsageStore is append-only.
type UsageStore interface {
	Create(ctx context.Context, u *UsageRecord) error
	ListByExecution(ctx context.Context, executionID string) ([]UsageRecord, error)
	Totals(ctx context.Context, f UsageFilter) (*UsageTotals, error)
}

type AuditFilter struct {
	EntityType string
	EntityID   string
	Action     string
	Limit      int
}

// AuditStore is append-only.
type AuditStore interface {
	Create(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// TenantStores bundles the stores backed by one tenant's isolated namespace.
type TenantStores struct {
	Schema     string
	Instances  InstanceStore
	Executions ExecutionStore
	Usage      UsageStore
	Audit      AuditStore
}

// StoreRouter resolves a tenant id to its isolated store handle, provisioning
// the namespace on first resolution and caching the handle for the process
// lifetime.
type StoreRouter interface {
	Resolve(ctx context.Context, tenantID string) (*TenantStores, error)
}

// AgentInvoker performs the actual model/tool invocation for one resolved
// configuration. Implementations should honor ctx cancellation where their
// transport allows it, but callers must not rely on it: a deadline-exceeded
// invocation is abandoned, not interrupted.
type AgentInvoker interface {
	Invoke(ctx context.Context, cfg *EffectiveConfig, input string) (string, error)
}

// UsageSink records usage best-effort: failures are logged internally and
// never returned, so a reporting failure can never block or revert an
// execution's terminal status.
type UsageSink interface {
	Record(ctx context.Context, u *UsageRecord)
}

// AuditSink writes audit entries with the same fire-and-log contract as
// UsageSink.
type AuditSink interface {
	Log(ctx context.Context, e *AuditEntry)
}
