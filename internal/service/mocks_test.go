package service

import (
	"context"
	"sync"
	"time"

	"github.com/kordant/loom/internal/domain"
	"github.com/kordant/loom/internal/store"
)

// In-memory store implementations shared by the service tests. The execution
// store mirrors the SQL conditional-update guard so engine tests exercise the
// same terminal-status discipline as production.

type memTemplateStore struct {
	mu        sync.Mutex
	templates map[string]*domain.AgentTemplate
}

func newMemTemplateStore() *memTemplateStore {
	return &memTemplateStore{templates: make(map[string]*domain.AgentTemplate)}
}

func (m *memTemplateStore) Create(ctx context.Context, t *domain.AgentTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[t.ID]; ok {
		return store.ErrConflict
	}
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *memTemplateStore) GetByID(ctx context.Context, id string) (*domain.AgentTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplateStore) List(ctx context.Context, category string, activeOnly bool) ([]domain.AgentTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AgentTemplate
	for _, t := range m.templates {
		if activeOnly && !t.IsActive {
			continue
		}
		if category != "" && t.Category != category {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m *memTemplateStore) Update(ctx context.Context, t *domain.AgentTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[t.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *memTemplateStore) Deactivate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return store.ErrNotFound
	}
	t.IsActive = false
	return nil
}

type memInstanceStore struct {
	mu        sync.Mutex
	instances map[string]*domain.AgentInstance
}

func newMemInstanceStore() *memInstanceStore {
	return &memInstanceStore{instances: make(map[string]*domain.AgentInstance)}
}

func (m *memInstanceStore) Create(ctx context.Context, a *domain.AgentInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[a.ID]; ok {
		return store.ErrConflict
	}
	cp := *a
	m.instances[a.ID] = &cp
	return nil
}

func (m *memInstanceStore) GetByID(ctx context.Context, id string) (*domain.AgentInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.instances[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memInstanceStore) List(ctx context.Context, templateID string, activeOnly bool) ([]domain.AgentInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AgentInstance
	for _, a := range m.instances {
		if activeOnly && !a.IsActive {
			continue
		}
		if templateID != "" && a.TemplateID != templateID {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memInstanceStore) Update(ctx context.Context, a *domain.AgentInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[a.ID]; !ok {
		return store.ErrNotFound
	}
	a.UpdatedAt = time.Now()
	cp := *a
	m.instances[a.ID] = &cp
	return nil
}

func (m *memInstanceStore) Deactivate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.instances[id]
	if !ok {
		return store.ErrNotFound
	}
	a.IsActive = false
	return nil
}

type memExecutionStore struct {
	mu         sync.Mutex
	executions map[string]*domain.Execution
}

func newMemExecutionStore() *memExecutionStore {
	return &memExecutionStore{executions: make(map[string]*domain.Execution)}
}

func (m *memExecutionStore) Create(ctx context.Context, e *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[e.ID]; ok {
		return store.ErrConflict
	}
	cp := *e
	m.executions[e.ID] = &cp
	return nil
}

func (m *memExecutionStore) GetByID(ctx context.Context, id string) (*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memExecutionStore) List(ctx context.Context, f domain.ExecutionFilter) ([]domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Execution
	for _, e := range m.executions {
		if f.InstanceID != "" && e.InstanceID != f.InstanceID {
			continue
		}
		if f.TemplateID != "" && e.TemplateID != f.TemplateID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *memExecutionStore) Count(ctx context.Context, f domain.ExecutionFilter) (int, error) {
	list, err := m.List(ctx, f)
	return len(list), err
}

func (m *memExecutionStore) SetRunning(ctx context.Context, id string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status != domain.StatusPending && e.Status != domain.StatusInitializing {
		return store.ErrTerminal
	}
	e.Status = domain.StatusRunning
	e.StartedAt = &startedAt
	return nil
}

func (m *memExecutionStore) Finalize(ctx context.Context, id string, fin domain.ExecutionFinish) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status.Terminal() {
		return store.ErrTerminal
	}
	e.Status = fin.Status
	e.Output = fin.Output
	e.ErrorMessage = fin.ErrorMessage
	completed := fin.CompletedAt
	e.CompletedAt = &completed
	duration := fin.DurationMS
	e.DurationMS = &duration
	e.TokensUsed = fin.TokensUsed
	e.ToolCalls = fin.ToolCalls
	e.CostEstimate = fin.CostEstimate
	e.ModelUsed = fin.ModelUsed
	return nil
}

type memUsageStore struct {
	mu      sync.Mutex
	records []domain.UsageRecord
	failing bool
}

func (m *memUsageStore) Create(ctx context.Context, u *domain.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return context.DeadlineExceeded
	}
	u.CreatedAt = time.Now()
	m.records = append(m.records, *u)
	return nil
}

func (m *memUsageStore) ListByExecution(ctx context.Context, executionID string) ([]domain.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UsageRecord
	for _, r := range m.records {
		if r.ExecutionID == executionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memUsageStore) Totals(ctx context.Context, f domain.UsageFilter) (*domain.UsageTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &domain.UsageTotals{}
	for _, r := range m.records {
		if f.InstanceID != "" && r.InstanceID != f.InstanceID {
			continue
		}
		if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
			continue
		}
		t.Executions++
		t.TotalTokens += int64(r.TotalTokens)
		t.InputTokens += int64(r.InputTokens)
		t.OutputTokens += int64(r.OutputTokens)
		t.TotalCost += r.CostEstimate
	}
	return t, nil
}

func (m *memUsageStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type memAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	failing bool
}

func (m *memAuditStore) Create(ctx context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return context.DeadlineExceeded
	}
	e.CreatedAt = time.Now()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAuditStore) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memAuditStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// memRouter resolves a fixed set of tenants to in-memory handles.
type memRouter struct {
	mu      sync.Mutex
	handles map[string]*domain.TenantStores
}

func newMemRouter(tenantIDs ...string) *memRouter {
	r := &memRouter{handles: make(map[string]*domain.TenantStores)}
	for _, id := range tenantIDs {
		r.handles[id] = &domain.TenantStores{
			Schema:     "tenant_" + id,
			Instances:  newMemInstanceStore(),
			Executions: newMemExecutionStore(),
			Usage:      &memUsageStore{},
			Audit:      &memAuditStore{},
		}
	}
	return r
}

func (r *memRouter) Resolve(ctx context.Context, tenantID string) (*domain.TenantStores, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[tenantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return h, nil
}

// fakeInvoker is a scriptable AgentInvoker. Delay is waited under the call's
// context so deadline behavior matches a real transport.
type fakeInvoker struct {
	mu       sync.Mutex
	response string
	err      error
	delay    time.Duration
	fn       func(cfg *domain.EffectiveConfig, input string) (string, error)
	calls    []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, cfg *domain.EffectiveConfig, input string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, input)
	response, err, delay, fn := f.response, f.err, f.delay, f.fn
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fn != nil {
		return fn(cfg, input)
	}
	return response, err
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
