package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kordant/loom/internal/domain"
	"github.com/kordant/loom/internal/store"
)

var (
	ErrExecutionNotFound      = errors.New("execution not found")
	ErrInvalidStateTransition = errors.New("execution is already in a terminal state")
	ErrInputEmpty             = errors.New("input is required")
)

// ExecutionEngine drives the execution lifecycle: it freezes the resolved
// configuration at submission, runs the invocation inline or in the
// background, and writes each execution's single terminal status.
type ExecutionEngine struct {
	router   domain.StoreRouter
	resolver *ConfigResolver
	invoker  domain.AgentInvoker
	usage    domain.UsageSink
	audit    domain.AuditSink
	logger   *zap.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewExecutionEngine(
	router domain.StoreRouter,
	resolver *ConfigResolver,
	invoker domain.AgentInvoker,
	usage domain.UsageSink,
	audit domain.AuditSink,
	maxConcurrent int64,
	logger *zap.Logger,
) *ExecutionEngine {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	return &ExecutionEngine{
		router:   router,
		resolver: resolver,
		invoker:  invoker,
		usage:    usage,
		audit:    audit,
		logger:   logger,
		sem:      semaphore.NewWeighted(maxConcurrent),
	}
}

type SubmitInput struct {
	TenantID    string               `json:"-"`
	InstanceID  string               `json:"instance_id"`
	ExecutionID string               `json:"execution_id,omitempty"`
	Input       map[string]any       `json:"input"`
	Variables   map[string]string    `json:"variables,omitempty"`
	Overrides   CallOverrides        `json:"overrides,omitempty"`
	Mode        domain.ExecutionMode `json:"mode,omitempty"`
	Actor       string               `json:"actor,omitempty"`
}

// Submit resolves the effective configuration, freezes it into a new pending
// execution, and runs it. Inline mode blocks until the run finishes and
// returns its failure, if any; scheduled mode returns the pending record
// immediately and runs in the background.
func (e *ExecutionEngine) Submit(ctx context.Context, in SubmitInput) (*domain.Execution, error) {
	if len(in.Input) == 0 {
		return nil, ErrInputEmpty
	}
	mode := in.Mode
	if mode == "" {
		mode = domain.ModeInline
	}

	handle, err := e.stores(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}

	instance, err := handle.Instances.GetByID(ctx, in.InstanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	if !instance.IsActive {
		return nil, ErrInstanceInactive
	}

	cfg, err := e.resolver.Resolve(ctx, instance, in.Variables, in.Overrides)
	if err != nil {
		return nil, err
	}
	snapshot, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("freeze configuration: %w", err)
	}

	id := in.ExecutionID
	if id == "" {
		id = uuid.New().String()
	}
	exec := &domain.Execution{
		ID:             id,
		TenantID:       in.TenantID,
		InstanceID:     instance.ID,
		TemplateID:     instance.TemplateID,
		Input:          in.Input,
		Status:         domain.StatusPending,
		ConfigSnapshot: snapshot,
		SubmittedAt:    time.Now(),
		CreatedBy:      in.Actor,
	}
	if err := handle.Executions.Create(ctx, exec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("execution %s already exists: %w", id, err)
		}
		return nil, fmt.Errorf("create execution: %w", err)
	}

	e.logger.Info("execution submitted",
		zap.String("tenant_id", in.TenantID),
		zap.String("execution_id", exec.ID),
		zap.String("instance_id", instance.ID),
		zap.String("mode", string(mode)))

	if mode == domain.ModeScheduled {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			// Background runs outlive the submitting request.
			runCtx := context.Background()
			if err := e.sem.Acquire(runCtx, 1); err != nil {
				return
			}
			defer e.sem.Release(1)
			e.run(runCtx, handle, exec, cfg)
		}()
		return exec, nil
	}

	if err := e.run(ctx, handle, exec, cfg); err != nil {
		final, getErr := handle.Executions.GetByID(ctx, exec.ID)
		if getErr == nil {
			return final, err
		}
		return exec, err
	}
	return handle.Executions.GetByID(ctx, exec.ID)
}

// run performs one execution to its terminal status. The returned error is
// the invocation failure for inline callers; every outcome, including the
// failure, is already recorded by the time run returns.
func (e *ExecutionEngine) run(ctx context.Context, handle *domain.TenantStores, exec *domain.Execution, cfg *domain.EffectiveConfig) error {
	startedAt := time.Now()
	if err := handle.Executions.SetRunning(ctx, exec.ID, startedAt); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			// Cancelled between submission and pickup.
			return nil
		}
		return fmt.Errorf("mark running: %w", err)
	}

	prompt := promptFromInput(exec.Input)

	var (
		output  map[string]any
		status  = domain.StatusCompleted
		message string
		tokens  int
		runErr  error
	)

	if cfg.ChunkingEnabled {
		output, tokens = e.runChunked(ctx, cfg, prompt)
	} else {
		response, err := e.invokeOnce(ctx, cfg, prompt)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			// Timeout is its own terminal status: no output, no error message.
			status = domain.StatusTimeout
			runErr = err
		case err != nil:
			status = domain.StatusFailed
			message = err.Error()
			runErr = err
		default:
			output = map[string]any{"response": response}
			tokens = EstimateTokens(prompt) + EstimateTokens(response)
		}
	}

	completedAt := time.Now()
	fin := domain.ExecutionFinish{
		Status:       status,
		Output:       output,
		ErrorMessage: message,
		CompletedAt:  completedAt,
		DurationMS:   completedAt.Sub(startedAt).Milliseconds(),
		TokensUsed:   tokens,
		CostEstimate: EstimateCost(cfg.Model.ModelID, tokens),
		ModelUsed:    cfg.Model.ModelID,
	}
	if err := handle.Executions.Finalize(ctx, exec.ID, fin); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			// A concurrent cancel won the race; its status stands.
			e.logger.Info("finalize skipped: execution already terminal",
				zap.String("execution_id", exec.ID))
			return runErr
		}
		e.logger.Error("finalize failed",
			zap.String("execution_id", exec.ID),
			zap.Error(err))
		return errors.Join(runErr, err)
	}

	e.logger.Info("execution finished",
		zap.String("tenant_id", exec.TenantID),
		zap.String("execution_id", exec.ID),
		zap.String("status", string(status)),
		zap.Int64("duration_ms", fin.DurationMS))

	if status == domain.StatusCompleted {
		inTokens := EstimateTokens(prompt)
		outTokens := tokens - inTokens
		if outTokens < 0 {
			outTokens = 0
		}
		e.usage.Record(ctx, &domain.UsageRecord{
			ID:           uuid.New().String(),
			TenantID:     exec.TenantID,
			ExecutionID:  exec.ID,
			InstanceID:   exec.InstanceID,
			Provider:     cfg.Model.Provider,
			ModelID:      cfg.Model.ModelID,
			InputTokens:  inTokens,
			OutputTokens: outTokens,
			TotalTokens:  tokens,
			CostEstimate: fin.CostEstimate,
		})
	}
	e.audit.Log(ctx, &domain.AuditEntry{
		ID:         uuid.New().String(),
		TenantID:   exec.TenantID,
		EntityType: "execution",
		EntityID:   exec.ID,
		Action:     string(status),
		Actor:      exec.CreatedBy,
	})
	return runErr
}

// invokeOnce runs a single invocation under the configured deadline. A
// deadline miss abandons the invocation rather than waiting for it.
func (e *ExecutionEngine) invokeOnce(ctx context.Context, cfg *domain.EffectiveConfig, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	type result struct {
		response string
		err      error
	}
	done := make(chan result, 1)
	go func() {
		response, err := e.invoker.Invoke(callCtx, cfg, prompt)
		done <- result{response, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && callCtx.Err() != nil {
			return "", callCtx.Err()
		}
		return r.response, r.err
	case <-callCtx.Done():
		return "", callCtx.Err()
	}
}

// runChunked splits the prompt into fixed-size windows and invokes each one
// sequentially under its own deadline. Window failures are embedded in the
// ordered result list; the execution as a whole still completes.
func (e *ExecutionEngine) runChunked(ctx context.Context, cfg *domain.EffectiveConfig, prompt string) (map[string]any, int) {
	var (
		results []domain.ChunkResult
		tokens  int
	)
	for i, offset := 0, 0; offset < len(prompt); i, offset = i+1, offset+cfg.ChunkSize {
		end := offset + cfg.ChunkSize
		if end > len(prompt) {
			end = len(prompt)
		}
		window := prompt[offset:end]

		response, err := e.invokeOnce(ctx, cfg, window)
		if err != nil {
			results = append(results, domain.ChunkResult{Index: i, Error: err.Error()})
			continue
		}
		results = append(results, domain.ChunkResult{Index: i, Response: response})
		tokens += EstimateTokens(window) + EstimateTokens(response)
	}
	return map[string]any{"chunks": results}, tokens
}

// Cancel moves a pending or running execution to cancelled. Terminal
// executions are immutable.
func (e *ExecutionEngine) Cancel(ctx context.Context, tenantID, id, actor string) (*domain.Execution, error) {
	handle, err := e.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	exec, err := handle.Executions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}
	if !exec.Status.Cancellable() {
		return nil, ErrInvalidStateTransition
	}

	now := time.Now()
	started := exec.SubmittedAt
	if exec.StartedAt != nil {
		started = *exec.StartedAt
	}
	fin := domain.ExecutionFinish{
		Status:      domain.StatusCancelled,
		CompletedAt: now,
		DurationMS:  now.Sub(started).Milliseconds(),
	}
	if err := handle.Executions.Finalize(ctx, id, fin); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			// The run finished first.
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}

	e.audit.Log(ctx, &domain.AuditEntry{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		EntityType: "execution",
		EntityID:   id,
		Action:     "cancel",
		Actor:      actor,
	})
	e.logger.Info("execution cancelled",
		zap.String("tenant_id", tenantID),
		zap.String("execution_id", id))

	return handle.Executions.GetByID(ctx, id)
}

func (e *ExecutionEngine) Get(ctx context.Context, tenantID, id string) (*domain.Execution, error) {
	handle, err := e.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	exec, err := handle.Executions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}
	return exec, nil
}

func (e *ExecutionEngine) List(ctx context.Context, tenantID string, f domain.ExecutionFilter) ([]domain.Execution, error) {
	handle, err := e.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return handle.Executions.List(ctx, f)
}

func (e *ExecutionEngine) Count(ctx context.Context, tenantID string, f domain.ExecutionFilter) (int, error) {
	handle, err := e.stores(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return handle.Executions.Count(ctx, f)
}

// Stop waits for in-flight background executions to reach their terminal
// status.
func (e *ExecutionEngine) Stop() {
	e.wg.Wait()
}

func (e *ExecutionEngine) stores(ctx context.Context, tenantID string) (*domain.TenantStores, error) {
	handle, err := e.router.Resolve(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownTenant
		}
		return nil, err
	}
	return handle, nil
}

// promptFromInput extracts the text to send the agent. A string "prompt"
// field is used directly; any other input shape is serialized as JSON.
func promptFromInput(input map[string]any) string {
	if p, ok := input["prompt"].(string); ok && p != "" {
		return p
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprint(input)
	}
	return string(raw)
}
