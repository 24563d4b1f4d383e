package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kordant/loom/internal/domain"
)

// ExecutionStore is bound to one tenant's schema at construction. Status
// transitions are enforced in SQL: a terminal row rejects further writes, so
// a racing finalizer or canceller can never regress a terminal status.
type ExecutionStore struct {
	db    *pgxpool.Pool
	table string
}

func NewExecutionStore(db *pgxpool.Pool, schemaName string) *ExecutionStore {
	return &ExecutionStore{
		db:    db,
		table: pgx.Identifier{schemaName, "executions"}.Sanitize(),
	}
}

const executionColumns = `id, tenant_id, instance_id, template_id, input, output, status,
	error_message, configuration_snapshot, submitted_at, started_at, completed_at,
	duration_ms, tokens_used, tool_calls, cost_estimate, model_used, created_by`

func (s *ExecutionStore) Create(ctx context.Context, e *domain.Execution) error {
	_, err := s.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, tenant_id, instance_id, template_id, input, status,
		   configuration_snapshot, submitted_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, s.table),
		e.ID, e.TenantID, e.InstanceID, e.TemplateID, e.Input, e.Status,
		e.ConfigSnapshot, e.SubmittedAt, e.CreatedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *ExecutionStore) GetByID(ctx context.Context, id string) (*domain.Execution, error) {
	e := &domain.Execution{}
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, executionColumns, s.table), id,
	).Scan(
		&e.ID, &e.TenantID, &e.InstanceID, &e.TemplateID, &e.Input, &e.Output, &e.Status,
		&e.ErrorMessage, &e.ConfigSnapshot, &e.SubmittedAt, &e.StartedAt, &e.CompletedAt,
		&e.DurationMS, &e.TokensUsed, &e.ToolCalls, &e.CostEstimate, &e.ModelUsed, &e.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *ExecutionStore) buildFilter(f domain.ExecutionFilter) (string, []any) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.InstanceID != "" {
		args = append(args, f.InstanceID)
		where += fmt.Sprintf(` AND instance_id = $%d`, len(args))
	}
	if f.TemplateID != "" {
		args = append(args, f.TemplateID)
		where += fmt.Sprintf(` AND template_id = $%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	return where, args
}

func (s *ExecutionStore) List(ctx context.Context, f domain.ExecutionFilter) ([]domain.Execution, error) {
	where, args := s.buildFilter(f)
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY submitted_at DESC`, executionColumns, s.table, where)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []domain.Execution
	for rows.Next() {
		var e domain.Execution
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.InstanceID, &e.TemplateID, &e.Input, &e.Output, &e.Status,
			&e.ErrorMessage, &e.ConfigSnapshot, &e.SubmittedAt, &e.StartedAt, &e.CompletedAt,
			&e.DurationMS, &e.TokensUsed, &e.ToolCalls, &e.CostEstimate, &e.ModelUsed, &e.CreatedBy,
		); err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

func (s *ExecutionStore) Count(ctx context.Context, f domain.ExecutionFilter) (int, error) {
	where, args := s.buildFilter(f)
	var count int
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s%s`, s.table, where), args...,
	).Scan(&count)
	return count, err
}

// SetRunning transitions pending/initializing to running. A row that has
// moved on (cancelled while queued, or already terminal) returns ErrTerminal.
func (s *ExecutionStore) SetRunning(ctx context.Context, id string, startedAt time.Time) error {
	tag, err := s.db.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET status = $2, started_at = $3
		 WHERE id = $1 AND status IN ('pending', 'initializing')`, s.table),
		id, domain.StatusRunning, startedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, id)
	}
	return nil
}

// Finalize writes a terminal status and its tracking fields. Only succeeds
// from a non-terminal state; the configuration snapshot is never touched.
func (s *ExecutionStore) Finalize(ctx context.Context, id string, fin domain.ExecutionFinish) error {
	tag, err := s.db.Exec(ctx,
		fmt.Sprintf(`UPDATE %s
		 SET status = $2, output = $3, error_message = $4, completed_at = $5, duration_ms = $6,
		     tokens_used = $7, tool_calls = $8, cost_estimate = $9, model_used = $10
		 WHERE id = $1 AND status IN ('pending', 'initializing', 'running')`, s.table),
		id, fin.Status, fin.Output, fin.ErrorMessage, fin.CompletedAt, fin.DurationMS,
		fin.TokensUsed, fin.ToolCalls, fin.CostEstimate, fin.ModelUsed,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, id)
	}
	return nil
}

// classifyMiss distinguishes "row gone" from "row already terminal" after a
// conditional update matched nothing.
func (s *ExecutionStore) classifyMiss(ctx context.Context, id string) error {
	var status domain.ExecutionStatus
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, s.table), id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrTerminal
}
