package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kordant/loom/internal/domain"
)

type UsageStore struct {
	db    *pgxpool.Pool
	table string
}

func NewUsageStore(db *pgxpool.Pool, schemaName string) *UsageStore {
	return &UsageStore{
		db:    db,
		table: pgx.Identifier{schemaName, "usage_records"}.Sanitize(),
	}
}

func (s *UsageStore) Create(ctx context.Context, u *domain.UsageRecord) error {
	return s.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, execution_id, tenant_id, instance_id, provider, model_id,
		   input_tokens, output_tokens, total_tokens, cost_estimate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`, s.table),
		u.ID, u.ExecutionID, u.TenantID, u.InstanceID, u.Provider, u.ModelID,
		u.InputTokens, u.OutputTokens, u.TotalTokens, u.CostEstimate,
	).Scan(&u.CreatedAt)
}

func (s *UsageStore) ListByExecution(ctx context.Context, executionID string) ([]domain.UsageRecord, error) {
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT id, execution_id, tenant_id, instance_id, provider, model_id,
		   input_tokens, output_tokens, total_tokens, cost_estimate, created_at
		 FROM %s WHERE execution_id = $1 ORDER BY created_at`, s.table),
		executionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.UsageRecord
	for rows.Next() {
		var u domain.UsageRecord
		if err := rows.Scan(
			&u.ID, &u.ExecutionID, &u.TenantID, &u.InstanceID, &u.Provider, &u.ModelID,
			&u.InputTokens, &u.OutputTokens, &u.TotalTokens, &u.CostEstimate, &u.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, u)
	}
	return records, rows.Err()
}

func (s *UsageStore) Totals(ctx context.Context, f domain.UsageFilter) (*domain.UsageTotals, error) {
	query := fmt.Sprintf(`SELECT count(*), coalesce(sum(total_tokens), 0), coalesce(sum(input_tokens), 0),
	   coalesce(sum(output_tokens), 0), coalesce(sum(cost_estimate), 0)
	 FROM %s WHERE 1=1`, s.table)
	args := []any{}
	if f.InstanceID != "" {
		args = append(args, f.InstanceID)
		query += fmt.Sprintf(` AND instance_id = $%d`, len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		query += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}

	t := &domain.UsageTotals{}
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&t.Executions, &t.TotalTokens, &t.InputTokens, &t.OutputTokens, &t.TotalCost,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
