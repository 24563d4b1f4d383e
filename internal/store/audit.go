package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kordant/loom/internal/domain"
)

type AuditStore struct {
	db    *pgxpool.Pool
	table string
}

func NewAuditStore(db *pgxpool.Pool, schemaName string) *AuditStore {
	return &AuditStore{
		db:    db,
		table: pgx.Identifier{schemaName, "audit_log"}.Sanitize(),
	}
}

func (s *AuditStore) Create(ctx context.Context, e *domain.AuditEntry) error {
	return s.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, tenant_id, entity_type, entity_id, action, old_values, new_values, actor)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`, s.table),
		e.ID, e.TenantID, e.EntityType, e.EntityID, e.Action, e.OldValues, e.NewValues, e.Actor,
	).Scan(&e.CreatedAt)
}

func (s *AuditStore) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	query := fmt.Sprintf(`SELECT id, tenant_id, entity_type, entity_id, action, old_values, new_values, actor, created_at
	 FROM %s WHERE 1=1`, s.table)
	args := []any{}
	if f.EntityType != "" {
		args = append(args, f.EntityType)
		query += fmt.Sprintf(` AND entity_type = $%d`, len(args))
	}
	if f.EntityID != "" {
		args = append(args, f.EntityID)
		query += fmt.Sprintf(` AND entity_id = $%d`, len(args))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		query += fmt.Sprintf(` AND action = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.EntityType, &e.EntityID, &e.Action,
			&e.OldValues, &e.NewValues, &e.Actor, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
