package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kordant/loom/internal/domain"
)

// InstanceStore is bound to one tenant's schema at construction.
type InstanceStore struct {
	db    *pgxpool.Pool
	table string
}

func NewInstanceStore(db *pgxpool.Pool, schemaName string) *InstanceStore {
	return &InstanceStore{
		db:    db,
		table: pgx.Identifier{schemaName, "agent_instances"}.Sanitize(),
	}
}

const instanceColumns = `id, tenant_id, template_id, name, description, system_prompt,
	variables, model, tools, mcp_servers, builtin_tools, settings, is_active,
	created_at, updated_at, created_by`

func (s *InstanceStore) Create(ctx context.Context, a *domain.AgentInstance) error {
	a.IsActive = true
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, tenant_id, template_id, name, description, system_prompt,
		   variables, model, tools, mcp_servers, builtin_tools, settings, is_active, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING created_at, updated_at`, s.table),
		a.ID, a.TenantID, a.TemplateID, a.Name, a.Description, a.SystemPrompt,
		a.Variables, a.Model, a.Tools, a.MCPServers, a.BuiltinTools, a.Settings, a.IsActive, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *InstanceStore) GetByID(ctx context.Context, id string) (*domain.AgentInstance, error) {
	a := &domain.AgentInstance{}
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, instanceColumns, s.table), id,
	).Scan(
		&a.ID, &a.TenantID, &a.TemplateID, &a.Name, &a.Description, &a.SystemPrompt,
		&a.Variables, &a.Model, &a.Tools, &a.MCPServers, &a.BuiltinTools, &a.Settings, &a.IsActive,
		&a.CreatedAt, &a.UpdatedAt, &a.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *InstanceStore) List(ctx context.Context, templateID string, activeOnly bool) ([]domain.AgentInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE 1=1`, instanceColumns, s.table)
	args := []any{}
	if activeOnly {
		query += ` AND is_active`
	}
	if templateID != "" {
		args = append(args, templateID)
		query += ` AND template_id = $1`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []domain.AgentInstance
	for rows.Next() {
		var a domain.AgentInstance
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.TemplateID, &a.Name, &a.Description, &a.SystemPrompt,
			&a.Variables, &a.Model, &a.Tools, &a.MCPServers, &a.BuiltinTools, &a.Settings, &a.IsActive,
			&a.CreatedAt, &a.UpdatedAt, &a.CreatedBy,
		); err != nil {
			return nil, err
		}
		instances = append(instances, a)
	}
	return instances, rows.Err()
}

func (s *InstanceStore) Update(ctx context.Context, a *domain.AgentInstance) error {
	tag, err := s.db.Exec(ctx,
		fmt.Sprintf(`UPDATE %s
		 SET name = $2, description = $3, system_prompt = $4, variables = $5, model = $6,
		     tools = $7, mcp_servers = $8, builtin_tools = $9, settings = $10,
		     is_active = $11, updated_at = now()
		 WHERE id = $1`, s.table),
		a.ID, a.Name, a.Description, a.SystemPrompt, a.Variables, a.Model,
		a.Tools, a.MCPServers, a.BuiltinTools, a.Settings, a.IsActive,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *InstanceStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET is_active = false, updated_at = now() WHERE id = $1`, s.table), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
