package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kordant/loom/internal/domain"
)

type TemplateStore struct {
	db *pgxpool.Pool
}

func NewTemplateStore(db *pgxpool.Pool) *TemplateStore {
	return &TemplateStore{db: db}
}

const templateColumns = `id, name, description, category, prompt_template, variables,
	default_model, default_tools, default_mcp_servers, default_builtin_tools,
	default_timeout_seconds, capabilities, tags, version, is_active, created_at, updated_at, created_by`

func (s *TemplateStore) Create(ctx context.Context, t *domain.AgentTemplate) error {
	if t.Version == "" {
		t.Version = "1.0.0"
	}
	t.IsActive = true
	err := s.db.QueryRow(ctx,
		`INSERT INTO agent_templates (id, name, description, category, prompt_template, variables,
		   default_model, default_tools, default_mcp_servers, default_builtin_tools,
		   default_timeout_seconds, capabilities, tags, version, is_active, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Description, t.Category, t.PromptTemplate, t.Variables,
		t.DefaultModel, t.DefaultTools, t.DefaultMCPServers, t.DefaultBuiltinTools,
		t.DefaultTimeoutSeconds, t.Capabilities, t.Tags, t.Version, t.IsActive, t.CreatedBy,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *TemplateStore) GetByID(ctx context.Context, id string) (*domain.AgentTemplate, error) {
	t := &domain.AgentTemplate{}
	err := s.db.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM agent_templates WHERE id = $1`, id,
	).Scan(
		&t.ID, &t.Name, &t.Description, &t.Category, &t.PromptTemplate, &t.Variables,
		&t.DefaultModel, &t.DefaultTools, &t.DefaultMCPServers, &t.DefaultBuiltinTools,
		&t.DefaultTimeoutSeconds, &t.Capabilities, &t.Tags, &t.Version, &t.IsActive,
		&t.CreatedAt, &t.UpdatedAt, &t.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *TemplateStore) List(ctx context.Context, category string, activeOnly bool) ([]domain.AgentTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM agent_templates WHERE 1=1`
	args := []any{}
	if activeOnly {
		query += ` AND is_active`
	}
	if category != "" {
		args = append(args, category)
		query += ` AND category = $1`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []domain.AgentTemplate
	for rows.Next() {
		var t domain.AgentTemplate
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Description, &t.Category, &t.PromptTemplate, &t.Variables,
			&t.DefaultModel, &t.DefaultTools, &t.DefaultMCPServers, &t.DefaultBuiltinTools,
			&t.DefaultTimeoutSeconds, &t.Capabilities, &t.Tags, &t.Version, &t.IsActive,
			&t.CreatedAt, &t.UpdatedAt, &t.CreatedBy,
		); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *TemplateStore) Update(ctx context.Context, t *domain.AgentTemplate) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE agent_templates
		 SET name = $2, description = $3, category = $4, prompt_template = $5, variables = $6,
		     default_model = $7, default_tools = $8, default_mcp_servers = $9,
		     default_builtin_tools = $10, default_timeout_seconds = $11,
		     capabilities = $12, tags = $13, version = $14, updated_at = now()
		 WHERE id = $1`,
		t.ID, t.Name, t.Description, t.Category, t.PromptTemplate, t.Variables,
		t.DefaultModel, t.DefaultTools, t.DefaultMCPServers, t.DefaultBuiltinTools,
		t.DefaultTimeoutSeconds, t.Capabilities, t.Tags, t.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *TemplateStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE agent_templates SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
