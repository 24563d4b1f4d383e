package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kordant/loom/internal/domain"
)

const tenantSchemaPrefix = "tenant_"

var schemaNameSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

// SchemaNameForTenant derives the tenant's isolated schema name from its id.
// The mapping is deterministic so re-registration attempts and provisioning
// always target the same namespace.
func SchemaNameForTenant(tenantID string) string {
	name := strings.ToLower(tenantID)
	name = schemaNameSanitizer.ReplaceAllString(name, "_")
	return tenantSchemaPrefix + name
}

// EnsureMasterSchema creates the master registry tables (tenants, agent
// templates). Idempotent; called once at startup.
func EnsureMasterSchema(ctx context.Context, db *pgxpool.Pool) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			customer_name TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL DEFAULT '',
			schema_name   TEXT NOT NULL UNIQUE,
			api_key_hash  TEXT NOT NULL UNIQUE,
			status        TEXT NOT NULL DEFAULT 'active',
			settings      JSONB,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_by    TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS agent_templates (
			id                      TEXT PRIMARY KEY,
			name                    TEXT NOT NULL,
			description             TEXT NOT NULL DEFAULT '',
			category                TEXT NOT NULL DEFAULT '',
			prompt_template         TEXT NOT NULL,
			variables               JSONB,
			default_model           JSONB NOT NULL,
			default_tools           JSONB,
			default_mcp_servers     JSONB,
			default_builtin_tools   JSONB,
			default_timeout_seconds INT NOT NULL DEFAULT 0,
			capabilities            JSONB,
			tags                    JSONB,
			version                 TEXT NOT NULL DEFAULT '1.0.0',
			is_active               BOOLEAN NOT NULL DEFAULT true,
			created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_by              TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure master schema: %w", err)
		}
	}
	return nil
}

// Provisioner opens a tenant's isolated namespace, creating it if needed, and
// returns the store handle bound to it.
type Provisioner interface {
	Provision(ctx context.Context, schemaName string) (*domain.TenantStores, error)
}

// PGProvisioner provisions one Postgres schema per tenant.
type PGProvisioner struct {
	db *pgxpool.Pool
}

func NewPGProvisioner(db *pgxpool.Pool) *PGProvisioner {
	return &PGProvisioner{db: db}
}

func (p *PGProvisioner) Provision(ctx context.Context, schemaName string) (*domain.TenantStores, error) {
	schema := pgx.Identifier{schemaName}.Sanitize()

	ddl := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.agent_instances (
			id            TEXT PRIMARY KEY,
			tenant_id     TEXT NOT NULL,
			template_id   TEXT NOT NULL,
			name          TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL DEFAULT '',
			variables     JSONB,
			model         JSONB,
			tools         JSONB,
			mcp_servers   JSONB,
			builtin_tools JSONB,
			settings      JSONB NOT NULL DEFAULT '{}',
			is_active     BOOLEAN NOT NULL DEFAULT true,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_by    TEXT NOT NULL DEFAULT ''
		)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.executions (
			id                     TEXT PRIMARY KEY,
			tenant_id              TEXT NOT NULL,
			instance_id            TEXT NOT NULL,
			template_id            TEXT NOT NULL,
			input                  JSONB NOT NULL,
			output                 JSONB,
			status                 TEXT NOT NULL DEFAULT 'pending',
			error_message          TEXT NOT NULL DEFAULT '',
			configuration_snapshot JSONB NOT NULL,
			submitted_at           TIMESTAMPTZ NOT NULL,
			started_at             TIMESTAMPTZ,
			completed_at           TIMESTAMPTZ,
			duration_ms            BIGINT,
			tokens_used            INT NOT NULL DEFAULT 0,
			tool_calls             INT NOT NULL DEFAULT 0,
			cost_estimate          DOUBLE PRECISION NOT NULL DEFAULT 0,
			model_used             TEXT NOT NULL DEFAULT '',
			created_by             TEXT NOT NULL DEFAULT ''
		)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS executions_status_idx ON %s.executions (status)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS executions_instance_idx ON %s.executions (instance_id)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.usage_records (
			id            TEXT PRIMARY KEY,
			execution_id  TEXT NOT NULL,
			tenant_id     TEXT NOT NULL,
			instance_id   TEXT NOT NULL,
			provider      TEXT NOT NULL,
			model_id      TEXT NOT NULL,
			input_tokens  INT NOT NULL DEFAULT 0,
			output_tokens INT NOT NULL DEFAULT 0,
			total_tokens  INT NOT NULL DEFAULT 0,
			cost_estimate DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.audit_log (
			id          TEXT PRIMARY KEY,
			tenant_id   TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			action      TEXT NOT NULL,
			old_values  JSONB,
			new_values  JSONB,
			actor       TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, schema),
	}
	for _, stmt := range ddl {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("provision schema %s: %w", schemaName, err)
		}
	}

	return &domain.TenantStores{
		Schema:     schemaName,
		Instances:  NewInstanceStore(p.db, schemaName),
		Executions: NewExecutionStore(p.db, schemaName),
		Usage:      NewUsageStore(p.db, schemaName),
		Audit:      NewAuditStore(p.db, schemaName),
	}, nil
}
