package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kordant/loom/internal/domain"
)

type TenantStore struct {
	db *pgxpool.Pool
}

func NewTenantStore(db *pgxpool.Pool) *TenantStore {
	return &TenantStore{db: db}
}

func (s *TenantStore) Create(ctx context.Context, t *domain.Tenant) error {
	if t.Status == "" {
		t.Status = domain.TenantActive
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO tenants (id, name, customer_name, description, schema_name, api_key_hash, status, settings, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		t.ID, t.Name, t.CustomerName, t.Description, t.SchemaName, t.APIKeyHash, t.Status, t.Settings, t.CreatedBy,
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

func (s *TenantStore) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return s.scanOne(ctx,
		`SELECT id, name, customer_name, description, schema_name, api_key_hash, status, settings, created_at, updated_at, created_by
		 FROM tenants WHERE id = $1`, id)
}

func (s *TenantStore) GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*domain.Tenant, error) {
	return s.scanOne(ctx,
		`SELECT id, name, customer_name, description, schema_name, api_key_hash, status, settings, created_at, updated_at, created_by
		 FROM tenants WHERE api_key_hash = $1`, apiKeyHash)
}

func (s *TenantStore) scanOne(ctx context.Context, query string, arg any) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&t.ID, &t.Name, &t.CustomerName, &t.Description, &t.SchemaName, &t.APIKeyHash,
		&t.Status, &t.Settings, &t.CreatedAt, &t.UpdatedAt, &t.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *TenantStore) List(ctx context.Context, activeOnly bool) ([]domain.Tenant, error) {
	query := `SELECT id, name, customer_name, description, schema_name, api_key_hash, status, settings, created_at, updated_at, created_by
	          FROM tenants`
	if activeOnly {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(
			&t.ID, &t.Name, &t.CustomerName, &t.Description, &t.SchemaName, &t.APIKeyHash,
			&t.Status, &t.Settings, &t.CreatedAt, &t.UpdatedAt, &t.CreatedBy,
		); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}
