package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kordant/loom/internal/domain"
	"github.com/kordant/loom/internal/store"
)

var (
	ErrUnknownTenant   = errors.New("unknown tenant")
	ErrDuplicateTenant = errors.New("tenant already registered")
	ErrTenantIDEmpty   = errors.New("tenant id is required")
	ErrTenantNameEmpty = errors.New("tenant name is required")
)

const apiKeyPrefix = "lk_"

// TenantService registers tenants in the master registry and eagerly
// provisions their isolated store namespace.
type TenantService struct {
	tenants domain.TenantStore
	router  domain.StoreRouter
	logger  *zap.Logger
}

func NewTenantService(tenants domain.TenantStore, router domain.StoreRouter, logger *zap.Logger) *TenantService {
	return &TenantService{
		tenants: tenants,
		router:  router,
		logger:  logger,
	}
}

type RegisterTenantInput struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	CustomerName string         `json:"customer_name,omitempty"`
	Description  string         `json:"description,omitempty"`
	Settings     map[string]any `json:"settings,omitempty"`
	CreatedBy    string         `json:"created_by,omitempty"`
}

// Register creates the tenant record, generates its API key, and provisions
// the tenant's schema so the first authenticated request pays no setup cost.
// The plaintext API key is returned exactly once; only its hash is stored.
func (s *TenantService) Register(ctx context.Context, in RegisterTenantInput) (*domain.Tenant, string, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, "", ErrTenantIDEmpty
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, "", ErrTenantNameEmpty
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}

	tenant := &domain.Tenant{
		ID:           id,
		Name:         in.Name,
		CustomerName: in.CustomerName,
		Description:  in.Description,
		SchemaName:   store.SchemaNameForTenant(id),
		APIKeyHash:   HashAPIKey(apiKey),
		Status:       domain.TenantActive,
		Settings:     in.Settings,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		CreatedBy:    in.CreatedBy,
	}

	if err := s.tenants.Create(ctx, tenant); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, "", ErrDuplicateTenant
		}
		return nil, "", fmt.Errorf("create tenant: %w", err)
	}

	if _, err := s.router.Resolve(ctx, tenant.ID); err != nil {
		return nil, "", fmt.Errorf("provision tenant %s: %w", tenant.ID, err)
	}

	s.logger.Info("tenant registered",
		zap.String("tenant_id", tenant.ID),
		zap.String("schema", tenant.SchemaName))

	return tenant, apiKey, nil
}

func (s *TenantService) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	tenant, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownTenant
		}
		return nil, err
	}
	return tenant, nil
}

func (s *TenantService) List(ctx context.Context, activeOnly bool) ([]domain.Tenant, error) {
	return s.tenants.List(ctx, activeOnly)
}

// Stores resolves the tenant's isolated store handle, mapping a registry miss
// to ErrUnknownTenant.
func (s *TenantService) Stores(ctx context.Context, tenantID string) (*domain.TenantStores, error) {
	handle, err := s.router.Resolve(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownTenant
		}
		return nil, err
	}
	return handle, nil
}

func generateAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(raw), nil
}

// HashAPIKey matches the hash applied by the auth middleware when looking up
// tenants by key.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
