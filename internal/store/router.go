package store

import (
	"context"
	"sync"

	"github.com/kordant/loom/internal/domain"
	"go.uber.org/zap"
)

// Router maps tenant ids to their isolated store handles. The first
// resolution for a tenant looks up its master registration, provisions the
// namespace, and caches the handle; later resolutions hit the cache. Handles
// live for the process lifetime.
type Router struct {
	tenants domain.TenantStore
	prov    Provisioner
	logger  *zap.Logger

	mu      sync.RWMutex
	handles map[string]*domain.TenantStores
}

func NewRouter(tenants domain.TenantStore, prov Provisioner, logger *zap.Logger) *Router {
	return &Router{
		tenants: tenants,
		prov:    prov,
		logger:  logger,
		handles: make(map[string]*domain.TenantStores),
	}
}

// Resolve returns the tenant's store handle, provisioning on first use.
// An unregistered tenant id returns ErrNotFound.
//
// Two goroutines racing on the same first resolution may both provision;
// provisioning is idempotent and the loser's handle is discarded in favor of
// the cached one, so callers always share a single handle per tenant.
func (r *Router) Resolve(ctx context.Context, tenantID string) (*domain.TenantStores, error) {
	r.mu.RLock()
	handle, ok := r.handles[tenantID]
	r.mu.RUnlock()
	if ok {
		return handle, nil
	}

	tenant, err := r.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	provisioned, err := r.prov.Provision(ctx, tenant.SchemaName)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.handles[tenantID]; ok {
		return existing, nil
	}
	r.handles[tenantID] = provisioned
	r.logger.Info("tenant store provisioned",
		zap.String("tenant_id", tenantID),
		zap.String("schema", tenant.SchemaName),
	)
	return provisioned, nil
}

// Cached reports whether a handle is already resolved, without provisioning.
func (r *Router) Cached(tenantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[tenantID]
	return ok
}
