package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kordant/loom/internal/domain"
	"go.uber.org/zap"
)

type fakeTenantStore struct {
	tenants map[string]*domain.Tenant
}

func (f *fakeTenantStore) Create(ctx context.Context, t *domain.Tenant) error {
	if _, ok := f.tenants[t.ID]; ok {
		return ErrConflict
	}
	f.tenants[t.ID] = t
	return nil
}

func (f *fakeTenantStore) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (f *fakeTenantStore) GetByAPIKeyHash(ctx context.Context, hash string) (*domain.Tenant, error) {
	for _, t := range f.tenants {
		if t.APIKeyHash == hash {
			return t, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeTenantStore) List(ctx context.Context, activeOnly bool) ([]domain.Tenant, error) {
	var out []domain.Tenant
	for _, t := range f.tenants {
		out = append(out, *t)
	}
	return out, nil
}

type countingProvisioner struct {
	calls atomic.Int64
}

func (p *countingProvisioner) Provision(ctx context.Context, schemaName string) (*domain.TenantStores, error) {
	p.calls.Add(1)
	return &domain.TenantStores{Schema: schemaName}, nil
}

func newTestRouter(prov Provisioner) (*Router, *fakeTenantStore) {
	tenants := &fakeTenantStore{tenants: map[string]*domain.Tenant{
		"acme": {ID: "acme", Name: "Acme", SchemaName: "tenant_acme", Status: domain.TenantActive},
	}}
	return NewRouter(tenants, prov, zap.NewNop()), tenants
}

func TestRouter_Resolve_UnknownTenant(t *testing.T) {
	r, _ := newTestRouter(&countingProvisioner{})

	_, err := r.Resolve(context.Background(), "ghost")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRouter_Resolve_CachesHandle(t *testing.T) {
	prov := &countingProvisioner{}
	r, _ := newTestRouter(prov)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "acme")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first.Schema != "tenant_acme" {
		t.Fatalf("expected schema tenant_acme, got %s", first.Schema)
	}

	second, err := r.Resolve(ctx, "acme")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first != second {
		t.Fatal("expected cached handle to be reused")
	}
	if got := prov.calls.Load(); got != 1 {
		t.Fatalf("expected 1 provision call, got %d", got)
	}
	if !r.Cached("acme") {
		t.Fatal("expected handle to be cached")
	}
}

func TestRouter_Resolve_ConcurrentFirstResolution(t *testing.T) {
	prov := &countingProvisioner{}
	r, _ := newTestRouter(prov)
	ctx := context.Background()

	const goroutines = 16
	handles := make([]*domain.TenantStores, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := r.Resolve(ctx, "acme")
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	// All callers must share one handle, even if several provisioned.
	for i := 1; i < goroutines; i++ {
		if handles[i] != handles[0] {
			t.Fatal("expected all goroutines to receive the same handle")
		}
	}
}

func TestSchemaNameForTenant(t *testing.T) {
	cases := map[string]string{
		"acme":        "tenant_acme",
		"Acme-Corp":   "tenant_acme_corp",
		"a b.c":       "tenant_a_b_c",
		"tenant_9":    "tenant_tenant_9",
	}
	for in, want := range cases {
		if got := SchemaNameForTenant(in); got != want {
			t.Fatalf("SchemaNameForTenant(%q) = %q, want %q", in, got, want)
		}
	}
}
