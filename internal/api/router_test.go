package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// The pool is created lazily, so wiring the app needs no live database.
func newTestApp(t *testing.T) *App {
	t.Helper()
	pool, err := pgxpool.New(context.Background(), "postgres://localhost:5432/loom_test")
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewApp(pool, zap.NewNop())
}

func TestRouteTable(t *testing.T) {
	app := newTestApp(t)

	routes := map[string]bool{}
	err := chi.Walk(app.Router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if route != "/" {
			route = strings.TrimSuffix(route, "/")
		}
		routes[method+" "+route] = true
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	want := []string{
		"GET /health",
		"GET /metrics",
		"POST /v1/tenants",
		"GET /v1/tenants",
		"GET /v1/tenants/{id}",
		"POST /v1/templates",
		"GET /v1/templates",
		"GET /v1/templates/{id}",
		"PUT /v1/templates/{id}",
		"DELETE /v1/templates/{id}",
		"POST /v1/templates/{id}/render",
		"POST /v1/instances",
		"GET /v1/instances",
		"GET /v1/instances/{id}",
		"PATCH /v1/instances/{id}",
		"DELETE /v1/instances/{id}",
		"POST /v1/executions",
		"GET /v1/executions",
		"GET /v1/executions/{id}",
		"DELETE /v1/executions/{id}",
		"GET /v1/executions/{id}/ws",
		"GET /v1/usage",
		"GET /v1/audit",
	}
	for _, route := range want {
		if !routes[route] {
			t.Errorf("route %s is not registered", route)
		}
	}
}
