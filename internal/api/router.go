package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kordant/loom/internal/api/handlers"
	mw "github.com/kordant/loom/internal/api/middleware"
	"github.com/kordant/loom/internal/buildconfig"
	"github.com/kordant/loom/internal/config"
	"github.com/kordant/loom/internal/domain"
	"github.com/kordant/loom/internal/invoker"
	"github.com/kordant/loom/internal/service"
	"github.com/kordant/loom/internal/store"
)

// App holds the router and the execution engine for lifecycle management.
type App struct {
	Router *chi.Mux
	Engine *service.ExecutionEngine

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Master registry stores
	tenantStore := store.NewTenantStore(db)
	templateStore := store.NewTemplateStore(db)

	// Per-tenant store routing
	storeRouter := store.NewRouter(tenantStore, store.NewPGProvisioner(db), logger)

	// Agent invoker via provider factory
	agentInvoker, err := invoker.NewInvoker(config.InvokerProvider(), config.InvokerAPIKey())
	if err != nil {
		logger.Warn("invoker initialization failed, falling back to mock",
			zap.String("provider", config.InvokerProvider()), zap.Error(err))
		agentInvoker = invoker.NewMockInvoker()
	} else {
		logger.Info("invoker initialized", zap.String("provider", config.InvokerProvider()))
	}

	// Sinks and services
	usageSink := service.NewUsageRecorder(storeRouter, logger)
	auditSink := service.NewAuditLogger(storeRouter, logger)
	tenantSvc := service.NewTenantService(tenantStore, storeRouter, logger)
	templateSvc := service.NewTemplateService(templateStore, logger)
	instanceSvc := service.NewInstanceService(storeRouter, templateStore, auditSink, logger)
	engine := service.NewExecutionEngine(
		storeRouter,
		service.NewConfigResolver(templateStore),
		agentInvoker,
		usageSink,
		auditSink,
		config.MaxConcurrentExecutions(),
		logger,
	)

	// Handlers
	tenantHandler := handlers.NewTenantHandler(tenantSvc)
	templateHandler := handlers.NewTemplateHandler(templateSvc)
	instanceHandler := handlers.NewInstanceHandler(instanceSvc)
	executionHandler := handlers.NewExecutionHandler(engine)
	usageHandler := handlers.NewUsageHandler(tenantSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Engine:    engine,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		// Bootstrap endpoints (no auth): registration issues the API keys
		// every other route requires.
		r.Post("/tenants", tenantHandler.Create)
		r.Post("/templates", templateHandler.Create)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(mw.APIKeyAuth(tenantStore))

			// Tenant registry (read side)
			r.Get("/tenants", tenantHandler.List)
			r.Get("/tenants/{id}", tenantHandler.GetByID)

			// Templates (shared registry, read side)
			r.Get("/templates", templateHandler.List)
			r.Get("/templates/{id}", templateHandler.GetByID)
			r.Put("/templates/{id}", templateHandler.Update)
			r.Delete("/templates/{id}", templateHandler.Deactivate)
			r.Post("/templates/{id}/render", templateHandler.Render)

			// Agent instances
			r.Route("/instances", func(r chi.Router) {
				r.Post("/", instanceHandler.Create)
				r.Get("/", instanceHandler.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", instanceHandler.GetByID)
					r.Patch("/", instanceHandler.Patch)
					r.Delete("/", instanceHandler.Deactivate)
				})
			})

			// Executions
			r.Route("/executions", func(r chi.Router) {
				r.Post("/", executionHandler.Submit)
				r.Get("/", executionHandler.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", executionHandler.GetByID)
					r.Delete("/", executionHandler.Cancel)
					r.Get("/ws", executionHandler.Stream)
				})
			})

			// Reporting
			r.Get("/usage", usageHandler.Totals)
			r.Get("/audit", usageHandler.ListAudit)
		})
	})

	return app
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": buildconfig.Version(),
		})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.TenantStore    = (*store.TenantStore)(nil)
	_ domain.TemplateStore  = (*store.TemplateStore)(nil)
	_ domain.InstanceStore  = (*store.InstanceStore)(nil)
	_ domain.ExecutionStore = (*store.ExecutionStore)(nil)
	_ domain.UsageStore     = (*store.UsageStore)(nil)
	_ domain.AuditStore     = (*store.AuditStore)(nil)
	_ domain.StoreRouter    = (*store.Router)(nil)
	_ domain.AgentInvoker   = (*invoker.OpenAIInvoker)(nil)
	_ domain.AgentInvoker   = (*invoker.AnthropicInvoker)(nil)
	_ domain.AgentInvoker   = (*invoker.MockInvoker)(nil)
	_ domain.UsageSink      = (*service.UsageRecorder)(nil)
	_ domain.AuditSink      = (*service.AuditLogger)(nil)
)
