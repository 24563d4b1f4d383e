package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/kordant/loom/internal/domain"
)

// UsageRecorder writes usage records into the owning tenant's store. Failures
// are logged and swallowed: usage reporting must never block or fail an
// execution that has already reached a terminal status.
type UsageRecorder struct {
	router domain.StoreRouter
	logger *zap.Logger
}

func NewUsageRecorder(router domain.StoreRouter, logger *zap.Logger) *UsageRecorder {
	return &UsageRecorder{router: router, logger: logger}
}

func (r *UsageRecorder) Record(ctx context.Context, u *domain.UsageRecord) {
	handle, err := r.router.Resolve(ctx, u.TenantID)
	if err != nil {
		r.logger.Warn("usage record dropped: tenant resolve failed",
			zap.String("tenant_id", u.TenantID),
			zap.String("execution_id", u.ExecutionID),
			zap.Error(err))
		return
	}
	if err := handle.Usage.Create(ctx, u); err != nil {
		r.logger.Warn("usage record dropped: write failed",
			zap.String("tenant_id", u.TenantID),
			zap.String("execution_id", u.ExecutionID),
			zap.Error(err))
	}
}

// AuditLogger appends audit entries with the same fire-and-log contract.
type AuditLogger struct {
	router domain.StoreRouter
	logger *zap.Logger
}

func NewAuditLogger(router domain.StoreRouter, logger *zap.Logger) *AuditLogger {
	return &AuditLogger{router: router, logger: logger}
}

func (a *AuditLogger) Log(ctx context.Context, e *domain.AuditEntry) {
	handle, err := a.router.Resolve(ctx, e.TenantID)
	if err != nil {
		a.logger.Warn("audit entry dropped: tenant resolve failed",
			zap.String("tenant_id", e.TenantID),
			zap.String("entity_id", e.EntityID),
			zap.Error(err))
		return
	}
	if err := handle.Audit.Create(ctx, e); err != nil {
		a.logger.Warn("audit entry dropped: write failed",
			zap.String("tenant_id", e.TenantID),
			zap.String("entity_id", e.EntityID),
			zap.Error(err))
	}
}
