package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kordant/loom/internal/domain"
)

func TestUsageRecorderWrites(t *testing.T) {
	router := newMemRouter("acme")
	rec := NewUsageRecorder(router, zap.NewNop())

	rec.Record(context.Background(), &domain.UsageRecord{
		ID:          "u1",
		TenantID:    "acme",
		ExecutionID: "e1",
		TotalTokens: 42,
	})

	handle, _ := router.Resolve(context.Background(), "acme")
	records, err := handle.Usage.ListByExecution(context.Background(), "e1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].TotalTokens != 42 {
		t.Fatalf("records = %+v", records)
	}
}

func TestUsageRecorderSwallowsFailures(t *testing.T) {
	router := newMemRouter("acme")
	handle, _ := router.Resolve(context.Background(), "acme")
	handle.Usage.(*memUsageStore).failing = true
	rec := NewUsageRecorder(router, zap.NewNop())

	// Neither a write failure nor an unknown tenant may panic or propagate.
	rec.Record(context.Background(), &domain.UsageRecord{ID: "u1", TenantID: "acme", ExecutionID: "e1"})
	rec.Record(context.Background(), &domain.UsageRecord{ID: "u2", TenantID: "ghost", ExecutionID: "e2"})

	if handle.Usage.(*memUsageStore).count() != 0 {
		t.Error("failing store accepted a record")
	}
}

func TestAuditLoggerWrites(t *testing.T) {
	router := newMemRouter("acme")
	logger := NewAuditLogger(router, zap.NewNop())

	logger.Log(context.Background(), &domain.AuditEntry{
		ID:         "a1",
		TenantID:   "acme",
		EntityType: "agent_instance",
		EntityID:   "i1",
		Action:     "create",
	})

	handle, _ := router.Resolve(context.Background(), "acme")
	entries, err := handle.Audit.List(context.Background(), domain.AuditFilter{EntityID: "i1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "create" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestAuditLoggerSwallowsFailures(t *testing.T) {
	router := newMemRouter("acme")
	handle, _ := router.Resolve(context.Background(), "acme")
	handle.Audit.(*memAuditStore).failing = true
	logger := NewAuditLogger(router, zap.NewNop())

	logger.Log(context.Background(), &domain.AuditEntry{ID: "a1", TenantID: "acme", EntityID: "i1"})
	logger.Log(context.Background(), &domain.AuditEntry{ID: "a2", TenantID: "ghost", EntityID: "i2"})

	if handle.Audit.(*memAuditStore).count() != 0 {
		t.Error("failing store accepted an entry")
	}
}

func TestUsageTotalsHonorFilters(t *testing.T) {
	now := time.Now()
	usage := &memUsageStore{records: []domain.UsageRecord{
		{InstanceID: "i1", TotalTokens: 10, CreatedAt: now.Add(-2 * time.Hour)},
		{InstanceID: "i1", TotalTokens: 5, CreatedAt: now},
		{InstanceID: "i2", TotalTokens: 3, CreatedAt: now},
	}}

	totals, err := usage.Totals(context.Background(), domain.UsageFilter{Since: now.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Executions != 2 || totals.TotalTokens != 8 {
		t.Errorf("since filter: %+v", totals)
	}

	totals, err = usage.Totals(context.Background(), domain.UsageFilter{InstanceID: "i1", Since: now.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Executions != 1 || totals.TotalTokens != 5 {
		t.Errorf("combined filter: %+v", totals)
	}
}
