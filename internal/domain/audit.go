package domain

import "time"

// AuditEntry is an append-only record of an operator or engine action on a
// tenant-scoped entity.
type AuditEntry struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
