package domain

import "time"

type TenantStatus string

const (
	TenantActive   TenantStatus = "active"
	TenantInactive TenantStatus = "inactive"
	TenantArchived TenantStatus = "archived"
)

// Tenant is a registration in the master registry. Each tenant owns an
// isolated store namespace identified by SchemaName, derived deterministically
// from the tenant id at registration time.
type Tenant struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	CustomerName string         `json:"customer_name,omitempty"`
	Description  string         `json:"description,omitempty"`
	SchemaName   string         `json:"schema_name"`
	APIKeyHash   string         `json:"-"`
	Status       TenantStatus   `json:"status"`
	Settings     map[string]any `json:"settings,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CreatedBy    string         `json:"created_by,omitempty"`
}
