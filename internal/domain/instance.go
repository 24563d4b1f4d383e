package domain

import "time"

// InstanceSettings holds the per-instance execution knobs.
type InstanceSettings struct {
	TimeoutSeconds  int  `json:"timeout_seconds,omitempty"`
	ChunkingEnabled bool `json:"chunking_enabled,omitempty"`
	ChunkSize       int  `json:"chunk_size,omitempty"`
}

// AgentInstance is a tenant-scoped instantiation of an AgentTemplate with
// overrides. Deactivation flips IsActive; instances are never physically
// removed.
type AgentInstance struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	TemplateID   string            `json:"template_id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Variables    map[string]string `json:"variables,omitempty"`
	Model        *ModelConfig      `json:"model,omitempty"`
	Tools        []ToolConfig      `json:"tools,omitempty"`
	MCPServers   []MCPServerConfig `json:"mcp_servers,omitempty"`
	BuiltinTools []string          `json:"builtin_tools,omitempty"`
	Settings     InstanceSettings  `json:"settings"`
	IsActive     bool              `json:"is_active"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	CreatedBy    string            `json:"created_by,omitempty"`
}
