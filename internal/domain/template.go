package domain

import "time"

// VariableSpec declares a prompt template variable. Default is substituted
// when no layer binds the variable; a variable with Required set and no
// binding fails rendering.
type VariableSpec struct {
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// AgentTemplate is a shared behavior definition owned by the master registry.
// Instances reference templates by id and never embed them.
type AgentTemplate struct {
	ID                    string                  `json:"id"`
	Name                  string                  `json:"name"`
	Description           string                  `json:"description,omitempty"`
	Category              string                  `json:"category,omitempty"`
	PromptTemplate        string                  `json:"prompt_template"`
	Variables             map[string]VariableSpec `json:"variables,omitempty"`
	DefaultModel          ModelConfig             `json:"default_model"`
	DefaultTools          []ToolConfig            `json:"default_tools,omitempty"`
	DefaultMCPServers     []MCPServerConfig       `json:"default_mcp_servers,omitempty"`
	DefaultBuiltinTools   []string                `json:"default_builtin_tools,omitempty"`
	DefaultTimeoutSeconds int                     `json:"default_timeout_seconds,omitempty"`
	Capabilities          []string                `json:"capabilities,omitempty"`
	Tags                  []string                `json:"tags,omitempty"`
	Version               string                  `json:"version"`
	IsActive              bool                    `json:"is_active"`
	CreatedAt             time.Time               `json:"created_at"`
	UpdatedAt             time.Time               `json:"updated_at"`
	CreatedBy             string                  `json:"created_by,omitempty"`
}
