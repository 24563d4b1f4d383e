package domain

import "time"

type ModelProvider string

const (
	ProviderOpenAI    ModelProvider = "openai"
	ProviderAnthropic ModelProvider = "anthropic"
	ProviderBedrock   ModelProvider = "bedrock"
	ProviderMock      ModelProvider = "mock"
)

type ModelConfig struct {
	Provider    ModelProvider `json:"provider"`
	ModelID     string        `json:"model_id"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        *float64      `json:"top_p,omitempty"`
}

type ToolConfig struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Enabled    bool           `json:"enabled"`
}

type MCPServerType string

const (
	MCPServerStdio     MCPServerType = "stdio"
	MCPServerHTTP      MCPServerType = "http"
	MCPServerWebSocket MCPServerType = "websocket"
)

type MCPServerConfig struct {
	Name           string            `json:"name"`
	Type           MCPServerType     `json:"type"`
	Command        string            `json:"command,omitempty"`
	Args           []string          `json:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	Enabled        bool              `json:"enabled"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// EffectiveConfig is the fully resolved configuration used for one execution.
// It is frozen into the execution record as the configuration snapshot, so
// resolution must be deterministic: same template/instance/override inputs
// always marshal to identical bytes.
type EffectiveConfig struct {
	InstanceID      string            `json:"instance_id"`
	TemplateID      string            `json:"template_id"`
	Name            string            `json:"name"`
	SystemPrompt    string            `json:"system_prompt"`
	Model           ModelConfig       `json:"model"`
	Tools           []ToolConfig      `json:"tools,omitempty"`
	MCPServers      []MCPServerConfig `json:"mcp_servers,omitempty"`
	BuiltinTools    []string          `json:"builtin_tools,omitempty"`
	TimeoutSeconds  int               `json:"timeout_seconds"`
	ChunkingEnabled bool              `json:"chunking_enabled"`
	ChunkSize       int               `json:"chunk_size,omitempty"`
}

func (c *EffectiveConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
