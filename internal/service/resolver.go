package service

import (
	"context"
	"errors"

	"github.com/kordant/loom/internal/domain"
	"github.com/kordant/loom/internal/store"
)

var ErrTemplateNotFound = errors.New("agent template not found")

// CallOverrides are the per-call fields a submitter may supply. A non-empty
// field replaces the corresponding template/instance value wholesale; lists
// are never merged.
type CallOverrides struct {
	SystemPrompt   string                   `json:"system_prompt,omitempty"`
	Model          *domain.ModelConfig      `json:"model,omitempty"`
	Tools          []domain.ToolConfig      `json:"tools,omitempty"`
	MCPServers     []domain.MCPServerConfig `json:"mcp_servers,omitempty"`
	TimeoutSeconds int                      `json:"timeout_seconds,omitempty"`
}

const (
	defaultTimeoutSeconds = 600
	defaultChunkSize      = 1000
)

// ConfigResolver builds the effective configuration for one execution from
// the template defaults, the instance overrides, and the call overrides, in
// that precedence order. Resolution is deterministic: the same triple always
// yields a byte-identical snapshot.
type ConfigResolver struct {
	templates domain.TemplateStore
}

func NewConfigResolver(templates domain.TemplateStore) *ConfigResolver {
	return &ConfigResolver{templates: templates}
}

func (r *ConfigResolver) Resolve(ctx context.Context, instance *domain.AgentInstance, callVars map[string]string, ov CallOverrides) (*domain.EffectiveConfig, error) {
	tmpl, err := r.templates.GetByID(ctx, instance.TemplateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	if !tmpl.IsActive {
		return nil, ErrTemplateNotFound
	}

	cfg := &domain.EffectiveConfig{
		InstanceID: instance.ID,
		TemplateID: tmpl.ID,
		Name:       instance.Name,
	}

	cfg.Model = tmpl.DefaultModel
	if instance.Model != nil {
		cfg.Model = *instance.Model
	}
	if ov.Model != nil {
		cfg.Model = *ov.Model
	}

	cfg.Tools = pickList(ov.Tools, instance.Tools, tmpl.DefaultTools)
	cfg.MCPServers = pickList(ov.MCPServers, instance.MCPServers, tmpl.DefaultMCPServers)
	cfg.BuiltinTools = pickList(nil, instance.BuiltinTools, tmpl.DefaultBuiltinTools)

	cfg.TimeoutSeconds = defaultTimeoutSeconds
	if tmpl.DefaultTimeoutSeconds > 0 {
		cfg.TimeoutSeconds = tmpl.DefaultTimeoutSeconds
	}
	if instance.Settings.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = instance.Settings.TimeoutSeconds
	}
	if ov.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = ov.TimeoutSeconds
	}

	cfg.ChunkingEnabled = instance.Settings.ChunkingEnabled
	if cfg.ChunkingEnabled {
		cfg.ChunkSize = instance.Settings.ChunkSize
		if cfg.ChunkSize <= 0 {
			cfg.ChunkSize = defaultChunkSize
		}
	}

	prompt, err := r.resolveSystemPrompt(tmpl, instance, callVars, ov)
	if err != nil {
		return nil, err
	}
	cfg.SystemPrompt = prompt

	return cfg, nil
}

// resolveSystemPrompt prefers a call-level literal, then an instance-level
// literal, then renders the template's prompt with merged variables
// (template defaults → instance variables → call variables).
func (r *ConfigResolver) resolveSystemPrompt(tmpl *domain.AgentTemplate, instance *domain.AgentInstance, callVars map[string]string, ov CallOverrides) (string, error) {
	if ov.SystemPrompt != "" {
		return ov.SystemPrompt, nil
	}
	if instance.SystemPrompt != "" {
		return instance.SystemPrompt, nil
	}
	return RenderPrompt(tmpl.PromptTemplate, tmpl.Variables, instance.Variables, callVars)
}

// pickList returns the highest-precedence non-empty list, replacing rather
// than merging.
func pickList[T any](call, instance, template []T) []T {
	if len(call) > 0 {
		return call
	}
	if len(instance) > 0 {
		return instance
	}
	return template
}
