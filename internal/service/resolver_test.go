package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kordant/loom/internal/domain"
)

func seedTemplate(t *testing.T, store domain.TemplateStore) *domain.AgentTemplate {
	t.Helper()
	tmpl := &domain.AgentTemplate{
		ID:             "tmpl-review",
		Name:           "Code Reviewer",
		Category:       "engineering",
		PromptTemplate: "You review {{language}} code for {{team}}.",
		Variables: map[string]domain.VariableSpec{
			"language": {Default: "Go"},
			"team":     {Required: true},
		},
		DefaultModel: domain.ModelConfig{
			Provider:    domain.ProviderAnthropic,
			ModelID:     "claude-sonnet-4",
			Temperature: 0.2,
		},
		DefaultTools: []domain.ToolConfig{
			{Name: "grep"},
			{Name: "read_file"},
		},
		DefaultTimeoutSeconds: 120,
		IsActive:              true,
	}
	if err := store.Create(context.Background(), tmpl); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return tmpl
}

func TestResolvePrecedence(t *testing.T) {
	templates := newMemTemplateStore()
	tmpl := seedTemplate(t, templates)
	resolver := NewConfigResolver(templates)

	instance := &domain.AgentInstance{
		ID:         "inst-1",
		TemplateID: tmpl.ID,
		Name:       "backend-reviewer",
		Variables:  map[string]string{"team": "backend", "language": "Rust"},
		Model:      &domain.ModelConfig{Provider: domain.ProviderOpenAI, ModelID: "gpt-4o"},
		Settings:   domain.InstanceSettings{TimeoutSeconds: 60},
	}

	cfg, err := resolver.Resolve(context.Background(), instance, nil, CallOverrides{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.SystemPrompt != "You review Rust code for backend." {
		t.Errorf("prompt = %q", cfg.SystemPrompt)
	}
	if cfg.Model.ModelID != "gpt-4o" {
		t.Errorf("model = %q, want instance override", cfg.Model.ModelID)
	}
	if cfg.TimeoutSeconds != 60 {
		t.Errorf("timeout = %d, want instance setting 60", cfg.TimeoutSeconds)
	}

	// A call layer beats both the instance binding and the template default.
	cfg, err = resolver.Resolve(context.Background(), instance,
		map[string]string{"language": "Zig"},
		CallOverrides{Model: &domain.ModelConfig{Provider: domain.ProviderMock, ModelID: "mock-1"}, TimeoutSeconds: 5})
	if err != nil {
		t.Fatalf("resolve with call layer: %v", err)
	}
	if cfg.SystemPrompt != "You review Zig code for backend." {
		t.Errorf("prompt = %q", cfg.SystemPrompt)
	}
	if cfg.Model.ModelID != "mock-1" {
		t.Errorf("model = %q, want call override", cfg.Model.ModelID)
	}
	if cfg.TimeoutSeconds != 5 {
		t.Errorf("timeout = %d, want call override 5", cfg.TimeoutSeconds)
	}
}

func TestResolveTemplateDefaults(t *testing.T) {
	templates := newMemTemplateStore()
	tmpl := seedTemplate(t, templates)
	resolver := NewConfigResolver(templates)

	// Bare instance: everything flows from the template.
	instance := &domain.AgentInstance{
		ID:         "inst-bare",
		TemplateID: tmpl.ID,
		Name:       "bare",
		Variables:  map[string]string{"team": "platform"},
	}

	cfg, err := resolver.Resolve(context.Background(), instance, nil, CallOverrides{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.SystemPrompt != "You review Go code for platform." {
		t.Errorf("prompt = %q, want template default for language", cfg.SystemPrompt)
	}
	if cfg.Model.ModelID != "claude-sonnet-4" {
		t.Errorf("model = %q, want template default", cfg.Model.ModelID)
	}
	if cfg.TimeoutSeconds != 120 {
		t.Errorf("timeout = %d, want template default 120", cfg.TimeoutSeconds)
	}
	if len(cfg.Tools) != 2 {
		t.Errorf("tools = %v, want template defaults", cfg.Tools)
	}
	if cfg.ChunkingEnabled {
		t.Error("chunking enabled without instance setting")
	}
}

func TestResolveListsReplaceNotMerge(t *testing.T) {
	templates := newMemTemplateStore()
	tmpl := seedTemplate(t, templates)
	resolver := NewConfigResolver(templates)

	instance := &domain.AgentInstance{
		ID:         "inst-tools",
		TemplateID: tmpl.ID,
		Name:       "custom-tools",
		Variables:  map[string]string{"team": "infra"},
		Tools:      []domain.ToolConfig{{Name: "kubectl"}},
	}

	cfg, err := resolver.Resolve(context.Background(), instance, nil, CallOverrides{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].Name != "kubectl" {
		t.Errorf("tools = %v, want instance list only", cfg.Tools)
	}

	cfg, err = resolver.Resolve(context.Background(), instance, nil, CallOverrides{
		Tools: []domain.ToolConfig{{Name: "bash"}},
	})
	if err != nil {
		t.Fatalf("resolve with call tools: %v", err)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].Name != "bash" {
		t.Errorf("tools = %v, want call list only", cfg.Tools)
	}
}

func TestResolveSystemPromptLiteralWins(t *testing.T) {
	templates := newMemTemplateStore()
	tmpl := seedTemplate(t, templates)
	resolver := NewConfigResolver(templates)

	instance := &domain.AgentInstance{
		ID:           "inst-literal",
		TemplateID:   tmpl.ID,
		Name:         "literal",
		SystemPrompt: "Always answer in haiku.",
	}

	// Instance literal bypasses rendering, so the missing required variable
	// does not matter.
	cfg, err := resolver.Resolve(context.Background(), instance, nil, CallOverrides{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.SystemPrompt != "Always answer in haiku." {
		t.Errorf("prompt = %q", cfg.SystemPrompt)
	}

	cfg, err = resolver.Resolve(context.Background(), instance, nil, CallOverrides{SystemPrompt: "Answer in prose."})
	if err != nil {
		t.Fatalf("resolve with call prompt: %v", err)
	}
	if cfg.SystemPrompt != "Answer in prose." {
		t.Errorf("prompt = %q, want call literal", cfg.SystemPrompt)
	}
}

func TestResolveMissingVariable(t *testing.T) {
	templates := newMemTemplateStore()
	tmpl := seedTemplate(t, templates)
	resolver := NewConfigResolver(templates)

	instance := &domain.AgentInstance{
		ID:         "inst-novar",
		TemplateID: tmpl.ID,
		Name:       "no-team",
	}

	_, err := resolver.Resolve(context.Background(), instance, nil, CallOverrides{})
	if !errors.Is(err, ErrMissingVariable) {
		t.Fatalf("err = %v, want ErrMissingVariable", err)
	}
}

func TestResolveUnknownTemplate(t *testing.T) {
	templates := newMemTemplateStore()
	resolver := NewConfigResolver(templates)

	instance := &domain.AgentInstance{ID: "inst-x", TemplateID: "no-such-template", Name: "x"}
	_, err := resolver.Resolve(context.Background(), instance, nil, CallOverrides{})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("err = %v, want ErrTemplateNotFound", err)
	}
}

func TestResolveInactiveTemplate(t *testing.T) {
	templates := newMemTemplateStore()
	tmpl := seedTemplate(t, templates)
	if err := templates.Deactivate(context.Background(), tmpl.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	resolver := NewConfigResolver(templates)

	instance := &domain.AgentInstance{
		ID:         "inst-y",
		TemplateID: tmpl.ID,
		Name:       "y",
		Variables:  map[string]string{"team": "qa"},
	}
	_, err := resolver.Resolve(context.Background(), instance, nil, CallOverrides{})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("err = %v, want ErrTemplateNotFound", err)
	}
}

func TestResolveChunkingDefaults(t *testing.T) {
	templates := newMemTemplateStore()
	tmpl := seedTemplate(t, templates)
	resolver := NewConfigResolver(templates)

	instance := &domain.AgentInstance{
		ID:         "inst-chunk",
		TemplateID: tmpl.ID,
		Name:       "chunky",
		Variables:  map[string]string{"team": "data"},
		Settings:   domain.InstanceSettings{ChunkingEnabled: true},
	}

	cfg, err := resolver.Resolve(context.Background(), instance, nil, CallOverrides{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !cfg.ChunkingEnabled {
		t.Fatal("chunking not enabled")
	}
	if cfg.ChunkSize != 1000 {
		t.Errorf("chunk size = %d, want default 1000", cfg.ChunkSize)
	}

	instance.Settings.ChunkSize = 250
	cfg, err = resolver.Resolve(context.Background(), instance, nil, CallOverrides{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.ChunkSize != 250 {
		t.Errorf("chunk size = %d, want 250", cfg.ChunkSize)
	}
}

func TestResolveDeterministic(t *testing.T) {
	templates := newMemTemplateStore()
	tmpl := seedTemplate(t, templates)
	resolver := NewConfigResolver(templates)

	instance := &domain.AgentInstance{
		ID:         "inst-det",
		TemplateID: tmpl.ID,
		Name:       "det",
		Variables:  map[string]string{"team": "sre"},
	}
	callVars := map[string]string{"language": "Python"}
	ov := CallOverrides{TimeoutSeconds: 30}

	first, err := resolver.Resolve(context.Background(), instance, callVars, ov)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for i := 0; i < 20; i++ {
		cfg, err := resolver.Resolve(context.Background(), instance, callVars, ov)
		if err != nil {
			t.Fatalf("resolve #%d: %v", i, err)
		}
		got, err := json.Marshal(cfg)
		if err != nil {
			t.Fatalf("marshal #%d: %v", i, err)
		}
		if string(got) != string(want) {
			t.Fatalf("snapshot diverged on iteration %d:\n%s\nvs\n%s", i, got, want)
		}
	}
}
