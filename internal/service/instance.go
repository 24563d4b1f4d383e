package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kordant/loom/internal/domain"
	"github.com/kordant/loom/internal/store"
)

var (
	ErrInstanceNotFound  = errors.New("agent instance not found")
	ErrInstanceNameEmpty = errors.New("instance name is required")
	ErrInstanceInactive  = errors.New("agent instance is deactivated")
)

// InstanceService manages tenant-scoped agent instances. All reads and writes
// go through the tenant's resolved store handle.
type InstanceService struct {
	router    domain.StoreRouter
	templates domain.TemplateStore
	audit     domain.AuditSink
	logger    *zap.Logger
}

func NewInstanceService(router domain.StoreRouter, templates domain.TemplateStore, audit domain.AuditSink, logger *zap.Logger) *InstanceService {
	return &InstanceService{
		router:    router,
		templates: templates,
		audit:     audit,
		logger:    logger,
	}
}

type CreateInstanceInput struct {
	TemplateID   string                   `json:"template_id"`
	Name         string                   `json:"name"`
	Description  string                   `json:"description,omitempty"`
	SystemPrompt string                   `json:"system_prompt,omitempty"`
	Variables    map[string]string        `json:"variables,omitempty"`
	Model        *domain.ModelConfig      `json:"model,omitempty"`
	Tools        []domain.ToolConfig      `json:"tools,omitempty"`
	MCPServers   []domain.MCPServerConfig `json:"mcp_servers,omitempty"`
	BuiltinTools []string                 `json:"builtin_tools,omitempty"`
	Settings     domain.InstanceSettings  `json:"settings"`
	CreatedBy    string                   `json:"created_by,omitempty"`
}

// InstanceUpdate is the whitelist of mutable instance fields. Nil pointers
// leave the field untouched.
type InstanceUpdate struct {
	Name         *string                   `json:"name,omitempty"`
	Description  *string                   `json:"description,omitempty"`
	SystemPrompt *string                   `json:"system_prompt,omitempty"`
	Variables    *map[string]string        `json:"variables,omitempty"`
	Model        *domain.ModelConfig       `json:"model,omitempty"`
	Tools        *[]domain.ToolConfig      `json:"tools,omitempty"`
	MCPServers   *[]domain.MCPServerConfig `json:"mcp_servers,omitempty"`
	BuiltinTools *[]string                 `json:"builtin_tools,omitempty"`
	Settings     *domain.InstanceSettings  `json:"settings,omitempty"`
}

func (s *InstanceService) Create(ctx context.Context, tenantID string, in CreateInstanceInput) (*domain.AgentInstance, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, ErrInstanceNameEmpty
	}

	tmpl, err := s.templates.GetByID(ctx, in.TemplateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	if !tmpl.IsActive {
		return nil, ErrTemplateNotFound
	}

	handle, err := s.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	instance := &domain.AgentInstance{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		TemplateID:   tmpl.ID,
		Name:         in.Name,
		Description:  in.Description,
		SystemPrompt: in.SystemPrompt,
		Variables:    in.Variables,
		Model:        in.Model,
		Tools:        in.Tools,
		MCPServers:   in.MCPServers,
		BuiltinTools: in.BuiltinTools,
		Settings:     in.Settings,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		CreatedBy:    in.CreatedBy,
	}

	if err := handle.Instances.Create(ctx, instance); err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	s.audit.Log(ctx, &domain.AuditEntry{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		EntityType: "agent_instance",
		EntityID:   instance.ID,
		Action:     "create",
		NewValues:  instanceAuditValues(instance),
		Actor:      in.CreatedBy,
	})

	s.logger.Info("instance created",
		zap.String("tenant_id", tenantID),
		zap.String("instance_id", instance.ID),
		zap.String("template_id", tmpl.ID))
	return instance, nil
}

func (s *InstanceService) Get(ctx context.Context, tenantID, id string) (*domain.AgentInstance, error) {
	handle, err := s.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	instance, err := handle.Instances.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return instance, nil
}

func (s *InstanceService) List(ctx context.Context, tenantID, templateID string, activeOnly bool) ([]domain.AgentInstance, error) {
	handle, err := s.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return handle.Instances.List(ctx, templateID, activeOnly)
}

// Update applies the patch to the stored instance and audits the old and new
// values of the touched fields.
func (s *InstanceService) Update(ctx context.Context, tenantID, id string, patch InstanceUpdate, actor string) (*domain.AgentInstance, error) {
	handle, err := s.stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	instance, err := handle.Instances.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	old := instanceAuditValues(instance)

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, ErrInstanceNameEmpty
		}
		instance.Name = *patch.Name
	}
	if patch.Description != nil {
		instance.Description = *patch.Description
	}
	if patch.SystemPrompt != nil {
		instance.SystemPrompt = *patch.SystemPrompt
	}
	if patch.Variables != nil {
		instance.Variables = *patch.Variables
	}
	if patch.Model != nil {
		instance.Model = patch.Model
	}
	if patch.Tools != nil {
		instance.Tools = *patch.Tools
	}
	if patch.MCPServers != nil {
		instance.MCPServers = *patch.MCPServers
	}
	if patch.BuiltinTools != nil {
		instance.BuiltinTools = *patch.BuiltinTools
	}
	if patch.Settings != nil {
		instance.Settings = *patch.Settings
	}
	instance.UpdatedAt = time.Now()

	if err := handle.Instances.Update(ctx, instance); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	s.audit.Log(ctx, &domain.AuditEntry{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		EntityType: "agent_instance",
		EntityID:   instance.ID,
		Action:     "update",
		OldValues:  old,
		NewValues:  instanceAuditValues(instance),
		Actor:      actor,
	})
	return instance, nil
}

// Deactivate soft-deletes the instance. Existing executions keep their frozen
// configuration snapshots.
func (s *InstanceService) Deactivate(ctx context.Context, tenantID, id string, actor string) error {
	handle, err := s.stores(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := handle.Instances.Deactivate(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInstanceNotFound
		}
		return err
	}

	s.audit.Log(ctx, &domain.AuditEntry{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		EntityType: "agent_instance",
		EntityID:   id,
		Action:     "deactivate",
		Actor:      actor,
	})
	s.logger.Info("instance deactivated",
		zap.String("tenant_id", tenantID),
		zap.String("instance_id", id))
	return nil
}

func (s *InstanceService) stores(ctx context.Context, tenantID string) (*domain.TenantStores, error) {
	handle, err := s.router.Resolve(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownTenant
		}
		return nil, err
	}
	return handle, nil
}

func instanceAuditValues(a *domain.AgentInstance) map[string]any {
	return map[string]any{
		"name":          a.Name,
		"description":   a.Description,
		"system_prompt": a.SystemPrompt,
		"variables":     a.Variables,
		"model":         a.Model,
		"tools":         a.Tools,
		"mcp_servers":   a.MCPServers,
		"builtin_tools": a.BuiltinTools,
		"settings":      a.Settings,
		"is_active":     a.IsActive,
	}
}
