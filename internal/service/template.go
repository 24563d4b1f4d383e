package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kordant/loom/internal/domain"
	"github.com/kordant/loom/internal/store"
)

var (
	ErrTemplateConflict    = errors.New("template id already exists")
	ErrTemplateNameEmpty   = errors.New("template name is required")
	ErrTemplatePromptEmpty = errors.New("prompt template is required")
)

// TemplateService manages the shared template registry. Templates live in the
// master namespace and are visible to every tenant.
type TemplateService struct {
	templates domain.TemplateStore
	logger    *zap.Logger
}

func NewTemplateService(templates domain.TemplateStore, logger *zap.Logger) *TemplateService {
	return &TemplateService{templates: templates, logger: logger}
}

func (s *TemplateService) Create(ctx context.Context, tmpl *domain.AgentTemplate) (*domain.AgentTemplate, error) {
	if strings.TrimSpace(tmpl.Name) == "" {
		return nil, ErrTemplateNameEmpty
	}
	if strings.TrimSpace(tmpl.PromptTemplate) == "" {
		return nil, ErrTemplatePromptEmpty
	}
	if tmpl.ID == "" {
		tmpl.ID = slugify(tmpl.Name)
	}
	if tmpl.Version == "" {
		tmpl.Version = "1.0.0"
	}
	tmpl.IsActive = true
	tmpl.CreatedAt = time.Now()
	tmpl.UpdatedAt = tmpl.CreatedAt

	if err := s.templates.Create(ctx, tmpl); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrTemplateConflict
		}
		return nil, fmt.Errorf("create template: %w", err)
	}

	s.logger.Info("template created",
		zap.String("template_id", tmpl.ID),
		zap.String("category", tmpl.Category))
	return tmpl, nil
}

func (s *TemplateService) Get(ctx context.Context, id string) (*domain.AgentTemplate, error) {
	tmpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return tmpl, nil
}

func (s *TemplateService) List(ctx context.Context, category string, activeOnly bool) ([]domain.AgentTemplate, error) {
	return s.templates.List(ctx, category, activeOnly)
}

func (s *TemplateService) Update(ctx context.Context, tmpl *domain.AgentTemplate) (*domain.AgentTemplate, error) {
	existing, err := s.Get(ctx, tmpl.ID)
	if err != nil {
		return nil, err
	}
	tmpl.CreatedAt = existing.CreatedAt
	tmpl.CreatedBy = existing.CreatedBy
	tmpl.UpdatedAt = time.Now()
	if tmpl.Version == "" {
		tmpl.Version = existing.Version
	}
	if err := s.templates.Update(ctx, tmpl); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return tmpl, nil
}

func (s *TemplateService) Deactivate(ctx context.Context, id string) error {
	if err := s.templates.Deactivate(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTemplateNotFound
		}
		return err
	}
	s.logger.Info("template deactivated", zap.String("template_id", id))
	return nil
}

// RenderPreview renders the template's prompt with the supplied variables,
// applying declared defaults. Useful for validating a template before any
// instance exists.
func (s *TemplateService) RenderPreview(ctx context.Context, id string, vars map[string]string) (string, error) {
	tmpl, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return RenderPrompt(tmpl.PromptTemplate, tmpl.Variables, vars)
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	return strings.Trim(slug, "-")
}
