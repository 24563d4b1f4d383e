package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/kordant/loom/internal/domain"
	"github.com/kordant/loom/internal/store"
)

// MockTemplateStore mocks the TemplateStore interface.
type MockTemplateStore struct {
	mock.Mock
}

func (m *MockTemplateStore) Create(ctx context.Context, t *domain.AgentTemplate) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTemplateStore) GetByID(ctx context.Context, id string) (*domain.AgentTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AgentTemplate), args.Error(1)
}

func (m *MockTemplateStore) List(ctx context.Context, category string, activeOnly bool) ([]domain.AgentTemplate, error) {
	args := m.Called(ctx, category, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AgentTemplate), args.Error(1)
}

func (m *MockTemplateStore) Update(ctx context.Context, t *domain.AgentTemplate) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTemplateStore) Deactivate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestResolveMapsStoreNotFound(t *testing.T) {
	templates := new(MockTemplateStore)
	templates.On("GetByID", mock.Anything, "gone").Return(nil, store.ErrNotFound)

	resolver := NewConfigResolver(templates)
	_, err := resolver.Resolve(context.Background(), &domain.AgentInstance{
		ID: "inst", TemplateID: "gone", Name: "x",
	}, nil, CallOverrides{})

	assert.ErrorIs(t, err, ErrTemplateNotFound)
	templates.AssertExpectations(t)
}

func TestResolvePropagatesStoreFailure(t *testing.T) {
	storeFailure := errors.New("connection reset")
	templates := new(MockTemplateStore)
	templates.On("GetByID", mock.Anything, "tmpl").Return(nil, storeFailure)

	resolver := NewConfigResolver(templates)
	_, err := resolver.Resolve(context.Background(), &domain.AgentInstance{
		ID: "inst", TemplateID: "tmpl", Name: "x",
	}, nil, CallOverrides{})

	// Infrastructure failures pass through untranslated.
	assert.ErrorIs(t, err, storeFailure)
	assert.NotErrorIs(t, err, ErrTemplateNotFound)
	templates.AssertExpectations(t)
}
