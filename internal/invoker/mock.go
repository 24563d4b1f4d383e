package invoker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kordant/loom/internal/domain"
)

// MockInvoker is a configurable invoker for testing and local development.
// Set the fields to control what Invoke returns; Delay is waited under the
// call's context so deadline behavior matches a real transport.
type MockInvoker struct {
	Response string
	Err      error
	Delay    time.Duration

	mu    sync.Mutex
	calls []string
}

func NewMockInvoker() *MockInvoker {
	return &MockInvoker{}
}

func (m *MockInvoker) Invoke(ctx context.Context, cfg *domain.EffectiveConfig, input string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, input)
	response, err, delay := m.Response, m.Err, m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if response != "" {
		return response, nil
	}
	return fmt.Sprintf("[%s] processed %d characters", cfg.Model.ModelID, len(input)), nil
}

// Calls returns the inputs Invoke has received, for assertions.
func (m *MockInvoker) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
