package testutil

import (
	"context"
	"sync"

	"github.com/skosovsky/dopus"
)

// MockTool is a configurable tool for tests. It records the arguments of every call.
type MockTool struct {
	NameVal   string
	DescVal   string
	ParamsVal []dopus.Param
	Result    any
	Err       error
	ExecuteFn dopus.Handler // when set, used instead of Result and Err

	mu    sync.Mutex
	calls []dopus.Args
}

// Name returns the tool name.
func (m *MockTool) Name() string {
	if m.NameVal != "" {
		return m.NameVal
	}
	return "mock"
}

// Descriptor builds the tool's descriptor.
func (m *MockTool) Descriptor() *dopus.Descriptor {
	return dopus.Define(m.Name(), m.DescVal, m.ParamsVal, m.handle)
}

// Calls returns the arguments received so far.
func (m *MockTool) Calls() []dopus.Args {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dopus.Args(nil), m.calls...)
}

func (m *MockTool) handle(ctx context.Context, args dopus.Args) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, args)
	m.mu.Unlock()
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, args)
	}
	return m.Result, m.Err
}

// NewTestRegistry returns an isolated registry holding the given tools.
func NewTestRegistry(tools ...*dopus.Descriptor) *dopus.Registry {
	return dopus.NewRegistry(tools...)
}
