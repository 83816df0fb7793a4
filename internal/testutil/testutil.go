// Package testutil holds shared test doubles for the engine pipeline
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/llm"
)

// MockLLM is a testify mock of llm.Service
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	args := m.Called(ctx, prompt, opts)
	return args.String(0), args.Error(1)
}

// FailingRecorder errors on every write. It verifies that history failures
// never propagate into the primary request path.
type FailingRecorder struct {
	Err      error
	Attempts int
}

func (f *FailingRecorder) Record(_ context.Context, _ history.Entry) error {
	f.Attempts++
	return f.Err
}

func (f *FailingRecorder) Query(_ context.Context, _ history.Filter, _ int) ([]history.Entry, error) {
	return nil, f.Err
}

func (f *FailingRecorder) Stats(_ context.Context) (history.Stats, error) {
	return history.Stats{}, f.Err
}

func (f *FailingRecorder) Close() error {
	return nil
}
