package gemini

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// MockModelsClient is a mock implementation of ModelsClient for testing.
type MockModelsClient struct {
	GenerateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenerateContent calls the mock function if set, otherwise returns an error.
func (m *MockModelsClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, model, contents, config)
	}
	return nil, errors.New("GenerateContentFunc not set")
}
