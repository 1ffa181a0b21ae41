package llm

import (
	"context"
	"fmt"
)

// MockEmbeddingClient is a configurable EmbeddingClient for tests. Vectors
// are looked up by input text; unknown inputs return ErrNoVector unless a
// Default vector is set.
type MockEmbeddingClient struct {
	Vectors map[string][]float32
	Default []float32
	Err     error
	Calls   []string
}

var _ EmbeddingClient = (*MockEmbeddingClient)(nil)

func (m *MockEmbeddingClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	vectors, err := m.CreateEmbeddings(ctx, []string{input})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *MockEmbeddingClient) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	m.Calls = append(m.Calls, inputs...)
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		if v, ok := m.Vectors[input]; ok {
			out[i] = v
			continue
		}
		if m.Default != nil {
			out[i] = m.Default
			continue
		}
		return nil, fmt.Errorf("no vector configured for input %q", input)
	}
	return out, nil
}

func (m *MockEmbeddingClient) GetModel() string {
	return "mock-embedding-model"
}
