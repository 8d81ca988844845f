package insights

import "context"

// MockProvider returns canned completions. Used in tests and when no API
// key is configured.
type MockProvider struct {
	Response string
	Err      error
	Prompts  []string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{Response: "mock analysis"}
}

func (p *MockProvider) Name() string {
	return "mock"
}

func (p *MockProvider) IsAvailable() bool {
	return true
}

func (p *MockProvider) Complete(_ context.Context, prompt string) (string, error) {
	p.Prompts = append(p.Prompts, prompt)
	if p.Err != nil {
		return "", p.Err
	}
	return p.Response, nil
}
