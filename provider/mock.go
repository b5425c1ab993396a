package provider

import (
	"context"
	"fmt"
)

// MockProvider is a mock translation provider for testing.
type MockProvider struct {
	Translations map[string]string // Map of source text to translation
	DetectResult string            // Language code returned by Detect
	Err          error             // When set, every call fails with this error
	CallCount    int               // Number of times Translate was called
	LastRequest  *TranslateRequest // Last request received
}

// NewMockProvider creates a new mock provider with default translations.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Translations: map[string]string{
			"Hello":       "Hola",
			"World":       "Mundo",
			"Hello world": "Hola mundo",
			"Hi":          "Salut",
		},
		DetectResult: "en",
	}
}

// Translate returns mock translations.
func (m *MockProvider) Translate(ctx context.Context, req TranslateRequest) ([]string, error) {
	m.CallCount++
	m.LastRequest = &req

	if m.Err != nil {
		return nil, m.Err
	}

	results := make([]string, len(req.Texts))
	for i, text := range req.Texts {
		if translation, ok := m.Translations[text]; ok {
			results[i] = translation
		} else {
			// Return bracketed text for unknown translations
			results[i] = fmt.Sprintf("[%s:%s]", req.TargetLang, text)
		}
	}

	return results, nil
}

// Detect returns the configured detection result.
func (m *MockProvider) Detect(ctx context.Context, text string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.DetectResult, nil
}

// Reset resets the call count and last request.
func (m *MockProvider) Reset() {
	m.CallCount = 0
	m.LastRequest = nil
}

// Verify MockProvider implements Provider
var _ Provider = (*MockProvider)(nil)
