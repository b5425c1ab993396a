package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ZaguanLabs/livetl"
)

func TestBuildSystemPrompt(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test"})

	req := TranslateRequest{
		TargetLang: "es",
		SourceLang: "en",
	}

	prompt := p.buildSystemPrompt(req)

	if !strings.Contains(prompt, "Spanish") {
		t.Error("Prompt should contain target language name")
	}
	if !strings.Contains(prompt, "English") {
		t.Error("Prompt should contain source language name")
	}
	if !strings.Contains(prompt, "translations") {
		t.Error("Prompt should describe the response format")
	}
	if !strings.Contains(prompt, "usernames") {
		t.Error("Prompt should protect mentions and usernames")
	}
}

func TestBuildSystemPrompt_AutoDetectSource(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test"})

	prompt := p.buildSystemPrompt(TranslateRequest{TargetLang: "fr"})

	if !strings.Contains(prompt, "Detect the source language") {
		t.Error("Prompt should ask for source detection when none is given")
	}
}

func TestParseResponse_TranslationsKey(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test"})

	content := `{"translations": ["Hola", "Mundo"]}`
	result, err := p.parseResponse(content, 2)

	if err != nil {
		t.Fatalf("parseResponse failed: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("Expected 2 translations, got %d", len(result))
	}

	if result[0] != "Hola" || result[1] != "Mundo" {
		t.Errorf("Unexpected translations: %v", result)
	}
}

func TestParseResponse_DirectArray(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test"})

	content := `["Hola", "Mundo"]`
	result, err := p.parseResponse(content, 2)

	if err != nil {
		t.Fatalf("parseResponse failed: %v", err)
	}

	if result[0] != "Hola" || result[1] != "Mundo" {
		t.Errorf("Unexpected translations: %v", result)
	}
}

func TestParseResponse_FallbackArrayKey(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test"})

	// Some models return with a different key
	content := `{"results": ["Hola", "Mundo"]}`
	result, err := p.parseResponse(content, 2)

	if err != nil {
		t.Fatalf("parseResponse failed: %v", err)
	}

	if result[0] != "Hola" || result[1] != "Mundo" {
		t.Errorf("Unexpected translations: %v", result)
	}
}

func TestParseResponse_CountMismatch(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test"})

	content := `{"translations": ["Hola"]}`
	_, err := p.parseResponse(content, 2)

	var mismatch *livetl.CountMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Expected CountMismatchError, got %v", err)
	}
}

func TestParseResponse_Garbage(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test"})

	_, err := p.parseResponse("I cannot translate that.", 1)
	if err == nil {
		t.Error("Expected error for non-JSON response")
	}
}

func TestTranslate_Unconfigured(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})

	if p.Configured() {
		t.Error("Provider without API key should be unconfigured")
	}

	_, err := p.Translate(context.Background(), TranslateRequest{
		Texts:      []string{"Hello"},
		TargetLang: "es",
	})

	var cfgErr *livetl.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
}

func TestTranslate_EmptyBatch(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})

	result, err := p.Translate(context.Background(), TranslateRequest{TargetLang: "es"})
	if err != nil {
		t.Fatalf("Empty batch should not fail: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("Expected empty result, got %v", result)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err       string
		retryable bool
	}{
		{"rate limit exceeded", true},
		{"429 Too Many Requests", true},
		{"dial tcp: connection refused", true},
		{"request timeout", true},
		{"503 Service Unavailable", true},
		{"invalid api key", false},
		{"400 Bad Request", false},
	}

	for _, tt := range tests {
		if got := isRetryableError(errors.New(tt.err)); got != tt.retryable {
			t.Errorf("isRetryableError(%q) = %v, want %v", tt.err, got, tt.retryable)
		}
	}
}

func TestMockProvider(t *testing.T) {
	m := NewMockProvider()

	req := TranslateRequest{
		Texts:      []string{"Hello", "Unknown text"},
		TargetLang: "es",
	}

	result, err := m.Translate(context.Background(), req)
	if err != nil {
		t.Fatalf("MockProvider.Translate failed: %v", err)
	}

	if result[0] != "Hola" {
		t.Errorf("Expected 'Hola', got %q", result[0])
	}

	if result[1] != "[es:Unknown text]" {
		t.Errorf("Expected '[es:Unknown text]', got %q", result[1])
	}

	if m.CallCount != 1 {
		t.Errorf("Expected CallCount 1, got %d", m.CallCount)
	}
}
