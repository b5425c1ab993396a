package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ZaguanLabs/livetl"
)

// OpenAIProvider implements Provider using OpenAI's API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	configured  bool
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey      string  // OpenAI API key; empty leaves the provider unconfigured
	Model       string  // Model to use (default: "gpt-4o-mini")
	Temperature float32 // Temperature for generation (default: 0.3)
	BaseURL     string  // Custom base URL (optional)
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		temperature: temperature,
		configured:  cfg.APIKey != "",
	}
}

// Configured reports whether the provider has a credential. An unconfigured
// provider fails every call; the Adapter turns that into input echo.
func (p *OpenAIProvider) Configured() bool {
	return p.configured
}

// Name identifies the backing service for cache entries.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// ModelVersion identifies the model for cache entries.
func (p *OpenAIProvider) ModelVersion() string {
	return p.model
}

// Translate translates a batch of texts using OpenAI.
func (p *OpenAIProvider) Translate(ctx context.Context, req TranslateRequest) ([]string, error) {
	if len(req.Texts) == 0 {
		return []string{}, nil
	}
	if !p.configured {
		return nil, &livetl.ConfigError{Message: "OpenAI API key is not set"}
	}

	systemPrompt := p.buildSystemPrompt(req)
	userMessage, _ := json.Marshal(req.Texts)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(userMessage)},
		},
		Temperature: p.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, &livetl.ProviderError{
			Message:   "OpenAI API call failed",
			Cause:     err,
			Retryable: isRetryableError(err),
		}
	}

	if len(resp.Choices) == 0 {
		return nil, &livetl.ProviderError{
			Message:   "no response from OpenAI",
			Retryable: true,
		}
	}

	return p.parseResponse(resp.Choices[0].Message.Content, len(req.Texts))
}

// Detect identifies the language of a text sample.
func (p *OpenAIProvider) Detect(ctx context.Context, text string) (string, error) {
	if !p.configured {
		return "", &livetl.ConfigError{Message: "OpenAI API key is not set"}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "Identify the language of the user's text. " +
					"Respond with a JSON object of the form {\"language\": \"<ISO 639-1 code>\"} and nothing else.",
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", &livetl.ProviderError{
			Message:   "OpenAI detection call failed",
			Cause:     err,
			Retryable: isRetryableError(err),
		}
	}

	if len(resp.Choices) == 0 {
		return "", &livetl.ProviderError{Message: "no response from OpenAI", Retryable: true}
	}

	var result struct {
		Language string `json:"language"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil || result.Language == "" {
		return "", &livetl.ProviderError{Message: "invalid detection response format", Retryable: false}
	}

	return livetl.Normalize(result.Language), nil
}

func (p *OpenAIProvider) buildSystemPrompt(req TranslateRequest) string {
	targetName := livetl.LanguageName(req.TargetLang)

	var sb strings.Builder
	fmt.Fprintf(&sb, `# Role
You are an expert native translator. You translate community platform content (posts, comments, course material, UI strings) into %s with the fluency of a highly educated native speaker.

# Task
Translate the provided texts into idiomatic %s.`, targetName, targetName)

	if req.SourceLang != "" {
		fmt.Fprintf(&sb, "\nThe source language is %s.", livetl.LanguageName(req.SourceLang))
	} else {
		sb.WriteString("\nDetect the source language of each text yourself.")
	}

	sb.WriteString(`

# Style Guide
- **Natural Flow**: Avoid literal translations. Rephrase sentences to sound completely natural to a native speaker.
- **Idioms**: Never translate idioms literally. Replace them with natural equivalents.
- **Safety**: Do NOT translate usernames, @mentions, URLs, email addresses, code, or brand names. Keep them exactly as they appear.
- **Formatting**: Preserve meaningful whitespace and use idiomatic punctuation for the target language.

# Format
Return a valid JSON object with a single key "translations" containing an array of strings in the exact same order as the input.
Example: { "translations": ["translated string 1", "translated string 2"] }
Do NOT wrap the object in Markdown code blocks.`)

	return sb.String()
}

func (p *OpenAIProvider) parseResponse(content string, expectedCount int) ([]string, error) {
	// Try parsing as object first
	var objResult map[string]interface{}
	if err := json.Unmarshal([]byte(content), &objResult); err == nil {
		if translations, ok := objResult["translations"]; ok {
			if arr, ok := translations.([]interface{}); ok {
				return toStringSlice(arr, expectedCount)
			}
		}

		// Fallback: find first array value
		for _, v := range objResult {
			if arr, ok := v.([]interface{}); ok {
				return toStringSlice(arr, expectedCount)
			}
		}
	}

	// Try parsing as direct array
	var arrResult []interface{}
	if err := json.Unmarshal([]byte(content), &arrResult); err == nil {
		return toStringSlice(arrResult, expectedCount)
	}

	return nil, &livetl.ProviderError{
		Message:   "invalid response format from OpenAI",
		Retryable: false,
	}
}

func toStringSlice(arr []interface{}, expectedCount int) ([]string, error) {
	result := make([]string, len(arr))
	for i, v := range arr {
		if s, ok := v.(string); ok {
			result[i] = s
		} else {
			result[i] = fmt.Sprintf("%v", v)
		}
	}

	if len(result) != expectedCount {
		return nil, &livetl.CountMismatchError{
			Expected: expectedCount,
			Got:      len(result),
		}
	}

	return result, nil
}

func isRetryableError(err error) bool {
	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"rate limit",
		"timeout",
		"connection refused",
		"temporary",
		"503",
		"502",
		"429",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
