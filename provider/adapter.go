package provider

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ZaguanLabs/livetl"
)

// Adapter wraps a Provider with the engine's fail-open call surface.
//
// Every operation degrades to echoing its input: missing credentials,
// network errors, and malformed provider responses all return the original
// text rather than an error, so a broken translation backend can never block
// content delivery. Batch results always have the same length and order as
// their input, with empty/whitespace-only positions passed through untouched.
type Adapter struct {
	provider Provider // nil means no provider configured
	log      zerolog.Logger

	logOnceOne    sync.Once
	logOnceBatch  sync.Once
	logOnceDetect sync.Once
}

// NewAdapter creates a fail-open adapter over a provider. provider may be
// nil when no credential is configured.
func NewAdapter(p Provider, log zerolog.Logger) *Adapter {
	return &Adapter{provider: p, log: log}
}

// Configured reports whether a provider is available.
func (a *Adapter) Configured() bool {
	return a.provider != nil
}

// TranslateOne translates a single text. Empty or whitespace-only input,
// a missing provider, and provider failures all return the input unchanged.
func (a *Adapter) TranslateOne(ctx context.Context, text, sourceLang, targetLang string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if a.provider == nil {
		a.logOnceOne.Do(func() {
			a.log.Warn().Msg("no translation provider configured, returning source text")
		})
		return text
	}

	results, err := a.provider.Translate(ctx, TranslateRequest{
		Texts:      []string{text},
		TargetLang: livetl.ToProviderCode(targetLang, true),
		SourceLang: sourceCode(sourceLang),
	})
	if err != nil || len(results) != 1 {
		a.log.Warn().Err(err).Str("target", targetLang).Msg("translation failed, returning source text")
		return text
	}
	return results[0]
}

// TranslateBatch translates texts preserving length and order. Empty and
// whitespace-only entries are excluded from the provider call and reinserted
// at their positions. Any batch failure returns the entire input unchanged,
// never a shorter or misaligned result.
func (a *Adapter) TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) []string {
	if a.provider == nil && len(texts) > 0 {
		a.logOnceBatch.Do(func() {
			a.log.Warn().Msg("no translation provider configured, returning source texts")
		})
	}

	results, err := a.TranslateBatchStrict(ctx, texts, sourceLang, targetLang)
	if err != nil {
		a.log.Warn().Err(err).Int("batch", len(texts)).Str("target", targetLang).
			Msg("batch translation failed, returning source texts")
		return texts
	}
	return results
}

// TranslateBatchStrict is TranslateBatch with failure reporting, for callers
// that need to surface a fallback to their own clients (the HTTP boundary).
// On error the first return value is nil; on success it has the same length
// and order as texts with empty positions passed through.
func (a *Adapter) TranslateBatchStrict(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return texts, nil
	}
	if a.provider == nil {
		return nil, &livetl.ConfigError{Message: "no translation provider configured"}
	}

	// Partition out empty entries, remembering original positions.
	outbound := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		outbound = append(outbound, text)
		positions = append(positions, i)
	}
	if len(outbound) == 0 {
		return texts, nil
	}

	results, err := a.provider.Translate(ctx, TranslateRequest{
		Texts:      outbound,
		TargetLang: livetl.ToProviderCode(targetLang, true),
		SourceLang: sourceCode(sourceLang),
	})
	if err != nil {
		return nil, err
	}
	if len(results) != len(outbound) {
		return nil, &livetl.CountMismatchError{Expected: len(outbound), Got: len(results)}
	}

	merged := make([]string, len(texts))
	copy(merged, texts)
	for i, pos := range positions {
		merged[pos] = results[i]
	}
	return merged, nil
}

// DetectLanguage identifies the language of a text from a sample of its
// first characters. It returns "" on failure; callers assume the default
// language, never treat it as an error.
func (a *Adapter) DetectLanguage(ctx context.Context, text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || a.provider == nil {
		if a.provider == nil {
			a.logOnceDetect.Do(func() {
				a.log.Warn().Msg("no translation provider configured, skipping language detection")
			})
		}
		return ""
	}

	sample := trimmed
	if utf8.RuneCountInString(sample) > livetl.DetectSampleLength {
		sample = string([]rune(sample)[:livetl.DetectSampleLength])
	}

	code, err := a.provider.Detect(ctx, sample)
	if err != nil {
		a.log.Debug().Err(err).Msg("language detection failed")
		return ""
	}
	return livetl.Normalize(code)
}

// ProviderName identifies the wrapped backend for cache entries.
func (a *Adapter) ProviderName() string {
	if named, ok := a.provider.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "unknown"
}

// ProviderVersion identifies the wrapped backend's model for cache entries.
func (a *Adapter) ProviderVersion() string {
	if versioned, ok := a.provider.(interface{ ModelVersion() string }); ok {
		return versioned.ModelVersion()
	}
	return "unknown"
}

// sourceCode converts a source language to its provider code, keeping ""
// for auto-detection.
func sourceCode(sourceLang string) string {
	if sourceLang == "" {
		return ""
	}
	return livetl.ToProviderCode(sourceLang, false)
}
