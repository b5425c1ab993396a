package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaguanLabs/livetl"
	"github.com/ZaguanLabs/livetl/cache"
	"github.com/ZaguanLabs/livetl/provider"
)

// DefaultDebounceWindow is how long the batcher waits for more requests
// before flushing.
const DefaultDebounceWindow = 50 * time.Millisecond

// pendingRequest is one queued translation awaiting a flush. Its done
// channel always receives exactly one value; failures deliver the original
// text.
type pendingRequest struct {
	text       string
	targetLang string
	done       chan string
}

// BatcherConfig configures the batching translator.
type BatcherConfig struct {
	Window     time.Duration // debounce window (default DefaultDebounceWindow)
	MaxBatch   int           // max texts per provider call (default livetl.MaxBatchSize)
	SourceLang string        // source language when known; "" lets the provider detect
	Log        zerolog.Logger
}

// Batcher coalesces individual translation requests into batched provider
// calls behind a short debounce window, deduplicating against the two-tier
// cache.
//
// Every request settles: cache hits, empty texts, and same-language
// requests resolve immediately; everything else resolves when its chunk's
// provider call completes, with the original text on any failure.
type Batcher struct {
	adapter    *provider.Adapter
	cache      *cache.Tiered
	window     time.Duration
	maxBatch   int
	sourceLang string
	log        zerolog.Logger

	mu      sync.Mutex
	pending []*pendingRequest
	// timerSet guards the single scheduled flush; a swap clears it so
	// arrivals during a flush start a fresh cycle.
	timerSet bool
}

// NewBatcher creates a batching translator over an adapter and client cache.
func NewBatcher(adapter *provider.Adapter, tiered *cache.Tiered, cfg BatcherConfig) *Batcher {
	window := cfg.Window
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = livetl.MaxBatchSize
	}
	// "" means provider auto-detection and must survive normalization.
	sourceLang := cfg.SourceLang
	if sourceLang != "" {
		sourceLang = livetl.Normalize(sourceLang)
	}
	return &Batcher{
		adapter:    adapter,
		cache:      tiered,
		window:     window,
		maxBatch:   maxBatch,
		sourceLang: sourceLang,
		log:        cfg.Log,
	}
}

// Cache exposes the underlying client cache.
func (b *Batcher) Cache() *cache.Tiered {
	return b.cache
}

// Cached returns the cached translation of text into targetLang, if any.
func (b *Batcher) Cached(text, targetLang string) (string, bool) {
	return b.cache.Get(text, livetl.Normalize(targetLang))
}

// Translate translates one text, blocking until its batch settles or ctx is
// done. It never returns an error: any failure yields the original text.
func (b *Batcher) Translate(ctx context.Context, text, targetLang string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	target := livetl.Normalize(targetLang)
	if b.sourceLang != "" && target == b.sourceLang {
		return text
	}
	if cached, ok := b.cache.Get(text, target); ok {
		return cached
	}

	req := &pendingRequest{
		text:       text,
		targetLang: target,
		done:       make(chan string, 1),
	}

	b.mu.Lock()
	b.pending = append(b.pending, req)
	if !b.timerSet {
		b.timerSet = true
		time.AfterFunc(b.window, b.flush)
	}
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		return text
	case result := <-req.done:
		return result
	}
}

// flush swaps out the whole pending queue and processes it. Requests queued
// during processing start a fresh queue and a fresh timer; nothing is
// merged into an in-flight flush.
func (b *Batcher) flush() {
	b.mu.Lock()
	queue := b.pending
	b.pending = nil
	b.timerSet = false
	b.mu.Unlock()

	if len(queue) == 0 {
		return
	}

	// Group by target language.
	byLang := make(map[string][]*pendingRequest)
	for _, req := range queue {
		byLang[req.targetLang] = append(byLang[req.targetLang], req)
	}

	var wg sync.WaitGroup
	for lang, reqs := range byLang {
		// Deduplicate by text; several requests can ride one provider slot.
		byText := make(map[string][]*pendingRequest)
		var unique []string
		for _, req := range reqs {
			if _, seen := byText[req.text]; !seen {
				unique = append(unique, req.text)
			}
			byText[req.text] = append(byText[req.text], req)
		}

		// Chunks dispatch and settle independently; order across chunks is
		// not guaranteed, but every request in a chunk settles with it.
		for start := 0; start < len(unique); start += b.maxBatch {
			end := start + b.maxBatch
			if end > len(unique) {
				end = len(unique)
			}
			chunk := unique[start:end]

			wg.Add(1)
			go func(lang string, chunk []string) {
				defer wg.Done()
				b.flushChunk(lang, chunk, byText)
			}(lang, chunk)
		}
	}
	wg.Wait()
}

// flushChunk translates one chunk and settles its requests. The adapter is
// fail-open, so a provider failure settles everything with original text.
func (b *Batcher) flushChunk(lang string, chunk []string, byText map[string][]*pendingRequest) {
	results := b.adapter.TranslateBatch(context.Background(), chunk, b.sourceLang, lang)

	for i, text := range chunk {
		translated := text
		if i < len(results) && results[i] != "" {
			translated = results[i]
		}
		if translated != text {
			b.cache.Set(text, lang, translated)
		}
		for _, req := range byText[text] {
			req.done <- translated
		}
	}
}

// TranslateBatch translates texts for a whole-page scan, bypassing the
// debounce queue: cached texts are served locally, the uncached remainder
// goes out in one pass, and the result preserves input length and order.
// Total failure returns the input unchanged.
func (b *Batcher) TranslateBatch(ctx context.Context, texts []string, targetLang string) []string {
	if len(texts) == 0 {
		return texts
	}
	target := livetl.Normalize(targetLang)
	if b.sourceLang != "" && target == b.sourceLang {
		return texts
	}

	cached := b.cache.GetBatch(texts, target)

	// Unique uncached, skipping empties.
	seen := make(map[string]bool)
	var uncached []string
	for _, text := range texts {
		if strings.TrimSpace(text) == "" || seen[text] {
			continue
		}
		if _, ok := cached[text]; ok {
			continue
		}
		seen[text] = true
		uncached = append(uncached, text)
	}

	translated := make(map[string]string, len(uncached))
	for start := 0; start < len(uncached); start += b.maxBatch {
		end := start + b.maxBatch
		if end > len(uncached) {
			end = len(uncached)
		}
		chunk := uncached[start:end]
		results := b.adapter.TranslateBatch(ctx, chunk, b.sourceLang, target)
		for i, text := range chunk {
			if i < len(results) && results[i] != "" {
				translated[text] = results[i]
				if results[i] != text {
					b.cache.Set(text, target, results[i])
				}
			}
		}
	}

	out := make([]string, len(texts))
	for i, text := range texts {
		switch {
		case cached[text] != "":
			out[i] = cached[text]
		case translated[text] != "":
			out[i] = translated[text]
		default:
			out[i] = text
		}
	}
	return out
}
