// Package client implements the client half of the translation pipeline:
// language preference state, the debounced batching translator, and the
// GlobalTranslator that live-translates an observed document.
package client

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ZaguanLabs/livetl"
	"github.com/ZaguanLabs/livetl/cache"
)

// languageStoreKey is the persistent-store key for the current language.
const languageStoreKey = "livetl.language"

// ChangeEvent describes a preference change delivered to subscribers.
type ChangeEvent struct {
	Previous string
	Current  string
	Version  uint64
	// Forced marks a retranslation trigger: the language did not change but
	// a full re-scan is required.
	Forced bool
}

// PrefsConfig configures the preference state.
type PrefsConfig struct {
	// DefaultLanguage is the fallback, normally livetl.DefaultLanguage.
	DefaultLanguage string

	// ServerLanguage is the user profile language supplied by the server,
	// the highest-priority initial value.
	ServerLanguage string

	// LocaleHint is the environment-reported locale, consulted after any
	// persisted preference.
	LocaleHint string

	// Store persists the preference across sessions. May be nil.
	Store cache.Store

	// ProfileSync pushes a changed preference to the user profile store,
	// best-effort: failures are ignored since local persistence is
	// authoritative.
	ProfileSync func(ctx context.Context, lang string) error

	Log zerolog.Logger
}

// Prefs is the per-session language preference: the current language, a
// busy flag surfaced to the UI while a translation pass runs, and a
// monotonic version that signals "a full re-translation is required."
//
// Construct one per page session and share it by reference; the engine has
// no package-level preference state.
type Prefs struct {
	defaultLang string
	store       cache.Store
	profileSync func(ctx context.Context, lang string) error
	log         zerolog.Logger

	mu          sync.Mutex
	current     string
	version     uint64
	translating bool
	subs        []func(ChangeEvent)
}

// NewPrefs creates the preference state. The initial language is resolved
// in fixed priority order: server-supplied value, persisted value,
// environment locale, default. Unsupported candidates fall through to the
// next source.
func NewPrefs(cfg PrefsConfig) *Prefs {
	defaultLang := livetl.Normalize(cfg.DefaultLanguage)
	if cfg.DefaultLanguage == "" {
		defaultLang = livetl.DefaultLanguage
	}

	p := &Prefs{
		defaultLang: defaultLang,
		store:       cfg.Store,
		profileSync: cfg.ProfileSync,
		log:         cfg.Log,
	}
	p.current = p.resolveInitial(cfg)
	return p
}

func (p *Prefs) resolveInitial(cfg PrefsConfig) string {
	if code := livetl.Normalize(cfg.ServerLanguage); cfg.ServerLanguage != "" && livetl.IsSupported(code) {
		return code
	}
	if p.store != nil {
		if persisted, ok := p.store.Get(languageStoreKey); ok {
			if code := livetl.Normalize(persisted); livetl.IsSupported(code) {
				return code
			}
		}
	}
	if code := livetl.Normalize(cfg.LocaleHint); cfg.LocaleHint != "" && livetl.IsSupported(code) {
		return code
	}
	return p.defaultLang
}

// Current returns the current language.
func (p *Prefs) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// DefaultLanguage returns the configured default.
func (p *Prefs) DefaultLanguage() string {
	return p.defaultLang
}

// Version returns the current translation version. It increases on every
// language change and retranslation trigger.
func (p *Prefs) Version() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// IsTranslating reports whether a translation pass is in flight.
func (p *Prefs) IsTranslating() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.translating
}

// SetTranslating flips the busy flag. The GlobalTranslator sets it for the
// duration of an apply and always clears it, success or not.
func (p *Prefs) SetTranslating(busy bool) {
	p.mu.Lock()
	p.translating = busy
	p.mu.Unlock()
}

// Subscribe registers a callback for preference changes and retranslation
// triggers. Callbacks run outside the preference lock.
func (p *Prefs) Subscribe(fn func(ChangeEvent)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// SetLanguage switches the current language. Unsupported codes fall back to
// the default with a warning rather than failing. Setting the language
// already current is a no-op. A real change persists locally, syncs the
// user profile best-effort, bumps the version, and notifies subscribers.
func (p *Prefs) SetLanguage(code string) {
	normalized := livetl.Normalize(code)
	if !livetl.IsSupported(normalized) {
		p.log.Warn().Str("code", code).Str("fallback", p.defaultLang).
			Msg("unsupported language, falling back to default")
		normalized = p.defaultLang
	}

	p.mu.Lock()
	if normalized == p.current {
		p.mu.Unlock()
		return
	}
	previous := p.current
	p.current = normalized
	p.version++
	ev := ChangeEvent{Previous: previous, Current: normalized, Version: p.version}
	subs := make([]func(ChangeEvent), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.Set(languageStoreKey, normalized); err != nil {
			p.log.Warn().Err(err).Msg("persisting language preference failed")
		}
	}
	if p.profileSync != nil {
		go func() {
			// Local persistence is authoritative; a failed profile sync is
			// silently dropped.
			_ = p.profileSync(context.Background(), normalized)
		}()
	}

	for _, fn := range subs {
		fn(ev)
	}
}

// TriggerRetranslation bumps the version without changing the language,
// forcing subscribers to run a full re-scan. Used after bulk content
// changes.
func (p *Prefs) TriggerRetranslation() {
	p.mu.Lock()
	p.version++
	ev := ChangeEvent{Previous: p.current, Current: p.current, Version: p.version, Forced: true}
	subs := make([]func(ChangeEvent), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
