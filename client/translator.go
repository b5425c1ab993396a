package client

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/ZaguanLabs/livetl"
	"github.com/ZaguanLabs/livetl/dom"
)

const (
	// DefaultInitialRescanDelay is the gap before the second pass of a
	// first activation, catching late-rendered content.
	DefaultInitialRescanDelay = 500 * time.Millisecond

	// DefaultRouteRescanDelay is how long after a route change the full
	// document is re-scanned, giving the rendering layer time to settle.
	DefaultRouteRescanDelay = 300 * time.Millisecond

	// DefaultApplyTimeout bounds the provider round-trip of one apply pass.
	DefaultApplyTimeout = 30 * time.Second
)

// textState tracks one translated text node.
type textState struct {
	node     *html.Node
	lang     string // language the node currently shows
	original string // pre-translation text
}

// attrKey identifies one translated attribute of one element.
type attrKey struct {
	id   dom.NodeID
	attr string
}

// attrState tracks one translated attribute value.
type attrState struct {
	node     *html.Node
	lang     string
	original string
}

// Config configures the GlobalTranslator.
type Config struct {
	InitialRescanDelay time.Duration
	RouteRescanDelay   time.Duration
	ApplyTimeout       time.Duration
	Log                zerolog.Logger
}

// GlobalTranslator live-translates an observed document. It watches the
// tree for mutations, extracts translatable targets, batches them through
// the Batcher, and writes translations back in place.
//
// The rendering layer owns the tree; the translator is a secondary writer.
// Every write it performs is flagged in a one-shot self-caused set so its
// own observer can tell its mutations from the framework's, which guards
// against translate-observe-translate loops. When the framework overwrites
// a translation back to source text during reconciliation, the translator
// self-heals by reapplying the cached translation.
//
// Construct one per page session; all state is instance-owned.
type GlobalTranslator struct {
	doc     *dom.Document
	prefs   *Prefs
	batcher *Batcher
	log     zerolog.Logger

	initialRescanDelay time.Duration
	routeRescanDelay   time.Duration
	applyTimeout       time.Duration

	mu        sync.Mutex
	observer  *dom.Observer
	started   bool
	activated bool // has ever entered a non-default language

	// selfCaused counts pending self-caused mutations per node. Each
	// observed record consumes exactly one count: never a persistent
	// exclusion, never a leak.
	selfCaused map[dom.NodeID]int

	texts map[dom.NodeID]*textState
	attrs map[attrKey]*attrState

	timers []*time.Timer
}

// NewGlobalTranslator creates a translator over a document, preference
// state, and batcher. Call Start to begin observing.
func NewGlobalTranslator(doc *dom.Document, prefs *Prefs, batcher *Batcher, cfg Config) *GlobalTranslator {
	initialDelay := cfg.InitialRescanDelay
	if initialDelay <= 0 {
		initialDelay = DefaultInitialRescanDelay
	}
	routeDelay := cfg.RouteRescanDelay
	if routeDelay <= 0 {
		routeDelay = DefaultRouteRescanDelay
	}
	applyTimeout := cfg.ApplyTimeout
	if applyTimeout <= 0 {
		applyTimeout = DefaultApplyTimeout
	}

	return &GlobalTranslator{
		doc:                doc,
		prefs:              prefs,
		batcher:            batcher,
		log:                cfg.Log,
		initialRescanDelay: initialDelay,
		routeRescanDelay:   routeDelay,
		applyTimeout:       applyTimeout,
		selfCaused:         make(map[dom.NodeID]int),
		texts:              make(map[dom.NodeID]*textState),
		attrs:              make(map[attrKey]*attrState),
	}
}

// Start registers the mutation observer and preference subscription. If the
// current language is already non-default, the first activation runs: a
// full scan now and a second one after a short delay for late-rendered
// content.
func (g *GlobalTranslator) Start() {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return
	}
	g.started = true
	g.observer = g.doc.Observe(dom.ObserverOptions{
		ChildList:       true,
		CharacterData:   true,
		Attributes:      true,
		AttributeFilter: livetl.TranslatableAttributes,
	}, g.handleMutations)
	g.mu.Unlock()

	g.prefs.Subscribe(g.onPreferenceChange)

	if cur := g.prefs.Current(); cur != g.prefs.DefaultLanguage() {
		g.firstActivation(cur)
	}
}

// Stop disconnects the observer and cancels scheduled scans. Translated
// content and markers are left as they are.
func (g *GlobalTranslator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return
	}
	g.started = false
	g.observer.Disconnect()
	for _, t := range g.timers {
		t.Stop()
	}
	g.timers = nil
}

// RouteChanged schedules a delayed full re-scan after in-layout navigation,
// since the framework may have swapped large subtrees. No-op in the default
// language.
func (g *GlobalTranslator) RouteChanged() {
	if g.prefs.Current() == g.prefs.DefaultLanguage() {
		return
	}
	g.schedule(g.routeRescanDelay, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.scanLocked()
	})
}

// onPreferenceChange drives the language-transition state machine.
func (g *GlobalTranslator) onPreferenceChange(ev ChangeEvent) {
	def := g.prefs.DefaultLanguage()

	if ev.Forced {
		// Retranslation trigger: same language, full re-scan required.
		if ev.Current != def {
			g.mu.Lock()
			defer g.mu.Unlock()
			g.scanLocked()
		}
		return
	}
	if ev.Current == ev.Previous {
		return
	}

	switch {
	case ev.Current == def:
		// Back to the original language: restore everything and forget it.
		g.mu.Lock()
		g.revertAllLocked(true)
		g.setRootLanguageLocked(def)
		g.mu.Unlock()

	case !g.isActivated():
		g.firstActivation(ev.Current)

	case ev.Previous == def:
		g.mu.Lock()
		g.setRootLanguageLocked(ev.Current)
		g.scanLocked()
		g.mu.Unlock()

	default:
		// Non-default to non-default: every marked node goes back to its
		// stored original first, so the new language translates from
		// source, never from the previous translation.
		g.mu.Lock()
		g.revertAllLocked(false)
		g.setRootLanguageLocked(ev.Current)
		g.scanLocked()
		g.mu.Unlock()
	}
}

func (g *GlobalTranslator) isActivated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activated
}

// firstActivation runs the initial scan twice: once immediately, once after
// a short delay to catch content rendered after first paint.
func (g *GlobalTranslator) firstActivation(lang string) {
	g.mu.Lock()
	g.activated = true
	g.setRootLanguageLocked(lang)
	g.scanLocked()
	g.mu.Unlock()

	g.schedule(g.initialRescanDelay, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.scanLocked()
	})
}

func (g *GlobalTranslator) schedule(d time.Duration, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return
	}
	g.timers = append(g.timers, time.AfterFunc(d, fn))
}

// scanLocked extracts targets from the whole document and applies their
// translations. Callers hold g.mu.
func (g *GlobalTranslator) scanLocked() {
	lang := g.prefs.Current()
	if lang == g.prefs.DefaultLanguage() {
		return
	}
	targets := g.extractTargets(g.doc.Body(), lang)
	g.applyLocked(targets, lang)
}

// applyLocked translates a set of targets and writes the results into the
// document. Targets are deduplicated by original text; targets whose
// translation is missing or identical to the original are left untouched.
// The busy flag is always cleared, and a language switch during the
// provider round-trip discards the now-stale results instead of writing
// them.
func (g *GlobalTranslator) applyLocked(targets []Target, lang string) {
	if len(targets) == 0 {
		return
	}
	version := g.prefs.Version()

	g.prefs.SetTranslating(true)
	defer g.prefs.SetTranslating(false)

	// The provider sees trimmed text; surrounding whitespace is restored on
	// write.
	seen := make(map[string]bool, len(targets))
	var unique []string
	for _, t := range targets {
		key := strings.TrimSpace(t.Original)
		if !seen[key] {
			seen[key] = true
			unique = append(unique, key)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.applyTimeout)
	defer cancel()
	results := g.batcher.TranslateBatch(ctx, unique, lang)
	if len(results) != len(unique) {
		g.log.Error().Int("want", len(unique)).Int("got", len(results)).
			Msg("translation batch result misaligned, skipping apply")
		return
	}

	if g.prefs.Current() != lang || g.prefs.Version() != version {
		g.log.Debug().Str("lang", lang).Msg("language changed during apply, discarding results")
		return
	}

	translations := make(map[string]string, len(unique))
	for i, original := range unique {
		translations[original] = results[i]
	}

	applied := 0
	for _, t := range targets {
		source := strings.TrimSpace(t.Original)
		translated, ok := translations[source]
		if !ok || translated == "" || translated == source {
			continue
		}
		switch t.Kind {
		case livetl.KindText:
			g.writeTextLocked(t.Node, t.Original, translated, lang)
		case livetl.KindAttribute:
			g.writeAttrLocked(t.Node, t.Attribute, t.Original, translated, lang)
		}
		applied++
	}

	g.log.Debug().Int("targets", len(targets)).Int("applied", applied).
		Str("lang", lang).Msg("translation pass applied")
}

// rewrapWhitespace restores the original's leading and trailing whitespace
// around a translated replacement, so text nodes adjacent to inline
// elements keep their separating space.
func rewrapWhitespace(original, translated string) string {
	lead := original[:len(original)-len(strings.TrimLeftFunc(original, unicode.IsSpace))]
	trail := original[len(strings.TrimRightFunc(original, unicode.IsSpace)):]
	return lead + translated + trail
}

// writeTextLocked overwrites a text node with its translation, storing the
// original on the parent element first (first write only) and flagging the
// mutation as self-caused before performing it.
func (g *GlobalTranslator) writeTextLocked(n *html.Node, original, translated, lang string) {
	id := g.doc.ID(n)

	if n.Parent != nil {
		if _, ok := dom.Attr(n.Parent, livetl.OriginalTextAttr); !ok {
			g.doc.SetAttr(n.Parent, livetl.OriginalTextAttr, original)
		}
	}

	g.selfCaused[id]++
	g.doc.SetText(n, rewrapWhitespace(original, translated))
	g.texts[id] = &textState{node: n, lang: lang, original: original}
}

// writeAttrLocked overwrites an attribute with its translation, mirroring
// writeTextLocked's marker discipline.
func (g *GlobalTranslator) writeAttrLocked(n *html.Node, attr, original, translated, lang string) {
	id := g.doc.ID(n)
	marker := livetl.OriginalAttrPrefix + attr
	if _, ok := dom.Attr(n, marker); !ok {
		g.doc.SetAttr(n, marker, original)
	}

	g.selfCaused[id]++
	g.doc.SetAttr(n, attr, translated)
	g.attrs[attrKey{id: id, attr: attr}] = &attrState{node: n, lang: lang, original: original}
}

// revertAllLocked restores every translated node and attribute to its
// stored original. With clearMarkers the side tables and document markers
// are dropped too (switch back to default); without, state is kept so a
// following re-scan translates the originals into the new language. Every
// mutated node is flagged self-caused individually.
func (g *GlobalTranslator) revertAllLocked(clearMarkers bool) {
	for id, st := range g.texts {
		g.selfCaused[id]++
		g.doc.SetText(st.node, st.original)
		if clearMarkers {
			delete(g.texts, id)
			if st.node.Parent != nil {
				g.doc.RemoveAttr(st.node.Parent, livetl.OriginalTextAttr)
			}
		}
	}
	for key, st := range g.attrs {
		g.selfCaused[key.id]++
		g.doc.SetAttr(st.node, key.attr, st.original)
		if clearMarkers {
			delete(g.attrs, key)
			g.doc.RemoveAttr(st.node, livetl.OriginalAttrPrefix+key.attr)
		}
	}
}

// setRootLanguageLocked reflects the current language on the root element's
// lang and dir attributes. Neither is observed (dir/lang are outside the
// attribute filter), so no self-caused flag is needed.
func (g *GlobalTranslator) setRootLanguageLocked(lang string) {
	if sel := g.doc.Selection("html"); len(sel.Nodes) > 0 {
		g.doc.SetAttr(sel.Nodes[0], "lang", lang)
		g.doc.SetAttr(sel.Nodes[0], "dir", livetl.Direction(lang))
	}
}

// handleMutations is the observer callback: it consumes self-caused flags,
// scans inserted subtrees, heals reconciliation conflicts, and queues new
// text and attribute targets.
func (g *GlobalTranslator) handleMutations(records []dom.MutationRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.prefs.Current()
	def := g.prefs.DefaultLanguage()

	var fresh []Target
	for _, rec := range records {
		// One-shot self-caused consumption: exactly one observed mutation
		// per flagged write is swallowed.
		if c := g.selfCaused[rec.TargetID]; c > 0 {
			if c == 1 {
				delete(g.selfCaused, rec.TargetID)
			} else {
				g.selfCaused[rec.TargetID] = c - 1
			}
			continue
		}

		switch rec.Kind {
		case dom.ChildList:
			for _, removed := range rec.Removed {
				g.forgetSubtreeLocked(removed)
			}
			if cur != def {
				for _, added := range rec.Added {
					if excludedByAncestry(added) {
						continue
					}
					fresh = append(fresh, g.extractTargets(added, cur)...)
				}
			}

		case dom.CharacterData:
			if t, ok := g.characterDataTarget(rec, cur, def); ok {
				fresh = append(fresh, t)
			}

		case dom.Attributes:
			if cur == def || excludedByAncestry(rec.Target) {
				continue
			}
			if t, ok := g.attributeTarget(rec.Target, rec.AttributeName, cur); ok {
				fresh = append(fresh, t)
			}
		}
	}

	if len(fresh) > 0 && cur != def {
		g.applyLocked(fresh, cur)
	}
}

// characterDataTarget inspects an unflagged text change. Three cases: the
// rendering layer reverted a translation back to source (self-heal from
// cache), the content genuinely changed (retarget from the new text), or
// the node is simply new translatable text.
func (g *GlobalTranslator) characterDataTarget(rec dom.MutationRecord, cur, def string) (Target, bool) {
	n := rec.Target
	st := g.texts[rec.TargetID]

	if st != nil {
		if strings.TrimSpace(n.Data) == strings.TrimSpace(st.original) {
			// Reconciliation conflict: the framework overwrote our
			// translation with the source text. Reapply from cache, but
			// only when the cached value is still in the current language;
			// a fast double language switch must not resurrect a stale
			// translation.
			if cur != def && st.lang == cur {
				if cached, ok := g.batcher.Cached(strings.TrimSpace(st.original), cur); ok {
					g.selfCaused[rec.TargetID]++
					g.doc.SetText(n, rewrapWhitespace(st.original, cached))
					return Target{}, false
				}
			}
			if cur == def {
				delete(g.texts, rec.TargetID)
				return Target{}, false
			}
			return Target{Kind: livetl.KindText, Node: n, Original: st.original}, true
		}

		// Content edited: the old original no longer applies.
		delete(g.texts, rec.TargetID)
		if n.Parent != nil {
			g.doc.RemoveAttr(n.Parent, livetl.OriginalTextAttr)
		}
	}

	if cur == def {
		return Target{}, false
	}
	parent := n.Parent
	if parent != nil && excludedByAncestry(parent) {
		return Target{}, false
	}
	return g.textTarget(n, cur)
}

// forgetSubtreeLocked drops all per-node state for a removed subtree and
// evicts its identities from the document's table.
func (g *GlobalTranslator) forgetSubtreeLocked(root *html.Node) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		id := g.doc.ID(n)
		delete(g.texts, id)
		delete(g.selfCaused, id)
		for key := range g.attrs {
			if key.id == id {
				delete(g.attrs, key)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	g.doc.Evict(root)
}
