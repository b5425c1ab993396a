package client

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/ZaguanLabs/livetl"
	"github.com/ZaguanLabs/livetl/cache"
	"github.com/ZaguanLabs/livetl/dom"
	"github.com/ZaguanLabs/livetl/provider"
)

// slowTranslateProvider delays every call, leaving a window for concurrent
// preference changes.
type slowTranslateProvider struct {
	inner *provider.MockProvider
	delay time.Duration
}

func (p *slowTranslateProvider) Translate(ctx context.Context, req provider.TranslateRequest) ([]string, error) {
	time.Sleep(p.delay)
	return p.inner.Translate(ctx, req)
}

func (p *slowTranslateProvider) Detect(ctx context.Context, text string) (string, error) {
	return p.inner.Detect(ctx, text)
}

func newTestTranslator(t *testing.T, content, serverLang string, mock *provider.MockProvider) (*GlobalTranslator, *dom.Document, *Prefs) {
	t.Helper()
	doc, err := dom.Parse(content)
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}
	prefs := NewPrefs(PrefsConfig{ServerLanguage: serverLang})
	adapter := provider.NewAdapter(mock, zerolog.Nop())
	batcher := NewBatcher(adapter, cache.NewTiered(cache.NewInMemoryStore(0), zerolog.Nop()), BatcherConfig{})
	gt := NewGlobalTranslator(doc, prefs, batcher, Config{
		InitialRescanDelay: time.Hour,
		RouteRescanDelay:   time.Hour,
	})
	return gt, doc, prefs
}

func firstTextNode(t *testing.T, doc *dom.Document, selector string) *html.Node {
	t.Helper()
	sel := doc.Selection(selector)
	if len(sel.Nodes) == 0 || sel.Nodes[0].FirstChild == nil {
		t.Fatalf("No text node under %q", selector)
	}
	return sel.Nodes[0].FirstChild
}

func renderOf(t *testing.T, doc *dom.Document) string {
	t.Helper()
	out, err := doc.Render()
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return out
}

func TestGlobalTranslator_FirstActivation(t *testing.T) {
	mock := provider.NewMockProvider()
	gt, doc, _ := newTestTranslator(t, "<html><body><p>Hello world</p></body></html>", "es", mock)
	gt.Start()
	defer gt.Stop()

	out := renderOf(t, doc)
	if !strings.Contains(out, "Hola mundo") {
		t.Errorf("Expected translated text in document, got: %s", out)
	}

	p := doc.Selection("p").Nodes[0]
	if original, ok := dom.Attr(p, livetl.OriginalTextAttr); !ok || original != "Hello world" {
		t.Errorf("Expected original-text marker Hello world, got %q (ok=%v)", original, ok)
	}

	root := doc.Selection("html").Nodes[0]
	if lang, _ := dom.Attr(root, "lang"); lang != "es" {
		t.Errorf("Expected root lang es, got %q", lang)
	}
	if dir, _ := dom.Attr(root, "dir"); dir != "ltr" {
		t.Errorf("Expected root dir ltr, got %q", dir)
	}
}

func TestGlobalTranslator_DefaultLanguageIsIdle(t *testing.T) {
	mock := provider.NewMockProvider()
	gt, doc, _ := newTestTranslator(t, "<html><body><p>Hello world</p></body></html>", "", mock)
	gt.Start()
	defer gt.Stop()

	if mock.CallCount != 0 {
		t.Errorf("Default language should not translate, got %d provider calls", mock.CallCount)
	}
	if out := renderOf(t, doc); !strings.Contains(out, "Hello world") {
		t.Errorf("Document should be untouched, got: %s", out)
	}
}

func TestGlobalTranslator_RescanIsIdempotent(t *testing.T) {
	mock := provider.NewMockProvider()
	gt, _, prefs := newTestTranslator(t, "<html><body><p>Hello world</p></body></html>", "es", mock)
	gt.Start()
	defer gt.Stop()

	calls := mock.CallCount
	prefs.TriggerRetranslation()

	if mock.CallCount != calls {
		t.Errorf("Re-scan of already-translated content should not call the provider, got %d extra calls",
			mock.CallCount-calls)
	}
}

func TestGlobalTranslator_RevertToDefault(t *testing.T) {
	mock := provider.NewMockProvider()
	gt, doc, prefs := newTestTranslator(t, "<html><body><p>Hello world</p></body></html>", "es", mock)
	gt.Start()
	defer gt.Stop()

	prefs.SetLanguage("en")

	out := renderOf(t, doc)
	if !strings.Contains(out, "Hello world") || strings.Contains(out, "Hola") {
		t.Errorf("Expected original text restored, got: %s", out)
	}
	p := doc.Selection("p").Nodes[0]
	if _, ok := dom.Attr(p, livetl.OriginalTextAttr); ok {
		t.Error("Original-text marker should be removed on revert")
	}
	root := doc.Selection("html").Nodes[0]
	if lang, _ := dom.Attr(root, "lang"); lang != "en" {
		t.Errorf("Expected root lang en, got %q", lang)
	}

	gt.mu.Lock()
	remaining := len(gt.texts)
	gt.mu.Unlock()
	if remaining != 0 {
		t.Errorf("Expected tracked texts cleared, got %d", remaining)
	}
}

func TestGlobalTranslator_SwitchTranslatesFromSource(t *testing.T) {
	mock := provider.NewMockProvider()
	gt, doc, prefs := newTestTranslator(t, "<html><body><p>Hello world</p></body></html>", "es", mock)
	gt.Start()
	defer gt.Stop()

	prefs.SetLanguage("fr")

	// The provider must see the stored source text, not the Spanish
	// translation that was on screen.
	if mock.LastRequest == nil || mock.LastRequest.Texts[0] != "Hello world" {
		t.Errorf("Expected source text sent to provider, got %+v", mock.LastRequest)
	}
	if out := renderOf(t, doc); !strings.Contains(out, "[fr:Hello world]") {
		t.Errorf("Expected French translation applied, got: %s", out)
	}
	root := doc.Selection("html").Nodes[0]
	if lang, _ := dom.Attr(root, "lang"); lang != "fr" {
		t.Errorf("Expected root lang fr, got %q", lang)
	}
}

func TestGlobalTranslator_PreservesWhitespaceAroundInlineElements(t *testing.T) {
	mock := provider.NewMockProvider()
	gt, doc, prefs := newTestTranslator(t, "<html><body><p>Hello <b>world</b></p></body></html>", "es", mock)
	gt.Start()
	defer gt.Stop()

	textNode := firstTextNode(t, doc, "p")
	if textNode.Data != "Hola " {
		t.Errorf("Expected translation to keep the trailing space, got %q", textNode.Data)
	}
	p := doc.Selection("p").Nodes[0]
	if original, _ := dom.Attr(p, livetl.OriginalTextAttr); original != "Hello " {
		t.Errorf("Expected marker to hold the exact live text, got %q", original)
	}

	prefs.SetLanguage("en")

	if textNode.Data != "Hello " {
		t.Errorf("Expected exact pre-translation value restored, got %q", textNode.Data)
	}
	if out := renderOf(t, doc); !strings.Contains(out, "<p>Hello <b>world</b></p>") {
		t.Errorf("Expected original markup restored, got: %s", out)
	}
}

func TestGlobalTranslator_OptOutSubtrees(t *testing.T) {
	content := `<html><body>
		<div data-no-translate><p>Hello world</p></div>
		<div class="notranslate"><p>Hello</p></div>
		<script>Hello world</script>
		<p id="plain">Hi there</p>
	</body></html>`
	mock := provider.NewMockProvider()
	gt, doc, _ := newTestTranslator(t, content, "es", mock)
	gt.Start()
	defer gt.Stop()

	out := renderOf(t, doc)
	if !strings.Contains(out, "Hello world") {
		t.Errorf("Opted-out subtree should be untouched, got: %s", out)
	}
	if !strings.Contains(out, "<p>Hello</p>") {
		t.Errorf("notranslate class subtree should be untouched, got: %s", out)
	}
	if !strings.Contains(out, "[es:Hi there]") {
		t.Errorf("Eligible text should be translated, got: %s", out)
	}
}

func TestGlobalTranslator_AttributesTranslated(t *testing.T) {
	content := `<html><body><img src="x.png" alt="Hello world"><span title="Hi">s</span></body></html>`
	mock := provider.NewMockProvider()
	gt, doc, _ := newTestTranslator(t, content, "es", mock)
	gt.Start()
	defer gt.Stop()

	img := doc.Selection("img").Nodes[0]
	if alt, _ := dom.Attr(img, "alt"); alt != "Hola mundo" {
		t.Errorf("Expected translated alt, got %q", alt)
	}
	if original, ok := dom.Attr(img, livetl.OriginalAttrPrefix+"alt"); !ok || original != "Hello world" {
		t.Errorf("Expected original-alt marker, got %q (ok=%v)", original, ok)
	}

	span := doc.Selection("span").Nodes[0]
	if title, _ := dom.Attr(span, "title"); title != "Salut" {
		t.Errorf("Expected translated title, got %q", title)
	}
}

func TestGlobalTranslator_SelfCausedMutationsConsumed(t *testing.T) {
	mock := provider.NewMockProvider()
	gt, doc, _ := newTestTranslator(t, "<html><body><p>Hello world</p></body></html>", "es", mock)
	gt.Start()
	defer gt.Stop()

	calls := mock.CallCount
	doc.Deliver()

	if mock.CallCount != calls {
		t.Errorf("Observing our own writes should not trigger translation, got %d extra calls",
			mock.CallCount-calls)
	}
	gt.mu.Lock()
	pending := len(gt.selfCaused)
	gt.mu.Unlock()
	if pending != 0 {
		t.Errorf("Expected all self-caused flags consumed, %d left", pending)
	}
}

func TestGlobalTranslator_ReconciliationSelfHeal(t *testing.T) {
	mock := provider.NewMockProvider()
	gt, doc, _ := newTestTranslator(t, "<html><body><p>Hello world</p></body></html>", "es", mock)
	gt.Start()
	defer gt.Stop()
	doc.Deliver()

	// The rendering layer reconciles and stomps the translation with the
	// source text.
	textNode := firstTextNode(t, doc, "p")
	doc.SetText(textNode, "Hello world")
	doc.Deliver()

	if textNode.Data != "Hola mundo" {
		t.Errorf("Expected cached translation reapplied, got %q", textNode.Data)
	}
	if mock.CallCount != 1 {
		t.Errorf("Self-heal should come from cache, got %d provider calls", mock.CallCount)
	}
}

func TestGlobalTranslator_EditedContentRetranslates(t *testing.T) {
	mock := provider.NewMockProvider()
	gt, doc, _ := newTestTranslator(t, "<html><body><p>Hello world</p></body></html>", "es", mock)
	gt.Start()
	defer gt.Stop()
	doc.Deliver()

	textNode := firstTextNode(t, doc, "p")
	doc.SetText(textNode, "Good morning")
	doc.Deliver()

	if textNode.Data != "[es:Good morning]" {
		t.Errorf("Expected new content translated, got %q", textNode.Data)
	}
	p := doc.Selection("p").Nodes[0]
	if original, _ := dom.Attr(p, livetl.OriginalTextAttr); original != "Good morning" {
		t.Errorf("Expected marker updated to new source, got %q", original)
	}
	if mock.CallCount != 2 {
		t.Errorf("Expected a fresh provider call for edited content, got %d", mock.CallCount)
	}
}

func TestGlobalTranslator_AddedSubtreeTranslated(t *testing.T) {
	mock := provider.NewMockProvider()
	gt, doc, _ := newTestTranslator(t, "<html><body><p>Hello world</p></body></html>", "es", mock)
	gt.Start()
	defer gt.Stop()
	doc.Deliver()

	para := dom.NewElement("p")
	text := dom.NewText("Fresh content")
	doc.AppendChild(para, text)
	doc.AppendChild(doc.Body(), para)
	doc.Deliver()

	if text.Data != "[es:Fresh content]" {
		t.Errorf("Expected inserted text translated, got %q", text.Data)
	}
}

func TestGlobalTranslator_RemovedSubtreeForgotten(t *testing.T) {
	mock := provider.NewMockProvider()
	gt, doc, _ := newTestTranslator(t, "<html><body><p id=\"a\">Hello world</p><p id=\"b\">Hi there</p></body></html>", "es", mock)
	gt.Start()
	defer gt.Stop()
	doc.Deliver()

	gt.mu.Lock()
	before := len(gt.texts)
	gt.mu.Unlock()
	if before != 2 {
		t.Fatalf("Expected 2 tracked texts, got %d", before)
	}

	second := doc.Selection("#b").Nodes[0]
	doc.RemoveChild(second.Parent, second)
	doc.Deliver()

	gt.mu.Lock()
	after := len(gt.texts)
	gt.mu.Unlock()
	if after != 1 {
		t.Errorf("Expected removed subtree's state dropped, got %d tracked texts", after)
	}
}

func TestGlobalTranslator_RouteChangedRescans(t *testing.T) {
	mock := provider.NewMockProvider()
	doc, err := dom.Parse("<html><body><p>Hello world</p></body></html>")
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}
	prefs := NewPrefs(PrefsConfig{ServerLanguage: "es"})
	adapter := provider.NewAdapter(mock, zerolog.Nop())
	batcher := NewBatcher(adapter, cache.NewTiered(cache.NewInMemoryStore(0), zerolog.Nop()), BatcherConfig{})
	gt := NewGlobalTranslator(doc, prefs, batcher, Config{
		InitialRescanDelay: time.Hour,
		RouteRescanDelay:   5 * time.Millisecond,
	})
	gt.Start()
	defer gt.Stop()
	doc.Deliver()

	// Simulate a route swap the observer never saw.
	para := dom.NewElement("p")
	text := dom.NewText("Routed content")
	para.AppendChild(text)
	doc.Body().AppendChild(para)

	gt.RouteChanged()
	time.Sleep(100 * time.Millisecond)

	gt.mu.Lock()
	got := text.Data
	gt.mu.Unlock()
	if got != "[es:Routed content]" {
		t.Errorf("Expected delayed re-scan to translate routed content, got %q", got)
	}
}

func TestGlobalTranslator_LanguageSwitchDuringApplyDiscardsResults(t *testing.T) {
	mock := provider.NewMockProvider()
	doc, err := dom.Parse("<html><body><p>Hello world</p></body></html>")
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}
	prefs := NewPrefs(PrefsConfig{})
	slow := &slowTranslateProvider{inner: mock, delay: 50 * time.Millisecond}
	adapter := provider.NewAdapter(slow, zerolog.Nop())
	batcher := NewBatcher(adapter, cache.NewTiered(cache.NewInMemoryStore(0), zerolog.Nop()), BatcherConfig{})
	gt := NewGlobalTranslator(doc, prefs, batcher, Config{
		InitialRescanDelay: time.Hour,
		RouteRescanDelay:   time.Hour,
	})
	gt.Start()
	defer gt.Stop()

	// Switch to French while the Spanish pass is still waiting on the
	// provider; the Spanish results must never hit the document.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		prefs.SetLanguage("fr")
	}()

	prefs.SetLanguage("es")
	wg.Wait()

	textNode := firstTextNode(t, doc, "p")
	gt.mu.Lock()
	got := textNode.Data
	gt.mu.Unlock()
	if strings.Contains(got, "Hola") {
		t.Errorf("Stale Spanish results were applied: %q", got)
	}
	if got != "[fr:Hello world]" {
		t.Errorf("Expected French translation to win, got %q", got)
	}
}
