// Package livetl provides a live DOM translation engine.
//
// Livetl observes an already-rendered document tree, extracts translatable
// text and attribute targets, translates them through an AI provider with
// two-tier caching, and writes the results back in place without fighting
// the rendering layer that owns the tree.
//
// The pipeline has a client half and a server half. On the client side, a
// GlobalTranslator watches the document for mutations and routes new text
// through a debounced batching translator backed by a memory+file cache:
//
//	doc, _ := dom.Parse(renderedHTML)
//	prefs := client.NewPrefs(client.PrefsConfig{DefaultLanguage: "en"})
//	gt := client.NewGlobalTranslator(doc, prefs, batcher, client.Config{})
//	gt.Start()
//	prefs.SetLanguage("es") // document is translated in place
//
// On the server side, an Orchestrator answers /translate calls, keyed
// per-entity with source-hash invalidation:
//
//	orch := server.NewOrchestrator(adapter, entityCache, logger)
//	out := orch.TranslateForUser(ctx, "post", "42", "body", content, "en", "es")
//
// Every layer fails open: the worst case of any provider, cache, or network
// failure is untranslated content, never an error surfaced to rendering.
package livetl
