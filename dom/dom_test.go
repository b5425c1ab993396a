package dom

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func mustParse(t *testing.T, content string) *Document {
	t.Helper()
	doc, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return doc
}

func firstText(n *html.Node) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return found
}

func TestParse_Render(t *testing.T) {
	doc := mustParse(t, "<html><body><p>Hello</p></body></html>")

	out, err := doc.Render()
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, "<p>Hello</p>") {
		t.Errorf("rendered output missing content: %s", out)
	}
}

func TestID_StableAndDistinct(t *testing.T) {
	doc := mustParse(t, "<p>one</p><p>two</p>")

	sel := doc.Selection("p")
	if len(sel.Nodes) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", len(sel.Nodes))
	}

	id1 := doc.ID(sel.Nodes[0])
	id2 := doc.ID(sel.Nodes[1])

	if id1 == id2 {
		t.Error("distinct nodes should have distinct IDs")
	}
	if doc.ID(sel.Nodes[0]) != id1 {
		t.Error("ID should be stable across calls")
	}
}

func TestEvict(t *testing.T) {
	doc := mustParse(t, "<div><p>child</p></div>")

	p := doc.Selection("p").Nodes[0]
	oldID := doc.ID(p)

	doc.Evict(p)

	// A fresh lookup assigns a new identity.
	if doc.ID(p) == oldID {
		t.Error("evicted node should get a new ID on next lookup")
	}
}

func TestSetText_RecordsMutation(t *testing.T) {
	doc := mustParse(t, "<p>Hello</p>")
	text := firstText(doc.Body())

	var got []MutationRecord
	doc.Observe(ObserverOptions{CharacterData: true}, func(records []MutationRecord) {
		got = append(got, records...)
	})

	doc.SetText(text, "Hola")
	doc.Deliver()

	if text.Data != "Hola" {
		t.Errorf("expected text Hola, got %q", text.Data)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Kind != CharacterData || got[0].OldValue != "Hello" {
		t.Errorf("unexpected record: %+v", got[0])
	}
	if got[0].TargetID != doc.ID(text) {
		t.Error("record should carry the target's ID")
	}
}

func TestSetAttr_FilterAndOldValue(t *testing.T) {
	doc := mustParse(t, `<input placeholder="Search">`)
	input := doc.Selection("input").Nodes[0]

	var got []MutationRecord
	doc.Observe(ObserverOptions{
		Attributes:      true,
		AttributeFilter: []string{"placeholder"},
	}, func(records []MutationRecord) {
		got = append(got, records...)
	})

	doc.SetAttr(input, "placeholder", "Buscar")
	doc.SetAttr(input, "class", "wide") // outside the filter
	doc.Deliver()

	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].AttributeName != "placeholder" || got[0].OldValue != "Search" {
		t.Errorf("unexpected record: %+v", got[0])
	}

	if val, _ := Attr(input, "placeholder"); val != "Buscar" {
		t.Errorf("attribute not updated: %q", val)
	}
}

func TestRemoveAttr(t *testing.T) {
	doc := mustParse(t, `<p data-original-text="Hello">Hola</p>`)
	p := doc.Selection("p").Nodes[0]

	doc.RemoveAttr(p, "data-original-text")

	if _, ok := Attr(p, "data-original-text"); ok {
		t.Error("attribute should be removed")
	}
}

func TestAppendAndRemoveChild(t *testing.T) {
	doc := mustParse(t, "<div id=\"box\"></div>")
	box := doc.Selection("#box").Nodes[0]

	var got []MutationRecord
	doc.Observe(ObserverOptions{ChildList: true}, func(records []MutationRecord) {
		got = append(got, records...)
	})

	p := NewElement("p")
	p.AppendChild(NewText("New content"))
	doc.AppendChild(box, p)
	doc.Deliver()

	if len(got) != 1 || len(got[0].Added) != 1 || got[0].Added[0] != p {
		t.Fatalf("expected one added-child record, got %+v", got)
	}

	got = nil
	doc.RemoveChild(box, p)
	doc.Deliver()

	if len(got) != 1 || len(got[0].Removed) != 1 || got[0].Removed[0] != p {
		t.Fatalf("expected one removed-child record, got %+v", got)
	}
}

func TestReplaceChildren(t *testing.T) {
	doc := mustParse(t, "<div id=\"box\"><p>old</p></div>")
	box := doc.Selection("#box").Nodes[0]
	old := box.FirstChild

	var got []MutationRecord
	doc.Observe(ObserverOptions{ChildList: true}, func(records []MutationRecord) {
		got = append(got, records...)
	})

	repl := NewElement("p")
	repl.AppendChild(NewText("new"))
	doc.ReplaceChildren(box, repl)
	doc.Deliver()

	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if len(got[0].Removed) != 1 || got[0].Removed[0] != old {
		t.Errorf("expected old child in Removed, got %+v", got[0].Removed)
	}
	if len(got[0].Added) != 1 || got[0].Added[0] != repl {
		t.Errorf("expected replacement in Added, got %+v", got[0].Added)
	}
	if box.FirstChild != repl || repl.NextSibling != nil {
		t.Error("replacement should be the only child")
	}
}

func TestDeliver_BatchesUntilCalled(t *testing.T) {
	doc := mustParse(t, "<p>one</p>")
	text := firstText(doc.Body())

	deliveries := 0
	var lastBatch int
	doc.Observe(ObserverOptions{CharacterData: true}, func(records []MutationRecord) {
		deliveries++
		lastBatch = len(records)
	})

	doc.SetText(text, "two")
	doc.SetText(text, "three")

	if deliveries != 0 {
		t.Fatal("callback should not run before Deliver")
	}

	doc.Deliver()
	if deliveries != 1 || lastBatch != 2 {
		t.Errorf("expected one delivery of 2 records, got %d deliveries of %d", deliveries, lastBatch)
	}

	// Nothing queued: no callback.
	doc.Deliver()
	if deliveries != 1 {
		t.Error("empty delivery should not invoke callback")
	}
}

func TestDeliver_RecordsDuringCallbackWait(t *testing.T) {
	doc := mustParse(t, "<p>one</p>")
	text := firstText(doc.Body())

	deliveries := 0
	doc.Observe(ObserverOptions{CharacterData: true}, func(records []MutationRecord) {
		deliveries++
		if deliveries == 1 {
			// Mutation inside a callback queues for the next delivery.
			doc.SetText(text, "two")
		}
	})

	doc.SetText(text, "start")
	doc.Deliver()
	if deliveries != 1 {
		t.Fatalf("expected 1 delivery, got %d", deliveries)
	}

	doc.Deliver()
	if deliveries != 2 {
		t.Errorf("expected reentrant mutation to arrive on second delivery, got %d", deliveries)
	}
}

func TestObserver_Disconnect(t *testing.T) {
	doc := mustParse(t, "<p>one</p>")
	text := firstText(doc.Body())

	called := false
	obs := doc.Observe(ObserverOptions{CharacterData: true}, func([]MutationRecord) {
		called = true
	})

	doc.SetText(text, "two")
	obs.Disconnect()
	doc.Deliver()

	if called {
		t.Error("disconnected observer should not receive records")
	}
}

func TestObserver_TakeRecords(t *testing.T) {
	doc := mustParse(t, "<p>one</p>")
	text := firstText(doc.Body())

	obs := doc.Observe(ObserverOptions{CharacterData: true}, nil)
	doc.SetText(text, "two")

	records := obs.TakeRecords()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if len(obs.TakeRecords()) != 0 {
		t.Error("queue should be empty after TakeRecords")
	}
}

func TestHasClass(t *testing.T) {
	doc := mustParse(t, `<span class="badge notranslate small">x</span>`)
	span := doc.Selection("span").Nodes[0]

	if !HasClass(span, "notranslate") {
		t.Error("expected notranslate class")
	}
	if HasClass(span, "translate") {
		t.Error("class match must be exact, not substring")
	}
}
