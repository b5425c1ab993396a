// Package dom provides a mutable HTML document tree with mutation
// observation.
//
// The tree itself is the standard golang.org/x/net/html node graph; Document
// wraps it with two things the translation engine needs from its host
// environment: a stable per-node identity (assigned once per node, evicted
// explicitly on removal) and structured change notification. All writes to
// the tree must go through Document's mutator methods so observers see them.
//
// Delivery is batched and cooperative: mutations queue per observer and are
// handed to callbacks when Deliver is called, mirroring an event loop that
// runs observer callbacks between tasks. Mutations performed inside a
// callback are queued for the next delivery, never dispatched reentrantly.
package dom

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// NodeID is a stable identity for a node within one Document. IDs are
// assigned on first use and never reused.
type NodeID uint64

// MutationKind classifies a mutation record.
type MutationKind int

const (
	// ChildList records child node insertions and removals on an element.
	ChildList MutationKind = iota
	// CharacterData records a text node's data change.
	CharacterData
	// Attributes records an element attribute change.
	Attributes
)

// MutationRecord is a single observed change to the tree.
type MutationRecord struct {
	Kind MutationKind

	// Target is the element whose children changed (ChildList), the text
	// node that changed (CharacterData), or the element whose attribute
	// changed (Attributes).
	Target   *html.Node
	TargetID NodeID

	// AttributeName is set for Attributes records.
	AttributeName string

	// OldValue holds the previous text (CharacterData) or attribute value
	// (Attributes).
	OldValue string

	// Added and Removed hold inserted/removed child roots for ChildList
	// records.
	Added   []*html.Node
	Removed []*html.Node
}

// Document owns an html.Node tree and notifies observers of mutations.
type Document struct {
	mu        sync.Mutex
	root      *html.Node
	ids       map[*html.Node]NodeID
	nextID    NodeID
	observers []*Observer
}

// Parse builds a Document from an HTML string.
func Parse(content string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, err
	}
	return &Document{
		root: root,
		ids:  make(map[*html.Node]NodeID),
	}, nil
}

// Root returns the document root node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Render serializes the document back to HTML.
func (d *Document) Render() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var sb strings.Builder
	if err := html.Render(&sb, d.root); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Selection returns a goquery selection over the document for the given
// CSS selector.
func (d *Document) Selection(selector string) *goquery.Selection {
	return goquery.NewDocumentFromNode(d.root).Find(selector)
}

// Body returns the document's body element, or the root if there is none.
func (d *Document) Body() *html.Node {
	if sel := d.Selection("body"); len(sel.Nodes) > 0 {
		return sel.Nodes[0]
	}
	return d.root
}

// ID returns the stable identity of a node, assigning one on first use.
func (d *Document) ID(n *html.Node) NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idLocked(n)
}

func (d *Document) idLocked(n *html.Node) NodeID {
	if id, ok := d.ids[n]; ok {
		return id
	}
	d.nextID++
	d.ids[n] = d.nextID
	return d.nextID
}

// Evict drops the identity table entries for a node and its whole subtree.
// Callers invoke it once they are done processing a removal.
func (d *Document) Evict(n *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		delete(d.ids, n)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
}

// Attr returns the value of an attribute on an element node.
func Attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// HasClass reports whether an element's class attribute contains the given
// class name.
func HasClass(n *html.Node, class string) bool {
	val, ok := Attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(val) {
		if c == class {
			return true
		}
	}
	return false
}

// SetText replaces a text node's data and records a CharacterData mutation.
func (d *Document) SetText(n *html.Node, text string) {
	if n.Type != html.TextNode {
		return
	}
	d.mu.Lock()
	old := n.Data
	n.Data = text
	d.recordLocked(MutationRecord{
		Kind:     CharacterData,
		Target:   n,
		TargetID: d.idLocked(n),
		OldValue: old,
	})
	d.mu.Unlock()
}

// SetAttr sets an attribute on an element node and records an Attributes
// mutation.
func (d *Document) SetAttr(n *html.Node, name, value string) {
	if n.Type != html.ElementNode {
		return
	}
	d.mu.Lock()
	var old string
	found := false
	for i, a := range n.Attr {
		if a.Key == name {
			old = a.Val
			n.Attr[i].Val = value
			found = true
			break
		}
	}
	if !found {
		n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
	}
	d.recordLocked(MutationRecord{
		Kind:          Attributes,
		Target:        n,
		TargetID:      d.idLocked(n),
		AttributeName: name,
		OldValue:      old,
	})
	d.mu.Unlock()
}

// RemoveAttr removes an attribute from an element node.
func (d *Document) RemoveAttr(n *html.Node, name string) {
	if n.Type != html.ElementNode {
		return
	}
	d.mu.Lock()
	for i, a := range n.Attr {
		if a.Key == name {
			old := a.Val
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			d.recordLocked(MutationRecord{
				Kind:          Attributes,
				Target:        n,
				TargetID:      d.idLocked(n),
				AttributeName: name,
				OldValue:      old,
			})
			break
		}
	}
	d.mu.Unlock()
}

// AppendChild appends a child to a parent element and records a ChildList
// mutation.
func (d *Document) AppendChild(parent, child *html.Node) {
	d.mu.Lock()
	parent.AppendChild(child)
	d.recordLocked(MutationRecord{
		Kind:     ChildList,
		Target:   parent,
		TargetID: d.idLocked(parent),
		Added:    []*html.Node{child},
	})
	d.mu.Unlock()
}

// RemoveChild detaches a child from its parent and records a ChildList
// mutation. The subtree's identities stay in the table until Evict.
func (d *Document) RemoveChild(parent, child *html.Node) {
	d.mu.Lock()
	parent.RemoveChild(child)
	d.recordLocked(MutationRecord{
		Kind:     ChildList,
		Target:   parent,
		TargetID: d.idLocked(parent),
		Removed:  []*html.Node{child},
	})
	d.mu.Unlock()
}

// ReplaceChildren removes every child of a parent and appends the given
// replacements, as one ChildList mutation. This is how a rendering layer
// swapping a subtree during reconciliation presents to observers.
func (d *Document) ReplaceChildren(parent *html.Node, children ...*html.Node) {
	d.mu.Lock()
	var removed []*html.Node
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	for _, c := range children {
		parent.AppendChild(c)
	}
	d.recordLocked(MutationRecord{
		Kind:     ChildList,
		Target:   parent,
		TargetID: d.idLocked(parent),
		Added:    children,
		Removed:  removed,
	})
	d.mu.Unlock()
}

// NewElement creates a detached element node.
func NewElement(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type: html.ElementNode,
		Data: tag,
		Attr: attrs,
	}
}

// NewText creates a detached text node.
func NewText(text string) *html.Node {
	return &html.Node{
		Type: html.TextNode,
		Data: text,
	}
}

// recordLocked fans a mutation out to the queues of interested observers.
func (d *Document) recordLocked(rec MutationRecord) {
	for _, o := range d.observers {
		if o.wants(rec) {
			o.enqueue(rec)
		}
	}
}

// Deliver flushes every observer's queued records to its callback. Records
// queued during delivery wait for the next call.
func (d *Document) Deliver() {
	d.mu.Lock()
	observers := make([]*Observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.Unlock()

	for _, o := range observers {
		o.deliver()
	}
}
