package client

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/ZaguanLabs/livetl"
	"github.com/ZaguanLabs/livetl/dom"
)

// Target is a unit of translatable content discovered in the document: a
// text node, or one allow-listed attribute of an element. The node is owned
// by the rendering layer; the translator only observes and mutates it.
type Target struct {
	Kind      livetl.TargetKind
	Node      *html.Node // text node for KindText, element for KindAttribute
	Attribute string     // set iff Kind == KindAttribute
	// Original is the untranslated source text, recovered from a stored
	// marker when one exists so translation is always source-to-target.
	Original string
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// eligibleText reports whether a trimmed text is worth translating: long
// enough, not just punctuation/symbols/digits, not a URL, not an email.
func eligibleText(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < livetl.MinTranslatableLength {
		return false
	}

	hasLetter := false
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return false
	}

	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "www.") || strings.Contains(lower, "://") {
		return false
	}
	if emailPattern.MatchString(trimmed) {
		return false
	}

	return true
}

// excludedElement reports whether an element's own properties opt its
// subtree out of translation: ignored tags, the opt-out attribute or class,
// and editable regions.
func excludedElement(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if livetl.IgnoredTags[strings.ToLower(n.Data)] {
		return true
	}
	if _, ok := dom.Attr(n, livetl.NoTranslateAttr); ok {
		return true
	}
	if dom.HasClass(n, livetl.NoTranslateClass) {
		return true
	}
	if v, ok := dom.Attr(n, "contenteditable"); ok && v != "false" {
		return true
	}
	return false
}

// excludedByAncestry reports whether the node or any ancestor is excluded.
// Used for incremental targets whose ancestors the walk never visited.
func excludedByAncestry(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if excludedElement(cur) {
			return true
		}
	}
	return false
}

// extractTargets walks a subtree and collects translation candidates using
// the same rules for full scans and incremental scans. Excluded subtrees
// are pruned whole. Nodes the translator already translated into the
// current language are skipped via the filters.
func (g *GlobalTranslator) extractTargets(root *html.Node, lang string) []Target {
	var targets []Target

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if excludedElement(n) {
				return
			}

			for _, attr := range livetl.TranslatableAttributes {
				if t, ok := g.attributeTarget(n, attr, lang); ok {
					targets = append(targets, t)
				}
			}

			// Option lists don't reliably surface text mutations in every
			// environment; their text content is extracted directly here.
			if strings.ToLower(n.Data) == "option" {
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						if t, ok := g.textTarget(c, lang); ok {
							targets = append(targets, t)
						}
					}
				}
				return
			}

		case html.TextNode:
			if t, ok := g.textTarget(n, lang); ok {
				targets = append(targets, t)
			}
			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return targets
}

// textTarget builds a Text target for a text node, unless the text is
// ineligible or the node is already translated into lang. The original is
// the translator's stored value when the node carries a translation, else
// the live text.
func (g *GlobalTranslator) textTarget(n *html.Node, lang string) (Target, bool) {
	id := g.doc.ID(n)
	if st, ok := g.texts[id]; ok {
		if st.lang == lang {
			return Target{}, false
		}
		// Translated into another language; the stored original keeps the
		// source text source-to-target.
		return Target{Kind: livetl.KindText, Node: n, Original: st.original}, true
	}

	if !eligibleText(n.Data) {
		return Target{}, false
	}

	// A surviving marker from a prior session or re-render wins over the
	// live text: the live value may itself be a stale translation, and
	// translation must always run source-to-target.
	if n.Parent != nil {
		if original, ok := dom.Attr(n.Parent, livetl.OriginalTextAttr); ok && original != "" {
			return Target{Kind: livetl.KindText, Node: n, Original: original}, true
		}
	}

	// The raw node data, whitespace included, is the original: reverts must
	// restore the exact pre-translation value.
	return Target{Kind: livetl.KindText, Node: n, Original: n.Data}, true
}

// attributeTarget builds an Attribute target for one allow-listed attribute
// of an element, applying the same eligibility rules as text.
func (g *GlobalTranslator) attributeTarget(n *html.Node, attr, lang string) (Target, bool) {
	value, ok := dom.Attr(n, attr)
	if !ok || !eligibleText(value) {
		return Target{}, false
	}

	key := attrKey{id: g.doc.ID(n), attr: attr}
	if st, ok := g.attrs[key]; ok {
		if st.lang == lang {
			return Target{}, false
		}
		return Target{Kind: livetl.KindAttribute, Node: n, Attribute: attr, Original: st.original}, true
	}

	if original, ok := dom.Attr(n, livetl.OriginalAttrPrefix+attr); ok && original != "" {
		return Target{Kind: livetl.KindAttribute, Node: n, Attribute: attr, Original: original}, true
	}

	return Target{Kind: livetl.KindAttribute, Node: n, Attribute: attr, Original: value}, true
}
