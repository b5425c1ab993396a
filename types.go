package livetl

import "context"

// Provider is the interface for translation backends.
type Provider interface {
	// Translate translates a batch of texts. The result has the same length
	// and order as req.Texts.
	Translate(ctx context.Context, req TranslateRequest) ([]string, error)

	// Detect identifies the language of a text sample, returning a base
	// language code.
	Detect(ctx context.Context, text string) (string, error)
}

// TranslateRequest contains the parameters for a provider call.
type TranslateRequest struct {
	Texts      []string
	TargetLang string
	SourceLang string // empty means the provider auto-detects
}

// TargetKind distinguishes the two kinds of translatable DOM content.
type TargetKind int

const (
	// KindText is a text node target.
	KindText TargetKind = iota
	// KindAttribute is an element attribute target.
	KindAttribute
)

// TranslatableAttributes is the fixed allow-list of attributes whose values
// are eligible for translation.
var TranslatableAttributes = []string{
	"placeholder",
	"title",
	"aria-label",
	"aria-placeholder",
	"aria-description",
	"alt",
}

// IgnoredTags contains tags whose subtrees are never translated.
var IgnoredTags = map[string]bool{
	"script":   true,
	"style":    true,
	"code":     true,
	"pre":      true,
	"kbd":      true,
	"samp":     true,
	"var":      true,
	"textarea": true,
	"input":    true,
	"noscript": true,
	"iframe":   true,
	"svg":      true,
	"math":     true,
}

const (
	// NoTranslateAttr on an element opts its whole subtree out of translation.
	NoTranslateAttr = "data-no-translate"
	// NoTranslateClass is the class-name form of the same opt-out.
	NoTranslateClass = "notranslate"

	// OriginalTextAttr stores a text node's pre-translation value on its
	// parent element so reverts survive re-renders.
	OriginalTextAttr = "data-original-text"
	// OriginalAttrPrefix prefixes the stored pre-translation value of a
	// translated attribute, e.g. data-original-title.
	OriginalAttrPrefix = "data-original-"
)

const (
	// MinTranslatableLength is the minimum trimmed length of a candidate text.
	MinTranslatableLength = 2

	// MaxBatchSize is the largest number of texts sent in one provider call.
	MaxBatchSize = 50

	// MaxRequestTexts is the largest batch the translation API accepts.
	MaxRequestTexts = 100

	// DetectSampleLength is how many characters of a text are used for
	// language detection.
	DetectSampleLength = 200
)

// RTLLanguages contains base language codes written right to left.
var RTLLanguages = map[string]bool{
	"ar": true, // Arabic
	"he": true, // Hebrew
	"fa": true, // Persian/Farsi
	"ur": true, // Urdu
	"ps": true, // Pashto
	"sd": true, // Sindhi
	"ug": true, // Uyghur
}
