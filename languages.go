package livetl

import "strings"

// DefaultLanguage is the fallback base code used whenever a language cannot
// be resolved. It is also the assumed source language of untranslated content.
const DefaultLanguage = "en"

// SupportedLanguages contains the base codes the engine will translate into.
var SupportedLanguages = map[string]bool{
	"en": true,
	"es": true,
	"fr": true,
	"de": true,
	"it": true,
	"pt": true,
	"nl": true,
	"pl": true,
	"ru": true,
	"uk": true,
	"tr": true,
	"ar": true,
	"he": true,
	"hi": true,
	"id": true,
	"ja": true,
	"ko": true,
	"th": true,
	"vi": true,
	"zh": true,
}

// LanguageNames maps base codes to human-readable names used in provider
// prompts and the preference UI.
var LanguageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"nl": "Dutch",
	"pl": "Polish",
	"ru": "Russian",
	"uk": "Ukrainian",
	"tr": "Turkish",
	"ar": "Arabic",
	"he": "Hebrew",
	"hi": "Hindi",
	"id": "Indonesian",
	"ja": "Japanese",
	"ko": "Korean",
	"th": "Thai",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

// providerTargetCodes maps base codes to the region-specific codes the
// provider prefers when the language is used as a translation target.
// Detected source codes are never regionalized.
var providerTargetCodes = map[string]string{
	"en": "en-US",
	"pt": "pt-BR",
	"zh": "zh-CN",
}

// Normalize lowercases a language code and strips any regional suffix,
// e.g. "pt-BR", "pt_BR" and "PT" all normalize to "pt". Unknown or empty
// codes normalize to DefaultLanguage.
func Normalize(code string) string {
	code = strings.TrimSpace(strings.ToLower(code))
	if code == "" {
		return DefaultLanguage
	}
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return code
}

// IsSupported reports whether the engine can translate into the given code.
// Regional variants are supported iff their base code is.
func IsSupported(code string) bool {
	return SupportedLanguages[Normalize(code)]
}

// ToProviderCode converts a base code to the code sent to the provider.
// Target-role codes get their preferred regional variant; source-role codes
// stay bare, since detection reports base codes.
func ToProviderCode(code string, target bool) string {
	base := Normalize(code)
	if target {
		if regional, ok := providerTargetCodes[base]; ok {
			return regional
		}
	}
	return base
}

// LanguageName returns the human-readable name for a code, falling back to
// the normalized code itself.
func LanguageName(code string) string {
	base := Normalize(code)
	if name, ok := LanguageNames[base]; ok {
		return name
	}
	return base
}

// IsRTL reports whether the language is written right to left.
func IsRTL(code string) bool {
	return RTLLanguages[Normalize(code)]
}

// Direction returns "rtl" for right-to-left languages, "ltr" otherwise.
func Direction(code string) string {
	if IsRTL(code) {
		return "rtl"
	}
	return "ltr"
}
