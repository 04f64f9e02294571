// Package phrasebook is the built-in cache of ultra-common subtitle
// fragments. It is the lowest-trust cache tier, behind the glossary and the
// translation memory.
package phrasebook

import (
	"strings"
	"unicode"
)

// phrases maps target language -> stripped source key -> translation.
var phrases = map[string]map[string]string{
	"tr": {
		"yes":       "Evet.",
		"no":        "Hayır.",
		"ok":        "Tamam.",
		"okay":      "Tamam.",
		"hello":     "Merhaba.",
		"hi":        "Selam.",
		"thanks":    "Teşekkürler.",
		"thankyou":  "Teşekkür ederim.",
		"sorry":     "Özür dilerim.",
		"goodbye":   "Hoşça kal.",
		"bye":       "Güle güle.",
		"what":      "Ne?",
		"why":       "Neden?",
		"who":       "Kim?",
		"wait":      "Bekle.",
		"stop":      "Dur.",
		"help":      "Yardım edin!",
		"come":      "Gel.",
		"go":        "Git.",
		"goodnight": "İyi geceler.",
		"welcome":   "Hoş geldiniz.",
	},
}

// Strip reduces a text to its phrasebook key: lowercase with everything but
// letters and digits removed. Unlike translation-memory keys, punctuation is
// dropped so "Yes!", "yes." and "Yes" collapse to one fragment.
func Strip(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup returns the canned translation of a common fragment, if one exists
// for the target language.
func Lookup(targetLang, text string) (string, bool) {
	table, ok := phrases[strings.ToLower(targetLang)]
	if !ok {
		return "", false
	}
	translation, ok := table[Strip(text)]
	return translation, ok
}
