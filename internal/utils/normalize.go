package utils

import (
	"strings"
	"unicode"
)

var trademarkReplacer = strings.NewReplacer("®", "", "™", "", "©", "")

// NormalizeText lowercases text, strips trademark symbols, collapses
// internal whitespace runs to single spaces and trims surrounding
// punctuation. Idempotent, never fails.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	s := trademarkReplacer.Replace(text)
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}
