// Package textproc holds the Thai text normalisation and chunking applied to documents and
// queries before they are embedded.
package textproc

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	thaiDigits = strings.NewReplacer(
		"๑", "1", "๒", "2", "๓", "3", "๔", "4", "๕", "5",
		"๖", "6", "๗", "7", "๘", "8", "๙", "9", "๐", "0",
	)

	whitespaceRe = regexp.MustCompile(`[\s\p{Z}]+`)
	markerRe     = regexp.MustCompile(`\([a-zA-Zก-ฮ]\)`)
	detachedRe   = regexp.MustCompile(`([\x{0E01}-\x{0E2E}])[\s\p{Z}]+([\x{0E30}-\x{0E39}\x{0E47}-\x{0E4F}])`)
)

// ThaiToArabic converts Thai numerals to Arabic numerals
func ThaiToArabic(s string) string {
	return thaiDigits.Replace(s)
}

// Normalize applies Unicode NFC normalisation
func Normalize(s string) string {
	return norm.NFC.String(s)
}

// RemoveUnimportant drops whitespace and single letter list markers such as "(ก)" or "(a)".
// A vowel or tone mark separated from its consonant is joined back first.
func RemoveUnimportant(s string) string {
	s = detachedRe.ReplaceAllString(s, "$1$2")
	s = whitespaceRe.ReplaceAllString(s, "")
	return markerRe.ReplaceAllString(s, "")
}

// Preprocess is the cleaning applied before a text is embedded
func Preprocess(s string) string {
	return RemoveUnimportant(ThaiToArabic(Normalize(s)))
}
