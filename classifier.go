package main

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// TemplatePatterns is the contract list of placeholder strings written into
// the data by earlier generations of repair scripts. Matching is substring,
// case-insensitive. Removing an entry would strand legacy rows, so the list
// only ever grows.
var TemplatePatterns = []string{
	"Дополнительный научный вывод",
	"Дополнительный вывод",
	"Scientific finding",
	"Это исследование показывает",
	"Исследование демонстрирует",
	"Дополнительные научные выводы",
	"MYMEMORY WARNING",
}

var templatePatternsLower = func() []string {
	out := make([]string, len(TemplatePatterns))
	for i, p := range TemplatePatterns {
		out[i] = strings.ToLower(p)
	}
	return out
}()

// IsTemplateJunk reports whether a finding is placeholder text rather than a
// real conclusion.
func IsTemplateJunk(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range templatePatternsLower {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsTooShort reports whether a finding is below minChars after trimming.
// Length is counted in runes: the corpus is mostly Cyrillic.
func IsTooShort(s string, minChars int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) < minChars
}

// latinOnlyRe matches strings made up entirely of Latin letters, digits and
// common punctuation, i.e. text that never went through translation.
var latinOnlyRe = regexp.MustCompile(`^[a-zA-Z0-9\s.,;:!?'"()\[\]{}/\\-]+$`)

// englishWordRe requires at least one common English science word so that
// latin-only strings like DOIs or gene names are not flagged.
var englishWordRe = regexp.MustCompile(`(?i)\b(the|and|of|to|in|for|with|by|from|on|at|this|that|is|was|were|are|study|research|analysis|results|conclusion|findings|data|method|approach|patients|subjects|participants|significant|effect|increase|decrease|compared|control|group|treatment|intervention|baseline|outcome|clinical|trial|randomized|systematic|review|meta)\b`)

// NeedsTranslation reports whether a _ru field still holds English text or a
// MyMemory API error marker. Empty strings never need translation.
func NeedsTranslation(s string) bool {
	if s == "" {
		return false
	}
	if strings.Contains(s, "MYMEMORY WARNING") {
		return true
	}
	return latinOnlyRe.MatchString(s) && englishWordRe.MatchString(s)
}

// IsDuplicate reports whether candidate already appears in existing, ignoring
// case and surrounding whitespace.
func IsDuplicate(candidate string, existing []string) bool {
	norm := strings.ToLower(strings.TrimSpace(candidate))
	for _, e := range existing {
		if strings.ToLower(strings.TrimSpace(e)) == norm {
			return true
		}
	}
	return false
}
