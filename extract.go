package main

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Conclusion cues: sentences of a Russian abstract that look like stated
// results. Stems are matched so inflected forms pass.
var conclusionCues = []*regexp.Regexp{
	regexp.MustCompile(`(?i)показал[а-яё]*[^.!?]*(что|является|представляет|имеет|позволяет|обеспечивает)`),
	regexp.MustCompile(`(?i)исследовани[а-яё]*[^.!?]*(подтверждает|демонстрирует|указывает|показывает)`),
	regexp.MustCompile(`(?i)(обнаружено|выявлено|определено|установлено|результаты показывают|данные свидетельствуют)`),
}

var fillerPrefixRe = regexp.MustCompile(`(?i)^(Это исследование показывает|Данное исследование демонстрирует|The study shows)`)
var leadingCommaRe = regexp.MustCompile(`^\s*,\s*`)
var innerSpaceRe = regexp.MustCompile(`\s+`)

// MineFindings deterministically extracts up to n candidate findings from an
// abstract: conclusion-cue sentences, whitespace-collapsed, truncated to
// maxChars, with filler prefixes stripped. Results shorter than 30 runes are
// discarded as uninformative fragments.
func MineFindings(abstract string, n, maxChars int) []string {
	if n <= 0 || abstract == "" {
		return nil
	}

	sentences := splitSentences(abstract)
	var out []string
	for _, cue := range conclusionCues {
		for _, sentence := range sentences {
			if !cue.MatchString(sentence) {
				continue
			}
			finding := innerSpaceRe.ReplaceAllString(strings.TrimSpace(sentence), " ")
			if utf8.RuneCountInString(finding) > maxChars {
				finding = strings.TrimSpace(string([]rune(finding)[:maxChars])) + "..."
			}
			finding = fillerPrefixRe.ReplaceAllString(finding, "")
			finding = strings.TrimSpace(leadingCommaRe.ReplaceAllString(finding, ""))
			if utf8.RuneCountInString(finding) <= 30 {
				continue
			}
			if IsDuplicate(finding, out) {
				continue
			}
			out = append(out, finding)
			if len(out) >= n {
				return out
			}
		}
	}
	return out
}

func splitSentences(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	var out []string
	for _, p := range parts {
		if utf8.RuneCountInString(strings.TrimSpace(p)) > 20 {
			out = append(out, p)
		}
	}
	return out
}
