package main

import (
	"strings"
	"unicode/utf8"
)

// Paper is one row of the research papers table. Only the columns the
// pipeline reads or writes are mapped. The _ru columns are nullable
// upstream, so they are pointers to tell NULL apart from empty.
type Paper struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	TitleRu       *string  `json:"title_ru"`
	Abstract      string   `json:"abstract"`
	AbstractRu    *string  `json:"abstract_ru"`
	KeyFindings   []string `json:"key_findings"`
	KeyFindingsRu []string `json:"key_findings_ru"`
}

// paperSelectColumns is the column list requested on every list call.
const paperSelectColumns = "id,title,title_ru,abstract,abstract_ru,key_findings,key_findings_ru"

// minAbstractChars is the shortest abstract worth mining or enriching from.
const minAbstractChars = 50

// EffectiveTitle prefers the Russian title and falls back to the source title.
func (p Paper) EffectiveTitle() string {
	if p.TitleRu != nil && strings.TrimSpace(*p.TitleRu) != "" {
		return *p.TitleRu
	}
	return p.Title
}

// EffectiveAbstract prefers the Russian abstract and falls back to the source one.
func (p Paper) EffectiveAbstract() string {
	if p.AbstractRu != nil && strings.TrimSpace(*p.AbstractRu) != "" {
		return *p.AbstractRu
	}
	return p.Abstract
}

// EffectiveFindings returns the Russian findings list, or the source-language
// list when no Russian one exists yet.
func (p Paper) EffectiveFindings() []string {
	if len(p.KeyFindingsRu) > 0 {
		return p.KeyFindingsRu
	}
	return p.KeyFindings
}

// HasUsableAbstract reports whether either abstract is long enough to
// support enrichment.
func (p Paper) HasUsableAbstract() bool {
	return utf8.RuneCountInString(p.EffectiveAbstract()) >= minAbstractChars
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
