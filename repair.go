package main

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Repairer applies per-field repair strategies to one paper. llm is nil for
// jobs that never call the LLM (clean); those fall straight through to the
// deterministic extractor.
type Repairer struct {
	llm Completer
	cfg Config
}

func NewRepairer(llm Completer, cfg Config) *Repairer {
	return &Repairer{llm: llm, cfg: cfg}
}

// RepairOutcome carries the proposed record plus counters for reporting.
// Proposed is a value copy; the caller diffs it against the stored row.
type RepairOutcome struct {
	Proposed     Paper
	JunkRemoved  int
	Translated   int
	LLMFailures  int
	FallbackUsed bool
	Errors       []error
}

// Repair runs the strategies selected by the job. Translation runs before
// findings repair so enrichment sees coherent Russian context.
func (r *Repairer) Repair(ctx context.Context, p Paper, job Job) RepairOutcome {
	out := RepairOutcome{Proposed: p}
	if job.Translate {
		r.repairTranslations(ctx, &out.Proposed, &out)
	}
	if job.Findings {
		r.repairFindings(ctx, &out.Proposed, &out)
	}
	return out
}

// repairTranslations re-translates every _ru field that still reads as
// English. A failed call keeps the original value; the error is recorded and
// the next run picks the field up again.
func (r *Repairer) repairTranslations(ctx context.Context, p *Paper, out *RepairOutcome) {
	if p.TitleRu != nil && NeedsTranslation(*p.TitleRu) && strings.TrimSpace(p.Title) != "" {
		if tr, err := r.translate(ctx, p.Title); err != nil {
			out.LLMFailures++
			out.Errors = append(out.Errors, fmt.Errorf("title_ru: %w", err))
		} else {
			p.TitleRu = &tr
			out.Translated++
		}
	}

	if p.AbstractRu != nil && NeedsTranslation(*p.AbstractRu) && strings.TrimSpace(p.Abstract) != "" {
		if tr, err := r.translate(ctx, p.Abstract); err != nil {
			out.LLMFailures++
			out.Errors = append(out.Errors, fmt.Errorf("abstract_ru: %w", err))
		} else {
			p.AbstractRu = &tr
			out.Translated++
		}
	}

	if len(p.KeyFindingsRu) > 0 {
		fixed := make([]string, len(p.KeyFindingsRu))
		copy(fixed, p.KeyFindingsRu)
		changed := false
		for i, f := range fixed {
			if !NeedsTranslation(f) {
				continue
			}
			tr, err := r.translate(ctx, f)
			if err != nil {
				out.LLMFailures++
				out.Errors = append(out.Errors, fmt.Errorf("key_findings_ru[%d]: %w", i, err))
				continue
			}
			fixed[i] = tr
			changed = true
			out.Translated++
		}
		if changed {
			p.KeyFindingsRu = fixed
		}
	}
}

// repairFindings drives the Russian findings list toward the target count:
// keep valid existing findings in order, ask the LLM for the deficit, mine
// the abstract when the LLM fails or falls short, and accept any remaining
// shortfall rather than fabricate placeholders.
func (r *Repairer) repairFindings(ctx context.Context, p *Paper, out *RepairOutcome) {
	target := r.cfg.TargetFindings

	// The two language lists are usually the same array written twice by
	// earlier scripts. When they differ, the source-language list is only
	// cleaned, never overwritten with Russian text.
	mirrored := len(p.KeyFindingsRu) == 0 || stringSlicesEqual(p.KeyFindingsRu, p.KeyFindings)

	kept, removed := cleanFindings(p.EffectiveFindings(), r.cfg.MinFindingChars)
	out.JunkRemoved += removed

	var en []string
	if !mirrored {
		var removedEn int
		en, removedEn = cleanFindings(p.KeyFindings, r.cfg.MinFindingChars)
		out.JunkRemoved += removedEn
	}

	if len(kept) < target && p.HasUsableAbstract() {
		if r.llm != nil {
			generated, err := r.enrichViaLLM(ctx, *p, kept, target-len(kept))
			if err != nil {
				out.LLMFailures++
				out.Errors = append(out.Errors, fmt.Errorf("enrichment: %w", err))
				log.Printf("repair enrichment fallback id=%d error: %v", p.ID, err)
			} else {
				for _, f := range generated {
					if IsTemplateJunk(f) || IsTooShort(f, r.cfg.MinFindingChars) || IsDuplicate(f, kept) {
						continue
					}
					kept = append(kept, f)
					if len(kept) >= target {
						break
					}
				}
			}
		}
		if len(kept) < target {
			mined := MineFindings(p.EffectiveAbstract(), target-len(kept), r.cfg.MaxFindingChars)
			for _, f := range mined {
				if IsDuplicate(f, kept) {
					continue
				}
				kept = append(kept, f)
			}
			if len(mined) > 0 {
				out.FallbackUsed = true
			}
		}
	}

	p.KeyFindingsRu = kept
	if mirrored {
		p.KeyFindings = kept
	} else {
		p.KeyFindings = en
	}
}

func cleanFindings(findings []string, minChars int) ([]string, int) {
	var kept []string
	removed := 0
	for _, f := range findings {
		if IsTemplateJunk(f) || IsTooShort(f, minChars) {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	return kept, removed
}

func (r *Repairer) translate(ctx context.Context, text string) (string, error) {
	if r.llm == nil {
		return "", errKind(ErrKindLLMUnavailable, "no llm client configured")
	}
	prompt := "Переведи следующий научный текст с английского на русский язык:\n\n" + text
	respText, err := r.llm.Complete(ctx, translationPreset, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(respText), nil
}

func (r *Repairer) enrichViaLLM(ctx context.Context, p Paper, current []string, needed int) ([]string, error) {
	prompt := buildEnrichmentPrompt(p.EffectiveTitle(), p.EffectiveAbstract(), current, needed)
	respText, err := r.llm.Complete(ctx, enrichmentPreset, prompt)
	if err != nil {
		return nil, err
	}
	return ParseStringArray(respText)
}

func buildEnrichmentPrompt(title, abstract string, current []string, needed int) string {
	var currentLines strings.Builder
	for i, f := range current {
		currentLines.WriteString(fmt.Sprintf("%d. %s\n", i+1, f))
	}

	return fmt.Sprintf(`НАУЧНАЯ СТАТЬЯ:
Заголовок: %s
Аннотация: %s

ТЕКУЩИЕ КЛЮЧЕВЫЕ ВЫВОДЫ (%d):
%s
ЗАДАЧА: Добавь %d новых содержательных ключевых выводов на основе аннотации статьи.

ТРЕБОВАНИЯ:
- Каждый вывод должен быть конкретным и научно обоснованным
- НЕ дублируй существующие выводы
- НЕ используй шаблонные фразы типа "Дополнительный научный вывод"
- Длина каждого вывода: 20-100 слов
- Выводы должны раскрывать различные аспекты исследования
- Основывайся ТОЛЬКО на информации из аннотации

ФОРМАТ ОТВЕТА:
Верни только новые выводы в формате JSON массива:
["Новый вывод 1", "Новый вывод 2"]`,
		title, abstract, len(current), currentLines.String(), needed)
}
