package main

import (
	"context"
	"log"
)

// AnalyzeStats is the read-only view of corpus health. Nothing is written.
type AnalyzeStats struct {
	Total            int
	Compliant        int
	NeedsMore        int
	Empty            int
	WithJunk         int
	NeedsTranslation int
	TotalFindings    int
	AvgFindings      float64
	ShortAbstracts   int
}

// RunAnalyze lists the corpus and reports where each record stands against
// the invariants, without issuing a single write.
func RunAnalyze(ctx context.Context, store *Store, cfg Config) (AnalyzeStats, error) {
	papers, err := store.ListPapers(ctx, paperSelectColumns, "publication_date.desc")
	if err != nil {
		return AnalyzeStats{}, err
	}

	var stats AnalyzeStats
	stats.Total = len(papers)
	for _, p := range papers {
		findings := p.EffectiveFindings()
		stats.TotalFindings += len(findings)
		switch {
		case len(findings) >= cfg.TargetFindings:
			stats.Compliant++
		case len(findings) > 0:
			stats.NeedsMore++
		default:
			stats.Empty++
		}
		if hasJunkFindings(p, cfg) {
			stats.WithJunk++
		}
		if needsAnyTranslation(p, cfg) {
			stats.NeedsTranslation++
		}
		if !p.HasUsableAbstract() {
			stats.ShortAbstracts++
		}
	}
	if stats.Total > 0 {
		stats.AvgFindings = float64(stats.TotalFindings) / float64(stats.Total)
	}

	log.Printf("analyze total=%d compliant=%d needs_more=%d empty=%d", stats.Total, stats.Compliant, stats.NeedsMore, stats.Empty)
	log.Printf("analyze with_junk=%d needs_translation=%d short_abstracts=%d avg_findings=%.1f",
		stats.WithJunk, stats.NeedsTranslation, stats.ShortAbstracts, stats.AvgFindings)
	return stats, nil
}
