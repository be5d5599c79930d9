package main

import (
	"context"
	"time"
)

// PaperAction is the terminal state of one record in a run.
type PaperAction string

const (
	ActionPatched   PaperAction = "patched"
	ActionUnchanged PaperAction = "unchanged"
	ActionFailed    PaperAction = "failed"
)

// Job is one subcommand's slice of the pipeline: which records are eligible
// and which repair strategies run. The overlapping legacy scripts each
// collapse to one of these tuples.
type Job struct {
	Name      string
	Translate bool
	Findings  bool
	NeedsLLM  bool
	Predicate func(Paper, Config) bool
}

func CleanJob() Job {
	return Job{Name: "clean", Findings: true, Predicate: hasJunkFindings}
}

func TranslateJob() Job {
	return Job{Name: "translate", Translate: true, NeedsLLM: true, Predicate: needsAnyTranslation}
}

func EnrichJob() Job {
	return Job{Name: "enrich", Findings: true, NeedsLLM: true, Predicate: findingsNeedWork}
}

func FixAllJob() Job {
	return Job{
		Name:      "fix-all",
		Translate: true,
		Findings:  true,
		NeedsLLM:  true,
		Predicate: func(p Paper, cfg Config) bool {
			return needsAnyTranslation(p, cfg) || findingsNeedWork(p, cfg)
		},
	}
}

func hasJunkFindings(p Paper, cfg Config) bool {
	for _, f := range p.KeyFindingsRu {
		if IsTemplateJunk(f) || IsTooShort(f, cfg.MinFindingChars) {
			return true
		}
	}
	for _, f := range p.KeyFindings {
		if IsTemplateJunk(f) || IsTooShort(f, cfg.MinFindingChars) {
			return true
		}
	}
	return false
}

func findingsNeedWork(p Paper, cfg Config) bool {
	return len(p.EffectiveFindings()) < cfg.TargetFindings || hasJunkFindings(p, cfg)
}

func needsAnyTranslation(p Paper, _ Config) bool {
	if NeedsTranslation(derefString(p.TitleRu)) {
		return true
	}
	if NeedsTranslation(derefString(p.AbstractRu)) {
		return true
	}
	for _, f := range p.KeyFindingsRu {
		if NeedsTranslation(f) {
			return true
		}
	}
	return false
}

// Driver walks the corpus one record at a time: list, filter, repair, diff,
// patch, pace. Single-threaded and cooperative; cancellation is checked at
// the top of each iteration, and a cancelled run leaves every already-patched
// record converged.
type Driver struct {
	store    *Store
	repairer *Repairer
	reporter Reporter
	cfg      Config
	delay    time.Duration
}

func NewDriver(store *Store, repairer *Repairer, reporter Reporter, cfg Config) *Driver {
	return &Driver{
		store:    store,
		repairer: repairer,
		reporter: reporter,
		cfg:      cfg,
		delay:    time.Duration(cfg.DelayMS) * time.Millisecond,
	}
}

// Run executes one job over the whole corpus, newest papers first. Per-record
// errors are reported and skipped; only a failed initial list is fatal.
func (d *Driver) Run(ctx context.Context, job Job) (RunStats, error) {
	var stats RunStats
	started := time.Now()

	papers, err := d.store.ListPapers(ctx, paperSelectColumns, "publication_date.desc")
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(papers)

	for _, p := range papers {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}
		if !job.Predicate(p, d.cfg) {
			continue
		}
		stats.Eligible++

		outcome := d.repairer.Repair(ctx, p, job)
		stats.JunkRemoved += outcome.JunkRemoved
		stats.TranslationsRepaired += outcome.Translated
		stats.LLMFailures += outcome.LLMFailures
		if outcome.FallbackUsed {
			stats.FallbackUsed++
		}

		event := RecordEvent{
			PaperID:        p.ID,
			BeforeFindings: len(p.EffectiveFindings()),
			AfterFindings:  len(outcome.Proposed.KeyFindingsRu),
			JunkRemoved:    outcome.JunkRemoved,
			Translated:     outcome.Translated,
		}
		if len(outcome.Errors) > 0 {
			event.Err = outcome.Errors[0]
			event.ErrKind = KindOf(outcome.Errors[0])
		}

		patch := diffPaper(p, outcome.Proposed)
		if len(patch) == 0 {
			event.Action = ActionUnchanged
			stats.Unchanged++
		} else if _, err := d.store.PatchPaper(ctx, p.ID, patch); err != nil {
			event.Action = ActionFailed
			event.Err = err
			event.ErrKind = KindOf(err)
			stats.Failed++
		} else {
			event.Action = ActionPatched
			stats.Patched++
		}
		d.reporter.Record(event)

		d.pause(ctx)
	}

	d.finalize(ctx, &stats)
	stats.Duration = time.Since(started)
	d.reporter.Summary(job.Name, stats)
	return stats, nil
}

// diffPaper builds a field-minimal patch: only keys whose proposed value
// differs from the stored one.
func diffPaper(current, proposed Paper) map[string]any {
	patch := make(map[string]any)
	if derefString(current.TitleRu) != derefString(proposed.TitleRu) {
		patch["title_ru"] = derefString(proposed.TitleRu)
	}
	if derefString(current.AbstractRu) != derefString(proposed.AbstractRu) {
		patch["abstract_ru"] = derefString(proposed.AbstractRu)
	}
	if !stringSlicesEqual(current.KeyFindingsRu, proposed.KeyFindingsRu) {
		patch["key_findings_ru"] = emptyNotNil(proposed.KeyFindingsRu)
	}
	if !stringSlicesEqual(current.KeyFindings, proposed.KeyFindings) {
		patch["key_findings"] = emptyNotNil(proposed.KeyFindings)
	}
	return patch
}

// emptyNotNil keeps a cleaned-to-empty list as [] rather than null in the
// patch body.
func emptyNotNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// finalize re-fetches finding counts and fills the run-final histogram.
func (d *Driver) finalize(ctx context.Context, stats *RunStats) {
	papers, err := d.store.ListPapers(ctx, "key_findings_ru,key_findings", "publication_date.desc")
	if err != nil {
		d.reporter.Record(RecordEvent{Action: ActionFailed, Err: err, ErrKind: KindOf(err)})
		return
	}
	total := 0
	for _, p := range papers {
		n := len(p.KeyFindingsRu)
		total += n
		switch {
		case n >= d.cfg.TargetFindings:
			stats.Compliant++
		case n > 0:
			stats.Partial++
		default:
			stats.Empty++
		}
	}
	if len(papers) > 0 {
		stats.AvgFindings = float64(total) / float64(len(papers))
	}
}

func (d *Driver) pause(ctx context.Context) {
	if d.delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d.delay):
	}
}
