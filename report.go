package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// RecordEvent is the per-record outcome line: exactly one per examined
// record.
type RecordEvent struct {
	PaperID        int64
	Action         PaperAction
	BeforeFindings int
	AfterFindings  int
	JunkRemoved    int
	Translated     int
	ErrKind        ErrorKind
	Err            error
}

// RunStats is the end-of-run aggregate view.
type RunStats struct {
	Scanned   int
	Eligible  int
	Patched   int
	Unchanged int
	Failed    int

	JunkRemoved          int
	TranslationsRepaired int
	LLMFailures          int
	FallbackUsed         int

	Compliant   int
	Partial     int
	Empty       int
	AvgFindings float64

	Duration time.Duration
}

// Reporter is a sink for pipeline events. Sinks must not fail the run.
type Reporter interface {
	Record(ev RecordEvent)
	Summary(job string, stats RunStats)
}

// logReporter is the line-oriented human-readable sink.
type logReporter struct{}

func NewLogReporter() Reporter { return logReporter{} }

func (logReporter) Record(ev RecordEvent) {
	line := fmt.Sprintf("record id=%d action=%s findings=%d->%d", ev.PaperID, ev.Action, ev.BeforeFindings, ev.AfterFindings)
	if ev.JunkRemoved > 0 {
		line += fmt.Sprintf(" junk_removed=%d", ev.JunkRemoved)
	}
	if ev.Translated > 0 {
		line += fmt.Sprintf(" translated=%d", ev.Translated)
	}
	if ev.Err != nil {
		line += fmt.Sprintf(" error_kind=%s error=%q", ev.ErrKind, ev.Err.Error())
	}
	log.Print(line)
}

func (logReporter) Summary(job string, s RunStats) {
	for _, line := range strings.Split(formatSummary(job, s), "\n") {
		log.Print(line)
	}
}

func formatSummary(job string, s RunStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run=%s done in %s\n", job, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "scanned=%d eligible=%d patched=%d unchanged=%d failed=%d\n",
		s.Scanned, s.Eligible, s.Patched, s.Unchanged, s.Failed)
	fmt.Fprintf(&b, "junk_removed=%d translations_repaired=%d llm_failures=%d fallback_used=%d\n",
		s.JunkRemoved, s.TranslationsRepaired, s.LLMFailures, s.FallbackUsed)
	total := s.Compliant + s.Partial + s.Empty
	if total > 0 {
		fmt.Fprintf(&b, "compliant=%d (%.1f%%) partial=%d (%.1f%%) empty=%d (%.1f%%) avg_findings=%.1f",
			s.Compliant, pct(s.Compliant, total),
			s.Partial, pct(s.Partial, total),
			s.Empty, pct(s.Empty, total),
			s.AvgFindings)
	} else {
		b.WriteString("no records in final histogram")
	}
	return b.String()
}

func pct(n, total int) float64 {
	return float64(n) / float64(total) * 100
}

// slackReporter posts only the final summary to a channel. Per-record events
// stay in the local log.
type slackReporter struct {
	api       *slack.Client
	channelID string
}

func NewSlackReporter(token, channelID string) Reporter {
	return &slackReporter{api: slack.New(token), channelID: channelID}
}

func (r *slackReporter) Record(RecordEvent) {}

func (r *slackReporter) Summary(job string, stats RunStats) {
	text := "neurofix " + formatSummary(job, stats)
	if _, _, err := r.api.PostMessage(r.channelID, slack.MsgOptionText(text, false)); err != nil {
		log.Printf("slack summary post error: %v", err)
	}
}

// multiReporter fans events out to several sinks.
type multiReporter []Reporter

func NewMultiReporter(sinks ...Reporter) Reporter { return multiReporter(sinks) }

func (m multiReporter) Record(ev RecordEvent) {
	for _, r := range m {
		r.Record(ev)
	}
}

func (m multiReporter) Summary(job string, stats RunStats) {
	for _, r := range m {
		r.Summary(job, stats)
	}
}
