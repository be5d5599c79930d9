package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeStore serves the minimal REST surface the adapter uses and applies
// PATCH bodies to its in-memory rows.
type fakeStore struct {
	mu      sync.Mutex
	papers  []Paper
	patches []map[string]any
	srv     *httptest.Server
}

func newFakeStore(t *testing.T, papers []Paper) *fakeStore {
	t.Helper()
	fs := &fakeStore{papers: papers}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/rest/v1/research_papers") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("apikey") == "" || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Fatalf("missing auth headers: %v", r.Header)
		}

		fs.mu.Lock()
		defer fs.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(fs.papers)
		case http.MethodPatch:
			idFilter := r.URL.Query().Get("id")
			id, err := strconv.ParseInt(strings.TrimPrefix(idFilter, "eq."), 10, 64)
			if err != nil {
				t.Fatalf("bad id filter %q", idFilter)
			}
			var patch map[string]any
			if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
				t.Fatalf("bad patch body: %v", err)
			}
			fs.patches = append(fs.patches, patch)
			for i := range fs.papers {
				if fs.papers[i].ID == id {
					applyPatch(&fs.papers[i], patch)
					_ = json.NewEncoder(w).Encode([]Paper{fs.papers[i]})
					return
				}
			}
			t.Fatalf("patch for unknown id %d", id)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func applyPatch(p *Paper, patch map[string]any) {
	if v, ok := patch["title_ru"]; ok {
		s := v.(string)
		p.TitleRu = &s
	}
	if v, ok := patch["abstract_ru"]; ok {
		s := v.(string)
		p.AbstractRu = &s
	}
	if v, ok := patch["key_findings_ru"]; ok {
		p.KeyFindingsRu = anyToStrings(v)
	}
	if v, ok := patch["key_findings"]; ok {
		p.KeyFindings = anyToStrings(v)
	}
}

func anyToStrings(v any) []string {
	arr := v.([]any)
	out := make([]string, 0, len(arr))
	for _, x := range arr {
		out = append(out, x.(string))
	}
	return out
}

type captureReporter struct {
	events []RecordEvent
	stats  *RunStats
}

func (c *captureReporter) Record(ev RecordEvent)            { c.events = append(c.events, ev) }
func (c *captureReporter) Summary(_ string, stats RunStats) { c.stats = &stats }

func newTestDriver(t *testing.T, fs *fakeStore, llm Completer) (*Driver, *captureReporter) {
	t.Helper()
	cfg := testConfig()
	cfg.StoreURL = fs.srv.URL
	cfg.StoreKey = "test-key"
	cfg.DelayMS = -1 // no pacing in tests
	rep := &captureReporter{}
	return NewDriver(NewStore(cfg), NewRepairer(llm, cfg), rep, cfg), rep
}

func TestDriverCleanRemovesTemplateWithSinglePatch(t *testing.T) {
	findings := []string{
		"Дополнительный научный вывод 1 на основе исследования",
		"Связь уровня мелатонина с качеством сна подтверждена в группе из 120 участников.",
		"Снижение кортизола наблюдалось через 4 недели после вмешательства.",
		"Эффект сохранялся при последующем наблюдении в течение 3 месяцев.",
	}
	fs := newFakeStore(t, []Paper{{
		ID:            1,
		Title:         "Melatonin",
		KeyFindings:   append([]string{}, findings...),
		KeyFindingsRu: append([]string{}, findings...),
	}})
	driver, rep := newTestDriver(t, fs, nil)

	stats, err := driver.Run(context.Background(), CleanJob())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(fs.patches) != 1 {
		t.Fatalf("patch count = %d, want 1", len(fs.patches))
	}
	patch := fs.patches[0]
	if len(patch) != 2 {
		t.Fatalf("patch must carry exactly key_findings_ru and key_findings, got %v", patch)
	}
	for _, key := range []string{"key_findings_ru", "key_findings"} {
		got, ok := patch[key]
		if !ok {
			t.Fatalf("patch missing %s: %v", key, patch)
		}
		if kept := anyToStrings(got); !stringSlicesEqual(kept, findings[1:]) {
			t.Fatalf("%s = %v, want %v", key, kept, findings[1:])
		}
	}
	if stats.Patched != 1 || stats.JunkRemoved != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(rep.events) != 1 || rep.events[0].Action != ActionPatched {
		t.Fatalf("events = %+v", rep.events)
	}
}

func TestDriverSecondRunIssuesZeroPatches(t *testing.T) {
	findings := []string{
		"Дополнительный научный вывод 1 на основе исследования",
		"Связь уровня мелатонина с качеством сна подтверждена в группе из 120 участников.",
		"Снижение кортизола наблюдалось через 4 недели после вмешательства.",
		"Эффект сохранялся при последующем наблюдении в течение 3 месяцев.",
	}
	fs := newFakeStore(t, []Paper{{
		ID:            1,
		Title:         "Melatonin",
		KeyFindings:   append([]string{}, findings...),
		KeyFindingsRu: append([]string{}, findings...),
	}})
	driver, _ := newTestDriver(t, fs, nil)

	if _, err := driver.Run(context.Background(), CleanJob()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first := len(fs.patches)

	stats, err := driver.Run(context.Background(), CleanJob())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(fs.patches) != first {
		t.Fatalf("second run issued %d extra patches", len(fs.patches)-first)
	}
	if stats.Patched != 0 || stats.Eligible != 0 {
		t.Fatalf("second run stats = %+v", stats)
	}
}

func TestDriverEnrichConverges(t *testing.T) {
	fs := newFakeStore(t, []Paper{
		{
			ID:       1,
			Title:    "Sleep study",
			Abstract: strings.Repeat("Аннотация достаточной длины про влияние сна на память. ", 8),
			KeyFindingsRu: []string{
				"Продолжительность глубокого сна коррелирует с точностью воспроизведения.",
			},
			KeyFindings: []string{
				"Продолжительность глубокого сна коррелирует с точностью воспроизведения.",
			},
		},
		{
			// Already compliant; must not be touched.
			ID: 2,
			KeyFindingsRu: []string{
				"Первый валидный вывод достаточной длины про результаты.",
				"Второй валидный вывод достаточной длины про методику.",
				"Третий валидный вывод достаточной длины про выборку.",
			},
			KeyFindings: []string{
				"Первый валидный вывод достаточной длины про результаты.",
				"Второй валидный вывод достаточной длины про методику.",
				"Третий валидный вывод достаточной длины про выборку.",
			},
		},
	})
	fake := &fakeCompleter{responses: []string{
		`["Участники с депривацией сна показали снижение внимания на 18%.", "Дневной сон частично восстанавливал показатели рабочей памяти."]`,
	}}
	driver, rep := newTestDriver(t, fs, fake)

	stats, err := driver.Run(context.Background(), EnrichJob())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("LLM calls = %d, want 1", fake.calls)
	}
	if len(fs.patches) != 1 {
		t.Fatalf("patch count = %d, want 1", len(fs.patches))
	}
	if stats.Compliant != 2 || stats.Partial != 0 {
		t.Fatalf("final histogram = %+v", stats)
	}
	if len(rep.events) != 1 || rep.events[0].AfterFindings != 3 {
		t.Fatalf("events = %+v", rep.events)
	}
}

func TestDriverTranslatePatchesTitleOnly(t *testing.T) {
	english := "The effects of sleep deprivation on memory consolidation"
	russianAbstract := "Аннотация уже на русском языке и перевода не требует."
	fs := newFakeStore(t, []Paper{{
		ID:         1,
		Title:      english,
		TitleRu:    strPtr(english),
		Abstract:   "Some abstract",
		AbstractRu: strPtr(russianAbstract),
	}})
	fake := &fakeCompleter{responses: []string{"Влияние депривации сна на консолидацию памяти"}}
	driver, _ := newTestDriver(t, fs, fake)

	if _, err := driver.Run(context.Background(), TranslateJob()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(fs.patches) != 1 {
		t.Fatalf("patch count = %d, want 1", len(fs.patches))
	}
	patch := fs.patches[0]
	if len(patch) != 1 {
		t.Fatalf("patch must carry title_ru only, got %v", patch)
	}
	if patch["title_ru"] != "Влияние депривации сна на консолидацию памяти" {
		t.Fatalf("title_ru = %v", patch["title_ru"])
	}
}

func TestDriverRecordsFailedActionOnPatchError(t *testing.T) {
	// A record whose repair fails end to end is reported, not fatal.
	fs := newFakeStore(t, []Paper{
		{
			ID:      1,
			Title:   "A randomized controlled trial of mindfulness meditation",
			TitleRu: strPtr("A randomized controlled trial of mindfulness meditation"),
		},
		{
			ID:      2,
			Title:   "The effects of exercise on mood in clinical populations",
			TitleRu: strPtr("The effects of exercise on mood in clinical populations"),
		},
	})
	fake := &fakeCompleter{
		errs:      []error{errKind(ErrKindLLMUnavailable, "down")},
		responses: []string{"", "Влияние физических упражнений на настроение в клинических группах"},
	}
	driver, rep := newTestDriver(t, fs, fake)

	stats, err := driver.Run(context.Background(), TranslateJob())
	if err != nil {
		t.Fatalf("per-record errors must not fail the run: %v", err)
	}
	if stats.Unchanged != 1 || stats.Patched != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(rep.events) != 2 {
		t.Fatalf("events = %+v", rep.events)
	}
	if rep.events[0].Action != ActionUnchanged || rep.events[0].ErrKind != ErrKindLLMUnavailable {
		t.Fatalf("first event = %+v", rep.events[0])
	}
	if rep.events[1].Action != ActionPatched {
		t.Fatalf("second event = %+v", rep.events[1])
	}
}

func TestDriverCancellationStopsCleanly(t *testing.T) {
	fs := newFakeStore(t, []Paper{
		{ID: 1, TitleRu: strPtr("The study of sleep and memory consolidation"), Title: "x"},
	})
	driver, _ := newTestDriver(t, fs, &fakeCompleter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := driver.Run(ctx, TranslateJob()); err == nil {
		t.Fatal("cancelled run must surface the context error")
	}
	if len(fs.patches) != 0 {
		t.Fatalf("cancelled run wrote %d patches", len(fs.patches))
	}
}

func TestDiffPaperIsFieldMinimal(t *testing.T) {
	p := Paper{
		ID:            1,
		TitleRu:       strPtr("Заголовок"),
		AbstractRu:    strPtr("Аннотация"),
		KeyFindingsRu: []string{"а", "б"},
		KeyFindings:   []string{"a", "b"},
	}
	if patch := diffPaper(p, p); len(patch) != 0 {
		t.Fatalf("identical papers must diff to empty, got %v", patch)
	}

	proposed := p
	proposed.KeyFindingsRu = []string{"а", "б", "в"}
	patch := diffPaper(p, proposed)
	if len(patch) != 1 {
		t.Fatalf("patch = %v, want only key_findings_ru", patch)
	}
	if _, ok := patch["key_findings_ru"]; !ok {
		t.Fatalf("patch missing key_findings_ru: %v", patch)
	}
}

func TestDiffPaperKeepsEmptyListNotNull(t *testing.T) {
	p := Paper{ID: 1, KeyFindingsRu: []string{"Дополнительный вывод"}, KeyFindings: []string{}}
	proposed := p
	proposed.KeyFindingsRu = nil
	patch := diffPaper(p, proposed)
	v, ok := patch["key_findings_ru"].([]string)
	if !ok || v == nil || len(v) != 0 {
		t.Fatalf("cleaned-to-empty list must serialize as [], got %#v", patch["key_findings_ru"])
	}
}
