package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/turtacn/LegisGraph/internal/intelligence/annotate"
	"github.com/turtacn/LegisGraph/internal/intelligence/canonical"
	"github.com/turtacn/LegisGraph/internal/intelligence/common"
	"github.com/turtacn/LegisGraph/internal/intelligence/patterns"
	"github.com/turtacn/LegisGraph/internal/intelligence/textproc"
	"github.com/turtacn/LegisGraph/pkg/errors"
)

type fakeAnnotator struct {
	fn func(ctx context.Context, chunk string) (*annotate.ChunkAnnotation, error)
}

func (f *fakeAnnotator) Annotate(ctx context.Context, chunk string) (*annotate.ChunkAnnotation, error) {
	return f.fn(ctx, chunk)
}

func newTestPipeline(t *testing.T, cfg *Config, deps Dependencies) Pipeline {
	t.Helper()
	p, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func patternOnlyConfig() *Config {
	return &Config{Mode: ModePatternOnly, Parallelism: 1, ChunkTimeout: time.Minute, RunTimeout: time.Minute}
}

func remoteFirstConfig() *Config {
	return &Config{Mode: ModeRemoteFirst, Parallelism: 1, ChunkTimeout: time.Minute, RunTimeout: time.Minute}
}

func smallChunker(t *testing.T, maxChars int) textproc.Chunker {
	t.Helper()
	c, err := textproc.NewChunker(&textproc.ChunkerConfig{MaxChunkChars: maxChars}, nil)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	return c
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"remote_first", ModeRemoteFirst, false},
		{"pattern_only", ModePatternOnly, false},
		{"  Pattern_Only ", ModePatternOnly, false},
		{"REMOTE_FIRST", ModeRemoteFirst, false},
		{"bogus", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q): expected an error", tc.in)
			} else if !errors.IsCode(err, errors.ErrCodeInvalidMode) {
				t.Errorf("ParseMode(%q) code = %s, want %s", tc.in, errors.GetCode(err), errors.ErrCodeInvalidMode)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseMode(%q) = %q, %v, want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "hybrid" }},
		{"zero parallelism", func(c *Config) { c.Parallelism = 0 }},
		{"negative parallelism", func(c *Config) { c.Parallelism = -2 }},
		{"zero chunk timeout", func(c *Config) { c.ChunkTimeout = 0 }},
		{"zero run timeout", func(c *Config) { c.RunTimeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestNew_RemoteFirstRequiresAnnotator(t *testing.T) {
	if _, err := New(remoteFirstConfig(), Dependencies{}); err == nil {
		t.Fatal("expected an error when remote_first has no annotator")
	}
	if _, err := New(patternOnlyConfig(), Dependencies{}); err != nil {
		t.Fatalf("pattern_only must build without an annotator: %v", err)
	}
}

func TestRun_EmptyDocumentFailsFast(t *testing.T) {
	calls := 0
	p := newTestPipeline(t, remoteFirstConfig(), Dependencies{
		Annotator: &fakeAnnotator{fn: func(context.Context, string) (*annotate.ChunkAnnotation, error) {
			calls++
			return &annotate.ChunkAnnotation{}, nil
		}},
	})

	for _, doc := range []string{"", "   \n\t  "} {
		res, err := p.Run(context.Background(), doc)
		if err == nil {
			t.Fatalf("Run(%q): expected an error", doc)
		}
		if !errors.IsCode(err, errors.ErrCodeEmptyDocument) {
			t.Errorf("Run(%q) code = %s, want %s", doc, errors.GetCode(err), errors.ErrCodeEmptyDocument)
		}
		if res != nil {
			t.Errorf("Run(%q) returned a result alongside the error", doc)
		}
	}
	if calls != 0 {
		t.Errorf("annotator was called %d times before validation", calls)
	}
}

func TestRun_PatternOnly_AnchorScenario(t *testing.T) {
	document := "The Department of Education manages the Farm to School Program. " +
		"The DOE reports to the Legislature."

	catalog := &patterns.Catalog{
		Entities: []patterns.EntityPattern{
			{Type: "AGENCY", Expr: `department of education`, Confidence: 0.95},
			{Type: "AGENCY", Expr: `\bDOE\b`, Confidence: 0.9},
			{Type: "PROGRAM", Expr: `farm to school program`, Confidence: 0.95},
		},
		Relations: []patterns.RelationPattern{
			{
				Type:         "MANAGEMENT",
				Expr:         `\b(?:the )?([a-z][a-z ]+?) manages (?:the )?([a-z][a-z ]+?)(?:[.,;:]|$)`,
				SubjectGroup: 1,
				Predicate:    "manages",
				ObjectGroup:  2,
				Confidence:   0.9,
			},
			{
				Type:         "REPORTING",
				Expr:         `\b(?:the )?([a-z][a-z ]+?) reports to (?:the )?([a-z][a-z ]+?)(?:[.,;:]|$)`,
				SubjectGroup: 1,
				Predicate:    "reports to",
				ObjectGroup:  2,
				Confidence:   0.9,
			},
		},
	}
	extractor, err := patterns.NewExtractor(catalog, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	canonicalizer := canonical.NewCanonicalizer(
		canonical.NewAliasTableFromMap(map[string]string{"doe": "department of education"}), nil)

	p := newTestPipeline(t, patternOnlyConfig(), Dependencies{
		Extractor:     extractor,
		Canonicalizer: canonicalizer,
	})

	res, err := p.Run(context.Background(), document)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantEntities := []struct {
		text    string
		typeTag string
		start   int
	}{
		{"department of education", "AGENCY", 4},
		{"farm to school program", "PROGRAM", 41},
	}
	if len(res.Entities) != len(wantEntities) {
		t.Fatalf("got %d entities, want %d: %+v", len(res.Entities), len(wantEntities), res.Entities)
	}
	for i, w := range wantEntities {
		e := res.Entities[i]
		if e.Text != w.text || e.Type != w.typeTag || e.Start != w.start {
			t.Errorf("entity %d = (%q, %s, %d), want (%q, %s, %d)", i, e.Text, e.Type, e.Start, w.text, w.typeTag, w.start)
		}
		if strings.ToLower(document[e.Start:e.End]) != e.Text {
			t.Errorf("entity %d span [%d,%d) does not address its surface form", i, e.Start, e.End)
		}
		if e.Source != common.SourcePattern {
			t.Errorf("entity %d source = %q, want %q", i, e.Source, common.SourcePattern)
		}
	}

	wantRelations := []struct{ s, p, o string }{
		{"department of education", "manages", "farm to school program"},
		{"department of education", "reports to", "legislature"},
	}
	if len(res.Relations) != len(wantRelations) {
		t.Fatalf("got %d relations, want %d: %+v", len(res.Relations), len(wantRelations), res.Relations)
	}
	for i, w := range wantRelations {
		r := res.Relations[i]
		if r.Subject != w.s || r.Predicate != w.p || r.Object != w.o {
			t.Errorf("relation %d = (%q, %q, %q), want (%q, %q, %q)", i, r.Subject, r.Predicate, r.Object, w.s, w.p, w.o)
		}
	}

	if res.Mode != ModePatternOnly || res.TotalChunks != 1 || res.FallbackChunks != 0 {
		t.Errorf("run accounting = (%s, %d, %d), want (pattern_only, 1, 0)", res.Mode, res.TotalChunks, res.FallbackChunks)
	}
	if res.Summary != "0 of 1 chunks used fallback" {
		t.Errorf("Summary = %q", res.Summary)
	}
}

func TestRun_PatternOnly_Deterministic(t *testing.T) {
	document := "The purpose of this Act is to move the farm to school program from the " +
		"department of agriculture to the department of education. The department " +
		"of education shall submit an annual report to the legislature."

	p := newTestPipeline(t, patternOnlyConfig(), Dependencies{})

	first, err := p.Run(context.Background(), document)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := p.Run(context.Background(), document)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !reflect.DeepEqual(first.Entities, second.Entities) {
		t.Error("entities differ between identical runs")
	}
	if !reflect.DeepEqual(first.Relations, second.Relations) {
		t.Error("relations differ between identical runs")
	}
	if len(first.Entities) == 0 || len(first.Relations) == 0 {
		t.Fatal("determinism fixture produced no output")
	}
}

func TestRun_RemoteFirst_UsesAnnotation(t *testing.T) {
	document := "DOE manages the program."

	annotator := &fakeAnnotator{fn: func(_ context.Context, chunk string) (*annotate.ChunkAnnotation, error) {
		return &annotate.ChunkAnnotation{
			Entities: []common.Entity{{
				Text: "DOE", Type: "ORGANIZATION", Start: 0, End: 3,
				Confidence: 0.8, Context: chunk, Source: common.SourceAnnotation,
			}},
			Relations: []common.Relation{{
				Subject: "DOE", Predicate: "manage", Object: "program",
				Type: "SVO", Confidence: 0.8, Context: chunk, Source: common.SourceAnnotation,
			}},
		}, nil
	}}

	p := newTestPipeline(t, remoteFirstConfig(), Dependencies{Annotator: annotator})
	res, err := p.Run(context.Background(), document)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.FallbackChunks != 0 || res.TotalChunks != 1 {
		t.Errorf("accounting = %d/%d, want 0 fallback of 1", res.FallbackChunks, res.TotalChunks)
	}
	if len(res.Entities) != 1 {
		t.Fatalf("got %d entities, want 1: %+v", len(res.Entities), res.Entities)
	}
	e := res.Entities[0]
	if e.Text != "department of education" {
		t.Errorf("entity text = %q, want the canonical alias resolution", e.Text)
	}
	if e.Source != common.SourceAnnotation {
		t.Errorf("entity source = %q, want %q", e.Source, common.SourceAnnotation)
	}
	if len(res.Relations) != 1 || res.Relations[0].Source != common.SourceAnnotation {
		t.Fatalf("relations = %+v, want one annotation-sourced relation", res.Relations)
	}
	if res.Relations[0].Subject != "department of education" {
		t.Errorf("relation subject = %q, want canonical form", res.Relations[0].Subject)
	}
}

func TestRun_RemoteFirst_FallbackPerChunk(t *testing.T) {
	document := "The DOE manages the program. The farm to school program grows."

	annotator := &fakeAnnotator{fn: func(_ context.Context, chunk string) (*annotate.ChunkAnnotation, error) {
		if strings.Contains(chunk, "DOE") {
			return &annotate.ChunkAnnotation{
				Entities: []common.Entity{{
					Text: "DOE", Type: "ORGANIZATION", Start: 4, End: 7,
					Confidence: 0.8, Context: chunk, Source: common.SourceAnnotation,
				}},
				Relations: []common.Relation{},
			}, nil
		}
		return nil, errors.Unavailable("annotation server unreachable")
	}}

	p := newTestPipeline(t, remoteFirstConfig(), Dependencies{
		Chunker:   smallChunker(t, 30),
		Annotator: annotator,
	})
	res, err := p.Run(context.Background(), document)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.TotalChunks != 2 || res.FallbackChunks != 1 {
		t.Fatalf("accounting = %d fallback of %d, want 1 of 2", res.FallbackChunks, res.TotalChunks)
	}
	if res.Summary != "1 of 2 chunks used fallback" {
		t.Errorf("Summary = %q", res.Summary)
	}

	var annotated, pattern int
	for _, e := range res.Entities {
		switch e.Source {
		case common.SourceAnnotation:
			annotated++
		case common.SourcePattern:
			pattern++
		}
	}
	if annotated == 0 || pattern == 0 {
		t.Errorf("want entities from both sources, got %d annotation / %d pattern: %+v", annotated, pattern, res.Entities)
	}
}

func TestRun_RemoteFirst_AllChunksFallBack(t *testing.T) {
	document := "The farm to school program grows. The department of education plans."

	annotator := &fakeAnnotator{fn: func(context.Context, string) (*annotate.ChunkAnnotation, error) {
		return nil, errors.Unavailable("annotation server unreachable")
	}}

	p := newTestPipeline(t, remoteFirstConfig(), Dependencies{
		Chunker:   smallChunker(t, 40),
		Annotator: annotator,
	})
	res, err := p.Run(context.Background(), document)
	if err != nil {
		t.Fatalf("Run must complete on pattern fallback: %v", err)
	}

	if res.FallbackChunks != res.TotalChunks || res.TotalChunks != 2 {
		t.Fatalf("accounting = %d fallback of %d, want all chunks fallen back", res.FallbackChunks, res.TotalChunks)
	}
	if len(res.Entities) == 0 {
		t.Fatal("pattern fallback produced no entities")
	}
	for _, e := range res.Entities {
		if e.Source != common.SourcePattern {
			t.Errorf("entity %q source = %q, want %q", e.Text, e.Source, common.SourcePattern)
		}
	}
}

func TestRun_CancellationAbortsWithoutPartialOutput(t *testing.T) {
	document := "First sentence of the bill. Second sentence of the bill."

	ctx, cancel := context.WithCancel(context.Background())
	annotator := &fakeAnnotator{fn: func(context.Context, string) (*annotate.ChunkAnnotation, error) {
		cancel()
		return nil, errors.Unavailable("connection reset")
	}}

	p := newTestPipeline(t, remoteFirstConfig(), Dependencies{
		Chunker:   smallChunker(t, 30),
		Annotator: annotator,
	})
	res, err := p.Run(ctx, document)
	if err == nil {
		t.Fatal("expected the run to abort on cancellation")
	}
	if !errors.IsCode(err, errors.ErrCodeNoChunksProcessed) {
		t.Errorf("error code = %s, want %s", errors.GetCode(err), errors.ErrCodeNoChunksProcessed)
	}
	if res != nil {
		t.Errorf("partial result presented as complete: %+v", res)
	}
}

func TestRun_ParallelismPreservesChunkOrder(t *testing.T) {
	var sentences []string
	for i := 1; i <= 8; i++ {
		sentences = append(sentences, fmt.Sprintf("Sentence about w%d.", i))
	}
	document := strings.Join(sentences, " ")

	extractor, err := patterns.NewExtractor(&patterns.Catalog{
		Entities: []patterns.EntityPattern{{Type: "WORD", Expr: `w\d+`, Confidence: 0.9}},
	}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	cfg := patternOnlyConfig()
	cfg.Parallelism = 4
	p := newTestPipeline(t, cfg, Dependencies{
		Chunker:   smallChunker(t, 20),
		Extractor: extractor,
	})

	res, err := p.Run(context.Background(), document)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalChunks != 8 {
		t.Fatalf("TotalChunks = %d, want 8", res.TotalChunks)
	}
	if len(res.Entities) != 8 {
		t.Fatalf("got %d entities, want 8: %+v", len(res.Entities), res.Entities)
	}
	for i, e := range res.Entities {
		if want := fmt.Sprintf("w%d", i+1); e.Text != want {
			t.Errorf("entity %d = %q, want %q (chunk order)", i, e.Text, want)
		}
		if i > 0 && res.Entities[i].Start <= res.Entities[i-1].Start {
			t.Errorf("entity %d start %d not ascending", i, e.Start)
		}
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	document := "First sentence here. Second sentence here."

	metrics := common.NewInMemoryExtractionMetrics()
	p := newTestPipeline(t, patternOnlyConfig(), Dependencies{
		Chunker: smallChunker(t, 25),
		Metrics: metrics,
	})

	if _, err := p.Run(context.Background(), document); err != nil {
		t.Fatalf("Run: %v", err)
	}

	chunks := metrics.GetRecordedChunks()
	if len(chunks) != 2 {
		t.Fatalf("recorded %d chunk events, want 2", len(chunks))
	}
	for _, c := range chunks {
		if c.Source != common.SourcePattern || !c.Success || c.Fallback {
			t.Errorf("chunk event = %+v, want successful pattern extraction", c)
		}
	}

	runs := metrics.GetRecordedRuns()
	if len(runs) != 1 {
		t.Fatalf("recorded %d run events, want 1", len(runs))
	}
	run := runs[0]
	if run.Mode != string(ModePatternOnly) || run.TotalChunks != 2 || !run.Success {
		t.Errorf("run event = %+v", run)
	}

	if _, err := p.Run(context.Background(), "   "); err == nil {
		t.Fatal("expected the empty run to fail")
	}
	runs = metrics.GetRecordedRuns()
	if len(runs) != 2 || runs[1].Success {
		t.Fatalf("failed run not recorded: %+v", runs)
	}
}
