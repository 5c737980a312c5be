package merge

import (
	"testing"

	"github.com/turtacn/LegisGraph/internal/intelligence/common"
	"github.com/turtacn/LegisGraph/pkg/errors"
)

func newTestMerger(t *testing.T) Merger {
	t.Helper()
	return NewMerger(nil)
}

func entity(text string, start, end int) common.Entity {
	return common.Entity{
		Text:       text,
		Type:       "AGENCY",
		Start:      start,
		End:        end,
		Confidence: 0.9,
		Source:     common.SourcePattern,
	}
}

func TestMerge_Empty(t *testing.T) {
	m := newTestMerger(t)
	got, err := m.Merge("some document", nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got.Entities == nil || len(got.Entities) != 0 {
		t.Errorf("Entities = %#v, want empty non-nil slice", got.Entities)
	}
	if got.Relations == nil || len(got.Relations) != 0 {
		t.Errorf("Relations = %#v, want empty non-nil slice", got.Relations)
	}
	if got.DroppedEntities != 0 {
		t.Errorf("DroppedEntities = %d, want 0", got.DroppedEntities)
	}
}

func TestMerge_ShiftsEntitySpans(t *testing.T) {
	document := "Alpha beta. Gamma delta."
	m := newTestMerger(t)

	got, err := m.Merge(document, []ChunkResult{
		{Start: 0, Text: "Alpha beta.", Entities: []common.Entity{entity("Alpha", 0, 5)}},
		{Start: 12, Text: "Gamma delta.", Entities: []common.Entity{entity("Gamma", 0, 5)}},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(got.Entities) != 2 {
		t.Fatalf("got %d entities, want 2: %+v", len(got.Entities), got.Entities)
	}

	first, second := got.Entities[0], got.Entities[1]
	if first.Start != 0 || first.End != 5 {
		t.Errorf("first span = [%d,%d), want [0,5)", first.Start, first.End)
	}
	if second.Start != 12 || second.End != 17 {
		t.Errorf("second span = [%d,%d), want [12,17)", second.Start, second.End)
	}
	for _, e := range got.Entities {
		if document[e.Start:e.End] != e.Text {
			t.Errorf("document[%d:%d] = %q, want %q", e.Start, e.End, document[e.Start:e.End], e.Text)
		}
	}
}

func TestMerge_PreservesChunkOrder(t *testing.T) {
	document := "aa bb cc"
	m := newTestMerger(t)

	got, err := m.Merge(document, []ChunkResult{
		{
			Start:    0,
			Text:     "aa bb",
			Entities: []common.Entity{entity("aa", 0, 2), entity("bb", 3, 5)},
			Relations: []common.Relation{
				{Subject: "aa", Predicate: "precedes", Object: "bb", Source: common.SourcePattern},
			},
		},
		{
			Start:    6,
			Text:     "cc",
			Entities: []common.Entity{entity("cc", 0, 2)},
			Relations: []common.Relation{
				{Subject: "bb", Predicate: "precedes", Object: "cc", Source: common.SourceAnnotation},
			},
		},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	wantTexts := []string{"aa", "bb", "cc"}
	if len(got.Entities) != len(wantTexts) {
		t.Fatalf("got %d entities, want %d", len(got.Entities), len(wantTexts))
	}
	for i, w := range wantTexts {
		if got.Entities[i].Text != w {
			t.Errorf("entity %d = %q, want %q", i, got.Entities[i].Text, w)
		}
	}
	if len(got.Relations) != 2 || got.Relations[0].Object != "bb" || got.Relations[1].Object != "cc" {
		t.Errorf("relations out of chunk order: %+v", got.Relations)
	}
}

func TestMerge_DropsBoundaryCrossingSpans(t *testing.T) {
	document := "Alpha beta. Gamma delta."
	m := newTestMerger(t)

	got, err := m.Merge(document, []ChunkResult{
		{Start: 0, Text: "Alpha beta.", Entities: []common.Entity{
			entity("Alpha", 0, 5),
			entity("beta. Gam", 6, 15),
		}},
		{Start: 12, Text: "Gamma delta.", Entities: []common.Entity{entity("delta", 6, 11)}},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if got.DroppedEntities != 1 {
		t.Errorf("DroppedEntities = %d, want 1", got.DroppedEntities)
	}
	if len(got.Entities) != 2 {
		t.Fatalf("got %d entities, want 2: %+v", len(got.Entities), got.Entities)
	}
	for _, e := range got.Entities {
		if e.Text == "beta. Gam" {
			t.Error("boundary-crossing entity survived the merge")
		}
		if e.End > len(document) || e.Start < 0 || e.Start >= e.End {
			t.Errorf("surviving span [%d,%d) violates the document invariant", e.Start, e.End)
		}
	}
}

func TestMerge_DropsDegenerateSpans(t *testing.T) {
	document := "Alpha beta."
	cases := []struct {
		name  string
		start int
		end   int
	}{
		{"empty span", 3, 3},
		{"inverted span", 5, 2},
		{"negative start", -1, 4},
		{"end past chunk", 0, 12},
	}
	m := newTestMerger(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.Merge(document, []ChunkResult{
				{Start: 0, Text: document, Entities: []common.Entity{entity("x", tc.start, tc.end)}},
			})
			if err != nil {
				t.Fatalf("Merge: %v", err)
			}
			if len(got.Entities) != 0 || got.DroppedEntities != 1 {
				t.Errorf("kept %d dropped %d, want the span dropped", len(got.Entities), got.DroppedEntities)
			}
		})
	}
}

func TestMerge_MultiByteOffsets(t *testing.T) {
	document := "ʻaina matters. More text."
	m := newTestMerger(t)

	got, err := m.Merge(document, []ChunkResult{
		{Start: 0, Text: "ʻaina matters.", Entities: []common.Entity{entity("ʻaina", 0, 6)}},
		{Start: 16, Text: "More text.", Entities: []common.Entity{entity("More", 0, 4)}},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(got.Entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(got.Entities))
	}
	for _, e := range got.Entities {
		if document[e.Start:e.End] != e.Text {
			t.Errorf("document[%d:%d] = %q, want %q", e.Start, e.End, document[e.Start:e.End], e.Text)
		}
	}
}

func TestMerge_RejectsMisplacedChunks(t *testing.T) {
	document := "Alpha beta."
	cases := []struct {
		name  string
		chunk ChunkResult
	}{
		{"negative start", ChunkResult{Start: -1, Text: "Alpha"}},
		{"past the end", ChunkResult{Start: 8, Text: "beta."}},
		{"text mismatch", ChunkResult{Start: 0, Text: "Gamma"}},
	}
	m := newTestMerger(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Merge(document, []ChunkResult{tc.chunk})
			if err == nil {
				t.Fatal("expected a merge error for a misplaced chunk")
			}
			if !errors.IsCode(err, errors.ErrCodeOffsetInvariant) {
				t.Errorf("error code = %s, want %s", errors.GetCode(err), errors.ErrCodeOffsetInvariant)
			}
		})
	}
}
