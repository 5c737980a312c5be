package patterns

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/turtacn/LegisGraph/internal/intelligence/common"
	"github.com/turtacn/LegisGraph/pkg/errors"
)

func newTestExtractor(t *testing.T, catalog *Catalog) Extractor {
	t.Helper()
	ex, err := NewExtractor(catalog, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return ex
}

func entitiesOfType(ext *Extraction, typeTag string) []common.Entity {
	var out []common.Entity
	for _, e := range ext.Entities {
		if e.Type == typeTag {
			out = append(out, e)
		}
	}
	return out
}

func relationsOfType(ext *Extraction, typeTag string) []common.Relation {
	var out []common.Relation
	for _, r := range ext.Relations {
		if r.Type == typeTag {
			out = append(out, r)
		}
	}
	return out
}

func hasEntity(ext *Extraction, typeTag, text string) bool {
	for _, e := range ext.Entities {
		if e.Type == typeTag && strings.EqualFold(e.Text, text) {
			return true
		}
	}
	return false
}

func hasRelation(ext *Extraction, typeTag, subject, predicate, object string) bool {
	for _, r := range ext.Relations {
		if r.Type == typeTag && r.Subject == subject && r.Predicate == predicate && r.Object == object {
			return true
		}
	}
	return false
}

func TestNewExtractor_NilCatalogUsesDefault(t *testing.T) {
	ex, err := NewExtractor(nil, nil)
	if err != nil {
		t.Fatalf("NewExtractor(nil): %v", err)
	}
	got := ex.Extract("the farm to school program")
	if !hasEntity(got, "PROGRAM", "farm to school program") {
		t.Fatalf("default catalog did not recognize the program, got %+v", got.Entities)
	}
}

func TestNewExtractor_MalformedEntityExpression(t *testing.T) {
	_, err := NewExtractor(&Catalog{
		Entities: []EntityPattern{{Type: "AGENCY", Expr: `([unclosed`, Confidence: 0.9}},
	}, nil)
	if err == nil {
		t.Fatal("expected a construction error for a malformed expression")
	}
	if !errors.IsCode(err, errors.ErrCodePatternCatalog) {
		t.Fatalf("error code = %s, want %s", errors.GetCode(err), errors.ErrCodePatternCatalog)
	}
}

func TestNewExtractor_MalformedRelationExpression(t *testing.T) {
	_, err := NewExtractor(&Catalog{
		Relations: []RelationPattern{{
			Type: "X", Expr: `a{2,1}`, Subject: "s", Predicate: "p", Object: "o", Confidence: 0.9,
		}},
	}, nil)
	if err == nil {
		t.Fatal("expected a construction error for a malformed expression")
	}
	if !errors.IsCode(err, errors.ErrCodePatternCatalog) {
		t.Fatalf("error code = %s, want %s", errors.GetCode(err), errors.ErrCodePatternCatalog)
	}
}

func TestNewExtractor_RejectsIncompleteRecords(t *testing.T) {
	cases := []struct {
		name    string
		catalog *Catalog
	}{
		{"entity without type", &Catalog{Entities: []EntityPattern{{Expr: `x`, Confidence: 0.9}}}},
		{"entity without expression", &Catalog{Entities: []EntityPattern{{Type: "AGENCY", Confidence: 0.9}}}},
		{"relation without type", &Catalog{Relations: []RelationPattern{{Expr: `x`, Subject: "s", Predicate: "p", Object: "o"}}}},
		{"relation without expression", &Catalog{Relations: []RelationPattern{{Type: "X", Subject: "s", Predicate: "p", Object: "o"}}}},
		{"subject without source", &Catalog{Relations: []RelationPattern{{Type: "X", Expr: `x`, Predicate: "p", Object: "o"}}}},
		{"predicate without source", &Catalog{Relations: []RelationPattern{{Type: "X", Expr: `x`, Subject: "s", Object: "o"}}}},
		{"object without source", &Catalog{Relations: []RelationPattern{{Type: "X", Expr: `x`, Subject: "s", Predicate: "p"}}}},
		{"group out of range", &Catalog{Relations: []RelationPattern{{Type: "X", Expr: `(a)`, SubjectGroup: 2, Predicate: "p", Object: "o"}}}},
		{"secondary object without predicate", &Catalog{Relations: []RelationPattern{{
			Type: "X", Expr: `x`, Subject: "s", Predicate: "p", Object: "o", SecondaryObject: "o2",
		}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewExtractor(tc.catalog, nil); err == nil {
				t.Fatal("expected a construction error")
			} else if !errors.IsCode(err, errors.ErrCodePatternCatalog) {
				t.Fatalf("error code = %s, want %s", errors.GetCode(err), errors.ErrCodePatternCatalog)
			}
		})
	}
}

func TestExtract_EmptyChunk(t *testing.T) {
	ex := newTestExtractor(t, nil)
	got := ex.Extract("")
	if got.Entities == nil || len(got.Entities) != 0 {
		t.Fatalf("entities = %#v, want empty non-nil slice", got.Entities)
	}
	if got.Relations == nil || len(got.Relations) != 0 {
		t.Fatalf("relations = %#v, want empty non-nil slice", got.Relations)
	}
}

func TestExtract_EntityFields(t *testing.T) {
	ex := newTestExtractor(t, &Catalog{
		Entities: []EntityPattern{{Type: "AGENCY", Expr: `department of education`, Confidence: 0.95}},
	})
	chunk := "The Department of Education shall plan."
	got := ex.Extract(chunk)

	if len(got.Entities) != 1 {
		t.Fatalf("got %d entities, want 1: %+v", len(got.Entities), got.Entities)
	}
	e := got.Entities[0]
	if e.Text != "Department of Education" {
		t.Errorf("Text = %q, want the original casing from the chunk", e.Text)
	}
	if e.Start != 4 || e.End != 27 {
		t.Errorf("span = [%d,%d), want [4,27)", e.Start, e.End)
	}
	if e.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", e.Confidence)
	}
	if e.Context != chunk {
		t.Errorf("Context = %q, want the whole short chunk", e.Context)
	}
	if e.Source != common.SourcePattern {
		t.Errorf("Source = %q, want %q", e.Source, common.SourcePattern)
	}
}

func TestExtract_CaseInsensitive(t *testing.T) {
	ex := newTestExtractor(t, &Catalog{
		Entities: []EntityPattern{{Type: "AGENCY", Expr: `doe`, Confidence: 0.9}},
	})
	got := ex.Extract("DOE doe Doe")
	if len(got.Entities) != 3 {
		t.Fatalf("got %d matches, want 3: %+v", len(got.Entities), got.Entities)
	}
}

func TestExtract_RecordThenPositionOrder(t *testing.T) {
	ex := newTestExtractor(t, &Catalog{
		Entities: []EntityPattern{
			{Type: "FIRST", Expr: `bb`, Confidence: 0.9},
			{Type: "SECOND", Expr: `aa`, Confidence: 0.9},
		},
	})
	got := ex.Extract("aa bb aa")

	want := []struct {
		typeTag string
		start   int
	}{
		{"FIRST", 3},
		{"SECOND", 0},
		{"SECOND", 6},
	}
	if len(got.Entities) != len(want) {
		t.Fatalf("got %d entities, want %d: %+v", len(got.Entities), len(want), got.Entities)
	}
	for i, w := range want {
		e := got.Entities[i]
		if e.Type != w.typeTag || e.Start != w.start {
			t.Errorf("entity %d = (%s, %d), want (%s, %d)", i, e.Type, e.Start, w.typeTag, w.start)
		}
	}
}

func TestExtract_EntityContextWindow(t *testing.T) {
	pad := strings.Repeat("x", 150)
	chunk := pad + " department of education " + pad
	ex := newTestExtractor(t, &Catalog{
		Entities: []EntityPattern{{Type: "AGENCY", Expr: `department of education`, Confidence: 0.95}},
	})
	got := ex.Extract(chunk)
	if len(got.Entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(got.Entities))
	}
	start := strings.Index(chunk, "department")
	end := start + len("department of education")
	want := chunk[start-50 : end+50]
	if got.Entities[0].Context != want {
		t.Errorf("Context = %q, want 50 characters of context on each side", got.Entities[0].Context)
	}
}

func TestExtract_RelationContextWindow(t *testing.T) {
	pad := strings.Repeat("x", 150)
	chunk := pad + " alpha leads beta " + pad
	ex := newTestExtractor(t, &Catalog{
		Relations: []RelationPattern{{
			Type: "LEAD", Expr: `alpha leads beta`, Subject: "alpha", Predicate: "leads", Object: "beta", Confidence: 0.9,
		}},
	})
	got := ex.Extract(chunk)
	if len(got.Relations) != 1 {
		t.Fatalf("got %d relations, want 1", len(got.Relations))
	}
	start := strings.Index(chunk, "alpha")
	end := start + len("alpha leads beta")
	want := chunk[start-100 : end+100]
	if got.Relations[0].Context != want {
		t.Errorf("Context = %q, want 100 characters of context on each side", got.Relations[0].Context)
	}
}

func TestExtract_CaptureGroups(t *testing.T) {
	ex := newTestExtractor(t, &Catalog{
		Relations: []RelationPattern{{
			Type:           "MANAGEMENT",
			Expr:           `\b(?:the )?([a-z][a-z ]+?) (manages|administers|oversees) (?:the )?([a-z][a-z ]+?)(?:[.,;:]|$)`,
			SubjectGroup:   1,
			PredicateGroup: 2,
			ObjectGroup:    3,
			Confidence:     0.9,
		}},
	})
	got := ex.Extract("The Department of Education manages the Farm to School Program.")
	if len(got.Relations) != 1 {
		t.Fatalf("got %d relations, want 1: %+v", len(got.Relations), got.Relations)
	}
	r := got.Relations[0]
	if r.Subject != "Department of Education" || r.Predicate != "manages" || r.Object != "Farm to School Program" {
		t.Errorf("triple = (%q, %q, %q), want the three capture groups", r.Subject, r.Predicate, r.Object)
	}
	if r.Source != common.SourcePattern {
		t.Errorf("Source = %q, want %q", r.Source, common.SourcePattern)
	}
}

func TestExtract_MixedGroupAndFixedParts(t *testing.T) {
	ex := newTestExtractor(t, &Catalog{
		Relations: []RelationPattern{{
			Type:         "REPORTING",
			Expr:         `\b(?:the )?([a-z][a-z ]+?) reports to (?:the )?([a-z][a-z ]+?)(?:[.,;:]|$)`,
			SubjectGroup: 1,
			Predicate:    "reports to",
			ObjectGroup:  2,
			Confidence:   0.9,
		}},
	})
	got := ex.Extract("The coordinator reports to the legislature.")
	if !hasRelation(got, "REPORTING", "coordinator", "reports to", "legislature") {
		t.Fatalf("missing (coordinator, reports to, legislature), got %+v", got.Relations)
	}
}

func TestExtract_UnmatchedGroupFallsBackToFixed(t *testing.T) {
	ex := newTestExtractor(t, &Catalog{
		Relations: []RelationPattern{{
			Type:         "LEAD",
			Expr:         `(?:(alpha)|beta) leads`,
			SubjectGroup: 1,
			Subject:      "someone",
			Predicate:    "leads",
			Object:       "the effort",
			Confidence:   0.7,
		}},
	})
	got := ex.Extract("beta leads the effort")
	if len(got.Relations) != 1 {
		t.Fatalf("got %d relations, want 1", len(got.Relations))
	}
	if got.Relations[0].Subject != "someone" {
		t.Errorf("Subject = %q, want the fixed fallback when the group does not participate", got.Relations[0].Subject)
	}
}

func TestExtract_TrimsCapturedParts(t *testing.T) {
	ex := newTestExtractor(t, &Catalog{
		Relations: []RelationPattern{{
			Type:        "LABEL",
			Expr:        `name:(\s*\w+\s+)end`,
			Subject:     "record",
			Predicate:   "named",
			ObjectGroup: 1,
			Confidence:  0.9,
		}},
	})
	got := ex.Extract("name: value end")
	if len(got.Relations) != 1 {
		t.Fatalf("got %d relations, want 1", len(got.Relations))
	}
	if got.Relations[0].Object != "value" {
		t.Errorf("Object = %q, want surrounding whitespace trimmed", got.Relations[0].Object)
	}
}

func TestExtract_SecondaryEmission(t *testing.T) {
	ex := newTestExtractor(t, &Catalog{
		Relations: []RelationPattern{{
			Type:               "PROGRAM_MOVE",
			Expr:               `move.*program.*from.*agriculture.*to.*education`,
			Subject:            "Program",
			Predicate:          "moved from",
			Object:             "Agriculture",
			SecondaryPredicate: "moved to",
			SecondaryObject:    "Education",
			Confidence:         0.9,
		}},
	})
	got := ex.Extract("to move the program from agriculture to education")
	if len(got.Relations) != 2 {
		t.Fatalf("got %d relations, want primary and secondary: %+v", len(got.Relations), got.Relations)
	}
	primary, secondary := got.Relations[0], got.Relations[1]
	if primary.Predicate != "moved from" || primary.Object != "Agriculture" {
		t.Errorf("primary = (%q, %q), want (moved from, Agriculture)", primary.Predicate, primary.Object)
	}
	if secondary.Predicate != "moved to" || secondary.Object != "Education" {
		t.Errorf("secondary = (%q, %q), want (moved to, Education)", secondary.Predicate, secondary.Object)
	}
	if secondary.Subject != primary.Subject {
		t.Errorf("secondary subject = %q, want %q", secondary.Subject, primary.Subject)
	}
	if secondary.Context != primary.Context || secondary.Confidence != primary.Confidence {
		t.Error("secondary relation must share the primary's context and confidence")
	}
}

func TestExtract_Deterministic(t *testing.T) {
	chunk := "The purpose of this Act is to move the farm to school program from the " +
		"department of agriculture to the department of education. The department of " +
		"education shall submit an annual report to the legislature. The goal is " +
		"thirty per cent locally sourced food in public schools by 2030."

	first := newTestExtractor(t, nil)
	second := newTestExtractor(t, nil)

	a, err := json.Marshal(first.Extract(chunk))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(first.Extract(chunk))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	c, err := json.Marshal(second.Extract(chunk))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two runs over the same chunk differ")
	}
	if !bytes.Equal(a, c) {
		t.Error("two independently built extractors differ on the same chunk")
	}
	if len(a) == 0 || string(a) == `{"entities":[],"relations":[]}` {
		t.Fatal("determinism fixture produced no matches")
	}
}
