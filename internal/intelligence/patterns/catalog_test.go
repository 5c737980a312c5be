package patterns

import (
	"testing"
)

func TestDefaultCatalog_Shape(t *testing.T) {
	c := DefaultCatalog()
	if got, want := len(c.Entities), 60; got != want {
		t.Errorf("entity patterns = %d, want %d", got, want)
	}
	if got, want := len(c.Relations), 21; got != want {
		t.Errorf("relation patterns = %d, want %d", got, want)
	}

	types := map[string]bool{}
	for _, p := range c.Entities {
		types[p.Type] = true
	}
	if got, want := len(types), 13; got != want {
		t.Errorf("distinct entity types = %d, want %d: %v", got, want, types)
	}

	for i, p := range c.Entities {
		if p.Confidence < 0.6 || p.Confidence > 0.95 {
			t.Errorf("entity pattern %d (%s) confidence %v outside [0.6, 0.95]", i, p.Type, p.Confidence)
		}
	}
	for i, p := range c.Relations {
		if p.Confidence < 0.6 || p.Confidence > 0.95 {
			t.Errorf("relation pattern %d (%s) confidence %v outside [0.6, 0.95]", i, p.Type, p.Confidence)
		}
	}
}

func TestDefaultCatalog_Compiles(t *testing.T) {
	if _, err := NewExtractor(DefaultCatalog(), nil); err != nil {
		t.Fatalf("default catalog must always compile: %v", err)
	}
}

func TestDefaultCatalog_EntitySamples(t *testing.T) {
	ex := newTestExtractor(t, nil)

	cases := []struct {
		name     string
		chunk    string
		wantType string
		wantText string
	}{
		{"program", "establish the farm to school program", "PROGRAM", "farm to school program"},
		{"agency", "within the department of agriculture", "AGENCY", "department of agriculture"},
		{"agency acronym", "transferred to the DOE", "AGENCY", "DOE"},
		{"goal phrase", "a goal of thirty per cent", "GOAL", "thirty per cent"},
		{"goal year", "locally sourced food by 2030", "GOAL", "2030"},
		{"reporting", "shall prepare an annual report", "REPORTING", "annual report"},
		{"statute", "pursuant to the Hawaii Revised Statutes", "STATUTE", "Hawaii Revised Statutes"},
		{"statute bill number", "H.B. NO. 767 proposes", "STATUTE", "H.B. NO. 767"},
		{"purpose", "shall be to improve student health", "PURPOSE", "improve student health"},
		{"legislative body", "passed by the house of representatives", "LEGISLATIVE_BODY", "house of representatives"},
		{"session", "the thirty-first legislature convened", "SESSION_IDENTIFIER", "thirty-first legislature"},
		{"session kind", "during the regular session", "SESSION_IDENTIFIER", "regular session"},
		{"location", "meals served in public schools", "LOCATION", "public schools"},
		{"person", "the health of keiki statewide", "PERSON", "keiki"},
		{"interest group", "engagement with agricultural communities", "INTEREST_GROUP", "agricultural communities"},
		{"health goal", "minimize diet-related diseases", "HEALTH_GOAL", "minimize diet-related diseases"},
		{"legal section", "amend §302A of the code", "LEGAL_SECTION", "§302A"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ex.Extract(tc.chunk)
			if !hasEntity(got, tc.wantType, tc.wantText) {
				t.Errorf("chunk %q: missing %s entity %q, got %+v", tc.chunk, tc.wantType, tc.wantText, got.Entities)
			}
		})
	}
}

func TestDefaultCatalog_AcronymBoundaries(t *testing.T) {
	ex := newTestExtractor(t, nil)

	got := ex.Extract("The DOE does not delegate.")
	agencies := entitiesOfType(got, "AGENCY")
	if len(agencies) != 1 {
		t.Fatalf("got %d AGENCY matches, want 1: %+v", len(agencies), agencies)
	}
	if agencies[0].Start != 4 || agencies[0].End != 7 {
		t.Errorf("DOE span = [%d,%d), want [4,7)", agencies[0].Start, agencies[0].End)
	}

	if got := ex.Extract("the HDOAX system"); len(entitiesOfType(got, "AGENCY")) != 0 {
		t.Errorf("HDOAX must not match the HDOA pattern, got %+v", got.Entities)
	}
}

func TestDefaultCatalog_OverlappingTypesBothEmitted(t *testing.T) {
	ex := newTestExtractor(t, nil)
	got := ex.Extract("served in public schools")

	if !hasEntity(got, "LOCATION", "public schools") {
		t.Errorf("missing LOCATION %q", "public schools")
	}
	if !hasEntity(got, "LOCATION", "schools") {
		t.Errorf("missing overlapping LOCATION %q", "schools")
	}
}

func TestDefaultCatalog_ProgramMoveRelations(t *testing.T) {
	ex := newTestExtractor(t, nil)
	got := ex.Extract("The purpose of this Act is to move the farm to school program from the " +
		"department of agriculture to the department of education.")

	if !hasRelation(got, "PROGRAM_MOVE", "Farm to School Program", "moved from", "Department of Agriculture") {
		t.Errorf("missing the moved-from relation, got %+v", got.Relations)
	}
	if !hasRelation(got, "PROGRAM_MOVE", "Farm to School Program", "moved to", "Department of Education") {
		t.Errorf("missing the moved-to relation, got %+v", got.Relations)
	}

	moves := relationsOfType(got, "PROGRAM_MOVE")
	if len(moves) != 2 {
		t.Fatalf("got %d PROGRAM_MOVE relations, want 2: %+v", len(moves), moves)
	}
	if moves[0].Context != moves[1].Context {
		t.Error("both PROGRAM_MOVE relations must share the match context")
	}
}

func TestDefaultCatalog_RelationSamples(t *testing.T) {
	ex := newTestExtractor(t, nil)

	cases := []struct {
		name      string
		chunk     string
		wantType  string
		subject   string
		predicate string
		object    string
	}{
		{
			"goal setting",
			"sets a goal of thirty per cent locally sourced food by 2030",
			"GOAL_SETTING", "Department of Education", "set goal", "30% locally sourced by 2030",
		},
		{
			"health objective",
			"to minimize diet-related diseases in childhood",
			"HEALTH_GOAL", "Farm to School Program", "aims to minimize", "diet-related diseases in childhood",
		},
		{
			"reporting requirement",
			"shall submit an annual report to the legislature",
			"REPORTING", "Department of Education", "must submit", "annual report to legislature",
		},
		{
			"leadership",
			"the farm to school coordinator position, with the program headed by that officer",
			"LEADERSHIP", "Farm to School Program", "headed by", "Farm to School Coordinator",
		},
		{
			"community engagement",
			"to expand the relationships between public schools and agricultural communities",
			"COMMUNITY_ENGAGEMENT", "Farm to School Program", "expands relationships", "between schools and agricultural communities",
		},
		{
			"legal reference",
			"chapter 302A is hereby amended",
			"LEGAL_REFERENCE", "Bill", "amends", "Hawaii Revised Statutes chapter",
		},
		{
			"purpose",
			"the purpose of the farm to school program shall be to improve student health",
			"PURPOSE", "Farm to School Program", "purpose", "improve student health",
		},
		{
			"generic management",
			"The Department of Education manages the Farm to School Program.",
			"MANAGEMENT", "Department of Education", "manages", "Farm to School Program",
		},
		{
			"generic reporting",
			"The coordinator reports to the legislature.",
			"REPORTING", "coordinator", "reports to", "legislature",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ex.Extract(tc.chunk)
			if !hasRelation(got, tc.wantType, tc.subject, tc.predicate, tc.object) {
				t.Errorf("chunk %q: missing (%q, %q, %q), got %+v",
					tc.chunk, tc.subject, tc.predicate, tc.object, got.Relations)
			}
		})
	}
}
