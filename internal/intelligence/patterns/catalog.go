// Package patterns extracts entities and relations from raw chunk text by
// applying an ordered catalog of domain regular expressions. The catalog is
// data: adding a new entity type or relation template is a record change,
// not a code change. Pattern extraction is the fallback path when remote
// annotation is unavailable and the sole path in pattern-only mode, so it
// must stay fully deterministic.
package patterns

// ---------------------------------------------------------------------------
// Catalog records
// ---------------------------------------------------------------------------

// EntityPattern is one entity catalog record. Expr is compiled
// case-insensitively; every match span becomes an entity of Type with the
// record's Confidence.
type EntityPattern struct {
	Type       string  `json:"type" yaml:"type"`
	Expr       string  `json:"expr" yaml:"expr"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// RelationPattern is one relation catalog record. The triple parts come
// either from the fixed Subject/Predicate/Object strings or, when the
// corresponding *Group index is non-zero, from that capture group of the
// match. A non-empty SecondaryObject emits a second relation for the same
// match with SecondaryPredicate, covering templates that bind two objects
// (moved from X, moved to Y).
type RelationPattern struct {
	Type string `json:"type" yaml:"type"`
	Expr string `json:"expr" yaml:"expr"`

	Subject   string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Predicate string `json:"predicate,omitempty" yaml:"predicate,omitempty"`
	Object    string `json:"object,omitempty" yaml:"object,omitempty"`

	SubjectGroup   int `json:"subject_group,omitempty" yaml:"subject_group,omitempty"`
	PredicateGroup int `json:"predicate_group,omitempty" yaml:"predicate_group,omitempty"`
	ObjectGroup    int `json:"object_group,omitempty" yaml:"object_group,omitempty"`

	SecondaryPredicate string `json:"secondary_predicate,omitempty" yaml:"secondary_predicate,omitempty"`
	SecondaryObject    string `json:"secondary_object,omitempty" yaml:"secondary_object,omitempty"`

	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Catalog is an ordered pattern set. Declaration order is meaningful:
// extraction emits matches record by record in catalog order, and
// downstream tie-breaks between overlapping matches favor the earlier
// record, so more specific patterns belong first.
type Catalog struct {
	Entities  []EntityPattern   `json:"entities" yaml:"entities"`
	Relations []RelationPattern `json:"relations" yaml:"relations"`
}

// ---------------------------------------------------------------------------
// Default catalog
// ---------------------------------------------------------------------------

// DefaultCatalog returns the built-in catalog for Hawaii legislative text.
// Confidence tiers: 0.95 for exact domain phrases, 0.9 for citation or
// numeric forms and strongly anchored templates, 0.7 for loose wildcard
// heuristics.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Entities: []EntityPattern{
			{Type: "PROGRAM", Expr: `farm to school program`, Confidence: 0.95},
			{Type: "PROGRAM", Expr: `coordinator program`, Confidence: 0.95},
			{Type: "PROGRAM", Expr: `meals program`, Confidence: 0.95},
			{Type: "PROGRAM", Expr: `agricultural program`, Confidence: 0.95},

			{Type: "AGENCY", Expr: `department of education`, Confidence: 0.95},
			{Type: "AGENCY", Expr: `department of agriculture`, Confidence: 0.95},
			{Type: "AGENCY", Expr: `\bHDOA\b`, Confidence: 0.95},
			{Type: "AGENCY", Expr: `\bDOE\b`, Confidence: 0.95},
			{Type: "AGENCY", Expr: `legislature`, Confidence: 0.95},
			{Type: "AGENCY", Expr: `state of hawaii`, Confidence: 0.95},

			{Type: "GOAL", Expr: `thirty per cent`, Confidence: 0.95},
			{Type: "GOAL", Expr: `\b30%`, Confidence: 0.9},
			{Type: "GOAL", Expr: `\b2030\b`, Confidence: 0.9},
			{Type: "GOAL", Expr: `locally sourced`, Confidence: 0.95},
			{Type: "GOAL", Expr: `minimum percentage`, Confidence: 0.95},

			{Type: "REPORTING", Expr: `annual report`, Confidence: 0.95},
			{Type: "REPORTING", Expr: `reporting requirement`, Confidence: 0.95},
			{Type: "REPORTING", Expr: `submit.*report`, Confidence: 0.7},
			{Type: "REPORTING", Expr: `twenty days.*regular session`, Confidence: 0.7},

			{Type: "STATUTE", Expr: `chapter \d+`, Confidence: 0.9},
			{Type: "STATUTE", Expr: `section \d+-\d+`, Confidence: 0.9},
			{Type: "STATUTE", Expr: `hawaii revised statutes`, Confidence: 0.95},
			{Type: "STATUTE", Expr: `h\.b\. no\. \d+`, Confidence: 0.9},

			{Type: "PURPOSE", Expr: `improve student health`, Confidence: 0.95},
			{Type: "PURPOSE", Expr: `develop.*agricultural workforce`, Confidence: 0.7},
			{Type: "PURPOSE", Expr: `enrich.*local food system`, Confidence: 0.7},
			{Type: "PURPOSE", Expr: `accelerate.*education`, Confidence: 0.7},
			{Type: "PURPOSE", Expr: `expand.*relationships`, Confidence: 0.7},

			{Type: "LEGISLATIVE_BODY", Expr: `house of representatives`, Confidence: 0.95},
			{Type: "LEGISLATIVE_BODY", Expr: `senate`, Confidence: 0.95},
			{Type: "LEGISLATIVE_BODY", Expr: `legislature`, Confidence: 0.95},
			{Type: "LEGISLATIVE_BODY", Expr: `legislative body`, Confidence: 0.95},

			{Type: "SESSION_IDENTIFIER", Expr: `\w+-\w+ legislature`, Confidence: 0.9},
			{Type: "SESSION_IDENTIFIER", Expr: `\b\d{4}\b`, Confidence: 0.9},
			{Type: "SESSION_IDENTIFIER", Expr: `regular session`, Confidence: 0.95},
			{Type: "SESSION_IDENTIFIER", Expr: `special session`, Confidence: 0.95},
			{Type: "SESSION_IDENTIFIER", Expr: `legislative session`, Confidence: 0.95},

			{Type: "LOCATION", Expr: `public schools`, Confidence: 0.95},
			{Type: "LOCATION", Expr: `schools`, Confidence: 0.95},
			{Type: "LOCATION", Expr: `educational institutions`, Confidence: 0.95},
			{Type: "LOCATION", Expr: `state facilities`, Confidence: 0.95},
			{Type: "LOCATION", Expr: `education facilities`, Confidence: 0.95},

			{Type: "PERSON", Expr: `students`, Confidence: 0.95},
			{Type: "PERSON", Expr: `keiki`, Confidence: 0.95},
			{Type: "PERSON", Expr: `children`, Confidence: 0.95},
			{Type: "PERSON", Expr: `farm to school coordinator`, Confidence: 0.95},
			{Type: "PERSON", Expr: `coordinator`, Confidence: 0.95},

			{Type: "INTEREST_GROUP", Expr: `agricultural communities`, Confidence: 0.95},
			{Type: "INTEREST_GROUP", Expr: `farming communities`, Confidence: 0.95},
			{Type: "INTEREST_GROUP", Expr: `stakeholders`, Confidence: 0.95},
			{Type: "INTEREST_GROUP", Expr: `agricultural groups`, Confidence: 0.95},
			{Type: "INTEREST_GROUP", Expr: `farmer groups`, Confidence: 0.95},

			{Type: "HEALTH_GOAL", Expr: `minimize diet-related diseases`, Confidence: 0.95},
			{Type: "HEALTH_GOAL", Expr: `improve.*health`, Confidence: 0.7},
			{Type: "HEALTH_GOAL", Expr: `prevent.*diseases`, Confidence: 0.7},
			{Type: "HEALTH_GOAL", Expr: `reduce.*obesity`, Confidence: 0.7},
			{Type: "HEALTH_GOAL", Expr: `reduce.*diabetes`, Confidence: 0.7},

			{Type: "LEGAL_SECTION", Expr: `§\d+[A-Z]?`, Confidence: 0.9},
			{Type: "LEGAL_SECTION", Expr: `section \d+[A-Z]?`, Confidence: 0.9},
			{Type: "LEGAL_SECTION", Expr: `chapter \d+[A-Z]?`, Confidence: 0.9},
		},
		Relations: []RelationPattern{
			{
				Type:               "PROGRAM_MOVE",
				Expr:               `move.*farm to school program.*from.*department of agriculture.*to.*department of education`,
				Subject:            "Farm to School Program",
				Predicate:          "moved from",
				Object:             "Department of Agriculture",
				SecondaryPredicate: "moved to",
				SecondaryObject:    "Department of Education",
				Confidence:         0.9,
			},
			{
				Type:               "PROGRAM_MOVE",
				Expr:               `transfer.*farm to school program.*from.*hdoa.*to.*doe`,
				Subject:            "Farm to School Program",
				Predicate:          "transferred from",
				Object:             "HDOA",
				SecondaryPredicate: "moved to",
				SecondaryObject:    "DOE",
				Confidence:         0.9,
			},
			{
				Type:       "GOAL_SETTING",
				Expr:       `goal.*thirty per cent.*locally sourced.*2030`,
				Subject:    "Department of Education",
				Predicate:  "set goal",
				Object:     "30% locally sourced by 2030",
				Confidence: 0.9,
			},
			{
				Type:       "GOAL_SETTING",
				Expr:       `target.*minimum percentage.*locally sourced.*public schools`,
				Subject:    "Department of Education",
				Predicate:  "established target",
				Object:     "minimum percentage locally sourced",
				Confidence: 0.9,
			},
			{
				Type:       "HEALTH_GOAL",
				Expr:       `minimize diet-related diseases in childhood`,
				Subject:    "Farm to School Program",
				Predicate:  "aims to minimize",
				Object:     "diet-related diseases in childhood",
				Confidence: 0.95,
			},
			{
				Type:       "HEALTH_GOAL",
				Expr:       `improve.*health.*students`,
				Subject:    "Farm to School Program",
				Predicate:  "improves",
				Object:     "student health",
				Confidence: 0.7,
			},
			{
				Type:       "REPORTING",
				Expr:       `submit.*annual report.*legislature`,
				Subject:    "Department of Education",
				Predicate:  "must submit",
				Object:     "annual report to legislature",
				Confidence: 0.9,
			},
			{
				Type:       "REPORTING",
				Expr:       `reporting requirement.*twenty days.*regular session`,
				Subject:    "Department of Education",
				Predicate:  "has requirement",
				Object:     "reporting within 20 days of session",
				Confidence: 0.9,
			},
			{
				Type:       "LEADERSHIP",
				Expr:       `farm to school coordinator.*headed by`,
				Subject:    "Farm to School Program",
				Predicate:  "headed by",
				Object:     "Farm to School Coordinator",
				Confidence: 0.9,
			},
			{
				Type:       "COLLABORATION",
				Expr:       `coordinator.*work.*collaboration.*stakeholders`,
				Subject:    "Farm to School Coordinator",
				Predicate:  "works with",
				Object:     "stakeholders",
				Confidence: 0.7,
			},
			{
				Type:       "COMMUNITY_ENGAGEMENT",
				Expr:       `agricultural communities.*collaboration`,
				Subject:    "Farm to School Program",
				Predicate:  "engages with",
				Object:     "agricultural communities",
				Confidence: 0.7,
			},
			{
				Type:       "COMMUNITY_ENGAGEMENT",
				Expr:       `expand.*relationships.*schools.*agricultural communities`,
				Subject:    "Farm to School Program",
				Predicate:  "expands relationships",
				Object:     "between schools and agricultural communities",
				Confidence: 0.7,
			},
			{
				Type:       "LEGAL_REFERENCE",
				Expr:       `§\d+[A-Z]?.*hawaii revised statutes`,
				Subject:    "Bill",
				Predicate:  "references",
				Object:     "Hawaii Revised Statutes section",
				Confidence: 0.9,
			},
			{
				Type:       "LEGAL_REFERENCE",
				Expr:       `chapter \d+.*amended`,
				Subject:    "Bill",
				Predicate:  "amends",
				Object:     "Hawaii Revised Statutes chapter",
				Confidence: 0.9,
			},
			{
				Type:       "PURPOSE",
				Expr:       `purpose.*farm to school program.*shall be to.*improve student health`,
				Subject:    "Farm to School Program",
				Predicate:  "purpose",
				Object:     "improve student health",
				Confidence: 0.9,
			},
			{
				Type:       "PURPOSE",
				Expr:       `purpose.*farm to school program.*shall be to.*develop.*agricultural workforce`,
				Subject:    "Farm to School Program",
				Predicate:  "purpose",
				Object:     "develop agricultural workforce",
				Confidence: 0.9,
			},
			{
				Type:       "PURPOSE",
				Expr:       `purpose.*farm to school program.*shall be to.*enrich.*local food system`,
				Subject:    "Farm to School Program",
				Predicate:  "purpose",
				Object:     "enrich local food system",
				Confidence: 0.9,
			},
			{
				Type:       "PURPOSE",
				Expr:       `purpose.*farm to school program.*shall be to.*accelerate.*education`,
				Subject:    "Farm to School Program",
				Predicate:  "purpose",
				Object:     "accelerate garden and farm-based education",
				Confidence: 0.9,
			},
			{
				Type:       "PURPOSE",
				Expr:       `purpose.*farm to school program.*shall be to.*expand.*relationships`,
				Subject:    "Farm to School Program",
				Predicate:  "purpose",
				Object:     "expand relationships between schools and agricultural communities",
				Confidence: 0.9,
			},
			{
				Type:           "MANAGEMENT",
				Expr:           `\b(?:the )?([a-z][a-z ]+?) (manages|administers|oversees) (?:the )?([a-z][a-z ]+?)(?:[.,;:]|$)`,
				SubjectGroup:   1,
				PredicateGroup: 2,
				ObjectGroup:    3,
				Confidence:     0.9,
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
}
