package annotate

import (
	"testing"

	"github.com/turtacn/LegisGraph/internal/intelligence/common"
)

func intPtr(v int) *int { return &v }

func tok(index int, word, lemma, pos, ner string, begin, end int) Token {
	return Token{
		Index:                index,
		Word:                 word,
		Lemma:                lemma,
		POS:                  pos,
		NER:                  ner,
		CharacterOffsetBegin: intPtr(begin),
		CharacterOffsetEnd:   intPtr(end),
	}
}

func edge(label string, governor int, governorGloss string, dependent int, dependentGloss string) Dependency {
	return Dependency{
		Dep:            label,
		Governor:       governor,
		GovernorGloss:  governorGloss,
		Dependent:      dependent,
		DependentGloss: dependentGloss,
	}
}

func findRelations(rels []common.Relation, relType string) []common.Relation {
	var out []common.Relation
	for _, r := range rels {
		if r.Type == relType {
			out = append(out, r)
		}
	}
	return out
}

func TestDeriveSentenceRelations_SVOUsesLemma(t *testing.T) {
	sent := &Sentence{
		Tokens: []Token{
			tok(1, "DOE", "DOE", "NNP", "ORGANIZATION", 0, 3),
			tok(2, "manages", "manage", "VBZ", "O", 4, 11),
			tok(3, "the", "the", "DT", "O", 12, 15),
			tok(4, "program", "program", "NN", "O", 16, 23),
		},
		BasicDependencies: []Dependency{
			edge("ROOT", 0, "ROOT", 2, "manages"),
			edge("nsubj", 2, "manages", 1, "DOE"),
			edge("det", 4, "program", 3, "the"),
			edge("dobj", 2, "manages", 4, "program"),
		},
	}

	rels := deriveSentenceRelations(sent, "DOE manages the program")

	svo := findRelations(rels, "SVO")
	if len(svo) != 1 {
		t.Fatalf("got %d SVO relations, want 1: %+v", len(svo), rels)
	}
	r := svo[0]
	if r.Subject != "DOE" || r.Predicate != "manage" || r.Object != "program" {
		t.Errorf("SVO = (%q, %q, %q), want (DOE, manage, program)", r.Subject, r.Predicate, r.Object)
	}
	if r.Confidence != 0.8 {
		t.Errorf("SVO confidence = %v, want 0.8", r.Confidence)
	}
	if r.Context != "DOE manages the program" {
		t.Errorf("SVO context = %q", r.Context)
	}
	if r.Source != common.SourceAnnotation {
		t.Errorf("SVO source = %q, want %q", r.Source, common.SourceAnnotation)
	}
}

func TestDeriveSentenceRelations_SVOAcceptsObjLabel(t *testing.T) {
	sent := &Sentence{
		Tokens: []Token{
			tok(1, "DOE", "DOE", "NNP", "O", 0, 3),
			tok(2, "manages", "manage", "VBZ", "O", 4, 11),
			tok(3, "it", "it", "PRP", "O", 12, 14),
		},
		BasicDependencies: []Dependency{
			edge("ROOT", 0, "ROOT", 2, "manages"),
			edge("nsubj", 2, "manages", 1, "DOE"),
			edge("obj", 2, "manages", 3, "it"),
		},
	}

	if svo := findRelations(deriveSentenceRelations(sent, ""), "SVO"); len(svo) != 1 {
		t.Errorf("got %d SVO relations with obj label, want 1", len(svo))
	}
}

func TestDeriveSentenceRelations_NonVerbRootYieldsNoSVO(t *testing.T) {
	sent := &Sentence{
		Tokens: []Token{
			tok(1, "report", "report", "NN", "O", 0, 6),
			tok(2, "summary", "summary", "NN", "O", 7, 14),
		},
		BasicDependencies: []Dependency{
			edge("ROOT", 0, "ROOT", 1, "report"),
			edge("nsubj", 1, "report", 2, "summary"),
			edge("dobj", 1, "report", 2, "summary"),
		},
	}

	if rels := deriveSentenceRelations(sent, ""); len(findRelations(rels, "SVO")) != 0 {
		t.Errorf("root with nominal POS produced SVO relations: %+v", rels)
	}
}

func TestDeriveSentenceRelations_Prepositional(t *testing.T) {
	sent := &Sentence{
		Tokens: []Token{
			tok(1, "program", "program", "NN", "O", 0, 7),
			tok(2, "moved", "move", "VBD", "O", 8, 13),
			tok(3, "to", "to", "IN", "O", 14, 16),
			tok(4, "DOE", "DOE", "NNP", "O", 17, 20),
		},
		BasicDependencies: []Dependency{
			edge("ROOT", 0, "ROOT", 2, "moved"),
			edge("nsubj", 2, "moved", 1, "program"),
			edge("prep", 2, "moved", 3, "to"),
			edge("pobj", 3, "to", 4, "DOE"),
		},
	}

	rels := findRelations(deriveSentenceRelations(sent, ""), "SVP")
	if len(rels) != 1 {
		t.Fatalf("got %d SVP relations, want 1", len(rels))
	}
	r := rels[0]
	if r.Subject != "program" || r.Predicate != "moved to" || r.Object != "DOE" {
		t.Errorf("SVP = (%q, %q, %q), want (program, moved to, DOE)", r.Subject, r.Predicate, r.Object)
	}
	if r.Confidence != 0.7 {
		t.Errorf("SVP confidence = %v, want 0.7", r.Confidence)
	}
}

func TestDeriveSentenceRelations_PassiveWithAgent(t *testing.T) {
	sent := &Sentence{
		Tokens: []Token{
			tok(1, "program", "program", "NN", "O", 0, 7),
			tok(2, "was", "be", "VBD", "O", 8, 11),
			tok(3, "established", "establish", "VBN", "O", 12, 23),
			tok(4, "by", "by", "IN", "O", 24, 26),
			tok(5, "legislature", "legislature", "NN", "O", 27, 38),
		},
		BasicDependencies: []Dependency{
			edge("ROOT", 0, "ROOT", 3, "established"),
			edge("nsubj:pass", 3, "established", 1, "program"),
			edge("aux:pass", 3, "established", 2, "was"),
			edge("obl:agent", 3, "established", 5, "legislature"),
		},
	}

	rels := findRelations(deriveSentenceRelations(sent, ""), "PASSIVE")
	if len(rels) != 1 {
		t.Fatalf("got %d PASSIVE relations, want 1", len(rels))
	}
	r := rels[0]
	if r.Subject != "program" || r.Predicate != "was established" || r.Object != "legislature" {
		t.Errorf("PASSIVE = (%q, %q, %q)", r.Subject, r.Predicate, r.Object)
	}
	if r.Confidence != 0.7 {
		t.Errorf("PASSIVE confidence = %v, want 0.7", r.Confidence)
	}
}

func TestDeriveSentenceRelations_AgentlessPassiveSkipped(t *testing.T) {
	sent := &Sentence{
		Tokens: []Token{
			tok(1, "program", "program", "NN", "O", 0, 7),
			tok(2, "was", "be", "VBD", "O", 8, 11),
			tok(3, "established", "establish", "VBN", "O", 12, 23),
		},
		BasicDependencies: []Dependency{
			edge("ROOT", 0, "ROOT", 3, "established"),
			edge("nsubj:pass", 3, "established", 1, "program"),
			edge("aux:pass", 3, "established", 2, "was"),
		},
	}

	if rels := findRelations(deriveSentenceRelations(sent, ""), "PASSIVE"); len(rels) != 0 {
		t.Errorf("agentless passive produced relations: %+v", rels)
	}
}

func TestDeriveSentenceRelations_CopulaLabeledComplement(t *testing.T) {
	sent := &Sentence{
		Tokens: []Token{
			tok(1, "program", "program", "NN", "O", 0, 7),
			tok(2, "is", "be", "VBZ", "O", 8, 10),
			tok(3, "priority", "priority", "NN", "O", 13, 21),
		},
		BasicDependencies: []Dependency{
			edge("ROOT", 0, "ROOT", 2, "is"),
			edge("nsubj", 2, "is", 1, "program"),
			edge("cop", 2, "is", 2, "is"),
			edge("attr", 2, "is", 3, "priority"),
		},
	}

	rels := findRelations(deriveSentenceRelations(sent, ""), "COPULA")
	if len(rels) != 1 {
		t.Fatalf("got %d COPULA relations, want 1: %+v", len(rels), rels)
	}
	r := rels[0]
	if r.Subject != "program" || r.Predicate != "is" || r.Object != "priority" {
		t.Errorf("COPULA = (%q, %q, %q), want (program, is, priority)", r.Subject, r.Predicate, r.Object)
	}
}

func TestDeriveSentenceRelations_CopulaGovernorFallback(t *testing.T) {
	// Head-final parse: the complement is the shared governor itself.
	sent := &Sentence{
		Tokens: []Token{
			tok(1, "program", "program", "NN", "O", 0, 7),
			tok(2, "is", "be", "VBZ", "O", 8, 10),
			tok(3, "priority", "priority", "NN", "O", 13, 21),
		},
		BasicDependencies: []Dependency{
			edge("ROOT", 0, "ROOT", 3, "priority"),
			edge("nsubj", 3, "priority", 1, "program"),
			edge("cop", 3, "priority", 2, "is"),
		},
	}

	rels := findRelations(deriveSentenceRelations(sent, ""), "COPULA")
	if len(rels) != 1 {
		t.Fatalf("got %d COPULA relations, want 1: %+v", len(rels), rels)
	}
	r := rels[0]
	if r.Subject != "program" || r.Predicate != "is" || r.Object != "priority" {
		t.Errorf("COPULA = (%q, %q, %q), want (program, is, priority)", r.Subject, r.Predicate, r.Object)
	}
	if r.Confidence != 0.7 {
		t.Errorf("COPULA confidence = %v, want 0.7", r.Confidence)
	}
}

func TestDeriveSentenceRelations_Existential(t *testing.T) {
	sent := &Sentence{
		Tokens: []Token{
			tok(1, "There", "there", "EX", "O", 0, 5),
			tok(2, "is", "be", "VBZ", "O", 6, 8),
			tok(3, "established", "establish", "VBN", "O", 9, 20),
			tok(4, "a", "a", "DT", "O", 21, 22),
			tok(5, "program", "program", "NN", "O", 23, 30),
		},
		BasicDependencies: []Dependency{
			edge("ROOT", 0, "ROOT", 3, "established"),
			edge("expl", 3, "established", 1, "There"),
			edge("aux:pass", 3, "established", 2, "is"),
			edge("nsubj:pass", 3, "established", 5, "program"),
		},
	}

	rels := findRelations(deriveSentenceRelations(sent, ""), "EXISTENTIAL")
	if len(rels) != 1 {
		t.Fatalf("got %d EXISTENTIAL relations, want 1: %+v", len(rels), rels)
	}
	r := rels[0]
	if r.Subject != "There" || r.Predicate != "is established" || r.Object != "program" {
		t.Errorf("EXISTENTIAL = (%q, %q, %q), want (There, is established, program)",
			r.Subject, r.Predicate, r.Object)
	}
	if r.Confidence != 0.6 {
		t.Errorf("EXISTENTIAL confidence = %v, want 0.6", r.Confidence)
	}
}

func TestDeriveSentenceRelations_NoDependencies(t *testing.T) {
	sent := &Sentence{
		Tokens: []Token{tok(1, "orphan", "orphan", "NN", "O", 0, 6)},
	}

	if rels := deriveSentenceRelations(sent, ""); len(rels) != 0 {
		t.Errorf("sentence without dependencies produced relations: %+v", rels)
	}
}

func TestTokenByIndex_OutOfOrderTokens(t *testing.T) {
	sent := &Sentence{
		Tokens: []Token{
			tok(2, "second", "second", "JJ", "O", 6, 12),
			tok(1, "first", "first", "JJ", "O", 0, 5),
		},
	}

	got := tokenByIndex(sent, 1)
	if got == nil || got.Word != "first" {
		t.Errorf("tokenByIndex(1) = %+v, want token %q", got, "first")
	}
	if tokenByIndex(sent, 9) != nil {
		t.Error("tokenByIndex(9) found a token for a missing index")
	}
	if tokenByIndex(sent, 0) != nil {
		t.Error("tokenByIndex(0) should be nil for the artificial root")
	}
}
