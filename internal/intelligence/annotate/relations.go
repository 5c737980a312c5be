package annotate

import (
	"strings"

	"github.com/turtacn/LegisGraph/internal/intelligence/common"
)

// ---------------------------------------------------------------------------
// Relation rule confidences
// ---------------------------------------------------------------------------

const (
	svoConfidence         = 0.8
	prepConfidence        = 0.7
	passiveConfidence     = 0.7
	copulaConfidence      = 0.7
	existentialConfidence = 0.6
)

// Relation type tags assigned by the dependency rules.
const (
	relTypeSVO         = "SVO"
	relTypeSVP         = "SVP"
	relTypePassive     = "PASSIVE"
	relTypeCopula      = "COPULA"
	relTypeExistential = "EXISTENTIAL"
)

// ---------------------------------------------------------------------------
// Rule derivation
// ---------------------------------------------------------------------------

// deriveSentenceRelations applies the dependency-pattern rules to one
// sentence. Rules run in a fixed order (subject-verb-object, prepositional,
// passive, copula, existential) so output order is deterministic for a
// given response. Duplicate triples across rules are left for the
// canonical deduplication stage.
func deriveSentenceRelations(sent *Sentence, sentText string) []common.Relation {
	deps := sent.Deps()
	if len(deps) == 0 {
		return nil
	}

	var (
		subjects  []Dependency
		objects   []Dependency
		passives  []Dependency
		copulas   []Dependency
		verbs     []Dependency
		relations []common.Relation
	)
	for _, d := range deps {
		switch {
		case d.Dep == "nsubj":
			subjects = append(subjects, d)
		case isDirectObject(d.Dep):
			objects = append(objects, d)
		case isPassiveSubject(d.Dep):
			passives = append(passives, d)
		case d.Dep == "cop":
			copulas = append(copulas, d)
		case strings.EqualFold(d.Dep, "root") && isVerbToken(sent, d.Dependent):
			verbs = append(verbs, d)
		}
	}

	emit := func(relType, subject, predicate, object string, confidence float64) {
		relations = append(relations, common.Relation{
			Subject:    subject,
			Predicate:  predicate,
			Object:     object,
			Type:       relType,
			Confidence: confidence,
			Context:    sentText,
			Source:     common.SourceAnnotation,
		})
	}

	// Subject-verb-object: both arguments hang off the same root verb.
	// The predicate is the verb's lemma so inflection does not split
	// otherwise identical triples.
	for _, subj := range subjects {
		for _, verb := range verbs {
			if subj.Governor != verb.Dependent {
				continue
			}
			for _, obj := range objects {
				if obj.Governor != verb.Dependent {
					continue
				}
				emit(relTypeSVO, subj.DependentGloss, verbLemma(sent, verb), obj.DependentGloss, svoConfidence)
			}
		}
	}

	// Prepositional: the verb governs a preposition whose object closes
	// the triple ("moved to Y", "reports to Z"). The predicate keeps the
	// verb's surface form joined with the preposition.
	for _, subj := range subjects {
		for _, verb := range verbs {
			if subj.Governor != verb.Dependent {
				continue
			}
			for _, prep := range deps {
				if prep.Dep != "prep" || prep.Governor != verb.Dependent {
					continue
				}
				for _, pobj := range deps {
					if pobj.Dep != "pobj" || pobj.Governor != prep.Dependent {
						continue
					}
					predicate := verb.DependentGloss + " " + prep.DependentGloss
					emit(relTypeSVP, subj.DependentGloss, predicate, pobj.DependentGloss, prepConfidence)
				}
			}
		}
	}

	// Passive voice: "X was <verb> by Y". Emitted only when the agent is
	// stated; an agentless passive carries no object worth a triple.
	for _, subj := range passives {
		for _, verb := range verbs {
			if subj.Governor != verb.Dependent {
				continue
			}
			for _, agent := range deps {
				if !isAgent(agent.Dep) || agent.Governor != verb.Dependent {
					continue
				}
				emit(relTypePassive, subj.DependentGloss, "was "+verb.DependentGloss, agent.DependentGloss, passiveConfidence)
			}
		}
	}

	// Copula: "X is Y". Parsers disagree on where the complement lives:
	// some attach it as attr/acomp under the copula's governor, others
	// make the complement itself the governor. Try the labeled complement
	// first, then fall back to the governor gloss.
	for _, subj := range subjects {
		for _, cop := range copulas {
			if subj.Governor != cop.Governor {
				continue
			}
			found := false
			for _, comp := range deps {
				if comp.Governor != cop.Governor {
					continue
				}
				if comp.Dep == "attr" || comp.Dep == "acomp" {
					emit(relTypeCopula, subj.DependentGloss, "is", comp.DependentGloss, copulaConfidence)
					found = true
				}
			}
			if !found && cop.GovernorGloss != "" {
				emit(relTypeCopula, subj.DependentGloss, "is", cop.GovernorGloss, copulaConfidence)
			}
		}
	}

	// Existential: "There is established X". The expletive "there" marks
	// the construction; the real subject of the verb becomes the object.
	for _, expl := range deps {
		if expl.Dep != "expl" || !strings.EqualFold(expl.DependentGloss, "there") {
			continue
		}
		for _, real := range deps {
			if real.Governor != expl.Governor {
				continue
			}
			if real.Dep == "nsubj" || isPassiveSubject(real.Dep) {
				emit(relTypeExistential, "There", "is "+expl.GovernorGloss, real.DependentGloss, existentialConfidence)
			}
		}
	}

	return relations
}

// ---------------------------------------------------------------------------
// Label and token helpers
// ---------------------------------------------------------------------------

// isDirectObject accepts both the legacy and the current label for a
// verb's direct object.
func isDirectObject(dep string) bool {
	return dep == "dobj" || dep == "obj"
}

func isPassiveSubject(dep string) bool {
	return dep == "nsubj:pass" || dep == "nsubjpass"
}

func isAgent(dep string) bool {
	return dep == "obl:agent" || dep == "nmod:agent" || dep == "agent"
}

// isVerbToken reports whether the 1-based token index carries a verbal
// part-of-speech tag.
func isVerbToken(sent *Sentence, index int) bool {
	tok := tokenByIndex(sent, index)
	return tok != nil && strings.HasPrefix(tok.POS, "VB")
}

// verbLemma prefers the verb token's lemma over its surface form.
func verbLemma(sent *Sentence, verb Dependency) string {
	if tok := tokenByIndex(sent, verb.Dependent); tok != nil && tok.Lemma != "" {
		return tok.Lemma
	}
	return verb.DependentGloss
}

// tokenByIndex resolves a dependency edge's 1-based token index. Token
// lists arrive ordered, so the direct slot is checked before scanning.
func tokenByIndex(sent *Sentence, index int) *Token {
	if index < 1 {
		return nil
	}
	if index <= len(sent.Tokens) && sent.Tokens[index-1].Index == index {
		return &sent.Tokens[index-1]
	}
	for i := range sent.Tokens {
		if sent.Tokens[i].Index == index {
			return &sent.Tokens[i]
		}
	}
	return nil
}
