package patterns

import (
	"regexp"
	"strings"

	"github.com/turtacn/LegisGraph/internal/intelligence/common"
	"github.com/turtacn/LegisGraph/pkg/errors"
)

// ---------------------------------------------------------------------------
// Extractor interface
// ---------------------------------------------------------------------------

// Context window sizes, in characters on either side of a match.
const (
	entityContextChars   = 50
	relationContextChars = 100
)

// Extraction holds everything the catalog found in a single chunk. Entity
// offsets are chunk-local byte offsets of the match span.
type Extraction struct {
	Entities  []common.Entity   `json:"entities"`
	Relations []common.Relation `json:"relations"`
}

// Extractor applies a compiled pattern catalog to chunk text. Extraction is
// pure: the same chunk always yields the same result in the same order,
// first by catalog record, then by match position.
type Extractor interface {
	Extract(chunk string) *Extraction
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type compiledEntityPattern struct {
	spec EntityPattern
	re   *regexp.Regexp
}

type compiledRelationPattern struct {
	spec RelationPattern
	re   *regexp.Regexp
}

type extractorImpl struct {
	entities  []compiledEntityPattern
	relations []compiledRelationPattern
	logger    common.Logger
}

var _ Extractor = (*extractorImpl)(nil)

// NewExtractor compiles every catalog record up front. A catalog that does
// not compile is a configuration bug, so any invalid expression or capture
// group reference fails construction rather than surfacing per chunk. A nil
// catalog selects DefaultCatalog.
func NewExtractor(catalog *Catalog, logger common.Logger) (Extractor, error) {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = common.NewNoopLogger()
	}

	impl := &extractorImpl{
		entities:  make([]compiledEntityPattern, 0, len(catalog.Entities)),
		relations: make([]compiledRelationPattern, 0, len(catalog.Relations)),
		logger:    logger,
	}

	for i, p := range catalog.Entities {
		if p.Type == "" {
			return nil, errors.Newf(errors.ErrCodePatternCatalog, "entity pattern %d has no type", i)
		}
		if p.Expr == "" {
			return nil, errors.Newf(errors.ErrCodePatternCatalog, "entity pattern %d (%s) has no expression", i, p.Type)
		}
		re, err := regexp.Compile("(?i)" + p.Expr)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodePatternCatalog, "entity pattern %d (%s) does not compile", i, p.Type)
		}
		impl.entities = append(impl.entities, compiledEntityPattern{spec: p, re: re})
	}

	for i, p := range catalog.Relations {
		if p.Type == "" {
			return nil, errors.Newf(errors.ErrCodePatternCatalog, "relation pattern %d has no type", i)
		}
		if p.Expr == "" {
			return nil, errors.Newf(errors.ErrCodePatternCatalog, "relation pattern %d (%s) has no expression", i, p.Type)
		}
		re, err := regexp.Compile("(?i)" + p.Expr)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodePatternCatalog, "relation pattern %d (%s) does not compile", i, p.Type)
		}
		if err := validateRelationSpec(p, re.NumSubexp()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodePatternCatalog, "relation pattern %d (%s) is invalid", i, p.Type)
		}
		impl.relations = append(impl.relations, compiledRelationPattern{spec: p, re: re})
	}

	impl.logger.Debug("pattern catalog compiled",
		"entity_patterns", len(impl.entities),
		"relation_patterns", len(impl.relations))
	return impl, nil
}

func validateRelationSpec(p RelationPattern, groups int) error {
	for _, g := range []struct {
		name  string
		group int
		fixed string
	}{
		{"subject", p.SubjectGroup, p.Subject},
		{"predicate", p.PredicateGroup, p.Predicate},
		{"object", p.ObjectGroup, p.Object},
	} {
		if g.group < 0 || g.group > groups {
			return errors.Newf(errors.ErrCodePatternCatalog, "%s group %d out of range, expression has %d groups", g.name, g.group, groups)
		}
		if g.group == 0 && g.fixed == "" {
			return errors.Newf(errors.ErrCodePatternCatalog, "%s has neither a fixed value nor a capture group", g.name)
		}
	}
	if (p.SecondaryObject == "") != (p.SecondaryPredicate == "") {
		return errors.New(errors.ErrCodePatternCatalog, "secondary predicate and object must be set together")
	}
	return nil
}

// Extract runs every pattern against the chunk and returns all matches.
// Overlapping spans from different records are all kept; downstream merging
// decides what survives.
func (e *extractorImpl) Extract(chunk string) *Extraction {
	out := &Extraction{Entities: []common.Entity{}, Relations: []common.Relation{}}
	if chunk == "" {
		return out
	}

	for _, p := range e.entities {
		for _, m := range p.re.FindAllStringIndex(chunk, -1) {
			out.Entities = append(out.Entities, common.Entity{
				Text:       chunk[m[0]:m[1]],
				Type:       p.spec.Type,
				Start:      m[0],
				End:        m[1],
				Confidence: p.spec.Confidence,
				Context:    common.ContextWindow(chunk, m[0], m[1], entityContextChars),
				Source:     common.SourcePattern,
			})
		}
	}

	for _, p := range e.relations {
		for _, m := range p.re.FindAllStringSubmatchIndex(chunk, -1) {
			ctx := common.ContextWindow(chunk, m[0], m[1], relationContextChars)
			subject := matchPart(chunk, m, p.spec.SubjectGroup, p.spec.Subject)
			out.Relations = append(out.Relations, common.Relation{
				Subject:    subject,
				Predicate:  matchPart(chunk, m, p.spec.PredicateGroup, p.spec.Predicate),
				Object:     matchPart(chunk, m, p.spec.ObjectGroup, p.spec.Object),
				Type:       p.spec.Type,
				Confidence: p.spec.Confidence,
				Context:    ctx,
				Source:     common.SourcePattern,
			})
			if p.spec.SecondaryObject != "" {
				out.Relations = append(out.Relations, common.Relation{
					Subject:    subject,
					Predicate:  p.spec.SecondaryPredicate,
					Object:     p.spec.SecondaryObject,
					Type:       p.spec.Type,
					Confidence: p.spec.Confidence,
					Context:    ctx,
					Source:     common.SourcePattern,
				})
			}
		}
	}

	e.logger.Debug("chunk extracted",
		"chunk_chars", len(chunk),
		"entities", len(out.Entities),
		"relations", len(out.Relations))
	return out
}

// matchPart resolves one triple part from a match: the capture group's text
// when the record names a group and the group participated in the match,
// otherwise the record's fixed value.
func matchPart(chunk string, m []int, group int, fixed string) string {
	if group <= 0 || 2*group+1 >= len(m) {
		return fixed
	}
	start, end := m[2*group], m[2*group+1]
	if start < 0 || end < 0 {
		return fixed
	}
	return strings.TrimSpace(chunk[start:end])
}
