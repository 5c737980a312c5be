package canonical

import (
	"github.com/turtacn/LegisGraph/internal/intelligence/common"
)

// ---------------------------------------------------------------------------
// Canonicalizer interface
// ---------------------------------------------------------------------------

// Canonicalizer reduces extraction output to canonical form. Canonicalize
// is pure and idempotent; MergeEntities and DedupRelations preserve
// first-seen order and reach a fixed point, so applying either twice
// changes nothing.
type Canonicalizer interface {
	Canonicalize(text string) string
	MergeEntities(entities []common.Entity) []common.Entity
	DedupRelations(relations []common.Relation) []common.Relation
}

type canonicalizerImpl struct {
	table  *AliasTable
	logger common.Logger
}

var _ Canonicalizer = (*canonicalizerImpl)(nil)

// NewCanonicalizer builds a canonicalizer over the given alias table. A nil
// table selects the built-in legislative aliases.
func NewCanonicalizer(table *AliasTable, logger common.Logger) Canonicalizer {
	if table == nil {
		table = NewAliasTable(DefaultAliasGroups())
	}
	if logger == nil {
		logger = common.NewNoopLogger()
	}
	return &canonicalizerImpl{table: table, logger: logger}
}

// Canonicalize lowercases, trims, collapses whitespace, then resolves the
// result through the alias table. Unknown forms come back normalized but
// otherwise unchanged.
func (c *canonicalizerImpl) Canonicalize(text string) string {
	n := normalizeText(text)
	if canon, ok := c.table.Resolve(n); ok {
		return canon
	}
	return n
}

// ---------------------------------------------------------------------------
// Entity merging
// ---------------------------------------------------------------------------

type entityKey struct {
	text    string
	typeTag string
}

// MergeEntities collapses entities that share (canonical text, type). The
// survivor keeps the first occurrence's position in the output; a later
// occurrence replaces it only with strictly higher confidence, ties keep
// the first seen. Surviving text is rewritten to the canonical form.
func (c *canonicalizerImpl) MergeEntities(entities []common.Entity) []common.Entity {
	out := make([]common.Entity, 0, len(entities))
	seen := make(map[entityKey]int, len(entities))

	for _, e := range entities {
		canon := c.Canonicalize(e.Text)
		key := entityKey{text: canon, typeTag: e.Type}

		if idx, ok := seen[key]; ok {
			if e.Confidence > out[idx].Confidence {
				e.Text = canon
				out[idx] = e
			}
			continue
		}
		e.Text = canon
		seen[key] = len(out)
		out = append(out, e)
	}

	c.logger.Debug("entities merged", "in", len(entities), "out", len(out))
	return out
}

// ---------------------------------------------------------------------------
// Relation deduplication
// ---------------------------------------------------------------------------

type relationKey struct {
	subject   string
	predicate string
	object    string
}

// DedupRelations collapses relations that share the same canonical
// (subject, predicate, object) triple, keeping the first occurrence. The
// survivor's subject and object are rewritten to canonical form; the
// predicate keeps its first-seen surface. Relations with an empty part
// after canonicalization are dropped.
func (c *canonicalizerImpl) DedupRelations(relations []common.Relation) []common.Relation {
	out := make([]common.Relation, 0, len(relations))
	seen := make(map[relationKey]struct{}, len(relations))
	dropped := 0

	for _, r := range relations {
		s := c.Canonicalize(r.Subject)
		p := c.Canonicalize(r.Predicate)
		o := c.Canonicalize(r.Object)
		if s == "" || p == "" || o == "" {
			dropped++
			continue
		}

		key := relationKey{subject: s, predicate: p, object: o}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		r.Subject = s
		r.Object = o
		out = append(out, r)
	}

	c.logger.Debug("relations deduplicated", "in", len(relations), "out", len(out), "dropped_empty", dropped)
	return out
}
