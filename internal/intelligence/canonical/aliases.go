// Package canonical collapses surface-form variation in extracted entities
// and relations. Canonicalization is a pure text normalization plus a
// single-hop alias lookup; merging and deduplication key on the canonical
// forms and keep first-seen order so the whole stage is deterministic.
package canonical

import (
	"sort"
	"strings"
)

// AliasGroup maps one canonical form to the surface forms that should
// resolve to it. Group order matters when two groups claim the same alias:
// the later group wins.
type AliasGroup struct {
	Canonical string
	Aliases   []string
}

// AliasTable is an immutable alias-to-canonical lookup. Keys and values are
// stored in normalized form, and every canonical form resolves to itself.
// Lookup is single-hop: a canonical form that is itself listed as another
// group's alias is not chased further.
type AliasTable struct {
	lookup map[string]string
}

// NewAliasTable builds a table from ordered groups.
func NewAliasTable(groups []AliasGroup) *AliasTable {
	t := &AliasTable{lookup: make(map[string]string)}
	for _, g := range groups {
		canon := normalizeText(g.Canonical)
		if canon == "" {
			continue
		}
		t.lookup[canon] = canon
		for _, a := range g.Aliases {
			if key := normalizeText(a); key != "" {
				t.lookup[key] = canon
			}
		}
	}
	return t
}

// NewAliasTableFromMap builds a table from a flat alias-to-canonical map,
// the shape aliases take in run configuration. Entries are applied in
// sorted key order so conflicting chains resolve the same way every run.
func NewAliasTableFromMap(aliases map[string]string) *AliasTable {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := &AliasTable{lookup: make(map[string]string)}
	for _, k := range keys {
		alias, canon := normalizeText(k), normalizeText(aliases[k])
		if alias == "" || canon == "" {
			continue
		}
		t.lookup[canon] = canon
		t.lookup[alias] = canon
	}
	return t
}

// Resolve looks up an already-normalized form.
func (t *AliasTable) Resolve(normalized string) (string, bool) {
	canon, ok := t.lookup[normalized]
	return canon, ok
}

// Len reports the number of lookup entries, canonical self-entries included.
func (t *AliasTable) Len() int {
	return len(t.lookup)
}

// normalizeText lowercases, trims, and collapses every internal whitespace
// run to a single space.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// DefaultAliasGroups returns the built-in alias data for Hawaii legislative
// text. "legislative body" is claimed by both chambers-related groups; the
// legislature group is listed later and wins.
func DefaultAliasGroups() []AliasGroup {
	return []AliasGroup{
		{
			Canonical: "department of education",
			Aliases:   []string{"doe", "dept of education", "education department", "department"},
		},
		{
			Canonical: "department of agriculture",
			Aliases:   []string{"hdoa", "dept of agriculture", "agriculture department"},
		},
		{
			Canonical: "farm to school program",
			Aliases:   []string{"hawaii farm to school program", "farm-to-school program"},
		},
		{
			Canonical: "house of representatives",
			Aliases:   []string{"house", "representatives", "legislative body"},
		},
		{
			Canonical: "legislature",
			Aliases:   []string{"legislative body", "legislative branch", "state legislature"},
		},
		{
			Canonical: "public schools",
			Aliases:   []string{"schools", "educational institutions", "state schools"},
		},
		{
			Canonical: "agricultural communities",
			Aliases:   []string{"farming communities", "agricultural groups", "farmer groups"},
		},
	}
}
