package rehydrate

import (
	"strings"
	"unicode"
)

// DefaultMaxExpansions caps added terms per source term.
const DefaultMaxExpansions = 5

// memorySynonyms bridges vocabulary between queries and stored memory
// notes. Keys are lowercase query terms; values are expansion terms.
var memorySynonyms = map[string][]string{
	"priority":   {"priorities", "roadmap", "sprint"},
	"priorities": {"priority", "roadmap", "sprint"},
	"plan":       {"planning", "roadmap", "milestone"},
	"decision":   {"decisions", "rationale", "tradeoff"},
	"bug":        {"defect", "issue", "regression"},
	"config":     {"configuration", "settings"},
	"doc":        {"docs", "documentation"},
	"docs":       {"documentation", "doc"},
	"test":       {"testing", "tests", "coverage"},
	"deploy":     {"deployment", "release", "rollout"},
	"workflow":   {"process", "convention"},
	"overview":   {"summary", "architecture"},
	"status":     {"progress", "state"},
	"goal":       {"goals", "objective", "milestone"},
}

// QueryExpander expands sparse-channel queries with synonyms and naming
// variants. The dense channel always receives the original query; the
// embedding model handles semantic similarity on its own, and expansion
// noise hurts its precision.
type QueryExpander struct {
	synonyms      map[string][]string
	maxExpansions int
}

// NewQueryExpander creates an expander. maxExpansions <= 0 uses the default.
func NewQueryExpander(maxExpansions int) *QueryExpander {
	if maxExpansions <= 0 {
		maxExpansions = DefaultMaxExpansions
	}
	return &QueryExpander{
		synonyms:      memorySynonyms,
		maxExpansions: maxExpansions,
	}
}

// Expand returns the expanded query string and the terms that were added.
// Original terms come first so exact matches keep their weight, then
// synonym expansions, then identifier-split variants for camelCase and
// snake_case query terms. Added terms are deduplicated case-insensitively.
func (e *QueryExpander) Expand(query string) (string, []string) {
	terms := splitQueryTerms(query)
	if len(terms) == 0 {
		return query, nil
	}

	seen := make(map[string]bool)
	expanded := make([]string, 0, len(terms))
	var added []string

	for _, term := range terms {
		lower := strings.ToLower(term)
		if !seen[lower] {
			expanded = append(expanded, term)
			seen[lower] = true
		}
	}

	for _, term := range terms {
		count := 0
		for _, syn := range e.synonyms[strings.ToLower(term)] {
			if count >= e.maxExpansions {
				break
			}
			lower := strings.ToLower(syn)
			if !seen[lower] {
				expanded = append(expanded, syn)
				added = append(added, syn)
				seen[lower] = true
				count++
			}
		}
	}

	// Identifier splits let "rehydrateMemory" match notes that spell it
	// out as separate words.
	for _, term := range terms {
		for _, part := range splitIdentifier(term) {
			lower := strings.ToLower(part)
			if !seen[lower] {
				expanded = append(expanded, lower)
				added = append(added, lower)
				seen[lower] = true
			}
		}
	}

	return strings.Join(expanded, " "), added
}

// splitQueryTerms splits a query on whitespace and punctuation, keeping
// underscores inside terms for later identifier splitting.
func splitQueryTerms(query string) []string {
	var terms []string
	var current strings.Builder

	for _, r := range query {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			current.WriteRune(r)
		} else if current.Len() > 0 {
			terms = append(terms, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		terms = append(terms, current.String())
	}

	return terms
}

// splitIdentifier splits camelCase and snake_case terms into parts.
// Single-part terms return nil so only real identifiers add variants.
func splitIdentifier(term string) []string {
	var parts []string

	if strings.Contains(term, "_") {
		for _, p := range strings.Split(term, "_") {
			if p != "" {
				parts = append(parts, p)
			}
		}
	} else {
		var current strings.Builder
		for i, r := range term {
			if i > 0 && unicode.IsUpper(r) && current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			current.WriteRune(r)
		}
		if current.Len() > 0 {
			parts = append(parts, current.String())
		}
	}

	if len(parts) <= 1 {
		return nil
	}
	return parts
}
