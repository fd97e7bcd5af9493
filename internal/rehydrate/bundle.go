package rehydrate

import (
	"fmt"
	"strings"

	"github.com/TheMonk2121/rehydrate/internal/store"
)

// packEvidence fills the evidence section with whole chunks in fused
// order. Packing stops at the first chunk that would exceed the
// remaining budget; a lower-ranked chunk never leapfrogs one that did
// not fit. If even the top candidate does not fit an otherwise empty
// evidence section, it is admitted anyway with a budget warning; an
// empty bundle helps nobody.
func packEvidence(candidates []*Candidate, budget int) (evidence []PackedEvidence, usedTokens int, warnings []string) {
	evidence = make([]PackedEvidence, 0, len(candidates))

	for _, c := range candidates {
		if c.Chunk == nil {
			continue
		}

		tokens := c.Chunk.TokenEstimate
		if tokens <= 0 {
			tokens = store.EstimateTokens(c.Chunk.Text)
		}

		escaped := false
		if usedTokens+tokens > budget {
			if len(evidence) > 0 {
				break
			}
			warnings = append(warnings, WarnBudgetExceeded)
			escaped = true
		}

		evidence = append(evidence, PackedEvidence{
			ChunkID:      c.ChunkID,
			FilePath:     c.Chunk.FilePath,
			StartChar:    c.Chunk.StartChar,
			EndChar:      c.Chunk.EndChar,
			Text:         c.Chunk.Text,
			Tokens:       tokens,
			Score:        c.Score,
			MatchedTerms: c.MatchedTerms,
		})
		usedTokens += tokens

		if escaped {
			break
		}
	}

	return evidence, usedTokens, warnings
}

// Markdown renders the bundle for injection into an agent context.
// Evidence entries cite their source as path:start-end.
func (b *Bundle) Markdown() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Context Bundle (%s)\n\n", b.Metadata.Role))

	if len(b.Pins) > 0 {
		sb.WriteString("## Pinned Context\n\n")
		for _, pin := range b.Pins {
			sb.WriteString(fmt.Sprintf("### %s\n\n", pin.Key))
			sb.WriteString(strings.TrimSpace(pin.Text))
			sb.WriteString("\n\n")
		}
	}

	if len(b.Evidence) > 0 {
		sb.WriteString("## Evidence\n\n")
		for i, ev := range b.Evidence {
			sb.WriteString(fmt.Sprintf("### [%d] %s:%d-%d (score %.3f)\n\n",
				i+1, ev.FilePath, ev.StartChar, ev.EndChar, ev.Score))
			sb.WriteString(strings.TrimSpace(ev.Text))
			sb.WriteString("\n\n")
		}
	}

	if len(b.Pins) == 0 && len(b.Evidence) == 0 {
		sb.WriteString("No pinned context or evidence found for this query.\n\n")
	}

	sb.WriteString(fmt.Sprintf("---\nrole=%s fusion=%s pins=%d evidence=%d tokens=%d/%d elapsed=%dms\n",
		b.Metadata.Role,
		b.Metadata.FusionMethod,
		b.Metadata.PinsCount,
		b.Metadata.EvidenceCount,
		b.Metadata.TotalTokens,
		b.Metadata.MaxTokens,
		b.Metadata.ElapsedMS))

	if len(b.Metadata.Warnings) > 0 {
		sb.WriteString(fmt.Sprintf("warnings: %s\n", strings.Join(b.Metadata.Warnings, ", ")))
	}

	return sb.String()
}
