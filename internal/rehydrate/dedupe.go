package rehydrate

// DefaultOverlapThreshold is the span-overlap fraction above which two
// chunks from the same file are considered duplicates.
const DefaultOverlapThreshold = 0.5

// Deduper removes near-duplicate evidence and enforces file diversity.
type Deduper struct {
	Mode             string  // "file" or "file+overlap"
	PerFileCap       int     // max chunks admitted per file
	OverlapThreshold float64 // span-overlap fraction for "file+overlap"
}

// NewDeduper creates a deduper with defaults for unset fields.
func NewDeduper(mode string, perFileCap int, overlapThreshold float64) *Deduper {
	if mode == "" {
		mode = DedupeFile
	}
	if perFileCap <= 0 {
		perFileCap = DefaultPerFileCap
	}
	if overlapThreshold <= 0 || overlapThreshold > 1 {
		overlapThreshold = DefaultOverlapThreshold
	}
	return &Deduper{Mode: mode, PerFileCap: perFileCap, OverlapThreshold: overlapThreshold}
}

// Dedupe filters enriched candidates. Candidates must arrive in fused
// order with Chunk populated; candidates without chunk metadata are
// dropped (stale index entries).
//
// Admission walks the fused order: each file contributes at most
// PerFileCap chunks, and overflow beyond the cap is dropped. In
// "file+overlap" mode, a chunk whose span overlaps an already-admitted
// chunk from the same file by more than OverlapThreshold of the smaller
// span is removed before it can count against the cap.
//
// Returns the kept candidates, the number removed as duplicates or
// stale entries, and the number dropped by the per-file cap.
func (d *Deduper) Dedupe(candidates []*Candidate) (kept []*Candidate, removed, capped int) {
	kept = make([]*Candidate, 0, len(candidates))
	admitted := make(map[string][]*Candidate) // spans already admitted per file

	for _, c := range candidates {
		if c.Chunk == nil {
			removed++
			continue
		}
		file := c.Chunk.FilePath

		if d.Mode == DedupeFileOverlap && d.overlapsAdmitted(c, admitted[file]) {
			removed++
			continue
		}

		if len(admitted[file]) >= d.PerFileCap {
			capped++
			continue
		}

		admitted[file] = append(admitted[file], c)
		kept = append(kept, c)
	}

	return kept, removed, capped
}

// overlapsAdmitted reports whether c's span overlaps any admitted span
// from the same file by more than the threshold of the smaller span.
func (d *Deduper) overlapsAdmitted(c *Candidate, admitted []*Candidate) bool {
	for _, a := range admitted {
		if spanOverlap(c.Chunk.StartChar, c.Chunk.EndChar, a.Chunk.StartChar, a.Chunk.EndChar) > d.OverlapThreshold {
			return true
		}
	}
	return false
}

// spanOverlap returns the overlap of [aStart,aEnd) and [bStart,bEnd) as a
// fraction of the smaller span. Zero-length spans never overlap.
func spanOverlap(aStart, aEnd, bStart, bEnd int) float64 {
	aLen := aEnd - aStart
	bLen := bEnd - bStart
	if aLen <= 0 || bLen <= 0 {
		return 0
	}

	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return 0
	}

	smaller := aLen
	if bLen < smaller {
		smaller = bLen
	}
	return float64(end-start) / float64(smaller)
}
