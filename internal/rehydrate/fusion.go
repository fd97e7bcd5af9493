package rehydrate

import (
	"math"
	"sort"

	"github.com/TheMonk2121/rehydrate/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains.
const DefaultRRFConstant = 60

// Weights splits fused scores between the two retrieval channels.
// Dense + Sparse should sum to 1.0.
type Weights struct {
	Dense  float64
	Sparse float64
}

// DefaultWeights favors the dense channel for prose-heavy memory content.
func DefaultWeights() Weights {
	return Weights{Dense: 0.65, Sparse: 0.35}
}

// Fuser combines lexical and dense channel results into a single ranking.
type Fuser interface {
	Fuse(sparse []*store.LexicalResult, dense []*store.DenseResult, weights Weights) []*Candidate
}

// RRFFuser implements Reciprocal Rank Fusion.
//
// Algorithm: score(d) = Σ weight_i / (k + rank_i)
//
// Where k is the smoothing constant (default 60) and rank_i is the
// 1-indexed position in channel i. A channel that did not return the
// document contributes zero.
type RRFFuser struct {
	K int
}

// NewRRFFuser creates an RRF fuser. k <= 0 falls back to the default.
func NewRRFFuser(k int) *RRFFuser {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFuser{K: k}
}

// Fuse combines the two channels with RRF and normalizes scores to 0-1.
//
// Results are sorted by: score (desc) → in both channels (true first) →
// sparse score (desc) → chunk ID (asc).
func (f *RRFFuser) Fuse(sparse []*store.LexicalResult, dense []*store.DenseResult, weights Weights) []*Candidate {
	if len(sparse) == 0 && len(dense) == 0 {
		return []*Candidate{}
	}

	scores := make(map[string]*Candidate, len(sparse)+len(dense))

	for rank, r := range sparse {
		c := getOrCreate(scores, r.ChunkID)
		c.SparseScore = r.Score
		c.SparseRank = rank + 1
		c.MatchedTerms = r.MatchedTerms
		c.Score += weights.Sparse / float64(f.K+rank+1)
	}

	for rank, r := range dense {
		c := getOrCreate(scores, r.ChunkID)
		c.DenseScore = float64(r.Score)
		c.DenseRank = rank + 1
		c.Score += weights.Dense / float64(f.K+rank+1)

		if c.SparseRank > 0 {
			c.InBoth = true
		}
	}

	results := toSortedCandidates(scores)
	normalizeScores(results)
	return results
}

// ZScoreFuser implements z-score normalized score fusion. Each channel's
// raw scores are standardized (mean 0, stddev 1) before the weighted sum,
// making fusion invariant to per-channel score scale.
type ZScoreFuser struct{}

// NewZScoreFuser creates a z-score fuser.
func NewZScoreFuser() *ZScoreFuser {
	return &ZScoreFuser{}
}

// Fuse standardizes each channel's scores and combines them with the
// given weights. A channel with zero variance contributes zero for all
// its documents. Missing-channel documents contribute nothing for that
// channel. Tie-breaking matches RRF fusion.
func (f *ZScoreFuser) Fuse(sparse []*store.LexicalResult, dense []*store.DenseResult, weights Weights) []*Candidate {
	if len(sparse) == 0 && len(dense) == 0 {
		return []*Candidate{}
	}

	sparseScores := make([]float64, len(sparse))
	for i, r := range sparse {
		sparseScores[i] = r.Score
	}
	denseScores := make([]float64, len(dense))
	for i, r := range dense {
		denseScores[i] = float64(r.Score)
	}

	sparseZ := zNormalize(sparseScores)
	denseZ := zNormalize(denseScores)

	scores := make(map[string]*Candidate, len(sparse)+len(dense))

	for i, r := range sparse {
		c := getOrCreate(scores, r.ChunkID)
		c.SparseScore = r.Score
		c.SparseRank = i + 1
		c.MatchedTerms = r.MatchedTerms
		c.Score += weights.Sparse * sparseZ[i]
	}

	for i, r := range dense {
		c := getOrCreate(scores, r.ChunkID)
		c.DenseScore = float64(r.Score)
		c.DenseRank = i + 1
		c.Score += weights.Dense * denseZ[i]

		if c.SparseRank > 0 {
			c.InBoth = true
		}
	}

	return toSortedCandidates(scores)
}

// zNormalize standardizes scores to mean 0 and stddev 1.
// Zero variance yields all zeros.
func zNormalize(scores []float64) []float64 {
	n := len(scores)
	if n == 0 {
		return nil
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(n)

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(n)

	normalized := make([]float64, n)
	if variance == 0 {
		return normalized
	}

	stddev := math.Sqrt(variance)
	for i, s := range scores {
		normalized[i] = (s - mean) / stddev
	}
	return normalized
}

func getOrCreate(m map[string]*Candidate, id string) *Candidate {
	if c, ok := m[id]; ok {
		return c
	}
	c := &Candidate{ChunkID: id}
	m[id] = c
	return c
}

// toSortedCandidates converts the score map to a deterministically sorted
// slice: score desc, then in-both, then sparse score desc, then ID asc.
func toSortedCandidates(m map[string]*Candidate) []*Candidate {
	results := make([]*Candidate, 0, len(m))
	for _, c := range m {
		results = append(results, c)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.InBoth != b.InBoth {
			return a.InBoth
		}
		if a.SparseScore != b.SparseScore {
			return a.SparseScore > b.SparseScore
		}
		return a.ChunkID < b.ChunkID
	})

	return results
}

// normalizeScores scales scores so the top result is 1.0.
func normalizeScores(results []*Candidate) {
	if len(results) == 0 {
		return
	}
	maxScore := results[0].Score
	if maxScore == 0 {
		return
	}
	for _, c := range results {
		c.Score = c.Score / maxScore
	}
}

// candidatesFromSparse converts a single surviving sparse channel into
// candidates, preserving the channel's own ranking.
func candidatesFromSparse(sparse []*store.LexicalResult) []*Candidate {
	results := make([]*Candidate, len(sparse))
	for i, r := range sparse {
		results[i] = &Candidate{
			ChunkID:      r.ChunkID,
			Score:        r.Score,
			SparseScore:  r.Score,
			SparseRank:   i + 1,
			MatchedTerms: r.MatchedTerms,
		}
	}
	normalizeScores(results)
	return results
}

// candidatesFromDense converts a single surviving dense channel into
// candidates, preserving the channel's own ranking.
func candidatesFromDense(dense []*store.DenseResult) []*Candidate {
	results := make([]*Candidate, len(dense))
	for i, r := range dense {
		results[i] = &Candidate{
			ChunkID:    r.ChunkID,
			Score:      float64(r.Score),
			DenseScore: float64(r.Score),
			DenseRank:  i + 1,
		}
	}
	return results
}
