package conclave

import "shardmap/internal/resolver"

// Selector picks the deterministic best candidate: highest alignment score
// per template k-mer position, then higher raw alignment score, then higher
// unique score, then lower template id.
type Selector struct {
	Scores  *Scores
	Lengths []int32
	K       int
}

func (s *Selector) norm(t int32) float64 {
	d := int64(s.Lengths[t]) - int64(s.K) + 1
	if d < 1 {
		d = 1
	}
	return float64(s.Scores.Alignment[t]) / float64(d)
}

// Best returns the index of the winning candidate among those allowed (all
// when allowed is nil), or -1 when none is allowed.
func (s *Selector) Best(cands []resolver.Candidate, allowed []bool) int {
	best := -1
	var bestNorm float64
	for i, c := range cands {
		if allowed != nil && !allowed[c.Template] {
			continue
		}
		n := s.norm(c.Template)
		if best < 0 || n > bestNorm || n == bestNorm && s.beats(c.Template, cands[best].Template) {
			best, bestNorm = i, n
		}
	}
	return best
}

func (s *Selector) beats(t, cur int32) bool {
	a, b := s.Scores.Alignment[t], s.Scores.Alignment[cur]
	if a != b {
		return a > b
	}
	u, v := s.Scores.Unique[t], s.Scores.Unique[cur]
	if u != v {
		return u > v
	}
	return t < cur
}
