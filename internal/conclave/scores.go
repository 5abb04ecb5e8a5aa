// Package conclave assigns every resolved read to exactly one of its
// candidate templates.
package conclave

import "shardmap/internal/resolver"

// Scores are the per-template tallies shared by the voting passes, indexed
// by global template id.
type Scores struct {
	// Alignment is the summed score of every read listing the template.
	Alignment []uint64
	// Unique is the summed score of reads whose only candidate (or only
	// accepted candidate) is the template.
	Unique []uint64
	// Weighted is the summed score of reads assigned to the template.
	Weighted []uint64
}

// NewScores allocates tables for n templates.
func NewScores(n int) *Scores {
	return &Scores{
		Alignment: make([]uint64, n),
		Unique:    make([]uint64, n),
		Weighted:  make([]uint64, n),
	}
}

// Credit adds score to every candidate's alignment total, and to the unique
// total when there is a single candidate.
func (s *Scores) Credit(cands []resolver.Candidate, score uint64) {
	for _, c := range cands {
		s.Alignment[c.Template] += score
	}
	if len(cands) == 1 {
		s.Unique[cands[0].Template] += score
	}
}

// ResetUnique zeroes the unique totals.
func (s *Scores) ResetUnique() { clear(s.Unique) }

// ResetWeighted zeroes the weighted totals.
func (s *Scores) ResetWeighted() { clear(s.Weighted) }

// Hits is the sum of all weighted totals.
func (s *Scores) Hits() uint64 {
	var n uint64
	for _, w := range s.Weighted {
		n += w
	}
	return n
}
