package assembly

import (
	"context"

	"shardmap/internal/seq"
	"shardmap/internal/spool"
)

// Pileup is an ungapped assembler: each fragment is placed, on whichever
// strand anchors more k-mers, at the template offset most of its k-mers
// agree on, and the consensus is the majority base per position.
type Pileup struct {
	K int
}

// DefaultPileupK is used when Pileup.K is outside [4,32].
const DefaultPileupK = 16

func (p Pileup) k() int {
	if p.K < 4 || p.K > 32 {
		return DefaultPileupK
	}
	return p.K
}

// Assemble implements Assembler.
func (p Pileup) Assemble(ctx context.Context, job *Job, frags Fragments) (*Result, error) {
	k := p.k()
	index := indexTemplate(job.Seq, k)
	counts := make([][5]uint32, len(job.Seq))
	res := &Result{}
	var rc []byte

	err := frags.Each(job.Template, func(f *spool.Fragment) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.ScoreSum += uint64(f.Score)
		q := f.Seq
		off, votes := anchor(index, q, k)
		rc = append(rc[:0], q...)
		seq.RevCompCodes(rc)
		if roff, rvotes := anchor(index, rc, k); rvotes > votes {
			q, off, votes = rc, roff, rvotes
		}
		if votes == 0 {
			res.Unplaced++
			return nil
		}
		res.Fragments++
		for i, c := range q {
			pos := off + i
			if pos < 0 || pos >= len(counts) {
				continue
			}
			if c > seq.Ambiguous {
				c = seq.Ambiguous
			}
			counts[pos][c]++
			res.Depth++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Consensus = make([]byte, len(job.Seq))
	for pos, cnt := range counts {
		best, bestN := -1, uint32(0)
		for b := 0; b < 4; b++ {
			if cnt[b] > bestN {
				best, bestN = b, cnt[b]
			}
		}
		switch {
		case best >= 0:
			res.Consensus[pos] = "ACGT"[best]
			res.ConsensusDepth += uint64(bestN)
			res.Aligned++
			if byte(best) == job.Seq[pos] {
				res.Matched++
			}
		case cnt[seq.Ambiguous] > 0:
			res.Consensus[pos] = 'n'
			res.Aligned++
		default:
			res.Consensus[pos] = '-'
		}
	}
	return res, nil
}

// indexTemplate maps each k-mer code of s to its first position.
func indexTemplate(s []byte, k int) map[uint64]int {
	idx := make(map[uint64]int, len(s))
	eachKmer(s, k, func(pos int, code uint64) {
		if _, ok := idx[code]; !ok {
			idx[code] = pos
		}
	})
	return idx
}

// anchor returns the template offset voted for by most of q's k-mers and
// its vote count.
func anchor(idx map[uint64]int, q []byte, k int) (int, int) {
	votes := map[int]int{}
	best, bestN := 0, 0
	eachKmer(q, k, func(pos int, code uint64) {
		tp, ok := idx[code]
		if !ok {
			return
		}
		off := tp - pos
		votes[off]++
		if n := votes[off]; n > bestN || n == bestN && off < best {
			best, bestN = off, n
		}
	})
	return best, bestN
}

// eachKmer rolls a 2-bit code over s, restarting after ambiguous bases.
func eachKmer(s []byte, k int, fn func(pos int, code uint64)) {
	mask := uint64(1)<<(2*uint(k)) - 1
	if k == 32 {
		mask = ^uint64(0)
	}
	var code uint64
	run := 0
	for i, c := range s {
		if c >= seq.Ambiguous {
			run = 0
			continue
		}
		code = (code<<2 | uint64(c)) & mask
		run++
		if run >= k {
			fn(i-k+1, code)
		}
	}
}
