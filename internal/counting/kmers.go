package counting

import (
	"errors"
	"fmt"

	"github.com/shenwei356/kmers"
)

// ErrKmerSize is returned for k outside [1,32].
var ErrKmerSize = errors.New("counting: k-mer size must be in [1,32]")

// Canonical calls fn with the canonical 2-bit code of every k-mer of s.
// Windows containing a non-ACGT base are skipped.
func Canonical(s []byte, k int, fn func(code uint64)) error {
	if k < 1 || k > 32 {
		return fmt.Errorf("%w: %d", ErrKmerSize, k)
	}
	for i := 0; i+k <= len(s); i++ {
		code, err := kmers.Encode(s[i : i+k])
		if err != nil {
			continue
		}
		if rc := kmers.RevComp(code, k); rc < code {
			code = rc
		}
		fn(code)
	}
	return nil
}

// CountSequence tallies every canonical k-mer of s into t and returns the
// number of k-mers counted.
func CountSequence(t *CountTable, s []byte, k int) (int, error) {
	n := 0
	err := Canonical(s, k, func(code uint64) {
		t.CountIndex(code)
		n++
	})
	return n, err
}

// DistinctSequence adds every canonical k-mer of s to set and returns how
// many were new.
func DistinctSequence(set *KmerSet, s []byte, k int) (int, error) {
	n := 0
	err := Canonical(s, k, func(code uint64) {
		if set.InsertIfAbsent(code) {
			n++
		}
	})
	return n, err
}
