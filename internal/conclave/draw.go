package conclave

import (
	"math"

	"shardmap/internal/resolver"
)

// MinDrawLength is the shortest read eligible for the weighted draw.
const MinDrawLength = 16

// Seed derives a reproducible pseudo-random value from a read's first and
// last seven bases (2-bit codes), advanced once through the Park-Miller
// minimal standard generator. The result is in [1, 2^31-1].
func Seed(codes []byte) int32 {
	r := int32(codes[0])
	j := len(codes)
	for i := 0; i < 7; i++ {
		j--
		r = (((r << 2) | int32(codes[i])) << 2) | int32(codes[j])
	}
	r = 16807*(r%127773) - 2836*(r/127773)
	if r <= 0 {
		r += math.MaxInt32
	}
	return r
}

// Draw picks a candidate index with probability proportional to the
// candidate's unique score, using the read's seed. It returns -1 when the
// read is too short or no candidate carries weight.
func Draw(codes []byte, cands []resolver.Candidate, unique []uint64) int {
	if len(codes) < MinDrawLength {
		return -1
	}
	var total uint64
	for _, c := range cands {
		total += unique[c.Template]
	}
	if total == 0 {
		return -1
	}
	pick := uint64(float64(Seed(codes)) / math.MaxInt32 * float64(total))
	var cum uint64
	for i, c := range cands {
		cum += unique[c.Template]
		if pick < cum {
			return i
		}
	}
	return -1
}
