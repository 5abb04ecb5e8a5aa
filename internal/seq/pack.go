// internal/seq/pack.go
package seq

// Base codes used throughout: A=0 C=1 G=2 T=3, anything else is Ambiguous.
const Ambiguous byte = 4

var (
	toCode  [256]byte
	toASCII = [5]byte{'A', 'C', 'G', 'T', 'N'}
)

func init() {
	for i := range toCode {
		toCode[i] = Ambiguous
	}
	toCode['A'], toCode['a'] = 0, 0
	toCode['C'], toCode['c'] = 1, 1
	toCode['G'], toCode['g'] = 2, 2
	toCode['T'], toCode['t'] = 3, 3
}

// Words returns the number of 64-bit words holding n packed bases.
func Words(n int) int { return (n >> 5) + 1 }

// Unpack expands n bases from 2-bit packed words (32 bases per word, first
// base in the most significant pair) into dst and marks the positions in
// amb as Ambiguous. dst is grown as needed and returned.
func Unpack(dst []byte, words []uint64, n int, amb []int32) []byte {
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		w := i >> 5
		if w >= len(words) {
			dst[i] = Ambiguous
			continue
		}
		dst[i] = byte(words[w]>>(62-uint((i&31)<<1))) & 3
	}
	for _, p := range amb {
		if p >= 0 && int(p) < n {
			dst[p] = Ambiguous
		}
	}
	return dst
}

// Pack compresses ASCII bases into 2-bit words and returns the positions of
// bases that are not A/C/G/T. It is the inverse of Unpack.
func Pack(s []byte) (words []uint64, amb []int32) {
	words = make([]uint64, Words(len(s)))
	for i, b := range s {
		c := toCode[b]
		if c == Ambiguous {
			amb = append(amb, int32(i))
			c = 0
		}
		words[i>>5] |= uint64(c) << (62 - uint((i&31)<<1))
	}
	return words, amb
}

// Encode converts ASCII bases to codes.
func Encode(s []byte) []byte {
	out := make([]byte, len(s))
	for i, b := range s {
		out[i] = toCode[b]
	}
	return out
}

// Decode converts codes back to ASCII bases.
func Decode(codes []byte) []byte {
	out := make([]byte, len(codes))
	for i, c := range codes {
		if c > Ambiguous {
			c = Ambiguous
		}
		out[i] = toASCII[c]
	}
	return out
}
