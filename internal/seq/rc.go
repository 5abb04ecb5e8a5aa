// internal/seq/rc.go
package seq

// RevCompCodes reverse-complements a sequence of 2-bit base codes in place.
// Code 4 (ambiguous) is left as is.
func RevCompCodes(s []byte) {
	for i, j := 0, len(s)-1; i <= j; i, j = i+1, j-1 {
		a, b := compCode(s[j]), compCode(s[i])
		s[i], s[j] = a, b
	}
}

func compCode(c byte) byte {
	if c < 4 {
		return 3 - c
	}
	return c
}
