package conclave

import (
	"fmt"
	"math"
	"strings"
)

// Combine joins the significance and score-threshold conditions.
type Combine int

const (
	And Combine = iota
	Or
)

// ParseCombine accepts "and" or "or".
func ParseCombine(s string) (Combine, error) {
	switch strings.ToLower(s) {
	case "", "and":
		return And, nil
	case "or":
		return Or, nil
	}
	return And, fmt.Errorf("unknown combine %q (want and|or)", s)
}

func (c Combine) String() string {
	if c == Or {
		return "or"
	}
	return "and"
}

// Threshold configures the template acceptance test.
type Threshold struct {
	Evalue  float64
	ScoreT  float64
	Combine Combine
}

// DefaultThreshold is used when nothing is configured.
var DefaultThreshold = Threshold{Evalue: 0.05, Combine: And}

// Verdict is the outcome of the acceptance test for one template.
type Verdict struct {
	Expected float64
	QValue   float64
	PValue   float64
	Pass     bool
}

// Test compares a template's observed vote total with the total expected
// from its share of the reference length. hits is the vote total over all
// templates and total the summed length of all templates.
func Test(observed uint64, length int32, hits uint64, total int64, th Threshold) Verdict {
	var v Verdict
	if rest := total - int64(length); rest > 0 && hits > observed {
		v.Expected = float64(length) / float64(rest) * float64(hits-observed)
	}
	obs := float64(observed)
	if d := v.Expected + obs; d > 0 {
		v.QValue = (obs - v.Expected) * (obs - v.Expected) / d
	}
	v.PValue = ChiSquareTail(v.QValue)

	significant := v.PValue <= th.Evalue && obs > v.Expected
	scored := obs >= th.ScoreT*float64(length)
	if th.Combine == Or {
		v.Pass = significant || scored
	} else {
		v.Pass = significant && scored
	}
	return v
}

// ChiSquareTail is the right-tail probability of a chi-square statistic
// with one degree of freedom.
func ChiSquareTail(q float64) float64 {
	if q <= 0 {
		return 1
	}
	return math.Erfc(math.Sqrt(q / 2))
}
