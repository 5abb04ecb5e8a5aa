package conclave

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"shardmap/internal/resolver"
	"shardmap/internal/seq"
	"shardmap/internal/spool"
)

func cands(ids ...int32) []resolver.Candidate {
	out := make([]resolver.Candidate, len(ids))
	for i, id := range ids {
		if id < 0 {
			out[i] = resolver.Candidate{Template: -id, Reverse: true}
		} else {
			out[i] = resolver.Candidate{Template: id}
		}
	}
	return out
}

func TestSeed(t *testing.T) {
	for s, want := range map[string]int32{
		"ACGTACGTACGTACGTACGT":  345777215,
		"TTTTTTTTTTTTTTTTTTTT":  1073733420,
		"GATTACAGATTACAGATTACA": 78022305,
		"AAAAAAAAAAAAAAAA":      math.MaxInt32,
	} {
		assert.Equal(t, want, Seed(seq.Encode([]byte(s))), s)
	}
}

func TestDraw(t *testing.T) {
	c := cands(0, 1)
	acgt := seq.Encode([]byte("ACGTACGTACGTACGTACGT"))
	gatt := seq.Encode([]byte("GATTACAGATTACAGATTACA"))

	assert.Equal(t, 1, Draw(acgt, c, []uint64{10, 90}))
	assert.Equal(t, 0, Draw(gatt, c, []uint64{10, 30}))
	assert.Equal(t, 1, Draw(gatt, c, []uint64{0, 30}))
	assert.Equal(t, -1, Draw(gatt, c, []uint64{0, 0}))
	assert.Equal(t, -1, Draw(acgt[:15], c, []uint64{10, 90}))
}

func TestSelectorDeterministic(t *testing.T) {
	sc := NewScores(4)
	sel := &Selector{Scores: sc, Lengths: []int32{115, 215, 115, 115}, K: 16}
	sc.Alignment = []uint64{100, 200, 100, 100}
	sc.Unique = []uint64{0, 0, 5, 5}

	// 100/100 == 200/200: higher raw alignment wins
	c := cands(0, 1)
	for i := 0; i < 10; i++ {
		require.Equal(t, 1, sel.Best(c, nil))
	}
	// equal norm and alignment: higher unique wins, then lower id
	require.Equal(t, 1, sel.Best(cands(0, 2), nil))
	require.Equal(t, 1, sel.Best(cands(3, 2), nil))
	require.Equal(t, 1, sel.Best(cands(3, -2), nil))
	// restricted to allowed
	require.Equal(t, 1, sel.Best(cands(1, 3), []bool{false, false, false, true}))
	require.Equal(t, -1, sel.Best(cands(1), []bool{true, false, false, false}))
}

func TestSignificance(t *testing.T) {
	th := Threshold{Evalue: 1, Combine: And}
	// length share 1:1, hits 100, observed 50: expected 50
	v := Test(50, 100, 100, 200, th)
	assert.InDelta(t, 50, v.Expected, 1e-9)
	assert.Equal(t, 1.0, v.PValue)
	assert.False(t, v.Pass)

	v = Test(40, 100, 40, 1000, DefaultThreshold)
	assert.Zero(t, v.Expected)
	assert.InDelta(t, 40, v.QValue, 1e-9)
	assert.True(t, v.Pass)

	strict := Threshold{Evalue: 0.05, ScoreT: 0.5, Combine: And}
	assert.False(t, Test(40, 100, 40, 1000, strict).Pass)
	strict.Combine = Or
	assert.True(t, Test(40, 100, 40, 1000, strict).Pass)

	assert.InDelta(t, 0.05, ChiSquareTail(3.841459), 1e-6)
	assert.Equal(t, 1.0, ChiSquareTail(0))
}

func TestParseCombine(t *testing.T) {
	c, err := ParseCombine("OR")
	require.NoError(t, err)
	require.Equal(t, Or, c)
	c, err = ParseCombine("")
	require.NoError(t, err)
	require.Equal(t, "and", c.String())
	_, err = ParseCombine("xor")
	require.Error(t, err)
}

func TestStagingLogRoundTrip(t *testing.T) {
	l, err := NewStagingLog(t.TempDir())
	require.NoError(t, err)
	defer l.Remove()

	in := []Staged{
		{Seq: []byte{0, 1, 2, 3}, Header: []byte("@a"), Score: 40, Candidates: cands(5), Starts: []int32{0}, Ends: []int32{100}},
		{Seq: []byte{3, 3, 4}, Header: []byte("@b"), Score: 0, Negative: true, Candidates: cands(-1, 2), Starts: []int32{0, 0}, Ends: []int32{7, 8},
			Mate: &resolver.Mate{Seq: []byte{1, 1}, Header: []byte("@b/2")}},
	}
	require.ErrorIs(t, l.Scan(func(*Staged) error { return nil }), ErrStagingOpen)
	for i := range in {
		require.NoError(t, l.Append(&in[i]))
	}
	require.NoError(t, l.Seal())
	require.Equal(t, 2, l.Len())

	for pass := 0; pass < 2; pass++ {
		var got []Staged
		require.NoError(t, l.Scan(func(s *Staged) error {
			c := Staged{
				Seq: append([]byte(nil), s.Seq...), Header: append([]byte(nil), s.Header...),
				Score: s.Score, Negative: s.Negative,
				Candidates: append([]resolver.Candidate(nil), s.Candidates...),
				Starts:     append([]int32(nil), s.Starts...), Ends: append([]int32(nil), s.Ends...),
			}
			if s.Mate != nil {
				c.Mate = &resolver.Mate{Seq: append([]byte(nil), s.Mate.Seq...), Header: append([]byte(nil), s.Mate.Header...)}
			}
			got = append(got, c)
			return nil
		}))
		if diff := cmp.Diff(in, got, cmp.AllowUnexported(Staged{})); diff != "" {
			t.Fatalf("pass %d (-want +got):\n%s", pass, diff)
		}
	}
}

type memSink struct{ frags []spool.Fragment }

func (m *memSink) Add(frags ...spool.Fragment) error {
	for _, f := range frags {
		f.Seq = append([]byte(nil), f.Seq...)
		f.Header = append([]byte(nil), f.Header...)
		m.frags = append(m.frags, f)
	}
	return nil
}

func read(s string, score int32, neg bool, c []resolver.Candidate) *resolver.Read {
	return &resolver.Read{Seq: seq.Encode([]byte(s)), Header: []byte("@" + s[:4]), Score: score, Negative: neg, Candidates: c}
}

func TestEngineNormalized(t *testing.T) {
	e, err := NewEngine(Config{
		Policy:    Normalized,
		K:         16,
		Lengths:   []int32{1015, 1015, 2015, 1015, 1015, 1015},
		Total:     7090,
		Threshold: DefaultThreshold,
		Dir:       t.TempDir(),
		Log:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	defer e.Close()

	r0 := read("ACGTTTTTGGGGCCCCAAAA", 40, false, cands(5))
	require.NoError(t, e.Stage(r0))
	// template 2 is twice as long: 1 has the better normalized score
	require.NoError(t, e.Stage(read("GGGGAAAACCCCTTTTACGT", 30, false, cands(1))))
	require.NoError(t, e.Stage(read("GGGGAAAACCCCTTTTACGT", 30, false, cands(2))))
	require.NoError(t, e.Stage(read("GGGGAAAACCCCTTTTACGT", 30, false, cands(2))))
	pe := read("CCCCAAAAGGGGTTTTACGT", 20, true, cands(-1, 2))
	pe.Mate = &resolver.Mate{Seq: seq.Encode([]byte("ACGTACGTACGTACGTAAAA")), Header: []byte("@mate")}
	require.NoError(t, e.Stage(pe))

	require.Equal(t, uint64(40), e.Scores().Alignment[5])
	require.Equal(t, uint64(40), e.Scores().Unique[5])
	require.Equal(t, uint64(80), e.Scores().Alignment[2])

	sink := &memSink{}
	require.NoError(t, e.Run(sink))
	require.Equal(t, Done, e.Phase())
	require.ErrorIs(t, e.Run(sink), ErrPhase)
	require.ErrorIs(t, e.Stage(r0), ErrPhase)

	require.Len(t, sink.frags, 6)
	assert.Equal(t, int32(5), sink.frags[0].Template)
	assert.Equal(t, uint32(40), sink.frags[0].Score)
	assert.Equal(t, int32(1015), sink.frags[0].End)

	// the pair goes to template 1 reversed: 50/1000 beats 80/2000
	p, m := sink.frags[4], sink.frags[5]
	assert.Equal(t, int32(1), p.Template)
	assert.Equal(t, "ACGTAAAACCCCTTTTGGGG", string(seq.Decode(p.Seq)))
	assert.Zero(t, p.Score, "negative read is spooled unscored")
	assert.Equal(t, int32(2), p.Candidates)
	assert.Equal(t, "@mate", string(m.Header))
	assert.Equal(t, int32(1), m.Template)

	assert.Equal(t, uint64(40), e.Scores().Weighted[5])
	assert.Equal(t, uint64(50), e.Scores().Weighted[1])
	assert.Equal(t, uint64(3), e.ReadCounts()[1])
	assert.Equal(t, uint64(2), e.FragmentCounts()[1])
	assert.Nil(t, e.Accepted())
}

func TestEngineSignificance(t *testing.T) {
	e, err := NewEngine(Config{
		Policy:    Significance,
		K:         16,
		Lengths:   []int32{1000, 1000, 1000, 1000},
		Total:     4000,
		Threshold: DefaultThreshold,
		Dir:       t.TempDir(),
	})
	require.NoError(t, err)
	defer e.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Stage(read("ACGTACGTACGTACGTACGT", 50, false, cands(0))))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, e.Stage(read("GATTACAGATTACAGATTACA", 50, false, cands(1, 0))))
	}
	require.NoError(t, e.Stage(read("TTTTTTTTTTTTTTTTTTTT", 5, false, cands(2))))

	sink := &memSink{}
	require.NoError(t, e.Run(sink))

	require.Equal(t, []bool{true, false, false, false}, e.Accepted())
	st := e.Stats()
	assert.Equal(t, 1, st.Accepted)
	assert.Equal(t, 1, st.Rejected)
	assert.Equal(t, 5, st.Drawn)
	assert.Equal(t, uint64(750), e.Scores().Unique[0])
	assert.Equal(t, uint64(750), e.Scores().Weighted[0])
	assert.Equal(t, uint64(0), e.Scores().Weighted[1])
	assert.Equal(t, uint64(5), e.Scores().Weighted[2])
	require.Len(t, sink.frags, 16)
}

func TestEngineFallbackWhenNothingAccepted(t *testing.T) {
	e, err := NewEngine(Config{
		Policy:    Significance,
		K:         16,
		Lengths:   []int32{1000, 1000},
		Total:     2000,
		Threshold: Threshold{Evalue: 0.05, ScoreT: 10, Combine: And},
		Dir:       t.TempDir(),
	})
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Stage(read("GATTACAGATTACAGATTACA", 5, false, cands(1, 0))))

	sink := &memSink{}
	require.NoError(t, e.Run(sink))
	require.Len(t, sink.frags, 1)
	require.Equal(t, int32(0), sink.frags[0].Template)
}
