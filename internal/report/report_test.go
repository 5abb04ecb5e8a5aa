package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardmap/internal/assembly"
	"shardmap/internal/conclave"
)

func outcome(id int32, name string, length, matched, aligned int) assembly.Outcome {
	return assembly.Outcome{
		Job: &assembly.Job{
			Template: id,
			Name:     name,
			Seq:      make([]byte, length),
			Score:    uint64(10 * (id + 1)),
			Verdict:  conclave.Verdict{Expected: 2.5, QValue: 12.25, PValue: 4.6e-4, Pass: true},
		},
		Result: &assembly.Result{
			Consensus:      bytes.Repeat([]byte("A"), length),
			Matched:        matched,
			Aligned:        aligned,
			Depth:          uint64(3 * aligned),
			ConsensusDepth: uint64(2 * aligned),
			ScoreSum:       7,
		},
	}
}

func TestNewRow(t *testing.T) {
	r := NewRow(outcome(4, "t5", 200, 150, 180))
	assert.Equal(t, "t5", r.Template)
	assert.Equal(t, uint64(50), r.Score)
	assert.InDelta(t, 75, r.TemplateIdentity, 1e-9)
	assert.InDelta(t, 90, r.TemplateCoverage, 1e-9)
	assert.InDelta(t, 83.333, r.QueryIdentity, 1e-3)
	assert.InDelta(t, 111.111, r.QueryCoverage, 1e-3)
	assert.InDelta(t, 2.7, r.Depth, 1e-9)
	assert.True(t, r.Reportable(75))
	assert.False(t, r.Reportable(75.1))

	zero := NewRow(outcome(0, "z", 10, 0, 0))
	assert.False(t, zero.Reportable(0))
}

func TestWriteRowFormat(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, WriteRow(&b, NewRow(outcome(4, "t5", 200, 150, 180))))
	require.Equal(t,
		"t5          \t      50\t       2\t     200\t   75.00\t   90.00\t   83.33\t  111.11\t    2.70\t   12.25\t4.6e-04\n",
		b.String())
}

func TestWriteConsensusWraps(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, WriteConsensus(&b, "x", bytes.Repeat([]byte("C"), 130)))
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Equal(t, []int{2, 60, 60, 10}, []int{len(lines[0]), len(lines[1]), len(lines[2]), len(lines[3])})
}

func TestWriter(t *testing.T) {
	var res, fsa, ms bytes.Buffer
	in, done := StartWriter(Outputs{Results: &res, Consensus: &fsa, MapStat: &ms}, Options{
		Identity:       50,
		Expected:       []int32{0, 2, 3},
		ReadCounts:     []uint64{3, 0, 5, 1},
		FragmentCounts: []uint64{2, 0, 4, 1},
	}, 0)
	in <- outcome(3, "low", 100, 10, 100)
	in <- outcome(2, "b", 100, 90, 100)
	in <- outcome(0, "a", 100, 100, 100)
	close(in)
	require.NoError(t, <-done)

	lines := strings.Split(strings.TrimSpace(res.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, Header, lines[0])
	require.True(t, strings.HasPrefix(lines[1], "a "))
	require.True(t, strings.HasPrefix(lines[2], "b "))
	require.Equal(t, 2, strings.Count(fsa.String(), ">"))
	require.Equal(t, "a\t3\t2\t7\t100\t200\t300\nb\t5\t4\t7\t100\t200\t300\n", ms.String())
}

func TestWriterMissingOutcome(t *testing.T) {
	var res bytes.Buffer
	in, done := StartWriter(Outputs{Results: &res}, Options{Expected: []int32{0, 1}}, 1)
	in <- outcome(1, "b", 10, 10, 10)
	close(in)
	require.Error(t, <-done)
}

func TestMapStatHeader(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, WriteMapStatHeader(&b, MapStatMeta{
		Version:   "1.0.0",
		Databases: []string{"db.0", "db.1"},
		Fragments: 12,
		Date:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Command:   []string{"shardmap", "run"},
	}))
	require.Equal(t, "## method\tshardmap\n## version\t1.0.0\n## databases\tdb.0,db.1\n## fragmentCount\t12\n## date\t2024-03-01\n## command\tshardmap run\n"+MapStatHeader+"\n", b.String())
}
