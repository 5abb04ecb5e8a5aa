// Package assembly schedules per-template assembly of spooled fragments
// across a worker pool and provides a default ungapped pileup assembler.
package assembly

import (
	"context"

	"shardmap/internal/conclave"
	"shardmap/internal/spool"
)

// Job is one accepted template handed to an assembler.
type Job struct {
	Template int32
	Name     string
	// Seq holds the template's 2-bit codes.
	Seq     []byte
	Score   uint64
	Verdict conclave.Verdict
}

// Result is what an assembler reports for one template.
type Result struct {
	// Consensus has one base per template position: '-' where no fragment
	// covers it, 'n' where only ambiguous bases do.
	Consensus []byte
	// Matched counts consensus positions equal to the template base.
	Matched int
	// Aligned counts template positions covered by at least one fragment.
	Aligned int
	// Depth is the number of fragment bases piled onto the template.
	Depth uint64
	// ConsensusDepth is the summed support of the consensus base over all
	// positions.
	ConsensusDepth uint64
	// ScoreSum is the summed fragment score.
	ScoreSum uint64
	// Fragments counts fragments placed on the template.
	Fragments int
	// Unplaced counts fragments that could not be anchored.
	Unplaced int
}

// Fragments yields the spooled fragments of one template.
type Fragments interface {
	Each(template int32, fn func(*spool.Fragment) error) error
}

// Assembler builds a template's consensus from its fragments. One value is
// shared by all workers and must be safe for concurrent use.
type Assembler interface {
	Assemble(ctx context.Context, job *Job, frags Fragments) (*Result, error)
}

// Outcome pairs a job with its assembly.
type Outcome struct {
	Job    *Job
	Result *Result
}
