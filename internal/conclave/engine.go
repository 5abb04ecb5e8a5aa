package conclave

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shardmap/internal/resolver"
	"shardmap/internal/seq"
	"shardmap/internal/spool"
)

// Phase is the engine's position in its pass sequence.
type Phase int

const (
	Scanning Phase = iota
	Filtering
	Assigning
	Done
)

func (p Phase) String() string {
	switch p {
	case Scanning:
		return "scanning"
	case Filtering:
		return "filtering"
	case Assigning:
		return "assigning"
	}
	return "done"
}

// Policy selects how multi-template reads are resolved.
type Policy int

const (
	// Normalized assigns each read in one pass by normalized alignment score.
	Normalized Policy = 1
	// Significance filters templates by significance first and breaks ties
	// with a weighted draw over unique scores.
	Significance Policy = 2
)

// ErrPhase reports an operation issued in the wrong phase.
var ErrPhase = errors.New("conclave: wrong phase")

// Sink receives the fragments of each assigned read; a read and its mate
// arrive in one call.
type Sink interface {
	Add(frags ...spool.Fragment) error
}

// Config parameterizes an Engine.
type Config struct {
	Policy    Policy
	K         int
	Lengths   []int32
	Total     int64
	Threshold Threshold
	// Dir holds the staging log; the OS temp dir when empty.
	Dir string
	Log *zap.Logger
}

// Stats summarizes one engine run.
type Stats struct {
	Staged   int
	Assigned int
	Drawn    int
	Accepted int
	Rejected int
}

// Engine is the voting state machine: reads are staged while Scanning, then
// Run filters (Significance only) and assigns every staged read.
type Engine struct {
	cfg    Config
	log    *zap.Logger
	phase  Phase
	scores *Scores
	sel    Selector
	stage  *StagingLog
	// accepted is nil under Normalized.
	accepted []bool
	reads    []uint64
	frags    []uint64
	stats    Stats

	staged Staged
}

// NewEngine creates an engine and its staging log.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Policy != Normalized && cfg.Policy != Significance {
		return nil, fmt.Errorf("conclave: unknown policy %d", cfg.Policy)
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	st, err := NewStagingLog(cfg.Dir)
	if err != nil {
		return nil, err
	}
	n := len(cfg.Lengths)
	scores := NewScores(n)
	return &Engine{
		cfg:    cfg,
		log:    cfg.Log,
		scores: scores,
		sel:    Selector{Scores: scores, Lengths: cfg.Lengths, K: cfg.K},
		stage:  st,
		reads:  make([]uint64, n),
		frags:  make([]uint64, n),
	}, nil
}

// Phase reports the current phase.
func (e *Engine) Phase() Phase { return e.phase }

// Scores exposes the score tables. Weighted holds final vote totals once
// the engine is Done.
func (e *Engine) Scores() *Scores { return e.scores }

// Accepted reports which templates passed the filter (nil under Normalized).
func (e *Engine) Accepted() []bool { return e.accepted }

// ReadCounts is the number of reads (mates counted separately) assigned to
// each template.
func (e *Engine) ReadCounts() []uint64 { return e.reads }

// FragmentCounts is the number of assigned reads per template, a pair
// counting once.
func (e *Engine) FragmentCounts() []uint64 { return e.frags }

// Stats returns the run summary.
func (e *Engine) Stats() Stats { return e.stats }

// Stage credits a resolved read's candidates and records it for the
// assignment passes.
func (e *Engine) Stage(rd *resolver.Read) error {
	if e.phase != Scanning {
		return fmt.Errorf("%w: stage while %s", ErrPhase, e.phase)
	}
	if len(rd.Candidates) == 0 {
		return nil
	}
	s := &e.staged
	s.Seq = rd.Seq
	s.Header = rd.Header
	s.Score = uint32(rd.Score)
	s.Negative = rd.Negative
	s.Candidates = rd.Candidates
	s.Mate = rd.Mate
	s.Starts = s.Starts[:0]
	s.Ends = s.Ends[:0]
	for _, c := range rd.Candidates {
		s.Starts = append(s.Starts, 0)
		s.Ends = append(s.Ends, e.cfg.Lengths[c.Template])
	}
	e.scores.Credit(rd.Candidates, uint64(rd.Score))
	if err := e.stage.Append(s); err != nil {
		return err
	}
	e.stats.Staged++
	return nil
}

// Run finishes scanning and assigns every staged read, handing fragments
// to sink.
func (e *Engine) Run(sink Sink) error {
	if e.phase != Scanning {
		return fmt.Errorf("%w: run while %s", ErrPhase, e.phase)
	}
	if err := e.stage.Seal(); err != nil {
		return err
	}
	start := time.Now()

	if e.cfg.Policy == Significance {
		e.phase = Filtering
		if err := e.filter(); err != nil {
			return err
		}
	}

	e.phase = Assigning
	e.scores.ResetWeighted()
	var err error
	if e.cfg.Policy == Significance {
		err = e.stage.Scan(func(s *Staged) error { return e.assign(s, e.drawOrBest, sink) })
	} else {
		err = e.stage.Scan(func(s *Staged) error { return e.assign(s, e.best, sink) })
	}
	if err != nil {
		return err
	}
	e.phase = Done
	e.log.Info("reads assigned",
		zap.Int("reads", e.stats.Assigned),
		zap.Int("drawn", e.stats.Drawn),
		zap.Duration("took", time.Since(start)))
	return nil
}

// filter runs the provisional pass, the significance test and the unique
// score rebuild.
func (e *Engine) filter() error {
	err := e.stage.Scan(func(s *Staged) error {
		i := e.best(s)
		e.scores.Weighted[s.Candidates[i].Template] += uint64(s.Score)
		return nil
	})
	if err != nil {
		return err
	}

	hits := e.scores.Hits()
	e.accepted = make([]bool, len(e.cfg.Lengths))
	for t, w := range e.scores.Weighted {
		if w == 0 {
			continue
		}
		v := Test(w, e.cfg.Lengths[t], hits, e.cfg.Total, e.cfg.Threshold)
		if v.Pass {
			e.accepted[t] = true
			e.stats.Accepted++
		} else {
			e.stats.Rejected++
			e.log.Debug("template rejected",
				zap.Int("template", t),
				zap.Uint64("score", w),
				zap.Float64("expected", v.Expected),
				zap.Float64("p", v.PValue))
		}
	}
	e.log.Info("templates filtered",
		zap.Int("accepted", e.stats.Accepted),
		zap.Int("rejected", e.stats.Rejected))

	e.scores.ResetUnique()
	return e.stage.Scan(func(s *Staged) error {
		only := int32(-1)
		for _, c := range s.Candidates {
			if !e.accepted[c.Template] {
				continue
			}
			if only >= 0 {
				return nil
			}
			only = c.Template
		}
		if only >= 0 {
			e.scores.Unique[only] += uint64(s.Score)
		}
		return nil
	})
}

func (e *Engine) best(s *Staged) int {
	if len(s.Candidates) == 1 {
		return 0
	}
	return e.sel.Best(s.Candidates, nil)
}

func (e *Engine) drawOrBest(s *Staged) int {
	if len(s.Candidates) == 1 {
		return 0
	}
	if i := Draw(s.Seq, s.Candidates, e.scores.Unique); i >= 0 {
		e.stats.Drawn++
		return i
	}
	if i := e.sel.Best(s.Candidates, e.accepted); i >= 0 {
		return i
	}
	return e.sel.Best(s.Candidates, nil)
}

func (e *Engine) assign(s *Staged, pick func(*Staged) int, sink Sink) error {
	i := pick(s)
	c := s.Candidates[i]
	if c.Reverse {
		seq.RevCompCodes(s.Seq)
	}
	score := uint64(s.Score)
	e.scores.Weighted[c.Template] += score
	e.frags[c.Template]++
	e.reads[c.Template]++
	e.stats.Assigned++

	f := spool.Fragment{
		Template:   c.Template,
		Seq:        s.Seq,
		Header:     s.Header,
		Score:      s.Score,
		Start:      s.Starts[i],
		End:        s.Ends[i],
		Candidates: int32(len(s.Candidates)),
	}
	if s.Negative {
		f.Score = 0
	}
	if s.Mate == nil {
		return sink.Add(f)
	}
	e.reads[c.Template]++
	m := f
	m.Seq = s.Mate.Seq
	m.Header = s.Mate.Header
	m.Mate = true
	return sink.Add(f, m)
}

// Close removes the staging log.
func (e *Engine) Close() error { return e.stage.Remove() }
