// Package resolver merges the ordered match streams of every shard into one
// stream of reads, each carrying the union of its best-scoring shards'
// candidate templates.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"shardmap/internal/anker"
	"shardmap/internal/seq"
	"shardmap/internal/shard"
)

// ErrMissingMate reports a paired primary record not followed by its mate.
var ErrMissingMate = errors.New("resolver: paired record without mate")

// Candidate is one template a read may belong to. Template is the global id;
// Reverse marks a match on the reverse complement.
type Candidate struct {
	Template int32
	Reverse  bool
}

// Mate is the second read of a pair.
type Mate struct {
	Seq    []byte
	Header []byte
}

// Read is one resolved read. Seq holds 2-bit codes (seq.Ambiguous for N).
type Read struct {
	Ordinal    uint32
	Seq        []byte
	Header     []byte
	Mate       *Mate
	Score      int32
	Negative   bool
	Candidates []Candidate
}

// Stats counts what the resolver consumed.
type Stats struct {
	Reads   int
	Short   int
	Paired  int
	Dropped int
}

type cursor struct {
	r    *anker.Reader
	c    io.Closer
	head anker.Head
	bias int32
}

// Resolver walks all shard streams in lockstep by ordinal.
type Resolver struct {
	cur   []*cursor
	k     int
	stats Stats
	stop  context.CancelCauseFunc

	rec  anker.Record
	mate anker.Record
}

// New builds a resolver over one stream per shard. biases gives each
// shard's global template id offset; k is the minimum read length voted on.
func New(streams []io.Reader, biases []int32, k int) (*Resolver, error) {
	if len(streams) != len(biases) {
		return nil, fmt.Errorf("resolver: %d streams for %d shards", len(streams), len(biases))
	}
	r := &Resolver{k: k}
	for i, s := range streams {
		c := &cursor{r: anker.NewReader(s), bias: biases[i]}
		if cl, ok := s.(io.Closer); ok {
			c.c = cl
		}
		if err := c.advance(); err != nil {
			return nil, fmt.Errorf("shard %d: %w", i, err)
		}
		r.cur = append(r.cur, c)
	}
	return r, nil
}

// Open opens every shard's stream from src concurrently and builds a
// resolver over them. The first shard that fails to open cancels the others.
// Open streams stay bound to ctx until Close.
func Open(ctx context.Context, src shard.StreamSource, cat *shard.Catalog, k int) (*Resolver, error) {
	ctx, stop := context.WithCancelCause(ctx)
	streams := make([]io.ReadCloser, len(cat.Shards))
	closeAll := func() {
		for _, s := range streams {
			if s != nil {
				s.Close()
			}
		}
	}
	var g errgroup.Group
	for i := range cat.Shards {
		i := i
		g.Go(func() error {
			rc, err := src.Open(ctx, i)
			if err != nil {
				err = fmt.Errorf("shard %d: %w", i, err)
				stop(err)
				return err
			}
			streams[i] = rc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll()
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		}
		stop(nil)
		return nil, err
	}

	readers := make([]io.Reader, len(streams))
	biases := make([]int32, len(streams))
	for i, s := range streams {
		readers[i] = s
		biases[i] = cat.Shards[i].Bias
	}
	r, err := New(readers, biases, k)
	if err != nil {
		closeAll()
		stop(nil)
		return nil, err
	}
	r.stop = stop
	return r, nil
}

func (c *cursor) advance() error {
	h, err := c.r.ReadHead()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("stream ended without end record: %w", anker.ErrShortRecord)
		}
		return err
	}
	c.head = h
	return nil
}

// Last is the final ordinal named by the shards' end records, or -1 until
// every stream has reached its end record.
func (r *Resolver) Last() int32 {
	last := int32(-1)
	for _, c := range r.cur {
		if !c.head.End() {
			return -1
		}
		if l := c.head.Last(); l > last {
			last = l
		}
	}
	return last
}

// Stats returns counters for everything consumed so far.
func (r *Resolver) Stats() Stats { return r.stats }

// Close closes every stream that is closable.
func (r *Resolver) Close() error {
	if r.stop != nil {
		r.stop(nil)
	}
	var first error
	for _, c := range r.cur {
		if c.c != nil {
			if err := c.c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Next resolves the next read into rd, reusing its buffers. It returns
// io.EOF once every shard has reached its end record. Reads shorter than k
// are consumed but not returned.
func (r *Resolver) Next(rd *Read) error {
	for {
		target := anker.EndOrdinal
		for _, c := range r.cur {
			if c.head.Ordinal < target {
				target = c.head.Ordinal
			}
		}
		if target == anker.EndOrdinal {
			return io.EOF
		}

		best := int32(-1)
		for _, c := range r.cur {
			if c.head.Ordinal == target {
				if s := abs(c.head.Score); s > best {
					best = s
				}
			}
		}

		ok, err := r.resolve(rd, target, best)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

func (r *Resolver) resolve(rd *Read, target uint32, best int32) (bool, error) {
	rd.Ordinal = target
	rd.Score = best
	rd.Seq = rd.Seq[:0]
	rd.Header = rd.Header[:0]
	rd.Candidates = rd.Candidates[:0]
	rd.Mate = nil

	anyNeg, anyPos := false, false
	have := false
	short := false
	paired := false
	var mateSeq, mateHeader []byte

	for i, c := range r.cur {
		if c.head.Ordinal != target {
			continue
		}
		if abs(c.head.Score) != best || short {
			if err := r.discard(c); err != nil {
				return false, fmt.Errorf("shard %d: %w", i, err)
			}
			continue
		}

		if err := c.r.ReadBody(c.head, &r.rec); err != nil {
			return false, fmt.Errorf("shard %d: %w", i, err)
		}
		templates := r.rec.Templates
		if len(templates) == 0 {
			if err := r.readMate(c); err != nil {
				return false, fmt.Errorf("shard %d: %w", i, err)
			}
			templates = r.mate.Templates
			paired = true
		}
		if !have {
			rd.Seq = seq.Unpack(rd.Seq, r.rec.Words, int(r.rec.SeqLen), r.rec.Ambiguous)
			rd.Header = append(rd.Header, r.rec.Header...)
			if paired {
				mateSeq = seq.Unpack(nil, r.mate.Words, int(r.mate.SeqLen), r.mate.Ambiguous)
				mateHeader = append([]byte(nil), r.mate.Header...)
			}
			have = true
			if len(rd.Seq) < r.k {
				short = true
			}
		}
		if r.rec.Score < 0 {
			anyNeg = true
		} else {
			anyPos = true
		}
		for _, t := range templates {
			rd.Candidates = append(rd.Candidates, candidate(t, c.bias))
		}
		if err := c.advance(); err != nil {
			return false, fmt.Errorf("shard %d: %w", i, err)
		}
	}

	r.stats.Reads++
	if short {
		r.stats.Short++
		return false, nil
	}
	if paired {
		r.stats.Paired++
		if len(mateSeq) >= r.k {
			rd.Mate = &Mate{Seq: mateSeq, Header: mateHeader}
		} else {
			r.stats.Dropped++
		}
	}
	rd.Negative = anyNeg && !anyPos
	return true, nil
}

// discard consumes the current record of c, including a trailing mate.
func (r *Resolver) discard(c *cursor) error {
	if err := c.r.SkipBody(c.head); err != nil {
		return err
	}
	if c.head.Templates == 0 {
		h, err := c.r.ReadHead()
		if err != nil {
			return err
		}
		if h.Ordinal != c.head.Ordinal {
			return fmt.Errorf("%w: ordinal %d", ErrMissingMate, c.head.Ordinal)
		}
		if err := c.r.SkipBody(h); err != nil {
			return err
		}
	}
	return c.advance()
}

func (r *Resolver) readMate(c *cursor) error {
	h, err := c.r.ReadHead()
	if err != nil {
		return err
	}
	if h.Ordinal != c.head.Ordinal || h.Templates == 0 {
		return fmt.Errorf("%w: ordinal %d", ErrMissingMate, c.head.Ordinal)
	}
	return c.r.ReadBody(h, &r.mate)
}

// candidate converts a signed 1-based local id to a global candidate.
func candidate(t, bias int32) Candidate {
	if t < 0 {
		return Candidate{Template: -t - 1 + bias, Reverse: true}
	}
	return Candidate{Template: t - 1 + bias}
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
