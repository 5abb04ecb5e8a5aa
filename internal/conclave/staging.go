package conclave

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"shardmap/internal/resolver"
)

const stagedHead = 5 * 4

const (
	flagNegative = 1 << iota
	flagMate
)

// ErrStagingOpen reports a scan of a staging log that is still being written.
var ErrStagingOpen = errors.New("conclave: staging log not sealed")

// Staged is one read as recorded in the staging log.
type Staged struct {
	Seq        []byte
	Header     []byte
	Score      uint32
	Negative   bool
	Candidates []resolver.Candidate
	Starts     []int32
	Ends       []int32
	Mate       *resolver.Mate

	mate resolver.Mate
}

// StagingLog is a temporary file holding every voted read so the engine can
// scan them once per pass.
//
// Record: seqLen, headerLen, candidates, score, flags, then seq, header,
// starts, ends and candidate ids (id+1, negated for reverse). A mate adds
// seqLen, headerLen, seq and header. A zero head ends the log.
type StagingLog struct {
	f      *os.File
	w      *bufio.Writer
	sealed bool
	n      int
	buf    []byte
}

// NewStagingLog creates the log file in dir (the OS temp dir when empty).
func NewStagingLog(dir string) (*StagingLog, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.Create(filepath.Join(dir, "shardmap-"+uuid.NewString()+".stage"))
	if err != nil {
		return nil, fmt.Errorf("create staging log: %w", err)
	}
	return &StagingLog{f: f, w: bufio.NewWriterSize(f, 1<<16)}, nil
}

// Len is the number of reads appended.
func (l *StagingLog) Len() int { return l.n }

// Append records one read.
func (l *StagingLog) Append(s *Staged) error {
	if l.sealed {
		return fmt.Errorf("conclave: append to sealed staging log")
	}
	le := binary.LittleEndian
	b := l.buf[:0]
	var flags uint32
	if s.Negative {
		flags |= flagNegative
	}
	if s.Mate != nil {
		flags |= flagMate
	}
	b = le.AppendUint32(b, uint32(len(s.Seq)))
	b = le.AppendUint32(b, uint32(len(s.Header)))
	b = le.AppendUint32(b, uint32(len(s.Candidates)))
	b = le.AppendUint32(b, s.Score)
	b = le.AppendUint32(b, flags)
	b = append(b, s.Seq...)
	b = append(b, s.Header...)
	for _, v := range s.Starts {
		b = le.AppendUint32(b, uint32(v))
	}
	for _, v := range s.Ends {
		b = le.AppendUint32(b, uint32(v))
	}
	for _, c := range s.Candidates {
		id := c.Template + 1
		if c.Reverse {
			id = -id
		}
		b = le.AppendUint32(b, uint32(id))
	}
	if s.Mate != nil {
		b = le.AppendUint32(b, uint32(len(s.Mate.Seq)))
		b = le.AppendUint32(b, uint32(len(s.Mate.Header)))
		b = append(b, s.Mate.Seq...)
		b = append(b, s.Mate.Header...)
	}
	l.buf = b
	if _, err := l.w.Write(b); err != nil {
		return fmt.Errorf("write staging log: %w", err)
	}
	l.n++
	return nil
}

// Seal terminates the log. Scans are allowed only after Seal.
func (l *StagingLog) Seal() error {
	if l.sealed {
		return nil
	}
	var zero [stagedHead]byte
	if _, err := l.w.Write(zero[:]); err != nil {
		return fmt.Errorf("write staging log: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("write staging log: %w", err)
	}
	l.sealed = true
	return nil
}

// Scan rewinds the log and calls fn for every read in order. The Staged
// value and its slices are reused between calls.
func (l *StagingLog) Scan(fn func(*Staged) error) error {
	if !l.sealed {
		return ErrStagingOpen
	}
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind staging log: %w", err)
	}
	r := bufio.NewReaderSize(l.f, 1<<16)
	var s Staged
	for {
		more, err := readStaged(r, &s)
		if err != nil {
			return fmt.Errorf("read staging log: %w", err)
		}
		if !more {
			return nil
		}
		if err := fn(&s); err != nil {
			return err
		}
	}
}

// Remove closes and deletes the log file.
func (l *StagingLog) Remove() error {
	l.f.Close()
	return os.Remove(l.f.Name())
}

func readStaged(r io.Reader, s *Staged) (bool, error) {
	var h [stagedHead]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return false, err
	}
	le := binary.LittleEndian
	seqLen := int(le.Uint32(h[0:]))
	hdrLen := int(le.Uint32(h[4:]))
	nc := int(le.Uint32(h[8:]))
	s.Score = le.Uint32(h[12:])
	flags := le.Uint32(h[16:])
	if seqLen == 0 {
		return false, nil
	}
	s.Negative = flags&flagNegative != 0
	hasMate := flags&flagMate != 0

	var err error
	if s.Seq, err = readBytes(r, s.Seq, seqLen); err != nil {
		return false, err
	}
	if s.Header, err = readBytes(r, s.Header, hdrLen); err != nil {
		return false, err
	}
	ints, err := readInt32s(r, 3*nc)
	if err != nil {
		return false, err
	}
	s.Starts = append(s.Starts[:0], ints[:nc]...)
	s.Ends = append(s.Ends[:0], ints[nc:2*nc]...)
	s.Candidates = s.Candidates[:0]
	for _, id := range ints[2*nc:] {
		if id < 0 {
			s.Candidates = append(s.Candidates, resolver.Candidate{Template: -id - 1, Reverse: true})
		} else {
			s.Candidates = append(s.Candidates, resolver.Candidate{Template: id - 1})
		}
	}

	s.Mate = nil
	if hasMate {
		var mh [8]byte
		if _, err := io.ReadFull(r, mh[:]); err != nil {
			return false, err
		}
		if s.mate.Seq, err = readBytes(r, s.mate.Seq, int(le.Uint32(mh[0:]))); err != nil {
			return false, err
		}
		if s.mate.Header, err = readBytes(r, s.mate.Header, int(le.Uint32(mh[4:]))); err != nil {
			return false, err
		}
		s.Mate = &s.mate
	}
	return true, nil
}

func readBytes(r io.Reader, b []byte, n int) ([]byte, error) {
	if cap(b) < n {
		b = make([]byte, n)
	}
	b = b[:n]
	_, err := io.ReadFull(r, b)
	return b, err
}

func readInt32s(r io.Reader, n int) ([]int32, error) {
	raw := make([]byte, 4*n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}
