// Package spool stages voted fragments on disk in bounded memory until the
// assembly stage reads them back per template.
package spool

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCeiling is the default number of fragments held in memory before a
// spool file is written.
const DefaultCeiling = 1_000_000

// ErrClosed reports use of a spooler after Close.
var ErrClosed = errors.New("spool: closed")

// Fragment is one read (or mate) assigned to a template. Seq holds 2-bit
// codes already oriented to the template strand.
type Fragment struct {
	Template   int32
	Seq        []byte
	Header     []byte
	Score      uint32
	Start      int32
	End        int32
	Candidates int32
	// Mate is set on the second read of a pair.
	Mate       bool
}

const fragHead = 8 * 4

const flagMate = 1

type node struct {
	frag Fragment
	next int32
}

// Spooler keeps per-template fragment lists in memory and writes them all to
// a new spool file whenever the held count reaches the ceiling.
type Spooler struct {
	dir     string
	ceiling int
	log     *zap.Logger

	heads []int32
	tails []int32
	nodes []node
	total int

	files  []*File
	closed bool
	buf    []byte
}

// New returns a spooler for the given number of templates. Spool files are
// created in dir (the OS temp dir when empty).
func New(dir string, templates, ceiling int, log *zap.Logger) *Spooler {
	if dir == "" {
		dir = os.TempDir()
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Spooler{
		dir:     dir,
		ceiling: ceiling,
		log:     log,
		heads:   make([]int32, templates),
		tails:   make([]int32, templates),
	}
	for i := range s.heads {
		s.heads[i], s.tails[i] = -1, -1
	}
	return s
}

// Add takes the fragments of one read (a read and its mate are added in
// one call so they land in the same file). Seq and Header are copied.
func (s *Spooler) Add(frags ...Fragment) error {
	if s.closed {
		return ErrClosed
	}
	for _, f := range frags {
		if f.Template < 0 || int(f.Template) >= len(s.heads) {
			return fmt.Errorf("spool: template %d out of range", f.Template)
		}
		f.Seq = bytes.Clone(f.Seq)
		f.Header = bytes.Clone(f.Header)
		s.nodes = append(s.nodes, node{frag: f, next: -1})
		n := int32(len(s.nodes) - 1)
		if t := s.tails[f.Template]; t >= 0 {
			s.nodes[t].next = n
		} else {
			s.heads[f.Template] = n
		}
		s.tails[f.Template] = n
	}
	s.total += len(frags)
	if len(s.nodes) >= s.ceiling {
		return s.flush()
	}
	return nil
}

// Held is the number of fragments in memory.
func (s *Spooler) Held() int { return len(s.nodes) }

// Total is the number of fragments added so far.
func (s *Spooler) Total() int { return s.total }

// Close writes any held fragments and returns the spool files in creation
// order.
func (s *Spooler) Close() (*Set, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if len(s.nodes) > 0 {
		if err := s.flush(); err != nil {
			return nil, err
		}
	}
	s.closed = true
	return &Set{Files: s.files}, nil
}

func (s *Spooler) flush() error {
	path := filepath.Join(s.dir, "shardmap-"+uuid.NewString()+".spool")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create spool file: %w", err)
	}
	w := bufio.NewWriterSize(f, 1<<16)
	sf := &File{Path: path}
	var off int64
	for t, head := range s.heads {
		if head < 0 {
			continue
		}
		g := group{Template: int32(t), Offset: off}
		for n := head; n >= 0; n = s.nodes[n].next {
			s.buf = appendFragment(s.buf[:0], &s.nodes[n].frag)
			if _, err := w.Write(s.buf); err != nil {
				f.Close()
				return fmt.Errorf("write spool file: %w", err)
			}
			off += int64(len(s.buf))
			g.Count++
		}
		sf.groups = append(sf.groups, g)
		sf.Fragments += int(g.Count)
		s.heads[t], s.tails[t] = -1, -1
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close spool file: %w", err)
	}
	s.log.Debug("spool file written", zap.String("path", path), zap.Int("fragments", sf.Fragments))
	s.files = append(s.files, sf)
	s.nodes = s.nodes[:0]
	return nil
}

func appendFragment(dst []byte, f *Fragment) []byte {
	le := binary.LittleEndian
	dst = le.AppendUint32(dst, uint32(f.Template))
	dst = le.AppendUint32(dst, uint32(len(f.Seq)))
	dst = le.AppendUint32(dst, uint32(len(f.Header)))
	dst = le.AppendUint32(dst, f.Score)
	dst = le.AppendUint32(dst, uint32(f.Start))
	dst = le.AppendUint32(dst, uint32(f.End))
	dst = le.AppendUint32(dst, uint32(f.Candidates))
	var flags uint32
	if f.Mate {
		flags |= flagMate
	}
	dst = le.AppendUint32(dst, flags)
	dst = append(dst, f.Seq...)
	return append(dst, f.Header...)
}
