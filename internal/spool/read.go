package spool

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// group locates one template's run of fragments in a spool file.
type group struct {
	Template int32
	Offset   int64
	Count    int32
}

// File is one written spool file. Fragments are stored grouped by template
// in ascending template order.
type File struct {
	Path      string
	Fragments int
	groups    []group
}

func (f *File) find(t int32) (group, bool) {
	i := sort.Search(len(f.groups), func(i int) bool { return f.groups[i].Template >= t })
	if i < len(f.groups) && f.groups[i].Template == t {
		return f.groups[i], true
	}
	return group{}, false
}

// Set is every spool file of one run, in creation order.
type Set struct {
	Files []*File
}

// Count returns the number of fragments spooled for template t.
func (s *Set) Count(t int32) int {
	n := 0
	for _, f := range s.Files {
		if g, ok := f.find(t); ok {
			n += int(g.Count)
		}
	}
	return n
}

// Remove deletes every spool file.
func (s *Set) Remove() error {
	var errs []error
	for _, f := range s.Files {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Cursor is one worker's private view of the spool files.
type Cursor struct {
	set  *Set
	fh   []*os.File
	frag Fragment
	head [fragHead]byte
}

// Open gives the caller private handles on every spool file.
func (s *Set) Open() (*Cursor, error) {
	c := &Cursor{set: s}
	for _, f := range s.Files {
		fh, err := os.Open(f.Path)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("open spool file: %w", err)
		}
		c.fh = append(c.fh, fh)
	}
	return c, nil
}

// Each calls fn for every fragment of template t, file by file. The
// fragment and its slices are reused between calls.
func (c *Cursor) Each(t int32, fn func(*Fragment) error) error {
	for i, f := range c.set.Files {
		g, ok := f.find(t)
		if !ok {
			continue
		}
		br := bufio.NewReader(io.NewSectionReader(c.fh[i], g.Offset, 1<<62))
		for n := int32(0); n < g.Count; n++ {
			if err := c.read(br); err != nil {
				return fmt.Errorf("%s: template %d: %w", f.Path, t, err)
			}
			if err := fn(&c.frag); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Cursor) read(r io.Reader) error {
	if _, err := io.ReadFull(r, c.head[:]); err != nil {
		return err
	}
	le := binary.LittleEndian
	b := c.head[:]
	f := &c.frag
	f.Template = int32(le.Uint32(b[0:]))
	seqLen := int(le.Uint32(b[4:]))
	hdrLen := int(le.Uint32(b[8:]))
	f.Score = le.Uint32(b[12:])
	f.Start = int32(le.Uint32(b[16:]))
	f.End = int32(le.Uint32(b[20:]))
	f.Candidates = int32(le.Uint32(b[24:]))
	f.Mate = le.Uint32(b[28:])&flagMate != 0
	f.Seq = grow(f.Seq, seqLen)
	if _, err := io.ReadFull(r, f.Seq); err != nil {
		return err
	}
	f.Header = grow(f.Header, hdrLen)
	_, err := io.ReadFull(r, f.Header)
	return err
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

// Close releases the cursor's file handles.
func (c *Cursor) Close() error {
	var errs []error
	for _, fh := range c.fh {
		if err := fh.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.fh = nil
	return errors.Join(errs...)
}
