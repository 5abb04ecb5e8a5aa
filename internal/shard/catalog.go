// Package shard reads the reference metadata of a split database and opens
// the per-shard match streams.
//
// A shard with prefix P consists of:
//
//	P.length.b  int32 n, then n int32 template lengths (little-endian)
//	P.name      one template name per line
//	P.seq.b     per template, (length>>5)+1 uint64 words of 2-bit bases
//
// Template ids are global: shard i's local id j becomes j + bias(i), where
// bias(i) is the number of templates in shards 0..i-1.
package shard

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// File suffixes of the metadata files.
const (
	LengthSuffix = ".length.b"
	NameSuffix   = ".name"
	SeqSuffix    = ".seq.b"
)

// ErrNoTemplates reports a shard whose length file declares no templates.
var ErrNoTemplates = errors.New("shard: no templates")

// Shard is one split database.
type Shard struct {
	Prefix string
	Bias   int32
	Count  int32
}

// Contains reports whether the global id belongs to s.
func (s Shard) Contains(id int32) bool { return id >= s.Bias && id < s.Bias+s.Count }

// Catalog is the combined template table across all shards.
type Catalog struct {
	Shards []Shard
	// Lengths is indexed by global template id.
	Lengths []int32
	// Total is the summed length of every template.
	Total int64
}

// Load reads the length files of every prefix, in order.
func Load(prefixes []string) (*Catalog, error) {
	c := &Catalog{}
	for _, p := range prefixes {
		lens, err := readLengthFile(p + LengthSuffix)
		if err != nil {
			return nil, err
		}
		c.Add(p, lens)
	}
	return c, nil
}

// Add appends a shard with the given template lengths.
func (c *Catalog) Add(prefix string, lengths []int32) {
	c.Shards = append(c.Shards, Shard{
		Prefix: prefix,
		Bias:   int32(len(c.Lengths)),
		Count:  int32(len(lengths)),
	})
	c.Lengths = append(c.Lengths, lengths...)
	for _, l := range lengths {
		c.Total += int64(l)
	}
}

// Len is the number of templates across all shards.
func (c *Catalog) Len() int { return len(c.Lengths) }

// Length returns the length of the global template id.
func (c *Catalog) Length(id int32) int32 { return c.Lengths[id] }

// ShardOf returns the index of the shard owning the global id, or -1.
func (c *Catalog) ShardOf(id int32) int {
	i := sort.Search(len(c.Shards), func(i int) bool {
		return c.Shards[i].Bias+c.Shards[i].Count > id
	})
	if i == len(c.Shards) || !c.Shards[i].Contains(id) {
		return -1
	}
	return i
}

func readLengthFile(path string) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lengths: %w", err)
	}
	defer f.Close()
	lens, err := ReadLengths(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lens, nil
}

// ReadLengths decodes a length file.
func ReadLengths(r io.Reader) ([]int32, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read template count: %w", err)
	}
	if n <= 0 {
		return nil, ErrNoTemplates
	}
	lens := make([]int32, n)
	if err := binary.Read(r, binary.LittleEndian, lens); err != nil {
		return nil, fmt.Errorf("read template lengths: %w", err)
	}
	return lens, nil
}

// WriteLengths encodes a length file.
func WriteLengths(w io.Writer, lengths []int32) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(lengths))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, lengths)
}
