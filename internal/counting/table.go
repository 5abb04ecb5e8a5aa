// Package counting holds the chained hash tables used to tally or
// deduplicate 64-bit k-mer keys.
//
// Two variants exist and are not meant to be mixed on one table:
// CountTable has a fixed bucket count addressed by modulo and keeps a count
// per key; KmerSet has a power-of-two bucket count addressed by mask and
// doubles whenever it holds as many keys as it has buckets.
//
// Chains are index-linked nodes in one arena slice. A bucket or next field of
// -1 means "none".
package counting

const nilNode = -1

type node struct {
	key   uint64
	value uint32
	next  int32
}

// CountTable is a fixed-size chained multiset. Size it for the expected key
// cardinality; it never grows.
type CountTable struct {
	buckets []int32
	nodes   []node
}

// NewCountTable returns a table with the given number of buckets (min 1).
func NewCountTable(buckets int) *CountTable {
	if buckets < 1 {
		buckets = 1
	}
	t := &CountTable{buckets: make([]int32, buckets)}
	for i := range t.buckets {
		t.buckets[i] = nilNode
	}
	return t
}

// CountIndex increments the count stored for key, inserting it with count 1
// when absent.
func (t *CountTable) CountIndex(key uint64) {
	idx := key % uint64(len(t.buckets))
	n := t.buckets[idx]
	if n == nilNode {
		t.buckets[idx] = t.alloc(key, 1)
		return
	}
	for {
		nd := &t.nodes[n]
		if nd.key == key {
			nd.value++
			return
		}
		if nd.next == nilNode {
			nn := t.alloc(key, 1)
			t.nodes[n].next = nn
			return
		}
		n = nd.next
	}
}

// Count returns the stored count for key (0 when absent).
func (t *CountTable) Count(key uint64) uint32 {
	for n := t.buckets[key%uint64(len(t.buckets))]; n != nilNode; n = t.nodes[n].next {
		if t.nodes[n].key == key {
			return t.nodes[n].value
		}
	}
	return 0
}

// Len is the number of distinct keys.
func (t *CountTable) Len() int { return len(t.nodes) }

// Buckets is the fixed bucket count.
func (t *CountTable) Buckets() int { return len(t.buckets) }

// Each calls fn for every key in bucket order until fn returns false.
func (t *CountTable) Each(fn func(key uint64, count uint32) bool) {
	for _, head := range t.buckets {
		for n := head; n != nilNode; n = t.nodes[n].next {
			if !fn(t.nodes[n].key, t.nodes[n].value) {
				return
			}
		}
	}
}

// Clear drops every key; the bucket array keeps its size.
func (t *CountTable) Clear() {
	for i := range t.buckets {
		t.buckets[i] = nilNode
	}
	t.nodes = t.nodes[:0]
}

func (t *CountTable) alloc(key uint64, value uint32) int32 {
	t.nodes = append(t.nodes, node{key: key, value: value, next: nilNode})
	return int32(len(t.nodes) - 1)
}
