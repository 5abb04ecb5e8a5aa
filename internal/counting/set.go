package counting

// KmerSet is a growable chained set. The bucket count is always a power of
// two and doubles when the number of keys reaches it.
type KmerSet struct {
	mask    uint64
	buckets []int32
	nodes   []node
}

// NewKmerSet returns a set with at least the requested number of buckets,
// rounded up to a power of two.
func NewKmerSet(buckets int) *KmerSet {
	size := 1
	for size < buckets {
		size <<= 1
	}
	s := &KmerSet{}
	s.reset(size)
	return s
}

func (s *KmerSet) reset(size int) {
	s.buckets = make([]int32, size)
	for i := range s.buckets {
		s.buckets[i] = nilNode
	}
	s.mask = uint64(size - 1)
}

// InsertIfAbsent adds key and reports whether it was new.
func (s *KmerSet) InsertIfAbsent(key uint64) bool {
	if len(s.nodes) == len(s.buckets) {
		s.grow()
	}
	idx := key & s.mask
	n := s.buckets[idx]
	if n == nilNode {
		s.buckets[idx] = s.alloc(key)
		return true
	}
	for {
		nd := &s.nodes[n]
		if nd.key == key {
			return false
		}
		if nd.next == nilNode {
			nn := s.alloc(key)
			s.nodes[n].next = nn
			return true
		}
		n = nd.next
	}
}

// Contains reports whether key is present.
func (s *KmerSet) Contains(key uint64) bool {
	for n := s.buckets[key&s.mask]; n != nilNode; n = s.nodes[n].next {
		if s.nodes[n].key == key {
			return true
		}
	}
	return false
}

// Len is the number of keys held.
func (s *KmerSet) Len() int { return len(s.nodes) }

// Buckets is the current bucket count.
func (s *KmerSet) Buckets() int { return len(s.buckets) }

// Clear drops every key without shrinking the bucket array.
func (s *KmerSet) Clear() {
	for i := range s.buckets {
		s.buckets[i] = nilNode
	}
	s.nodes = s.nodes[:0]
}

// grow drains all chains into one list (reversed), doubles the bucket
// array and pushes every node onto the head of its new bucket. Each node is
// touched exactly once.
func (s *KmerSet) grow() {
	list := int32(nilNode)
	for i := len(s.buckets) - 1; i >= 0; i-- {
		for n := s.buckets[i]; n != nilNode; {
			next := s.nodes[n].next
			s.nodes[n].next = list
			list = n
			n = next
		}
	}

	s.reset(len(s.buckets) << 1)

	for n := list; n != nilNode; {
		next := s.nodes[n].next
		idx := s.nodes[n].key & s.mask
		s.nodes[n].next = s.buckets[idx]
		s.buckets[idx] = n
		n = next
	}
}

func (s *KmerSet) alloc(key uint64) int32 {
	s.nodes = append(s.nodes, node{key: key, next: nilNode})
	return int32(len(s.nodes) - 1)
}
