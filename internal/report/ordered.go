package report

import (
	"github.com/google/btree"

	"shardmap/internal/assembly"
)

// Ordered releases outcomes in the order of a known ascending id list,
// holding early arrivals in a btree until the ids before them are in.
type Ordered struct {
	want []int32
	pos  int
	tree *btree.BTreeG[assembly.Outcome]
}

// NewOrdered expects exactly the ids in want, ascending.
func NewOrdered(want []int32) *Ordered {
	return &Ordered{
		want: want,
		tree: btree.NewG(16, func(a, b assembly.Outcome) bool {
			return a.Job.Template < b.Job.Template
		}),
	}
}

// Put adds one outcome and calls release for every outcome now in order.
func (o *Ordered) Put(oc assembly.Outcome, release func(assembly.Outcome) error) error {
	o.tree.ReplaceOrInsert(oc)
	for o.pos < len(o.want) {
		min, ok := o.tree.Min()
		if !ok || min.Job.Template != o.want[o.pos] {
			return nil
		}
		o.tree.DeleteMin()
		o.pos++
		if err := release(min); err != nil {
			return err
		}
	}
	return nil
}

// Pending is the number of held outcomes.
func (o *Ordered) Pending() int { return o.tree.Len() }

// Done reports whether every expected id was released.
func (o *Ordered) Done() bool { return o.pos == len(o.want) }
