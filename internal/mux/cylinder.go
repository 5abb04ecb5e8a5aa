// internal/mux/cylinder.go
package mux

// cylinder is one producer's FIFO of pending items, kept as a ring over a
// slice that doubles when full.
type cylinder struct {
	buf  []Item
	head int
	n    int
}

func (c *cylinder) empty() bool { return c.n == 0 }

func (c *cylinder) push(it Item) {
	if c.n == len(c.buf) {
		c.grow()
	}
	c.buf[(c.head+c.n)%len(c.buf)] = it
	c.n++
}

// front is the oldest item. Producers feed a slot in increasing ordinal
// order, so the front is also the slot's smallest pending ordinal.
func (c *cylinder) front() Item { return c.buf[c.head] }

func (c *cylinder) pop() Item {
	it := c.buf[c.head]
	c.buf[c.head] = Item{}
	c.head = (c.head + 1) % len(c.buf)
	c.n--
	return it
}

func (c *cylinder) grow() {
	size := len(c.buf) * 2
	if size == 0 {
		size = 4
	}
	nb := make([]Item, size)
	for i := 0; i < c.n; i++ {
		nb[i] = c.buf[(c.head+i)%len(c.buf)]
	}
	c.buf = nb
	c.head = 0
}
