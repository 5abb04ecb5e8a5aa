package assembly

import (
	"fmt"

	"shardmap/internal/shard"
)

// Loader walks templates in ascending global id, swapping the open shard
// files whenever the id enters the next shard. Every id must be visited, by
// Load or Skip, in order.
type Loader struct {
	cat   *shard.Catalog
	shard int
	files *shard.Files
	next  int32
}

// NewLoader returns a loader positioned at template 0.
func NewLoader(cat *shard.Catalog) *Loader {
	return &Loader{cat: cat, shard: -1}
}

func (l *Loader) enter(id int32) error {
	if id != l.next {
		return fmt.Errorf("assembly: template %d visited out of order (want %d)", id, l.next)
	}
	i := l.cat.ShardOf(id)
	if i < 0 {
		return fmt.Errorf("assembly: template %d outside catalog", id)
	}
	if i != l.shard {
		if l.files != nil {
			l.files.Close()
			l.files = nil
		}
		f, err := shard.OpenFiles(l.cat.Shards[i].Prefix)
		if err != nil {
			return err
		}
		l.files, l.shard = f, i
	}
	l.next++
	return nil
}

// Load reads the name and sequence codes of template id.
func (l *Loader) Load(id int32) (string, []byte, error) {
	if err := l.enter(id); err != nil {
		return "", nil, err
	}
	return l.files.Next(l.cat.Length(id), nil)
}

// Skip moves past template id without reading its sequence.
func (l *Loader) Skip(id int32) (string, error) {
	if err := l.enter(id); err != nil {
		return "", err
	}
	return l.files.Skip(l.cat.Length(id))
}

// Close releases the open shard files.
func (l *Loader) Close() error {
	if l.files == nil {
		return nil
	}
	err := l.files.Close()
	l.files = nil
	return err
}
