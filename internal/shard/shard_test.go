package shard

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"shardmap/internal/seq"
)

func TestCatalogBias(t *testing.T) {
	c := &Catalog{}
	c.Add("a", []int32{100, 200})
	c.Add("b", []int32{50})
	c.Add("c", []int32{10, 20, 30})

	assert.Equal(t, 6, c.Len())
	assert.Equal(t, int64(410), c.Total)
	assert.Equal(t, []int32{0, 2, 3}, []int32{c.Shards[0].Bias, c.Shards[1].Bias, c.Shards[2].Bias})
	for id, want := range []int{0, 0, 1, 2, 2, 2} {
		assert.Equal(t, want, c.ShardOf(int32(id)), "id %d", id)
	}
	assert.Equal(t, -1, c.ShardOf(6))
	assert.Equal(t, int32(50), c.Length(2))
}

func TestWriteLoadFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "db.0")
	b := filepath.Join(dir, "db.1")
	long := make([]byte, 70)
	for i := range long {
		long[i] = "ACGT"[i%4]
	}
	require.NoError(t, Write(a, []Template{{"t0", []byte("ACGTACGT")}, {"t1", long}}))
	require.NoError(t, Write(b, []Template{{"t2", []byte("GGGCCC")}}))

	c, err := Load([]string{a, b})
	require.NoError(t, err)
	require.Equal(t, []int32{8, 70, 6}, c.Lengths)
	require.Equal(t, int32(2), c.Shards[1].Bias)

	f, err := OpenFiles(a)
	require.NoError(t, err)
	defer f.Close()
	name, err := f.Skip(8)
	require.NoError(t, err)
	require.Equal(t, "t0", name)
	name, codes, err := f.Next(70, nil)
	require.NoError(t, err)
	require.Equal(t, "t1", name)
	require.Equal(t, string(long), string(seq.Decode(codes)))

	_, err = f.Skip(1)
	require.Error(t, err)
}

func TestReadLengthsEmpty(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x")
	require.NoError(t, os.WriteFile(p+LengthSuffix, []byte{0, 0, 0, 0}, 0o644))
	_, err := Load([]string{p})
	require.ErrorIs(t, err, ErrNoTemplates)
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.toml")
	require.NoError(t, WriteManifest(path, &Manifest{KmerSize: 21, Shards: []string{"db.0", "/abs/db.1"}}))

	m, err := ReadManifest(path)
	require.NoError(t, err)
	require.Equal(t, 21, m.KmerSize)
	require.Equal(t, []string{filepath.Join(dir, "db.0"), "/abs/db.1"}, m.Shards)
}

func TestFileSourceWaitsForStream(t *testing.T) {
	dir := t.TempDir()
	src := &FileSource{Prefix: filepath.Join(dir, "out"), Poll: time.Millisecond, Follow: true, Log: zaptest.NewLogger(t)}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		f, err := os.Create(src.Path(1))
		if err != nil {
			return
		}
		f.WriteString("abc")
		f.Sync()
		time.Sleep(20 * time.Millisecond)
		f.WriteString("def")
		f.Close()
	}()

	rc, err := src.Open(ctx, 1)
	require.NoError(t, err)
	defer rc.Close()
	buf := make([]byte, 6)
	_, err = io.ReadFull(rc, buf)
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(buf))
}

func TestFileSourceCancelled(t *testing.T) {
	src := &FileSource{Prefix: filepath.Join(t.TempDir(), "never"), Poll: time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := src.Open(ctx, 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFileSourceTruncatedStreamStalls(t *testing.T) {
	dir := t.TempDir()
	src := &FileSource{Prefix: filepath.Join(dir, "out"), Poll: time.Millisecond, Idle: 50 * time.Millisecond, Follow: true}
	require.NoError(t, os.WriteFile(src.Path(0), []byte("abc"), 0o644))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rc, err := src.Open(ctx, 0)
	require.NoError(t, err)
	defer rc.Close()
	_, err = io.ReadAll(rc)
	require.ErrorIs(t, err, ErrStalled)
}

func TestFileSourceMissingStreamStalls(t *testing.T) {
	src := &FileSource{Prefix: filepath.Join(t.TempDir(), "never"), Poll: time.Millisecond, Idle: 20 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := src.Open(ctx, 0)
	require.ErrorIs(t, err, ErrStalled)
}

func TestMemorySource(t *testing.T) {
	m := MemorySource{[]byte("x")}
	rc, err := m.Open(context.Background(), 0)
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	require.Equal(t, "x", string(b))
	_, err = m.Open(context.Background(), 1)
	require.ErrorIs(t, err, os.ErrNotExist)
}
