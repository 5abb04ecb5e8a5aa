package shard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// StreamSource opens the ordered match stream of shard i.
type StreamSource interface {
	Open(ctx context.Context, i int) (io.ReadCloser, error)
}

// ErrStalled reports a shard stream that made no progress for longer than
// FileSource.Idle.
var ErrStalled = errors.New("shard stream stalled")

// DefaultPoll bounds each wait for a shard stream that is still being
// produced.
const DefaultPoll = 100 * time.Microsecond

// FileSource reads shard i's stream from "<Prefix>.<i>". A file that does
// not exist yet is waited for; with Follow set, reaching the current end of
// the file waits for the producer to append more instead of returning EOF.
// Waits wake on filesystem events and at least every Poll. A stream that
// neither appears nor grows for Idle fails with ErrStalled; zero waits
// indefinitely.
type FileSource struct {
	Prefix string
	Poll   time.Duration
	Idle   time.Duration
	Follow bool
	Log    *zap.Logger
}

// Path is the stream file of shard i.
func (s *FileSource) Path(i int) string { return fmt.Sprintf("%s.%d", s.Prefix, i) }

func (s *FileSource) poll() time.Duration {
	if s.Poll <= 0 {
		return DefaultPoll
	}
	return s.Poll
}

func (s *FileSource) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Open waits until the stream file exists and opens it.
func (s *FileSource) Open(ctx context.Context, i int) (io.ReadCloser, error) {
	path := s.Path(i)
	w := s.watch(path)
	idle := idleTimer{limit: s.Idle, since: time.Now()}
	waited := false
	for {
		f, err := os.Open(path)
		if err == nil {
			if waited {
				s.log().Debug("shard stream appeared", zap.String("path", path))
			}
			if !s.Follow {
				closeWatcher(w)
				return f, nil
			}
			idle.since = time.Now()
			return &follower{f: f, w: w, ctx: ctx, poll: s.poll(), idle: idle}, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			closeWatcher(w)
			return nil, fmt.Errorf("open shard stream: %w", err)
		}
		if !waited {
			s.log().Debug("waiting for shard stream", zap.String("path", path))
			waited = true
		}
		if idle.expired() {
			closeWatcher(w)
			return nil, fmt.Errorf("%s not created within %s: %w", path, s.Idle, ErrStalled)
		}
		if err := wait(ctx, w, s.poll()); err != nil {
			closeWatcher(w)
			return nil, err
		}
	}
}

// watch returns a watcher on the stream's directory, or nil when the
// platform cannot provide one; waits then rely on polling alone.
func (s *FileSource) watch(path string) *fsnotify.Watcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.log().Debug("fsnotify unavailable, polling", zap.Error(err))
		return nil
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		s.log().Debug("cannot watch stream directory, polling", zap.Error(err))
		w.Close()
		return nil
	}
	return w
}

func closeWatcher(w *fsnotify.Watcher) {
	if w != nil {
		w.Close()
	}
}

func wait(ctx context.Context, w *fsnotify.Watcher, poll time.Duration) error {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w != nil {
		events, errs = w.Events, w.Errors
	}
	t := time.NewTimer(poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	case <-events:
	case <-errs:
	}
	return nil
}

type idleTimer struct {
	limit time.Duration
	since time.Time
}

func (t *idleTimer) expired() bool {
	return t.limit > 0 && time.Since(t.since) >= t.limit
}

// follower reads a file that is still growing.
type follower struct {
	f    *os.File
	w    *fsnotify.Watcher
	ctx  context.Context
	poll time.Duration
	idle idleTimer
}

func (r *follower) Read(p []byte) (int, error) {
	for {
		n, err := r.f.Read(p)
		if n > 0 {
			r.idle.since = time.Now()
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if r.idle.expired() {
			return 0, fmt.Errorf("%s: no data for %s: %w", r.f.Name(), r.idle.limit, ErrStalled)
		}
		if err := wait(r.ctx, r.w, r.poll); err != nil {
			return 0, err
		}
	}
}

func (r *follower) Close() error {
	closeWatcher(r.w)
	return r.f.Close()
}

// MemorySource serves in-process streams, one byte slice per shard.
type MemorySource [][]byte

// Open returns a reader over shard i's bytes.
func (m MemorySource) Open(_ context.Context, i int) (io.ReadCloser, error) {
	if i < 0 || i >= len(m) {
		return nil, fmt.Errorf("open shard stream %d: %w", i, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(m[i])), nil
}
