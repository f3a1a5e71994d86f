package script

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sbatcher/pkg/logx"
)

// Watcher live-reloads a defaults file and publishes fresh directive lists to
// subscribers. Editors tend to emit several write events per save, so reloads
// are debounced and content-hashed: an unchanged file never publishes.
type Watcher struct {
	path string
	log  logx.Logger

	mu      sync.RWMutex
	current []Directive

	// subsMu guards the subscriber list and ensures we never send on a
	// channel that is concurrently being closed in Unsubscribe().
	subsMu sync.Mutex
	subs   []chan []Directive

	lastHash  uint64
	committed bool
}

func NewWatcher(path string, log logx.Logger) *Watcher {
	return &Watcher{path: path, log: log}
}

// Load reads and commits the defaults file, returning the directives.
func (w *Watcher) Load() ([]Directive, error) {
	b, err := os.ReadFile(w.path)
	if err != nil {
		return nil, err
	}
	ds, err := ParseDefaults(b)
	if err != nil {
		return nil, err
	}
	w.commit(ds, hashBytes(b))
	return ds, nil
}

// Current returns the last committed directives.
func (w *Watcher) Current() []Directive {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Directive(nil), w.current...)
}

func (w *Watcher) Subscribe(buffer int) chan []Directive {
	ch := make(chan []Directive, buffer)
	w.subsMu.Lock()
	w.subs = append(w.subs, ch)
	w.subsMu.Unlock()
	return ch
}

func (w *Watcher) Unsubscribe(ch chan []Directive) {
	if ch == nil {
		return
	}
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for i, s := range w.subs {
		if s == ch {
			// swap-remove (order doesn't matter)
			last := len(w.subs) - 1
			w.subs[i] = w.subs[last]
			w.subs[last] = nil
			w.subs = w.subs[:last]
			close(ch)
			return
		}
	}
}

// Watch blocks until ctx is done, reloading on file change events.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch the directory, not the file: editors replace files on save and
	// the inode-level watch would silently die.
	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() { w.reload() })
	}

	for {
		select {
		case <-ctx.Done():
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("defaults watcher error", logx.Err(err))
		}
	}
}

func (w *Watcher) reload() {
	b, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Warn("defaults reload failed", logx.String("path", w.path), logx.Err(err))
		return
	}

	sum := hashBytes(b)
	w.mu.RLock()
	same := w.committed && sum == w.lastHash
	w.mu.RUnlock()
	if same {
		w.log.Debug("defaults unchanged; skipping publish", logx.String("path", w.path))
		return
	}

	ds, err := ParseDefaults(b)
	if err != nil {
		// Keep the last good defaults on parse errors.
		w.log.Warn("defaults parse failed; keeping previous", logx.String("path", w.path), logx.Err(err))
		return
	}

	w.commit(ds, sum)
	w.publish(ds)
	w.log.Info("defaults reloaded", logx.String("path", w.path), logx.Int("directives", len(ds)))
}

func (w *Watcher) commit(ds []Directive, sum uint64) {
	w.mu.Lock()
	w.current = ds
	w.lastHash = sum
	w.committed = true
	w.mu.Unlock()
}

func (w *Watcher) publish(ds []Directive) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for _, ch := range w.subs {
		if ch == nil {
			continue
		}
		// If a subscriber is slow and its buffer is full, drop the oldest
		// item and push the newest.
		select {
		case ch <- ds:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ds:
			default:
			}
		}
	}
}

// hashBytes returns a stable 64-bit hash of bytes.
func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
