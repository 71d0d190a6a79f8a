package download

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultDownloadSlots caps concurrent transfers when no override is configured.
const DefaultDownloadSlots = 3

// Resources is the shared pool a pipeline run hands to its stages.
type Resources struct {
	Downloads *semaphore.Weighted
	Normalize *semaphore.Weighted
	Locks     *PathLocks

	normalizeSlots int
}

// NewResources builds a pool. Non-positive sizes fall back to
// DefaultDownloadSlots and runtime.NumCPU().
func NewResources(downloadSlots, normalizeSlots int) *Resources {
	if downloadSlots <= 0 {
		downloadSlots = DefaultDownloadSlots
	}
	if normalizeSlots <= 0 {
		normalizeSlots = runtime.NumCPU()
	}
	return &Resources{
		Downloads:      semaphore.NewWeighted(int64(downloadSlots)),
		Normalize:      semaphore.NewWeighted(int64(normalizeSlots)),
		Locks:          NewPathLocks(),
		normalizeSlots: normalizeSlots,
	}
}

// NormalizeSlots reports the size of the Normalize semaphore.
func (r *Resources) NormalizeSlots() int {
	if r == nil {
		return 0
	}
	return r.normalizeSlots
}

// PathLocks serializes work on the same destination path. Entries are
// reference counted and dropped when the last holder or waiter leaves.
type PathLocks struct {
	mu      sync.Mutex
	entries map[string]*pathEntry
}

type pathEntry struct {
	sem  chan struct{}
	refs int
}

// NewPathLocks returns an empty lock table.
func NewPathLocks() *PathLocks {
	return &PathLocks{entries: make(map[string]*pathEntry)}
}

// Lock blocks until path is free or ctx is done. The returned func releases
// the lock and must be called exactly once.
func (l *PathLocks) Lock(ctx context.Context, path string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[path]
	if !ok {
		entry = &pathEntry{sem: make(chan struct{}, 1)}
		l.entries[path] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(path, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.release(path, entry)
		})
	}, nil
}

func (l *PathLocks) release(path string, entry *pathEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, path)
	}
}

// Len reports how many paths currently have holders or waiters.
func (l *PathLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
