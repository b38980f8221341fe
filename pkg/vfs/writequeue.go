package vfs

import (
	"context"
	"strings"
	"sync"

	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
)

// writeQueue serializes writes per queueKey using a per-key mutex held for
// the duration of each enqueued task: at most one task per key in flight at
// a time, and the next task always runs whether or not its predecessor
// failed. Entries are reference-counted and removed once no task holds or
// awaits them, so the map never grows unboundedly.
type writeQueue struct {
	mu      sync.Mutex
	entries map[string]*queueEntry
	metrics Metrics
}

type queueEntry struct {
	mu  sync.Mutex
	ref int
}

func newWriteQueue(metrics Metrics) *writeQueue {
	return &writeQueue{entries: make(map[string]*queueEntry), metrics: metrics}
}

// queueKey derives a stable key identifying the same resource under this
// provider, case-folded when the provider is case-insensitive.
func queueKey(p provider.Provider, u uri.URI) string {
	key := u.String()
	if !p.Capabilities().Has(capability.PathCaseSensitive) {
		key = strings.ToLower(key)
	}
	return key
}

// enqueue runs task serially with respect to every other task enqueued
// under the same key, including when this or a predecessor task returns an
// error.
func (q *writeQueue) enqueue(ctx context.Context, key string, task func(ctx context.Context) error) error {
	q.mu.Lock()
	e, ok := q.entries[key]
	if !ok {
		e = &queueEntry{}
		q.entries[key] = e
	}
	e.ref++
	q.metrics.SetQueueDepth(len(q.entries))
	q.mu.Unlock()

	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		q.mu.Lock()
		e.ref--
		if e.ref == 0 {
			delete(q.entries, key)
		}
		q.metrics.SetQueueDepth(len(q.entries))
		q.mu.Unlock()
	}()

	return task(ctx)
}
