package vfs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hollowfs/vfscore/internal/logger"
	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
)

// WatchOptions mirrors provider.WatchOptions at the FileService boundary.
type WatchOptions struct {
	Recursive bool
	Excludes  []string
}

// watchTable implements ref-counted watch session sharing: identical
// (provider, uri, options) subscriptions share one backing provider watch.
type watchTable struct {
	mu       sync.Mutex
	sessions map[string]*watchSession
	metrics  Metrics
}

type watchSession struct {
	count      int
	disposable provider.Disposable
	disposed   bool
}

func newWatchTable(metrics Metrics) *watchTable {
	return &watchTable{sessions: make(map[string]*watchSession), metrics: metrics}
}

// watchKey folds case per the scheme's registered provider when one is
// already present; schemes that have not yet been activated fall back to a
// case-sensitive key, since the case-sensitivity flag is owned by the
// provider and we must not trigger lazy activation just to compute a key.
func watchKey(reg *provider.Registry, u uri.URI, opts WatchOptions) string {
	path := u.Path
	if p, ok := reg.Lookup(u.Scheme); ok && !p.Capabilities().Has(capability.PathCaseSensitive) {
		path = strings.ToLower(path)
	}
	excludes := append([]string(nil), opts.Excludes...)
	sort.Strings(excludes)
	return fmt.Sprintf("%s://%s%s|recursive=%t|excludes=%s", u.Scheme, u.Authority, path, opts.Recursive, strings.Join(excludes, ","))
}

// Watch subscribes to changes under u. It returns a Disposable
// synchronously; the underlying provider watch is created asynchronously
// once the provider (possibly lazily activated) is available. If the
// caller disposes before that completes, the provider watch is disposed
// immediately on arrival instead of leaking.
func (s *FileService) Watch(u uri.URI, opts WatchOptions) provider.Disposable {
	key := watchKey(s.registry, u, opts)

	s.watches.mu.Lock()
	sess, ok := s.watches.sessions[key]
	if !ok {
		sess = &watchSession{}
		s.watches.sessions[key] = sess
	}
	sess.count++
	first := sess.count == 1
	s.watches.metrics.SetWatchSessions(len(s.watches.sessions))
	s.watches.mu.Unlock()

	if first {
		go s.openProviderWatch(sess, u, opts)
	}

	var once sync.Once
	return provider.DisposableFunc(func() {
		once.Do(func() {
			s.watches.mu.Lock()
			sess.count--
			last := sess.count == 0
			var d provider.Disposable
			if last {
				delete(s.watches.sessions, key)
				sess.disposed = true
				d = sess.disposable
			}
			s.watches.metrics.SetWatchSessions(len(s.watches.sessions))
			s.watches.mu.Unlock()
			if last && d != nil {
				d.Dispose()
			}
		})
	})
}

func (s *FileService) openProviderWatch(sess *watchSession, u uri.URI, opts WatchOptions) {
	ctx := context.Background()
	p, err := s.registry.WithProvider(ctx, u)
	if err != nil {
		logger.Warn("watch: could not resolve provider for %s: %v", u, err)
		return
	}
	d, err := p.Watch(ctx, u, provider.WatchOptions{Recursive: opts.Recursive, Excludes: opts.Excludes})
	if err != nil {
		logger.Warn("watch: provider watch failed for %s: %v", u, err)
		return
	}

	s.watches.mu.Lock()
	disposed := sess.disposed
	if !disposed {
		sess.disposable = d
	}
	s.watches.mu.Unlock()

	if disposed {
		d.Dispose()
	}
}
