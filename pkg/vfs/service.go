// Package vfs implements FileService, the URI-addressed file operations
// core that sits above pkg/provider's scheme registry. Every exported
// method corresponds to one operation: resolve, readFile/readFileStream,
// writeFile/createFile, move/copy, mkdirp, delete, watch.
package vfs

import (
	"context"
	"errors"

	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

// Metrics receives counters and gauges for FileService activity. Nil-safe: NopMetrics is used when the caller doesn't wire
// one.
type Metrics interface {
	// ObserveOperation records one completed operation, err nil on success.
	ObserveOperation(op string, scheme string, err error)

	// SetQueueDepth reports the current number of distinct resources with
	// an in-flight or queued write (len(writeQueue.entries)).
	SetQueueDepth(depth int)

	// SetWatchSessions reports the current number of distinct (provider,
	// uri, options) watch sessions shared across subscribers.
	SetWatchSessions(count int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, string, error) {}
func (nopMetrics) SetQueueDepth(int)                      {}
func (nopMetrics) SetWatchSessions(int)                   {}

// NopMetrics is the default Metrics used when NewFileService isn't given one.
var NopMetrics Metrics = nopMetrics{}

// Participant hooks run before and after every operation.
type Participant interface {
	Before(ctx context.Context, op OperationKind, resource uri.URI) error
	After(ctx context.Context, op OperationKind, resource uri.URI, err error)
}

// FileService is the central coordinator: it resolves URIs to providers via
// the registry, serializes writes per resource through a writeQueue, and
// rebroadcasts provider-level changes and its own completed operations to
// subscribers.
type FileService struct {
	registry *provider.Registry
	queue    *writeQueue
	watches  *watchTable
	metrics  Metrics

	participants []Participant

	operations *provider.Emitter[OperationEvent]
	changes    *provider.Emitter[ChangesEvent]

	providerSubs map[string]provider.Disposable
}

// NewFileService wires a FileService around reg. metrics may be nil, in
// which case NopMetrics is used.
func NewFileService(reg *provider.Registry, metrics Metrics) *FileService {
	if metrics == nil {
		metrics = NopMetrics
	}
	s := &FileService{
		registry:     reg,
		queue:        newWriteQueue(metrics),
		watches:      newWatchTable(metrics),
		metrics:      metrics,
		operations:   provider.NewEmitter[OperationEvent](),
		changes:      provider.NewEmitter[ChangesEvent](),
		providerSubs: make(map[string]provider.Disposable),
	}
	reg.OnDidChangeRegistrations(func(ev provider.RegistrationEvent) {
		s.onRegistrationChanged(ev)
	})
	return s
}

// onRegistrationChanged subscribes FileService to a newly registered
// provider's raw file-change stream so it can rebroadcast them as
// ChangesEvent, and tears that subscription down on unregister.
func (s *FileService) onRegistrationChanged(ev provider.RegistrationEvent) {
	if ev.Added {
		sub := ev.Provider.OnDidChangeFile(func(changes []provider.ChangeEvent) {
			s.changes.Fire(ChangesEvent{Changes: changes})
		})
		s.providerSubs[ev.Scheme] = sub
		return
	}
	if sub, ok := s.providerSubs[ev.Scheme]; ok {
		sub.Dispose()
		delete(s.providerSubs, ev.Scheme)
	}
}

// AddParticipant registers a before/after hook run around every operation.
func (s *FileService) AddParticipant(p Participant) {
	s.participants = append(s.participants, p)
}

// OnDidRunOperation subscribes to completed write-shaped operations
// (create/write/move/copy/delete).
func (s *FileService) OnDidRunOperation(f func(OperationEvent)) provider.Disposable {
	return s.operations.Subscribe(f)
}

// OnDidFilesChange subscribes to rebroadcast provider change batches.
func (s *FileService) OnDidFilesChange(f func(ChangesEvent)) provider.Disposable {
	return s.changes.Subscribe(f)
}

func (s *FileService) emitOperation(ev OperationEvent) {
	s.operations.Fire(ev)
}

// wrapStatErr normalizes an error from a provider's Stat into a
// *vfserrors.Error for op. A provider error that already carries a typed
// code (FILE_PERMISSION_DENIED, FILE_EXISTS, ...) keeps that code; only an
// untyped error defaults to FILE_NOT_FOUND, since Stat failing is still most
// often "the resource doesn't exist".
func wrapStatErr(err error, op, source string) error {
	var verr *vfserrors.Error
	if errors.As(err, &verr) {
		return verr
	}
	return vfserrors.Wrap(err, vfserrors.FileNotFound, op).WithSource(source)
}

// caseSensitive reports the case-sensitivity of u's provider, defaulting to
// true (the conservative choice: no unintended folding) when the scheme is
// not currently registered.
func (s *FileService) caseSensitive(u uri.URI) bool {
	p, ok := s.registry.Lookup(u.Scheme)
	if !ok {
		return true
	}
	return p.Capabilities().Has(capability.PathCaseSensitive)
}

// ResolveOptions controls how deep and how thoroughly Resolve expands a
// directory's subtree.
type ResolveOptions struct {
	// ResolveMetadata requests full FileStat (etag, mtime, size) on every
	// expanded child rather than name+type only.
	ResolveMetadata bool

	// ResolveTo seeds a set of URIs that must remain reachable in the
	// returned tree: every ancestor directory on the path to each of them
	// is expanded regardless of depth.
	ResolveTo []uri.URI

	// ResolveSingleChildDescendants expands a directory automatically when
	// it contains exactly one entry, continuing until a directory with
	// zero or more-than-one entry is reached.
	ResolveSingleChildDescendants bool
}

// Resolve stats u and, if it is a directory, expands its subtree according
// to opts. Resolving a non-existent resource returns a
// FILE_NOT_FOUND *vfserrors.Error.
func (s *FileService) Resolve(ctx context.Context, u uri.URI, opts ResolveOptions) (*provider.FileStat, error) {
	p, err := s.registry.WithProvider(ctx, u)
	if err != nil {
		return nil, err
	}
	st, err := p.Stat(ctx, u)
	if err != nil {
		return nil, wrapStatErr(err, "resolve", u.String())
	}
	if opts.ResolveMetadata {
		st = st.WithComputedETag()
	}
	root := &st

	if root.IsDirectory {
		trie := newPathTrie(s.caseSensitive(u))
		for _, seed := range opts.ResolveTo {
			trie.insert(seed)
		}
		s.resolveChildren(ctx, p, root, trie, opts)
	}
	return root, nil
}

// ResolveAll resolves every URI in us independently, collecting a
// same-length slice of (*provider.FileStat, error) results rather than
// failing the whole batch on one missing resource.
func (s *FileService) ResolveAll(ctx context.Context, us []uri.URI, opts ResolveOptions) []ResolveResult {
	out := make([]ResolveResult, len(us))
	for i, u := range us {
		st, err := s.Resolve(ctx, u, opts)
		out[i] = ResolveResult{Stat: st, Err: err}
	}
	return out
}

// ResolveResult is one entry of ResolveAll's batch result.
type ResolveResult struct {
	Stat *provider.FileStat
	Err  error
}

// Exists reports whether u can be stat'd, treating any error as "does not
// exist" — it is Resolve with errors swallowed.
func (s *FileService) Exists(ctx context.Context, u uri.URI) bool {
	p, err := s.registry.WithProvider(ctx, u)
	if err != nil {
		return false
	}
	_, err = p.Stat(ctx, u)
	return err == nil
}

// resolveChildren recursively expands parent's ReadDir listing, deciding
// per child whether to recurse further based on the seeded trie or the
// single-child-descendant rule. A ReadDir failure on any
// directory in the tree yields an empty Children slice for that directory
// rather than failing the whole Resolve call.
func (s *FileService) resolveChildren(ctx context.Context, p provider.Provider, parent *provider.FileStat, trie *pathTrie, opts ResolveOptions) {
	entries, err := p.ReadDir(ctx, parent.Resource)
	if err != nil {
		parent.Children = []*provider.FileStat{}
		return
	}

	children := make([]*provider.FileStat, 0, len(entries))
	for _, entry := range entries {
		childURI := parent.Resource.Join(entry.Name)

		var childStat provider.FileStat
		if opts.ResolveMetadata {
			st, err := p.Stat(ctx, childURI)
			if err != nil {
				continue
			}
			childStat = st.WithComputedETag()
		} else {
			childStat = provider.FileStat{
				Resource:    childURI,
				Name:        entry.Name,
				IsFile:      entry.Type == provider.FileTypeFile,
				IsDirectory: entry.Type == provider.FileTypeDirectory,
			}
		}

		if childStat.IsDirectory {
			recurse := trie.hasDescendant(childURI) ||
				(opts.ResolveSingleChildDescendants && len(entries) == 1)
			if recurse {
				s.resolveChildren(ctx, p, &childStat, trie, opts)
			}
		}
		children = append(children, &childStat)
	}
	parent.Children = children
}
