// Package resource implements Resource, the long-lived single-URI view used
// by editor-shaped consumers of FileService: it tracks a content version
// (etag, mtime, size), detects dirtiness against the provider, and fans out
// change notifications without the caller re-reading content on every
// external change.
package resource

import (
	"context"
	"sync"

	"github.com/hollowfs/vfscore/pkg/iostream"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfs"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

// ContentVersion is the cached (etag, mtime, size) triple a Resource
// compares its own state against on every read/write.
type ContentVersion struct {
	Etag  string
	Mtime int64
	Size  uint64
}

// ReadOptions mirrors vfs.ReadOptions at the Resource boundary.
type ReadOptions struct{}

// SaveOptions mirrors vfs.WriteOptions at the Resource boundary.
type SaveOptions struct{}

// ErrNotFound and ErrOutOfSync are the Resource-level error sentinels
// readContents/saveContents translate provider errors into.
var (
	ErrNotFound  = vfserrors.New(vfserrors.FileNotFound, "resource", "resource not found")
	ErrOutOfSync = vfserrors.New(vfserrors.FileModifiedSince, "resource", "content changed since last read")
)

// Resource binds service to a single uri and tracks its content version
// across reads, writes, and externally observed changes.
type Resource struct {
	service *vfs.FileService
	uri     uri.URI

	mu      sync.Mutex
	version *ContentVersion
	content []byte

	changeSubs  *provider.Emitter[struct{}]
	fileSub     provider.Disposable
	opSub       provider.Disposable
	initialized bool
}

// New creates a Resource bound to u. Init must be called before use.
func New(service *vfs.FileService, u uri.URI) *Resource {
	return &Resource{
		service:    service,
		uri:        u,
		changeSubs: provider.NewEmitter[struct{}](),
	}
}

// Init resolves uri, failing if it does not exist or is a directory, and
// subscribes to the service's change streams.
func (r *Resource) Init(ctx context.Context) error {
	st, err := r.service.Resolve(ctx, r.uri, vfs.ResolveOptions{})
	if err != nil {
		return ErrNotFound
	}
	if st.IsDirectory {
		return vfserrors.New(vfserrors.FileIsDirectory, "resource", "").WithSource(r.uri.String())
	}

	r.fileSub = r.service.OnDidFilesChange(func(ev vfs.ChangesEvent) {
		if ev.Contains(r.uri, true) {
			r.invalidate()
		}
	})
	r.opSub = r.service.OnDidRunOperation(func(ev vfs.OperationEvent) {
		if ev.Kind != vfs.OpDelete && ev.Kind != vfs.OpMove {
			return
		}
		if ev.Resource.Equal(r.uri, true) || ev.Resource.IsEqualOrParent(r.uri, true) {
			r.invalidate()
		}
	})

	r.mu.Lock()
	r.initialized = true
	r.mu.Unlock()
	return nil
}

// Dispose tears down the resource's subscriptions.
func (r *Resource) Dispose() {
	if r.fileSub != nil {
		r.fileSub.Dispose()
	}
	if r.opSub != nil {
		r.opSub.Dispose()
	}
}

// OnDidChangeContents subscribes to content-invalidation notifications.
func (r *Resource) OnDidChangeContents(f func()) provider.Disposable {
	return r.changeSubs.Subscribe(func(struct{}) { f() })
}

func (r *Resource) invalidate() {
	r.mu.Lock()
	r.version = nil
	r.content = nil
	r.mu.Unlock()
	r.changeSubs.Fire(struct{}{})
}

// ReadContents returns the resource's content, using the cached version as
// a conditional-read precondition: if the provider reports
// FILE_NOT_MODIFIED_SINCE the cached content is returned without a fresh
// read; FILE_NOT_FOUND clears the cached version and returns ErrNotFound.
func (r *Resource) ReadContents(ctx context.Context, _ ReadOptions) ([]byte, error) {
	r.mu.Lock()
	etag := ""
	if r.version != nil {
		etag = r.version.Etag
	}
	r.mu.Unlock()

	data, st, err := r.service.ReadFile(ctx, r.uri, vfs.ReadOptions{Etag: etag})
	switch vfserrors.CodeOf(err) {
	case vfserrors.FileNotModifiedSince:
		r.mu.Lock()
		cached := r.content
		r.mu.Unlock()
		return cached, nil
	case vfserrors.FileNotFound:
		r.mu.Lock()
		r.version = nil
		r.content = nil
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.version = &ContentVersion{Etag: st.Etag, Mtime: st.Mtime, Size: st.Size}
	r.content = data
	r.mu.Unlock()
	return data, nil
}

// SaveContents writes content back using the cached version as a
// dirty-write precondition; FILE_MODIFIED_SINCE is translated to
// ErrOutOfSync.
func (r *Resource) SaveContents(ctx context.Context, content []byte, _ SaveOptions) error {
	r.mu.Lock()
	var etag string
	var mtime int64
	if r.version != nil {
		etag = r.version.Etag
		mtime = r.version.Mtime
	}
	r.mu.Unlock()

	st, err := r.service.WriteFile(ctx, r.uri, iostream.FromBytes(content), vfs.WriteOptions{Etag: etag, Mtime: mtime})
	if vfserrors.CodeOf(err) == vfserrors.FileModifiedSince {
		return ErrOutOfSync
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.version = &ContentVersion{Etag: st.Etag, Mtime: st.Mtime, Size: st.Size}
	r.content = content
	r.mu.Unlock()
	return nil
}

// Version returns the currently cached content version, or nil if the
// resource has never been read or has been invalidated.
func (r *Resource) Version() *ContentVersion {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.version == nil {
		return nil
	}
	v := *r.version
	return &v
}
