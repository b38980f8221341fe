// Package memory implements an in-memory provider.Provider exercising every
// I/O shape and optional capability the provider extension point defines:
// whole-file and random-access reads/writes, native folder copy, and trash.
// It exists primarily for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

type node struct {
	isDir    bool
	data     []byte
	children map[string]*node // only for directories
	mtime    int64
	ctime    int64
}

// Provider is an in-memory filesystem. Zero value is not usable; use New.
type Provider struct {
	mu    sync.RWMutex
	root  *node
	trash map[string]*node

	handles   map[provider.Handle]*handle
	nextHand  provider.Handle
	caps      capability.Bits
	fileSubs  *provider.Emitter[[]provider.ChangeEvent]
	capSubs   *provider.Emitter[capability.Bits]
}

type handle struct {
	n *node
}

// New creates an empty in-memory provider rooted at "/".
func New() *Provider {
	return &Provider{
		root: &node{isDir: true, children: map[string]*node{}, mtime: now(), ctime: now()},
		trash:    map[string]*node{},
		handles:  map[provider.Handle]*handle{},
		caps: capability.FileReadWrite | capability.FileOpenReadWriteClose |
			capability.FileFolderCopy | capability.PathCaseSensitive |
			capability.Trash | capability.FileReadStream,
		fileSubs: provider.NewEmitter[[]provider.ChangeEvent](),
		capSubs:  provider.NewEmitter[capability.Bits](),
	}
}

func now() int64 { return time.Now().UnixMilli() }

func (p *Provider) Capabilities() capability.Bits {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.caps
}

func (p *Provider) OnDidChangeFile(f func([]provider.ChangeEvent)) provider.Disposable {
	return p.fileSubs.Subscribe(f)
}

func (p *Provider) OnDidChangeCapabilities(f func(capability.Bits)) provider.Disposable {
	return p.capSubs.Subscribe(f)
}

func (p *Provider) fire(u uri.URI, t provider.ChangeType) {
	p.fileSubs.Fire([]provider.ChangeEvent{{Resource: u, Type: t}})
}

// lookup walks segs from root, returning the node and its parent+name for
// mutation, or nil if any segment is missing.
func (p *Provider) lookup(u uri.URI) (*node, bool) {
	n := p.root
	for _, seg := range u.Segments() {
		if !n.isDir {
			return nil, false
		}
		child, ok := n.children[seg]
		if !ok {
			return nil, false
		}
		n = child
	}
	return n, true
}

func (p *Provider) lookupParent(u uri.URI) (*node, string, bool) {
	segs := u.Segments()
	if len(segs) == 0 {
		return nil, "", false
	}
	parentURI := u.Parent()
	parent, ok := p.lookup(parentURI)
	if !ok || !parent.isDir {
		return nil, "", false
	}
	return parent, segs[len(segs)-1], true
}

func (p *Provider) Stat(ctx context.Context, u uri.URI) (provider.FileStat, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n, ok := p.lookup(u)
	if !ok {
		return provider.FileStat{}, vfserrors.New(vfserrors.FileNotFound, "stat", "").WithSource(u.String())
	}
	return statOf(u, n), nil
}

func statOf(u uri.URI, n *node) provider.FileStat {
	st := provider.FileStat{
		Resource:    u,
		Name:        u.Name(),
		IsFile:      !n.isDir,
		IsDirectory: n.isDir,
		Mtime:       n.mtime,
		Ctime:       n.ctime,
		Size:        uint64(len(n.data)),
	}
	return st
}

func (p *Provider) ReadDir(ctx context.Context, u uri.URI) ([]provider.DirEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n, ok := p.lookup(u)
	if !ok {
		return nil, vfserrors.New(vfserrors.FileNotFound, "readDir", "").WithSource(u.String())
	}
	if !n.isDir {
		return nil, vfserrors.New(vfserrors.FileNotADirectory, "readDir", "").WithSource(u.String())
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]provider.DirEntry, 0, len(names))
	for _, name := range names {
		child := n.children[name]
		t := provider.FileTypeFile
		if child.isDir {
			t = provider.FileTypeDirectory
		}
		entries = append(entries, provider.DirEntry{Name: name, Type: t})
	}
	return entries, nil
}

func (p *Provider) Mkdir(ctx context.Context, u uri.URI) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.lookup(u); ok {
		return vfserrors.New(vfserrors.FileExists, "mkdir", "").WithSource(u.String())
	}
	parent, name, ok := p.lookupParent(u)
	if !ok {
		return vfserrors.New(vfserrors.FileNotFound, "mkdir", "parent does not exist").WithSource(u.String())
	}
	parent.children[name] = &node{isDir: true, children: map[string]*node{}, mtime: now(), ctime: now()}
	p.fire(u, provider.Added)
	return nil
}

func (p *Provider) Delete(ctx context.Context, u uri.URI, opts provider.DeleteOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, ok := p.lookup(u)
	if !ok {
		return vfserrors.New(vfserrors.FileNotFound, "delete", "").WithSource(u.String())
	}
	if n.isDir && len(n.children) > 0 && !opts.Recursive {
		return vfserrors.New(vfserrors.FileExists, "delete", "directory is not empty").WithSource(u.String())
	}
	parent, name, ok := p.lookupParent(u)
	if !ok {
		return vfserrors.New(vfserrors.FileNotFound, "delete", "").WithSource(u.String())
	}
	delete(parent.children, name)
	if opts.UseTrash {
		p.trash[u.String()] = n
	}
	p.fire(u, provider.Deleted)
	return nil
}

func (p *Provider) Rename(ctx context.Context, src, dst uri.URI, opts provider.RenameOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, ok := p.lookup(src)
	if !ok {
		return vfserrors.New(vfserrors.FileNotFound, "rename", "").WithSource(src.String())
	}
	if _, exists := p.lookup(dst); exists && !opts.Overwrite {
		return vfserrors.New(vfserrors.FileMoveConflict, "rename", "").WithSource(src.String()).WithTarget(dst.String())
	}
	dstParent, dstName, ok := p.lookupParent(dst)
	if !ok {
		return vfserrors.New(vfserrors.FileNotFound, "rename", "destination parent does not exist").WithSource(dst.String())
	}
	srcParent, srcName, _ := p.lookupParent(src)
	delete(srcParent.children, srcName)
	dstParent.children[dstName] = n
	n.mtime = now()

	p.fire(src, provider.Deleted)
	p.fire(dst, provider.Added)
	return nil
}

// Copy is the native FileFolderCopy implementation: a deep structural copy
// that never shares byte slices with the source.
func (p *Provider) Copy(ctx context.Context, src, dst uri.URI, opts provider.CopyOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, ok := p.lookup(src)
	if !ok {
		return vfserrors.New(vfserrors.FileNotFound, "copy", "").WithSource(src.String())
	}
	if _, exists := p.lookup(dst); exists && !opts.Overwrite {
		return vfserrors.New(vfserrors.FileMoveConflict, "copy", "").WithSource(src.String()).WithTarget(dst.String())
	}
	dstParent, dstName, ok := p.lookupParent(dst)
	if !ok {
		return vfserrors.New(vfserrors.FileNotFound, "copy", "destination parent does not exist").WithSource(dst.String())
	}
	dstParent.children[dstName] = deepCopy(n)
	p.fire(dst, provider.Added)
	return nil
}

func deepCopy(n *node) *node {
	cp := &node{isDir: n.isDir, mtime: now(), ctime: now()}
	if n.isDir {
		cp.children = make(map[string]*node, len(n.children))
		for name, child := range n.children {
			cp.children[name] = deepCopy(child)
		}
		return cp
	}
	cp.data = append([]byte(nil), n.data...)
	return cp
}

func (p *Provider) ReadFile(ctx context.Context, u uri.URI) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n, ok := p.lookup(u)
	if !ok {
		return nil, vfserrors.New(vfserrors.FileNotFound, "readFile", "").WithSource(u.String())
	}
	if n.isDir {
		return nil, vfserrors.New(vfserrors.FileIsDirectory, "readFile", "").WithSource(u.String())
	}
	return append([]byte(nil), n.data...), nil
}

func (p *Provider) WriteFile(ctx context.Context, u uri.URI, data []byte, opts provider.WriteFileOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, exists := p.lookup(u)
	if exists && n.isDir {
		return vfserrors.New(vfserrors.FileIsDirectory, "writeFile", "").WithSource(u.String())
	}
	if !exists {
		parent, name, ok := p.lookupParent(u)
		if !ok {
			return vfserrors.New(vfserrors.FileNotFound, "writeFile", "parent does not exist").WithSource(u.String())
		}
		n = &node{ctime: now()}
		parent.children[name] = n
	}
	n.data = append([]byte(nil), data...)
	n.mtime = now()

	t := provider.Updated
	if !exists {
		t = provider.Added
	}
	p.fire(u, t)
	return nil
}

func (p *Provider) Open(ctx context.Context, u uri.URI, opts provider.OpenOptions) (provider.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, exists := p.lookup(u)
	if !exists {
		if !opts.Create {
			return 0, vfserrors.New(vfserrors.FileNotFound, "open", "").WithSource(u.String())
		}
		parent, name, ok := p.lookupParent(u)
		if !ok {
			return 0, vfserrors.New(vfserrors.FileNotFound, "open", "parent does not exist").WithSource(u.String())
		}
		n = &node{mtime: now(), ctime: now()}
		parent.children[name] = n
		p.fire(u, provider.Added)
	} else if n.isDir {
		return 0, vfserrors.New(vfserrors.FileIsDirectory, "open", "").WithSource(u.String())
	}

	p.nextHand++
	h := p.nextHand
	p.handles[h] = &handle{n: n}
	return h, nil
}

func (p *Provider) Close(ctx context.Context, h provider.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handles, h)
	return nil
}

func (p *Provider) Read(ctx context.Context, h provider.Handle, pos int64, buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hd, ok := p.handles[h]
	if !ok {
		return 0, vfserrors.New(vfserrors.Unknown, "read", "invalid handle")
	}
	if pos >= int64(len(hd.n.data)) {
		return 0, nil
	}
	n := copy(buf, hd.n.data[pos:])
	return n, nil
}

func (p *Provider) Write(ctx context.Context, h provider.Handle, pos int64, buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hd, ok := p.handles[h]
	if !ok {
		return 0, vfserrors.New(vfserrors.Unknown, "write", "invalid handle")
	}
	end := pos + int64(len(buf))
	if end > int64(len(hd.n.data)) {
		grown := make([]byte, end)
		copy(grown, hd.n.data)
		hd.n.data = grown
	}
	copy(hd.n.data[pos:end], buf)
	hd.n.mtime = now()
	return len(buf), nil
}

// Watch is a no-op: every change is already broadcast unconditionally via
// OnDidChangeFile, so there is no per-watch backend registration to set up.
// FileService's watch table is what turns this into ref-counted sessions.
func (p *Provider) Watch(ctx context.Context, u uri.URI, opts provider.WatchOptions) (provider.Disposable, error) {
	return provider.NopDisposable, nil
}
