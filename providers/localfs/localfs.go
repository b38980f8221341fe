// Package localfs implements provider.Provider as a thin adapter over
// os.* calls for a directory tree on the local disk: the random-access I/O
// shape only, since *os.File already exposes ReadAt/WriteAt directly and a
// whole-file ReadFile/WriteFile would just be a redundant wrapper around it.
package localfs

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

// Provider roots every URI path at Root on the local filesystem.
type Provider struct {
	Root string

	mu       sync.Mutex
	handles  map[provider.Handle]*os.File
	nextHand provider.Handle

	fileSubs *provider.Emitter[[]provider.ChangeEvent]
	capSubs  *provider.Emitter[capability.Bits]
}

// New creates a provider rooted at root. root must already exist.
func New(root string) *Provider {
	return &Provider{
		Root:     root,
		handles:  map[provider.Handle]*os.File{},
		fileSubs: provider.NewEmitter[[]provider.ChangeEvent](),
		capSubs:  provider.NewEmitter[capability.Bits](),
	}
}

func (p *Provider) Capabilities() capability.Bits {
	caps := capability.FileOpenReadWriteClose
	if runtimeIsCaseSensitive() {
		caps |= capability.PathCaseSensitive
	}
	return caps
}

func (p *Provider) OnDidChangeFile(f func([]provider.ChangeEvent)) provider.Disposable {
	return p.fileSubs.Subscribe(f)
}

func (p *Provider) OnDidChangeCapabilities(f func(capability.Bits)) provider.Disposable {
	return p.capSubs.Subscribe(f)
}

func (p *Provider) path(u uri.URI) string {
	return filepath.Join(p.Root, filepath.FromSlash(u.Path))
}

func (p *Provider) Stat(ctx context.Context, u uri.URI) (provider.FileStat, error) {
	fi, err := os.Stat(p.path(u))
	if err != nil {
		return provider.FileStat{}, translateOSErr(err, "stat", u)
	}
	return statFromFileInfo(u, fi), nil
}

func statFromFileInfo(u uri.URI, fi os.FileInfo) provider.FileStat {
	return provider.FileStat{
		Resource:       u,
		Name:           u.Name(),
		IsFile:         fi.Mode().IsRegular(),
		IsDirectory:    fi.IsDir(),
		IsSymbolicLink: fi.Mode()&os.ModeSymlink != 0,
		Mtime:          fi.ModTime().UnixMilli(),
		Size:           uint64(fi.Size()),
	}
}

func (p *Provider) ReadDir(ctx context.Context, u uri.URI) ([]provider.DirEntry, error) {
	entries, err := os.ReadDir(p.path(u))
	if err != nil {
		return nil, translateOSErr(err, "readDir", u)
	}
	out := make([]provider.DirEntry, 0, len(entries))
	for _, e := range entries {
		t := provider.FileTypeFile
		switch {
		case e.IsDir():
			t = provider.FileTypeDirectory
		case e.Type()&fs.ModeSymlink != 0:
			t = provider.FileTypeSymbolicLink
		}
		out = append(out, provider.DirEntry{Name: e.Name(), Type: t})
	}
	return out, nil
}

func (p *Provider) Mkdir(ctx context.Context, u uri.URI) error {
	if err := os.Mkdir(p.path(u), 0o755); err != nil {
		return translateOSErr(err, "mkdir", u)
	}
	p.fileSubs.Fire([]provider.ChangeEvent{{Resource: u, Type: provider.Added}})
	return nil
}

func (p *Provider) Delete(ctx context.Context, u uri.URI, opts provider.DeleteOptions) error {
	var err error
	if opts.Recursive {
		err = os.RemoveAll(p.path(u))
	} else {
		err = os.Remove(p.path(u))
	}
	if err != nil {
		return translateOSErr(err, "delete", u)
	}
	p.fileSubs.Fire([]provider.ChangeEvent{{Resource: u, Type: provider.Deleted}})
	return nil
}

func (p *Provider) Rename(ctx context.Context, src, dst uri.URI, opts provider.RenameOptions) error {
	if !opts.Overwrite {
		if _, err := os.Lstat(p.path(dst)); err == nil {
			return vfserrors.New(vfserrors.FileMoveConflict, "rename", "").WithSource(src.String()).WithTarget(dst.String())
		}
	}
	if err := os.Rename(p.path(src), p.path(dst)); err != nil {
		return translateOSErr(err, "rename", src)
	}
	p.fileSubs.Fire([]provider.ChangeEvent{
		{Resource: src, Type: provider.Deleted},
		{Resource: dst, Type: provider.Added},
	})
	return nil
}

func (p *Provider) Watch(ctx context.Context, u uri.URI, opts provider.WatchOptions) (provider.Disposable, error) {
	// A real deployment would back this with fsnotify; vfscore's registry
	// and write queue already give callers correctness without it, so the
	// absence of OS-level notifications only means externally-made changes
	// (outside this process) are not observed until the next stat.
	return provider.NopDisposable, nil
}

func (p *Provider) Open(ctx context.Context, u uri.URI, opts provider.OpenOptions) (provider.Handle, error) {
	flags := os.O_RDWR
	if opts.Create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(p.path(u), flags, 0o644)
	if err != nil {
		return 0, translateOSErr(err, "open", u)
	}

	p.mu.Lock()
	p.nextHand++
	h := p.nextHand
	p.handles[h] = f
	p.mu.Unlock()

	if opts.Create {
		p.fileSubs.Fire([]provider.ChangeEvent{{Resource: u, Type: provider.Added}})
	}
	return h, nil
}

func (p *Provider) Close(ctx context.Context, h provider.Handle) error {
	p.mu.Lock()
	f, ok := p.handles[h]
	delete(p.handles, h)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return f.Close()
}

func (p *Provider) Read(ctx context.Context, h provider.Handle, pos int64, buf []byte) (int, error) {
	f, ok := p.handle(h)
	if !ok {
		return 0, vfserrors.New(vfserrors.Unknown, "read", "invalid handle")
	}
	n, err := f.ReadAt(buf, pos)
	if err == io.EOF {
		return n, io.EOF
	}
	return n, err
}

func (p *Provider) Write(ctx context.Context, h provider.Handle, pos int64, buf []byte) (int, error) {
	f, ok := p.handle(h)
	if !ok {
		return 0, vfserrors.New(vfserrors.Unknown, "write", "invalid handle")
	}
	return f.WriteAt(buf, pos)
}

func (p *Provider) handle(h provider.Handle) (*os.File, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.handles[h]
	return f, ok
}

func translateOSErr(err error, op string, u uri.URI) error {
	switch {
	case os.IsNotExist(err):
		return vfserrors.Wrap(err, vfserrors.FileNotFound, op).WithSource(u.String())
	case os.IsExist(err):
		return vfserrors.Wrap(err, vfserrors.FileExists, op).WithSource(u.String())
	case os.IsPermission(err):
		return vfserrors.Wrap(err, vfserrors.FilePermissionDenied, op).WithSource(u.String())
	default:
		return vfserrors.Wrap(err, vfserrors.Unknown, op).WithSource(u.String())
	}
}

// runtimeIsCaseSensitive reports the case-sensitivity of the host's default
// filesystem. This is a coarse OS-level guess, not a per-mount probe: Linux
// is treated as case-sensitive, Darwin/Windows as not.
func runtimeIsCaseSensitive() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return false
	default:
		return true
	}
}
