// Package provider defines the Provider extension point
// and the scheme registry that resolves a URI to the provider responsible
// for it.
//
// A Provider is a tagged-variant type in spirit: every provider implements
// the Base interface, and additionally implements zero or more of
// ReadWriteProvider, RandomAccessProvider and CopyProvider depending on
// which bits its Capabilities() report. FileService type-asserts rather
// than calling through a fat interface with panic-on-unsupported methods,
// so a provider that only implements what its capability bits promise
// never needs stub methods for the rest.
package provider

import (
	"context"

	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/uri"
)

// FileType distinguishes directory entries returned by ReadDir.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeFile
	FileTypeDirectory
	FileTypeSymbolicLink
)

// DirEntry is one (name, type) pair as yielded by ReadDir.
type DirEntry struct {
	Name string
	Type FileType
}

// Handle is an opaque value returned by Open and required by Read/Write/Close.
type Handle uint64

// OpenOptions controls Open.
type OpenOptions struct {
	Create bool
}

// WriteFileOptions controls whole-file WriteFile.
type WriteFileOptions struct {
	Create    bool
	Overwrite bool
}

// RenameOptions controls Rename.
type RenameOptions struct {
	Overwrite bool
}

// CopyOptions controls the optional native Copy.
type CopyOptions struct {
	Overwrite bool
}

// DeleteOptions controls Delete.
type DeleteOptions struct {
	Recursive bool
	UseTrash  bool
}

// WatchOptions controls Watch.
type WatchOptions struct {
	Recursive bool
	Excludes  []string
}

// ChangeType enumerates the kinds of filesystem change a provider reports.
// Values are part of the wire format and must not change.
type ChangeType int

const (
	Added   ChangeType = 1
	Updated ChangeType = 2
	Deleted ChangeType = 3
)

// ChangeEvent is one change within a provider's change batch.
type ChangeEvent struct {
	Resource uri.URI
	Type     ChangeType
}

// Disposable releases a resource or subscription.
type Disposable interface {
	Dispose()
}

// DisposableFunc adapts a plain function to Disposable.
type DisposableFunc func()

func (f DisposableFunc) Dispose() {
	if f != nil {
		f()
	}
}

// NopDisposable is a Disposable whose Dispose does nothing, used wherever
// a provider does not need teardown (e.g. a no-op Watch on a provider
// that never reports changes).
var NopDisposable Disposable = DisposableFunc(nil)

// Base is the set of operations every Provider must implement, regardless
// of its I/O shape capabilities.
type Base interface {
	Capabilities() capability.Bits
	Stat(ctx context.Context, u uri.URI) (FileStat, error)
	ReadDir(ctx context.Context, u uri.URI) ([]DirEntry, error)
	Mkdir(ctx context.Context, u uri.URI) error
	Delete(ctx context.Context, u uri.URI, opts DeleteOptions) error
	Rename(ctx context.Context, src, dst uri.URI, opts RenameOptions) error
	Watch(ctx context.Context, u uri.URI, opts WatchOptions) (Disposable, error)

	// OnDidChangeFile and OnDidChangeCapabilities register listeners and
	// return a Disposable that unregisters them.
	OnDidChangeFile(func([]ChangeEvent)) Disposable
	OnDidChangeCapabilities(func(capability.Bits)) Disposable
}

// Provider is the full extension point: Base plus whichever I/O shapes the
// concrete implementation supports. FileService discovers shape support by
// type-asserting a Provider to ReadWriteProvider / RandomAccessProvider /
// CopyProvider, not by calling through optional methods on this interface.
type Provider interface {
	Base
}

// ReadWriteProvider is the whole-file I/O shape.
type ReadWriteProvider interface {
	Provider
	ReadFile(ctx context.Context, u uri.URI) ([]byte, error)
	WriteFile(ctx context.Context, u uri.URI, data []byte, opts WriteFileOptions) error
}

// RandomAccessProvider is the handle-based I/O shape.
type RandomAccessProvider interface {
	Provider
	Open(ctx context.Context, u uri.URI, opts OpenOptions) (Handle, error)
	Close(ctx context.Context, h Handle) error
	Read(ctx context.Context, h Handle, pos int64, buf []byte) (int, error)
	Write(ctx context.Context, h Handle, pos int64, buf []byte) (int, error)
}

// CopyProvider is the optional native-copy extension, required when
// capability.FileFolderCopy is set.
type CopyProvider interface {
	Provider
	Copy(ctx context.Context, src, dst uri.URI, opts CopyOptions) error
}

// HasReadWrite and HasRandomAccess type-assert p, returning the narrowed
// interface and whether the assertion succeeded.
func HasReadWrite(p Provider) (ReadWriteProvider, bool) {
	rw, ok := p.(ReadWriteProvider)
	return rw, ok
}

func HasRandomAccess(p Provider) (RandomAccessProvider, bool) {
	ra, ok := p.(RandomAccessProvider)
	return ra, ok
}

func HasFolderCopy(p Provider) (CopyProvider, bool) {
	cp, ok := p.(CopyProvider)
	return cp, ok && p.Capabilities().Has(capability.FileFolderCopy)
}
