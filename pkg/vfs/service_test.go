package vfs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/iostream"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
	"github.com/hollowfs/vfscore/providers/localfs"
	"github.com/hollowfs/vfscore/providers/memory"
)

// watchCountingProvider wraps a memory provider to count how many times its
// Watch was actually invoked and how many of the returned Disposables were
// actually disposed, so session sharing in the watch table can be asserted
// from outside the package.
type watchCountingProvider struct {
	*memory.Provider
	openCount  atomic.Int64
	closeCount atomic.Int64
}

func newWatchCountingProvider(p *memory.Provider) *watchCountingProvider {
	return &watchCountingProvider{Provider: p}
}

func (w *watchCountingProvider) Watch(ctx context.Context, u uri.URI, opts provider.WatchOptions) (provider.Disposable, error) {
	w.openCount.Add(1)
	return provider.DisposableFunc(func() { w.closeCount.Add(1) }), nil
}

func (w *watchCountingProvider) opens() int64  { return w.openCount.Load() }
func (w *watchCountingProvider) closes() int64 { return w.closeCount.Load() }

// waitForCondition polls cond until it's true or a short deadline passes,
// for asserting on state that changes on a background goroutine (the watch
// table opens/closes provider watches asynchronously).
func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met within deadline")
	}
}

func newTestService(t *testing.T) (*FileService, *provider.Registry) {
	t.Helper()
	reg := provider.NewRegistry()
	if _, err := reg.Register("file", memory.New()); err != nil {
		t.Fatalf("register memory provider: %v", err)
	}
	return NewFileService(reg, nil), reg
}

func mustURI(t *testing.T, raw string) uri.URI {
	t.Helper()
	u, err := uri.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

// invariant: writeFile with Create creates a new file; reading it back
// returns the same bytes and a non-empty etag.
func TestWriteThenReadFile(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	u := mustURI(t, "file:///hello.txt")

	st, err := s.WriteFile(ctx, u, iostream.FromBytes([]byte("hello world")), WriteOptions{Create: true})
	if err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	if st.Etag == "" {
		t.Fatal("expected a non-empty etag on the returned stat")
	}

	data, readSt, err := s.ReadFile(ctx, u, ReadOptions{})
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("got %q", data)
	}
	if readSt.Etag != st.Etag {
		t.Fatalf("etag changed between write and read: %s != %s", st.Etag, readSt.Etag)
	}
}

// invariant: createFile without Overwrite fails with FILE_EXISTS on a
// file that's already there.
func TestCreateFile_ExistsWithoutOverwrite(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	u := mustURI(t, "file:///a.txt")

	if _, err := s.CreateFile(ctx, u, iostream.FromBytes([]byte("v1")), false); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.CreateFile(ctx, u, iostream.FromBytes([]byte("v2")), false)
	if vfserrors.CodeOf(err) != vfserrors.FileExists {
		t.Fatalf("expected FILE_EXISTS, got %v", err)
	}

	if _, err := s.CreateFile(ctx, u, iostream.FromBytes([]byte("v2")), true); err != nil {
		t.Fatalf("overwrite create: %v", err)
	}
	data, _, _ := s.ReadFile(ctx, u, ReadOptions{})
	if string(data) != "v2" {
		t.Fatalf("overwrite did not take effect, got %q", data)
	}
}

// invariant: a write is rejected as a dirty write when it supplies both
// Mtime and Etag from a stale read, and the resource has since changed
// size under a newer mtime.
func TestWriteFile_DirtyWriteRejected(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	u := mustURI(t, "file:///doc.txt")

	st, err := s.WriteFile(ctx, u, iostream.FromBytes([]byte("v1")), WriteOptions{Create: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	staleMtime, staleSize := st.Mtime, st.Size
	staleEtag := provider.ComputeETag(staleMtime, staleSize)

	time.Sleep(2 * time.Millisecond)

	// Someone else writes first, advancing the resource's mtime and size.
	if _, err := s.WriteFile(ctx, u, iostream.FromBytes([]byte("version two")), WriteOptions{}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	_, err = s.WriteFile(ctx, u, iostream.FromBytes([]byte("v3 based on stale read")), WriteOptions{Mtime: staleMtime, Etag: staleEtag})
	if vfserrors.CodeOf(err) != vfserrors.FileModifiedSince {
		t.Fatalf("expected FILE_MODIFIED_SINCE, got %v", err)
	}
}

// invariant: the dirty-write guard only engages when both Mtime and Etag
// are supplied; either alone never rejects the write.
func TestWriteFile_DirtyWriteRequiresMtimeAndEtagTogether(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	u := mustURI(t, "file:///doc.txt")

	st, err := s.WriteFile(ctx, u, iostream.FromBytes([]byte("v1")), WriteOptions{Create: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	staleMtime, staleSize := st.Mtime, st.Size
	staleEtag := provider.ComputeETag(staleMtime, staleSize)

	time.Sleep(2 * time.Millisecond)
	if _, err := s.WriteFile(ctx, u, iostream.FromBytes([]byte("version two")), WriteOptions{}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	if _, err := s.WriteFile(ctx, u, iostream.FromBytes([]byte("etag only")), WriteOptions{Etag: staleEtag}); err != nil {
		t.Fatalf("etag alone should not be rejected: %v", err)
	}
	if _, err := s.WriteFile(ctx, u, iostream.FromBytes([]byte("mtime only")), WriteOptions{Mtime: staleMtime}); err != nil {
		t.Fatalf("mtime alone should not be rejected: %v", err)
	}
}

// invariant: resolving a directory with ResolveMetadata expands its
// immediate children with full FileStat.
func TestResolve_ExpandsDirectory(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.WriteFile(ctx, mustURI(t, "file:///dir/a.txt"), iostream.FromBytes([]byte("a")), WriteOptions{Create: true}); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if _, err := s.WriteFile(ctx, mustURI(t, "file:///dir/b.txt"), iostream.FromBytes([]byte("b")), WriteOptions{Create: true}); err != nil {
		t.Fatalf("write b: %v", err)
	}

	st, err := s.Resolve(ctx, mustURI(t, "file:///dir"), ResolveOptions{ResolveMetadata: true})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !st.IsDirectory {
		t.Fatal("expected a directory")
	}
	if len(st.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(st.Children))
	}
}

// Resolving a missing resource fails with FILE_NOT_FOUND.
func TestResolve_NotFound(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Resolve(context.Background(), mustURI(t, "file:///nope.txt"), ResolveOptions{})
	if vfserrors.CodeOf(err) != vfserrors.FileNotFound {
		t.Fatalf("expected FILE_NOT_FOUND, got %v", err)
	}
}

// invariant: Exists swallows any error and reports false for a missing
// resource.
func TestExists(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	u := mustURI(t, "file:///maybe.txt")

	if s.Exists(ctx, u) {
		t.Fatal("expected false before the file is created")
	}
	if _, err := s.CreateFile(ctx, u, iostream.FromBytes([]byte("x")), false); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !s.Exists(ctx, u) {
		t.Fatal("expected true once the file exists")
	}
}

// invariant: Move within one provider uses Rename and the source no
// longer exists afterward.
func TestMove_SameProvider(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	src := mustURI(t, "file:///src.txt")
	dst := mustURI(t, "file:///dst.txt")

	if _, err := s.WriteFile(ctx, src, iostream.FromBytes([]byte("payload")), WriteOptions{Create: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.Move(ctx, src, dst, MoveOptions{}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if s.Exists(ctx, src) {
		t.Fatal("source should no longer exist after move")
	}
	data, _, err := s.ReadFile(ctx, dst, ReadOptions{})
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("got %q", data)
	}
}

// invariant: Move onto an existing destination without Overwrite fails
// with FILE_MOVE_CONFLICT, and leaves both files untouched.
func TestMove_ConflictWithoutOverwrite(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	src := mustURI(t, "file:///src.txt")
	dst := mustURI(t, "file:///dst.txt")

	if _, err := s.WriteFile(ctx, src, iostream.FromBytes([]byte("s")), WriteOptions{Create: true}); err != nil {
		t.Fatalf("write src: %v", err)
	}
	if _, err := s.WriteFile(ctx, dst, iostream.FromBytes([]byte("d")), WriteOptions{Create: true}); err != nil {
		t.Fatalf("write dst: %v", err)
	}

	_, err := s.Move(ctx, src, dst, MoveOptions{})
	if vfserrors.CodeOf(err) != vfserrors.FileMoveConflict {
		t.Fatalf("expected FILE_MOVE_CONFLICT, got %v", err)
	}
	if !s.Exists(ctx, src) {
		t.Fatal("source should still exist after a rejected move")
	}
}

// Copy duplicates content without removing the source.
func TestCopy_DuplicatesContent(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	src := mustURI(t, "file:///src.txt")
	dst := mustURI(t, "file:///dst.txt")

	if _, err := s.WriteFile(ctx, src, iostream.FromBytes([]byte("payload")), WriteOptions{Create: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.Copy(ctx, src, dst, CopyOptions{}); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if !s.Exists(ctx, src) {
		t.Fatal("source should still exist after copy")
	}
	data, _, err := s.ReadFile(ctx, dst, ReadOptions{})
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("got %q", data)
	}
}

// invariant: Mkdirp creates every missing ancestor, and is a no-op when
// the directory already exists.
func TestMkdirp_CreatesAncestors(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	u := mustURI(t, "file:///a/b/c")

	if _, err := s.Mkdirp(ctx, u); err != nil {
		t.Fatalf("mkdirp: %v", err)
	}
	for _, p := range []string{"file:///a", "file:///a/b", "file:///a/b/c"} {
		if !s.Exists(ctx, mustURI(t, p)) {
			t.Fatalf("expected %s to exist", p)
		}
	}
	if _, err := s.Mkdirp(ctx, u); err != nil {
		t.Fatalf("mkdirp should be idempotent, got %v", err)
	}
}

// Delete on a non-empty directory requires Recursive.
func TestDelete_NonEmptyDirectoryRequiresRecursive(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	dir := mustURI(t, "file:///dir")

	if _, err := s.Mkdirp(ctx, dir); err != nil {
		t.Fatalf("mkdirp: %v", err)
	}
	if _, err := s.WriteFile(ctx, mustURI(t, "file:///dir/child.txt"), iostream.FromBytes([]byte("x")), WriteOptions{Create: true}); err != nil {
		t.Fatalf("write child: %v", err)
	}

	if err := s.Delete(ctx, dir, DeleteOptions{}); err == nil {
		t.Fatal("expected an error deleting a non-empty directory without Recursive")
	}
	if err := s.Delete(ctx, dir, DeleteOptions{Recursive: true}); err != nil {
		t.Fatalf("recursive delete: %v", err)
	}
	if s.Exists(ctx, dir) {
		t.Fatal("directory should be gone after recursive delete")
	}
}

// invariant: every completed write-shaped operation is reported on
// OnDidRunOperation exactly once.
func TestOnDidRunOperation_FiresOnWrite(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	events := make(chan OperationEvent, 4)
	s.OnDidRunOperation(func(ev OperationEvent) { events <- ev })

	if _, err := s.CreateFile(ctx, mustURI(t, "file:///x.txt"), iostream.FromBytes([]byte("x")), false); err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != OpCreate {
			t.Fatalf("expected OpCreate, got %v", ev.Kind)
		}
	default:
		t.Fatal("expected an operation event")
	}
}

// invariant: moving a then back to a restores the original content and
// leaves no trace at the intermediate location.
func TestMove_RoundTripRestoresContent(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	a := mustURI(t, "file:///a.txt")
	b := mustURI(t, "file:///b.txt")

	if _, err := s.WriteFile(ctx, a, iostream.FromBytes([]byte("original")), WriteOptions{Create: true}); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if _, err := s.Move(ctx, a, b, MoveOptions{}); err != nil {
		t.Fatalf("move a->b: %v", err)
	}
	if _, err := s.Move(ctx, b, a, MoveOptions{}); err != nil {
		t.Fatalf("move b->a: %v", err)
	}

	if s.Exists(ctx, b) {
		t.Fatal("b should not exist after moving back to a")
	}
	data, _, err := s.ReadFile(ctx, a, ReadOptions{})
	if err != nil {
		t.Fatalf("read a: %v", err)
	}
	if string(data) != "original" {
		t.Fatalf("got %q", data)
	}
}

// invariant: moving a resource onto itself is a no-op that still returns
// the current stat rather than erroring or touching content.
func TestMove_SelfMoveIsNoOp(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	u := mustURI(t, "file:///self.txt")

	st, err := s.WriteFile(ctx, u, iostream.FromBytes([]byte("stays put")), WriteOptions{Create: true})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	result, err := s.Move(ctx, u, u, MoveOptions{})
	if err != nil {
		t.Fatalf("self-move: %v", err)
	}
	if result.Etag != st.Etag {
		t.Fatalf("self-move changed the etag: %s != %s", st.Etag, result.Etag)
	}

	data, _, err := s.ReadFile(ctx, u, ReadOptions{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "stays put" {
		t.Fatalf("got %q", data)
	}
}

// invariant: a read whose Etag matches the resource's current etag fails
// with FILE_NOT_MODIFIED_SINCE instead of transferring bytes.
func TestReadFile_EtagMatchFailsNotModifiedSince(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	u := mustURI(t, "file:///cached.txt")

	st, err := s.WriteFile(ctx, u, iostream.FromBytes([]byte("cacheable")), WriteOptions{Create: true})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	data, readSt, err := s.ReadFile(ctx, u, ReadOptions{Etag: st.Etag})
	if vfserrors.CodeOf(err) != vfserrors.FileNotModifiedSince {
		t.Fatalf("expected FILE_NOT_MODIFIED_SINCE, got %v", err)
	}
	if data != nil {
		t.Fatalf("expected no content on a not-modified response, got %d bytes", len(data))
	}
	if readSt == nil || readSt.Etag != st.Etag {
		t.Fatal("expected the current stat to still be returned alongside the error")
	}

	// A stale etag still reads through normally.
	data, _, err = s.ReadFile(ctx, u, ReadOptions{Etag: "stale-etag"})
	if err != nil {
		t.Fatalf("read with stale etag: %v", err)
	}
	if string(data) != "cacheable" {
		t.Fatalf("got %q", data)
	}
}

// invariant: watch sessions with identical (provider, uri, options) share
// one backing provider watch; the provider watch opens on the first
// subscriber and closes only once the last subscriber disposes.
func TestWatch_RefcountsSharedSession(t *testing.T) {
	s, reg := newTestService(t)
	u := mustURI(t, "file:///watched")

	counter := newWatchCountingProvider(memory.New())
	if _, err := reg.Register("counted", counter); err != nil {
		t.Fatalf("register: %v", err)
	}
	u = mustURI(t, "counted:///watched")

	d1 := s.Watch(u, WatchOptions{})
	d2 := s.Watch(u, WatchOptions{})
	d3 := s.Watch(u, WatchOptions{})

	waitForCondition(t, func() bool { return counter.opens() == 1 })
	if counter.closes() != 0 {
		t.Fatalf("expected no closes yet, got %d", counter.closes())
	}

	d1.Dispose()
	d2.Dispose()
	if counter.closes() != 0 {
		t.Fatalf("expected the shared watch to survive while one subscriber remains, got %d closes", counter.closes())
	}

	d3.Dispose()
	waitForCondition(t, func() bool { return counter.closes() == 1 })
	if counter.opens() != 1 {
		t.Fatalf("expected exactly one provider-level watch to have opened, got %d", counter.opens())
	}
}

// invariant: reading past an existing random-access resource's end returns
// a truncated suffix rather than padding with zero bytes or erroring.
func TestReadAllRandomAccess_TruncatesAtEOF(t *testing.T) {
	ctx := context.Background()
	p := memory.New()
	u := mustURI(t, "file:///chunked.bin")

	ra, ok := provider.HasRandomAccess(p)
	if !ok {
		t.Fatal("memory provider should support random access")
	}
	h, err := ra.Open(ctx, u, provider.OpenOptions{Create: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := ra.Write(ctx, h, 0, []byte("0123456789")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ra.Close(ctx, h); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Declare a size far larger than the real content: readAllRandomAccess
	// must stop at the provider's own io.EOF-equivalent zero-length read
	// rather than returning a size-padded buffer.
	out, err := readAllRandomAccess(ctx, ra, u, 1<<20)
	if err != nil {
		t.Fatalf("readAllRandomAccess: %v", err)
	}
	if string(out) != "0123456789" {
		t.Fatalf("expected the truncated suffix %q, got %q", "0123456789", out)
	}
}

// caseInsensitiveProvider wraps a memory provider and reports
// PathCaseSensitive unset, so FileService treats a pure case change on one
// path as the same resource.
type caseInsensitiveProvider struct {
	*memory.Provider
}

func (p *caseInsensitiveProvider) Capabilities() capability.Bits {
	return p.Provider.Capabilities() &^ capability.PathCaseSensitive
}

// invariant: on a case-insensitive provider, moving a path onto a
// case-only variant of itself still performs the rename (the new casing
// sticks), while copying onto a case-only variant is a hard error, since
// copy never collapses two distinct-looking paths into one resource.
func TestMove_CaseOnlyChangeRenames_CopyHardErrors(t *testing.T) {
	reg := provider.NewRegistry()
	p := &caseInsensitiveProvider{Provider: memory.New()}
	if _, err := reg.Register("file", p); err != nil {
		t.Fatalf("register: %v", err)
	}
	s := NewFileService(reg, nil)
	ctx := context.Background()

	lower := mustURI(t, "file:///report.txt")
	upper := mustURI(t, "file:///REPORT.txt")

	if _, err := s.WriteFile(ctx, lower, iostream.FromBytes([]byte("content")), WriteOptions{Create: true}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := s.Move(ctx, lower, upper, MoveOptions{}); err != nil {
		t.Fatalf("case-only move: %v", err)
	}
	if s.Exists(ctx, lower) {
		t.Fatal("the lowercase entry should be gone after the case-only rename")
	}
	data, _, err := s.ReadFile(ctx, upper, ReadOptions{})
	if err != nil {
		t.Fatalf("read after move: %v", err)
	}
	if string(data) != "content" {
		t.Fatalf("got %q", data)
	}

	mixed := mustURI(t, "file:///rePORT.txt")
	if _, err := s.Copy(ctx, upper, mixed, CopyOptions{}); err == nil {
		t.Fatal("case-only copy must be a hard error, not a no-op")
	} else if vfserrors.CodeOf(err) != vfserrors.FileExists {
		t.Fatalf("expected FILE_EXISTS, got %v", err)
	}
	if s.Exists(ctx, mixed) {
		t.Fatal("a rejected case-only copy must not create a second entry")
	}
}

// scenario: a copy between two providers that support different I/O
// shapes still transfers byte-identical content in both directions.
// localfs is random-access-only; memory has both shapes.
func TestCopy_CapabilityCrossing_LocalfsAndMemory(t *testing.T) {
	reg := provider.NewRegistry()
	if _, err := reg.Register("disk", localfs.New(t.TempDir())); err != nil {
		t.Fatalf("register disk: %v", err)
	}
	if _, err := reg.Register("mem", memory.New()); err != nil {
		t.Fatalf("register mem: %v", err)
	}
	s := NewFileService(reg, nil)
	ctx := context.Background()

	onDisk := mustURI(t, "disk:///report.txt")
	inMemory := mustURI(t, "mem:///copy.txt")

	if _, err := s.WriteFile(ctx, onDisk, iostream.FromBytes([]byte("cross-shape payload")), WriteOptions{Create: true}); err != nil {
		t.Fatalf("write to disk: %v", err)
	}

	if _, err := s.Copy(ctx, onDisk, inMemory, CopyOptions{}); err != nil {
		t.Fatalf("disk->memory copy: %v", err)
	}
	data, _, err := s.ReadFile(ctx, inMemory, ReadOptions{})
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(data) != "cross-shape payload" {
		t.Fatalf("got %q", data)
	}

	backOnDisk := mustURI(t, "disk:///roundtrip.txt")
	if _, err := s.Copy(ctx, inMemory, backOnDisk, CopyOptions{}); err != nil {
		t.Fatalf("memory->disk copy: %v", err)
	}
	data, _, err = s.ReadFile(ctx, backOnDisk, ReadOptions{})
	if err != nil {
		t.Fatalf("read round trip: %v", err)
	}
	if string(data) != "cross-shape payload" {
		t.Fatalf("got %q", data)
	}
}

// invariant: concurrent writes to the same resource are serialized by the
// write queue: every one of them succeeds and the final content is one
// whole write, not an interleaving.
func TestWriteQueue_SerializesConcurrentWrites(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	u := mustURI(t, "file:///contended.txt")

	if _, err := s.WriteFile(ctx, u, iostream.FromBytes([]byte("v0")), WriteOptions{Create: true}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := s.WriteFile(ctx, u, iostream.FromBytes([]byte("v")), WriteOptions{})
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent write failed: %v", err)
		}
	}

	data, _, err := s.ReadFile(ctx, u, ReadOptions{})
	if err != nil {
		t.Fatalf("final read: %v", err)
	}
	if string(data) != "v" {
		t.Fatalf("expected the last write to stick, got %q", data)
	}
}
