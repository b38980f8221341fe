package localfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

func newTestProvider(t *testing.T) (*Provider, string) {
	t.Helper()
	root := t.TempDir()
	return New(root), root
}

func mustURI(t *testing.T, raw string) uri.URI {
	t.Helper()
	u, err := uri.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

// Capabilities never reports the whole-file shape: localfs only implements
// random-access I/O.
func TestCapabilities_NoWholeFileShape(t *testing.T) {
	p, _ := newTestProvider(t)
	if p.Capabilities().Has(capability.FileReadWrite) {
		t.Fatal("localfs should not advertise FileReadWrite")
	}
	if !p.Capabilities().Has(capability.FileOpenReadWriteClose) {
		t.Fatal("localfs should advertise FileOpenReadWriteClose")
	}
}

func TestOpenWriteReadClose_RoundTrips(t *testing.T) {
	p, root := newTestProvider(t)
	ctx := context.Background()
	u := mustURI(t, "file:///doc.txt")

	h, err := p.Open(ctx, u, provider.OpenOptions{Create: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := p.Write(ctx, h, 0, []byte("hello disk")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := p.Close(ctx, h); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "doc.txt")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	h2, err := p.Open(ctx, u, provider.OpenOptions{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p.Close(ctx, h2)

	buf := make([]byte, 32)
	n, err := p.Read(ctx, h2, 0, buf)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello disk" {
		t.Fatalf("got %q", buf[:n])
	}
}

// Stat on a missing path fails with FILE_NOT_FOUND, translated from the
// underlying os.IsNotExist error.
func TestStat_MissingPathTranslatesToFileNotFound(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.Stat(context.Background(), mustURI(t, "file:///nope.txt"))
	if vfserrors.CodeOf(err) != vfserrors.FileNotFound {
		t.Fatalf("expected FILE_NOT_FOUND, got %v", err)
	}
}

func TestMkdirReadDirDelete(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()
	dir := mustURI(t, "file:///sub")

	if err := p.Mkdir(ctx, dir); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	h, err := p.Open(ctx, mustURI(t, "file:///sub/a.txt"), provider.OpenOptions{Create: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	p.Close(ctx, h)

	entries, err := p.ReadDir(ctx, dir)
	if err != nil {
		t.Fatalf("readDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "a.txt" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	if err := p.Delete(ctx, dir, provider.DeleteOptions{}); err == nil {
		t.Fatal("expected non-recursive delete of a non-empty directory to fail")
	}
	if err := p.Delete(ctx, dir, provider.DeleteOptions{Recursive: true}); err != nil {
		t.Fatalf("recursive delete: %v", err)
	}
	if _, err := p.Stat(ctx, dir); vfserrors.CodeOf(err) != vfserrors.FileNotFound {
		t.Fatalf("expected directory to be gone, got %v", err)
	}
}

func TestRename_ConflictWithoutOverwrite(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()
	src := mustURI(t, "file:///src.txt")
	dst := mustURI(t, "file:///dst.txt")

	for _, u := range []uri.URI{src, dst} {
		h, err := p.Open(ctx, u, provider.OpenOptions{Create: true})
		if err != nil {
			t.Fatalf("open %s: %v", u, err)
		}
		p.Close(ctx, h)
	}

	err := p.Rename(ctx, src, dst, provider.RenameOptions{})
	if vfserrors.CodeOf(err) != vfserrors.FileMoveConflict {
		t.Fatalf("expected FILE_MOVE_CONFLICT, got %v", err)
	}

	if err := p.Rename(ctx, src, dst, provider.RenameOptions{Overwrite: true}); err != nil {
		t.Fatalf("rename with overwrite: %v", err)
	}
	if _, err := p.Stat(ctx, src); vfserrors.CodeOf(err) != vfserrors.FileNotFound {
		t.Fatal("expected src to be gone after rename")
	}
}
