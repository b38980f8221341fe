package vfs

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

// folderCopyConcurrency bounds how many entries of one directory level are
// copied concurrently, so a folder with thousands of children doesn't spawn
// thousands of goroutines at once.
const folderCopyConcurrency = 16

// MoveOptions and CopyOptions control move/copy.
type MoveOptions struct {
	Overwrite bool
}

type CopyOptions struct {
	Overwrite bool
}

// Move relocates src to dst, within one provider via Rename and across
// providers via copy-then-delete.
func (s *FileService) Move(ctx context.Context, src, dst uri.URI, opts MoveOptions) (*provider.FileStat, error) {
	return s.doMoveCopy(ctx, src, dst, opts.Overwrite, true)
}

// Copy duplicates src to dst, using the provider's native Copy when the
// FileFolderCopy capability is present and src/dst share a provider,
// otherwise falling back to the generic recursive read/write copy.
func (s *FileService) Copy(ctx context.Context, src, dst uri.URI, opts CopyOptions) (*provider.FileStat, error) {
	return s.doMoveCopy(ctx, src, dst, opts.Overwrite, false)
}

// doMoveCopy is the shared core behind Move and Copy. isMove selects rename-or-copy-then-delete
// semantics once the content transfer step has been decided.
func (s *FileService) doMoveCopy(ctx context.Context, src, dst uri.URI, overwrite bool, isMove bool) (result *provider.FileStat, err error) {
	op := "copy"
	kind := OpCopy
	if isMove {
		op = "move"
		kind = OpMove
	}

	if err := s.runBefore(ctx, kind, src); err != nil {
		s.metrics.ObserveOperation(op, src.Scheme, err)
		return nil, err
	}
	defer func() { s.runAfter(ctx, kind, src, err) }()

	srcProvider, werr := s.registry.WithProvider(ctx, src)
	if werr != nil {
		s.metrics.ObserveOperation(op, src.Scheme, werr)
		return nil, werr
	}
	dstProvider, derr := s.registry.WithProvider(ctx, dst)
	if derr != nil {
		s.metrics.ObserveOperation(op, dst.Scheme, derr)
		return nil, derr
	}

	caseSensitive := s.caseSensitive(src)
	sameResource := src.Equal(dst, caseSensitive)
	exactPath := src.Path == dst.Path

	if sameResource && exactPath {
		// True self-move/self-copy: a no-op that still returns the current
		// stat.
		st, err := srcProvider.Stat(ctx, src)
		if err != nil {
			wrapped := wrapStatErr(err, op, src.String())
			s.metrics.ObserveOperation(op, src.Scheme, wrapped)
			return nil, wrapped
		}
		st = st.WithComputedETag()
		s.metrics.ObserveOperation(op, src.Scheme, nil)
		return &st, nil
	}
	if sameResource && !exactPath && !isMove {
		// A pure case change on a case-insensitive provider names the same
		// resource as dst: copying onto it is a conflict, not a no-op.
		// Only a move may rename in place this way.
		wrapped := vfserrors.New(vfserrors.FileExists, op, "case-only path is the same resource as the destination").WithSource(src.String()).WithTarget(dst.String())
		s.metrics.ObserveOperation(op, dst.Scheme, wrapped)
		return nil, wrapped
	}
	// sameResource && !exactPath && isMove falls through to the rename
	// logic below, which performs the case-only rename.

	srcStat, err := srcProvider.Stat(ctx, src)
	if err != nil {
		wrapped := wrapStatErr(err, op, src.String())
		s.metrics.ObserveOperation(op, src.Scheme, wrapped)
		return nil, wrapped
	}

	if _, err := dstProvider.Stat(ctx, dst); err == nil && !overwrite {
		wrapped := vfserrors.New(vfserrors.FileMoveConflict, op, "").WithSource(src.String()).WithTarget(dst.String())
		s.metrics.ObserveOperation(op, dst.Scheme, wrapped)
		return nil, wrapped
	}

	sameProvider := src.Scheme == dst.Scheme && src.Authority == dst.Authority

	var opErr error
	if isMove && sameProvider {
		opErr = srcProvider.Rename(ctx, src, dst, provider.RenameOptions{Overwrite: overwrite})
	} else if sameProvider {
		opErr = s.doCopySameProvider(ctx, srcProvider, src, dst, srcStat, overwrite)
	} else {
		opErr = s.doCopyCrossProvider(ctx, srcProvider, dstProvider, src, dst, srcStat, overwrite)
		if opErr == nil && isMove {
			opErr = s.deleteTree(ctx, srcProvider, src, srcStat)
		}
	}
	if opErr != nil {
		wrapped := vfserrors.Wrap(opErr, vfserrors.Unknown, op).WithSource(src.String()).WithTarget(dst.String())
		s.metrics.ObserveOperation(op, dst.Scheme, wrapped)
		return nil, wrapped
	}

	st, err := dstProvider.Stat(ctx, dst)
	if err != nil {
		wrapped := vfserrors.Wrap(err, vfserrors.Unknown, op).WithSource(src.String()).WithTarget(dst.String())
		s.metrics.ObserveOperation(op, dst.Scheme, wrapped)
		return nil, wrapped
	}
	st = st.WithComputedETag()

	s.metrics.ObserveOperation(op, dst.Scheme, nil)
	s.emitOperation(OperationEvent{Kind: kind, Resource: src, Target: dst, Stat: &st})
	return &st, nil
}

// doCopySameProvider uses the provider's native Copy when available,
// otherwise the generic recursive file/folder copy.
func (s *FileService) doCopySameProvider(ctx context.Context, p provider.Provider, src, dst uri.URI, srcStat provider.FileStat, overwrite bool) error {
	if cp, ok := provider.HasFolderCopy(p); ok {
		return cp.Copy(ctx, src, dst, provider.CopyOptions{Overwrite: overwrite})
	}
	return s.doCopyCrossProvider(ctx, p, p, src, dst, srcStat, overwrite)
}

// doCopyCrossProvider performs the generic copy, dispatching to a file or
// folder copy depending on srcStat, and works equally for same-provider
// fallback and true cross-provider copies.
func (s *FileService) doCopyCrossProvider(ctx context.Context, srcP, dstP provider.Provider, src, dst uri.URI, srcStat provider.FileStat, overwrite bool) error {
	if srcStat.IsDirectory {
		return s.doCopyFolder(ctx, srcP, dstP, src, dst, overwrite)
	}
	return s.doCopyFile(ctx, srcP, dstP, src, dst, overwrite)
}

// doCopyFile transfers one file's content, picking whichever combination
// of whole-file and random-access reads/writes the two providers support.
func (s *FileService) doCopyFile(ctx context.Context, srcP, dstP provider.Provider, src, dst uri.URI, overwrite bool) error {
	if srcRW, ok := provider.HasReadWrite(srcP); ok {
		data, err := srcRW.ReadFile(ctx, src)
		if err != nil {
			return err
		}
		if dstRW, ok := provider.HasReadWrite(dstP); ok {
			return dstRW.WriteFile(ctx, dst, data, provider.WriteFileOptions{Create: true, Overwrite: overwrite})
		}
		return writeAllRandomAccess(ctx, dstP, dst, data, overwrite)
	}

	srcRA, ok := provider.HasRandomAccess(srcP)
	if !ok {
		return vfserrors.New(vfserrors.Unknown, "copy", "source provider supports no I/O shape").WithSource(src.String())
	}
	srcStat, err := srcP.Stat(ctx, src)
	if err != nil {
		return err
	}
	data, err := readAllRandomAccess(ctx, srcRA, src, int64(srcStat.Size))
	if err != nil {
		return err
	}
	if dstRW, ok := provider.HasReadWrite(dstP); ok {
		return dstRW.WriteFile(ctx, dst, data, provider.WriteFileOptions{Create: true, Overwrite: overwrite})
	}
	return writeAllRandomAccess(ctx, dstP, dst, data, overwrite)
}

// writeAllRandomAccess writes data to dst through a RandomAccessProvider.
func writeAllRandomAccess(ctx context.Context, dstP provider.Provider, dst uri.URI, data []byte, overwrite bool) error {
	dstRA, ok := provider.HasRandomAccess(dstP)
	if !ok {
		return vfserrors.New(vfserrors.Unknown, "copy", "destination provider supports no I/O shape").WithSource(dst.String())
	}
	h, err := dstRA.Open(ctx, dst, provider.OpenOptions{Create: true})
	if err != nil {
		return err
	}
	defer dstRA.Close(ctx, h)
	_, err = dstRA.Write(ctx, h, 0, data)
	return err
}

// doCopyFolder recreates src's directory tree under dst, copying every
// child in parallel.
func (s *FileService) doCopyFolder(ctx context.Context, srcP, dstP provider.Provider, src, dst uri.URI, overwrite bool) error {
	if err := dstP.Mkdir(ctx, dst); err != nil && vfserrors.CodeOf(err) != vfserrors.FileExists {
		if _, statErr := dstP.Stat(ctx, dst); statErr != nil {
			return err
		}
	}

	entries, err := srcP.ReadDir(ctx, src)
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(folderCopyConcurrency)

	for _, entry := range entries {
		entry := entry
		eg.Go(func() error {
			childSrc := src.Join(entry.Name)
			childDst := dst.Join(entry.Name)
			if entry.Type == provider.FileTypeDirectory {
				return s.doCopyFolder(egCtx, srcP, dstP, childSrc, childDst, overwrite)
			}
			return s.doCopyFile(egCtx, srcP, dstP, childSrc, childDst, overwrite)
		})
	}
	return eg.Wait()
}

// deleteTree removes src after a successful cross-provider move, using
// Recursive when srcStat is a directory.
func (s *FileService) deleteTree(ctx context.Context, p provider.Provider, src uri.URI, srcStat provider.FileStat) error {
	return p.Delete(ctx, src, provider.DeleteOptions{
		Recursive: srcStat.IsDirectory,
		UseTrash:  false,
	})
}
