package vfs

import (
	"context"
	"io"

	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/iostream"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

// WriteOptions controls writeFile/createFile.
type WriteOptions struct {
	Create    bool
	Overwrite bool

	// Etag is the caller's view of the resource's etag at the moment it
	// read the content it is now writing back. Dirty-write detection only
	// engages when both Etag and Mtime are set: Etag alone (with
	// provider.ETagDisabled excepted) is not enough to identify a stale
	// write.
	Etag string

	// Mtime is the caller's view of the resource's last-modified time at
	// the moment it read the content it is now writing back. Paired with
	// Etag to detect a dirty write: see checkDirtyWrite.
	Mtime int64
}

// WriteFile writes data to u, dispatching to whichever I/O shape the
// provider supports and serializing with any other write in flight for the
// same resource through the write queue.
func (s *FileService) WriteFile(ctx context.Context, u uri.URI, src iostream.WriteSource, opts WriteOptions) (*provider.FileStat, error) {
	kind := OpWrite
	if opts.Create {
		kind = OpCreate
	}
	if err := s.runBefore(ctx, kind, u); err != nil {
		s.metrics.ObserveOperation("writeFile", u.Scheme, err)
		return nil, err
	}

	p, err := s.registry.WithProvider(ctx, u)
	if err != nil {
		s.metrics.ObserveOperation("writeFile", u.Scheme, err)
		s.runAfter(ctx, kind, u, err)
		return nil, err
	}

	key := queueKey(p, u)
	var result *provider.FileStat
	err = s.queue.enqueue(ctx, key, func(ctx context.Context) error {
		st, werr := s.doWriteFile(ctx, p, u, src, opts)
		result = st
		return werr
	})
	s.runAfter(ctx, kind, u, err)
	if err != nil {
		s.metrics.ObserveOperation("writeFile", u.Scheme, err)
		return nil, err
	}

	s.metrics.ObserveOperation("writeFile", u.Scheme, nil)
	s.emitOperation(OperationEvent{Kind: kind, Resource: u, Stat: result})
	return result, nil
}

// CreateFile is WriteFile with Create forced true: a distinct entry point
// that fails with FILE_EXISTS unless Overwrite is also set, rather than
// silently updating an existing file.
func (s *FileService) CreateFile(ctx context.Context, u uri.URI, src iostream.WriteSource, overwrite bool) (*provider.FileStat, error) {
	return s.WriteFile(ctx, u, src, WriteOptions{Create: true, Overwrite: overwrite})
}

// doWriteFile runs under the per-resource write-queue lock for u.
func (s *FileService) doWriteFile(ctx context.Context, p provider.Provider, u uri.URI, src iostream.WriteSource, opts WriteOptions) (*provider.FileStat, error) {
	if p.Capabilities().Has(capability.Readonly) {
		return nil, vfserrors.New(vfserrors.FileReadOnly, "writeFile", "").WithSource(u.String())
	}

	existing, statErr := p.Stat(ctx, u)
	exists := statErr == nil
	if exists {
		if existing.IsDirectory {
			return nil, vfserrors.New(vfserrors.FileIsDirectory, "writeFile", "").WithSource(u.String())
		}
		if err := s.checkDirtyWrite(u, existing, opts); err != nil {
			return nil, err
		}
	}
	if opts.Create && exists && !opts.Overwrite {
		return nil, vfserrors.New(vfserrors.FileExists, "writeFile", "").WithSource(u.String())
	}
	if !exists {
		// Create any missing parent directories, root-first.
		for _, anc := range ancestorChain(u.Parent()) {
			if err := s.mkdirOne(ctx, p, anc); err != nil {
				return nil, vfserrors.Wrap(err, vfserrors.CodeOf(err), "writeFile").WithSource(u.String())
			}
		}
	}

	if err := s.dispatchWrite(ctx, p, u, src, opts); err != nil {
		return nil, vfserrors.Wrap(err, vfserrors.Unknown, "writeFile").WithSource(u.String())
	}

	st, err := p.Stat(ctx, u)
	if err != nil {
		return nil, vfserrors.Wrap(err, vfserrors.Unknown, "writeFile").WithSource(u.String())
	}
	st = st.WithComputedETag()
	return &st, nil
}

// checkDirtyWrite rejects a write when the caller's stale view of the
// resource no longer matches what's on disk. The guard only engages when
// the caller supplies both Mtime and Etag: Mtime identifies which version
// the caller last saw, and Etag is checked against what that version would
// have produced (ComputeETag of the caller's mtime and the resource's
// current size), catching a caller writing back content it read before a
// newer write landed.
func (s *FileService) checkDirtyWrite(u uri.URI, current provider.FileStat, opts WriteOptions) error {
	if opts.Mtime == 0 || opts.Etag == "" || opts.Etag == provider.ETagDisabled {
		return nil
	}
	if current.Mtime <= opts.Mtime {
		return nil
	}
	if opts.Etag != provider.ComputeETag(opts.Mtime, current.Size) {
		return vfserrors.New(vfserrors.FileModifiedSince, "writeFile", "").WithSource(u.String())
	}
	return nil
}

// dispatchWrite picks the I/O shape to write through: whole-file when the
// provider has it, otherwise open/write/close through random access.
func (s *FileService) dispatchWrite(ctx context.Context, p provider.Provider, u uri.URI, src iostream.WriteSource, opts WriteOptions) error {
	if rw, ok := provider.HasReadWrite(p); ok {
		data, err := src.Materialize()
		if err != nil {
			return err
		}
		return rw.WriteFile(ctx, u, data, provider.WriteFileOptions{Create: opts.Create, Overwrite: opts.Overwrite})
	}

	ra, ok := provider.HasRandomAccess(p)
	if !ok {
		return vfserrors.New(vfserrors.Unknown, "writeFile", "provider supports no I/O shape").WithSource(u.String())
	}

	h, err := ra.Open(ctx, u, provider.OpenOptions{Create: opts.Create})
	if err != nil {
		return err
	}
	defer ra.Close(ctx, h)

	switch {
	case src.IsBuffer():
		_, err := ra.Write(ctx, h, 0, src.Buffer.Bytes())
		return err
	case src.IsReader():
		return writeFromReader(ctx, ra, h, src.Reader)
	case src.IsStream():
		return writeFromStream(ctx, ra, h, src.Stream)
	default:
		return nil
	}
}

// writeFromReader pumps a pull-readable source into a random-access
// provider chunk-by-chunk, avoiding a full Materialize allocation when the
// provider already accepts chunked writes.
func writeFromReader(ctx context.Context, ra provider.RandomAccessProvider, h provider.Handle, r io.Reader) error {
	buf := make([]byte, readChunkSize)
	var pos int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := ra.Write(ctx, h, pos, buf[:n]); werr != nil {
				return werr
			}
			pos += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return rerr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// writeFromStream pumps a push-stream source into a random-access provider,
// pausing the stream for the duration of each write so the producer never
// outruns the sink.
func writeFromStream(ctx context.Context, ra provider.RandomAccessProvider, h provider.Handle, stream *iostream.Stream) error {
	errCh := make(chan error, 1)
	doneCh := make(chan struct{}, 1)
	var pos int64

	stream.OnData(func(chunk []byte) {
		stream.Pause()
		if _, err := ra.Write(ctx, h, pos, chunk); err != nil {
			select {
			case errCh <- err:
			default:
			}
			return
		}
		pos += int64(len(chunk))
		stream.Resume()
	})
	stream.OnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})
	stream.OnEnd(func() {
		doneCh <- struct{}{}
	})

	select {
	case err := <-errCh:
		return err
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
