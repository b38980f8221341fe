package vfs

import (
	"context"
	"io"

	"github.com/hollowfs/vfscore/pkg/iostream"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

// readChunkSize is the buffer size used when reading through a
// RandomAccessProvider, whole-file or streamed.
const readChunkSize = 64 * 1024

// ReadOptions controls read preconditions.
type ReadOptions struct {
	// Etag, if non-empty and not provider.ETagDisabled, causes ReadFile and
	// ReadFileStream to short-circuit with FILE_NOT_MODIFIED_SINCE when it
	// matches the resource's current etag instead of performing the read.
	Etag string
}

// ReadFile reads u's full content. Dispatches to the
// provider's whole-file ReadFile when available, otherwise assembles the
// content from chunked RandomAccessProvider reads.
func (s *FileService) ReadFile(ctx context.Context, u uri.URI, opts ReadOptions) ([]byte, *provider.FileStat, error) {
	p, err := s.registry.WithProvider(ctx, u)
	if err != nil {
		s.metrics.ObserveOperation("readFile", u.Scheme, err)
		return nil, nil, err
	}

	st, err := p.Stat(ctx, u)
	if err != nil {
		wrapped := wrapStatErr(err, "readFile", u.String())
		s.metrics.ObserveOperation("readFile", u.Scheme, wrapped)
		return nil, nil, wrapped
	}
	if st.IsDirectory {
		wrapped := vfserrors.New(vfserrors.FileIsDirectory, "readFile", "").WithSource(u.String())
		s.metrics.ObserveOperation("readFile", u.Scheme, wrapped)
		return nil, nil, wrapped
	}
	st = st.WithComputedETag()

	if opts.Etag != "" && opts.Etag != provider.ETagDisabled && opts.Etag == st.Etag {
		wrapped := vfserrors.New(vfserrors.FileNotModifiedSince, "readFile", "").WithSource(u.String())
		s.metrics.ObserveOperation("readFile", u.Scheme, wrapped)
		return nil, &st, wrapped
	}

	var data []byte
	if rw, ok := provider.HasReadWrite(p); ok {
		data, err = rw.ReadFile(ctx, u)
	} else if ra, ok := provider.HasRandomAccess(p); ok {
		data, err = readAllRandomAccess(ctx, ra, u, int64(st.Size))
	} else {
		err = vfserrors.New(vfserrors.Unknown, "readFile", "provider supports no I/O shape").WithSource(u.String())
	}
	if err != nil {
		wrapped := vfserrors.Wrap(err, vfserrors.Unknown, "readFile").WithSource(u.String())
		s.metrics.ObserveOperation("readFile", u.Scheme, wrapped)
		return nil, &st, wrapped
	}

	s.metrics.ObserveOperation("readFile", u.Scheme, nil)
	return data, &st, nil
}

// ReadFileStream streams u's content through a push-stream instead of
// returning it as one buffer. The returned stream emits
// chunks from a background goroutine that respects Pause/Resume and ctx
// cancellation.
func (s *FileService) ReadFileStream(ctx context.Context, u uri.URI, opts ReadOptions) (*iostream.Stream, *provider.FileStat, error) {
	p, err := s.registry.WithProvider(ctx, u)
	if err != nil {
		s.metrics.ObserveOperation("readFileStream", u.Scheme, err)
		return nil, nil, err
	}
	st, err := p.Stat(ctx, u)
	if err != nil {
		wrapped := wrapStatErr(err, "readFileStream", u.String())
		s.metrics.ObserveOperation("readFileStream", u.Scheme, wrapped)
		return nil, nil, wrapped
	}
	if st.IsDirectory {
		wrapped := vfserrors.New(vfserrors.FileIsDirectory, "readFileStream", "").WithSource(u.String())
		s.metrics.ObserveOperation("readFileStream", u.Scheme, wrapped)
		return nil, nil, wrapped
	}
	st = st.WithComputedETag()

	if opts.Etag != "" && opts.Etag != provider.ETagDisabled && opts.Etag == st.Etag {
		wrapped := vfserrors.New(vfserrors.FileNotModifiedSince, "readFileStream", "").WithSource(u.String())
		s.metrics.ObserveOperation("readFileStream", u.Scheme, wrapped)
		return nil, &st, wrapped
	}

	stream := iostream.NewStream()
	go s.pumpStream(ctx, p, u, st, stream)

	s.metrics.ObserveOperation("readFileStream", u.Scheme, nil)
	return stream, &st, nil
}

// pumpStream drives stream from whichever I/O shape p supports, running on
// its own goroutine for the lifetime of the read.
func (s *FileService) pumpStream(ctx context.Context, p provider.Provider, u uri.URI, st provider.FileStat, stream *iostream.Stream) {
	if rw, ok := provider.HasReadWrite(p); ok {
		data, err := rw.ReadFile(ctx, u)
		if err != nil {
			stream.Fail(err)
			return
		}
		if err := stream.Emit(ctx, data); err != nil {
			return
		}
		stream.End()
		return
	}

	ra, ok := provider.HasRandomAccess(p)
	if !ok {
		stream.Fail(vfserrors.New(vfserrors.Unknown, "readFileStream", "provider supports no I/O shape").WithSource(u.String()))
		return
	}

	h, err := ra.Open(ctx, u, provider.OpenOptions{})
	if err != nil {
		stream.Fail(err)
		return
	}
	defer ra.Close(ctx, h)

	buf := make([]byte, readChunkSize)
	var pos int64
	for {
		n, err := ra.Read(ctx, h, pos, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if emitErr := stream.Emit(ctx, chunk); emitErr != nil {
				return
			}
			pos += int64(n)
		}
		if err != nil {
			if err != io.EOF {
				stream.Fail(err)
				return
			}
			stream.End()
			return
		}
		if n == 0 {
			stream.End()
			return
		}
	}
}

// readAllRandomAccess assembles a whole-file read from chunked
// RandomAccessProvider calls, used when a provider has no whole-file
// ReadFile.
func readAllRandomAccess(ctx context.Context, ra provider.RandomAccessProvider, u uri.URI, size int64) ([]byte, error) {
	h, err := ra.Open(ctx, u, provider.OpenOptions{})
	if err != nil {
		return nil, err
	}
	defer ra.Close(ctx, h)

	out := make([]byte, 0, size)
	buf := make([]byte, readChunkSize)
	var pos int64
	for {
		n, err := ra.Read(ctx, h, pos, buf)
		if n > 0 {
			out = append(out, buf[:n]...)
			pos += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		if n == 0 {
			return out, nil
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
	}
}
