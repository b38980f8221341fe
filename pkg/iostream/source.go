package iostream

import "io"

// WriteSource is the tagged union of the three shapes writeFile accepts:
// an owned buffer, a pull-readable, or a push-stream. Exactly one field
// is non-nil.
type WriteSource struct {
	Buffer *Buffer
	Reader io.Reader
	Stream *Stream
}

// FromBytes wraps a byte slice as a buffer source.
func FromBytes(b []byte) WriteSource { return WriteSource{Buffer: NewBuffer(b)} }

// FromReader wraps a pull-readable source.
func FromReader(r io.Reader) WriteSource { return WriteSource{Reader: r} }

// FromStream wraps a push-stream source.
func FromStream(s *Stream) WriteSource { return WriteSource{Stream: s} }

// IsBuffer, IsReader and IsStream report the active union member.
func (w WriteSource) IsBuffer() bool { return w.Buffer != nil }
func (w WriteSource) IsReader() bool { return w.Reader != nil }
func (w WriteSource) IsStream() bool { return w.Stream != nil }

// Materialize consumes the source fully into one owned buffer, regardless
// of which shape it started as. This is what FileService's writeFile does
// before handing bytes to an unbuffered (whole-file) provider sink.
func (w WriteSource) Materialize() ([]byte, error) {
	switch {
	case w.Buffer != nil:
		return w.Buffer.Bytes(), nil
	case w.Reader != nil:
		return io.ReadAll(w.Reader)
	case w.Stream != nil:
		var out []byte
		errCh := make(chan error, 1)
		doneCh := make(chan struct{}, 1)
		w.Stream.OnData(func(chunk []byte) { out = append(out, chunk...) })
		w.Stream.OnError(func(err error) { errCh <- err })
		w.Stream.OnEnd(func() { doneCh <- struct{}{} })
		select {
		case err := <-errCh:
			return nil, err
		case <-doneCh:
			return out, nil
		}
	default:
		return nil, nil
	}
}
