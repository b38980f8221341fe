// Package iostream implements the byte-container and streaming primitives
// a virtual file system needs beyond what io already offers: an owned
// buffer with lazy readable access, and a push-readable stream with
// pause/resume/error/end semantics.
//
// Go already has an idiomatic "pull-readable": io.Reader. This package
// therefore only adds what the standard library doesn't: an owned buffer
// type and an event-driven push stream, rather than reinventing io.Reader.
package iostream

import (
	"context"
	"sync"
)

// Buffer is an owned, immutable byte container. Reader() is lazy: no
// *bytes.Reader is allocated until a caller actually asks to read, so a
// Buffer that is only ever inspected via Bytes() never allocates one.
type Buffer struct {
	data []byte
}

// NewBuffer wraps data. The caller must not mutate data after this call.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the underlying slice without copying.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the buffer size in bytes.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Stream is a push-readable byte stream: the producer calls Emit/Fail/End,
// a consumer registers OnData/OnError/OnEnd and may Pause/Resume to apply
// manual backpressure.
//
// Emit blocks the producer while the stream is paused, which is how
// backpressure becomes a blocking call rather than a buffered channel:
// a consumer feeding a downstream sink pauses the stream for the duration
// of each downstream write and resumes it once that write returns.
type Stream struct {
	mu       sync.Mutex
	onData   func([]byte)
	onError  func(error)
	onEnd    func()
	paused   bool
	resumeCh chan struct{}
}

// NewStream creates an unpaused stream with no registered handlers. Chunks
// emitted before a handler is registered are dropped, matching a Readable
// whose "data" listener hasn't been attached yet.
func NewStream() *Stream {
	return &Stream{resumeCh: make(chan struct{})}
}

// OnData registers the handler invoked by Emit for each chunk.
func (s *Stream) OnData(f func([]byte)) {
	s.mu.Lock()
	s.onData = f
	s.mu.Unlock()
}

// OnError registers the handler invoked by Fail.
func (s *Stream) OnError(f func(error)) {
	s.mu.Lock()
	s.onError = f
	s.mu.Unlock()
}

// OnEnd registers the handler invoked by End.
func (s *Stream) OnEnd(f func()) {
	s.mu.Lock()
	s.onEnd = f
	s.mu.Unlock()
}

// Pause suspends delivery: the next Emit call blocks until Resume.
func (s *Stream) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume releases any Emit currently blocked on this stream.
func (s *Stream) Resume() {
	s.mu.Lock()
	if s.paused {
		s.paused = false
		close(s.resumeCh)
		s.resumeCh = make(chan struct{})
	}
	s.mu.Unlock()
}

// Emit delivers chunk to the registered data handler, blocking while the
// stream is paused. Returns ctx.Err() if ctx is cancelled while waiting.
func (s *Stream) Emit(ctx context.Context, chunk []byte) error {
	for {
		s.mu.Lock()
		paused := s.paused
		sig := s.resumeCh
		handler := s.onData
		s.mu.Unlock()

		if !paused {
			if handler != nil {
				handler(chunk)
			}
			return nil
		}
		select {
		case <-sig:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Fail delivers err to the registered error handler, if any.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	h := s.onError
	s.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// End signals that no further chunks will be emitted.
func (s *Stream) End() {
	s.mu.Lock()
	h := s.onEnd
	s.mu.Unlock()
	if h != nil {
		h()
	}
}

// ConsumeWithLimit collects chunks from a push-stream until either limit
// bytes have been gathered or the stream ends.
//
//   - If the stream ends at or before limit bytes, ended is true and data
//     holds the full content; the stream should not be used further.
//   - Otherwise ended is false, data holds exactly limit bytes, and s is
//     left paused with no handlers registered: the caller owns continued
//     consumption and should register fresh handlers and call s.Resume().
func ConsumeWithLimit(ctx context.Context, s *Stream, limit int) (data []byte, ended bool, err error) {
	type result struct {
		data  []byte
		ended bool
		err   error
	}
	done := make(chan result, 1)
	var buf []byte
	var finished bool

	s.OnData(func(chunk []byte) {
		if finished {
			return
		}
		buf = append(buf, chunk...)
		if len(buf) >= limit {
			finished = true
			s.Pause()
			s.OnData(nil)
			trimmed := buf[:limit]
			done <- result{data: trimmed, ended: false}
		}
	})
	s.OnError(func(e error) {
		if finished {
			return
		}
		finished = true
		done <- result{err: e}
	})
	s.OnEnd(func() {
		if finished {
			return
		}
		finished = true
		done <- result{data: buf, ended: true}
	})

	select {
	case r := <-done:
		return r.data, r.ended, r.err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
