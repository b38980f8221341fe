package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hollowfs/vfscore/internal/logger"
	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

// Dialer opens (or reopens) the transport connection a Client speaks the
// wire protocol over. Passed a func rather than a single connection so the
// client can reconnect after a drop.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// defaultCapabilities is what a Client reports before its first
// getCapabilities round trip completes.
const defaultCapabilities = capability.FileReadWrite | capability.FileOpenReadWriteClose | capability.FileFolderCopy

// Client implements provider.Provider by forwarding every call to a remote
// Server over the wire protocol, reconnecting via dial and re-issuing every
// active watch when the connection drops and is reopened.
type Client struct {
	dial Dialer

	mu       sync.Mutex
	conn     io.ReadWriteCloser
	writer   *bufio.Writer
	closed   bool
	connGen  int

	nextID  uint64
	pending map[uint64]chan Response

	caps     capability.Bits
	fileSubs *provider.Emitter[[]provider.ChangeEvent]
	capSubs  *provider.Emitter[capability.Bits]

	watchMu  sync.Mutex
	watchers map[string]activeWatch
}

type activeWatch struct {
	u    uri.URI
	opts provider.WatchOptions
}

// NewClient creates a Client that dials lazily on first use.
func NewClient(dial Dialer) *Client {
	return &Client{
		dial:     dial,
		pending:  map[uint64]chan Response{},
		caps:     defaultCapabilities,
		fileSubs: provider.NewEmitter[[]provider.ChangeEvent](),
		capSubs:  provider.NewEmitter[capability.Bits](),
		watchers: map[string]activeWatch{},
	}
}

// Connect establishes the initial connection and fetches real capabilities.
// Calling it is optional: the first RPC call connects lazily, but callers
// that want Capabilities() to reflect the server before any other call
// should call Connect first.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.ensureConn(ctx); err != nil {
		return err
	}
	return c.refreshCapabilities(ctx)
}

func (c *Client) ensureConn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil || c.closed {
		if c.closed {
			return fmt.Errorf("remote client: closed")
		}
		return nil
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("remote client: dial failed: %w", err)
	}
	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.connGen++
	gen := c.connGen
	go c.readLoop(ctx, conn, gen)
	return nil
}

// readLoop owns one connection's read side for its lifetime; a reconnect
// starts a fresh readLoop with a new gen, so a stale loop from a dropped
// connection never corrupts the new one's pending map.
func (c *Client) readLoop(ctx context.Context, conn io.ReadWriteCloser, gen int) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		var env envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			continue
		}
		if env.ID != nil {
			c.mu.Lock()
			ch, ok := c.pending[*env.ID]
			if ok {
				delete(c.pending, *env.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- Response{ID: *env.ID, Result: env.Result, Error: env.Error}
			}
			continue
		}
		c.handleNotification(env.Method, env.Params)
	}

	c.mu.Lock()
	isCurrent := gen == c.connGen
	if isCurrent {
		c.conn = nil
		c.writer = nil
	}
	pending := c.pending
	c.pending = map[uint64]chan Response{}
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}

	if isCurrent && !c.closedFlag() {
		logger.Warn("remote client: connection lost, will reconnect and re-issue watches on next call")
	}
}

func (c *Client) closedFlag() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) handleNotification(method string, params json.RawMessage) {
	switch method {
	case notifyDidChangeFile:
		var wire []changeEventWire
		if err := json.Unmarshal(params, &wire); err != nil {
			return
		}
		events := make([]provider.ChangeEvent, 0, len(wire))
		for _, w := range wire {
			u, err := uri.Parse(w.Resource)
			if err != nil {
				continue
			}
			events = append(events, provider.ChangeEvent{Resource: u, Type: provider.ChangeType(w.Type)})
		}
		c.fileSubs.Fire(events)
	case notifyDidChangeCapabilities:
		var bits uint32
		if err := json.Unmarshal(params, &bits); err != nil {
			return
		}
		c.mu.Lock()
		c.caps = capability.Bits(bits)
		c.mu.Unlock()
		c.capSubs.Fire(capability.Bits(bits))
	}
}

// call sends req and blocks for its matched Response, reconnecting once and
// re-issuing active watches if the connection was down.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	for attempt := 0; attempt < 2; attempt++ {
		c.mu.Lock()
		wasDisconnected := c.conn == nil
		c.mu.Unlock()

		if err := c.ensureConn(ctx); err != nil {
			return nil, err
		}
		if wasDisconnected {
			c.reissueWatches(ctx)
		}

		resp, err := c.doCall(ctx, method, params)
		if err == nil {
			return resp, nil
		}
		if attempt == 0 {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("remote client: call %s failed after reconnect", method)
}

func (c *Client) doCall(ctx context.Context, method string, params any) (json.RawMessage, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("remote client: not connected")
	}
	id := atomic.AddUint64(&c.nextID, 1)
	ch := make(chan Response, 1)
	c.pending[id] = ch
	w := c.writer
	conn := c.conn
	c.mu.Unlock()

	line, err := json.Marshal(Request{ID: id, Method: method, Params: encoded})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	_, werr := w.Write(line)
	if werr == nil {
		werr = w.WriteByte('\n')
	}
	if werr == nil {
		werr = w.Flush()
	}
	c.mu.Unlock()
	if werr != nil {
		_ = conn.Close()
		return nil, werr
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("remote client: connection closed while waiting for response")
		}
		if resp.Error != nil {
			return nil, fromWireError(resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func fromWireError(we *WireError) error {
	return (&vfserrors.Error{Code: vfserrors.Code(we.Code), Op: we.Op, Source: we.Source, Target: we.Target, Msg: we.Msg})
}

func (c *Client) refreshCapabilities(ctx context.Context) error {
	raw, err := c.call(ctx, methodGetCapabilities, struct{}{})
	if err != nil {
		return err
	}
	var bits uint32
	if err := json.Unmarshal(raw, &bits); err != nil {
		return err
	}
	c.mu.Lock()
	c.caps = capability.Bits(bits)
	c.mu.Unlock()
	return nil
}

func (c *Client) Capabilities() capability.Bits {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

func (c *Client) OnDidChangeFile(f func([]provider.ChangeEvent)) provider.Disposable {
	return c.fileSubs.Subscribe(f)
}

func (c *Client) OnDidChangeCapabilities(f func(capability.Bits)) provider.Disposable {
	return c.capSubs.Subscribe(f)
}

// Shutdown tears down the connection and releases all pending calls. It is
// distinct from Close(ctx, handle), which is the RandomAccessProvider
// per-file-handle close forwarded to the remote server.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) Stat(ctx context.Context, u uri.URI) (provider.FileStat, error) {
	raw, err := c.call(ctx, methodStat, statParams{Path: u.String()})
	if err != nil {
		return provider.FileStat{}, err
	}
	var r statResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return provider.FileStat{}, err
	}
	return provider.FileStat{
		Resource: u, Name: u.Name(), IsFile: r.IsFile, IsDirectory: r.IsDirectory,
		IsSymbolicLink: r.IsSymbolicLink, Mtime: r.Mtime, Size: r.Size, Etag: r.Etag,
	}, nil
}

func (c *Client) ReadDir(ctx context.Context, u uri.URI) ([]provider.DirEntry, error) {
	raw, err := c.call(ctx, methodReadDir, statParams{Path: u.String()})
	if err != nil {
		return nil, err
	}
	var wire []dirEntryWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	entries := make([]provider.DirEntry, len(wire))
	for i, w := range wire {
		entries[i] = provider.DirEntry{Name: w.Name, Type: provider.FileType(w.Type)}
	}
	return entries, nil
}

func (c *Client) Mkdir(ctx context.Context, u uri.URI) error {
	_, err := c.call(ctx, methodMkdir, mkdirParams{Path: u.String()})
	return err
}

func (c *Client) Delete(ctx context.Context, u uri.URI, opts provider.DeleteOptions) error {
	_, err := c.call(ctx, methodDelete, deleteParams{Path: u.String(), Recursive: opts.Recursive, UseTrash: opts.UseTrash})
	return err
}

func (c *Client) Rename(ctx context.Context, src, dst uri.URI, opts provider.RenameOptions) error {
	_, err := c.call(ctx, methodRename, renameParams{Src: src.String(), Dst: dst.String(), Overwrite: opts.Overwrite})
	return err
}

func (c *Client) Copy(ctx context.Context, src, dst uri.URI, opts provider.CopyOptions) error {
	_, err := c.call(ctx, methodCopy, copyParams{Src: src.String(), Dst: dst.String(), Overwrite: opts.Overwrite})
	return err
}

func (c *Client) ReadFile(ctx context.Context, u uri.URI) ([]byte, error) {
	raw, err := c.call(ctx, methodReadFile, readFileParams{Path: u.String()})
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) WriteFile(ctx context.Context, u uri.URI, data []byte, opts provider.WriteFileOptions) error {
	_, err := c.call(ctx, methodWriteFile, writeFileParams{
		Path: u.String(), Bytes: data, Create: opts.Create, Overwrite: opts.Overwrite,
	})
	return err
}

func (c *Client) Open(ctx context.Context, u uri.URI, opts provider.OpenOptions) (provider.Handle, error) {
	raw, err := c.call(ctx, methodOpen, openParams{Path: u.String(), Create: opts.Create})
	if err != nil {
		return 0, err
	}
	var r openResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return 0, err
	}
	return provider.Handle(r.Handle), nil
}

func (c *Client) Close(ctx context.Context, h provider.Handle) error {
	_, err := c.call(ctx, methodClose, closeParams{Handle: uint64(h)})
	return err
}

func (c *Client) Read(ctx context.Context, h provider.Handle, pos int64, buf []byte) (int, error) {
	raw, err := c.call(ctx, methodRead, readParams{Handle: uint64(h), Pos: pos, Length: len(buf)})
	if err != nil {
		return 0, err
	}
	var r readResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return 0, err
	}
	copy(buf, r.Bytes)
	if r.EOF {
		return r.BytesRead, io.EOF
	}
	return r.BytesRead, nil
}

func (c *Client) Write(ctx context.Context, h provider.Handle, pos int64, buf []byte) (int, error) {
	raw, err := c.call(ctx, methodWrite, writeParams{Handle: uint64(h), Pos: pos, Bytes: buf})
	if err != nil {
		return 0, err
	}
	var r writeResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return 0, err
	}
	return r.Written, nil
}

// Watch records (u, opts) under a fresh watcher ID and issues it to the
// server; on reconnect the same record drives re-issuing the watch with
// the same ID so the server-side Disposable is recreated transparently to
// the caller.
func (c *Client) Watch(ctx context.Context, u uri.URI, opts provider.WatchOptions) (provider.Disposable, error) {
	id := fmt.Sprintf("w%d", atomic.AddUint64(&c.nextID, 1))

	c.watchMu.Lock()
	c.watchers[id] = activeWatch{u: u, opts: opts}
	c.watchMu.Unlock()

	if _, err := c.call(ctx, methodWatch, watchParams{
		WatcherID: id, Path: u.String(), Recursive: opts.Recursive, Excludes: opts.Excludes,
	}); err != nil {
		c.watchMu.Lock()
		delete(c.watchers, id)
		c.watchMu.Unlock()
		return nil, err
	}

	return provider.DisposableFunc(func() {
		c.watchMu.Lock()
		delete(c.watchers, id)
		c.watchMu.Unlock()
		_, _ = c.call(context.Background(), methodUnwatch, unwatchParams{WatcherID: id})
	}), nil
}

// reissueWatches re-sends watch for every still-active watcher after a
// reconnect.
func (c *Client) reissueWatches(ctx context.Context) {
	c.watchMu.Lock()
	snapshot := make(map[string]activeWatch, len(c.watchers))
	for id, w := range c.watchers {
		snapshot[id] = w
	}
	c.watchMu.Unlock()

	for id, w := range snapshot {
		if _, err := c.doCall(ctx, methodWatch, watchParams{
			WatcherID: id, Path: w.u.String(), Recursive: w.opts.Recursive, Excludes: w.opts.Excludes,
		}); err != nil {
			logger.Warn("remote client: failed to re-issue watch %s after reconnect: %v", id, err)
		}
	}
}
