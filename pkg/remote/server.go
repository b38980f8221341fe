package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hollowfs/vfscore/internal/logger"
	"github.com/hollowfs/vfscore/pkg/capability"
	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/pkg/vfserrors"
)

// Server wraps one provider.Provider and answers Requests read from a
// connection with Responses, pushing notifyDidChangeFile /
// notifyDidChangeCapabilities as unsolicited Notifications.
type Server struct {
	provider provider.Provider

	mu       sync.Mutex
	watchers map[string]provider.Disposable
}

// NewServer wraps p for remote access.
func NewServer(p provider.Provider) *Server {
	return &Server{provider: p, watchers: map[string]provider.Disposable{}}
}

// Serve reads newline-delimited Request frames from conn, dispatches each
// to the wrapped provider, and writes back Response frames on the same
// connection until conn is closed or a read/write error occurs. One Serve
// call handles exactly one client connection; call it per accepted
// connection from cmd/vfsd's listener loop.
func (s *Server) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	out := make(chan []byte, 64)
	done := make(chan struct{})

	fileSub := s.provider.OnDidChangeFile(func(events []provider.ChangeEvent) {
		wire := make([]changeEventWire, len(events))
		for i, ev := range events {
			wire[i] = changeEventWire{Resource: ev.Resource.String(), Type: int(ev.Type)}
		}
		s.pushNotification(out, notifyDidChangeFile, wire)
	})
	capSub := s.provider.OnDidChangeCapabilities(func(bits capability.Bits) {
		s.pushNotification(out, notifyDidChangeCapabilities, uint32(bits))
	})
	defer fileSub.Dispose()
	defer capSub.Dispose()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w := bufio.NewWriter(conn)
		for {
			select {
			case line, ok := <-out:
				if !ok {
					return
				}
				if _, err := w.Write(line); err != nil {
					return
				}
				if err := w.WriteByte('\n'); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var readErr error
	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		go s.handle(ctx, out, req)
	}
	readErr = scanner.Err()

	close(done)
	close(out)
	wg.Wait()

	s.mu.Lock()
	for _, d := range s.watchers {
		d.Dispose()
	}
	s.watchers = map[string]provider.Disposable{}
	s.mu.Unlock()

	return readErr
}

func (s *Server) pushNotification(out chan []byte, method string, params any) {
	p, err := json.Marshal(params)
	if err != nil {
		logger.Warn("remote server: failed to encode notification params: %v", err)
		return
	}
	line, err := json.Marshal(Notification{Method: method, Params: p})
	if err != nil {
		return
	}
	select {
	case out <- line:
	default:
		logger.Warn("remote server: dropped %s notification, client too slow", method)
	}
}

func (s *Server) reply(out chan []byte, id uint64, result any, err error) {
	resp := Response{ID: id}
	if err != nil {
		resp.Error = toWireError(err)
	} else if result != nil {
		encoded, mErr := json.Marshal(result)
		if mErr != nil {
			resp.Error = &WireError{Code: int(vfserrors.Unknown), Msg: mErr.Error()}
		} else {
			resp.Result = encoded
		}
	}
	line, err := json.Marshal(resp)
	if err != nil {
		return
	}
	select {
	case out <- line:
	default:
		logger.Warn("remote server: dropped response for request %d, client too slow", id)
	}
}

func toWireError(err error) *WireError {
	we := &WireError{Code: int(vfserrors.CodeOf(err)), Msg: err.Error()}
	var verr *vfserrors.Error
	if errors.As(err, &verr) {
		we.Op = verr.Op
		we.Source = verr.Source
		we.Target = verr.Target
	}
	return we
}

func (s *Server) handle(ctx context.Context, out chan []byte, req Request) {
	switch req.Method {
	case methodGetCapabilities:
		s.reply(out, req.ID, uint32(s.provider.Capabilities()), nil)

	case methodStat:
		var p statParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		u, err := uri.Parse(p.Path)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		st, err := s.provider.Stat(ctx, u)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		s.reply(out, req.ID, statResult{
			Path: p.Path, IsFile: st.IsFile, IsDirectory: st.IsDirectory,
			IsSymbolicLink: st.IsSymbolicLink, Mtime: st.Mtime, Size: st.Size,
			Etag: st.Etag,
		}, nil)

	case methodReadDir:
		var p statParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		u, err := uri.Parse(p.Path)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		entries, err := s.provider.ReadDir(ctx, u)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		wire := make([]dirEntryWire, len(entries))
		for i, e := range entries {
			wire[i] = dirEntryWire{Name: e.Name, Type: int(e.Type)}
		}
		s.reply(out, req.ID, wire, nil)

	case methodMkdir:
		var p mkdirParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		u, err := uri.Parse(p.Path)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		s.reply(out, req.ID, nil, s.provider.Mkdir(ctx, u))

	case methodDelete:
		var p deleteParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		u, err := uri.Parse(p.Path)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		s.reply(out, req.ID, nil, s.provider.Delete(ctx, u, provider.DeleteOptions{Recursive: p.Recursive, UseTrash: p.UseTrash}))

	case methodRename:
		var p renameParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		src, err := uri.Parse(p.Src)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		dst, err := uri.Parse(p.Dst)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		s.reply(out, req.ID, nil, s.provider.Rename(ctx, src, dst, provider.RenameOptions{Overwrite: p.Overwrite}))

	case methodCopy:
		var p copyParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		cp, ok := provider.HasFolderCopy(s.provider)
		if !ok {
			s.reply(out, req.ID, nil, vfserrors.New(vfserrors.Unknown, "copy", "provider has no native copy"))
			return
		}
		src, err := uri.Parse(p.Src)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		dst, err := uri.Parse(p.Dst)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		s.reply(out, req.ID, nil, cp.Copy(ctx, src, dst, provider.CopyOptions{Overwrite: p.Overwrite}))

	case methodReadFile:
		var p readFileParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		rw, ok := provider.HasReadWrite(s.provider)
		if !ok {
			s.reply(out, req.ID, nil, vfserrors.New(vfserrors.Unknown, "readFile", "provider has no whole-file I/O"))
			return
		}
		u, err := uri.Parse(p.Path)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		data, err := rw.ReadFile(ctx, u)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		s.reply(out, req.ID, data, nil)

	case methodWriteFile:
		var p writeFileParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		rw, ok := provider.HasReadWrite(s.provider)
		if !ok {
			s.reply(out, req.ID, nil, vfserrors.New(vfserrors.Unknown, "writeFile", "provider has no whole-file I/O"))
			return
		}
		u, err := uri.Parse(p.Path)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		err = rw.WriteFile(ctx, u, p.Bytes, provider.WriteFileOptions{Create: p.Create, Overwrite: p.Overwrite})
		s.reply(out, req.ID, nil, err)

	case methodOpen:
		var p openParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		ra, ok := provider.HasRandomAccess(s.provider)
		if !ok {
			s.reply(out, req.ID, nil, vfserrors.New(vfserrors.Unknown, "open", "provider has no random-access I/O"))
			return
		}
		u, err := uri.Parse(p.Path)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		h, err := ra.Open(ctx, u, provider.OpenOptions{Create: p.Create})
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		s.reply(out, req.ID, openResult{Handle: uint64(h)}, nil)

	case methodClose:
		var p closeParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		ra, ok := provider.HasRandomAccess(s.provider)
		if !ok {
			s.reply(out, req.ID, nil, vfserrors.New(vfserrors.Unknown, "close", "provider has no random-access I/O"))
			return
		}
		s.reply(out, req.ID, nil, ra.Close(ctx, provider.Handle(p.Handle)))

	case methodRead:
		var p readParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		ra, ok := provider.HasRandomAccess(s.provider)
		if !ok {
			s.reply(out, req.ID, nil, vfserrors.New(vfserrors.Unknown, "read", "provider has no random-access I/O"))
			return
		}
		buf := make([]byte, p.Length)
		n, err := ra.Read(ctx, provider.Handle(p.Handle), p.Pos, buf)
		eof := err == io.EOF
		if err != nil && !eof {
			s.reply(out, req.ID, nil, err)
			return
		}
		s.reply(out, req.ID, readResult{Bytes: buf[:n], BytesRead: n, EOF: eof}, nil)

	case methodWrite:
		var p writeParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		ra, ok := provider.HasRandomAccess(s.provider)
		if !ok {
			s.reply(out, req.ID, nil, vfserrors.New(vfserrors.Unknown, "write", "provider has no random-access I/O"))
			return
		}
		n, err := ra.Write(ctx, provider.Handle(p.Handle), p.Pos, p.Bytes)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		s.reply(out, req.ID, writeResult{Written: n}, nil)

	case methodWatch:
		var p watchParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		u, err := uri.Parse(p.Path)
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		d, err := s.provider.Watch(ctx, u, provider.WatchOptions{Recursive: p.Recursive, Excludes: p.Excludes})
		if err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		s.mu.Lock()
		if old, ok := s.watchers[p.WatcherID]; ok {
			old.Dispose()
		}
		s.watchers[p.WatcherID] = d
		s.mu.Unlock()
		s.reply(out, req.ID, nil, nil)

	case methodUnwatch:
		var p unwatchParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.reply(out, req.ID, nil, err)
			return
		}
		s.mu.Lock()
		d, ok := s.watchers[p.WatcherID]
		delete(s.watchers, p.WatcherID)
		s.mu.Unlock()
		if ok {
			d.Dispose()
		}
		s.reply(out, req.ID, nil, nil)

	default:
		s.reply(out, req.ID, nil, fmt.Errorf("remote server: unknown method %q", req.Method))
	}
}
