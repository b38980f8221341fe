// Package remote implements the JSON-RPC-shaped provider bridge: a Server
// wraps one provider.Provider and exposes it over a stream of
// newline-delimited JSON frames; a Client implements provider.Provider by
// forwarding every call across that same stream, re-issuing active watches
// after a reconnect.
//
// There is no third-party RPC library that produces this exact
// newline-delimited request/response/notification shape (gRPC and net/rpc
// both impose their own framing and codec); encoding/json over a plain
// io.ReadWriteCloser is the stdlib-only component this package deliberately
// keeps, mirroring how pkg/provider.Emitter stays stdlib-backed.
package remote

import "encoding/json"

// Request is one client-to-server call frame.
type Request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one server-to-client reply frame, matched to its Request by ID.
type Response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// Notification is an unsolicited server-to-client frame: notifyDidChangeFile
// or notifyDidChangeCapabilities.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// envelope is decoded first to tell a Response apart from a Notification:
// Responses carry "id", Notifications don't.
type envelope struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// WireError is the wire rendering of a vfserrors.Error: just enough to
// reconstruct one on the client without coupling the wire format to Go's
// error-wrapping machinery.
type WireError struct {
	Code   int    `json:"code"`
	Op     string `json:"op"`
	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`
	Msg    string `json:"msg"`
}

const (
	methodGetCapabilities = "getCapabilities"
	methodStat            = "stat"
	methodReadDir         = "readdir"
	methodMkdir           = "mkdir"
	methodDelete          = "delete"
	methodRename          = "rename"
	methodCopy            = "copy"
	methodReadFile        = "readFile"
	methodWriteFile       = "writeFile"
	methodOpen            = "open"
	methodClose           = "close"
	methodRead            = "read"
	methodWrite           = "write"
	methodWatch           = "watch"
	methodUnwatch         = "unwatch"

	notifyDidChangeFile         = "notifyDidChangeFile"
	notifyDidChangeCapabilities = "notifyDidChangeCapabilities"
)

type statParams struct {
	Path string `json:"path"`
}

type statResult struct {
	Path           string `json:"path"`
	IsFile         bool   `json:"isFile"`
	IsDirectory    bool   `json:"isDirectory"`
	IsSymbolicLink bool   `json:"isSymbolicLink"`
	Mtime          int64  `json:"mtime"`
	Size           uint64 `json:"size"`
	Etag           string `json:"etag"`
}

type dirEntryWire struct {
	Name string `json:"name"`
	Type int    `json:"type"`
}

type openParams struct {
	Path   string `json:"path"`
	Create bool   `json:"create"`
}

type openResult struct {
	Handle uint64 `json:"handle"`
}

type closeParams struct {
	Handle uint64 `json:"handle"`
}

type readParams struct {
	Handle uint64 `json:"handle"`
	Pos    int64  `json:"pos"`
	Length int    `json:"length"`
}

type readResult struct {
	Bytes     []byte `json:"bytes"`
	BytesRead int    `json:"bytesRead"`
	EOF       bool   `json:"eof"`
}

type writeParams struct {
	Handle uint64 `json:"handle"`
	Pos    int64  `json:"pos"`
	Bytes  []byte `json:"bytes"`
}

type writeResult struct {
	Written int `json:"written"`
}

type readFileParams struct {
	Path string `json:"path"`
}

type writeFileParams struct {
	Path      string `json:"path"`
	Bytes     []byte `json:"bytes"`
	Create    bool   `json:"create"`
	Overwrite bool   `json:"overwrite"`
}

type mkdirParams struct {
	Path string `json:"path"`
}

type deleteParams struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
	UseTrash  bool   `json:"useTrash"`
}

type renameParams struct {
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	Overwrite bool   `json:"overwrite"`
}

type copyParams struct {
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	Overwrite bool   `json:"overwrite"`
}

type watchParams struct {
	WatcherID string   `json:"watcherId"`
	Path      string   `json:"path"`
	Recursive bool     `json:"recursive"`
	Excludes  []string `json:"excludes"`
}

type unwatchParams struct {
	WatcherID string `json:"watcherId"`
}

type changeEventWire struct {
	Resource string `json:"resource"`
	Type     int    `json:"type"`
}
