package remote

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/hollowfs/vfscore/pkg/provider"
	"github.com/hollowfs/vfscore/pkg/uri"
	"github.com/hollowfs/vfscore/providers/memory"
	"github.com/stretchr/testify/require"
)

// newPipeDialer returns a Dialer that, on each (re)connect, opens a fresh
// net.Pipe() and starts a Server.Serve goroutine on the server half against
// p — the in-process equivalent of a fresh TCP Accept from cmd/vfsd's
// listener loop.
func newPipeDialer(p provider.Provider) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		clientConn, serverConn := net.Pipe()
		srv := NewServer(p)
		go func() {
			_ = srv.Serve(context.Background(), serverConn)
		}()
		return clientConn, nil
	}
}

func TestClientServer_StatReadWriteFile(t *testing.T) {
	p := memory.New()
	ctx := context.Background()

	u, err := uri.Parse("file:///greeting.txt")
	require.NoError(t, err)
	require.NoError(t, p.WriteFile(ctx, u, []byte("hello"), provider.WriteFileOptions{Create: true}))

	client := NewClient(newPipeDialer(p))
	require.NoError(t, client.Connect(ctx))

	data, err := client.ReadFile(ctx, u)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	st, err := client.Stat(ctx, u)
	require.NoError(t, err)
	require.True(t, st.IsFile)
	require.EqualValues(t, 5, st.Size)

	require.NoError(t, client.WriteFile(ctx, u, []byte("hello again"), provider.WriteFileOptions{}))
	data, err = p.ReadFile(ctx, u)
	require.NoError(t, err)
	require.Equal(t, "hello again", string(data))
}

func TestClientServer_OpenReadWriteClose(t *testing.T) {
	p := memory.New()
	ctx := context.Background()
	u, err := uri.Parse("file:///blob.bin")
	require.NoError(t, err)

	client := NewClient(newPipeDialer(p))
	require.NoError(t, client.Connect(ctx))

	h, err := client.Open(ctx, u, provider.OpenOptions{Create: true})
	require.NoError(t, err)

	n, err := client.Write(ctx, h, 0, []byte("0123456789"))
	require.NoError(t, err)
	require.Equal(t, 10, n)

	buf := make([]byte, 4)
	n, err = client.Read(ctx, h, 2, buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "2345", string(buf))

	require.NoError(t, client.Close(ctx, h))
}

func TestClientServer_Reconnect_ReissuesWatch(t *testing.T) {
	p := memory.New()
	ctx := context.Background()

	root, err := uri.Parse("file:///")
	require.NoError(t, err)

	client := NewClient(newPipeDialer(p))
	require.NoError(t, client.Connect(ctx))

	events := make(chan []provider.ChangeEvent, 4)
	client.OnDidChangeFile(func(ev []provider.ChangeEvent) { events <- ev })

	dispose, err := client.Watch(ctx, root, provider.WatchOptions{Recursive: true})
	require.NoError(t, err)
	defer dispose.Dispose()

	// Sever the current connection out from under the client. The next call
	// must transparently reconnect and re-issue the recorded watch before
	// the caller notices anything happened.
	client.mu.Lock()
	conn := client.conn
	client.mu.Unlock()
	require.NotNil(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.conn == nil
	}, time.Second, 10*time.Millisecond, "read loop should notice the closed connection")

	u, err := uri.Parse("file:///after-reconnect.txt")
	require.NoError(t, err)
	_, err = client.Stat(ctx, u)
	require.Error(t, err) // not found, but the round trip itself must succeed

	require.NoError(t, p.WriteFile(ctx, u, []byte("x"), provider.WriteFileOptions{Create: true}))

	select {
	case ev := <-events:
		require.NotEmpty(t, ev)
		require.Equal(t, u.String(), ev[0].Resource.String())
	case <-time.After(time.Second):
		t.Fatal("expected a change notification after reconnect re-issued the watch")
	}
}

func TestClientServer_UnknownMethodError(t *testing.T) {
	p := memory.New()
	ctx := context.Background()
	client := NewClient(newPipeDialer(p))
	require.NoError(t, client.Connect(ctx))

	_, err := client.call(ctx, "notAMethod", struct{}{})
	require.Error(t, err)
}
