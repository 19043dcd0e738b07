package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// echoServer accepts one WebSocket connection and echoes every frame it receives back to
// the client, until the client closes.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestOpenSendReceive(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	var mu sync.Mutex
	var received [][]byte
	gotMessage := make(chan struct{}, 1)

	adapter := New(zaptest.NewLogger(t), 2*time.Second, 10, Callbacks{
		OnMessage: func(frames [][]byte) {
			mu.Lock()
			received = append(received, frames...)
			mu.Unlock()
			select {
			case gotMessage <- struct{}{}:
			default:
			}
		},
	})

	require.NoError(t, adapter.Open(context.Background(), wsURL(server.URL)))
	assert.True(t, adapter.IsOpen())

	require.NoError(t, adapter.SendFrames([]byte("hello")))

	select {
	case <-gotMessage:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "hello", string(received[0]))
}

func TestCloseTriggersOnClose(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	closed := make(chan struct{})
	adapter := New(zaptest.NewLogger(t), 2*time.Second, 10, Callbacks{
		OnClose: func() { close(closed) },
	})

	require.NoError(t, adapter.Open(context.Background(), wsURL(server.URL)))
	require.NoError(t, adapter.Close())

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose was not invoked")
	}
	assert.False(t, adapter.IsOpen())
}

func TestOpenDialFailure(t *testing.T) {
	adapter := New(zaptest.NewLogger(t), 200*time.Millisecond, 10, Callbacks{})
	err := adapter.Open(context.Background(), "ws://127.0.0.1:1/ws")
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	adapter := New(zaptest.NewLogger(t), 2*time.Second, 10, Callbacks{})
	require.NoError(t, adapter.Open(context.Background(), wsURL(server.URL)))

	assert.NoError(t, adapter.Close())
	assert.NoError(t, adapter.Close())
}

func TestSendFramesAfterCloseFails(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	adapter := New(zaptest.NewLogger(t), 2*time.Second, 10, Callbacks{})
	require.NoError(t, adapter.Open(context.Background(), wsURL(server.URL)))
	require.NoError(t, adapter.Close())

	time.Sleep(50 * time.Millisecond)
	assert.Error(t, adapter.SendFrames([]byte("too late")))
}
