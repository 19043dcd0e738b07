package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tsarna/dsconn/pkg/dsconn"
	"github.com/tsarna/dsconn/pkg/dsconn/codec"
)

func testServer(t *testing.T, handle func(t *testing.T, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		handle(t, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func readMsg(t *testing.T, ctx context.Context, conn *websocket.Conn) dsconn.Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	return codec.Decode(data)
}

func writeMsg(t *testing.T, ctx context.Context, conn *websocket.Conn, msg dsconn.Message) {
	t.Helper()
	frame, err := codec.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, frame))
}

func waitForAwaitingAuth(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == dsconn.StateAwaitingAuthentication {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("client never reached AWAITING_AUTHENTICATION")
}

func handshakeAndAuth(t *testing.T, ctx context.Context, conn *websocket.Conn) {
	t.Helper()
	writeMsg(t, ctx, conn, dsconn.Message{Topic: dsconn.TopicConnection, Action: dsconn.ActionChallenge})
	msg := readMsg(t, ctx, conn)
	require.Equal(t, dsconn.ActionChallengeResponse, msg.Action)
	writeMsg(t, ctx, conn, dsconn.Message{Topic: dsconn.TopicConnection, Action: dsconn.ActionAccept})
	msg = readMsg(t, ctx, conn)
	require.Equal(t, dsconn.ActionRequest, msg.Action)
	writeMsg(t, ctx, conn, dsconn.Message{Topic: dsconn.TopicAuth, Action: dsconn.ActionAuthSuccessful})
}

func TestClientLoginAndWatchRecord(t *testing.T) {
	srv := testServer(t, func(t *testing.T, conn *websocket.Conn) {
		ctx := context.Background()
		handshakeAndAuth(t, ctx, conn)

		msg := readMsg(t, ctx, conn)
		require.Equal(t, dsconn.ActionCreateOrRead, msg.Action)
		require.Equal(t, "documents/doc-1", msg.Name)

		writeMsg(t, ctx, conn, dsconn.Message{Topic: dsconn.TopicRecord, Action: dsconn.ActionAck, Name: "documents/doc-1"})

		typed, err := codec.EncodeTyped(map[string]any{"title": "hello"})
		require.NoError(t, err)
		writeMsg(t, ctx, conn, dsconn.Message{
			Topic: dsconn.TopicRecord, Action: dsconn.ActionRead, Name: "documents/doc-1",
			Data: []string{"1", typed},
		})

		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	logger := zaptest.NewLogger(t)
	c := New(wsURL(srv.URL), WithLogger(logger), WithDialTimeout(2*time.Second))
	t.Cleanup(func() { _ = c.Close() })

	waitForAwaitingAuth(t, c)

	loggedIn := make(chan struct{}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Login(ctx, map[string]any{"token": "x"}, func(ok bool, data any) {
		if ok {
			loggedIn <- struct{}{}
		}
	}))

	select {
	case <-loggedIn:
	case <-time.After(2 * time.Second):
		t.Fatal("login never completed")
	}

	rec := c.Records.GetRecord("documents/doc-1")

	ready := make(chan struct{}, 1)
	rec.OnReady(func() { ready <- struct{}{} })

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("record never became ready")
	}

	assert.Equal(t, map[string]any{"title": "hello"}, rec.Get())
}

func TestClientLoginFailureInvokesCallbackWithFalse(t *testing.T) {
	srv := testServer(t, func(t *testing.T, conn *websocket.Conn) {
		ctx := context.Background()
		writeMsg(t, ctx, conn, dsconn.Message{Topic: dsconn.TopicConnection, Action: dsconn.ActionChallenge})
		msg := readMsg(t, ctx, conn)
		require.Equal(t, dsconn.ActionChallengeResponse, msg.Action)
		writeMsg(t, ctx, conn, dsconn.Message{Topic: dsconn.TopicConnection, Action: dsconn.ActionAccept})
		msg = readMsg(t, ctx, conn)
		require.Equal(t, dsconn.ActionRequest, msg.Action)
		writeMsg(t, ctx, conn, dsconn.Message{
			Topic: dsconn.TopicAuth, Action: dsconn.ActionAuthUnsuccessful,
			Data: []string{"Sbad credentials"},
		})
	})

	c := New(wsURL(srv.URL), WithLogger(zaptest.NewLogger(t)), WithDialTimeout(2*time.Second))
	t.Cleanup(func() { _ = c.Close() })

	waitForAwaitingAuth(t, c)

	result := make(chan bool, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Login(ctx, map[string]any{}, func(ok bool, data any) {
		result <- ok
	}))

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("login callback never fired")
	}
}

func TestClientOnOffLifecycleEvents(t *testing.T) {
	srv := testServer(t, func(t *testing.T, conn *websocket.Conn) {
		ctx := context.Background()
		handshakeAndAuth(t, ctx, conn)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	c := New(wsURL(srv.URL), WithLogger(zaptest.NewLogger(t)), WithDialTimeout(2*time.Second))
	t.Cleanup(func() { _ = c.Close() })

	states := make(chan dsconn.ConnectionState, 64)
	id := c.On(dsconn.EventStateChanged, func(event string, payload any) {
		states <- payload.(dsconn.ConnectionState)
	})

	deadline := time.After(2 * time.Second)
	found := false
	for !found {
		select {
		case s := <-states:
			if s == dsconn.StateAwaitingAuthentication {
				found = true
			}
		case <-deadline:
			t.Fatal("never reached AWAITING_AUTHENTICATION")
		}
	}

	c.Off(id)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Login(ctx, map[string]any{}, func(bool, any) {}))

	select {
	case <-states:
		t.Fatal("received an event after Off")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestClientSetAndGetRecord(t *testing.T) {
	var receivedVersion string
	srv := testServer(t, func(t *testing.T, conn *websocket.Conn) {
		ctx := context.Background()
		handshakeAndAuth(t, ctx, conn)

		msg := readMsg(t, ctx, conn)
		require.Equal(t, dsconn.ActionCreateOrRead, msg.Action)
		writeMsg(t, ctx, conn, dsconn.Message{Topic: dsconn.TopicRecord, Action: dsconn.ActionAck, Name: msg.Name})

		typed, err := codec.EncodeTyped(map[string]any{"count": float64(0)})
		require.NoError(t, err)
		writeMsg(t, ctx, conn, dsconn.Message{
			Topic: dsconn.TopicRecord, Action: dsconn.ActionRead, Name: msg.Name,
			Data: []string{"1", typed},
		})

		update := readMsg(t, ctx, conn)
		require.Equal(t, dsconn.ActionUpdate, update.Action)
		receivedVersion = update.Data[0]

		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	c := New(wsURL(srv.URL), WithLogger(zaptest.NewLogger(t)), WithDialTimeout(2*time.Second))
	t.Cleanup(func() { _ = c.Close() })

	waitForAwaitingAuth(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Login(ctx, map[string]any{}, func(bool, any) {}))

	rec := c.Records.GetRecord("counter")
	ready := make(chan struct{}, 1)
	rec.OnReady(func() { ready <- struct{}{} })

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("record never became ready")
	}

	rec.SetData(map[string]any{"count": float64(1)})

	deadline := time.Now().Add(2 * time.Second)
	for receivedVersion == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, strconv.Itoa(2), receivedVersion)
}
