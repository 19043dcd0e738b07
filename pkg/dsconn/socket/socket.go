// Package socket implements the Socket Adapter (spec §4.C): open/close/send/receive
// bytes, surfaced as open/error/close/message events. It owns exactly one WebSocket
// incarnation — a fresh Adapter is constructed for every reconnect attempt, it never
// retains queued messages across incarnations (§4.C) — and is built on
// github.com/coder/websocket for the underlying dial/read/write loop.
package socket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Callbacks the Connection Core registers once, at construction. They are invoked from
// the Adapter's own read goroutine (OnMessage, OnError, OnClose) or, after a failed write,
// from its write goroutine (OnError, OnClose). There is no open callback: a successful
// Open is reported by Open returning nil.
type Callbacks struct {
	OnMessage func(frames [][]byte)
	OnError   func(err error)
	OnClose   func()
}

// Adapter owns one WebSocket connection for the lifetime of a session segment.
type Adapter struct {
	logger      *zap.Logger
	dialTimeout time.Duration
	writeSize   int
	callbacks   Callbacks

	mu       sync.Mutex
	conn     *websocket.Conn
	closed   bool
	closeErr sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	writeCh chan []byte
}

// New constructs an Adapter. writeChannelSize bounds the outbound frame queue so a stalled
// write doesn't let an unbounded backlog of frames accumulate in memory; 100 is a sane
// default for interactive traffic.
func New(logger *zap.Logger, dialTimeout time.Duration, writeChannelSize int, cb Callbacks) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}
	if writeChannelSize <= 0 {
		writeChannelSize = 100
	}

	return &Adapter{
		logger:      logger,
		dialTimeout: dialTimeout,
		writeSize:   writeChannelSize,
		callbacks:   cb,
	}
}

// Open dials url and, on success, starts the read/write goroutines. If the dial itself
// fails, Open returns the error, starts no goroutines and invokes no callback; a
// reconnect caller treats a non-nil error like an asynchronous socket failure.
func (a *Adapter) Open(ctx context.Context, url string) error {
	dialCtx, cancelDial := context.WithTimeout(ctx, a.dialTimeout)
	defer cancelDial()

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		a.logger.Warn("socket: dial failed", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("socket: dial %s: %w", url, err)
	}

	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.done = make(chan struct{})
	a.writeCh = make(chan []byte, a.writeSize)

	a.mu.Lock()
	a.conn = conn
	a.closed = false
	a.mu.Unlock()

	a.logger.Debug("socket: connected", zap.String("url", url))

	go a.readLoop()
	go a.writeLoop()

	return nil
}

// SendFrames enqueues one or more already-encoded frames for writing, in order. It is
// non-blocking from the caller's perspective except when the write queue is full, in
// which case it blocks until there's room or the adapter closes — matching §5's "send is
// synchronous and non-blocking (it enqueues into the adapter)" at the Connection
// Core/Record layer, since the queue bound exists purely to cap memory for a dead peer,
// not to impose backpressure on ordinary traffic. The Connection Core encodes through
// codec.Encode before calling this.
func (a *Adapter) SendFrames(frames ...[]byte) error {
	if a.ctx == nil {
		return fmt.Errorf("socket: %w", contextClosedErr)
	}
	for _, frame := range frames {
		select {
		case a.writeCh <- frame:
		case <-a.ctx.Done():
			return fmt.Errorf("socket: %w", contextClosedErr)
		}
	}
	return nil
}

var contextClosedErr = fmt.Errorf("adapter closed")

// IsOpen reports whether the adapter currently believes it has a live connection. The
// Connection Core uses this to decide whether an incoming PING can be answered with a
// PONG immediately (§4.D: "as long as a socket is open").
func (a *Adapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.closed && a.conn != nil
}

// Close initiates a graceful close: it signals the read/write goroutines to stop and
// closes the underlying connection with a normal-closure status. It does not itself wait
// for the server's CONNECTION.CLOSING acknowledgment — the Connection Core does that by
// staying in StateClosing until OnClose fires, per §4.D.
func (a *Adapter) Close() error {
	a.closeErr.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}

		a.mu.Lock()
		conn := a.conn
		a.closed = true
		a.conn = nil
		a.mu.Unlock()

		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "client close")
		}
	})
	return nil
}

func (a *Adapter) readLoop() {
	defer close(a.done)

	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		return
	}

	for {
		_, data, err := conn.Read(a.ctx)
		if err != nil {
			select {
			case <-a.ctx.Done():
				// Expected: Close() was called.
			default:
				a.logger.Debug("socket: read failed", zap.Error(err))
				if a.callbacks.OnError != nil {
					a.callbacks.OnError(err)
				}
			}
			if a.callbacks.OnClose != nil {
				a.callbacks.OnClose()
			}
			return
		}

		if a.callbacks.OnMessage != nil {
			a.callbacks.OnMessage([][]byte{data})
		}
	}
}

func (a *Adapter) writeLoop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case frame := <-a.writeCh:
			a.mu.Lock()
			conn := a.conn
			a.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.Write(a.ctx, websocket.MessageText, frame); err != nil {
				select {
				case <-a.ctx.Done():
				default:
					a.logger.Debug("socket: write failed", zap.Error(err))
					if a.callbacks.OnError != nil {
						a.callbacks.OnError(err)
					}
					if a.callbacks.OnClose != nil {
						a.callbacks.OnClose()
					}
				}
				return
			}
		}
	}
}
