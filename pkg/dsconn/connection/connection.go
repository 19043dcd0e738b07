// Package connection implements the Connection Core (spec §4.D): the main state machine
// driving one logical connection to a data-sync endpoint — challenge/accept handshake,
// authentication, heartbeats, reconnection with backoff, and redirect handling.
//
// Every state transition, timer firing, inbound message, and public API call that needs to
// touch connection state is funneled through a single internal goroutine (run) reading one
// channel of a sum-type event. This keeps all mutable state single-writer, so no mutex is
// needed to guard it against concurrent callers; State() instead reads a separate
// atomic.Value the goroutine publishes after every transition, giving lock-free reads
// without making readers wait on the dispatch loop.
package connection

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/dsconn/pkg/dsconn"
	"github.com/tsarna/dsconn/pkg/dsconn/codec"
	"github.com/tsarna/dsconn/pkg/dsconn/eventbus"
	"github.com/tsarna/dsconn/pkg/dsconn/metrics"
	"github.com/tsarna/dsconn/pkg/dsconn/socket"
	"github.com/tsarna/dsconn/pkg/dsconn/timer"
)

// AuthCallback receives the outcome of one AUTH.REQUEST: ok is true with clientData on
// AUTH_SUCCESSFUL, false with a reason payload on AUTH_UNSUCCESSFUL (spec §4.D). It may be
// invoked more than once across repeated authentication attempts.
type AuthCallback func(ok bool, data any)

// TopicHandler receives every inbound message for one registered Topic (spec §4.D). The
// Record Engine registers itself for TopicRecord; RPC/PRESENCE/EVENT are routed the same
// way for an embedding application to handle, but this module ships no handler logic for
// them (contract only, per spec §6).
type TopicHandler func(msg dsconn.Message)

const (
	timerNameHeartbeat   = "connection:heartbeat"
	timerNameReconnect   = "connection:reconnect"
	timerNameAuthTimeout = "connection:auth-timeout"
)

// Core is the Connection Core. Construct with New, then Start to begin its event loop, then
// Open to dial.
type Core struct {
	logger  *zap.Logger
	cfg     Config
	bus     *eventbus.Bus
	timers  *timer.Service
	metrics metrics.Provider

	events chan event
	done   chan struct{}

	stateVal atomic.Value // dsconn.ConnectionState

	// Everything below is owned exclusively by run(); no other goroutine touches it.
	state               dsconn.ConnectionState
	originalURL         string
	currentURL          string
	reconnectAttempts   int
	lastActivity        time.Time
	sock                *socket.Adapter
	sockGen             uint64
	outbox              []dsconn.Message
	topicHandlers       map[dsconn.Topic]TopicHandler
	pendingAuthParams   map[string]any
	pendingAuthCallback AuthCallback
	reconnectHandle     timer.Handle
	stopping            bool

	reconnectCounter        metrics.Counter
	heartbeatTimeoutCounter metrics.Counter
	stateTransitionCounter  metrics.Counter
}

// New constructs a Core. The returned Core does nothing until Start is called.
func New(logger *zap.Logger, cfg Config, bus *eventbus.Bus, timers *timer.Service, mp metrics.Provider) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = eventbus.New(logger)
	}
	if mp == nil {
		mp = metrics.NewNopProvider()
	}

	c := &Core{
		logger:        logger,
		cfg:           cfg,
		bus:           bus,
		timers:        timers,
		metrics:       mp,
		events:        make(chan event, 64),
		done:          make(chan struct{}),
		state:         dsconn.StateClosed,
		topicHandlers: make(map[dsconn.Topic]TopicHandler),

		reconnectCounter:        mp.Counter("dsconn_reconnect_attempts_total"),
		heartbeatTimeoutCounter: mp.Counter("dsconn_heartbeat_timeouts_total"),
		stateTransitionCounter:  mp.Counter("dsconn_state_transitions_total"),
	}
	c.stateVal.Store(dsconn.StateClosed)
	return c
}

// Start begins the Core's event loop. Call once, before Open.
func (c *Core) Start() {
	c.timers.Start()
	go c.run()
}

// State returns the Core's current ConnectionState. Safe to call from any goroutine; it
// never blocks on or contends with the run loop (spec §5: state is owned by run(), but
// readers outside it only ever need the latest published value, not a point-in-time
// rendezvous with the loop).
func (c *Core) State() dsconn.ConnectionState {
	return c.stateVal.Load().(dsconn.ConnectionState)
}

// Bus exposes the Event Bus every CONNECTION_STATE_CHANGED and lifecycle event publishes
// to (spec §4.D, §4.E).
func (c *Core) Bus() *eventbus.Bus { return c.bus }

// Open begins connecting to url. Valid only from CLOSED; a Core that is already open,
// connecting, or mid-reconnect ignores a second Open, so a caller racing its own startup
// logic can call Open more than once without first checking State().
func (c *Core) Open(url string) {
	c.events <- event{kind: evtOpen, url: url}
}

// Close initiates a graceful close: OPEN --Close()--> CLOSING, CONNECTION.CLOSING is sent,
// and CLOSED follows once the socket actually closes (spec §4.D). No further reconnection
// is attempted after Close.
func (c *Core) Close() error {
	respCh := make(chan error, 1)
	select {
	case c.events <- event{kind: evtClose, respCh: respCh}:
	case <-c.done:
		// The run loop has already finished a Close; a repeated Close is a no-op.
		return nil
	}
	select {
	case err := <-respCh:
		return err
	case <-c.done:
		return nil
	}
}

// Authenticate sends AUTH.REQUEST with params, valid only in AWAITING_AUTHENTICATION
// (spec §4.D). callback is invoked once per AUTH_SUCCESSFUL/AUTH_UNSUCCESSFUL, possibly
// more than once across repeated attempts. A nil params map fails synchronously with
// ErrInvalidAuthParams and callback is never invoked.
func (c *Core) Authenticate(params map[string]any, callback AuthCallback) error {
	if params == nil {
		return fmt.Errorf("connection: authenticate: %w", dsconn.ErrInvalidAuthParams)
	}

	respCh := make(chan error, 1)
	c.events <- event{kind: evtAuthenticate, authParams: params, authCallback: callback, respCh: respCh}
	return <-respCh
}

// Send implements record.Sender: enqueue msg for delivery on the current session,
// non-blocking from the caller's perspective (spec §5) — it posts onto the Core's own
// event channel, which either flushes straight to the socket's write queue (if OPEN) or
// appends to the unbounded pending outbox otherwise (spec §4.D, §9).
func (c *Core) Send(msg dsconn.Message) error {
	c.events <- event{kind: evtSend, msg: msg}
	return nil
}

// RegisterTopicHandler registers h for every inbound message whose Topic is topic. Only one
// handler per topic; a later registration replaces an earlier one.
func (c *Core) RegisterTopicHandler(topic dsconn.Topic, h TopicHandler) {
	c.events <- event{kind: evtRegisterTopicHandler, topic: topic, topicHandler: h}
}

// On registers handler for pattern on the underlying Event Bus (every CONNECTION_STATE
// value and the lifecycle events of spec §1/§7 publish there). The returned id is usable
// with Off.
func (c *Core) On(pattern string, handler eventbus.Handler) eventbus.SubscriptionID {
	return c.bus.On(pattern, handler)
}

// Off removes a subscription previously returned by On.
func (c *Core) Off(id eventbus.SubscriptionID) {
	c.bus.Off(id)
}

// event kinds funneled through Core.events. Mirrors basicEventBus.EventBusMessage/MessageType.
type eventKind int

const (
	evtOpen eventKind = iota
	evtClose
	evtAuthenticate
	evtSend
	evtRegisterTopicHandler
	evtInboundMessage
	evtSocketOpened
	evtSocketFailed
	evtSocketClosed
	evtHeartbeatTick
	evtReconnectTimerFired
	evtAuthTimeoutFired
)

type event struct {
	kind eventKind

	url string

	msg dsconn.Message

	authParams   map[string]any
	authCallback AuthCallback

	topic        dsconn.Topic
	topicHandler TopicHandler

	sockGen uint64
	err     error

	respCh chan error
}

func (c *Core) run() {
	defer close(c.done)

	for ev := range c.events {
		switch ev.kind {
		case evtOpen:
			c.handleOpen(ev.url)
		case evtClose:
			c.handleClose(ev.respCh)
		case evtAuthenticate:
			c.handleAuthenticate(ev.authParams, ev.authCallback, ev.respCh)
		case evtSend:
			c.handleSend(ev.msg)
		case evtRegisterTopicHandler:
			c.topicHandlers[ev.topic] = ev.topicHandler
		case evtInboundMessage:
			c.handleInbound(ev.msg)
		case evtSocketOpened:
			c.handleSocketOpened(ev.sockGen)
		case evtSocketFailed:
			c.handleSocketFailed(ev.sockGen, ev.err)
		case evtSocketClosed:
			c.handleSocketClosed(ev.sockGen)
		case evtHeartbeatTick:
			c.handleHeartbeatTick()
		case evtReconnectTimerFired:
			c.handleReconnectTimerFired()
		case evtAuthTimeoutFired:
			c.handleAuthTimeoutFired()
		}

		if c.stopping && c.state == dsconn.StateClosed {
			return
		}
	}
}

func (c *Core) setState(next dsconn.ConnectionState) {
	if next == c.state {
		return
	}
	c.state = next
	c.stateVal.Store(next)
	c.stateTransitionCounter.Add(context.Background(), 1, metrics.Label{Key: "state", Value: next.String()})
	c.logger.Debug("connection: state transition", zap.String("state", next.String()))
	c.bus.Publish(dsconn.EventStateChanged, next)
}

// handleOpen dials url for the first time (originalURL is fixed here) or ignores a second
// Open call while already connecting/connected (spec §4.D: transition valid only from
// CLOSED).
func (c *Core) handleOpen(url string) {
	if c.state != dsconn.StateClosed {
		return
	}
	c.originalURL = url
	c.currentURL = url
	c.reconnectAttempts = 0
	c.dial(url)
}

// dial acquires a fresh Socket Adapter — never reused across incarnations (spec §4.C) —
// and dials it on its own goroutine so a slow/hanging dial never blocks the run loop.
func (c *Core) dial(url string) {
	c.setState(dsconn.StateAwaitingConnection)

	c.sockGen++
	gen := c.sockGen

	sock := socket.New(c.logger, c.cfg.DialTimeout, c.cfg.WriteChannelSize, socket.Callbacks{
		OnMessage: func(frames [][]byte) {
			for _, frame := range frames {
				c.events <- event{kind: evtInboundMessage, msg: codec.Decode(frame)}
			}
		},
		OnError: func(err error) {
			c.events <- event{kind: evtSocketFailed, sockGen: gen, err: err}
		},
		OnClose: func() {
			c.events <- event{kind: evtSocketClosed, sockGen: gen}
		},
	})
	c.sock = sock

	go func() {
		if err := sock.Open(context.Background(), url); err != nil {
			c.events <- event{kind: evtSocketFailed, sockGen: gen, err: err}
			return
		}
		c.events <- event{kind: evtSocketOpened, sockGen: gen}
	}()
}

func (c *Core) handleSocketOpened(gen uint64) {
	if gen != c.sockGen {
		return
	}
	c.lastActivity = time.Now()
	c.logger.Info("connection: socket open, awaiting challenge", zap.String("url", c.currentURL))
}

func (c *Core) handleSocketFailed(gen uint64, err error) {
	if gen != c.sockGen {
		return
	}
	c.logger.Warn("connection: socket error", zap.Error(err))
	c.bus.Publish(dsconn.EventConnectionError, err)
	c.handleSocketClosed(gen)
}

func (c *Core) handleSocketClosed(gen uint64) {
	if gen != c.sockGen {
		return
	}

	if c.state == dsconn.StateClosing {
		c.finishClose()
		return
	}

	switch c.state {
	case dsconn.StateClosed, dsconn.StateChallengeDenied, dsconn.StateTooManyAuthAttempts, dsconn.StateAuthenticationTimeout,
		dsconn.StateReconnecting:
		// RECONNECTING: this socket's loss has already been handled (a dropped socket
		// reports both an error and a close), so it is not counted as a second attempt.
		return
	}

	c.enterReconnecting()
}

// enterReconnecting cancels every session-scoped timer (spec §5), tears down the dead
// socket, and either schedules the next attempt or gives up per the backoff policy of
// spec §4.D.
func (c *Core) enterReconnecting() {
	c.cancelSessionTimers()
	if c.sock != nil {
		_ = c.sock.Close()
	}

	if c.reconnectAttempts >= c.cfg.MaxReconnectAttempts {
		c.bus.Publish(dsconn.EventMaxReconnectionAttemptsReached, c.reconnectAttempts)
		c.setState(dsconn.StateClosed)
		return
	}

	c.setState(dsconn.StateReconnecting)

	delay := time.Duration(c.reconnectAttempts) * c.cfg.ReconnectIntervalIncrement
	if delay > c.cfg.MaxReconnectInterval {
		delay = c.cfg.MaxReconnectInterval
	}
	if delay <= 0 {
		delay = c.cfg.ReconnectIntervalIncrement
	}
	c.reconnectAttempts++
	c.reconnectCounter.Add(context.Background(), 1)

	h, err := c.timers.Schedule(timerNameReconnect, delay, func() {
		c.events <- event{kind: evtReconnectTimerFired}
	})
	if err != nil {
		c.logger.Error("connection: schedule reconnect", zap.Error(err))
		return
	}
	c.reconnectHandle = h
}

func (c *Core) handleReconnectTimerFired() {
	if c.state != dsconn.StateReconnecting {
		return
	}
	c.dial(c.originalURL)
	c.currentURL = c.originalURL
}

func (c *Core) cancelSessionTimers() {
	c.timers.CancelName(timerNameHeartbeat)
	c.timers.CancelName(timerNameReconnect)
	c.timers.CancelName(timerNameAuthTimeout)
}

// handleAuthTimeoutFired fires the AUTHENTICATION_TIMEOUT state (declared in the state
// enum but left without an explicit deadline in the transition table): a terminal state
// like CHALLENGE_DENIED/TOO_MANY_AUTH_ATTEMPTS, requiring a fresh Open to recover.
func (c *Core) handleAuthTimeoutFired() {
	if c.state != dsconn.StateAuthenticating {
		return
	}
	c.cancelSessionTimers()
	c.bus.Publish(dsconn.EventAuthenticationTimeout, nil)
	c.setState(dsconn.StateAuthenticationTimeout)
	if c.sock != nil {
		_ = c.sock.Close()
	}
}

// handleInbound updates lastActivity for every message (spec §4.D heartbeat rule), answers
// PING immediately if a socket is open, then routes by topic.
func (c *Core) handleInbound(msg dsconn.Message) {
	c.lastActivity = time.Now()

	if msg.Action == dsconn.ActionParseError {
		c.logger.Warn("connection: dropping unparseable message", zap.Any("reason", msg.ParsedData))
		return
	}

	switch msg.Topic {
	case dsconn.TopicConnection:
		c.handleConnectionMessage(msg)
	case dsconn.TopicAuth:
		c.handleAuthMessage(msg)
	default:
		if h, ok := c.topicHandlers[msg.Topic]; ok {
			h(msg)
		} else {
			c.logger.Debug("connection: no handler for topic", zap.String("topic", string(msg.Topic)))
		}
	}
}

func (c *Core) handleConnectionMessage(msg dsconn.Message) {
	switch msg.Action {
	case dsconn.ActionPing:
		if c.sock != nil && c.sock.IsOpen() {
			c.sendRaw(dsconn.Message{Topic: dsconn.TopicConnection, Action: dsconn.ActionPong})
		}
	case dsconn.ActionChallenge:
		if c.state != dsconn.StateAwaitingConnection {
			return
		}
		c.setState(dsconn.StateChallenging)
		c.sendRaw(dsconn.Message{Topic: dsconn.TopicConnection, Action: dsconn.ActionChallengeResponse, Data: []string{c.currentURL}})
	case dsconn.ActionAccept:
		if c.state != dsconn.StateChallenging {
			return
		}
		c.setState(dsconn.StateAwaitingAuthentication)
	case dsconn.ActionReject:
		c.cancelSessionTimers()
		c.bus.Publish(dsconn.EventChallengeDenied, nil)
		c.setState(dsconn.StateChallengeDenied)
	case dsconn.ActionRedirect:
		if len(msg.Data) == 0 {
			c.logger.Warn("connection: REDIRECT with no url")
			return
		}
		c.setState(dsconn.StateRedirecting)
		if c.sock != nil {
			_ = c.sock.Close()
		}
		c.currentURL = msg.Data[0]
		// dial immediately moves the state on to AWAITING_CONNECTION, the same way the
		// initial CLOSED->Open path treats "dial initiated" rather than "socket open" as
		// the transition trigger; StateRedirecting is observable but momentary.
		c.dial(c.currentURL)
	case dsconn.ActionClosing:
		if c.state == dsconn.StateClosing {
			if c.sock != nil {
				_ = c.sock.Close()
			}
		}
	case dsconn.ActionError:
		c.logger.Warn("connection: server reported error", zap.Any("detail", msg.ParsedData))
		c.bus.Publish(dsconn.EventConnectionError, msg.ParsedData)
	}
}

func (c *Core) handleAuthMessage(msg dsconn.Message) {
	switch msg.Action {
	case dsconn.ActionAuthSuccessful:
		if c.state != dsconn.StateAuthenticating {
			return
		}
		c.timers.CancelName(timerNameAuthTimeout)
		var data any
		if len(msg.Data) > 0 {
			data, _ = codec.ConvertTyped(msg.Data[0])
		}
		c.setState(dsconn.StateOpen)
		c.reconnectAttempts = 0
		c.startHeartbeat()
		c.flushOutbox()
		if c.pendingAuthCallback != nil {
			c.invokeAuthCallback(true, data)
		}
	case dsconn.ActionAuthUnsuccessful:
		c.timers.CancelName(timerNameAuthTimeout)
		var reason any
		if len(msg.Data) > 0 {
			reason, _ = codec.ConvertTyped(msg.Data[0])
		}
		wasReconnectRetry := c.state == dsconn.StateAuthenticating && c.reconnectAttempts > 0
		c.setState(dsconn.StateAwaitingAuthentication)
		if wasReconnectRetry {
			c.bus.Publish(dsconn.EventReauthenticationFailure, reason)
		}
		if c.pendingAuthCallback != nil {
			c.invokeAuthCallback(false, reason)
		}
	case dsconn.ActionTooManyAuthAttempts:
		// No dedicated lifecycle event: the CONNECTION_STATE_CHANGED transition to
		// TOO_MANY_AUTH_ATTEMPTS below is itself the terminal signal (spec §4.D).
		c.cancelSessionTimers()
		c.setState(dsconn.StateTooManyAuthAttempts)
	case dsconn.ActionInvalidMessageData:
		c.logger.Warn("connection: server rejected auth message data")
	}
}

// invokeAuthCallback recovers a panicking callback so one misbehaving application handler
// cannot take down the event loop (spec §4.D failure semantics).
func (c *Core) invokeAuthCallback(ok bool, data any) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("connection: auth callback panicked", zap.Any("recovered", r))
		}
	}()
	c.pendingAuthCallback(ok, data)
}

func (c *Core) handleClose(respCh chan error) {
	switch c.state {
	case dsconn.StateClosed:
		respCh <- nil
		return
	case dsconn.StateClosing:
		respCh <- nil
		return
	}

	c.cancelSessionTimers()
	c.stopping = true
	c.setState(dsconn.StateClosing)
	c.sendRaw(dsconn.Message{Topic: dsconn.TopicConnection, Action: dsconn.ActionClosing})
	respCh <- nil
}

func (c *Core) finishClose() {
	c.setState(dsconn.StateClosed)
}

func (c *Core) handleAuthenticate(params map[string]any, callback AuthCallback, respCh chan error) {
	if c.state != dsconn.StateAwaitingAuthentication {
		respCh <- fmt.Errorf("connection: %w", dsconn.ErrNotAwaitingAuthentication)
		return
	}

	c.pendingAuthParams = params
	c.pendingAuthCallback = callback
	c.setState(dsconn.StateAuthenticating)

	if _, err := c.timers.Schedule(timerNameAuthTimeout, c.cfg.AuthenticationTimeout, func() {
		c.events <- event{kind: evtAuthTimeoutFired}
	}); err != nil {
		c.logger.Error("connection: schedule auth timeout", zap.Error(err))
	}

	typed, encErr := codec.EncodeTyped(params)
	if encErr != nil {
		c.logger.Error("connection: encode auth params", zap.Error(encErr))
		respCh <- fmt.Errorf("connection: encode auth params: %w", encErr)
		return
	}
	c.sendRaw(dsconn.Message{Topic: dsconn.TopicAuth, Action: dsconn.ActionRequest, Data: []string{typed}})
	respCh <- nil
}

func (c *Core) startHeartbeat() {
	h, err := c.timers.SetInterval(timerNameHeartbeat, c.cfg.HeartbeatInterval, func() {
		c.events <- event{kind: evtHeartbeatTick}
	})
	if err != nil {
		c.logger.Error("connection: schedule heartbeat", zap.Error(err))
		return
	}
	_ = h
}

// handleHeartbeatTick implements the liveness rule of spec §4.D: one missed tick is
// ignored, two consecutive misses (elapsed > 2×interval) trigger HEARTBEAT_TIMEOUT and a
// reconnect.
func (c *Core) handleHeartbeatTick() {
	if c.state != dsconn.StateOpen {
		return
	}

	elapsed := time.Since(c.lastActivity)
	if elapsed <= c.cfg.HeartbeatInterval {
		return
	}
	if elapsed <= 2*c.cfg.HeartbeatInterval {
		return
	}

	c.heartbeatTimeoutCounter.Add(context.Background(), 1)
	c.logger.Warn("connection: heartbeat timeout", zap.Duration("elapsed", elapsed))
	c.bus.Publish(dsconn.EventHeartbeatTimeout, nil)
	c.enterReconnecting()
}

// handleSend implements the send-buffering rule of spec §4.D/§9: queue while not OPEN
// (unbounded outbox, deliberately — see the Open Question resolution carried into
// DESIGN.md), flush in submission order once OPEN.
func (c *Core) handleSend(msg dsconn.Message) {
	if c.state != dsconn.StateOpen {
		c.outbox = append(c.outbox, msg)
		return
	}
	c.sendRaw(msg)
}

func (c *Core) flushOutbox() {
	pending := c.outbox
	c.outbox = nil
	for _, msg := range pending {
		c.sendRaw(msg)
	}
}

func (c *Core) sendRaw(msg dsconn.Message) {
	if c.sock == nil {
		c.logger.Warn("connection: dropping send, no socket", zap.Stringer("message", msg))
		return
	}
	frame, err := codec.Encode(msg)
	if err != nil {
		c.logger.Error("connection: encode outgoing message", zap.Error(err))
		return
	}
	if err := c.sock.SendFrames(frame); err != nil {
		c.logger.Warn("connection: send failed", zap.Error(err))
	}
}
