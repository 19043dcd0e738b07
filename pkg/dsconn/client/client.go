// Package client wires the Connection Core, Record Engine, Event Bus, and Timer Service
// into the single public handle an application actually imports (spec §6, component I).
// It is a thin facade over the underlying state machine, configured through functional
// options rather than requiring callers to construct and wire each component by hand.
package client

import (
	"context"
	"fmt"

	"github.com/tsarna/dsconn/pkg/dsconn"
	"github.com/tsarna/dsconn/pkg/dsconn/connection"
	"github.com/tsarna/dsconn/pkg/dsconn/eventbus"
	"github.com/tsarna/dsconn/pkg/dsconn/record"
	"github.com/tsarna/dsconn/pkg/dsconn/timer"
)

// AuthCallback receives the outcome of a Login's AUTH.REQUEST, possibly more than once
// across repeated authentication attempts over the connection's lifetime (spec §4.D).
type AuthCallback func(ok bool, data any)

// EventHandler receives one Event Bus delivery: every CONNECTION_STATE_CHANGED value and
// the lifecycle events of spec §1/§7.
type EventHandler func(event string, payload any)

// Client is the user-facing handle over one logical connection: dial it with New, log in
// with Login, work with shared documents through Records, and shut it down with Close.
type Client struct {
	core    *connection.Core
	bus     *eventbus.Bus
	timers  *timer.Service
	engine  *record.Engine
	Records *RecordStore
}

// RecordStore exposes the Record Engine's per-name document handles (spec §4.F).
type RecordStore struct {
	engine *record.Engine
}

// GetRecord returns the shared handle for name, creating and subscribing to it on the
// server on first reference (spec §4.F) if it isn't already tracked locally.
func (r *RecordStore) GetRecord(name string) *record.Record {
	return r.engine.GetRecord(name)
}

// New constructs a Client and immediately begins dialing url. Configure with opts before
// any network activity starts; every Option is applied before Open is called.
func New(url string, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	bus := eventbus.New(o.logger)
	timers := timer.NewService(o.logger)
	core := connection.New(o.logger, o.connCfg, bus, timers, o.metrics)
	engine := record.NewEngine(o.logger, core, timers, o.recordCfg)

	core.RegisterTopicHandler(dsconn.TopicRecord, engine.HandleMessage)

	c := &Client{
		core:   core,
		bus:    bus,
		timers: timers,
		engine: engine,
		Records: &RecordStore{
			engine: engine,
		},
	}

	core.Start()
	core.Open(url)

	return c
}

// Login sends AUTH.REQUEST with authParams, valid only once the Connection Core reaches
// AWAITING_AUTHENTICATION (spec §4.D). callback fires once per AUTH_SUCCESSFUL/
// AUTH_UNSUCCESSFUL, possibly more than once across reconnects. ctx bounds only the
// synchronous hand-off to the Connection Core's event loop, not the asynchronous wait for
// the server's response — that outcome always arrives through callback.
func (c *Client) Login(ctx context.Context, authParams map[string]any, callback AuthCallback) error {
	done := make(chan error, 1)
	go func() {
		done <- c.core.Authenticate(authParams, connection.AuthCallback(callback))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("client: login: %w", ctx.Err())
	}
}

// Close gracefully closes the connection (spec §4.D: OPEN/any state --Close()--> CLOSING
// --> CLOSED) and stops the Timer Service. No further reconnection is attempted.
func (c *Client) Close() error {
	err := c.core.Close()
	c.timers.Stop()
	return err
}

// State returns the Connection Core's current state.
func (c *Client) State() dsconn.ConnectionState {
	return c.core.State()
}

// On subscribes handler to event (an exact CONNECTION_STATE_CHANGED/lifecycle event name
// or an MQTT-style pattern such as "RECORD_#"). The returned id is usable with Off.
func (c *Client) On(event string, handler EventHandler) eventbus.SubscriptionID {
	return c.bus.On(event, eventbus.Handler(handler))
}

// Off removes a subscription previously returned by On.
func (c *Client) Off(id eventbus.SubscriptionID) {
	c.bus.Off(id)
}

// RegisterTopicHandler registers h for every inbound message on topic, for the RPC/
// PRESENCE/EVENT topics this module routes but does not itself interpret (spec §6).
func (c *Client) RegisterTopicHandler(topic dsconn.Topic, h connection.TopicHandler) {
	c.core.RegisterTopicHandler(topic, h)
}

// Send enqueues msg for delivery on the current session (spec §5). Most callers should
// use Records or RegisterTopicHandler instead; Send is exposed for RPC/PRESENCE traffic
// this module routes but does not interpret.
func (c *Client) Send(msg dsconn.Message) error {
	return c.core.Send(msg)
}
