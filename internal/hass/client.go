/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package hass maintains the websocket connection to a Home Assistant
// instance: it authenticates, seeds and tracks entity state, and delivers
// service calls. State updates land in the state store and on the event
// bus; nothing else in the daemon talks to the wire directly.
package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/hearth/internal/actor"
	"github.com/friendsincode/hearth/internal/events"
	"github.com/friendsincode/hearth/internal/state"
	"github.com/friendsincode/hearth/internal/telemetry"
)

// ErrNotConnected rejects service calls while the connection is down.
var ErrNotConnected = errors.New("upstream connection is down")

const (
	callTimeout      = 10 * time.Second
	reconnectMin     = time.Second
	reconnectMax     = time.Minute
	resultBufferSize = 1
)

// Options configure a Client.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://hass:8123/api/websocket.
	URL string
	// Token is a long-lived access token.
	Token string

	Store  *state.Store
	Bus    *events.Bus
	Logger zerolog.Logger
}

// Client is a reconnecting Home Assistant websocket client. It implements
// actor.Sink.
type Client struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *ws.Conn
	nextID  int64
	pending map[int64]chan resultMessage
}

var _ actor.Sink = (*Client)(nil)

// NewClient creates a client; Run establishes the connection.
func NewClient(opts Options) *Client {
	return &Client{
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "hass").Logger(),
		pending: make(map[int64]chan resultMessage),
	}
}

type message struct {
	ID          int64           `json:"id,omitempty"`
	Type        string          `json:"type"`
	AccessToken string          `json:"access_token,omitempty"`
	EventType   string          `json:"event_type,omitempty"`
	Domain      string          `json:"domain,omitempty"`
	Service     string          `json:"service,omitempty"`
	ServiceData map[string]any  `json:"service_data,omitempty"`
	Success     *bool           `json:"success,omitempty"`
	Error       *remoteError    `json:"error,omitempty"`
	Event       *eventMessage   `json:"event,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

type remoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type resultMessage struct {
	success bool
	err     *remoteError
}

type eventMessage struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string       `json:"entity_id"`
		NewState *entityState `json:"new_state"`
	} `json:"data"`
}

type entityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
}

// Run keeps the connection alive until the context is cancelled,
// reconnecting with exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	backoff := reconnectMin
	for {
		err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

// connectOnce runs one connection lifetime: dial, authenticate, seed state,
// subscribe, then pump events until the connection fails.
func (c *Client) connectOnce(ctx context.Context) error {
	conn, _, err := ws.Dial(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	defer conn.Close(ws.StatusInternalError, "closing")
	conn.SetReadLimit(8 << 20)

	if err := c.authenticate(ctx, conn); err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
		telemetry.UpstreamConnected.Set(0)
		c.opts.Bus.Publish(events.Event{Type: events.EventDisconnected})
	}()

	if err := c.seedStates(ctx, conn); err != nil {
		return err
	}
	if err := c.subscribe(ctx, conn); err != nil {
		return err
	}

	telemetry.UpstreamConnected.Set(1)
	c.opts.Bus.Publish(events.Event{Type: events.EventConnected})
	c.logger.Info().Str("url", c.opts.URL).Msg("connected")

	return c.readLoop(ctx, conn)
}

func (c *Client) authenticate(ctx context.Context, conn *ws.Conn) error {
	var hello message
	if err := readJSON(ctx, conn, &hello); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("unexpected greeting %q", hello.Type)
	}
	if err := writeJSON(ctx, conn, message{Type: "auth", AccessToken: c.opts.Token}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	var verdict message
	if err := readJSON(ctx, conn, &verdict); err != nil {
		return fmt.Errorf("read auth verdict: %w", err)
	}
	if verdict.Type != "auth_ok" {
		return fmt.Errorf("authentication rejected: %s", verdict.Type)
	}
	return nil
}

// seedStates fetches a full state dump so evaluations have data before the
// first state_changed event arrives.
func (c *Client) seedStates(ctx context.Context, conn *ws.Conn) error {
	id := c.claimID(nil)
	if err := writeJSON(ctx, conn, message{ID: id, Type: "get_states"}); err != nil {
		return fmt.Errorf("request states: %w", err)
	}
	for {
		var msg message
		if err := readJSON(ctx, conn, &msg); err != nil {
			return fmt.Errorf("read states: %w", err)
		}
		if msg.ID != id || msg.Type != "result" {
			continue
		}
		if msg.Success != nil && !*msg.Success {
			return fmt.Errorf("get_states failed: %v", msg.Error)
		}
		var dump []entityState
		if err := json.Unmarshal(msg.Result, &dump); err != nil {
			return fmt.Errorf("decode states: %w", err)
		}
		for _, es := range dump {
			c.storeState(es)
		}
		c.logger.Info().Int("entities", len(dump)).Msg("state seeded")
		return nil
	}
}

func (c *Client) subscribe(ctx context.Context, conn *ws.Conn) error {
	id := c.claimID(nil)
	if err := writeJSON(ctx, conn, message{ID: id, Type: "subscribe_events", EventType: "state_changed"}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *ws.Conn) error {
	for {
		var msg message
		if err := readJSON(ctx, conn, &msg); err != nil {
			return err
		}
		switch msg.Type {
		case "event":
			c.handleEvent(msg.Event)
		case "result":
			c.settle(msg)
		case "ping":
			_ = writeJSON(ctx, conn, message{ID: msg.ID, Type: "pong"})
		}
	}
}

func (c *Client) handleEvent(ev *eventMessage) {
	if ev == nil || ev.EventType != "state_changed" || ev.Data.NewState == nil {
		return
	}
	es := *ev.Data.NewState
	if es.EntityID == "" {
		es.EntityID = ev.Data.EntityID
	}
	c.storeState(es)
	c.opts.Bus.Publish(events.Event{
		Type:   events.EventStateChanged,
		Entity: es.EntityID,
		State:  es.State,
	})
}

func (c *Client) storeState(es entityState) {
	c.opts.Store.Set(state.Entity{
		ID:          es.EntityID,
		State:       es.State,
		Attributes:  es.Attributes,
		LastChanged: es.LastChanged,
	})
}

// settle delivers a command result to its waiter.
func (c *Client) settle(msg message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	success := msg.Success == nil || *msg.Success
	ch <- resultMessage{success: success, err: msg.Error}
}

// claimID allocates a message id and optionally registers a result waiter.
func (c *Client) claimID(waiter chan resultMessage) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	if waiter != nil {
		c.pending[c.nextID] = waiter
	}
	return c.nextID
}

// release drops the waiter of an abandoned call so the pending map does not
// accumulate entries until the next disconnect.
func (c *Client) release(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// CallService implements actor.Sink.
func (c *Client) CallService(ctx context.Context, cmd actor.Command) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	waiter := make(chan resultMessage, resultBufferSize)
	id := c.claimID(waiter)
	msg := message{
		ID:          id,
		Type:        "call_service",
		Domain:      cmd.Domain,
		Service:     cmd.Service,
		ServiceData: cmd.Data,
	}
	if err := writeJSON(ctx, conn, msg); err != nil {
		c.release(id)
		return fmt.Errorf("send call_service: %w", err)
	}
	telemetry.CommandsSentTotal.WithLabelValues(cmd.Domain).Inc()

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		c.release(id)
		return ctx.Err()
	case <-timer.C:
		c.release(id)
		return fmt.Errorf("call_service %s/%s: timed out", cmd.Domain, cmd.Service)
	case res, ok := <-waiter:
		if !ok {
			return ErrNotConnected
		}
		if !res.success {
			if res.err != nil {
				return fmt.Errorf("call_service %s/%s: %s (%s)", cmd.Domain, cmd.Service, res.err.Message, res.err.Code)
			}
			return fmt.Errorf("call_service %s/%s: rejected", cmd.Domain, cmd.Service)
		}
		return nil
	}
}

func readJSON(ctx context.Context, conn *ws.Conn, v any) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(ctx context.Context, conn *ws.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}
