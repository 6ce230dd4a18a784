// Copyright 2024 The Smart Garden Authors. This file is licensed under the Apache Software License, v. 2
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Kind distinguishes the two channel populations the Session Registry tracks.
type Kind string

const (
	KindClient     Kind = "client"
	KindController Kind = "controller"
)

// ErrChannelClosed is returned by Send once Close has run.
var ErrChannelClosed = errors.New("transport: channel closed")

// Channel is one open, bidirectional message channel. Outbound writes are
// serialized per §5 ("Outbound controller writes must be serialized (one
// writer per controller channel)") — the same discipline applies to client
// channels, so a single implementation covers both.
type Channel struct {
	id   string
	kind Kind
	conn *websocket.Conn

	// GardenID is set on controller channels only; it is the metadata the
	// Session Registry's reverse lookup (unbindController) uses.
	GardenID string

	outbox chan Frame
	closed atomic.Bool
	done   chan struct{}

	mu       sync.Mutex
	lastSeen time.Time
}

// NewChannel wraps an accepted websocket connection and starts its writer
// goroutine. The caller is responsible for running ReadLoop.
func NewChannel(kind Kind, conn *websocket.Conn) *Channel {
	c := &Channel{
		id:       uuid.NewString(),
		kind:     kind,
		conn:     conn,
		outbox:   make(chan Frame, 64),
		done:     make(chan struct{}),
		lastSeen: time.Now(),
	}
	go c.writeLoop()
	return c
}

// ID is the channel's server-minted identity, used as a map key by the
// Session Registry and Pending Correlation Tables.
func (c *Channel) ID() string { return c.id }

// Kind reports whether this is a client or controller channel.
func (c *Channel) Kind() Kind { return c.kind }

// Open reports whether the channel is still accepting writes.
func (c *Channel) Open() bool { return !c.closed.Load() }

// Touch records a heartbeat/any-frame-received timestamp.
func (c *Channel) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen returns the last heartbeat/frame timestamp, used by the Lifecycle
// Supervisor's optional stale-controller eviction.
func (c *Channel) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Send enqueues a frame for the writer goroutine. It never blocks the caller
// on network I/O; backpressure is absorbed by the bounded outbox, and a full
// outbox drops the oldest write rather than stalling the handler that is
// fanning out to many channels (broadcast, sweep notifications).
func (c *Channel) Send(_ context.Context, f Frame) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	select {
	case c.outbox <- f:
		return nil
	default:
		select {
		case <-c.outbox:
		default:
		}
		select {
		case c.outbox <- f:
			return nil
		default:
			return nil // best-effort; never propagate per §4.3
		}
	}
}

// SendTyped is a convenience wrapper that marshals payload and sends it.
func (c *Channel) SendTyped(ctx context.Context, msgType string, payload any) error {
	f, err := NewFrame(msgType, payload)
	if err != nil {
		return err
	}
	return c.Send(ctx, f)
}

// Close idempotently stops the writer goroutine and closes the underlying
// connection, first sending a close frame carrying the given code when the
// channel is still open (e.g. a replacement code on re-attach).
func (c *Channel) Close(code string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if code != "" {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, code),
			time.Now().Add(time.Second))
	}
	close(c.done)
	return c.conn.Close()
}

func (c *Channel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.outbox:
			b, err := json.Marshal(f)
			if err != nil {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				_ = c.Close("")
				return
			}
		}
	}
}

// ReadLoop blocks reading frames and invoking handle for each until the
// connection closes, handle returns an error, or the context is cancelled
// (checked between reads); it returns that terminal error, which is never
// nil: a close by the peer surfaces as the read error. Each channel's incoming frames are processed
// strictly in order because this loop never parallelizes handle calls.
func (c *Channel) ReadLoop(ctx context.Context, handle func(Frame) error) error {
	defer c.Close("")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		c.Touch()
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			_ = c.SendTyped(ctx, "INVALID_JSON", FailPayload{Reason: err.Error(), Code: CodeInvalidJSON})
			continue
		}
		if err := handle(f); err != nil {
			return err
		}
	}
}
