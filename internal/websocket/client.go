// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package websocket

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
	sendBufferSize = 256
)

// clientIDCounter hands out monotonically increasing client IDs so
// fan-out iterates clients in a stable order.
var clientIDCounter atomic.Uint64

// Client binds one websocket connection to its monitoring session.
// The send channel is never closed; the hub signals shutdown through
// done, so queueing a frame can never hit a closed channel.
type Client struct {
	id      uint64
	hub     *Hub
	conn    *websocket.Conn
	session *session.Session
	monitor *Monitor
	send    chan Message
	done    chan struct{}
}

// NewClient wraps an upgraded connection for a resolved session.
func NewClient(hub *Hub, conn *websocket.Conn, sess *session.Session, monitor *Monitor) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		conn:    conn,
		session: sess,
		monitor: monitor,
		send:    make(chan Message, sendBufferSize),
		done:    make(chan struct{}),
	}
}

// Session returns the monitoring session this connection belongs to.
func (c *Client) Session() *session.Session {
	return c.session
}

// Enqueue queues an outbound frame without blocking. Returns false
// when the send buffer is full.
func (c *Client) Enqueue(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump reads frames until the connection dies. Every frame counts
// as session activity; non-ping frames burn the session's event
// budget. Malformed envelopes are dropped without closing the
// connection, so a client cannot probe the parser by error response.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		c.session.Touch(time.Now())
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				metrics.TelemetryDropped.WithLabelValues("oversized").Inc()
				logging.Warn().
					Str("session_id", c.session.SessionID).
					Msg("Oversized websocket frame, closing connection")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure):
				logging.Warn().Err(err).
					Str("session_id", c.session.SessionID).
					Msg("Unexpected websocket close")
			}
			return
		}

		c.session.Touch(time.Now())

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			metrics.TelemetryDropped.WithLabelValues("malformed").Inc()
			continue
		}

		if msg.Type == MessageTypePing {
			c.Enqueue(Message{Type: MessageTypePong, Data: PongData{Timestamp: time.Now().UnixMilli()}})
			continue
		}

		if !c.session.AllowEvent() {
			metrics.TelemetryDropped.WithLabelValues("rate_limited").Inc()
			continue
		}

		c.monitor.HandleMessage(c, msg.Type, msg.Data)
	}
}

// writePump drains the send buffer and keeps the connection alive with
// protocol pings. Session termination and hub removal outrank buffered
// frames, so a terminated session's final frame is never stuck behind
// backlog.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.session.Context().Done():
			c.writeTermination()
			return
		case <-c.done:
			c.writeClose()
			return
		default:
		}

		select {
		case <-c.session.Context().Done():
			c.writeTermination()
			return

		case <-c.done:
			c.writeClose()
			return

		case message := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("Failed to set write deadline")
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logging.Debug().Err(err).
					Str("session_id", c.session.SessionID).
					Msg("Websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeTermination delivers the final session_terminated frame with
// the release reason, then a protocol close.
func (c *Client) writeTermination() {
	reason := c.session.TerminationReason()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteJSON(Message{
		Type: MessageTypeSessionTerminated,
		Data: SessionTerminatedData{Reason: reason},
	})
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
}

func (c *Client) writeClose() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
