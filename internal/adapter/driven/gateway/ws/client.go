// Package ws adapts gorilla websocket connections to port.Client.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// SDP blobs fit comfortably.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

type Mode int

const (
	// ModePresence speaks the JSON presence protocol.
	ModePresence Mode = iota
	// ModeRelay forwards raw frames between the members of one room and
	// drops every other event.
	ModeRelay
)

// Client is one websocket connection. Writes go through a buffered queue
// drained by WritePump, so Send never blocks the caller.
type Client struct {
	id   domain.ConnectionID
	conn *websocket.Conn
	mode Mode
	log  zerolog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, mode Mode) *Client {
	id := domain.NewConnectionID()
	return &Client{
		id:   id,
		conn: conn,
		mode: mode,
		log:  log.With().Str("client_id", id.String()).Logger(),
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() domain.ConnectionID {
	return c.id
}

func (c *Client) Send(evt domain.Event) error {
	var data []byte
	switch c.mode {
	case ModeRelay:
		if evt.Type != domain.EventRelay {
			return nil
		}
		data = evt.Payload
	default:
		// raw frames from relay connections sharing the room id
		if evt.Type == domain.EventRelay {
			return nil
		}
		var err error
		if data, err = EncodeEvent(evt); err != nil {
			return err
		}
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close asks WritePump to send a close frame and drop the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// ReadPump calls handle for every text frame until the connection fails.
// At most one goroutine may run ReadPump.
func (c *Client) ReadPump(handle func(data []byte)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}

// WritePump drains the send queue and keeps the connection alive with
// pings. It owns the connection and closes it on return.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug().Err(err).Msg("Write failed")
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
