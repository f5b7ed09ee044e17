// Package transport carries collaboration events over websocket sessions.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/collab/internal/fanout"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second // must stay below pongWait

	// DefaultSendBuffer is the number of outbound frames a session queues
	// before it reports itself busy.
	DefaultSendBuffer = 256
)

// ErrSessionClosed is returned when sending to a closed session.
var ErrSessionClosed = errors.New("session closed")

// Session is one websocket connection. Send never blocks; a slow client
// fills its buffer and starts failing deliveries instead of stalling the
// room.
type Session struct {
	conn   *websocket.Conn
	send   chan fanout.Frame
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

// NewSession wraps an upgraded websocket connection.
func NewSession(conn *websocket.Conn, buffer int, logger zerolog.Logger) *Session {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Session{
		conn:   conn,
		send:   make(chan fanout.Frame, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send queues a frame for the write pump.
func (s *Session) Send(f fanout.Frame) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- f:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return fanout.ErrSessionBusy
	}
}

// Close stops the write pump and closes the connection. Safe to call twice.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// writePump drains queued frames to the socket and pings the client.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case f := <-s.send:
			if err := s.write(f); err != nil {
				s.logger.Debug().Err(err).Msg("write failed")
				s.Close()
				return
			}

			n := len(s.send)
			for i := 0; i < n; i++ {
				if err := s.write(<-s.send); err != nil {
					s.logger.Debug().Err(err).Msg("write failed")
					s.Close()
					return
				}
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}

		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Session) write(f fanout.Frame) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	kind := websocket.TextMessage
	if f.Binary {
		kind = websocket.BinaryMessage
	}
	return s.conn.WriteMessage(kind, f.Data)
}

// readPump delivers inbound frames to handle until the client goes away or
// ctx ends. onPong runs on every pong.
func (s *Session) readPump(ctx context.Context, handle func(binary bool, data []byte), onPong func()) {
	defer s.Close()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		onPong()
		return nil
	})

	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch kind {
		case websocket.TextMessage:
			handle(false, data)
		case websocket.BinaryMessage:
			handle(true, data)
		}
	}
}
