package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/collab/internal/codec"
	"github.com/eldtechnologies/collab/internal/collab"
	"github.com/eldtechnologies/collab/internal/fanout"
	"github.com/eldtechnologies/collab/internal/models"
)

// Engine is the part of the collaboration engine a session drives.
type Engine interface {
	JoinRoom(ctx context.Context, s fanout.Session, req models.JoinRoomRequest) (models.ConnectionID, error)
	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.DeliveryConfirmation, error)
	SendTypingIndicator(ctx context.Context, ind models.TypingIndicator) error
	UpdatePresence(ctx context.Context, req models.UpdatePresenceRequest) error
	Heartbeat(connID models.ConnectionID) bool
	Disconnect(ctx context.Context, connID models.ConnectionID)
}

// Server upgrades HTTP requests into room sessions.
type Server struct {
	engine   Engine
	upgrader websocket.Upgrader
	buffer   int
	logger   zerolog.Logger
}

// NewServer creates a websocket server for engine.
func NewServer(engine Engine, logger zerolog.Logger) *Server {
	return &Server{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Callers are authenticated by the identity middleware before upgrade.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		buffer: DefaultSendBuffer,
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// Serve upgrades the request, joins the session into req.RoomID and blocks
// until the connection closes. The connection is disconnected from the
// engine on return.
func (srv *Server) Serve(w http.ResponseWriter, r *http.Request, tenantID models.TenantID, req models.JoinRoomRequest) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	ctx := r.Context()

	logger := srv.logger.With().
		Str("room_id", string(req.RoomID)).
		Str("user_id", string(req.UserID)).
		Logger()
	s := NewSession(conn, srv.buffer, logger)

	connID, err := srv.engine.JoinRoom(ctx, s, req)
	if err != nil {
		logger.Info().Err(err).Msg("join rejected")
		srv.reject(conn, err)
		return
	}

	c := &client{
		srv:         srv,
		session:     s,
		connID:      connID,
		userID:      req.UserID,
		tenantID:    tenantID,
		roomID:      req.RoomID,
		displayName: req.DisplayName,
		logger:      logger.With().Str("connection_id", string(connID)).Logger(),
	}

	go s.writePump()
	s.readPump(ctx, c.handle, func() { srv.engine.Heartbeat(connID) })

	srv.engine.Disconnect(context.WithoutCancel(ctx), connID)
	c.logger.Debug().Msg("session closed")
}

// reject reports a failed join and closes the socket. The write pump is not
// running yet so writing directly is safe.
func (srv *Server) reject(conn *websocket.Conn, err error) {
	defer conn.Close()

	code, msg := errorCode(err), err.Error()
	ev := &models.Event{
		Type:      models.EventError,
		Timestamp: time.Now().UTC(),
		Data:      models.ErrorData{Code: code, Message: msg},
	}
	data, mErr := codec.JSON{}.Marshal(ev)
	if mErr == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}

	closeCode := websocket.ClosePolicyViolation
	if errors.Is(err, collab.ErrCapacityExceeded) {
		closeCode = websocket.CloseTryAgainLater
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, code), time.Now().Add(time.Second))
}

// errorCode maps engine errors to the codes carried in error events.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errBadFrame):
		return "invalid_frame"
	case errors.Is(err, collab.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, collab.ErrCapacityExceeded):
		return "room_full"
	case errors.Is(err, collab.ErrRoomKeyMismatch):
		return "invalid_room_key"
	case errors.Is(err, collab.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, collab.ErrDeliveryFailed):
		return "delivery_failed"
	case errors.Is(err, collab.ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, collab.ErrInvalidPresence):
		return "invalid_presence"
	case errors.Is(err, collab.ErrInvalidRoom):
		return "invalid_request"
	default:
		return "internal_error"
	}
}
