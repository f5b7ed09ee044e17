package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/collab/internal/codec"
	"github.com/eldtechnologies/collab/internal/fanout"
	"github.com/eldtechnologies/collab/internal/models"
)

var errBadFrame = errors.New("malformed frame")

// inboundFrame is the envelope of every client event.
type inboundFrame struct {
	Type string `json:"event_type"`
}

// decodeData extracts the data field of a frame as T.
func decodeData[T any](c codec.Codec, raw []byte) (T, error) {
	var frame struct {
		Data T `json:"data"`
	}
	if err := c.Unmarshal(raw, &frame); err != nil {
		return frame.Data, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	return frame.Data, nil
}

// client is the per-connection state behind a joined session. Every inbound
// event acts on the room the session joined, as the session's user.
type client struct {
	srv         *Server
	session     *Session
	connID      models.ConnectionID
	userID      models.UserID
	tenantID    models.TenantID
	roomID      models.RoomID
	displayName string
	logger      zerolog.Logger
}

func (c *client) handle(binary bool, data []byte) {
	var cd codec.Codec = codec.JSON{}
	if binary {
		cd = codec.MsgPack{}
	}

	c.srv.engine.Heartbeat(c.connID)

	var frame inboundFrame
	if err := cd.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		c.reply(cd, models.EventError, models.ErrorData{Code: errorCode(errBadFrame), Message: "frame must carry an event_type"})
		return
	}

	ctx := context.Background()
	var err error

	switch frame.Type {
	case models.EventPing:
		c.reply(cd, models.EventPong, nil)
		return

	case models.EventSendMessage:
		var req models.SendMessageRequest
		if req, err = decodeData[models.SendMessageRequest](cd, data); err != nil {
			break
		}
		req.RoomID = c.roomID
		req.SenderID = c.userID
		if req.SenderName == "" {
			req.SenderName = c.displayName
		}
		_, err = c.srv.engine.SendMessage(ctx, req)

	case models.EventTypingIndicator:
		var ind models.TypingIndicator
		if ind, err = decodeData[models.TypingIndicator](cd, data); err != nil {
			break
		}
		ind.RoomID = c.roomID
		ind.UserID = c.userID
		if ind.UserName == "" {
			ind.UserName = c.displayName
		}
		err = c.srv.engine.SendTypingIndicator(ctx, ind)

	case models.EventUpdatePresence:
		var req models.UpdatePresenceRequest
		if req, err = decodeData[models.UpdatePresenceRequest](cd, data); err != nil {
			break
		}
		req.UserID = c.userID
		req.TenantID = c.tenantID
		if req.CurrentRoomID == "" {
			req.CurrentRoomID = c.roomID
		}
		err = c.srv.engine.UpdatePresence(ctx, req)

	default:
		c.reply(cd, models.EventError, models.ErrorData{Code: "unknown_event", Message: "unsupported event_type " + frame.Type})
		return
	}

	if err != nil {
		c.logger.Debug().Err(err).Str("event_type", frame.Type).Msg("inbound event failed")
		c.reply(cd, models.EventError, models.ErrorData{Code: errorCode(err), Message: err.Error()})
	}
}

// reply sends an event to this session only.
func (c *client) reply(cd codec.Codec, typ string, data any) {
	ev := &models.Event{Type: typ, RoomID: c.roomID, Timestamp: time.Now().UTC(), Data: data}
	payload, err := cd.Marshal(ev)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode reply")
		return
	}
	if err := c.session.Send(fanout.Frame{Binary: cd.Binary(), Data: payload}); err != nil {
		c.logger.Debug().Err(err).Str("event_type", typ).Msg("reply dropped")
	}
}
