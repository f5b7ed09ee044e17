package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eldtechnologies/collab/internal/crypto"
	"github.com/eldtechnologies/collab/internal/fanout"
	"github.com/eldtechnologies/collab/internal/ids"
	"github.com/eldtechnologies/collab/internal/metrics"
	"github.com/eldtechnologies/collab/internal/models"
	"github.com/eldtechnologies/collab/internal/room"
)

// snapshotKey is the store key of a room snapshot.
func snapshotKey(id models.RoomID) string {
	return "room:" + string(id)
}

// CreateRoom creates a room seeded with the request's initial members.
func (e *Engine) CreateRoom(ctx context.Context, req models.CreateRoomRequest) (*models.Room, error) {
	if err := room.Validate(&req); err != nil {
		return nil, err
	}

	var keyHash string
	if req.Key != "" {
		h, err := crypto.HashRoomKey(req.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRoom, err)
		}
		keyHash = h
	}

	r := e.rooms.Create(ids.NewRoomID(), req, keyHash, e.now().UTC())

	metrics.RoomsCreated.WithLabelValues(string(r.Type)).Inc()
	metrics.ActiveRooms.Set(float64(e.rooms.Len()))

	e.saveSnapshot(ctx, r)
	e.saveToCatalog(r)

	e.logger.Info().
		Str("room_id", string(r.ID)).
		Str("tenant_id", string(r.TenantID)).
		Str("room_type", string(r.Type)).
		Int("members", len(r.Members)).
		Msg("room created")

	return r, nil
}

// saveToCatalog queues a write of the room's current state, membership
// included, to the catalog.
func (e *Engine) saveToCatalog(r *models.Room) {
	if e.catalog == nil {
		return
	}
	stored := r.Clone()
	e.enqueue("catalog.save_room", stored.ID, func(ctx context.Context) error {
		return e.catalog.SaveRoom(ctx, stored)
	})
}

// saveSnapshot writes the room to the store. Failures are logged only.
func (e *Engine) saveSnapshot(ctx context.Context, r *models.Room) {
	data, err := e.codec.Marshal(r)
	if err == nil {
		err = e.store.Put(ctx, snapshotKey(r.ID), data, e.cfg.SnapshotTTL)
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("room_id", string(r.ID)).Msg("failed to store room snapshot")
	}
}

// GetRoom returns a copy of an active room.
func (e *Engine) GetRoom(id models.RoomID) (*models.Room, bool) {
	return e.rooms.Get(id)
}

// ListRooms returns the tenant's active rooms.
func (e *Engine) ListRooms(tenantID models.TenantID) []*models.Room {
	return e.rooms.ListByTenant(tenantID)
}

// JoinRoom admits a transport session to a room. The capacity check happens
// before anything is mutated. On success the session receives a
// connection_established event followed by recent history, and the room is
// told the user joined.
func (e *Engine) JoinRoom(ctx context.Context, s fanout.Session, req models.JoinRoomRequest) (models.ConnectionID, error) {
	start := e.now()

	if req.UserID == "" {
		return "", fmt.Errorf("%w: user_id is required", ErrInvalidRoom)
	}

	tenantID, ok := e.rooms.Tenant(req.RoomID)
	if !ok {
		metrics.JoinsRejected.WithLabelValues("not_found").Inc()
		return "", ErrRoomNotFound
	}

	if hash, _ := e.rooms.KeyHash(req.RoomID); hash != "" {
		if err := crypto.CheckRoomKey(hash, req.Key); err != nil {
			metrics.JoinsRejected.WithLabelValues("key").Inc()
			return "", ErrRoomKeyMismatch
		}
	}

	if req.Role == "" {
		req.Role = models.RoleMember
	}
	if req.DisplayName == "" {
		req.DisplayName = "User " + string(req.UserID)
	}

	now := start.UTC()
	connID := ids.NewConnectionID()
	member := models.RoomMember{
		UserID:       req.UserID,
		DisplayName:  req.DisplayName,
		Role:         req.Role,
		Status:       models.StatusOnline,
		JoinedAt:     now,
		LastActiveAt: now,
	}

	added, err := e.rooms.AddMember(req.RoomID, member, connID)
	if err != nil {
		switch {
		case errors.Is(err, ErrCapacityExceeded):
			metrics.JoinsRejected.WithLabelValues("capacity").Inc()
		case errors.Is(err, ErrRoomNotFound):
			metrics.JoinsRejected.WithLabelValues("not_found").Inc()
		}
		return "", err
	}

	e.conns.Register(connID, req.UserID, tenantID, req.RoomID, now)
	e.adapter.Attach(tenantID, req.UserID, connID, s)
	e.adapter.Subscribe(connID, req.RoomID)
	metrics.ActiveConnections.Set(float64(e.conns.Len()))

	if _, err := e.presence.Update(ctx, models.UpdatePresenceRequest{
		UserID:        req.UserID,
		TenantID:      tenantID,
		Status:        models.StatusOnline,
		CurrentRoomID: req.RoomID,
	}); err != nil {
		e.logger.Warn().Err(err).Str("user_id", string(req.UserID)).Msg("failed to persist presence")
	}
	e.rooms.SetMemberStatus(tenantID, req.UserID, models.StatusOnline, now)

	r, _ := e.rooms.Get(req.RoomID)
	if added && r != nil {
		e.saveToCatalog(r)
	}
	if err := e.adapter.Unicast(ctx, connID, e.event(models.EventConnectionEstablished, req.RoomID, models.ConnectionEstablished{
		ConnectionID: connID,
		UserID:       req.UserID,
		Room:         r,
	})); err != nil {
		e.logger.Warn().Err(err).Str("connection_id", string(connID)).Msg("failed to confirm connection")
	}

	e.systemMessage(ctx, tenantID, req.RoomID, req.DisplayName+" joined the room")
	e.sendHistory(ctx, connID, req.RoomID)

	setupMs := since(start, e.now())
	log := e.logger.Info()
	if setupMs > metrics.TargetConnectionSetupMs {
		log = e.logger.Warn()
	}
	log.
		Str("room_id", string(req.RoomID)).
		Str("user_id", string(req.UserID)).
		Str("connection_id", string(connID)).
		Float64("setup_ms", setupMs).
		Msg("user joined room")

	return connID, nil
}

// sendHistory delivers recent messages to a joining session.
func (e *Engine) sendHistory(ctx context.Context, connID models.ConnectionID, roomID models.RoomID) {
	msgs, err := e.History(ctx, models.HistoryQuery{RoomID: roomID, Limit: e.cfg.JoinHistory})
	if err != nil {
		e.logger.Warn().Err(err).Str("room_id", string(roomID)).Msg("failed to load room history")
		msgs = []models.Message{}
	}
	ev := e.event(models.EventRoomHistory, roomID, models.RoomHistory{RoomID: roomID, Messages: msgs})
	if err := e.adapter.Unicast(ctx, connID, ev); err != nil {
		e.logger.Warn().Err(err).Str("connection_id", string(connID)).Msg("failed to send room history")
	}
}

// LeaveRoom removes a connection from a room. It returns false when the room
// or connection is unknown or the connection is not in the room, so calling
// it twice is harmless.
func (e *Engine) LeaveRoom(ctx context.Context, connID models.ConnectionID, roomID models.RoomID) bool {
	tenantID, ok := e.rooms.Tenant(roomID)
	if !ok {
		return false
	}
	st, ok := e.conns.Get(connID)
	if !ok {
		return false
	}

	removed, remaining := e.conns.RemoveRoom(connID, roomID)
	if !removed {
		return false
	}
	e.adapter.Unsubscribe(connID, roomID)

	var name string
	if r, ok := e.rooms.Get(roomID); ok {
		if m, ok := r.Member(st.UserID); ok {
			name = m.DisplayName
		}
	}

	// The member stays while another connection of the same user is in the room.
	removeMember := !e.conns.UserInRoom(st.UserID, roomID, connID)
	e.rooms.DetachConnection(roomID, connID, st.UserID, removeMember)
	if removeMember {
		if r, ok := e.rooms.Get(roomID); ok {
			e.saveToCatalog(r)
		}
	}

	if remaining == 0 {
		e.conns.Remove(connID)
		e.adapter.Detach(connID)
	}
	metrics.ActiveConnections.Set(float64(e.conns.Len()))

	if removeMember {
		if name == "" {
			name = "User " + string(st.UserID)
		}
		e.systemMessage(ctx, tenantID, roomID, name+" left the room")
	}

	e.logger.Info().
		Str("room_id", string(roomID)).
		Str("user_id", string(st.UserID)).
		Str("connection_id", string(connID)).
		Msg("user left room")
	return true
}

// LeaveRoomAs is LeaveRoom for a caller that must own the connection. A
// connection belonging to another user is treated as unknown.
func (e *Engine) LeaveRoomAs(ctx context.Context, userID models.UserID, connID models.ConnectionID, roomID models.RoomID) bool {
	st, ok := e.conns.Get(connID)
	if !ok || st.UserID != userID {
		return false
	}
	return e.LeaveRoom(ctx, connID, roomID)
}

// Disconnect leaves every room of a connection and forgets it. When it was
// the user's last connection the user goes offline.
func (e *Engine) Disconnect(ctx context.Context, connID models.ConnectionID) {
	st, ok := e.conns.Get(connID)
	if !ok {
		return
	}
	for _, roomID := range st.Rooms() {
		e.LeaveRoom(ctx, connID, roomID)
	}
	e.conns.Remove(connID)
	e.adapter.Detach(connID)
	metrics.ActiveConnections.Set(float64(e.conns.Len()))

	if len(e.conns.ByUser(st.UserID)) == 0 {
		if err := e.UpdatePresence(ctx, models.UpdatePresenceRequest{
			UserID:   st.UserID,
			TenantID: st.TenantID,
			Status:   models.StatusOffline,
		}); err != nil {
			e.logger.Warn().Err(err).Str("user_id", string(st.UserID)).Msg("failed to mark user offline")
		}
	}
}

// ArchiveRoom retires a room. Archived rooms reject joins and sends.
func (e *Engine) ArchiveRoom(ctx context.Context, id models.RoomID) bool {
	r, ok := e.rooms.Archive(id)
	if !ok {
		return false
	}
	e.breaker.Forget(id)
	metrics.ActiveRooms.Set(float64(e.rooms.Len()))

	e.saveSnapshot(ctx, r)
	if e.catalog != nil {
		e.enqueue("catalog.archive_room", id, func(ctx context.Context) error {
			return e.catalog.ArchiveRoom(ctx, id)
		})
	}

	e.logger.Info().Str("room_id", string(id)).Msg("room archived")
	return true
}

// recordActivity queues the catalog counter update and snapshot refresh that
// follow a routed message.
func (e *Engine) recordActivity(roomID models.RoomID, at time.Time) {
	r, ok := e.rooms.Get(roomID)
	if !ok {
		return
	}
	e.enqueue("room.activity", roomID, func(ctx context.Context) error {
		e.saveSnapshot(ctx, r)
		if e.catalog == nil {
			return nil
		}
		return e.catalog.RecordActivity(ctx, roomID, r.TotalMessagesSent, r.AverageLatencyMs, at)
	})
}
