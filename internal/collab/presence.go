package collab

import (
	"context"
	"fmt"

	"github.com/eldtechnologies/collab/internal/models"
)

// UpdatePresence overwrites a user's presence, persists it with the presence
// TTL and fans it out to every room the user's connections are in.
func (e *Engine) UpdatePresence(ctx context.Context, req models.UpdatePresenceRequest) error {
	if req.UserID == "" || req.TenantID == "" {
		return fmt.Errorf("%w: user_id and tenant_id are required", ErrInvalidPresence)
	}
	if !req.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPresence, req.Status)
	}

	p, err := e.presence.Update(ctx, req)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", string(req.UserID)).Msg("failed to persist presence")
	}
	e.rooms.SetMemberStatus(req.TenantID, req.UserID, req.Status, p.LastSeen)

	rooms := make(map[models.RoomID]struct{})
	for _, c := range e.conns.ByUser(req.UserID) {
		for id := range c.RoomIDs {
			rooms[id] = struct{}{}
		}
	}
	for id := range rooms {
		if _, err := e.broadcast(ctx, req.TenantID, e.event(models.EventPresenceUpdate, id, p)); err != nil {
			e.logger.Warn().Err(err).Str("room_id", string(id)).Msg("failed to broadcast presence")
		}
	}
	return nil
}

// GetRoomPresence returns one presence entry per room member. Members with
// no recorded presence get an entry built from their last known status.
func (e *Engine) GetRoomPresence(ctx context.Context, roomID models.RoomID) ([]models.Presence, error) {
	r, ok := e.rooms.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	out := make([]models.Presence, 0, len(r.Members))
	for _, m := range r.Members {
		if p, ok := e.presence.Lookup(ctx, m.UserID); ok {
			out = append(out, p)
			continue
		}
		status := m.Status
		if status == "" {
			status = models.StatusOffline
		}
		out = append(out, models.Presence{
			UserID:   m.UserID,
			TenantID: r.TenantID,
			Status:   status,
			LastSeen: m.LastActiveAt,
		})
	}
	return out, nil
}
