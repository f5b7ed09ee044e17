package fanout

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/collab/internal/codec"
	"github.com/eldtechnologies/collab/internal/models"
)

// envelope wraps an encoded event travelling over the bus.
type envelope struct {
	Origin string          `json:"origin"`
	Tenant models.TenantID `json:"tenant_id"`
	RoomID models.RoomID   `json:"room_id,omitempty"`
	Binary bool            `json:"binary"`
	Data   []byte          `json:"data"`
}

type attachment struct {
	tenant  models.TenantID
	user    models.UserID
	session Session
	rooms   map[models.RoomID]struct{}
}

// Hub fans events out to locally attached sessions and, optionally, to other
// instances through a Bus.
type Hub struct {
	codec    codec.Codec
	bus      Bus
	instance string
	logger   zerolog.Logger

	mu       sync.RWMutex
	conns    map[models.ConnectionID]*attachment
	byTenant map[models.TenantID]map[models.ConnectionID]*attachment
}

// NewHub creates a hub. bus may be nil for a single instance deployment.
func NewHub(c codec.Codec, bus Bus, instanceID string, logger zerolog.Logger) *Hub {
	return &Hub{
		codec:    c,
		bus:      bus,
		instance: instanceID,
		logger:   logger.With().Str("component", "fanout").Logger(),
		conns:    make(map[models.ConnectionID]*attachment),
		byTenant: make(map[models.TenantID]map[models.ConnectionID]*attachment),
	}
}

// Attach registers a session for a tenant user.
func (h *Hub) Attach(tenantID models.TenantID, userID models.UserID, connID models.ConnectionID, s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a := &attachment{tenant: tenantID, user: userID, session: s, rooms: make(map[models.RoomID]struct{})}
	h.conns[connID] = a

	set, ok := h.byTenant[tenantID]
	if !ok {
		set = make(map[models.ConnectionID]*attachment)
		h.byTenant[tenantID] = set
	}
	set[connID] = a
}

// Detach forgets a session.
func (h *Hub) Detach(connID models.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.conns[connID]
	if !ok {
		return
	}
	delete(h.conns, connID)
	if set := h.byTenant[a.tenant]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(h.byTenant, a.tenant)
		}
	}
}

// Subscribe routes a room's events to a session.
func (h *Hub) Subscribe(connID models.ConnectionID, roomID models.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if a, ok := h.conns[connID]; ok {
		a.rooms[roomID] = struct{}{}
	}
}

// Unsubscribe stops routing a room's events to a session.
func (h *Hub) Unsubscribe(connID models.ConnectionID, roomID models.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if a, ok := h.conns[connID]; ok {
		delete(a.rooms, roomID)
	}
}

// Sessions returns the number of attached sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) encode(ev *models.Event) (Frame, error) {
	data, err := h.codec.Marshal(ev)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return Frame{Binary: h.codec.Binary(), Data: data}, nil
}

// Broadcast delivers ev to the tenant's sessions subscribed to ev.RoomID, or
// to all of the tenant's sessions when the event has no room. The result only
// covers local sessions; remote instances deliver on their own.
func (h *Hub) Broadcast(ctx context.Context, tenantID models.TenantID, ev *models.Event) (Result, error) {
	frame, err := h.encode(ev)
	if err != nil {
		return Result{}, err
	}

	res := h.deliver(tenantID, ev.RoomID, frame)

	if h.bus != nil {
		payload, err := h.codec.Marshal(envelope{
			Origin: h.instance,
			Tenant: tenantID,
			RoomID: ev.RoomID,
			Binary: frame.Binary,
			Data:   frame.Data,
		})
		if err != nil {
			return res, fmt.Errorf("encode envelope: %w", err)
		}
		if err := h.bus.Publish(ctx, tenantID, payload); err != nil {
			return res, fmt.Errorf("publish: %w", err)
		}
	}
	return res, nil
}

// Unicast sends ev to one local session.
func (h *Hub) Unicast(_ context.Context, connID models.ConnectionID, ev *models.Event) error {
	frame, err := h.encode(ev)
	if err != nil {
		return err
	}

	h.mu.RLock()
	a, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}
	return a.session.Send(frame)
}

func (h *Hub) deliver(tenantID models.TenantID, roomID models.RoomID, frame Frame) Result {
	h.mu.RLock()
	targets := make([]*attachment, 0, len(h.byTenant[tenantID]))
	for _, a := range h.byTenant[tenantID] {
		if roomID != "" {
			if _, ok := a.rooms[roomID]; !ok {
				continue
			}
		}
		targets = append(targets, a)
	}
	h.mu.RUnlock()

	// A user counts as reached when any of their sessions accepted the frame.
	reached := make(map[models.UserID]bool, len(targets))
	order := make([]models.UserID, 0, len(targets))
	for _, a := range targets {
		ok := a.session.Send(frame) == nil
		prev, seen := reached[a.user]
		if !seen {
			order = append(order, a.user)
		}
		reached[a.user] = prev || ok
	}

	res := Result{Delivered: []models.UserID{}, Failed: []models.UserID{}}
	for _, u := range order {
		if reached[u] {
			res.Delivered = append(res.Delivered, u)
		} else {
			res.Failed = append(res.Failed, u)
		}
	}
	if len(res.Failed) > 0 {
		h.logger.Warn().
			Str("tenant_id", string(tenantID)).
			Str("room_id", string(roomID)).
			Int("failed", len(res.Failed)).
			Msg("some recipients could not be reached")
	}
	return res
}

// Run consumes envelopes from other instances until ctx is done. Without a
// bus it just waits for ctx.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus == nil {
		<-ctx.Done()
		return nil
	}
	return h.bus.Run(ctx, h.receive)
}

func (h *Hub) receive(payload []byte) {
	var env envelope
	if err := h.codec.Unmarshal(payload, &env); err != nil {
		h.logger.Warn().Err(err).Msg("dropping undecodable envelope")
		return
	}
	if env.Origin == h.instance {
		return
	}
	h.deliver(env.Tenant, env.RoomID, Frame{Binary: env.Binary, Data: env.Data})
}
