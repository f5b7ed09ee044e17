// Package connection tracks live transport sessions.
package connection

import (
	"sync"
	"time"

	"github.com/eldtechnologies/collab/internal/models"
)

// Registry maps connection to user, tenant, joined rooms and heartbeat.
// It never closes sessions; transport disconnect detection lives elsewhere.
type Registry struct {
	mu     sync.RWMutex
	conns  map[models.ConnectionID]*models.ConnectionState
	byUser map[models.UserID]map[models.ConnectionID]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[models.ConnectionID]*models.ConnectionState),
		byUser: make(map[models.UserID]map[models.ConnectionID]struct{}),
	}
}

// Register adds a connection that has joined roomID.
func (r *Registry) Register(id models.ConnectionID, userID models.UserID, tenantID models.TenantID, roomID models.RoomID, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[id] = &models.ConnectionState{
		ID:            id,
		UserID:        userID,
		TenantID:      tenantID,
		RoomIDs:       map[models.RoomID]struct{}{roomID: {}},
		ConnectedAt:   now,
		LastHeartbeat: now,
		Status:        models.ConnectionActive,
	}
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[models.ConnectionID]struct{})
		r.byUser[userID] = set
	}
	set[id] = struct{}{}
}

// Get returns a copy of the connection state.
func (r *Registry) Get(id models.ConnectionID) (models.ConnectionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return models.ConnectionState{}, false
	}
	return copyState(c), true
}

// InRoom reports whether the connection has joined the room.
func (r *Registry) InRoom(id models.ConnectionID, roomID models.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return false
	}
	_, in := c.RoomIDs[roomID]
	return in
}

// AddRoom records that the connection joined another room.
func (r *Registry) AddRoom(id models.ConnectionID, roomID models.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.RoomIDs[roomID] = struct{}{}
	return true
}

// RemoveRoom drops roomID from the connection. It reports whether the
// connection was in the room and how many rooms remain.
func (r *Registry) RemoveRoom(id models.ConnectionID, roomID models.RoomID) (removed bool, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return false, 0
	}
	if _, in := c.RoomIDs[roomID]; !in {
		return false, len(c.RoomIDs)
	}
	delete(c.RoomIDs, roomID)
	return true, len(c.RoomIDs)
}

// Remove destroys the connection state.
func (r *Registry) Remove(id models.ConnectionID) (models.ConnectionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return models.ConnectionState{}, false
	}
	delete(r.conns, id)
	if set := r.byUser[c.UserID]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byUser, c.UserID)
		}
	}
	return copyState(c), true
}

// ByUser returns copies of every live connection of the user.
func (r *Registry) ByUser(userID models.UserID) []models.ConnectionState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	out := make([]models.ConnectionState, 0, len(set))
	for id := range set {
		if c, ok := r.conns[id]; ok {
			out = append(out, copyState(c))
		}
	}
	return out
}

// UserInRoom reports whether any connection of the user other than except
// has joined the room.
func (r *Registry) UserInRoom(userID models.UserID, roomID models.RoomID, except models.ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id := range r.byUser[userID] {
		if id == except {
			continue
		}
		if c, ok := r.conns[id]; ok {
			if _, in := c.RoomIDs[roomID]; in {
				return true
			}
		}
	}
	return false
}

// Touch records a heartbeat.
func (r *Registry) Touch(id models.ConnectionID, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.LastHeartbeat = now
	c.Status = models.ConnectionActive
	return true
}

// Live returns connections whose last heartbeat is within staleAfter of now.
// Connections beyond it are marked stale and left in place.
func (r *Registry) Live(now time.Time, staleAfter time.Duration) []models.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ConnectionState, 0, len(r.conns))
	for _, c := range r.conns {
		if now.Sub(c.LastHeartbeat) < staleAfter {
			out = append(out, copyState(c))
			continue
		}
		c.Status = models.ConnectionStale
	}
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func copyState(c *models.ConnectionState) models.ConnectionState {
	out := *c
	out.RoomIDs = make(map[models.RoomID]struct{}, len(c.RoomIDs))
	for id := range c.RoomIDs {
		out.RoomIDs[id] = struct{}{}
	}
	return out
}
