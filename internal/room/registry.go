// Package room owns room lifecycle, membership and capacity.
package room

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eldtechnologies/collab/internal/models"
)

// DefaultMaxMembers applies when a create request leaves capacity unset.
const DefaultMaxMembers = 50

var (
	ErrNotFound         = errors.New("room not found")
	ErrCapacityExceeded = errors.New("room at capacity")
	ErrInvalid          = errors.New("invalid room")
)

type entry struct {
	room  *models.Room
	state *models.RoomState
}

// Registry holds rooms and their lightweight state index. Each room is
// guarded by the registry lock; membership checks and mutations happen under
// the same critical section.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[models.RoomID]*entry
	byTenant map[models.TenantID]map[models.RoomID]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[models.RoomID]*entry),
		byTenant: make(map[models.TenantID]map[models.RoomID]struct{}),
	}
}

// Validate normalises a create request, filling defaults.
func Validate(req *models.CreateRoomRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if req.TenantID == "" {
		return fmt.Errorf("%w: tenant_id is required", ErrInvalid)
	}
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if req.Type == "" {
		req.Type = models.RoomTypeTeam
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: unknown room type %q", ErrInvalid, req.Type)
	}
	if req.MaxMembers == 0 {
		req.MaxMembers = DefaultMaxMembers
	}
	if req.MaxMembers < 1 {
		return fmt.Errorf("%w: max_members must be positive", ErrInvalid)
	}

	seen := make(map[models.UserID]struct{}, len(req.InitialMembers))
	members := req.InitialMembers[:0:0]
	for _, id := range req.InitialMembers {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	req.InitialMembers = members
	if len(members) > req.MaxMembers {
		return fmt.Errorf("%w: %d initial members exceed max_members %d", ErrInvalid, len(members), req.MaxMembers)
	}
	return nil
}

// Create stores a new room built from a validated request.
func (r *Registry) Create(id models.RoomID, req models.CreateRoomRequest, keyHash string, now time.Time) *models.Room {
	room := &models.Room{
		ID:          id,
		TenantID:    req.TenantID,
		Type:        req.Type,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
		Members:     make([]models.RoomMember, 0, len(req.InitialMembers)),
		MaxMembers:  req.MaxMembers,
		IsActive:    true,
		HasKey:      keyHash != "",
		KeyHash:     keyHash,
		CreatedAt:   now,
		Settings:    req.Settings,
		Context:     req.Context,
	}
	for _, uid := range req.InitialMembers {
		role := models.RoleMember
		if uid == req.CreatedBy {
			role = models.RoleAdmin
		}
		room.Members = append(room.Members, models.RoomMember{
			UserID:       uid,
			TenantID:     req.TenantID,
			DisplayName:  "User " + string(uid),
			Role:         role,
			Status:       models.StatusOffline,
			JoinedAt:     now,
			LastActiveAt: now,
		})
	}

	r.mu.Lock()
	r.insert(room)
	r.mu.Unlock()

	return room.Clone()
}

// Restore loads rooms kept by a durable catalog. Existing ids are skipped.
func (r *Registry) Restore(rooms []*models.Room) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, room := range rooms {
		if _, exists := r.rooms[room.ID]; exists {
			continue
		}
		r.insert(room.Clone())
		n++
	}
	return n
}

func (r *Registry) insert(room *models.Room) {
	state := &models.RoomState{
		RoomID:            room.ID,
		TenantID:          room.TenantID,
		Type:              room.Type,
		MemberIDs:         make(map[models.UserID]struct{}, len(room.Members)),
		ActiveConnections: make(map[models.ConnectionID]struct{}),
	}
	for _, m := range room.Members {
		state.MemberIDs[m.UserID] = struct{}{}
	}
	r.rooms[room.ID] = &entry{room: room, state: state}

	set, ok := r.byTenant[room.TenantID]
	if !ok {
		set = make(map[models.RoomID]struct{})
		r.byTenant[room.TenantID] = set
	}
	set[room.ID] = struct{}{}
}

// active returns the entry for a room that exists and is not archived.
func (r *Registry) active(id models.RoomID) (*entry, bool) {
	e, ok := r.rooms[id]
	if !ok || e.room.IsArchived {
		return nil, false
	}
	return e, true
}

// Get returns a copy of an active room.
func (r *Registry) Get(id models.RoomID) (*models.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.active(id)
	if !ok {
		return nil, false
	}
	return e.room.Clone(), true
}

// Tenant returns the owning tenant of an active room.
func (r *Registry) Tenant(id models.RoomID) (models.TenantID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.active(id)
	if !ok {
		return "", false
	}
	return e.room.TenantID, true
}

// KeyHash returns the join key hash of an active room, empty if open.
func (r *Registry) KeyHash(id models.RoomID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.active(id)
	if !ok {
		return "", false
	}
	return e.room.KeyHash, true
}

// AddMember admits a member on behalf of a connection. Capacity is checked
// before anything is mutated; a user who is already a member is re-activated
// without using another slot. It reports whether a new member was appended.
func (r *Registry) AddMember(id models.RoomID, member models.RoomMember, connID models.ConnectionID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.active(id)
	if !ok {
		return false, ErrNotFound
	}

	for i := range e.room.Members {
		m := &e.room.Members[i]
		if m.UserID != member.UserID {
			continue
		}
		if member.DisplayName != "" {
			m.DisplayName = member.DisplayName
		}
		if member.Role != "" {
			m.Role = member.Role
		}
		m.Status = member.Status
		m.LastActiveAt = member.LastActiveAt
		e.state.ActiveConnections[connID] = struct{}{}
		return false, nil
	}

	if len(e.room.Members) >= e.room.MaxMembers {
		return false, ErrCapacityExceeded
	}

	member.TenantID = e.room.TenantID
	e.room.Members = append(e.room.Members, member)
	e.state.MemberIDs[member.UserID] = struct{}{}
	e.state.ActiveConnections[connID] = struct{}{}
	return true, nil
}

// DetachConnection removes a connection from the room's active set. When
// removeMember is set the user is also dropped from the member list.
func (r *Registry) DetachConnection(id models.RoomID, connID models.ConnectionID, userID models.UserID, removeMember bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rooms[id]
	if !ok {
		return false
	}
	delete(e.state.ActiveConnections, connID)
	if !removeMember {
		return true
	}

	kept := e.room.Members[:0]
	for _, m := range e.room.Members {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	e.room.Members = kept
	delete(e.state.MemberIDs, userID)
	return true
}

// SetMemberStatus updates a member's status in every active room of the
// tenant that lists the user.
func (r *Registry) SetMemberStatus(tenantID models.TenantID, userID models.UserID, status models.UserStatus, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.byTenant[tenantID] {
		e, ok := r.active(id)
		if !ok {
			continue
		}
		if _, member := e.state.MemberIDs[userID]; !member {
			continue
		}
		for i := range e.room.Members {
			if e.room.Members[i].UserID == userID {
				e.room.Members[i].Status = status
				e.room.Members[i].LastActiveAt = now
			}
		}
	}
}

// Members returns a copy of the room's member list.
func (r *Registry) Members(id models.RoomID) ([]models.RoomMember, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.active(id)
	if !ok {
		return nil, false
	}
	return append([]models.RoomMember(nil), e.room.Members...), true
}

// State returns a copy of the lightweight room index.
func (r *Registry) State(id models.RoomID) (models.RoomState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rooms[id]
	if !ok {
		return models.RoomState{}, false
	}
	st := *e.state
	st.MemberIDs = make(map[models.UserID]struct{}, len(e.state.MemberIDs))
	for k := range e.state.MemberIDs {
		st.MemberIDs[k] = struct{}{}
	}
	st.ActiveConnections = make(map[models.ConnectionID]struct{}, len(e.state.ActiveConnections))
	for k := range e.state.ActiveConnections {
		st.ActiveConnections[k] = struct{}{}
	}
	return st, true
}

// RecordMessage updates the room's running counters.
func (r *Registry) RecordMessage(id models.RoomID, latencyMs float64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rooms[id]
	if !ok {
		return
	}
	room := e.room
	room.MessageCount++
	room.TotalMessagesSent++
	room.AverageLatencyMs += (latencyMs - room.AverageLatencyMs) / float64(room.TotalMessagesSent)
	t := at
	room.LastMessageAt = &t
}

// Archive retires a room. Archived rooms are kept but no longer served.
func (r *Registry) Archive(id models.RoomID) (*models.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.active(id)
	if !ok {
		return nil, false
	}
	e.room.IsArchived = true
	e.room.IsActive = false
	return e.room.Clone(), true
}

// ListByTenant returns the tenant's active rooms, oldest first.
func (r *Registry) ListByTenant(tenantID models.TenantID) []*models.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Room, 0, len(r.byTenant[tenantID]))
	for id := range r.byTenant[tenantID] {
		if e, ok := r.active(id); ok {
			out = append(out, e.room.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of active rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.rooms {
		if !e.room.IsArchived {
			n++
		}
	}
	return n
}
