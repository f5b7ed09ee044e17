package handlers

import (
	"net/http"

	"github.com/eldtechnologies/collab/internal/models"
)

// CreateRoomRequest represents the room creation request. Tenant and
// creator come from the caller's identity.
type CreateRoomRequest struct {
	Type           models.RoomType `json:"room_type"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	MaxMembers     int             `json:"max_members"`
	InitialMembers []models.UserID `json:"initial_members,omitempty"`
	Key            string          `json:"key,omitempty"` // Shared secret for private rooms
	Settings       map[string]any  `json:"settings,omitempty"`
	Context        map[string]any  `json:"context,omitempty"`
}

// RoomListResponse represents the list rooms response.
type RoomListResponse struct {
	Rooms []*models.Room `json:"rooms"`
	Total int            `json:"total"`
}

// LeaveRoomRequest identifies the session leaving the room.
type LeaveRoomRequest struct {
	ConnectionID models.ConnectionID `json:"connection_id"`
}

// LeaveRoomResponse reports whether the session was in the room.
type LeaveRoomResponse struct {
	Left bool `json:"left"`
}

// CreateRoom handles room creation.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Key != "" && len(req.Key) < 16 {
		h.Error(w, http.StatusBadRequest, "room key must be at least 16 characters")
		return
	}

	room, err := h.engine.CreateRoom(r.Context(), models.CreateRoomRequest{
		TenantID:       id.TenantID,
		Type:           req.Type,
		Name:           sanitizeName(req.Name),
		Description:    req.Description,
		CreatedBy:      id.UserID,
		MaxMembers:     req.MaxMembers,
		InitialMembers: req.InitialMembers,
		Key:            req.Key,
		Settings:       req.Settings,
		Context:        req.Context,
	})
	if err != nil {
		h.engineError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, room)
}

// ListRooms lists the caller's tenant rooms.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	rooms := h.engine.ListRooms(id.TenantID)
	if rooms == nil {
		rooms = []*models.Room{}
	}
	h.JSON(w, http.StatusOK, RoomListResponse{Rooms: rooms, Total: len(rooms)})
}

// GetRoom returns one room.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	_, room, ok := h.room(w, r)
	if !ok {
		return
	}
	h.JSON(w, http.StatusOK, room)
}

// ArchiveRoom archives a room. Only its creator or an admin member may.
func (h *Handler) ArchiveRoom(w http.ResponseWriter, r *http.Request) {
	id, room, ok := h.room(w, r)
	if !ok {
		return
	}

	member, isMember := room.Member(id.UserID)
	if room.CreatedBy != id.UserID && !(isMember && member.Role == models.RoleAdmin) {
		h.Error(w, http.StatusForbidden, "only the room creator or an admin may archive")
		return
	}

	if !h.engine.ArchiveRoom(r.Context(), room.ID) {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// JoinRoom upgrades to a websocket session joined to the room.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	id, room, ok := h.room(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	role := models.MemberRole(q.Get("role"))
	switch role {
	case "", models.RoleMember, models.RoleModerator:
	default:
		h.Error(w, http.StatusBadRequest, "role must be member or moderator")
		return
	}

	key := r.Header.Get("X-Collab-Room-Key")
	if key == "" {
		key = q.Get("key")
	}
	if room.HasKey && key == "" {
		h.Error(w, http.StatusForbidden, "room key required for private rooms")
		return
	}

	h.ws.Serve(w, r, id.TenantID, models.JoinRoomRequest{
		RoomID:      room.ID,
		UserID:      id.UserID,
		DisplayName: sanitizeName(q.Get("display_name")),
		Role:        role,
		Key:         key,
	})
}

// LeaveRoom detaches one of the caller's sessions from the room.
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	id, room, ok := h.room(w, r)
	if !ok {
		return
	}

	var req LeaveRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ConnectionID == "" {
		h.Error(w, http.StatusBadRequest, "connection_id is required")
		return
	}

	h.JSON(w, http.StatusOK, LeaveRoomResponse{Left: h.engine.LeaveRoomAs(r.Context(), id.UserID, req.ConnectionID, room.ID)})
}
