package handlers

import (
	"net/http"

	"github.com/eldtechnologies/collab/internal/models"
)

// RoomPresenceResponse lists one presence entry per room member.
type RoomPresenceResponse struct {
	RoomID   models.RoomID     `json:"room_id"`
	Presence []models.Presence `json:"presence"`
}

// UpdatePresenceRequest changes the caller's presence.
type UpdatePresenceRequest struct {
	Status        models.UserStatus `json:"status"`
	StatusMessage string            `json:"status_message,omitempty"`
	CurrentRoomID models.RoomID     `json:"current_room_id,omitempty"`
}

// GetRoomPresence returns presence for every member of the room.
func (h *Handler) GetRoomPresence(w http.ResponseWriter, r *http.Request) {
	_, room, ok := h.room(w, r)
	if !ok {
		return
	}

	presence, err := h.engine.GetRoomPresence(r.Context(), room.ID)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, RoomPresenceResponse{RoomID: room.ID, Presence: presence})
}

// UpdatePresence sets the caller's presence and fans it out.
func (h *Handler) UpdatePresence(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req UpdatePresenceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := h.engine.UpdatePresence(r.Context(), models.UpdatePresenceRequest{
		UserID:        id.UserID,
		TenantID:      id.TenantID,
		Status:        req.Status,
		StatusMessage: sanitizeName(req.StatusMessage),
		CurrentRoomID: req.CurrentRoomID,
	})
	if err != nil {
		h.engineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
