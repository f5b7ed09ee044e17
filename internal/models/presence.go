package models

import "time"

// UserStatus is a user's availability.
type UserStatus string

const (
	StatusOnline       UserStatus = "online"
	StatusAway         UserStatus = "away"
	StatusBusy         UserStatus = "busy"
	StatusOffline      UserStatus = "offline"
	StatusInCall       UserStatus = "in_call"
	StatusDoNotDisturb UserStatus = "do_not_disturb"
)

// Valid reports whether s is a known status.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline, StatusInCall, StatusDoNotDisturb:
		return true
	}
	return false
}

// Presence is a user's live status, shared across every room they belong to.
type Presence struct {
	UserID        UserID     `json:"user_id"`
	TenantID      TenantID   `json:"tenant_id"`
	Status        UserStatus `json:"status"`
	StatusMessage string     `json:"status_message,omitempty"`
	LastSeen      time.Time  `json:"last_seen"`
	CurrentRoomID RoomID     `json:"current_room_id,omitempty"`
}

// UpdatePresenceRequest changes a user's presence.
type UpdatePresenceRequest struct {
	UserID        UserID     `json:"user_id"`
	TenantID      TenantID   `json:"tenant_id"`
	Status        UserStatus `json:"status"`
	StatusMessage string     `json:"status_message,omitempty"`
	CurrentRoomID RoomID     `json:"current_room_id,omitempty"`
}
