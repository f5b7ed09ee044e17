package models

import (
	"time"
)

// RoomType categorises what a room is used for.
type RoomType string

const (
	RoomTypeTeam        RoomType = "team"
	RoomTypeClient      RoomType = "client"
	RoomTypeLeadHandoff RoomType = "lead_handoff"
	RoomTypeTour        RoomType = "tour"
	RoomTypeTraining    RoomType = "training"
	RoomTypeEmergency   RoomType = "emergency"
)

// Valid reports whether t is a known room type.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeTeam, RoomTypeClient, RoomTypeLeadHandoff, RoomTypeTour, RoomTypeTraining, RoomTypeEmergency:
		return true
	}
	return false
}

// MemberRole is a member's privilege level inside a room.
type MemberRole string

const (
	RoleMember    MemberRole = "member"
	RoleModerator MemberRole = "moderator"
	RoleAdmin     MemberRole = "admin"
)

// RoomMember is a participant of a room. Members are owned by their room.
type RoomMember struct {
	UserID       UserID     `json:"user_id"`
	TenantID     TenantID   `json:"tenant_id"`
	DisplayName  string     `json:"display_name"`
	Role         MemberRole `json:"role"`
	Status       UserStatus `json:"status"`
	JoinedAt     time.Time  `json:"joined_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	Permissions  []string   `json:"permissions,omitempty"`
}

// Room represents a capacity-bounded collaboration room.
type Room struct {
	ID                RoomID         `json:"room_id"`
	TenantID          TenantID       `json:"tenant_id"`
	Type              RoomType       `json:"room_type"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	CreatedBy         UserID         `json:"created_by"`
	Members           []RoomMember   `json:"members"`
	MaxMembers        int            `json:"max_members"`
	IsActive          bool           `json:"is_active"`
	IsArchived        bool           `json:"is_archived"`
	HasKey            bool           `json:"has_key"`
	KeyHash           string         `json:"-"`
	MessageCount      int64          `json:"message_count"`
	TotalMessagesSent int64          `json:"total_messages_sent"`
	AverageLatencyMs  float64        `json:"average_latency_ms"`
	LastMessageAt     *time.Time     `json:"last_message_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	Settings          map[string]any `json:"settings,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
}

// Member returns the member with the given user id, if present.
func (r *Room) Member(userID UserID) (RoomMember, bool) {
	for _, m := range r.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return RoomMember{}, false
}

// Clone returns a deep enough copy of r for callers outside the registry.
func (r *Room) Clone() *Room {
	c := *r
	c.Members = make([]RoomMember, len(r.Members))
	for i, m := range r.Members {
		m.Permissions = append([]string(nil), m.Permissions...)
		c.Members[i] = m
	}
	if r.LastMessageAt != nil {
		t := *r.LastMessageAt
		c.LastMessageAt = &t
	}
	c.Settings = cloneMap(r.Settings)
	c.Context = cloneMap(r.Context)
	return &c
}

// RoomState is the lightweight index kept next to each room.
type RoomState struct {
	RoomID            RoomID
	TenantID          TenantID
	Type              RoomType
	MemberIDs         map[UserID]struct{}
	ActiveConnections map[ConnectionID]struct{}
}

// CreateRoomRequest describes a room to create.
type CreateRoomRequest struct {
	TenantID       TenantID       `json:"tenant_id"`
	Type           RoomType       `json:"room_type"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	CreatedBy      UserID         `json:"created_by"`
	MaxMembers     int            `json:"max_members"`
	InitialMembers []UserID       `json:"initial_members,omitempty"`
	Key            string         `json:"key,omitempty"`
	Settings       map[string]any `json:"settings,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

// JoinRoomRequest is what a transport session presents when joining.
type JoinRoomRequest struct {
	RoomID      RoomID     `json:"room_id"`
	UserID      UserID     `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Role        MemberRole `json:"role"`
	Key         string     `json:"key,omitempty"`
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
