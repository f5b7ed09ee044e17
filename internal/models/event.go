package models

import "time"

// Event types exchanged with transport sessions.
const (
	EventConnectionEstablished = "connection_established"
	EventCollaborationMessage  = "collaboration_message"
	EventTypingIndicator       = "typing_indicator"
	EventPresenceUpdate        = "presence_update"
	EventRoomHistory           = "room_history"
	EventPing                  = "ping"
	EventPong                  = "pong"
	EventError                 = "error"

	// Inbound only.
	EventSendMessage    = "send_message"
	EventUpdatePresence = "update_presence"
)

// Event is the typed envelope fanned out to sessions.
type Event struct {
	Type      string    `json:"event_type"`
	RoomID    RoomID    `json:"room_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// ConnectionEstablished is sent to a session right after it joins a room.
type ConnectionEstablished struct {
	ConnectionID ConnectionID `json:"connection_id"`
	UserID       UserID       `json:"user_id"`
	Room         *Room        `json:"room"`
}

// RoomHistory carries recent messages to a joining session.
type RoomHistory struct {
	RoomID   RoomID    `json:"room_id"`
	Messages []Message `json:"messages"`
}

// ErrorData describes a rejected inbound event.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
