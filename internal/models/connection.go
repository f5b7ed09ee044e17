package models

import "time"

// ConnectionStatus is the lifecycle state of a transport session.
type ConnectionStatus string

const (
	ConnectionActive ConnectionStatus = "active"
	ConnectionStale  ConnectionStatus = "stale"
)

// ConnectionState tracks one live transport session.
type ConnectionState struct {
	ID            ConnectionID
	UserID        UserID
	TenantID      TenantID
	RoomIDs       map[RoomID]struct{}
	ConnectedAt   time.Time
	LastHeartbeat time.Time
	Status        ConnectionStatus
}

// Rooms returns the joined room ids.
func (c *ConnectionState) Rooms() []RoomID {
	out := make([]RoomID, 0, len(c.RoomIDs))
	for id := range c.RoomIDs {
		out = append(out, id)
	}
	return out
}
