package models

// Identifier types keep room, tenant, user, connection and message keys
// from being mixed up in the registries.
type (
	RoomID       string
	TenantID     string
	UserID       string
	ConnectionID string
	MessageID    string
)

func (id RoomID) String() string       { return string(id) }
func (id TenantID) String() string     { return string(id) }
func (id UserID) String() string       { return string(id) }
func (id ConnectionID) String() string { return string(id) }
func (id MessageID) String() string    { return string(id) }
