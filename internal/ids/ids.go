package ids

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/collab/internal/models"
)

// NewRoomID generates a time-ordered UUID v7 room id.
func NewRoomID() models.RoomID {
	return models.RoomID(uuid.Must(uuid.NewV7()).String())
}

// NewConnectionID generates a connection id.
func NewConnectionID() models.ConnectionID {
	return models.ConnectionID(uuid.Must(uuid.NewV7()).String())
}

// NewMessageID returns a ULID. ulid.Make draws from a process-wide monotonic
// source, so ids created by one instance sort in creation order.
func NewMessageID() models.MessageID {
	return models.MessageID(ulid.Make().String())
}

// ValidMessageID reports whether s parses as a ULID.
func ValidMessageID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
