package store

import (
	"context"
	"errors"
	"time"

	"github.com/eldtechnologies/collab/internal/models"
)

// ErrNotFound is returned when a key or row does not exist.
var ErrNotFound = errors.New("not found")

// RoomCatalog defines durable storage for rooms so they survive restarts.
// Both PostgresStore and SQLiteStore implement this interface.
type RoomCatalog interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Room operations
	SaveRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id models.RoomID) (*models.Room, error)
	ArchiveRoom(ctx context.Context, id models.RoomID) error
	RecordActivity(ctx context.Context, id models.RoomID, messageCount int64, avgLatencyMs float64, at time.Time) error
	ActiveRooms(ctx context.Context) ([]*models.Room, error)
}
