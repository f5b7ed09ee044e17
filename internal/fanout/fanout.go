// Package fanout delivers events to every session of a tenant, locally and,
// when a bus is configured, on every other instance.
package fanout

import (
	"context"
	"errors"

	"github.com/eldtechnologies/collab/internal/models"
)

// ErrSessionBusy is returned by a session whose outbound buffer is full.
var ErrSessionBusy = errors.New("session send buffer full")

// ErrUnknownConnection is returned when unicasting to a detached session.
var ErrUnknownConnection = errors.New("unknown connection")

// Frame is one encoded event ready for the wire.
type Frame struct {
	Binary bool
	Data   []byte
}

// Session is a transport endpoint. Send must not block.
type Session interface {
	Send(f Frame) error
}

// Result lists the users an event reached and the users it could not reach.
type Result struct {
	Delivered []models.UserID
	Failed    []models.UserID
}

// Adapter is the fan-out boundary the engine talks to.
type Adapter interface {
	Broadcast(ctx context.Context, tenantID models.TenantID, ev *models.Event) (Result, error)
	Unicast(ctx context.Context, connID models.ConnectionID, ev *models.Event) error
	Attach(tenantID models.TenantID, userID models.UserID, connID models.ConnectionID, s Session)
	Detach(connID models.ConnectionID)
	Subscribe(connID models.ConnectionID, roomID models.RoomID)
	Unsubscribe(connID models.ConnectionID, roomID models.RoomID)
}

// Bus carries encoded envelopes between instances.
type Bus interface {
	Publish(ctx context.Context, tenantID models.TenantID, payload []byte) error
	// Run delivers every received payload to handle until ctx is done.
	Run(ctx context.Context, handle func(payload []byte)) error
	Close() error
}
