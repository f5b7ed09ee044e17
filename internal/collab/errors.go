package collab

import (
	"errors"

	"github.com/eldtechnologies/collab/internal/crypto"
	"github.com/eldtechnologies/collab/internal/room"
)

// Errors returned by engine operations. Compare with errors.Is.
var (
	ErrRoomNotFound     = room.ErrNotFound
	ErrCapacityExceeded = room.ErrCapacityExceeded
	ErrInvalidRoom      = room.ErrInvalid
	ErrRoomKeyMismatch  = crypto.ErrRoomKeyMismatch

	ErrCircuitOpen     = errors.New("room circuit open")
	ErrDeliveryFailed  = errors.New("message delivery failed")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrInvalidPresence = errors.New("invalid presence update")
	ErrInvalidQuery    = errors.New("invalid history query")
)
