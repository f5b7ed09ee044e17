// Package breaker isolates rooms whose fan-out keeps failing.
//
// Each room has its own failure counter. Once Threshold failures accumulate
// the room opens and sends are short-circuited. After Cooldown has elapsed
// since the room opened it is closed again and the counter starts from zero.
// There is no half-open probe: the first send after the reset is a normal
// attempt.
package breaker

import (
	"sync"
	"time"

	"github.com/eldtechnologies/collab/internal/models"
)

const (
	DefaultThreshold = 5
	DefaultCooldown  = 60 * time.Second
)

type state struct {
	failures    int
	open        bool
	openedAt    time.Time
	lastFailure time.Time
}

// Breaker holds per-room circuit state.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu    sync.Mutex
	rooms map[models.RoomID]*state
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a breaker. Non-positive values fall back to the defaults.
func New(threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	b := &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		rooms:     make(map[models.RoomID]*state),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RecordFailure counts one failure for the room and reports whether this
// call opened the circuit.
func (b *Breaker) RecordFailure(roomID models.RoomID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	s, ok := b.rooms[roomID]
	if !ok {
		s = &state{}
		b.rooms[roomID] = s
	}
	s.failures++
	s.lastFailure = now

	if !s.open && s.failures >= b.threshold {
		s.open = true
		s.openedAt = now
		return true
	}
	return false
}

// RecordSuccess clears the consecutive failure count of a closed room.
func (b *Breaker) RecordSuccess(roomID models.RoomID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.rooms[roomID]; ok && !s.open {
		delete(b.rooms, roomID)
	}
}

// IsOpen reports whether sends to the room must be short-circuited.
func (b *Breaker) IsOpen(roomID models.RoomID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.rooms[roomID]
	if !ok {
		return false
	}
	if s.open && b.now().Sub(s.openedAt) >= b.cooldown {
		delete(b.rooms, roomID)
		return false
	}
	return s.open
}

// Failures returns the current failure count for the room.
func (b *Breaker) Failures(roomID models.RoomID) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.rooms[roomID]
	if !ok {
		return 0
	}
	if s.open && b.now().Sub(s.openedAt) >= b.cooldown {
		return 0
	}
	return s.failures
}

// Sweep resets every room whose cooldown has elapsed: open rooms measured
// from when they opened, closed rooms from their last failure. It returns
// the rooms that were closed again.
func (b *Breaker) Sweep() []models.RoomID {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var reopened []models.RoomID
	for id, s := range b.rooms {
		switch {
		case s.open && now.Sub(s.openedAt) >= b.cooldown:
			reopened = append(reopened, id)
			delete(b.rooms, id)
		case !s.open && now.Sub(s.lastFailure) >= b.cooldown:
			delete(b.rooms, id)
		}
	}
	return reopened
}

// OpenCount returns how many rooms are currently open.
func (b *Breaker) OpenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, s := range b.rooms {
		if s.open {
			n++
		}
	}
	return n
}

// Forget drops all state for a room.
func (b *Breaker) Forget(roomID models.RoomID) {
	b.mu.Lock()
	delete(b.rooms, roomID)
	b.mu.Unlock()
}
