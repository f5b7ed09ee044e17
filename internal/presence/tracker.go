// Package presence keeps the live status of users.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eldtechnologies/collab/internal/codec"
	"github.com/eldtechnologies/collab/internal/models"
)

// DefaultTTL is how long a persisted presence record lives without refresh.
const DefaultTTL = 300 * time.Second

// Store is the keyed TTL store presence records are persisted to.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Key returns the store key of a user's presence.
func Key(userID models.UserID) string {
	return "presence:" + string(userID)
}

// Tracker maps user to presence. Records are shared by every room the user
// belongs to; their lifetime is governed by the store TTL.
type Tracker struct {
	store Store
	codec codec.Codec
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	records map[models.UserID]models.Presence
}

// NewTracker creates a tracker persisting to store.
func NewTracker(store Store, c codec.Codec, ttl time.Duration, now func() time.Time) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store:   store,
		codec:   c,
		ttl:     ttl,
		now:     now,
		records: make(map[models.UserID]models.Presence),
	}
}

// Update overwrites the user's record and persists it with the TTL. The
// in-memory record is kept even when persisting fails.
func (t *Tracker) Update(ctx context.Context, req models.UpdatePresenceRequest) (models.Presence, error) {
	p := models.Presence{
		UserID:        req.UserID,
		TenantID:      req.TenantID,
		Status:        req.Status,
		StatusMessage: req.StatusMessage,
		LastSeen:      t.now().UTC(),
		CurrentRoomID: req.CurrentRoomID,
	}

	t.mu.Lock()
	t.records[p.UserID] = p
	t.mu.Unlock()

	return p, t.persist(ctx, p)
}

// Refresh re-persists the user's record, extending its TTL.
func (t *Tracker) Refresh(ctx context.Context, userID models.UserID) error {
	p, ok := t.Get(userID)
	if !ok {
		return nil
	}
	return t.persist(ctx, p)
}

func (t *Tracker) persist(ctx context.Context, p models.Presence) error {
	data, err := t.codec.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}
	if err := t.store.Put(ctx, Key(p.UserID), data, t.ttl); err != nil {
		return fmt.Errorf("persist presence: %w", err)
	}
	return nil
}

// Get returns the locally held record.
func (t *Tracker) Get(userID models.UserID) (models.Presence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.records[userID]
	return p, ok
}

// Lookup returns the local record, falling back to the store so presence
// set on other instances is visible here.
func (t *Tracker) Lookup(ctx context.Context, userID models.UserID) (models.Presence, bool) {
	if p, ok := t.Get(userID); ok {
		return p, true
	}

	data, err := t.store.Get(ctx, Key(userID))
	if err != nil {
		return models.Presence{}, false
	}
	var p models.Presence
	if err := t.codec.Unmarshal(data, &p); err != nil {
		return models.Presence{}, false
	}
	return p, true
}

// Forget drops the local record.
func (t *Tracker) Forget(userID models.UserID) {
	t.mu.Lock()
	delete(t.records, userID)
	t.mu.Unlock()
}

// Len returns the number of locally held records.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}
